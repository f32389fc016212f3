// Package export renders the record collection as a human-readable text file.
package export

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/wilhg/vault/pkg/artifact"
	"github.com/wilhg/vault/pkg/errmodel"
	"github.com/wilhg/vault/pkg/metrics"
	"github.com/wilhg/vault/pkg/record"
)

const (
	filePrefix = "export"
	fileExt    = ".txt"
	isoLayout  = "2006-01-02T15:04:05.000Z07:00"
)

// Lister is the part of the record store the exporter needs.
type Lister interface {
	List(ctx context.Context) ([]record.Record, error)
}

// Render produces the export text: a timestamp header, a blank line, then
// one "name | id | date" line per record.
func Render(records []record.Record, at time.Time) []byte {
	var b strings.Builder
	b.WriteString("Exported on ")
	b.WriteString(at.UTC().Format(isoLayout))
	b.WriteString("\n\n")
	for _, r := range records {
		date := ""
		if r.Date != nil {
			date = r.Date.String()
		}
		b.WriteString(r.Name)
		b.WriteString(" | ")
		b.WriteString(r.ID)
		b.WriteString(" | ")
		b.WriteString(date)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Exporter writes export files into a directory.
type Exporter struct {
	store   Lister
	dir     string
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Collector
}

type Option func(*Exporter)

func WithDir(dir string) Option {
	return func(e *Exporter) {
		if dir != "" {
			e.dir = dir
		}
	}
}

func WithClock(now func() time.Time) Option { return func(e *Exporter) { e.now = now } }

func WithLogger(l *zap.Logger) Option { return func(e *Exporter) { e.logger = l } }

func WithMetrics(c *metrics.Collector) Option { return func(e *Exporter) { e.metrics = c } }

// New constructs an Exporter writing to the working directory by default.
func New(st Lister, opts ...Option) *Exporter {
	e := &Exporter{store: st, dir: ".", now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export scans the store, writes a new export file and returns its path.
func (e *Exporter) Export(ctx context.Context) (path string, err error) {
	ctx, span := otel.Tracer("vault/export").Start(ctx, "export.Write")
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		if e.metrics != nil {
			e.metrics.Exports.WithLabelValues(metrics.Outcome(err)).Inc()
		}
		span.End()
	}()

	records, err := e.store.List(ctx)
	if err != nil {
		return "", errmodel.Store(errmodel.CodeStoreFailed, "read records for export", err)
	}
	now := e.now()
	path, err = artifact.Write(e.dir, filePrefix, fileExt, now, Render(records, now))
	if err != nil {
		return "", errmodel.IO(errmodel.CodeExportFailed, "write export", map[string]any{"dir": e.dir}, err)
	}
	span.SetAttributes(attribute.String("export.path", path), attribute.Int("export.records", len(records)))
	e.logger.Debug("export written", zap.String("path", path), zap.Int("records", len(records)))
	return path, nil
}
