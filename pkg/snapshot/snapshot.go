// Package snapshot writes full-collection backups of the record store.
//
// Every call reads the whole collection and writes it to a new file
// backup_<timestamp>.json under the backup directory. Files are never
// overwritten, rotated or read back.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/wilhg/vault/pkg/artifact"
	"github.com/wilhg/vault/pkg/errmodel"
	"github.com/wilhg/vault/pkg/metrics"
	"github.com/wilhg/vault/pkg/record"
)

// DefaultDir is the backup directory used when none is configured.
const DefaultDir = "backups"

const (
	filePrefix = "backup"
	fileExt    = ".json"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Lister is the part of the record store the writer needs.
type Lister interface {
	List(ctx context.Context) ([]record.Record, error)
}

// Writer produces snapshots.
type Writer struct {
	store   Lister
	dir     string
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Collector
}

// Option configures the Writer at construction time.
type Option func(*Writer)

// WithDir sets the backup directory.
func WithDir(dir string) Option {
	return func(w *Writer) {
		if dir != "" {
			w.dir = dir
		}
	}
}

// WithClock replaces the timestamp source used for file names.
func WithClock(now func() time.Time) Option { return func(w *Writer) { w.now = now } }

func WithLogger(l *zap.Logger) Option { return func(w *Writer) { w.logger = l } }

func WithMetrics(c *metrics.Collector) Option { return func(w *Writer) { w.metrics = c } }

// New constructs a Writer over st.
func New(st Lister, opts ...Option) *Writer {
	w := &Writer{store: st, dir: DefaultDir, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Snapshot writes the current collection to a new file and returns its path.
// Store failures are returned as store errors, filesystem failures as io errors.
func (w *Writer) Snapshot(ctx context.Context) (path string, err error) {
	ctx, span := otel.Tracer("vault/snapshot").Start(ctx, "snapshot.Write")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if w.metrics != nil {
			w.metrics.Snapshots.WithLabelValues(metrics.Outcome(err)).Inc()
		}
		span.End()
	}()

	records, err := w.store.List(ctx)
	if err != nil {
		return "", errmodel.Store(errmodel.CodeStoreFailed, "read records for snapshot", err)
	}
	if records == nil {
		records = []record.Record{}
	}
	data, err := encode(records)
	if err != nil {
		return "", errmodel.System("encode_failed", "encode snapshot", nil, err)
	}
	path, err = artifact.Write(w.dir, filePrefix, fileExt, w.now(), data)
	if err != nil {
		return "", errmodel.IO(errmodel.CodeSnapshotFailed, "write snapshot", map[string]any{"dir": w.dir}, err)
	}
	span.SetAttributes(
		attribute.String("snapshot.path", path),
		attribute.Int("snapshot.records", len(records)),
	)
	w.logger.Info("snapshot written", zap.String("path", path), zap.Int("records", len(records)))
	return path, nil
}

// encode renders records as a JSON array indented by two spaces.
func encode(records []record.Record) ([]byte, error) {
	compact, err := codec.Marshal(records)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
