// Package vault implements the record operations exposed over HTTP and MCP.
//
// Mutations (Add, Delete) write to the store first and then take a full
// snapshot of the collection. Queries (Search, Sort, Export, Stats) only read.
package vault

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wilhg/vault/pkg/errmodel"
	"github.com/wilhg/vault/pkg/export"
	"github.com/wilhg/vault/pkg/metrics"
	"github.com/wilhg/vault/pkg/record"
	"github.com/wilhg/vault/pkg/snapshot"
	"github.com/wilhg/vault/pkg/store"
)

const tracerName = "vault/service"

// Service wires the record store to the snapshot writer and the exporter.
type Service struct {
	store    store.RecordStore
	snapshot *snapshot.Writer
	exporter *export.Exporter
	logger   *zap.Logger
	metrics  *metrics.Collector
}

type Option func(*Service)

// WithSnapshotWriter replaces the default writer (directory "backups").
func WithSnapshotWriter(w *snapshot.Writer) Option { return func(s *Service) { s.snapshot = w } }

// WithExporter replaces the default exporter (working directory).
func WithExporter(e *export.Exporter) Option { return func(s *Service) { s.exporter = e } }

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(c *metrics.Collector) Option { return func(s *Service) { s.metrics = c } }

// New builds a Service over st.
func New(st store.RecordStore, opts ...Option) *Service {
	s := &Service{store: st, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.snapshot == nil {
		s.snapshot = snapshot.New(st, snapshot.WithLogger(s.logger), snapshot.WithMetrics(s.metrics))
	}
	if s.exporter == nil {
		s.exporter = export.New(st, export.WithLogger(s.logger), export.WithMetrics(s.metrics))
	}
	return s
}

// Add validates fields, inserts a new record and snapshots the collection.
// The stored record is returned; on a snapshot failure the record stays
// stored and the I/O error is returned alongside it.
func (s *Service) Add(ctx context.Context, fields map[string]any) (rec record.Record, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "vault.Add")
	defer func() { endSpan(span, err) }()

	if fields == nil {
		fields = map[string]any{}
	}
	if err := ValidatePayload(fields); err != nil {
		return record.Record{}, err
	}
	r, err := record.FromMap(fields)
	if err != nil {
		return record.Record{}, errmodel.Validation(errmodel.CodeInvalidField, err.Error(), nil)
	}
	rec, err = s.store.Insert(ctx, r)
	if err != nil {
		return record.Record{}, storeError("insert record", err)
	}
	span.SetAttributes(attribute.String("record.id", rec.ID))
	if s.metrics != nil {
		s.metrics.RecordsAdded.Inc()
	}
	s.logger.Info("record added", zap.String("id", rec.ID))
	if _, err := s.snapshot.Snapshot(ctx); err != nil {
		s.logger.Error("snapshot after add failed", zap.String("id", rec.ID), zap.Error(err))
		return rec, err
	}
	return rec, nil
}

// Delete removes the record with id and snapshots the collection. Unknown
// ids are not an error and still produce a snapshot.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "vault.Delete", trace.WithAttributes(attribute.String("record.id", id)))
	defer func() { endSpan(span, err) }()

	if err := s.store.Delete(ctx, id); err != nil {
		return storeError("delete record", err)
	}
	if s.metrics != nil {
		s.metrics.RecordsDeleted.Inc()
	}
	s.logger.Info("record deleted", zap.String("id", id))
	if _, err := s.snapshot.Snapshot(ctx); err != nil {
		s.logger.Error("snapshot after delete failed", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

// Search returns records whose name contains keyword, ignoring case.
// An empty keyword matches every record.
func (s *Service) Search(ctx context.Context, keyword string) (out []record.Record, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "vault.Search", trace.WithAttributes(attribute.String("keyword", keyword)))
	defer func() { endSpan(span, err) }()

	out, err = s.store.Search(ctx, keyword)
	if err != nil {
		return nil, storeError("search records", err)
	}
	return out, nil
}

// Sort returns every record ordered by field. An empty field sorts by name;
// order "desc" (any case) sorts descending, anything else ascending.
func (s *Service) Sort(ctx context.Context, field, order string) (out []record.Record, err error) {
	spec := store.SortSpec{Field: strings.TrimSpace(field), Order: store.ParseOrder(order)}
	if spec.Field == "" {
		spec.Field = store.DefaultSortField
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "vault.Sort", trace.WithAttributes(
		attribute.String("sort.field", spec.Field),
		attribute.String("sort.order", spec.Order.String()),
	))
	defer func() { endSpan(span, err) }()

	out, err = s.store.Sort(ctx, spec)
	if err != nil {
		return nil, storeError("sort records", err)
	}
	return out, nil
}

// Export writes the collection to a new text file and returns its path.
func (s *Service) Export(ctx context.Context) (path string, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "vault.Export")
	defer func() { endSpan(span, err) }()
	return s.exporter.Export(ctx)
}

// Stats summarizes the collection.
func (s *Service) Stats(ctx context.Context) (st record.Stats, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "vault.Stats")
	defer func() { endSpan(span, err) }()

	records, err := s.store.List(ctx)
	if err != nil {
		return record.Stats{}, storeError("list records", err)
	}
	return record.Summarize(records), nil
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return storeError("ping store", err)
	}
	return nil
}

func storeError(msg string, err error) error {
	var ce *errmodel.Error
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, store.ErrUnavailable) {
		return errmodel.Store(errmodel.CodeStoreUnavailable, msg, err)
	}
	return errmodel.Store(errmodel.CodeStoreFailed, msg, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
