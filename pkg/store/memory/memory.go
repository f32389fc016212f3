// Package memory provides an in-memory store.RecordStore intended for tests,
// examples and the "memory:" DATABASE_URL.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wilhg/vault/pkg/record"
	"github.com/wilhg/vault/pkg/store"
)

// Store keeps records in insertion order.
type Store struct {
	mu      sync.RWMutex
	records []record.Record
	now     func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{now: time.Now}
}

// WithClock replaces the timestamp source. It returns s for chaining.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Insert(ctx context.Context, r record.Record) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}
	now := s.now().UTC()
	r.ID = uuid.NewString()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Fields = cloneFields(r.Fields)
	s.mu.Lock()
	s.records = append(s.records, r)
	s.mu.Unlock()
	return clone(r), nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]record.Record, error) {
	return s.filter(ctx, func(record.Record) bool { return true })
}

func (s *Store) Search(ctx context.Context, keyword string) ([]record.Record, error) {
	kw := strings.ToLower(keyword)
	return s.filter(ctx, func(r record.Record) bool {
		return strings.Contains(strings.ToLower(r.Name), kw)
	})
}

// Sort orders records by spec with a stable sort, so equal keys keep
// insertion order. Missing values sort first ascending and last descending.
func (s *Store) Sort(ctx context.Context, spec store.SortSpec) ([]record.Record, error) {
	out, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	field := spec.Field
	if field == "" {
		field = store.DefaultSortField
	}
	if store.Column(field) == "" && !store.IsIdentifier(field) {
		return out, nil
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := out[i].Field(field)
		b, bok := out[j].Field(field)
		c := compare(a, aok, b, bok)
		if spec.Order == store.Desc {
			return c > 0
		}
		return c < 0
	})
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

func (s *Store) filter(ctx context.Context, keep func(record.Record) bool) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]record.Record, 0, len(s.records))
	for _, r := range s.records {
		if keep(r) {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

// compare orders values of possibly different JSON types:
// missing < null < numbers < strings < booleans < times < everything else.
func compare(a any, aok bool, b any, bok bool) int {
	ra, rb := rank(a, aok), rank(b, bok)
	if ra != rb {
		return ra - rb
	}
	switch x := a.(type) {
	case float64:
		return cmpOrdered(x, toFloat(b))
	case int:
		return cmpOrdered(float64(x), toFloat(b))
	case string:
		return strings.Compare(x, b.(string))
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case time.Time:
		return x.Compare(b.(time.Time))
	}
	if ra == 6 {
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
	return 0
}

func rank(v any, ok bool) int {
	if !ok {
		return 0
	}
	switch v.(type) {
	case nil:
		return 1
	case float64, int:
		return 2
	case string:
		return 3
	case bool:
		return 4
	case time.Time:
		return 5
	}
	return 6
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func cmpOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func clone(r record.Record) record.Record {
	if r.Date != nil {
		d := *r.Date
		r.Date = &d
	}
	r.Fields = cloneFields(r.Fields)
	return r
}

func cloneFields(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ store.RecordStore = (*Store)(nil)
