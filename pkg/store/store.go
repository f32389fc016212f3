// Package store defines the Record Store contract. Implementations must
// provide identical observable semantics so the vault behaves the same on
// every backend.
package store

import (
	"context"
	"errors"

	"github.com/wilhg/vault/pkg/record"
)

// ErrUnavailable is returned when the backing store cannot be reached.
var ErrUnavailable = errors.New("store unavailable")

// RecordStore persists records. List, Search and Sort return records in
// store-native order (insertion order) unless a sort is requested, and Sort
// keeps that order among equal keys.
type RecordStore interface {
	// Insert assigns ID, CreatedAt and UpdatedAt and persists the record.
	Insert(ctx context.Context, r record.Record) (record.Record, error)
	// Delete removes the record with id. Missing ids are not an error.
	Delete(ctx context.Context, id string) error
	// List returns every record.
	List(ctx context.Context) ([]record.Record, error)
	// Search returns records whose name contains keyword, ignoring case.
	Search(ctx context.Context, keyword string) ([]record.Record, error)
	// Sort returns every record ordered by spec.
	Sort(ctx context.Context, spec SortSpec) ([]record.Record, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	Close() error
}
