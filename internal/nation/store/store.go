// Package store persists nation cache entries.
package store

import (
	"context"
	"time"

	"openletter/internal/nation/models"
	"openletter/pkg/platform/sentinel"
)

// ErrNotFound is returned when no entry exists for a name.
var ErrNotFound = sentinel.ErrNotFound

// Store is the nation cache table. Entries are keyed by id.NationKey of their
// name, so any spelling of a nation finds the same entry, and are only ever
// upserted, never duplicated. An upsert keeps the latest display spelling.
type Store interface {
	Get(ctx context.Context, name string) (*models.Entry, error)
	// GetMany returns the cached entries for names, keyed by id.NationKey.
	GetMany(ctx context.Context, names []string) (map[string]models.Entry, error)
	Upsert(ctx context.Context, entry models.Entry) error
	// UpsertBatch writes all entries in one statement, stamping them with
	// updatedAt. Entries sharing a key within the batch resolve to the last one.
	UpsertBatch(ctx context.Context, entries []models.Entry, updatedAt time.Time) error
	Delete(ctx context.Context, name string) error
	Count(ctx context.Context) (int, error)
}
