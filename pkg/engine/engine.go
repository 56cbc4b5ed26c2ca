package engine

import (
	"context"
	"time"

	"github.com/maxsync/max/pkg/types"
)

// Engine is an installation's data plane: reads, upserts, pages and
// queries over the entities a connector has synced.
type Engine interface {
	// Load returns one entity with the projected fields
	Load(ctx context.Context, ref types.Ref, projection types.Projection) (types.EntityResult, error)

	// LoadField returns a single field value. Reading a field that was
	// never stored fails with core.field_not_loaded.
	LoadField(ctx context.Context, ref types.Ref, field string) (any, error)

	// LoadCollection pages through a collection field's refs
	LoadCollection(ctx context.Context, ref types.Ref, field string, page types.PageRequest) (types.RefPage, error)

	// Store upserts an entity. It is idempotent given the same (ref,
	// fields) and returns the normalised ref.
	Store(ctx context.Context, input types.EntityInput) (types.Ref, error)

	// LoadPage lists entities of one type
	LoadPage(ctx context.Context, entityType types.EntityType, projection types.Projection, page types.PageRequest) (types.EntityPage, error)

	// Query runs a filtered, ordered, paged query
	Query(ctx context.Context, query types.Query) (types.EntityPage, error)

	// SyncMeta exposes the per-field sync metadata store
	SyncMeta() SyncMeta
}

// SyncMeta records when each (ref, field) pair was last synced. It is kept
// separate from entity data and joinable for freshness queries.
type SyncMeta interface {
	RecordFieldSync(ctx context.Context, ref types.Ref, fields []string, at time.Time) error
	LastSync(ctx context.Context, ref types.Ref, field string) (time.Time, bool, error)

	// StaleFields returns the subset of fields whose last sync is older
	// than maxAge (or that were never synced).
	StaleFields(ctx context.Context, ref types.Ref, fields []string, maxAge time.Duration) ([]string, error)

	// InvalidateFields drops sync records, making the fields stale again
	InvalidateFields(ctx context.Context, ref types.Ref, fields []string) error

	// Count returns the number of recorded (ref, field) rows
	Count(ctx context.Context) (int, error)
}
