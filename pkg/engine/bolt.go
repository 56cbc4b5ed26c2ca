package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/lifecycle"
	"github.com/maxsync/max/pkg/metrics"
	"github.com/maxsync/max/pkg/types"
)

var (
	bucketEntities = []byte("entities")
	bucketSyncMeta = []byte("sync_meta")
)

// BoltEngine implements Engine using BoltDB. Entities are stored as JSON
// field maps keyed by <type>/<id>; collection fields hold ordered ref key
// lists. Sync metadata lives in its own bucket in the same file.
type BoltEngine struct {
	path   string
	schema types.Schema

	mu sync.RWMutex
	db *bolt.DB

	lc   *lifecycle.Lifecycle
	meta *boltSyncMeta
}

// NewBoltEngine creates an engine persisting at dataDir/engine.db
func NewBoltEngine(dataDir string, schema types.Schema) *BoltEngine {
	e := &BoltEngine{
		path:   filepath.Join(dataDir, "engine.db"),
		schema: schema,
	}
	e.meta = &boltSyncMeta{engine: e}
	e.lc = lifecycle.New(lifecycle.Step{
		Name:  "engine-db",
		Start: e.open,
		Stop:  e.close,
	})
	return e
}

// Health reports healthy while the database is open
func (e *BoltEngine) Health(ctx context.Context) types.HealthStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.db == nil {
		return types.UnhealthyStatus("database closed")
	}
	return types.HealthyStatus()
}

// Start opens the database (idempotent)
func (e *BoltEngine) Start(ctx context.Context) types.StartResult {
	return e.lc.Start(ctx)
}

// Stop closes the database
func (e *BoltEngine) Stop(ctx context.Context) types.StopResult {
	return e.lc.Stop(ctx)
}

// SyncMeta exposes the metadata store
func (e *BoltEngine) SyncMeta() SyncMeta {
	return e.meta
}

func (e *BoltEngine) open(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("failed to create engine directory: %w", err)
	}
	db, err := bolt.Open(e.path, 0o600, nil)
	if err != nil {
		return fmt.Errorf("failed to open engine database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEntities, bucketSyncMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return err
	}

	e.mu.Lock()
	e.db = db
	e.mu.Unlock()
	return nil
}

func (e *BoltEngine) close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

func (e *BoltEngine) database() (*bolt.DB, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.db == nil {
		return nil, errdefs.ErrStorageUnavailable.New(errdefs.Props{"detail": "engine not started"})
	}
	return e.db, nil
}

func entityKey(ref types.Ref) []byte {
	return []byte(fmt.Sprintf("%s/%s", ref.Type, ref.ID))
}

// Store upserts an entity, merging fields over any previous write.
// Collection fields merge as an ordered union of ref keys so paged loads
// accumulate and replays stay idempotent.
func (e *BoltEngine) Store(ctx context.Context, input types.EntityInput) (types.Ref, error) {
	def, ok := e.schema.Entity(input.Ref.Type)
	if !ok {
		return types.Ref{}, errdefs.ErrUnknownEntityType.New(errdefs.Props{"entityType": string(input.Ref.Type)})
	}
	for name := range input.Fields {
		if _, ok := def.Field(name); !ok {
			return types.Ref{}, errdefs.ErrUnknownField.New(errdefs.Props{
				"entityType": string(input.Ref.Type),
				"field":      name,
			})
		}
	}

	db, err := e.database()
	if err != nil {
		return types.Ref{}, err
	}

	// the engine is installation-local; stored refs are normalised to
	// installation scope
	normalised := types.NewRef(input.Ref.Type, input.Ref.ID)

	err = db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntities)
		key := entityKey(normalised)

		fields := map[string]any{}
		if existing := b.Get(key); existing != nil {
			if err := json.Unmarshal(existing, &fields); err != nil {
				return fmt.Errorf("corrupt entity %s: %w", key, err)
			}
		}

		for name, value := range input.Fields {
			field, _ := def.Field(name)
			if field.Kind == types.FieldCollection {
				fields[name] = mergeCollection(fields[name], value)
			} else {
				fields[name] = value
			}
		}

		data, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal entity: %w", err)
		}
		return b.Put(key, data)
	})
	if err != nil {
		return types.Ref{}, err
	}

	metrics.EngineStoresTotal.Inc()
	return normalised, nil
}

func mergeCollection(existing, incoming any) []string {
	merged := toStringSlice(existing)
	seen := make(map[string]struct{}, len(merged))
	for _, key := range merged {
		seen[key] = struct{}{}
	}
	for _, key := range toStringSlice(incoming) {
		if _, dup := seen[key]; !dup {
			merged = append(merged, key)
			seen[key] = struct{}{}
		}
	}
	if merged == nil {
		merged = []string{}
	}
	return merged
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), vv...)
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Load returns the entity with its projected fields. Schema fields the
// projection includes but no loader ever stored come back as the field's
// zero value.
func (e *BoltEngine) Load(ctx context.Context, ref types.Ref, projection types.Projection) (types.EntityResult, error) {
	def, ok := e.schema.Entity(ref.Type)
	if !ok {
		return types.EntityResult{}, errdefs.ErrUnknownEntityType.New(errdefs.Props{"entityType": string(ref.Type)})
	}

	stored, err := e.loadFields(ref)
	if err != nil {
		return types.EntityResult{}, err
	}

	result := types.EntityResult{Ref: ref, Fields: map[string]any{}}
	switch projection.Kind {
	case types.ProjectionRefs:
		// identity only
	case types.ProjectionAll:
		for _, f := range def.Fields {
			result.Fields[f.Name] = fieldOrZero(stored, f)
		}
	default:
		for _, name := range projection.Fields {
			f, err := e.schema.CheckField(ref.Type, name)
			if err != nil {
				return types.EntityResult{}, err
			}
			result.Fields[name] = fieldOrZero(stored, f)
		}
	}
	return result, nil
}

// LoadField returns one field's value, failing if it was never stored
func (e *BoltEngine) LoadField(ctx context.Context, ref types.Ref, field string) (any, error) {
	if _, err := e.schema.CheckField(ref.Type, field); err != nil {
		return nil, err
	}
	stored, err := e.loadFields(ref)
	if err != nil {
		return nil, err
	}
	value, ok := stored[field]
	if !ok {
		return nil, errdefs.ErrFieldNotLoaded.New(errdefs.Props{
			"ref":   string(ref.Key()),
			"field": field,
		})
	}
	return value, nil
}

// LoadCollection pages through a collection field's refs
func (e *BoltEngine) LoadCollection(ctx context.Context, ref types.Ref, field string, page types.PageRequest) (types.RefPage, error) {
	f, err := e.schema.CheckField(ref.Type, field)
	if err != nil {
		return types.RefPage{}, err
	}
	if f.Kind != types.FieldCollection {
		return types.RefPage{}, errdefs.ErrUnknownField.New(errdefs.Props{
			"entityType": string(ref.Type),
			"field":      field + " (not a collection)",
		})
	}

	stored, err := e.loadFields(ref)
	if err != nil {
		return types.RefPage{}, err
	}
	keys := toStringSlice(stored[field])

	offset, err := decodeCursor(page.Cursor)
	if err != nil {
		return types.RefPage{}, err
	}
	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	refs := make([]types.Ref, 0, limit)
	end := offset + limit
	if end > len(keys) {
		end = len(keys)
	}
	for _, key := range keys[offset:end] {
		parsed, err := types.ParseRefKey(types.RefKey(key))
		if err != nil {
			return types.RefPage{}, err
		}
		refs = append(refs, parsed)
	}

	result := types.RefPage{Refs: refs, HasMore: end < len(keys)}
	if result.HasMore {
		result.Cursor = encodeCursor(end)
	}
	return result, nil
}

func (e *BoltEngine) loadFields(ref types.Ref) (map[string]any, error) {
	db, err := e.database()
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	err = db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEntities).Get(entityKey(types.NewRef(ref.Type, ref.ID)))
		if data == nil {
			return errdefs.ErrEntityNotFound.New(errdefs.Props{"ref": string(ref.Key())})
		}
		return json.Unmarshal(data, &fields)
	})
	return fields, err
}

func fieldOrZero(stored map[string]any, f types.Field) any {
	if value, ok := stored[f.Name]; ok {
		return value
	}
	switch f.Kind {
	case types.FieldCollection:
		return []string{}
	case types.FieldRef:
		return nil
	default:
		switch f.Scalar {
		case types.ScalarString:
			return ""
		case types.ScalarNumber:
			return float64(0)
		case types.ScalarBoolean:
			return false
		default:
			return nil
		}
	}
}

// LoadPage lists entities of one type in key order
func (e *BoltEngine) LoadPage(ctx context.Context, entityType types.EntityType, projection types.Projection, page types.PageRequest) (types.EntityPage, error) {
	def, ok := e.schema.Entity(entityType)
	if !ok {
		return types.EntityPage{}, errdefs.ErrUnknownEntityType.New(errdefs.Props{"entityType": string(entityType)})
	}

	db, err := e.database()
	if err != nil {
		return types.EntityPage{}, err
	}

	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	prefix := []byte(string(entityType) + "/")

	var result types.EntityPage
	err = db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEntities).Cursor()

		k, v := c.Seek(prefix)
		if page.Cursor != "" {
			// the cursor is the last key of the previous page
			k, v = c.Seek([]byte(page.Cursor))
			if k != nil && string(k) == page.Cursor {
				k, v = c.Next()
			}
		}

		var lastKey string
		for ; k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			if len(result.Entities) == limit {
				result.HasMore = true
				result.Cursor = lastKey
				return nil
			}
			lastKey = string(k)

			id := strings.TrimPrefix(string(k), string(prefix))
			ref := types.NewRef(entityType, types.EntityID(id))

			var stored map[string]any
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("corrupt entity %s: %w", k, err)
			}
			result.Entities = append(result.Entities, projectEntity(ref, def, stored, projection))
		}
		return nil
	})
	return result, err
}

func projectEntity(ref types.Ref, def types.EntityDef, stored map[string]any, projection types.Projection) types.EntityResult {
	result := types.EntityResult{Ref: ref, Fields: map[string]any{}}
	switch projection.Kind {
	case types.ProjectionRefs:
	case types.ProjectionAll:
		for _, f := range def.Fields {
			result.Fields[f.Name] = fieldOrZero(stored, f)
		}
	default:
		for _, name := range projection.Fields {
			if f, ok := def.Field(name); ok {
				result.Fields[name] = fieldOrZero(stored, f)
			}
		}
	}
	return result
}
