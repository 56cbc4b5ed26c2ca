package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/maxsync/max/pkg/engine"
	"github.com/maxsync/max/pkg/rpc"
	"github.com/maxsync/max/pkg/types"
)

// EngineTarget is the dispatch target of the engine surface
const EngineTarget = "engine"

// EngineClient proxies a remote installation's engine, including its sync
// metadata store, over a transport.
type EngineClient struct {
	t    rpc.Transport
	meta *metaClient
}

// NewEngineClient creates an engine proxy over a transport
func NewEngineClient(t rpc.Transport) *EngineClient {
	return &EngineClient{t: t, meta: &metaClient{t: t}}
}

// Load returns one remote entity with the projected fields
func (c *EngineClient) Load(ctx context.Context, ref types.Ref, projection types.Projection) (types.EntityResult, error) {
	return rpc.Call[types.EntityResult](ctx, c.t, EngineTarget, "load", ref, projection)
}

// LoadField returns a single remote field value
func (c *EngineClient) LoadField(ctx context.Context, ref types.Ref, field string) (any, error) {
	return rpc.Call[any](ctx, c.t, EngineTarget, "loadField", ref, field)
}

// LoadCollection pages through a remote collection field
func (c *EngineClient) LoadCollection(ctx context.Context, ref types.Ref, field string, page types.PageRequest) (types.RefPage, error) {
	return rpc.Call[types.RefPage](ctx, c.t, EngineTarget, "loadCollection", ref, field, page)
}

// Store upserts an entity remotely
func (c *EngineClient) Store(ctx context.Context, input types.EntityInput) (types.Ref, error) {
	return rpc.Call[types.Ref](ctx, c.t, EngineTarget, "store", input)
}

// LoadPage lists remote entities of one type
func (c *EngineClient) LoadPage(ctx context.Context, entityType types.EntityType, projection types.Projection, page types.PageRequest) (types.EntityPage, error) {
	return rpc.Call[types.EntityPage](ctx, c.t, EngineTarget, "loadPage", entityType, projection, page)
}

// Query runs a filtered, ordered, paged query remotely
func (c *EngineClient) Query(ctx context.Context, query types.Query) (types.EntityPage, error) {
	return rpc.Call[types.EntityPage](ctx, c.t, EngineTarget, "query", query)
}

// SyncMeta exposes the remote sync metadata store
func (c *EngineClient) SyncMeta() engine.SyncMeta {
	return c.meta
}

// lastSyncResult is the wire shape of a lastSync answer
type lastSyncResult struct {
	At    time.Time `json:"at"`
	Found bool      `json:"found"`
}

type metaClient struct {
	t rpc.Transport
}

func (m *metaClient) RecordFieldSync(ctx context.Context, ref types.Ref, fields []string, at time.Time) error {
	_, err := rpc.Call[struct{}](ctx, m.t, EngineTarget, "recordFieldSync", ref, fields, at)
	return err
}

func (m *metaClient) LastSync(ctx context.Context, ref types.Ref, field string) (time.Time, bool, error) {
	result, err := rpc.Call[lastSyncResult](ctx, m.t, EngineTarget, "lastSync", ref, field)
	if err != nil {
		return time.Time{}, false, err
	}
	return result.At, result.Found, nil
}

func (m *metaClient) StaleFields(ctx context.Context, ref types.Ref, fields []string, maxAge time.Duration) ([]string, error) {
	return rpc.Call[[]string](ctx, m.t, EngineTarget, "staleFields", ref, fields, types.DurationOf(maxAge))
}

func (m *metaClient) InvalidateFields(ctx context.Context, ref types.Ref, fields []string) error {
	_, err := rpc.Call[struct{}](ctx, m.t, EngineTarget, "invalidateFields", ref, fields)
	return err
}

func (m *metaClient) Count(ctx context.Context) (int, error) {
	return rpc.Call[int](ctx, m.t, EngineTarget, "metaCount")
}

// EngineTable builds the dispatch table for an engine, mounted on the
// engine target.
func EngineTable(eng engine.Engine) rpc.MethodTable {
	return rpc.MethodTable{
		"load": func(ctx context.Context, args []json.RawMessage) (any, error) {
			ref, err := rpc.DecodeArg[types.Ref](args, 0)
			if err != nil {
				return nil, err
			}
			projection, err := rpc.DecodeArg[types.Projection](args, 1)
			if err != nil {
				return nil, err
			}
			return eng.Load(ctx, ref, projection)
		},
		"loadField": func(ctx context.Context, args []json.RawMessage) (any, error) {
			ref, err := rpc.DecodeArg[types.Ref](args, 0)
			if err != nil {
				return nil, err
			}
			field, err := rpc.DecodeArg[string](args, 1)
			if err != nil {
				return nil, err
			}
			return eng.LoadField(ctx, ref, field)
		},
		"loadCollection": func(ctx context.Context, args []json.RawMessage) (any, error) {
			ref, err := rpc.DecodeArg[types.Ref](args, 0)
			if err != nil {
				return nil, err
			}
			field, err := rpc.DecodeArg[string](args, 1)
			if err != nil {
				return nil, err
			}
			page, err := rpc.DecodeOptionalArg[types.PageRequest](args, 2)
			if err != nil {
				return nil, err
			}
			return eng.LoadCollection(ctx, ref, field, page)
		},
		"store": func(ctx context.Context, args []json.RawMessage) (any, error) {
			input, err := rpc.DecodeArg[types.EntityInput](args, 0)
			if err != nil {
				return nil, err
			}
			return eng.Store(ctx, input)
		},
		"loadPage": func(ctx context.Context, args []json.RawMessage) (any, error) {
			entityType, err := rpc.DecodeArg[types.EntityType](args, 0)
			if err != nil {
				return nil, err
			}
			projection, err := rpc.DecodeArg[types.Projection](args, 1)
			if err != nil {
				return nil, err
			}
			page, err := rpc.DecodeOptionalArg[types.PageRequest](args, 2)
			if err != nil {
				return nil, err
			}
			return eng.LoadPage(ctx, entityType, projection, page)
		},
		"query": func(ctx context.Context, args []json.RawMessage) (any, error) {
			query, err := rpc.DecodeArg[types.Query](args, 0)
			if err != nil {
				return nil, err
			}
			return eng.Query(ctx, query)
		},
		"recordFieldSync": func(ctx context.Context, args []json.RawMessage) (any, error) {
			ref, err := rpc.DecodeArg[types.Ref](args, 0)
			if err != nil {
				return nil, err
			}
			fields, err := rpc.DecodeArg[[]string](args, 1)
			if err != nil {
				return nil, err
			}
			at, err := rpc.DecodeArg[time.Time](args, 2)
			if err != nil {
				return nil, err
			}
			return struct{}{}, eng.SyncMeta().RecordFieldSync(ctx, ref, fields, at)
		},
		"lastSync": func(ctx context.Context, args []json.RawMessage) (any, error) {
			ref, err := rpc.DecodeArg[types.Ref](args, 0)
			if err != nil {
				return nil, err
			}
			field, err := rpc.DecodeArg[string](args, 1)
			if err != nil {
				return nil, err
			}
			at, found, err := eng.SyncMeta().LastSync(ctx, ref, field)
			if err != nil {
				return nil, err
			}
			return lastSyncResult{At: at, Found: found}, nil
		},
		"staleFields": func(ctx context.Context, args []json.RawMessage) (any, error) {
			ref, err := rpc.DecodeArg[types.Ref](args, 0)
			if err != nil {
				return nil, err
			}
			fields, err := rpc.DecodeArg[[]string](args, 1)
			if err != nil {
				return nil, err
			}
			maxAge, err := rpc.DecodeArg[types.DurationMS](args, 2)
			if err != nil {
				return nil, err
			}
			return eng.SyncMeta().StaleFields(ctx, ref, fields, maxAge.Duration())
		},
		"invalidateFields": func(ctx context.Context, args []json.RawMessage) (any, error) {
			ref, err := rpc.DecodeArg[types.Ref](args, 0)
			if err != nil {
				return nil, err
			}
			fields, err := rpc.DecodeArg[[]string](args, 1)
			if err != nil {
				return nil, err
			}
			return struct{}{}, eng.SyncMeta().InvalidateFields(ctx, ref, fields)
		},
		"metaCount": func(ctx context.Context, args []json.RawMessage) (any, error) {
			return eng.SyncMeta().Count(ctx)
		},
	}
}
