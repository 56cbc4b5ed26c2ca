package client

import (
	"context"
	"encoding/json"

	"github.com/maxsync/max/pkg/engine"
	"github.com/maxsync/max/pkg/rpc"
	"github.com/maxsync/max/pkg/types"
)

// InstallationClient proxies an installation node: lifecycle, engine and
// sync steering. It implements InstallationAPI over a transport.
type InstallationClient struct {
	*SupervisedClient

	t   rpc.Transport
	eng *EngineClient
}

// NewInstallationClient creates an installation proxy over a transport
func NewInstallationClient(t rpc.Transport) *InstallationClient {
	return &InstallationClient{
		SupervisedClient: NewSupervisedClient(t),
		t:                t,
		eng:              NewEngineClient(t),
	}
}

// Transport exposes the proxy's transport for request forwarding
func (c *InstallationClient) Transport() rpc.Transport { return c.t }

// Describe returns the remote node's self-description. Failures degrade
// to a zero description; callers needing the error use the engine or
// lifecycle surfaces to diagnose.
func (c *InstallationClient) Describe(ctx context.Context) types.InstallationInfo {
	info, err := rpc.Call[types.InstallationInfo](ctx, c.t, "", "describe")
	if err != nil {
		return types.InstallationInfo{}
	}
	return info
}

// Schema returns the connector schema of the remote installation
func (c *InstallationClient) Schema(ctx context.Context) types.Schema {
	schema, err := rpc.Call[types.Schema](ctx, c.t, "", "schema")
	if err != nil {
		return types.Schema{}
	}
	return schema
}

// Engine returns the remote engine proxy
func (c *InstallationClient) Engine() engine.Engine {
	return c.eng
}

// Sync starts a sync on the remote installation
func (c *InstallationClient) Sync(ctx context.Context) (types.SyncID, error) {
	return rpc.Call[types.SyncID](ctx, c.t, "", "sync")
}

// SyncStatus reports a running sync's status
func (c *InstallationClient) SyncStatus(ctx context.Context, syncID types.SyncID) (types.SyncStatus, error) {
	return rpc.Call[types.SyncStatus](ctx, c.t, "", "syncStatus", syncID)
}

// SyncPause parks a sync's pending tasks
func (c *InstallationClient) SyncPause(ctx context.Context, syncID types.SyncID) error {
	_, err := rpc.Call[struct{}](ctx, c.t, "", "syncPause", syncID)
	return err
}

// SyncResume requeues a paused sync
func (c *InstallationClient) SyncResume(ctx context.Context, syncID types.SyncID) error {
	_, err := rpc.Call[struct{}](ctx, c.t, "", "syncResume", syncID)
	return err
}

// SyncCancel cancels a sync
func (c *InstallationClient) SyncCancel(ctx context.Context, syncID types.SyncID) error {
	_, err := rpc.Call[struct{}](ctx, c.t, "", "syncCancel", syncID)
	return err
}

// SyncCompletion blocks until the sync settles and returns its result
func (c *InstallationClient) SyncCompletion(ctx context.Context, syncID types.SyncID) (types.SyncCompletion, error) {
	return rpc.Call[types.SyncCompletion](ctx, c.t, "", "syncCompletion", syncID)
}

// NewInstallationDispatcher builds the dispatcher for an installation
// node: the lifecycle and node methods on the root target, the engine on
// the engine target.
func NewInstallationDispatcher(api InstallationAPI) *rpc.Dispatcher {
	d := rpc.NewDispatcher()
	d.RegisterTarget("", SupervisedTable(api))
	d.RegisterTarget("", installationTable(api))
	d.RegisterTarget(EngineTarget, EngineTable(api.Engine()))
	return d
}

func installationTable(api InstallationAPI) rpc.MethodTable {
	syncID := func(args []json.RawMessage) (types.SyncID, error) {
		return rpc.DecodeArg[types.SyncID](args, 0)
	}
	return rpc.MethodTable{
		"describe": func(ctx context.Context, args []json.RawMessage) (any, error) {
			return api.Describe(ctx), nil
		},
		"schema": func(ctx context.Context, args []json.RawMessage) (any, error) {
			return api.Schema(ctx), nil
		},
		"sync": func(ctx context.Context, args []json.RawMessage) (any, error) {
			return api.Sync(ctx)
		},
		"syncStatus": func(ctx context.Context, args []json.RawMessage) (any, error) {
			id, err := syncID(args)
			if err != nil {
				return nil, err
			}
			return api.SyncStatus(ctx, id)
		},
		"syncPause": func(ctx context.Context, args []json.RawMessage) (any, error) {
			id, err := syncID(args)
			if err != nil {
				return nil, err
			}
			return struct{}{}, api.SyncPause(ctx, id)
		},
		"syncResume": func(ctx context.Context, args []json.RawMessage) (any, error) {
			id, err := syncID(args)
			if err != nil {
				return nil, err
			}
			return struct{}{}, api.SyncResume(ctx, id)
		},
		"syncCancel": func(ctx context.Context, args []json.RawMessage) (any, error) {
			id, err := syncID(args)
			if err != nil {
				return nil, err
			}
			return struct{}{}, api.SyncCancel(ctx, id)
		},
		"syncCompletion": func(ctx context.Context, args []json.RawMessage) (any, error) {
			id, err := syncID(args)
			if err != nil {
				return nil, err
			}
			return api.SyncCompletion(ctx, id)
		},
	}
}
