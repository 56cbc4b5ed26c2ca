package client

import (
	"context"
	"encoding/json"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/rpc"
	"github.com/maxsync/max/pkg/types"
)

// GlobalClient proxies the global node. Workspace returns a child proxy
// whose requests carry the workspace id, routed downward by the global
// dispatcher; chaining Installation on that proxy stamps both ids.
type GlobalClient struct {
	*SupervisedClient

	t rpc.Transport
}

// NewGlobalClient creates a global proxy over a transport
func NewGlobalClient(t rpc.Transport) *GlobalClient {
	return &GlobalClient{SupervisedClient: NewSupervisedClient(t), t: t}
}

// ListWorkspaces lists the registered workspaces
func (c *GlobalClient) ListWorkspaces(ctx context.Context) ([]types.WorkspaceRecord, error) {
	return rpc.Call[[]types.WorkspaceRecord](ctx, c.t, "", "listWorkspaces")
}

// ConnectWorkspace registers a workspace and attaches to it
func (c *GlobalClient) ConnectWorkspace(ctx context.Context, record types.WorkspaceRecord) (types.WorkspaceID, error) {
	return rpc.Call[types.WorkspaceID](ctx, c.t, "", "connectWorkspace", record)
}

// RemoveWorkspace detaches and unregisters a workspace
func (c *GlobalClient) RemoveWorkspace(ctx context.Context, id types.WorkspaceID) error {
	_, err := rpc.Call[struct{}](ctx, c.t, "", "removeWorkspace", id)
	return err
}

// Workspace returns a proxy for one registered workspace
func (c *GlobalClient) Workspace(id types.WorkspaceID) *WorkspaceClient {
	return NewWorkspaceClient(rpc.WithScope(c.t, rpc.RouteScope{WorkspaceID: id}))
}

// WorkspaceLookup resolves a workspace id to its dispatcher
type WorkspaceLookup func(id types.WorkspaceID) (*rpc.Dispatcher, bool)

// NewGlobalDispatcher builds the dispatcher for the global node. Requests
// carrying a workspace id are delegated to that workspace's dispatcher
// with the workspace id stripped; an installation id in the same scope
// rides along for the workspace dispatcher to route further down.
func NewGlobalDispatcher(api GlobalAPI, lookup WorkspaceLookup) *rpc.Dispatcher {
	d := rpc.NewDispatcher()
	d.RegisterTarget("", SupervisedTable(api))
	d.RegisterTarget("", globalTable(api))
	d.SetDelegate(func(ctx context.Context, req rpc.Request) (rpc.Response, bool) {
		if req.Scope == nil || req.Scope.WorkspaceID == "" {
			return rpc.Response{}, false
		}
		id := req.Scope.WorkspaceID
		child, ok := lookup(id)
		if !ok {
			return rpc.Failure(req.ID, errdefs.ErrNodeNotFound.New(errdefs.Props{
				"nodeId": string(id),
			})), true
		}
		stripped := *req.Scope
		stripped.WorkspaceID = ""
		if stripped.Empty() {
			req.Scope = nil
		} else {
			req.Scope = &stripped
		}
		return child.Dispatch(ctx, req), true
	})
	return d
}

func globalTable(api GlobalAPI) rpc.MethodTable {
	return rpc.MethodTable{
		"listWorkspaces": func(ctx context.Context, args []json.RawMessage) (any, error) {
			return api.ListWorkspaces(ctx)
		},
		"connectWorkspace": func(ctx context.Context, args []json.RawMessage) (any, error) {
			record, err := rpc.DecodeArg[types.WorkspaceRecord](args, 0)
			if err != nil {
				return nil, err
			}
			return api.ConnectWorkspace(ctx, record)
		},
		"removeWorkspace": func(ctx context.Context, args []json.RawMessage) (any, error) {
			id, err := rpc.DecodeArg[types.WorkspaceID](args, 0)
			if err != nil {
				return nil, err
			}
			return struct{}{}, api.RemoveWorkspace(ctx, id)
		},
	}
}
