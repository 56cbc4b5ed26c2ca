package client

import (
	"context"
	"encoding/json"

	"github.com/maxsync/max/pkg/connector"
	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/rpc"
	"github.com/maxsync/max/pkg/types"
)

// WorkspaceClient proxies a workspace node. Installation returns a child
// proxy whose requests automatically carry the installation id, so the
// workspace dispatcher routes them downward.
type WorkspaceClient struct {
	*SupervisedClient

	t rpc.Transport
}

// NewWorkspaceClient creates a workspace proxy over a transport
func NewWorkspaceClient(t rpc.Transport) *WorkspaceClient {
	return &WorkspaceClient{SupervisedClient: NewSupervisedClient(t), t: t}
}

// ListInstallations lists the workspace's registered installations
func (c *WorkspaceClient) ListInstallations(ctx context.Context) ([]types.InstallationRecord, error) {
	return rpc.Call[[]types.InstallationRecord](ctx, c.t, "", "listInstallations")
}

// CreateInstallation creates, registers and starts a new installation
func (c *WorkspaceClient) CreateInstallation(ctx context.Context, spec types.InstallationSpec, deployment types.DeploymentConfig) (types.InstallationID, error) {
	return rpc.Call[types.InstallationID](ctx, c.t, "", "createInstallation", spec, deployment)
}

// ConnectInstallation reattaches to an already-running installation
func (c *WorkspaceClient) ConnectInstallation(ctx context.Context, record types.InstallationRecord) (types.InstallationID, error) {
	return rpc.Call[types.InstallationID](ctx, c.t, "", "connectInstallation", record)
}

// RemoveInstallation unregisters and removes an installation
func (c *WorkspaceClient) RemoveInstallation(ctx context.Context, id types.InstallationID) error {
	_, err := rpc.Call[struct{}](ctx, c.t, "", "removeInstallation", id)
	return err
}

// ListConnectors lists the workspace's known connector names
func (c *WorkspaceClient) ListConnectors(ctx context.Context) ([]string, error) {
	return rpc.Call[[]string](ctx, c.t, "", "listConnectors")
}

// ConnectorSchema returns a connector's schema
func (c *WorkspaceClient) ConnectorSchema(ctx context.Context, name string) (types.Schema, error) {
	return rpc.Call[types.Schema](ctx, c.t, "", "connectorSchema", name)
}

// ConnectorOnboarding returns a connector's onboarding flow
func (c *WorkspaceClient) ConnectorOnboarding(ctx context.Context, name string) (connector.Onboarding, error) {
	return rpc.Call[connector.Onboarding](ctx, c.t, "", "connectorOnboarding", name)
}

// Transport exposes the proxy's transport, letting a parent forward
// scope-routed requests without re-encoding them.
func (c *WorkspaceClient) Transport() rpc.Transport { return c.t }

// Installation returns a proxy for one of the workspace's installations,
// bound to a transport that stamps the installation id on every request.
func (c *WorkspaceClient) Installation(id types.InstallationID) *InstallationClient {
	return NewInstallationClient(rpc.WithScope(c.t, rpc.RouteScope{InstallationID: id}))
}

// InstallationLookup resolves an installation id to its cached dispatcher.
// The federation implements it over its supervisor.
type InstallationLookup func(id types.InstallationID) (*rpc.Dispatcher, bool)

// NewWorkspaceDispatcher builds the dispatcher for a workspace node.
// Requests carrying an installation id in their scope are delegated to
// that installation's dispatcher with the id stripped; everything else
// dispatches on the workspace's own tables.
func NewWorkspaceDispatcher(api WorkspaceAPI, lookup InstallationLookup) *rpc.Dispatcher {
	d := rpc.NewDispatcher()
	d.RegisterTarget("", SupervisedTable(api))
	d.RegisterTarget("", workspaceTable(api))
	d.SetDelegate(func(ctx context.Context, req rpc.Request) (rpc.Response, bool) {
		if req.Scope == nil || req.Scope.InstallationID == "" {
			return rpc.Response{}, false
		}
		id := req.Scope.InstallationID
		child, ok := lookup(id)
		if !ok {
			return rpc.Failure(req.ID, errdefs.ErrNodeNotFound.New(errdefs.Props{
				"nodeId": string(id),
			})), true
		}
		stripped := *req.Scope
		stripped.InstallationID = ""
		if stripped.Empty() {
			req.Scope = nil
		} else {
			req.Scope = &stripped
		}
		return child.Dispatch(ctx, req), true
	})
	return d
}

func workspaceTable(api WorkspaceAPI) rpc.MethodTable {
	return rpc.MethodTable{
		"listInstallations": func(ctx context.Context, args []json.RawMessage) (any, error) {
			return api.ListInstallations(ctx)
		},
		"createInstallation": func(ctx context.Context, args []json.RawMessage) (any, error) {
			spec, err := rpc.DecodeArg[types.InstallationSpec](args, 0)
			if err != nil {
				return nil, err
			}
			deployment, err := rpc.DecodeArg[types.DeploymentConfig](args, 1)
			if err != nil {
				return nil, err
			}
			return api.CreateInstallation(ctx, spec, deployment)
		},
		"connectInstallation": func(ctx context.Context, args []json.RawMessage) (any, error) {
			record, err := rpc.DecodeArg[types.InstallationRecord](args, 0)
			if err != nil {
				return nil, err
			}
			return api.ConnectInstallation(ctx, record)
		},
		"removeInstallation": func(ctx context.Context, args []json.RawMessage) (any, error) {
			id, err := rpc.DecodeArg[types.InstallationID](args, 0)
			if err != nil {
				return nil, err
			}
			return struct{}{}, api.RemoveInstallation(ctx, id)
		},
		"listConnectors": func(ctx context.Context, args []json.RawMessage) (any, error) {
			return api.ListConnectors(ctx)
		},
		"connectorSchema": func(ctx context.Context, args []json.RawMessage) (any, error) {
			name, err := rpc.DecodeArg[string](args, 0)
			if err != nil {
				return nil, err
			}
			return api.ConnectorSchema(ctx, name)
		},
		"connectorOnboarding": func(ctx context.Context, args []json.RawMessage) (any, error) {
			name, err := rpc.DecodeArg[string](args, 0)
			if err != nil {
				return nil, err
			}
			return api.ConnectorOnboarding(ctx, name)
		},
	}
}
