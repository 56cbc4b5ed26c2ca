package federation

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/maxsync/max/pkg/client"
	"github.com/maxsync/max/pkg/deploy"
	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/events"
	"github.com/maxsync/max/pkg/lifecycle"
	"github.com/maxsync/max/pkg/log"
	"github.com/maxsync/max/pkg/registry"
	"github.com/maxsync/max/pkg/rpc"
	"github.com/maxsync/max/pkg/supervisor"
	"github.com/maxsync/max/pkg/types"
)

// WorkspaceDeployers routes workspace deployment configs by strategy
type WorkspaceDeployers = deploy.Registry[types.WorkspaceRecord, client.WorkspaceAPI]

// GlobalMax is the top federation node: a supervisor of workspaces backed
// by the persistent global manifest. On start it eagerly reconnects every
// persisted workspace on its recorded strategy. It implements
// client.GlobalAPI.
type GlobalMax struct {
	manifest  *registry.WorkspaceManifest
	deployers *WorkspaceDeployers
	sup       *supervisor.Supervisor[types.WorkspaceID, client.WorkspaceAPI]
	events    *events.Broker
	lc        *lifecycle.Lifecycle

	mu          sync.Mutex
	dispatchers map[types.WorkspaceID]*rpc.Dispatcher
	dispatcher  *rpc.Dispatcher
}

// NewGlobal assembles the global node
func NewGlobal(manifest *registry.WorkspaceManifest, deployers *WorkspaceDeployers) *GlobalMax {
	g := &GlobalMax{
		manifest:  manifest,
		deployers: deployers,
		sup: supervisor.New[types.WorkspaceID, client.WorkspaceAPI](func() types.WorkspaceID {
			return types.WorkspaceID(uuid.NewString())
		}),
		events:      events.NewBroker(),
		dispatchers: make(map[types.WorkspaceID]*rpc.Dispatcher),
	}
	g.lc = lifecycle.New(
		lifecycle.Step{
			Name: "events",
			Start: func(ctx context.Context) error {
				g.events.Start(ctx)
				return nil
			},
			Stop: func(ctx context.Context) error {
				g.events.Stop(ctx)
				return nil
			},
		},
		lifecycle.Step{
			Name: "workspaces",
			Start: func(ctx context.Context) error {
				g.reconcile(ctx)
				g.sup.StartAll(ctx)
				return nil
			},
			Stop: func(ctx context.Context) error {
				g.sup.StopAll(ctx)
				return nil
			},
		},
	)
	return g
}

// Health aggregates the workspaces' health
func (g *GlobalMax) Health(ctx context.Context) types.HealthStatus {
	if !g.lc.Running() {
		return types.UnhealthyStatus("not started")
	}
	return g.sup.Health(ctx)
}

// Start reconciles persisted workspaces, then starts the children
func (g *GlobalMax) Start(ctx context.Context) types.StartResult {
	return g.lc.Start(ctx)
}

// Stop stops the children in reverse registration order
func (g *GlobalMax) Stop(ctx context.Context) types.StopResult {
	return g.lc.Stop(ctx)
}

// ListWorkspaces projects the persistent manifest
func (g *GlobalMax) ListWorkspaces(ctx context.Context) ([]types.WorkspaceRecord, error) {
	return g.manifest.List(), nil
}

// ConnectWorkspace attaches to a workspace on its recorded hosting
// strategy and persists it in the manifest.
func (g *GlobalMax) ConnectWorkspace(ctx context.Context, record types.WorkspaceRecord) (types.WorkspaceID, error) {
	if record.Hosting == nil {
		return "", errdefs.ErrBadArguments.New(errdefs.Props{
			"target": "global", "method": "connectWorkspace",
			"detail": "workspace record has no hosting config",
		})
	}

	if record.ID != "" {
		if _, live := g.sup.Get(record.ID); live {
			return record.ID, g.manifest.Put(record)
		}
	}

	deployer, err := g.deployers.Get(record.Hosting.Strategy)
	if err != nil {
		return "", err
	}
	unlabelled, err := deployer.Connect(ctx, *record.Hosting, record)
	if err != nil {
		return "", err
	}
	handle, err := g.sup.Register(unlabelled, record.ID)
	if err != nil {
		return "", err
	}

	record.ID = handle.ID
	if err := g.manifest.Put(record); err != nil {
		g.sup.Unregister(handle.ID)
		return "", err
	}
	g.events.Publish(events.Event{
		Type:      events.EventWorkspaceConnected,
		Workspace: handle.ID,
		Message:   record.Name,
	})
	return handle.ID, nil
}

// RemoveWorkspace detaches a workspace and drops it from the manifest
func (g *GlobalMax) RemoveWorkspace(ctx context.Context, id types.WorkspaceID) error {
	record, persisted := g.manifest.Lookup(id)

	handle, live := g.sup.Get(id)
	if !live && !persisted {
		return errdefs.ErrWorkspaceNotFound.New(errdefs.Props{"workspaceId": string(id)})
	}
	if live {
		handle.Client.Stop(ctx)
		g.sup.Unregister(id)
	}

	g.mu.Lock()
	delete(g.dispatchers, id)
	g.mu.Unlock()

	if persisted {
		if record.Hosting != nil {
			if deployer, err := g.deployers.Get(record.Hosting.Strategy); err == nil {
				if err := deployer.Teardown(ctx, *record.Hosting, ""); err != nil {
					log.WithComponent("global").Warn().Err(err).
						Str("workspace", string(id)).
						Msg("workspace teardown failed")
				}
			}
		}
		if _, err := g.manifest.Remove(id); err != nil {
			return err
		}
	}
	g.events.Publish(events.Event{
		Type:      events.EventWorkspaceRemoved,
		Workspace: id,
	})
	return nil
}

// Events exposes the global node's event broker
func (g *GlobalMax) Events() *events.Broker {
	return g.events
}

// Workspace looks up an attached workspace's client
func (g *GlobalMax) Workspace(id types.WorkspaceID) (client.WorkspaceAPI, error) {
	handle, ok := g.sup.Get(id)
	if !ok {
		return nil, errdefs.ErrWorkspaceNotFound.New(errdefs.Props{"workspaceId": string(id)})
	}
	return handle.Client, nil
}

// Dispatcher returns the global node's rpc dispatcher
func (g *GlobalMax) Dispatcher() *rpc.Dispatcher {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dispatcher == nil {
		g.dispatcher = client.NewGlobalDispatcher(g, g.WorkspaceDispatcher)
	}
	return g.dispatcher
}

// WorkspaceDispatcher resolves and caches a workspace's dispatcher
func (g *GlobalMax) WorkspaceDispatcher(id types.WorkspaceID) (*rpc.Dispatcher, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d, ok := g.dispatchers[id]; ok {
		return d, true
	}

	handle, ok := g.sup.Get(id)
	if !ok {
		return nil, false
	}
	d, ok := dispatcherFor(handle.Client)
	if !ok {
		return nil, false
	}
	g.dispatchers[id] = d
	return d, true
}

// reconcile rebuilds handles for every persisted workspace not yet
// registered. Failures are logged; aggregate health reports them.
func (g *GlobalMax) reconcile(ctx context.Context) {
	for _, record := range g.manifest.List() {
		if _, live := g.sup.Get(record.ID); live {
			continue
		}
		if record.Hosting == nil {
			log.WithComponent("global").Warn().
				Str("workspace", string(record.ID)).
				Msg("persisted workspace has no hosting config, skipping")
			continue
		}
		deployer, err := g.deployers.Get(record.Hosting.Strategy)
		if err != nil {
			log.WithComponent("global").Warn().Err(err).
				Str("workspace", string(record.ID)).
				Msg("persisted workspace has unknown strategy, skipping")
			continue
		}
		unlabelled, err := deployer.Connect(ctx, *record.Hosting, record)
		if err != nil {
			log.WithComponent("global").Warn().Err(err).
				Str("workspace", string(record.ID)).
				Msg("failed to reconnect persisted workspace")
			continue
		}
		if _, err := g.sup.Register(unlabelled, record.ID); err != nil {
			log.WithComponent("global").Warn().Err(err).
				Str("workspace", string(record.ID)).
				Msg("failed to register reconnected workspace")
		}
	}
}
