package federation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maxsync/max/pkg/client"
	"github.com/maxsync/max/pkg/connector"
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

// InstallationDeployers routes installation deployment configs by strategy
type InstallationDeployers = deploy.Registry[types.InstallationSpec, client.InstallationAPI]

// WorkspaceMax is the workspace node: a supervisor of live installations,
// the persistent installation registry, a deployer registry and the
// connector catalogue. It implements client.WorkspaceAPI.
type WorkspaceMax struct {
	connectors *connector.Registry
	deployers  *InstallationDeployers
	registry   *registry.InstallationRegistry
	sup        *supervisor.Supervisor[types.InstallationID, client.InstallationAPI]
	events     *events.Broker
	lc         *lifecycle.Lifecycle

	mu          sync.Mutex
	dispatchers map[types.InstallationID]*rpc.Dispatcher
	dispatcher  *rpc.Dispatcher
}

// NewWorkspace assembles a workspace node
func NewWorkspace(reg *registry.InstallationRegistry, connectors *connector.Registry, deployers *InstallationDeployers) *WorkspaceMax {
	w := &WorkspaceMax{
		connectors: connectors,
		deployers:  deployers,
		registry:   reg,
		sup: supervisor.New[types.InstallationID, client.InstallationAPI](func() types.InstallationID {
			return types.InstallationID(uuid.NewString())
		}),
		events:      events.NewBroker(),
		dispatchers: make(map[types.InstallationID]*rpc.Dispatcher),
	}
	w.lc = lifecycle.New(
		lifecycle.Step{
			Name: "events",
			Start: func(ctx context.Context) error {
				w.events.Start(ctx)
				return nil
			},
			Stop: func(ctx context.Context) error {
				w.events.Stop(ctx)
				return nil
			},
		},
		lifecycle.Step{
			Name: "installations",
			Start: func(ctx context.Context) error {
				w.sup.StartAll(ctx)
				return nil
			},
			Stop: func(ctx context.Context) error {
				w.sup.StopAll(ctx)
				return nil
			},
		},
	)
	return w
}

// Health aggregates the installations' health
func (w *WorkspaceMax) Health(ctx context.Context) types.HealthStatus {
	if !w.lc.Running() {
		return types.UnhealthyStatus("not started")
	}
	return w.sup.Health(ctx)
}

// Start walks the supervisor; child failures are logged, not propagated
func (w *WorkspaceMax) Start(ctx context.Context) types.StartResult {
	return w.lc.Start(ctx)
}

// Stop walks the supervisor in reverse
func (w *WorkspaceMax) Stop(ctx context.Context) types.StopResult {
	return w.lc.Stop(ctx)
}

// ListInstallations projects the persistent registry
func (w *WorkspaceMax) ListInstallations(ctx context.Context) ([]types.InstallationRecord, error) {
	return w.registry.List(), nil
}

// CreateInstallation deploys, registers, persists and starts a new
// installation. The (connector, name) key deduplicates against the
// persistent registry.
func (w *WorkspaceMax) CreateInstallation(ctx context.Context, spec types.InstallationSpec, deployment types.DeploymentConfig) (types.InstallationID, error) {
	if _, exists := w.registry.Find(spec.Connector, spec.Name); exists {
		return "", errdefs.ErrInstallationExists.New(errdefs.Props{
			"connector": spec.Connector,
			"name":      spec.Name,
		})
	}

	deployer, err := w.deployers.Get(deployment.Strategy)
	if err != nil {
		return "", err
	}
	unlabelled, err := deployer.Create(ctx, deployment, spec)
	if err != nil {
		return "", err
	}
	handle, err := w.sup.Register(unlabelled, "")
	if err != nil {
		return "", err
	}

	record := types.InstallationRecord{
		ID:          handle.ID,
		Connector:   spec.Connector,
		Name:        spec.Name,
		ConnectedAt: time.Now().UTC(),
		Spec:        spec,
		Deployment:  deployment,
		Locator:     handle.Locator,
	}
	if err := w.registry.Put(record); err != nil {
		w.sup.Unregister(handle.ID)
		return "", err
	}

	result := handle.Client.Start(ctx)
	if result.Outcome == types.StartErrored || result.Outcome == types.StartRefused {
		log.WithComponent("workspace").Error().
			Str("installation", string(handle.ID)).
			Str("outcome", string(result.Outcome)).
			Msg("installation failed to start")
	}
	w.events.Publish(events.Event{
		Type:         events.EventInstallationCreated,
		Installation: handle.ID,
		Message:      spec.Connector + "/" + spec.Name,
	})
	return handle.ID, nil
}

// ConnectInstallation reattaches to an already-running installation. The
// node's own description settles its identity; the registry entry keeps
// its original connection time.
func (w *WorkspaceMax) ConnectInstallation(ctx context.Context, record types.InstallationRecord) (types.InstallationID, error) {
	deployer, err := w.deployers.Get(record.Deployment.Strategy)
	if err != nil {
		return "", err
	}
	unlabelled, err := deployer.Connect(ctx, record.Deployment, record.Spec)
	if err != nil {
		return "", err
	}

	id := record.ID
	if info := unlabelled.Client.Describe(ctx); info.ID != "" {
		id = info.ID
	}
	handle, err := w.sup.Register(unlabelled, id)
	if err != nil {
		return "", err
	}

	record.ID = handle.ID
	record.Locator = handle.Locator
	if err := w.registry.Put(record); err != nil {
		w.sup.Unregister(handle.ID)
		return "", err
	}
	w.events.Publish(events.Event{
		Type:         events.EventInstallationConnected,
		Installation: handle.ID,
		Message:      record.Connector + "/" + record.Name,
	})
	return handle.ID, nil
}

// RemoveInstallation stops and unregisters an installation, invokes the
// deployer's teardown, and drops it from the persistent registry.
func (w *WorkspaceMax) RemoveInstallation(ctx context.Context, id types.InstallationID) error {
	record, persisted := w.registry.Lookup(id)

	handle, live := w.sup.Get(id)
	if !live && !persisted {
		return errdefs.ErrInstallationNotFound.New(errdefs.Props{"installationId": string(id)})
	}
	if live {
		handle.Client.Stop(ctx)
		w.sup.Unregister(id)
	}

	w.mu.Lock()
	delete(w.dispatchers, id)
	w.mu.Unlock()

	if persisted {
		if deployer, err := w.deployers.Get(record.Deployment.Strategy); err == nil {
			if err := deployer.Teardown(ctx, record.Deployment, record.Locator); err != nil {
				log.WithComponent("workspace").Warn().Err(err).
					Str("installation", string(id)).
					Msg("deployment teardown failed")
			}
		}
		if _, err := w.registry.Remove(id); err != nil {
			return err
		}
	}
	w.events.Publish(events.Event{
		Type:         events.EventInstallationRemoved,
		Installation: id,
	})
	return nil
}

// Events exposes the workspace's event broker
func (w *WorkspaceMax) Events() *events.Broker {
	return w.events
}

// Installation looks up a live installation's client
func (w *WorkspaceMax) Installation(id types.InstallationID) (client.InstallationAPI, error) {
	handle, ok := w.sup.Get(id)
	if !ok {
		return nil, errdefs.ErrInstallationNotFound.New(errdefs.Props{"installationId": string(id)})
	}
	return handle.Client, nil
}

// ListConnectors enumerates the workspace's connector catalogue
func (w *WorkspaceMax) ListConnectors(ctx context.Context) ([]string, error) {
	return w.connectors.List(), nil
}

// ConnectorSchema returns a connector's schema by name
func (w *WorkspaceMax) ConnectorSchema(ctx context.Context, name string) (types.Schema, error) {
	return w.connectors.Schema(name)
}

// ConnectorOnboarding returns a connector's onboarding flow by name
func (w *WorkspaceMax) ConnectorOnboarding(ctx context.Context, name string) (connector.Onboarding, error) {
	return w.connectors.Onboarding(name)
}

// Dispatcher returns the workspace's rpc dispatcher, wired to route scoped
// requests down to installation dispatchers.
func (w *WorkspaceMax) Dispatcher() *rpc.Dispatcher {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dispatcher == nil {
		w.dispatcher = client.NewWorkspaceDispatcher(w, w.InstallationDispatcher)
	}
	return w.dispatcher
}

// InstallationDispatcher resolves and caches an installation's dispatcher.
// In-process nodes serve their own; proxied nodes get their requests
// forwarded over the proxy's transport.
func (w *WorkspaceMax) InstallationDispatcher(id types.InstallationID) (*rpc.Dispatcher, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d, ok := w.dispatchers[id]; ok {
		return d, true
	}

	handle, ok := w.sup.Get(id)
	if !ok {
		return nil, false
	}
	d, ok := dispatcherFor(handle.Client)
	if !ok {
		return nil, false
	}
	w.dispatchers[id] = d
	return d, true
}

// dispatcherFor derives a child's dispatcher: nodes in this process expose
// theirs directly, proxies are wrapped in a forwarding dispatcher.
func dispatcherFor(node any) (*rpc.Dispatcher, bool) {
	switch n := node.(type) {
	case interface{ Dispatcher() *rpc.Dispatcher }:
		return n.Dispatcher(), true
	case interface{ Transport() rpc.Transport }:
		return client.NewForwardingDispatcher(n.Transport()), true
	default:
		return nil, false
	}
}
