package federation

import (
	"context"
	"sync"

	"github.com/maxsync/max/pkg/client"
	"github.com/maxsync/max/pkg/connector"
	"github.com/maxsync/max/pkg/engine"
	"github.com/maxsync/max/pkg/events"
	"github.com/maxsync/max/pkg/executor"
	"github.com/maxsync/max/pkg/lifecycle"
	"github.com/maxsync/max/pkg/log"
	"github.com/maxsync/max/pkg/rpc"
	"github.com/maxsync/max/pkg/storage"
	"github.com/maxsync/max/pkg/types"
)

// InstallationMax is the live installation node: a connector installation,
// its engine, and the sync executor over the persistent task graph. It
// implements client.InstallationAPI, so the same surface serves in-process
// callers and the installation dispatcher.
type InstallationMax struct {
	inst   connector.Installation
	schema types.Schema
	eng    *engine.BoltEngine
	store  *storage.BoltTaskStore
	exec   *executor.Executor
	events *events.Broker
	lc     *lifecycle.Lifecycle

	mu         sync.Mutex
	handles    map[types.SyncID]*executor.Handle
	dispatcher *rpc.Dispatcher
}

// NewInstallation assembles an installation node persisting under dataDir
func NewInstallation(inst connector.Installation, schema types.Schema, dataDir string, opts ...executor.Option) *InstallationMax {
	eng := engine.NewBoltEngine(dataDir, schema)
	store := storage.NewBoltTaskStore(dataDir)
	exec := executor.New(store, eng, inst.Resolver(), opts...)

	m := &InstallationMax{
		inst:    inst,
		schema:  schema,
		eng:     eng,
		store:   store,
		exec:    exec,
		events:  events.NewBroker(),
		handles: make(map[types.SyncID]*executor.Handle),
	}
	m.lc = lifecycle.Auto(
		lifecycle.Dep("events", m.events),
		lifecycle.Dep("installation", inst),
		lifecycle.Concurrent(
			lifecycle.Dep("engine", eng),
			lifecycle.Dep("task-store", store),
		),
		lifecycle.Dep("executor", exec),
	)
	return m
}

// Health aggregates the node's components once started
func (m *InstallationMax) Health(ctx context.Context) types.HealthStatus {
	if !m.lc.Running() {
		return types.UnhealthyStatus("not started")
	}
	components := map[string]lifecycle.Supervised{
		"events":       m.events,
		"installation": m.inst,
		"engine":       m.eng,
		"task-store":   m.store,
		"executor":     m.exec,
	}
	for name, unit := range components {
		if unit.Health(ctx).Status == types.Unhealthy {
			return types.DegradedStatus(name + " unhealthy")
		}
	}
	return types.HealthyStatus()
}

// Start brings up installation, engine, task store and executor in order
func (m *InstallationMax) Start(ctx context.Context) types.StartResult {
	return m.lc.Start(ctx)
}

// Stop tears the node down in reverse order
func (m *InstallationMax) Stop(ctx context.Context) types.StopResult {
	return m.lc.Stop(ctx)
}

// Describe identifies the installation
func (m *InstallationMax) Describe(ctx context.Context) types.InstallationInfo {
	return m.inst.Info()
}

// Schema returns the connector schema this node syncs against
func (m *InstallationMax) Schema(ctx context.Context) types.Schema {
	return m.schema
}

// Engine exposes the node's data plane
func (m *InstallationMax) Engine() engine.Engine {
	return m.eng
}

// Sync seeds a plan from the connector and enqueues it, returning the sync
// id. The handle stays registered until the sync is observed settled.
func (m *InstallationMax) Sync(ctx context.Context) (types.SyncID, error) {
	plan, err := m.inst.Seeder().Seed(ctx, m.eng)
	if err != nil {
		return "", err
	}
	handle, err := m.exec.Execute(ctx, plan)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.handles[handle.SyncID] = handle
	m.mu.Unlock()

	log.WithComponent("installation").Info().
		Str("installation", string(m.inst.Info().ID)).
		Str("sync_id", string(handle.SyncID)).
		Msg("sync started")
	m.events.Publish(events.Event{
		Type:         events.EventSyncStarted,
		Installation: m.inst.Info().ID,
		Sync:         handle.SyncID,
	})
	return handle.SyncID, nil
}

// SyncStatus reports the live status of a sync
func (m *InstallationMax) SyncStatus(ctx context.Context, syncID types.SyncID) (types.SyncStatus, error) {
	status, _, err := m.handle(syncID).Status(ctx)
	return status, err
}

// SyncPause parks the sync's pending tasks
func (m *InstallationMax) SyncPause(ctx context.Context, syncID types.SyncID) error {
	_, err := m.handle(syncID).Pause(ctx)
	return err
}

// SyncResume requeues the sync's paused tasks
func (m *InstallationMax) SyncResume(ctx context.Context, syncID types.SyncID) error {
	_, err := m.handle(syncID).Resume(ctx)
	return err
}

// SyncCancel cancels the sync and drops its handle
func (m *InstallationMax) SyncCancel(ctx context.Context, syncID types.SyncID) error {
	_, err := m.handle(syncID).Cancel(ctx)
	if err != nil {
		return err
	}
	m.forget(syncID)
	m.events.Publish(events.Event{
		Type:         events.EventSyncCancelled,
		Installation: m.inst.Info().ID,
		Sync:         syncID,
	})
	return nil
}

// SyncCompletion blocks until the sync settles, then drops its handle
func (m *InstallationMax) SyncCompletion(ctx context.Context, syncID types.SyncID) (types.SyncCompletion, error) {
	completion, err := m.handle(syncID).Completion(ctx)
	if err != nil {
		return types.SyncCompletion{}, err
	}
	m.forget(syncID)

	var eventType events.EventType
	switch completion.Status {
	case types.SyncCompleted:
		eventType = events.EventSyncCompleted
	case types.SyncCancelled:
		eventType = events.EventSyncCancelled
	default:
		eventType = events.EventSyncFailed
	}
	m.events.Publish(events.Event{
		Type:         eventType,
		Installation: m.inst.Info().ID,
		Sync:         syncID,
	})
	return completion, nil
}

// Events exposes the node's event broker
func (m *InstallationMax) Events() *events.Broker {
	return m.events
}

// Dispatcher returns this node's rpc dispatcher, built once
func (m *InstallationMax) Dispatcher() *rpc.Dispatcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dispatcher == nil {
		m.dispatcher = client.NewInstallationDispatcher(m)
	}
	return m.dispatcher
}

// handle returns the stashed handle, or reattaches through the store for
// syncs started by a previous process.
func (m *InstallationMax) handle(syncID types.SyncID) *executor.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.handles[syncID]; ok {
		return h
	}
	return m.exec.Attach(syncID)
}

func (m *InstallationMax) forget(syncID types.SyncID) {
	m.mu.Lock()
	delete(m.handles, syncID)
	m.mu.Unlock()
}
