package client

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxsync/max/pkg/connector"
	"github.com/maxsync/max/pkg/engine"
	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/log"
	"github.com/maxsync/max/pkg/rpc"
	"github.com/maxsync/max/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
}

func testSchema() types.Schema {
	return types.Schema{
		Namespace: "acme",
		Entities: map[types.EntityType]types.EntityDef{
			"user": {
				Name: "user",
				Fields: []types.Field{
					types.ScalarField("email", types.ScalarString),
					types.ScalarField("active", types.ScalarBoolean),
				},
			},
		},
		Roots: []types.EntityType{"user"},
	}
}

// fakeInstallation is an in-memory InstallationAPI backed by a real engine
type fakeInstallation struct {
	eng     engine.Engine
	running bool
	syncs   map[types.SyncID]types.SyncStatus
}

func newFakeInstallation(t *testing.T) *fakeInstallation {
	t.Helper()
	eng := engine.NewBoltEngine(t.TempDir(), testSchema())
	require.Equal(t, types.Started, eng.Start(context.Background()).Outcome)
	t.Cleanup(func() { eng.Stop(context.Background()) })
	return &fakeInstallation{
		eng:   eng,
		syncs: map[types.SyncID]types.SyncStatus{},
	}
}

func (f *fakeInstallation) Health(ctx context.Context) types.HealthStatus {
	if !f.running {
		return types.UnhealthyStatus("not started")
	}
	return types.HealthyStatus()
}

func (f *fakeInstallation) Start(ctx context.Context) types.StartResult {
	if f.running {
		return types.StartAlreadyRunning()
	}
	f.running = true
	return types.StartOK()
}

func (f *fakeInstallation) Stop(ctx context.Context) types.StopResult {
	f.running = false
	return types.StopOK()
}

func (f *fakeInstallation) Describe(ctx context.Context) types.InstallationInfo {
	return types.InstallationInfo{ID: "i1", Connector: "acme", Name: "prod"}
}

func (f *fakeInstallation) Schema(ctx context.Context) types.Schema {
	return testSchema()
}

func (f *fakeInstallation) Engine() engine.Engine {
	return f.eng
}

func (f *fakeInstallation) Sync(ctx context.Context) (types.SyncID, error) {
	id := types.SyncID("sync-1")
	f.syncs[id] = types.SyncRunning
	return id, nil
}

func (f *fakeInstallation) SyncStatus(ctx context.Context, syncID types.SyncID) (types.SyncStatus, error) {
	status, ok := f.syncs[syncID]
	if !ok {
		return "", errdefs.ErrSyncNotFound.New(errdefs.Props{"syncId": string(syncID)})
	}
	return status, nil
}

func (f *fakeInstallation) SyncPause(ctx context.Context, syncID types.SyncID) error {
	f.syncs[syncID] = types.SyncPaused
	return nil
}

func (f *fakeInstallation) SyncResume(ctx context.Context, syncID types.SyncID) error {
	f.syncs[syncID] = types.SyncRunning
	return nil
}

func (f *fakeInstallation) SyncCancel(ctx context.Context, syncID types.SyncID) error {
	f.syncs[syncID] = types.SyncCancelled
	return nil
}

func (f *fakeInstallation) SyncCompletion(ctx context.Context, syncID types.SyncID) (types.SyncCompletion, error) {
	return types.SyncCompletion{Status: types.SyncCompleted, TasksCompleted: 7}, nil
}

func installationProxy(t *testing.T) (*fakeInstallation, *InstallationClient) {
	t.Helper()
	fake := newFakeInstallation(t)
	dispatcher := NewInstallationDispatcher(fake)
	return fake, NewInstallationClient(rpc.NewLoopback(dispatcher.Dispatch))
}

func TestSupervisedRoundtrip(t *testing.T) {
	_, proxy := installationProxy(t)
	ctx := context.Background()

	assert.Equal(t, types.Unhealthy, proxy.Health(ctx).Status)
	assert.Equal(t, types.Started, proxy.Start(ctx).Outcome)
	assert.Equal(t, types.AlreadyRunning, proxy.Start(ctx).Outcome)
	assert.Equal(t, types.Healthy, proxy.Health(ctx).Status)
	assert.Equal(t, types.Stopped, proxy.Stop(ctx).Outcome)
}

func TestHealthUnreachable(t *testing.T) {
	_, proxy := installationProxy(t)
	closed := rpc.NewLoopback(NewInstallationDispatcher(newFakeInstallation(t)).Dispatch)
	closed.Close()
	unreachable := NewSupervisedClient(closed)

	status := unreachable.Health(context.Background())
	assert.Equal(t, types.Unhealthy, status.Status)
	assert.Equal(t, "unreachable", status.Reason)

	// reachable proxy still answers
	assert.NotEqual(t, "unreachable", proxy.Health(context.Background()).Reason)
}

func TestInstallationRoundtrip(t *testing.T) {
	_, proxy := installationProxy(t)
	ctx := context.Background()

	info := proxy.Describe(ctx)
	assert.Equal(t, types.InstallationID("i1"), info.ID)
	assert.Equal(t, "acme", info.Connector)

	schema := proxy.Schema(ctx)
	assert.Equal(t, "acme", schema.Namespace)
	_, ok := schema.Entity("user")
	assert.True(t, ok)

	syncID, err := proxy.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.SyncID("sync-1"), syncID)

	status, err := proxy.SyncStatus(ctx, syncID)
	require.NoError(t, err)
	assert.Equal(t, types.SyncRunning, status)

	require.NoError(t, proxy.SyncPause(ctx, syncID))
	status, err = proxy.SyncStatus(ctx, syncID)
	require.NoError(t, err)
	assert.Equal(t, types.SyncPaused, status)

	require.NoError(t, proxy.SyncResume(ctx, syncID))
	require.NoError(t, proxy.SyncCancel(ctx, syncID))

	completion, err := proxy.SyncCompletion(ctx, syncID)
	require.NoError(t, err)
	assert.Equal(t, types.SyncCompleted, completion.Status)
	assert.Equal(t, 7, completion.TasksCompleted)

	_, err = proxy.SyncStatus(ctx, "missing")
	assert.True(t, errdefs.ErrSyncNotFound.Is(err))
}

func TestEngineRoundtrip(t *testing.T) {
	_, proxy := installationProxy(t)
	ctx := context.Background()
	eng := proxy.Engine()
	ref := types.NewRef("user", "u1")

	stored, err := eng.Store(ctx, types.EntityInput{
		Ref:    ref,
		Fields: map[string]any{"email": "u1@acme.test", "active": true},
	})
	require.NoError(t, err)
	assert.Equal(t, ref, stored)

	result, err := eng.Load(ctx, ref, types.ProjectAll())
	require.NoError(t, err)
	assert.Equal(t, "u1@acme.test", result.Fields["email"])
	assert.Equal(t, true, result.Fields["active"])

	email, err := eng.LoadField(ctx, ref, "email")
	require.NoError(t, err)
	assert.Equal(t, "u1@acme.test", email)

	page, err := eng.LoadPage(ctx, "user", types.ProjectRefs(), types.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Entities, 1)
	assert.Equal(t, types.EntityID("u1"), page.Entities[0].Ref.ID)

	matched, err := eng.Query(ctx, types.Query{
		Type:       "user",
		Where:      types.Where("active", types.OpEq, true),
		Projection: types.ProjectFields("email"),
	})
	require.NoError(t, err)
	require.Len(t, matched.Entities, 1)
	assert.Equal(t, "u1@acme.test", matched.Entities[0].Fields["email"])
}

func TestSyncMetaRoundtrip(t *testing.T) {
	_, proxy := installationProxy(t)
	ctx := context.Background()
	meta := proxy.Engine().SyncMeta()
	ref := types.NewRef("user", "u1")
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, meta.RecordFieldSync(ctx, ref, []string{"email"}, now))

	at, found, err := meta.LastSync(ctx, ref, "email")
	require.NoError(t, err)
	require.True(t, found)
	assert.WithinDuration(t, now, at, time.Second)

	stale, err := meta.StaleFields(ctx, ref, []string{"email", "active"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"active"}, stale)

	count, err := meta.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, meta.InvalidateFields(ctx, ref, []string{"email"}))
	_, found, err = meta.LastSync(ctx, ref, "email")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestErrorCrossesBoundaryIntact(t *testing.T) {
	_, proxy := installationProxy(t)

	_, err := proxy.Engine().Load(context.Background(), types.NewRef("ghost", "g1"), types.ProjectAll())
	require.Error(t, err)
	assert.True(t, errdefs.Has(err, errdefs.NotFound))
	assert.True(t, errdefs.Has(err, errdefs.HasEntityType))
	assert.Equal(t, "core.unknown_entity_type", errdefs.Code(err))

	e, ok := errdefs.As(err)
	require.True(t, ok)
	assert.Equal(t, "ghost", e.StringProp("entityType"))
}

// fakeWorkspace is a minimal WorkspaceAPI for routing tests
type fakeWorkspace struct {
	records []types.InstallationRecord
}

func (f *fakeWorkspace) Health(ctx context.Context) types.HealthStatus { return types.HealthyStatus() }
func (f *fakeWorkspace) Start(ctx context.Context) types.StartResult   { return types.StartOK() }
func (f *fakeWorkspace) Stop(ctx context.Context) types.StopResult     { return types.StopOK() }

func (f *fakeWorkspace) ListInstallations(ctx context.Context) ([]types.InstallationRecord, error) {
	return f.records, nil
}

func (f *fakeWorkspace) CreateInstallation(ctx context.Context, spec types.InstallationSpec, deployment types.DeploymentConfig) (types.InstallationID, error) {
	return "i-new", nil
}

func (f *fakeWorkspace) ConnectInstallation(ctx context.Context, record types.InstallationRecord) (types.InstallationID, error) {
	return record.ID, nil
}

func (f *fakeWorkspace) RemoveInstallation(ctx context.Context, id types.InstallationID) error {
	return nil
}

func (f *fakeWorkspace) ListConnectors(ctx context.Context) ([]string, error) {
	return []string{"acme"}, nil
}

func (f *fakeWorkspace) ConnectorSchema(ctx context.Context, name string) (types.Schema, error) {
	if name != "acme" {
		return types.Schema{}, errdefs.ErrUnknownConnector.New(errdefs.Props{"connector": name})
	}
	return testSchema(), nil
}

func (f *fakeWorkspace) ConnectorOnboarding(ctx context.Context, name string) (connector.Onboarding, error) {
	return connector.Onboarding{Steps: []connector.OnboardingStep{
		{Kind: connector.OnboardSecret, Name: "apiKey", Required: true},
	}}, nil
}

// stubDispatcher answers whoami with a fixed source marker
func stubDispatcher(source string) *rpc.Dispatcher {
	d := rpc.NewDispatcher()
	d.Register("", "whoami", func(ctx context.Context, args []json.RawMessage) (any, error) {
		return map[string]string{"source": source}, nil
	})
	return d
}

func TestWorkspaceScopeRouting(t *testing.T) {
	children := map[types.InstallationID]*rpc.Dispatcher{"i1": stubDispatcher("i1")}
	d := NewWorkspaceDispatcher(&fakeWorkspace{}, func(id types.InstallationID) (*rpc.Dispatcher, bool) {
		child, ok := children[id]
		return child, ok
	})
	transport := rpc.NewLoopback(d.Dispatch)
	ctx := context.Background()

	// scoped request lands on the installation's dispatcher
	scoped := rpc.WithScope(transport, rpc.RouteScope{InstallationID: "i1"})
	result, err := rpc.Call[map[string]string](ctx, scoped, "", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "i1", result["source"])

	// unknown installation id fails with node_not_found
	missing := rpc.WithScope(transport, rpc.RouteScope{InstallationID: "missing"})
	_, err = rpc.Call[map[string]string](ctx, missing, "", "whoami")
	assert.Equal(t, "rpc.node_not_found", errdefs.Code(err))

	// unscoped requests dispatch on the workspace itself
	ws := NewWorkspaceClient(transport)
	connectors, err := ws.ListConnectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, connectors)
}

func TestWorkspaceRoundtrip(t *testing.T) {
	record := types.InstallationRecord{ID: "i1", Connector: "acme", Name: "prod"}
	d := NewWorkspaceDispatcher(&fakeWorkspace{records: []types.InstallationRecord{record}},
		func(id types.InstallationID) (*rpc.Dispatcher, bool) { return nil, false })
	ws := NewWorkspaceClient(rpc.NewLoopback(d.Dispatch))
	ctx := context.Background()

	records, err := ws.ListInstallations(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)

	id, err := ws.CreateInstallation(ctx, types.InstallationSpec{Connector: "acme", Name: "new"}, types.DeploymentConfig{Strategy: types.DeployInProcess})
	require.NoError(t, err)
	assert.Equal(t, types.InstallationID("i-new"), id)

	schema, err := ws.ConnectorSchema(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", schema.Namespace)

	_, err = ws.ConnectorSchema(ctx, "ghost")
	assert.True(t, errdefs.Has(err, errdefs.HasConnector))

	onboarding, err := ws.ConnectorOnboarding(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, onboarding.Steps, 1)
	assert.Equal(t, connector.OnboardSecret, onboarding.Steps[0].Kind)

	require.NoError(t, ws.RemoveInstallation(ctx, "i1"))
}

// fakeGlobal is a minimal GlobalAPI for routing tests
type fakeGlobal struct {
	records []types.WorkspaceRecord
}

func (f *fakeGlobal) Health(ctx context.Context) types.HealthStatus { return types.HealthyStatus() }
func (f *fakeGlobal) Start(ctx context.Context) types.StartResult   { return types.StartOK() }
func (f *fakeGlobal) Stop(ctx context.Context) types.StopResult     { return types.StopOK() }

func (f *fakeGlobal) ListWorkspaces(ctx context.Context) ([]types.WorkspaceRecord, error) {
	return f.records, nil
}

func (f *fakeGlobal) ConnectWorkspace(ctx context.Context, record types.WorkspaceRecord) (types.WorkspaceID, error) {
	return record.ID, nil
}

func (f *fakeGlobal) RemoveWorkspace(ctx context.Context, id types.WorkspaceID) error {
	return nil
}

func TestGlobalRoutingChain(t *testing.T) {
	installations := map[types.InstallationID]*rpc.Dispatcher{"i1": stubDispatcher("w1/i1")}
	wsDispatcher := NewWorkspaceDispatcher(&fakeWorkspace{}, func(id types.InstallationID) (*rpc.Dispatcher, bool) {
		child, ok := installations[id]
		return child, ok
	})
	workspaces := map[types.WorkspaceID]*rpc.Dispatcher{"w1": wsDispatcher}
	d := NewGlobalDispatcher(&fakeGlobal{}, func(id types.WorkspaceID) (*rpc.Dispatcher, bool) {
		child, ok := workspaces[id]
		return child, ok
	})

	global := NewGlobalClient(rpc.NewLoopback(d.Dispatch))
	ctx := context.Background()

	// two-level chain: global -> workspace -> installation
	inst := global.Workspace("w1").Installation("i1")
	result, err := rpc.Call[map[string]string](ctx, rpc.WithScope(inst.t, rpc.RouteScope{}), "", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "w1/i1", result["source"])

	// one level: workspace methods through the global dispatcher
	connectors, err := global.Workspace("w1").ListConnectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, connectors)

	_, err = global.Workspace("ghost").ListConnectors(ctx)
	assert.Equal(t, "rpc.node_not_found", errdefs.Code(err))
}

func TestGlobalRoundtrip(t *testing.T) {
	record := types.WorkspaceRecord{ID: "w1", Name: "proj", ProjectRoot: "/tmp/proj"}
	d := NewGlobalDispatcher(&fakeGlobal{records: []types.WorkspaceRecord{record}},
		func(id types.WorkspaceID) (*rpc.Dispatcher, bool) { return nil, false })
	global := NewGlobalClient(rpc.NewLoopback(d.Dispatch))
	ctx := context.Background()

	records, err := global.ListWorkspaces(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)

	id, err := global.ConnectWorkspace(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, types.WorkspaceID("w1"), id)

	require.NoError(t, global.RemoveWorkspace(ctx, "w1"))
	assert.Equal(t, types.Healthy, global.Health(ctx).Status)
}

func TestUnknownMethodThroughProxy(t *testing.T) {
	fake := newFakeInstallation(t)
	transport := rpc.NewLoopback(NewInstallationDispatcher(fake).Dispatch)

	_, err := rpc.Call[any](context.Background(), transport, "", "teleport")
	assert.Equal(t, "rpc.unknown_method", errdefs.Code(err))

	_, err = rpc.Call[any](context.Background(), transport, "warehouse", "load")
	assert.Equal(t, "rpc.unknown_target", errdefs.Code(err))
}
