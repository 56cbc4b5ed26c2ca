package federation

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxsync/max/pkg/client"
	"github.com/maxsync/max/pkg/connector"
	"github.com/maxsync/max/pkg/deploy"
	"github.com/maxsync/max/pkg/engine"
	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/events"
	"github.com/maxsync/max/pkg/executor"
	"github.com/maxsync/max/pkg/log"
	"github.com/maxsync/max/pkg/registry"
	"github.com/maxsync/max/pkg/rpc"
	"github.com/maxsync/max/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
}

func demoSchema() types.Schema {
	return types.Schema{
		Namespace: "demo",
		Entities: map[types.EntityType]types.EntityDef{
			"org": {
				Name: "org",
				Fields: []types.Field{
					types.CollectionField("users", "user"),
				},
			},
			"user": {
				Name: "user",
				Fields: []types.Field{
					types.ScalarField("email", types.ScalarString),
					types.ScalarField("active", types.ScalarBoolean),
				},
			},
		},
		Roots: []types.EntityType{"org"},
	}
}

type demoMembers struct{}

func (demoMembers) Name() types.LoaderName { return "members" }

func (demoMembers) LoadCollection(ctx context.Context, parent types.Ref, field string, page types.PageRequest) (types.RefPage, error) {
	return types.RefPage{Refs: []types.Ref{
		types.NewRef("user", "u1"),
		types.NewRef("user", "u2"),
	}}, nil
}

type demoUsers struct{}

func (demoUsers) Name() types.LoaderName { return "users" }

func (demoUsers) LoadFields(ctx context.Context, refs []types.Ref, fields []string) ([]types.EntityInput, error) {
	inputs := make([]types.EntityInput, 0, len(refs))
	for _, ref := range refs {
		inputs = append(inputs, types.EntityInput{
			Ref:    ref,
			Fields: map[string]any{"email": string(ref.ID) + "@demo.test", "active": true},
		})
	}
	return inputs, nil
}

// demoInstallation is a minimal live connector installation
type demoInstallation struct {
	name    string
	running bool
}

func (d *demoInstallation) Health(ctx context.Context) types.HealthStatus {
	if !d.running {
		return types.UnhealthyStatus("not started")
	}
	return types.HealthyStatus()
}

func (d *demoInstallation) Start(ctx context.Context) types.StartResult {
	if d.running {
		return types.StartAlreadyRunning()
	}
	d.running = true
	return types.StartOK()
}

func (d *demoInstallation) Stop(ctx context.Context) types.StopResult {
	d.running = false
	return types.StopOK()
}

func (d *demoInstallation) Info() types.InstallationInfo {
	return types.InstallationInfo{Connector: "demo", Name: d.name}
}

func (d *demoInstallation) Seeder() connector.Seeder {
	return connector.SeederFunc(func(ctx context.Context, eng engine.Engine) (types.SyncPlan, error) {
		return types.Plan(
			types.ForRoot(types.NewRef("org", "demo")).LoadCollection("users"),
			types.ForAll("user").LoadFields("email", "active"),
		), nil
	})
}

func (d *demoInstallation) Resolver() *connector.Resolver {
	r := connector.NewResolver()
	r.RegisterCollectionLoader("org", "users", demoMembers{})
	r.RegisterFieldLoader("user", []string{"email", "active"}, demoUsers{})
	return r
}

// demoConnector is the catalogue entry producing demo installations
type demoConnector struct{}

func (demoConnector) Name() string         { return "demo" }
func (demoConnector) Version() string      { return "1.0.0" }
func (demoConnector) Schema() types.Schema { return demoSchema() }

func (demoConnector) Onboarding() connector.Onboarding {
	return connector.Onboarding{Steps: []connector.OnboardingStep{
		{Kind: connector.OnboardSecret, Name: "apiKey", Required: true},
	}}
}

func (demoConnector) Connect(ctx context.Context, spec types.InstallationSpec) (connector.Installation, error) {
	return &demoInstallation{name: spec.Name}, nil
}

func demoConnectors() *connector.Registry {
	r := connector.NewRegistry()
	r.Register("demo", func() (connector.Connector, error) { return demoConnector{}, nil })
	return r
}

// installationDeployers wires inline and in-process strategies to real
// installation nodes built from the connector catalogue.
func installationDeployers(t *testing.T, connectors *connector.Registry) *InstallationDeployers {
	t.Helper()
	dataRoot := t.TempDir()
	build := func(ctx context.Context, spec types.InstallationSpec) (client.InstallationAPI, error) {
		c, err := connectors.Get(spec.Connector)
		if err != nil {
			return nil, err
		}
		inst, err := c.Connect(ctx, spec)
		if err != nil {
			return nil, err
		}
		node := NewInstallation(inst, c.Schema(), filepath.Join(dataRoot, spec.Name),
			executor.WithPollInterval(10*time.Millisecond))
		return node, nil
	}

	deployers := deploy.NewRegistry[types.InstallationSpec, client.InstallationAPI]()
	deployers.Register(deploy.NewInline(build))
	deployers.Register(deploy.NewInProcess(build))
	return deployers
}

func newTestWorkspace(t *testing.T, projectRoot string) *WorkspaceMax {
	t.Helper()
	reg, err := registry.OpenInstallationRegistry(projectRoot)
	require.NoError(t, err)
	connectors := demoConnectors()
	return NewWorkspace(reg, connectors, installationDeployers(t, connectors))
}

func TestInstallationSyncEndToEnd(t *testing.T) {
	ctx := context.Background()
	node := NewInstallation(&demoInstallation{name: "prod"}, demoSchema(), t.TempDir(),
		executor.WithPollInterval(10*time.Millisecond))

	require.Equal(t, types.Started, node.Start(ctx).Outcome)
	defer node.Stop(ctx)
	assert.Equal(t, types.Healthy, node.Health(ctx).Status)

	info := node.Describe(ctx)
	assert.Equal(t, "demo", info.Connector)
	assert.Equal(t, "prod", info.Name)
	assert.Equal(t, "demo", node.Schema(ctx).Namespace)

	syncID, err := node.Sync(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	completion, err := node.SyncCompletion(waitCtx, syncID)
	require.NoError(t, err)
	assert.Equal(t, types.SyncCompleted, completion.Status)
	assert.Zero(t, completion.TasksFailed)

	// the handle is dropped once the completion was observed, but status
	// still derives from the persisted graph
	status, err := node.SyncStatus(ctx, syncID)
	require.NoError(t, err)
	assert.Equal(t, types.SyncCompleted, status)

	user, err := node.Engine().Load(ctx, types.NewRef("user", "u1"), types.ProjectAll())
	require.NoError(t, err)
	assert.Equal(t, "u1@demo.test", user.Fields["email"])

	_, err = node.SyncStatus(ctx, "missing")
	assert.True(t, errdefs.ErrSyncNotFound.Is(err))
}

func TestInstallationStoppedIsUnhealthy(t *testing.T) {
	ctx := context.Background()
	node := NewInstallation(&demoInstallation{name: "prod"}, demoSchema(), t.TempDir())

	assert.Equal(t, types.Unhealthy, node.Health(ctx).Status)
	require.Equal(t, types.Started, node.Start(ctx).Outcome)
	assert.Equal(t, types.AlreadyRunning, node.Start(ctx).Outcome)
	require.Equal(t, types.Stopped, node.Stop(ctx).Outcome)
	assert.Equal(t, types.Unhealthy, node.Health(ctx).Status)
}

func TestWorkspaceCreateInstallation(t *testing.T) {
	ctx := context.Background()
	projectRoot := t.TempDir()
	ws := newTestWorkspace(t, projectRoot)
	require.Equal(t, types.Started, ws.Start(ctx).Outcome)
	defer ws.Stop(ctx)

	sub := ws.Events().Subscribe()
	defer ws.Events().Unsubscribe(sub)

	spec := types.InstallationSpec{Connector: "demo", Name: "prod"}
	cfg := types.DeploymentConfig{Strategy: types.DeployInProcess}

	id, err := ws.CreateInstallation(ctx, spec, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case event := <-sub:
		assert.Equal(t, events.EventInstallationCreated, event.Type)
		assert.Equal(t, id, event.Installation)
	case <-time.After(2 * time.Second):
		t.Fatal("no installation.created event")
	}

	// the node came up started
	api, err := ws.Installation(id)
	require.NoError(t, err)
	assert.Equal(t, types.Healthy, api.Health(ctx).Status)

	// dedupe on (connector, name)
	_, err = ws.CreateInstallation(ctx, spec, cfg)
	assert.True(t, errdefs.ErrInstallationExists.Is(err))

	// persisted for the next process
	records, err := ws.ListInstallations(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, types.DeployInProcess, records[0].Deployment.Strategy)

	reopened, err := registry.OpenInstallationRegistry(projectRoot)
	require.NoError(t, err)
	_, ok := reopened.Lookup(id)
	assert.True(t, ok)
}

func TestWorkspaceRemoveInstallation(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorkspace(t, t.TempDir())
	require.Equal(t, types.Started, ws.Start(ctx).Outcome)
	defer ws.Stop(ctx)

	id, err := ws.CreateInstallation(ctx,
		types.InstallationSpec{Connector: "demo", Name: "prod"},
		types.DeploymentConfig{Strategy: types.DeployInProcess})
	require.NoError(t, err)

	require.NoError(t, ws.RemoveInstallation(ctx, id))

	_, err = ws.Installation(id)
	assert.True(t, errdefs.ErrInstallationNotFound.Is(err))
	records, err := ws.ListInstallations(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	err = ws.RemoveInstallation(ctx, "missing")
	assert.True(t, errdefs.ErrInstallationNotFound.Is(err))
}

func TestWorkspaceConnectInstallationAfterRestart(t *testing.T) {
	ctx := context.Background()
	projectRoot := t.TempDir()

	first := newTestWorkspace(t, projectRoot)
	require.Equal(t, types.Started, first.Start(ctx).Outcome)
	id, err := first.CreateInstallation(ctx,
		types.InstallationSpec{Connector: "demo", Name: "prod"},
		types.DeploymentConfig{Strategy: types.DeployInline})
	require.NoError(t, err)
	first.Stop(ctx)

	// a fresh workspace process reattaches from the persisted record
	second := newTestWorkspace(t, projectRoot)
	require.Equal(t, types.Started, second.Start(ctx).Outcome)
	defer second.Stop(ctx)

	records, err := second.ListInstallations(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	connectedID, err := second.ConnectInstallation(ctx, records[0])
	require.NoError(t, err)
	assert.Equal(t, id, connectedID)

	api, err := second.Installation(connectedID)
	require.NoError(t, err)
	api.Start(ctx)
	assert.Equal(t, types.Healthy, api.Health(ctx).Status)

	// connection time survives the reconnect
	after, err := second.ListInstallations(ctx)
	require.NoError(t, err)
	assert.Equal(t, records[0].ConnectedAt, after[0].ConnectedAt)
}

func TestWorkspaceConnectorQueries(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorkspace(t, t.TempDir())

	names, err := ws.ListConnectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"demo"}, names)

	schema, err := ws.ConnectorSchema(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", schema.Namespace)

	onboarding, err := ws.ConnectorOnboarding(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, onboarding.Steps, 1)

	_, err = ws.ConnectorSchema(ctx, "ghost")
	assert.True(t, errdefs.ErrUnknownConnector.Is(err))
}

func TestWorkspaceDispatcherRoutesToInstallation(t *testing.T) {
	ctx := context.Background()
	ws := newTestWorkspace(t, t.TempDir())
	require.Equal(t, types.Started, ws.Start(ctx).Outcome)
	defer ws.Stop(ctx)

	id, err := ws.CreateInstallation(ctx,
		types.InstallationSpec{Connector: "demo", Name: "prod"},
		types.DeploymentConfig{Strategy: types.DeployInProcess})
	require.NoError(t, err)

	proxy := client.NewWorkspaceClient(rpc.NewLoopback(ws.Dispatcher().Dispatch))

	inst := proxy.Installation(id)
	assert.Equal(t, "demo", inst.Describe(ctx).Connector)

	syncID, err := inst.Sync(ctx)
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	completion, err := inst.SyncCompletion(waitCtx, syncID)
	require.NoError(t, err)
	assert.Equal(t, types.SyncCompleted, completion.Status)

	user, err := inst.Engine().Load(ctx, types.NewRef("user", "u2"), types.ProjectAll())
	require.NoError(t, err)
	assert.Equal(t, "u2@demo.test", user.Fields["email"])

	// unknown child id fails at the routing layer
	_, err = proxy.Installation("missing").Sync(ctx)
	assert.Equal(t, "rpc.node_not_found", errdefs.Code(err))
}

// workspaceDeployers wires the inline strategy to real workspace nodes
func workspaceDeployers(t *testing.T) *WorkspaceDeployers {
	t.Helper()
	deployers := deploy.NewRegistry[types.WorkspaceRecord, client.WorkspaceAPI]()
	deployers.Register(deploy.NewInline(func(ctx context.Context, record types.WorkspaceRecord) (client.WorkspaceAPI, error) {
		return newTestWorkspace(t, record.ProjectRoot), nil
	}))
	return deployers
}

func TestGlobalReconcilesPersistedWorkspaces(t *testing.T) {
	ctx := context.Background()
	manifestPath := filepath.Join(t.TempDir(), "workspaces.json")

	manifest, err := registry.OpenWorkspaceManifest(manifestPath)
	require.NoError(t, err)
	require.NoError(t, manifest.Put(types.WorkspaceRecord{
		ID: "w1", Name: "alpha", ProjectRoot: t.TempDir(),
		Hosting: &types.DeploymentConfig{Strategy: types.DeployInline},
	}))

	g := NewGlobal(manifest, workspaceDeployers(t))
	require.Equal(t, types.Started, g.Start(ctx).Outcome)
	defer g.Stop(ctx)

	ws, err := g.Workspace("w1")
	require.NoError(t, err)
	assert.Equal(t, types.Healthy, ws.Health(ctx).Status)
	assert.Equal(t, types.Healthy, g.Health(ctx).Status)
}

func TestGlobalConnectAndRemoveWorkspace(t *testing.T) {
	ctx := context.Background()
	manifest, err := registry.OpenWorkspaceManifest(filepath.Join(t.TempDir(), "workspaces.json"))
	require.NoError(t, err)

	g := NewGlobal(manifest, workspaceDeployers(t))
	require.Equal(t, types.Started, g.Start(ctx).Outcome)
	defer g.Stop(ctx)

	id, err := g.ConnectWorkspace(ctx, types.WorkspaceRecord{
		ID: "w1", Name: "alpha", ProjectRoot: t.TempDir(),
		Hosting: &types.DeploymentConfig{Strategy: types.DeployInline},
	})
	require.NoError(t, err)
	assert.Equal(t, types.WorkspaceID("w1"), id)

	records, err := g.ListWorkspaces(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	// records without hosting are rejected up front
	_, err = g.ConnectWorkspace(ctx, types.WorkspaceRecord{ID: "w2", Name: "beta"})
	assert.True(t, errdefs.ErrBadArguments.Is(err))

	require.NoError(t, g.RemoveWorkspace(ctx, "w1"))
	_, err = g.Workspace("w1")
	assert.True(t, errdefs.ErrWorkspaceNotFound.Is(err))

	err = g.RemoveWorkspace(ctx, "missing")
	assert.True(t, errdefs.ErrWorkspaceNotFound.Is(err))
}

func TestGlobalRoutesThroughBothLevels(t *testing.T) {
	ctx := context.Background()
	manifest, err := registry.OpenWorkspaceManifest(filepath.Join(t.TempDir(), "workspaces.json"))
	require.NoError(t, err)

	g := NewGlobal(manifest, workspaceDeployers(t))
	require.Equal(t, types.Started, g.Start(ctx).Outcome)
	defer g.Stop(ctx)

	_, err = g.ConnectWorkspace(ctx, types.WorkspaceRecord{
		ID: "w1", Name: "alpha", ProjectRoot: t.TempDir(),
		Hosting: &types.DeploymentConfig{Strategy: types.DeployInline},
	})
	require.NoError(t, err)

	proxy := client.NewGlobalClient(rpc.NewLoopback(g.Dispatcher().Dispatch))

	wsProxy := proxy.Workspace("w1")
	names, err := wsProxy.ListConnectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"demo"}, names)

	instID, err := wsProxy.CreateInstallation(ctx,
		types.InstallationSpec{Connector: "demo", Name: "prod"},
		types.DeploymentConfig{Strategy: types.DeployInProcess})
	require.NoError(t, err)

	info := wsProxy.Installation(instID).Describe(ctx)
	assert.Equal(t, "demo", info.Connector)

	_, err = proxy.Workspace("ghost").ListConnectors(ctx)
	assert.Equal(t, "rpc.node_not_found", errdefs.Code(err))
}
