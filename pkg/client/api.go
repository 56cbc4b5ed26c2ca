package client

import (
	"context"

	"github.com/maxsync/max/pkg/connector"
	"github.com/maxsync/max/pkg/engine"
	"github.com/maxsync/max/pkg/lifecycle"
	"github.com/maxsync/max/pkg/types"
)

// The node APIs. Each interface is implemented twice: by the real node in
// pkg/federation and by a proxy in this package forwarding over a
// transport. Adding a method means touching the interface, the proxy and
// the dispatcher table together; the roundtrip tests catch a missed case.

// InstallationAPI is the surface an installation node exposes: lifecycle,
// its engine, self-description and sync steering.
type InstallationAPI interface {
	lifecycle.Supervised

	Describe(ctx context.Context) types.InstallationInfo
	Schema(ctx context.Context) types.Schema
	Engine() engine.Engine

	// Sync starts a sync and returns its id; the sync* methods steer it
	Sync(ctx context.Context) (types.SyncID, error)
	SyncStatus(ctx context.Context, syncID types.SyncID) (types.SyncStatus, error)
	SyncPause(ctx context.Context, syncID types.SyncID) error
	SyncResume(ctx context.Context, syncID types.SyncID) error
	SyncCancel(ctx context.Context, syncID types.SyncID) error
	SyncCompletion(ctx context.Context, syncID types.SyncID) (types.SyncCompletion, error)
}

// WorkspaceAPI is the surface a workspace node exposes: installation
// management and connector queries.
type WorkspaceAPI interface {
	lifecycle.Supervised

	ListInstallations(ctx context.Context) ([]types.InstallationRecord, error)
	CreateInstallation(ctx context.Context, spec types.InstallationSpec, deployment types.DeploymentConfig) (types.InstallationID, error)
	ConnectInstallation(ctx context.Context, record types.InstallationRecord) (types.InstallationID, error)
	RemoveInstallation(ctx context.Context, id types.InstallationID) error

	ListConnectors(ctx context.Context) ([]string, error)
	ConnectorSchema(ctx context.Context, name string) (types.Schema, error)
	ConnectorOnboarding(ctx context.Context, name string) (connector.Onboarding, error)
}

// GlobalAPI is the surface the global node exposes: workspace management
type GlobalAPI interface {
	lifecycle.Supervised

	ListWorkspaces(ctx context.Context) ([]types.WorkspaceRecord, error)
	ConnectWorkspace(ctx context.Context, record types.WorkspaceRecord) (types.WorkspaceID, error)
	RemoveWorkspace(ctx context.Context, id types.WorkspaceID) error
}
