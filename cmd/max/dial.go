package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/maxsync/max/pkg/client"
	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/registry"
	"github.com/maxsync/max/pkg/rpc"
	"github.com/maxsync/max/pkg/target"
	"github.com/maxsync/max/pkg/types"
)

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

// currentTarget resolves the --target flag against the ambient target
// (MAX_TARGET or the local global node).
func currentTarget(cmd *cobra.Command) (target.Target, error) {
	raw, _ := cmd.Flags().GetString("target")
	base, err := target.Default()
	if err != nil {
		return target.Target{}, err
	}
	return target.Resolve(base, raw)
}

// workspaceByProjectRoot finds the workspace registered for a project root
// in the global manifest.
func workspaceByProjectRoot(root string) (types.WorkspaceID, error) {
	path, err := registry.GlobalManifestPath()
	if err != nil {
		return "", err
	}
	manifest, err := registry.OpenWorkspaceManifest(path)
	if err != nil {
		return "", err
	}
	for _, record := range manifest.List() {
		if record.ProjectRoot == root {
			return record.ID, nil
		}
	}
	return "", errdefs.ErrNoWorkspace.New(errdefs.Props{"projectRoot": root})
}

// dialWorkspace connects a workspace proxy for the command's target. With
// no workspace segment the current directory's registered workspace is
// used. A local host dials the workspace daemon socket; any other host is
// an HTTP global node and requests are scoped to the workspace.
func dialWorkspace(cmd *cobra.Command) (*client.WorkspaceClient, io.Closer, error) {
	t, err := currentTarget(cmd)
	if err != nil {
		return nil, nil, err
	}

	workspaceID := t.Workspace
	if workspaceID == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, nil, err
		}
		workspaceID, err = workspaceByProjectRoot(cwd)
		if err != nil {
			return nil, nil, err
		}
	}

	if t.Host != target.GlobalHost {
		transport := rpc.NewHTTPTransport("http://" + t.Host)
		scoped := rpc.WithScope(transport, rpc.RouteScope{WorkspaceID: workspaceID})
		return client.NewWorkspaceClient(scoped), noopCloser{}, nil
	}

	paths, err := registry.DaemonPathsFor(workspaceID)
	if err != nil {
		return nil, nil, err
	}
	sock, err := rpc.DialSocket(paths.Socket)
	if err != nil {
		return nil, nil, errdefs.ErrDaemonNotRunning.Annotate(err, errdefs.Props{
			"workspaceId": string(workspaceID),
		})
	}
	return client.NewWorkspaceClient(sock), sock, nil
}

// resolveInstallation matches a user-supplied argument against the
// workspace's installations, by id first and then by unique name.
func resolveInstallation(ctx context.Context, ws *client.WorkspaceClient, arg string) (types.InstallationRecord, error) {
	records, err := ws.ListInstallations(ctx)
	if err != nil {
		return types.InstallationRecord{}, err
	}
	for _, record := range records {
		if string(record.ID) == arg {
			return record, nil
		}
	}
	for _, record := range records {
		if record.Name == arg {
			return record, nil
		}
	}
	return types.InstallationRecord{}, errdefs.ErrInstallationNotFound.New(errdefs.Props{
		"installationId": arg,
	})
}
