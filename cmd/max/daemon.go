package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/maxsync/max/pkg/client"
	"github.com/maxsync/max/pkg/connector"
	"github.com/maxsync/max/pkg/connector/static"
	"github.com/maxsync/max/pkg/deploy"
	"github.com/maxsync/max/pkg/federation"
	"github.com/maxsync/max/pkg/log"
	"github.com/maxsync/max/pkg/registry"
	"github.com/maxsync/max/pkg/rpc"
	"github.com/maxsync/max/pkg/types"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Serve the current project's workspace over its unix socket",
	Long: `Register the project as a workspace (first run) and serve it as a
daemon: installations are reconnected from the project registry and the
workspace RPC surface is exposed on the per-workspace unix socket under
~/.max/workspaces/<id>/.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().String("project-root", "", "Project root (default: current directory)")
	daemonCmd.Flags().String("name", "", "Workspace name when registering (default: directory name)")
	daemonCmd.Flags().String("http", "", "Also serve RPC over HTTP on this address")
	daemonCmd.Flags().Bool("dev", false, "Log human-readable to stdout instead of the daemon log")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	projectRoot, _ := cmd.Flags().GetString("project-root")
	if projectRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		projectRoot = cwd
	}
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return err
	}

	record, err := registerWorkspace(cmd, projectRoot)
	if err != nil {
		return err
	}
	paths, err := registry.DaemonPathsFor(record.ID)
	if err != nil {
		return err
	}

	dev, _ := cmd.Flags().GetBool("dev")
	if dev || os.Getenv("MAX_DEV") != "" {
		log.Init(log.Config{Level: log.DebugLevel})
	} else {
		logFile, err := os.OpenFile(paths.Log, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open daemon log: %w", err)
		}
		defer logFile.Close()
		log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: logFile})
	}

	if err := os.WriteFile(paths.PID, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(paths.PID)

	ws, err := buildWorkspace(record)
	if err != nil {
		return err
	}
	if result := ws.Start(ctx); result.Outcome == types.StartErrored {
		if result.Err != nil {
			return result.Err
		}
		return fmt.Errorf("workspace failed to start")
	}
	reconnectInstallations(ctx, ws)

	eventSub := ws.Events().Subscribe()
	defer ws.Events().Unsubscribe(eventSub)
	go func() {
		for event := range eventSub {
			log.WithComponent("daemon").Info().
				Str("event", string(event.Type)).
				Str("installation", string(event.Installation)).
				Msg(event.Message)
		}
	}()

	server := rpc.NewSocketServer(paths.Socket, ws.Dispatcher().Dispatch)
	if err := server.Start(); err != nil {
		ws.Stop(context.Background())
		return err
	}
	fmt.Printf("✓ Workspace '%s' (%s)\n", record.Name, record.ID)
	fmt.Printf("✓ Listening on %s\n", paths.Socket)

	var httpServer *rpc.HTTPServer
	if httpAddr, _ := cmd.Flags().GetString("http"); httpAddr != "" {
		httpServer = rpc.NewHTTPServer(ws.Dispatcher().Dispatch)
		if err := httpServer.Start(httpAddr); err != nil {
			server.Stop()
			ws.Stop(context.Background())
			return err
		}
		fmt.Printf("✓ HTTP on %s\n", httpServer.Addr())
	}

	fmt.Println()
	fmt.Println("Daemon is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nShutting down...")

	server.Stop()
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		httpServer.Stop(shutdownCtx)
		cancel()
	}
	ws.Stop(context.Background())
	fmt.Println("✓ Shutdown complete")
	return nil
}

// registerWorkspace finds the project's workspace in the global manifest,
// registering a fresh one on first run.
func registerWorkspace(cmd *cobra.Command, projectRoot string) (types.WorkspaceRecord, error) {
	path, err := registry.GlobalManifestPath()
	if err != nil {
		return types.WorkspaceRecord{}, err
	}
	manifest, err := registry.OpenWorkspaceManifest(path)
	if err != nil {
		return types.WorkspaceRecord{}, err
	}

	for _, record := range manifest.List() {
		if record.ProjectRoot == projectRoot {
			return record, nil
		}
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = filepath.Base(projectRoot)
	}
	record := types.WorkspaceRecord{
		ID:          types.WorkspaceID(uuid.NewString()),
		Name:        name,
		ProjectRoot: projectRoot,
		Hosting:     &types.DeploymentConfig{Strategy: types.DeploySubprocess},
	}
	if err := manifest.Put(record); err != nil {
		return types.WorkspaceRecord{}, err
	}
	return record, nil
}

func buildWorkspace(record types.WorkspaceRecord) (*federation.WorkspaceMax, error) {
	reg, err := registry.OpenInstallationRegistry(record.ProjectRoot)
	if err != nil {
		return nil, err
	}
	connectors := builtinConnectors()
	return federation.NewWorkspace(reg, connectors, installationDeployers(connectors, reg)), nil
}

// builtinConnectors is the compiled-in connector catalogue
func builtinConnectors() *connector.Registry {
	r := connector.NewRegistry()
	r.Register(static.Name, static.Factory)
	return r
}

// installationDeployers wires every deployment strategy. In-process and
// inline build nodes from the catalogue; subprocess and remote attach
// installation proxies over their transports.
func installationDeployers(connectors *connector.Registry, reg *registry.InstallationRegistry) *federation.InstallationDeployers {
	build := func(ctx context.Context, spec types.InstallationSpec) (client.InstallationAPI, error) {
		c, err := connectors.Get(spec.Connector)
		if err != nil {
			return nil, err
		}
		inst, err := c.Connect(ctx, spec)
		if err != nil {
			return nil, err
		}
		return federation.NewInstallation(inst, c.Schema(), reg.DataDir(spec.Name)), nil
	}
	proxy := func(t rpc.Transport) client.InstallationAPI {
		return client.NewInstallationClient(t)
	}

	deployers := deploy.NewRegistry[types.InstallationSpec, client.InstallationAPI]()
	deployers.Register(deploy.NewInline(build))
	deployers.Register(deploy.NewInProcess(build))
	deployers.Register(deploy.NewSubprocess[types.InstallationSpec](proxy))
	deployers.Register(deploy.NewRemote[types.InstallationSpec](proxy))
	deployers.Register(deploy.NewDocker[types.InstallationSpec, client.InstallationAPI]())
	return deployers
}

// reconnectInstallations re-materialises persisted installations that are
// not yet live. Failures are logged; aggregate health reports them.
func reconnectInstallations(ctx context.Context, ws *federation.WorkspaceMax) {
	records, _ := ws.ListInstallations(ctx)
	for _, record := range records {
		if _, err := ws.Installation(record.ID); err == nil {
			continue
		}
		id, err := ws.ConnectInstallation(ctx, record)
		if err != nil {
			log.WithComponent("daemon").Warn().Err(err).
				Str("installation", record.Name).
				Msg("failed to reconnect installation")
			continue
		}
		if api, err := ws.Installation(id); err == nil {
			api.Start(ctx)
		}
	}
}
