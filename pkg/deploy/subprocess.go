package deploy

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/lifecycle"
	"github.com/maxsync/max/pkg/log"
	"github.com/maxsync/max/pkg/rpc"
	"github.com/maxsync/max/pkg/supervisor"
	"github.com/maxsync/max/pkg/types"
)

// ProxyFunc wraps a transport in the node's typed client
type ProxyFunc[C lifecycle.Supervised] func(t rpc.Transport) C

const defaultSpawnTimeout = 10 * time.Second

// SubprocessDeployer spawns the node as a child process serving its
// dispatcher on a unix socket. The socket path doubles as the locator, so
// Connect can reattach to a daemon that outlived its parent.
type SubprocessDeployer[S any, C lifecycle.Supervised] struct {
	proxy        ProxyFunc[C]
	spawnTimeout time.Duration
}

// NewSubprocess creates a subprocess deployer. The proxy turns the dialed
// socket into the node's client.
func NewSubprocess[S any, C lifecycle.Supervised](proxy ProxyFunc[C]) *SubprocessDeployer[S, C] {
	return &SubprocessDeployer[S, C]{proxy: proxy, spawnTimeout: defaultSpawnTimeout}
}

func (d *SubprocessDeployer[S, C]) Kind() types.DeployerKind { return types.DeploySubprocess }

func (d *SubprocessDeployer[S, C]) Create(ctx context.Context, cfg types.DeploymentConfig, spec S) (supervisor.UnlabelledHandle[C], error) {
	var zero supervisor.UnlabelledHandle[C]
	if len(cfg.Command) == 0 || cfg.SocketPath == "" {
		return zero, errdefs.ErrBadArguments.New(errdefs.Props{
			"target": "deploy", "method": "create",
			"detail": "subprocess deployment needs command and socketPath",
		})
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return zero, errdefs.ErrTransportFailed.New(errdefs.Props{
			"detail": fmt.Sprintf("spawn %s: %v", cfg.Command[0], err),
		})
	}
	log.WithComponent("deploy").Info().
		Str("command", cfg.Command[0]).
		Int("pid", cmd.Process.Pid).
		Str("socket", cfg.SocketPath).
		Msg("spawned subprocess node")

	// The daemon detaches; reaping is its own problem, not the parent's
	go cmd.Wait()

	client, err := d.dial(ctx, cfg.SocketPath)
	if err != nil {
		return zero, err
	}
	return supervisor.UnlabelledHandle[C]{Kind: types.DeploySubprocess, Client: client, Locator: cfg.SocketPath}, nil
}

func (d *SubprocessDeployer[S, C]) Connect(ctx context.Context, cfg types.DeploymentConfig, spec S) (supervisor.UnlabelledHandle[C], error) {
	var zero supervisor.UnlabelledHandle[C]
	path := cfg.SocketPath
	if path == "" {
		return zero, errdefs.ErrBadArguments.New(errdefs.Props{
			"target": "deploy", "method": "connect",
			"detail": "subprocess reattach needs socketPath",
		})
	}
	client, err := d.dial(ctx, path)
	if err != nil {
		return zero, err
	}
	return supervisor.UnlabelledHandle[C]{Kind: types.DeploySubprocess, Client: client, Locator: path}, nil
}

// Teardown removes the socket file. The process itself is stopped through
// the client's lifecycle before teardown.
func (d *SubprocessDeployer[S, C]) Teardown(ctx context.Context, cfg types.DeploymentConfig, locator string) error {
	if locator == "" {
		return nil
	}
	if err := os.Remove(locator); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// dial waits for the socket to appear then connects. A fresh daemon needs
// a moment between spawn and bind.
func (d *SubprocessDeployer[S, C]) dial(ctx context.Context, path string) (C, error) {
	var zero C
	deadline := time.Now().Add(d.spawnTimeout)
	for {
		socket, err := rpc.DialSocket(path)
		if err == nil {
			return d.proxy(socket), nil
		}
		if time.Now().After(deadline) {
			return zero, errdefs.ErrTransportFailed.New(errdefs.Props{
				"detail": fmt.Sprintf("socket %s did not come up: %v", path, err),
			})
		}
		select {
		case <-ctx.Done():
			return zero, errdefs.ErrTransportTimeout.New(errdefs.Props{"requestId": "dial"})
		case <-time.After(50 * time.Millisecond):
		}
	}
}
