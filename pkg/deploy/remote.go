package deploy

import (
	"context"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/lifecycle"
	"github.com/maxsync/max/pkg/rpc"
	"github.com/maxsync/max/pkg/supervisor"
	"github.com/maxsync/max/pkg/types"
)

// RemoteDeployer attaches to nodes served over HTTP somewhere else. It
// never creates or tears down anything; the remote side owns its own
// lifecycle and this parent only holds a client.
type RemoteDeployer[S any, C lifecycle.Supervised] struct {
	proxy ProxyFunc[C]
}

// NewRemote creates a remote deployer around a proxy constructor
func NewRemote[S any, C lifecycle.Supervised](proxy ProxyFunc[C]) *RemoteDeployer[S, C] {
	return &RemoteDeployer[S, C]{proxy: proxy}
}

func (d *RemoteDeployer[S, C]) Kind() types.DeployerKind { return types.DeployRemote }

func (d *RemoteDeployer[S, C]) Create(ctx context.Context, cfg types.DeploymentConfig, spec S) (supervisor.UnlabelledHandle[C], error) {
	return supervisor.UnlabelledHandle[C]{}, errdefs.ErrCreateUnsupported.New(errdefs.Props{
		"strategy": string(types.DeployRemote),
	})
}

func (d *RemoteDeployer[S, C]) Connect(ctx context.Context, cfg types.DeploymentConfig, spec S) (supervisor.UnlabelledHandle[C], error) {
	if cfg.URL == "" {
		return supervisor.UnlabelledHandle[C]{}, errdefs.ErrBadArguments.New(errdefs.Props{
			"target": "deploy", "method": "connect",
			"detail": "remote deployment needs url",
		})
	}
	client := d.proxy(rpc.NewHTTPTransport(cfg.URL))
	return supervisor.UnlabelledHandle[C]{Kind: types.DeployRemote, Client: client, Locator: cfg.URL}, nil
}

func (d *RemoteDeployer[S, C]) Teardown(ctx context.Context, cfg types.DeploymentConfig, locator string) error {
	return nil
}

// DockerDeployer is a registered placeholder. Every operation reports
// not-implemented so configs naming the strategy fail cleanly instead of
// falling through to unknown_deployer.
type DockerDeployer[S any, C lifecycle.Supervised] struct{}

// NewDocker creates the docker placeholder deployer
func NewDocker[S any, C lifecycle.Supervised]() *DockerDeployer[S, C] {
	return &DockerDeployer[S, C]{}
}

func (d *DockerDeployer[S, C]) Kind() types.DeployerKind { return types.DeployDocker }

func (d *DockerDeployer[S, C]) Create(ctx context.Context, cfg types.DeploymentConfig, spec S) (supervisor.UnlabelledHandle[C], error) {
	return supervisor.UnlabelledHandle[C]{}, errdefs.ErrDeployerNotImplemented.New(errdefs.Props{
		"strategy": string(types.DeployDocker),
	})
}

func (d *DockerDeployer[S, C]) Connect(ctx context.Context, cfg types.DeploymentConfig, spec S) (supervisor.UnlabelledHandle[C], error) {
	return supervisor.UnlabelledHandle[C]{}, errdefs.ErrDeployerNotImplemented.New(errdefs.Props{
		"strategy": string(types.DeployDocker),
	})
}

func (d *DockerDeployer[S, C]) Teardown(ctx context.Context, cfg types.DeploymentConfig, locator string) error {
	return errdefs.ErrDeployerNotImplemented.New(errdefs.Props{
		"strategy": string(types.DeployDocker),
	})
}
