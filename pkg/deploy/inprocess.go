package deploy

import (
	"context"

	"github.com/maxsync/max/pkg/lifecycle"
	"github.com/maxsync/max/pkg/supervisor"
	"github.com/maxsync/max/pkg/types"
)

// BuildFunc constructs a node directly in this process
type BuildFunc[S any, C lifecycle.Supervised] func(ctx context.Context, spec S) (C, error)

// InlineDeployer wraps a build function as the inline test scaffold kind
type InlineDeployer[S any, C lifecycle.Supervised] struct {
	build BuildFunc[S, C]
}

// NewInline creates an inline deployer around a build function
func NewInline[S any, C lifecycle.Supervised](build BuildFunc[S, C]) *InlineDeployer[S, C] {
	return &InlineDeployer[S, C]{build: build}
}

func (d *InlineDeployer[S, C]) Kind() types.DeployerKind { return types.DeployInline }

func (d *InlineDeployer[S, C]) Create(ctx context.Context, cfg types.DeploymentConfig, spec S) (supervisor.UnlabelledHandle[C], error) {
	client, err := d.build(ctx, spec)
	if err != nil {
		return supervisor.UnlabelledHandle[C]{}, err
	}
	return supervisor.UnlabelledHandle[C]{Kind: types.DeployInline, Client: client, Locator: "inline"}, nil
}

func (d *InlineDeployer[S, C]) Connect(ctx context.Context, cfg types.DeploymentConfig, spec S) (supervisor.UnlabelledHandle[C], error) {
	return d.Create(ctx, cfg, spec)
}

func (d *InlineDeployer[S, C]) Teardown(ctx context.Context, cfg types.DeploymentConfig, locator string) error {
	return nil
}

// InProcessDeployer builds nodes in the parent's process. The node lives
// and dies with the parent, so reattach re-materialises it from the spec;
// the persisted record is authoritative and the node's data dir carries
// its state across restarts.
type InProcessDeployer[S any, C lifecycle.Supervised] struct {
	build BuildFunc[S, C]
}

// NewInProcess creates an in-process deployer around a build function
func NewInProcess[S any, C lifecycle.Supervised](build BuildFunc[S, C]) *InProcessDeployer[S, C] {
	return &InProcessDeployer[S, C]{build: build}
}

func (d *InProcessDeployer[S, C]) Kind() types.DeployerKind { return types.DeployInProcess }

func (d *InProcessDeployer[S, C]) Create(ctx context.Context, cfg types.DeploymentConfig, spec S) (supervisor.UnlabelledHandle[C], error) {
	client, err := d.build(ctx, spec)
	if err != nil {
		return supervisor.UnlabelledHandle[C]{}, err
	}
	return supervisor.UnlabelledHandle[C]{Kind: types.DeployInProcess, Client: client, Locator: "in-process"}, nil
}

func (d *InProcessDeployer[S, C]) Connect(ctx context.Context, cfg types.DeploymentConfig, spec S) (supervisor.UnlabelledHandle[C], error) {
	return d.Create(ctx, cfg, spec)
}

func (d *InProcessDeployer[S, C]) Teardown(ctx context.Context, cfg types.DeploymentConfig, locator string) error {
	return nil
}
