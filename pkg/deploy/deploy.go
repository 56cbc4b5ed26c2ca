package deploy

import (
	"context"
	"sort"
	"sync"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/lifecycle"
	"github.com/maxsync/max/pkg/supervisor"
	"github.com/maxsync/max/pkg/types"
)

// Deployer materialises a node of one technology. S is the node's spec
// shape (installation spec, workspace record), C the supervised client the
// parent holds onto afterwards. The returned handle is unlabelled; the
// parent's supervisor stamps the id on registration.
type Deployer[S any, C lifecycle.Supervised] interface {
	Kind() types.DeployerKind

	// Create builds a fresh node from the spec. Deployers that only attach
	// to nodes hosted elsewhere fail with federation.create_unsupported.
	Create(ctx context.Context, cfg types.DeploymentConfig, spec S) (supervisor.UnlabelledHandle[C], error)

	// Connect reattaches to an already-running node from its persisted
	// record
	Connect(ctx context.Context, cfg types.DeploymentConfig, spec S) (supervisor.UnlabelledHandle[C], error)

	// Teardown releases the deployment behind a locator
	Teardown(ctx context.Context, cfg types.DeploymentConfig, locator string) error
}

// Registry routes deployment configs to deployers by strategy
type Registry[S any, C lifecycle.Supervised] struct {
	mu    sync.RWMutex
	kinds map[types.DeployerKind]Deployer[S, C]
}

// NewRegistry creates an empty deployer registry
func NewRegistry[S any, C lifecycle.Supervised]() *Registry[S, C] {
	return &Registry[S, C]{kinds: make(map[types.DeployerKind]Deployer[S, C])}
}

// Register adds a deployer under its kind, replacing any previous one
func (r *Registry[S, C]) Register(d Deployer[S, C]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[d.Kind()] = d
}

// Get returns the deployer for a strategy
func (r *Registry[S, C]) Get(kind types.DeployerKind) (Deployer[S, C], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.kinds[kind]
	if !ok {
		return nil, errdefs.ErrUnknownDeployer.New(errdefs.Props{"strategy": string(kind)})
	}
	return d, nil
}

// Kinds enumerates registered strategies, sorted
func (r *Registry[S, C]) Kinds() []types.DeployerKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.DeployerKind, 0, len(r.kinds))
	for kind := range r.kinds {
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
