package connector

import (
	"sort"
	"sync"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/types"
)

// Factory lazily constructs a connector
type Factory func() (Connector, error)

// Registry is the per-workspace catalogue of available connectors.
// Construction is lazy and the cache is write-once per name.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	cache     map[string]Connector
}

// NewRegistry creates an empty connector registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		cache:     make(map[string]Connector),
	}
}

// Register adds a connector factory under a name
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// List enumerates registered connector names, sorted
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the connector by name, constructing it on first use
func (r *Registry) Get(name string) (Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cache[name]; ok {
		return c, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, errdefs.ErrUnknownConnector.New(errdefs.Props{"connector": name})
	}
	c, err := factory()
	if err != nil {
		return nil, errdefs.ErrConnectorFailed.Annotate(err, errdefs.Props{
			"connector": name,
			"detail":    err.Error(),
		})
	}
	r.cache[name] = c
	return c, nil
}

// Schema returns a connector's schema by name
func (r *Registry) Schema(name string) (types.Schema, error) {
	c, err := r.Get(name)
	if err != nil {
		return types.Schema{}, err
	}
	return c.Schema(), nil
}

// Onboarding returns a connector's onboarding flow by name
func (r *Registry) Onboarding(name string) (Onboarding, error) {
	c, err := r.Get(name)
	if err != nil {
		return Onboarding{}, err
	}
	return c.Onboarding(), nil
}
