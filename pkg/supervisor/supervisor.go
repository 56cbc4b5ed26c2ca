package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/maxsync/max/pkg/lifecycle"
	"github.com/maxsync/max/pkg/log"
	"github.com/maxsync/max/pkg/types"
)

// UnlabelledHandle is a freshly deployed child before the supervisor stamps
// an id on registration.
type UnlabelledHandle[C lifecycle.Supervised] struct {
	Kind    types.DeployerKind
	Client  C
	Locator string
}

// Handle is a parent's opaque view of a registered child node. The
// supervisor exclusively owns its children's handles.
type Handle[ID ~string, C lifecycle.Supervised] struct {
	ID      ID
	Kind    types.DeployerKind
	Client  C
	Locator string
}

// Supervisor is the in-memory registry of live child handles, keyed by id
// and enumerable in registration order.
type Supervisor[ID ~string, C lifecycle.Supervised] struct {
	mu      sync.RWMutex
	order   []ID
	handles map[ID]*Handle[ID, C]
	genID   func() ID
}

// New creates a supervisor with an injected id generator
func New[ID ~string, C lifecycle.Supervised](genID func() ID) *Supervisor[ID, C] {
	return &Supervisor[ID, C]{
		handles: make(map[ID]*Handle[ID, C]),
		genID:   genID,
	}
}

// Register stamps an id on the handle (generating one if id is empty) and
// records it. Registering an id twice is an error.
func (s *Supervisor[ID, C]) Register(h UnlabelledHandle[C], id ID) (*Handle[ID, C], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = s.genID()
	}
	if _, exists := s.handles[id]; exists {
		return nil, fmt.Errorf("handle %s already registered", string(id))
	}

	handle := &Handle[ID, C]{
		ID:      id,
		Kind:    h.Kind,
		Client:  h.Client,
		Locator: h.Locator,
	}
	s.handles[id] = handle
	s.order = append(s.order, id)
	return handle, nil
}

// Unregister removes a handle. Removing an unknown id is a no-op returning
// false.
func (s *Supervisor[ID, C]) Unregister(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.handles[id]; !exists {
		return false
	}
	delete(s.handles, id)
	for i, have := range s.order {
		if have == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Get looks up a handle by id
func (s *Supervisor[ID, C]) Get(id ID) (*Handle[ID, C], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[id]
	return h, ok
}

// List enumerates handles in registration order
func (s *Supervisor[ID, C]) List() []*Handle[ID, C] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Handle[ID, C], 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.handles[id])
	}
	return out
}

// Len returns the number of registered children
func (s *Supervisor[ID, C]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// Health aggregates children health: healthy iff all children healthy (or
// none), unhealthy iff all unhealthy, degraded otherwise. A child whose
// probe panics contributes unhealthy("unreachable") and never propagates.
func (s *Supervisor[ID, C]) Health(ctx context.Context) types.HealthStatus {
	children := s.List()
	if len(children) == 0 {
		return types.HealthyStatus()
	}

	healthy, unhealthy := 0, 0
	for _, child := range children {
		status := probe(ctx, child.Client)
		switch status.Status {
		case types.Healthy:
			healthy++
		case types.Unhealthy:
			unhealthy++
		}
	}

	switch {
	case healthy == len(children):
		return types.HealthyStatus()
	case unhealthy == len(children):
		return types.UnhealthyStatus("all children unhealthy")
	default:
		return types.DegradedStatus(fmt.Sprintf("%d of %d children healthy", healthy, len(children)))
	}
}

// StartAll starts children in registration order. Failures are logged, not
// propagated; aggregate health reports them.
func (s *Supervisor[ID, C]) StartAll(ctx context.Context) {
	for _, child := range s.List() {
		result := child.Client.Start(ctx)
		if result.Outcome == types.StartErrored || result.Outcome == types.StartRefused {
			log.WithComponent("supervisor").Error().
				Str("child_id", string(child.ID)).
				Str("outcome", string(result.Outcome)).
				Str("reason", result.Reason).
				Msg("child failed to start")
		}
	}
}

// StopAll stops children in reverse registration order
func (s *Supervisor[ID, C]) StopAll(ctx context.Context) {
	children := s.List()
	for i := len(children) - 1; i >= 0; i-- {
		result := children[i].Client.Stop(ctx)
		if result.Outcome == types.StopErrored {
			log.WithComponent("supervisor").Error().
				Str("child_id", string(children[i].ID)).
				Msg("child failed to stop")
		}
	}
}

func probe[C lifecycle.Supervised](ctx context.Context, client C) (status types.HealthStatus) {
	defer func() {
		if r := recover(); r != nil {
			status = types.UnhealthyStatus("unreachable")
		}
	}()
	return client.Health(ctx)
}
