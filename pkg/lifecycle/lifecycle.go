package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/maxsync/max/pkg/log"
	"github.com/maxsync/max/pkg/types"
)

// Step is one start/stop pair of a manual lifecycle
type Step struct {
	Name  string
	Start func(ctx context.Context) error
	Stop  func(ctx context.Context) error
}

// Lifecycle runs an ordered list of steps: start walks forward once, stop
// walks the started prefix in reverse and may run repeatedly.
type Lifecycle struct {
	mu      sync.Mutex
	steps   []Step
	started int // number of steps successfully started
	running bool
}

// New creates a manual lifecycle from explicit step pairs
func New(steps ...Step) *Lifecycle {
	return &Lifecycle{steps: steps}
}

// Running reports whether the lifecycle is currently started
func (l *Lifecycle) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Start runs every step in order. A second call is a no-op reporting
// already_running. If a step fails, the started prefix is stopped in
// reverse and the failure is reported.
func (l *Lifecycle) Start(ctx context.Context) types.StartResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return types.StartAlreadyRunning()
	}

	for i, step := range l.steps {
		if step.Start == nil {
			l.started = i + 1
			continue
		}
		if err := step.Start(ctx); err != nil {
			log.WithComponent("lifecycle").Error().
				Err(err).Str("step", step.Name).Msg("start step failed, unwinding")
			l.unwind(ctx, i)
			return types.StartError(fmt.Errorf("step %s: %w", step.Name, err))
		}
		l.started = i + 1
	}

	l.running = true
	return types.StartOK()
}

// Stop runs the started steps in reverse registration order. Stop failures
// are logged and do not halt the walk.
func (l *Lifecycle) Stop(ctx context.Context) types.StopResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running && l.started == 0 {
		return types.StopAlreadyStopped()
	}

	l.unwind(ctx, l.started)
	l.running = false
	return types.StopOK()
}

func (l *Lifecycle) unwind(ctx context.Context, count int) {
	for i := count - 1; i >= 0; i-- {
		step := l.steps[i]
		if step.Stop == nil {
			continue
		}
		if err := step.Stop(ctx); err != nil {
			log.WithComponent("lifecycle").Error().
				Err(err).Str("step", step.Name).Msg("stop step failed")
		}
	}
	l.started = 0
}
