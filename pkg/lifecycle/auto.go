package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/maxsync/max/pkg/types"
)

// Dependency is one entry of an auto-composed lifecycle: either a single
// supervised unit or a group of units started concurrently.
type Dependency struct {
	Name  string
	Unit  Supervised
	Group []Dependency
}

// Dep wraps a single supervised dependency
func Dep(name string, unit Supervised) Dependency {
	return Dependency{Name: name, Unit: unit}
}

// Concurrent groups dependencies that start (and stop) in parallel
func Concurrent(deps ...Dependency) Dependency {
	return Dependency{Group: deps}
}

// Auto composes a lifecycle from a dependency list. Entries run
// sequentially in declaration order; nested groups run concurrently.
// Start walks forward; stop walks the reverse order with groups still
// parallel.
func Auto(deps ...Dependency) *Lifecycle {
	steps := make([]Step, 0, len(deps))
	for _, dep := range deps {
		steps = append(steps, dep.step())
	}
	return New(steps...)
}

func (d Dependency) step() Step {
	if len(d.Group) == 0 {
		unit := d.Unit
		return Step{
			Name: d.Name,
			Start: func(ctx context.Context) error {
				return startUnit(ctx, d.Name, unit)
			},
			Stop: func(ctx context.Context) error {
				return stopUnit(ctx, d.Name, unit)
			},
		}
	}

	group := d.Group
	return Step{
		Name: "group",
		Start: func(ctx context.Context) error {
			return eachConcurrent(group, func(dep Dependency) error {
				return dep.step().Start(ctx)
			})
		},
		Stop: func(ctx context.Context) error {
			return eachConcurrent(group, func(dep Dependency) error {
				return dep.step().Stop(ctx)
			})
		},
	}
}

func startUnit(ctx context.Context, name string, unit Supervised) error {
	result := unit.Start(ctx)
	switch result.Outcome {
	case types.Started, types.AlreadyRunning:
		return nil
	case types.StartRefused:
		return fmt.Errorf("%s refused to start: %s", name, result.Reason)
	default:
		if result.Err != nil {
			return fmt.Errorf("%s failed to start: %w", name, result.Err)
		}
		return fmt.Errorf("%s failed to start", name)
	}
}

func stopUnit(ctx context.Context, name string, unit Supervised) error {
	result := unit.Stop(ctx)
	if result.Outcome == types.StopErrored && result.Err != nil {
		return fmt.Errorf("%s failed to stop: %w", name, result.Err)
	}
	return nil
}

func eachConcurrent(deps []Dependency, fn func(Dependency) error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(deps))
	for i, dep := range deps {
		wg.Add(1)
		go func(i int, dep Dependency) {
			defer wg.Done()
			errs[i] = fn(dep)
		}(i, dep)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
