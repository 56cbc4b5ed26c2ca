package lifecycle

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxsync/max/pkg/log"
	"github.com/maxsync/max/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
}

// recorder tracks start/stop invocations across units
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// fakeUnit is a Supervised test double backed by its own run-once lifecycle
type fakeUnit struct {
	name string
	rec  *recorder
	lc   *Lifecycle
}

func newFakeUnit(name string, rec *recorder) *fakeUnit {
	u := &fakeUnit{name: name, rec: rec}
	u.lc = New(Step{
		Name: name,
		Start: func(ctx context.Context) error {
			rec.add("start:" + name)
			return nil
		},
		Stop: func(ctx context.Context) error {
			rec.add("stop:" + name)
			return nil
		},
	})
	return u
}

func (u *fakeUnit) Health(ctx context.Context) types.HealthStatus {
	return types.HealthyStatus()
}

func (u *fakeUnit) Start(ctx context.Context) types.StartResult {
	return u.lc.Start(ctx)
}

func (u *fakeUnit) Stop(ctx context.Context) types.StopResult {
	return u.lc.Stop(ctx)
}

func TestStartIsRunOnce(t *testing.T) {
	rec := &recorder{}
	lc := New(Step{
		Name: "db",
		Start: func(ctx context.Context) error {
			rec.add("start:db")
			return nil
		},
		Stop: func(ctx context.Context) error {
			rec.add("stop:db")
			return nil
		},
	})

	first := lc.Start(context.Background())
	assert.Equal(t, types.Started, first.Outcome)

	second := lc.Start(context.Background())
	assert.Equal(t, types.AlreadyRunning, second.Outcome)

	// exactly one underlying start invocation
	assert.Equal(t, []string{"start:db"}, rec.snapshot())
}

func TestStopReversesStartOrder(t *testing.T) {
	rec := &recorder{}
	step := func(name string) Step {
		return Step{
			Name:  name,
			Start: func(ctx context.Context) error { rec.add("start:" + name); return nil },
			Stop:  func(ctx context.Context) error { rec.add("stop:" + name); return nil },
		}
	}

	lc := New(step("a"), step("b"), step("c"))
	require.Equal(t, types.Started, lc.Start(context.Background()).Outcome)
	require.Equal(t, types.Stopped, lc.Stop(context.Background()).Outcome)

	assert.Equal(t, []string{
		"start:a", "start:b", "start:c",
		"stop:c", "stop:b", "stop:a",
	}, rec.snapshot())
}

func TestStopOnStoppedLifecycle(t *testing.T) {
	lc := New()
	assert.Equal(t, types.AlreadyStopped, lc.Stop(context.Background()).Outcome)
}

func TestFailedStartUnwindsPrefix(t *testing.T) {
	rec := &recorder{}
	lc := New(
		Step{
			Name:  "a",
			Start: func(ctx context.Context) error { rec.add("start:a"); return nil },
			Stop:  func(ctx context.Context) error { rec.add("stop:a"); return nil },
		},
		Step{
			Name:  "b",
			Start: func(ctx context.Context) error { return fmt.Errorf("no disk") },
			Stop:  func(ctx context.Context) error { rec.add("stop:b"); return nil },
		},
	)

	result := lc.Start(context.Background())
	require.Equal(t, types.StartErrored, result.Outcome)
	assert.False(t, lc.Running())

	// a was started, so a is stopped; b never started
	assert.Equal(t, []string{"start:a", "stop:a"}, rec.snapshot())
}

func TestAutoLifecycleOrdering(t *testing.T) {
	rec := &recorder{}
	a := newFakeUnit("a", rec)
	b := newFakeUnit("b", rec)
	c := newFakeUnit("c", rec)
	d := newFakeUnit("d", rec)

	lc := Auto(
		Dep("a", a),
		Concurrent(Dep("b", b), Dep("c", c)),
		Dep("d", d),
	)

	require.Equal(t, types.Started, lc.Start(context.Background()).Outcome)
	require.Equal(t, types.Stopped, lc.Stop(context.Background()).Outcome)

	events := rec.snapshot()
	require.Len(t, events, 8)

	index := map[string]int{}
	for i, e := range events {
		index[e] = i
	}

	// start: a before {b,c}, {b,c} before d
	assert.Less(t, index["start:a"], index["start:b"])
	assert.Less(t, index["start:a"], index["start:c"])
	assert.Less(t, index["start:b"], index["start:d"])
	assert.Less(t, index["start:c"], index["start:d"])

	// stop: d before {b,c}, {b,c} before a
	assert.Less(t, index["stop:d"], index["stop:b"])
	assert.Less(t, index["stop:d"], index["stop:c"])
	assert.Less(t, index["stop:b"], index["stop:a"])
	assert.Less(t, index["stop:c"], index["stop:a"])
}

func TestAutoLifecycleStartFailureAborts(t *testing.T) {
	rec := &recorder{}
	a := newFakeUnit("a", rec)

	failing := &failingUnit{}
	lc := Auto(Dep("a", a), Dep("broken", failing))

	result := lc.Start(context.Background())
	require.Equal(t, types.StartErrored, result.Outcome)

	// the started prefix was unwound
	events := rec.snapshot()
	assert.Contains(t, events, "start:a")
	assert.Contains(t, events, "stop:a")
}

type failingUnit struct{}

func (f *failingUnit) Health(ctx context.Context) types.HealthStatus {
	return types.UnhealthyStatus("broken")
}

func (f *failingUnit) Start(ctx context.Context) types.StartResult {
	return types.StartError(fmt.Errorf("refused by hardware"))
}

func (f *failingUnit) Stop(ctx context.Context) types.StopResult {
	return types.StopOK()
}

func TestConcurrentGroupActuallyOverlaps(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0

	unit := func(name string) Step {
		return Step{
			Name: name,
			Start: func(ctx context.Context) error {
				mu.Lock()
				inFlight++
				if inFlight > peak {
					peak = inFlight
				}
				mu.Unlock()
				time.Sleep(20 * time.Millisecond)
				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			},
		}
	}

	lc := New(Dependency{Group: []Dependency{
		{Name: "x", Unit: stepUnit{unit("x")}},
		{Name: "y", Unit: stepUnit{unit("y")}},
	}}.step())

	require.Equal(t, types.Started, lc.Start(context.Background()).Outcome)
	assert.Equal(t, 2, peak)
}

// stepUnit adapts a bare Step to Supervised for group tests
type stepUnit struct{ s Step }

func (u stepUnit) Health(ctx context.Context) types.HealthStatus {
	return types.HealthyStatus()
}

func (u stepUnit) Start(ctx context.Context) types.StartResult {
	if err := u.s.Start(ctx); err != nil {
		return types.StartError(err)
	}
	return types.StartOK()
}

func (u stepUnit) Stop(ctx context.Context) types.StopResult {
	return types.StopOK()
}
