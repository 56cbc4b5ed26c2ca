package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maxsync/max/pkg/connector"
	"github.com/maxsync/max/pkg/engine"
	"github.com/maxsync/max/pkg/lifecycle"
	"github.com/maxsync/max/pkg/log"
	"github.com/maxsync/max/pkg/metrics"
	"github.com/maxsync/max/pkg/storage"
	"github.com/maxsync/max/pkg/types"
)

const (
	defaultConcurrency  = 1
	defaultPollInterval = 250 * time.Millisecond
	settleProbeInterval = 25 * time.Millisecond
)

// Executor drains the persistent task graph. Workers claim the oldest
// runnable task, run it through the Runner, insert any follow-up tasks
// and settle the claimed task, letting the store cascade completion and
// failure through the graph.
type Executor struct {
	store       storage.TaskStore
	runner      *Runner
	eng         engine.Engine
	concurrency int
	poll        time.Duration
	logger      *zerolog.Logger

	mu        sync.Mutex
	startedAt map[types.SyncID]time.Time
	settled   map[types.SyncID]types.SyncCompletion

	lc     *lifecycle.Lifecycle
	cancel context.CancelFunc
	wake   chan struct{}
	wg     sync.WaitGroup
}

// Option tunes an executor
type Option func(*Executor)

// WithConcurrency sets the number of drain workers
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithPollInterval sets how often idle workers re-check the queue
func WithPollInterval(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.poll = d
		}
	}
}

// New creates an executor over a task store, an engine and a resolver
func New(store storage.TaskStore, eng engine.Engine, resolver *connector.Resolver, opts ...Option) *Executor {
	e := &Executor{
		store:       store,
		runner:      NewRunner(eng, resolver),
		eng:         eng,
		concurrency: defaultConcurrency,
		poll:        defaultPollInterval,
		logger:      log.WithComponent("executor"),
		startedAt:   map[types.SyncID]time.Time{},
		settled:     map[types.SyncID]types.SyncCompletion{},
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.lc = lifecycle.New(lifecycle.Step{
		Name:  "executor-workers",
		Start: e.spawn,
		Stop:  e.halt,
	})
	return e
}

// Health reports healthy while the drain workers are running
func (e *Executor) Health(ctx context.Context) types.HealthStatus {
	if !e.lc.Running() {
		return types.UnhealthyStatus("workers stopped")
	}
	return types.HealthyStatus()
}

// Start launches the drain workers (idempotent)
func (e *Executor) Start(ctx context.Context) types.StartResult {
	return e.lc.Start(ctx)
}

// Stop halts the drain workers, letting in-flight tasks finish
func (e *Executor) Stop(ctx context.Context) types.StopResult {
	return e.lc.Stop(ctx)
}

func (e *Executor) spawn(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	for range e.concurrency {
		e.wg.Add(1)
		go e.worker(runCtx)
	}
	return nil
}

func (e *Executor) halt(ctx context.Context) error {
	e.cancel()
	e.wg.Wait()
	return nil
}

// Execute enqueues a plan as a new sync, returning a handle for steering
// and observation.
func (e *Executor) Execute(ctx context.Context, plan types.SyncPlan) (*Handle, error) {
	syncID := types.SyncID(uuid.NewString())
	tasks := ExpandPlan(plan, syncID)
	if err := e.store.Insert(ctx, tasks); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.startedAt[syncID] = time.Now()
	e.mu.Unlock()

	log.WithSyncID(string(syncID)).Info().
		Int("steps", len(plan.Steps)).
		Msg("sync enqueued")
	e.kick()
	return &Handle{SyncID: syncID, exec: e}, nil
}

// Attach returns a handle for a sync already in the store, for example
// after a restart. Reads through the handle surface sync_not_found when
// the id never existed.
func (e *Executor) Attach(syncID types.SyncID) *Handle {
	return &Handle{SyncID: syncID, exec: e}
}

// kick nudges an idle worker without blocking
func (e *Executor) kick() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Executor) worker(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()
	for {
		e.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		case <-ticker.C:
		}
	}
}

// drain claims and runs tasks until the queue has nothing runnable
func (e *Executor) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		task, ok, err := e.store.Claim(ctx, time.Now())
		if err != nil {
			e.logger.Error().Err(err).Msg("claim failed")
			return
		}
		if !ok {
			return
		}
		e.runOne(ctx, task)
	}
}

func (e *Executor) runOne(ctx context.Context, task types.Task) {
	logger := log.WithTaskID(string(task.ID))

	children, err := e.runner.Run(ctx, task)
	if err != nil {
		logger.Warn().Err(err).
			Str("kind", string(task.Payload.Kind)).
			Msg("task failed")
		if failErr := e.store.Fail(ctx, task.ID, err); failErr != nil {
			logger.Error().Err(failErr).Msg("failed to settle task as failed")
		}
		metrics.SyncTasksTotal.WithLabelValues(string(types.TaskFailed)).Inc()
		e.observeIfSettled(ctx, task.SyncID)
		return
	}

	if len(children) > 0 {
		if err := e.store.Insert(ctx, children); err != nil {
			logger.Error().Err(err).Msg("failed to insert follow-up tasks")
			e.store.Fail(ctx, task.ID, err)
			e.observeIfSettled(ctx, task.SyncID)
			return
		}
	}

	if err := e.settle(ctx, task); err != nil {
		logger.Error().Err(err).Msg("failed to settle task")
		return
	}
	e.observeIfSettled(ctx, task.SyncID)
	e.kick()
}

// settle moves a successfully run task to completed, or parks it awaiting
// children when any of its children are still open. The store decides
// atomically so concurrent workers completing children cannot race it.
func (e *Executor) settle(ctx context.Context, task types.Task) error {
	state, err := e.store.Settle(ctx, task.ID)
	if err != nil {
		return err
	}
	if state == types.TaskCompleted {
		metrics.SyncTasksTotal.WithLabelValues(string(types.TaskCompleted)).Inc()
	}
	return nil
}

// observeIfSettled records the sync's completion once no task remains open
func (e *Executor) observeIfSettled(ctx context.Context, syncID types.SyncID) {
	counts, err := e.store.Counts(ctx, syncID)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to count sync tasks")
		return
	}
	if openTasks(counts) > 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, done := e.settled[syncID]; done {
		return
	}
	status := finalStatus(counts)
	completion := types.SyncCompletion{
		Status:         status,
		TasksCompleted: counts[types.TaskCompleted],
		TasksFailed:    counts[types.TaskFailed],
	}
	if startedAt, ok := e.startedAt[syncID]; ok {
		elapsed := time.Since(startedAt)
		completion.Duration = types.DurationOf(elapsed)
		metrics.SyncDuration.Observe(elapsed.Seconds())
		delete(e.startedAt, syncID)
	}
	e.settled[syncID] = completion
	metrics.SyncsTotal.WithLabelValues(string(status)).Inc()

	log.WithSyncID(string(syncID)).Info().
		Str("status", string(status)).
		Int("completed", completion.TasksCompleted).
		Int("failed", completion.TasksFailed).
		Msg("sync settled")
}

func openTasks(counts map[types.TaskState]int) int {
	open := 0
	for state, n := range counts {
		if !state.IsTerminal() {
			open += n
		}
	}
	return open
}

// finalStatus derives the settled status of a sync from its task counts
func finalStatus(counts map[types.TaskState]int) types.SyncStatus {
	switch {
	case counts[types.TaskFailed] > 0:
		return types.SyncFailed
	case counts[types.TaskCancelled] > 0:
		return types.SyncCancelled
	default:
		return types.SyncCompleted
	}
}

// liveStatus derives the observable status of a possibly running sync
func liveStatus(counts map[types.TaskState]int) types.SyncStatus {
	if openTasks(counts) == 0 {
		return finalStatus(counts)
	}
	if counts[types.TaskPaused] > 0 && counts[types.TaskRunning] == 0 && counts[types.TaskPending] == 0 {
		return types.SyncPaused
	}
	return types.SyncRunning
}
