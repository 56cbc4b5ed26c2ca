package storage

import (
	"context"
	"time"

	"github.com/maxsync/max/pkg/types"
)

// TaskStore is the persistent task graph behind the sync executor. Tasks
// are ordered by insertion; Claim hands out the oldest runnable pending
// task and owns all state transitions together with Complete, Fail and
// the sync-wide operations.
type TaskStore interface {
	// Insert persists tasks in slice order. IDs must be pre-assigned;
	// CreatedAt is stamped and an empty State defaults to pending.
	Insert(ctx context.Context, tasks []types.Task) error

	// Claim atomically picks the oldest pending task whose notBefore has
	// passed and whose blockers have all completed, moving it to running.
	// The second return is false when nothing is runnable.
	Claim(ctx context.Context, now time.Time) (types.Task, bool, error)

	// Settle moves a task that finished running to its resting state in
	// one transaction: completed (with the cascade up the parent chain)
	// when every child has already settled, awaiting_children otherwise.
	// The resulting state is returned; a task another path already
	// settled is returned as is.
	Settle(ctx context.Context, id types.TaskID) (types.TaskState, error)

	// Complete settles a running or awaiting task and cascades completion
	// up the parent chain
	Complete(ctx context.Context, id types.TaskID) error

	// Fail settles a task with its error, fails ancestors and cancels the
	// sync's remaining queued tasks
	Fail(ctx context.Context, id types.TaskID, cause error) error

	// Retry requeues a failed task with a delay before it may be claimed
	Retry(ctx context.Context, id types.TaskID, delay time.Duration) error

	Get(ctx context.Context, id types.TaskID) (types.Task, error)
	FindBySync(ctx context.Context, syncID types.SyncID) ([]types.Task, error)
	FindByParent(ctx context.Context, parent types.TaskID) ([]types.Task, error)

	// Counts tallies a sync's tasks by state
	Counts(ctx context.Context, syncID types.SyncID) (map[types.TaskState]int, error)

	// PauseSync parks a sync's pending tasks; ResumeSync requeues them;
	// CancelSync settles every non-terminal task as cancelled. Each
	// returns how many tasks changed state.
	PauseSync(ctx context.Context, syncID types.SyncID) (int, error)
	ResumeSync(ctx context.Context, syncID types.SyncID) (int, error)
	CancelSync(ctx context.Context, syncID types.SyncID) (int, error)
}
