package executor

import (
	"context"
	"time"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/types"
)

// Handle steers and observes one sync. It is a thin view over the task
// store; every read derives from the persisted graph, so handles survive
// whatever happens to the in-memory executor.
type Handle struct {
	SyncID types.SyncID

	exec *Executor
}

// Status reports the sync's live status and its task counts
func (h *Handle) Status(ctx context.Context) (types.SyncStatus, map[types.TaskState]int, error) {
	counts, err := h.counts(ctx)
	if err != nil {
		return "", nil, err
	}
	return liveStatus(counts), counts, nil
}

// Pause parks the sync's pending tasks. Running tasks finish; nothing new
// is claimed until Resume.
func (h *Handle) Pause(ctx context.Context) (int, error) {
	return h.exec.store.PauseSync(ctx, h.SyncID)
}

// Resume requeues the sync's paused tasks
func (h *Handle) Resume(ctx context.Context) (int, error) {
	changed, err := h.exec.store.ResumeSync(ctx, h.SyncID)
	if err == nil {
		h.exec.kick()
	}
	return changed, err
}

// Cancel settles every open task of the sync as cancelled
func (h *Handle) Cancel(ctx context.Context) (int, error) {
	changed, err := h.exec.store.CancelSync(ctx, h.SyncID)
	if err != nil {
		return 0, err
	}
	h.exec.observeIfSettled(ctx, h.SyncID)
	return changed, nil
}

// Completion blocks until the sync settles, returning its final result.
// It derives from the store, so it also resolves syncs that settled while
// nobody was watching.
func (h *Handle) Completion(ctx context.Context) (types.SyncCompletion, error) {
	ticker := time.NewTicker(settleProbeInterval)
	defer ticker.Stop()
	for {
		h.exec.mu.Lock()
		completion, done := h.exec.settled[h.SyncID]
		h.exec.mu.Unlock()
		if done {
			return completion, nil
		}

		counts, err := h.counts(ctx)
		if err != nil {
			return types.SyncCompletion{}, err
		}
		if openTasks(counts) == 0 {
			// settled before this executor instance was watching
			return types.SyncCompletion{
				Status:         finalStatus(counts),
				TasksCompleted: counts[types.TaskCompleted],
				TasksFailed:    counts[types.TaskFailed],
			}, nil
		}

		select {
		case <-ctx.Done():
			return types.SyncCompletion{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *Handle) counts(ctx context.Context) (map[types.TaskState]int, error) {
	counts, err := h.exec.store.Counts(ctx, h.SyncID)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, errdefs.ErrSyncNotFound.New(errdefs.Props{"syncId": string(h.SyncID)})
	}
	return counts, nil
}
