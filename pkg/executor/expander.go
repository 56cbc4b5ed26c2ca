package executor

import (
	"github.com/google/uuid"

	"github.com/maxsync/max/pkg/types"
)

// ExpandPlan materialises a seeded plan into the initial task rows of one
// sync: a sync-group root that settles when the whole sync settles, and
// one sync-step task per plan step, each blocked on its predecessor so
// steps run strictly in order.
func ExpandPlan(plan types.SyncPlan, syncID types.SyncID) []types.Task {
	root := types.Task{
		ID:      types.TaskID(uuid.NewString()),
		SyncID:  syncID,
		Payload: types.SyncGroupPayload(),
	}
	tasks := []types.Task{root}

	var prev types.TaskID
	for _, step := range plan.Steps {
		task := types.Task{
			ID:       types.TaskID(uuid.NewString()),
			SyncID:   syncID,
			Payload:  types.SyncStepPayload(step),
			ParentID: root.ID,
		}
		if prev != "" {
			task.BlockedBy = []types.TaskID{prev}
		}
		tasks = append(tasks, task)
		prev = task.ID
	}
	return tasks
}
