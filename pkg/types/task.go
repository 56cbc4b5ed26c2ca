package types

import (
	"time"

	"github.com/maxsync/max/pkg/errdefs"
)

// TaskState is the persistent state of a task. Transitions are monotonic
// except for the explicit paused -> pending resume edge:
//
//	new -> pending -> running -> {completed | failed | awaiting_children}
//	awaiting_children -> {completed | failed}   (once every child settles)
//	{pending, running, awaiting_children} -> paused -> pending
//	any non-terminal -> cancelled
type TaskState string

const (
	TaskNew               TaskState = "new"
	TaskPending           TaskState = "pending"
	TaskRunning           TaskState = "running"
	TaskCompleted         TaskState = "completed"
	TaskFailed            TaskState = "failed"
	TaskAwaitingChildren  TaskState = "awaiting_children"
	TaskPaused            TaskState = "paused"
	TaskCancelled         TaskState = "cancelled"
)

// IsTerminal reports whether the state is final
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// PayloadKind discriminates the four task payload shapes
type PayloadKind string

const (
	PayloadLoadFields     PayloadKind = "load-fields"
	PayloadLoadCollection PayloadKind = "load-collection"
	PayloadSyncStep       PayloadKind = "sync-step"
	PayloadSyncGroup      PayloadKind = "sync-group"
)

// TaskPayload is the work description carried by a task. Exactly one shape
// is populated, selected by Kind.
type TaskPayload struct {
	Kind PayloadKind `json:"kind"`

	// load-fields: load Fields of Refs through Loader
	Refs   []RefKey   `json:"refs,omitempty"`
	Loader LoaderName `json:"loader,omitempty"`
	Fields []string   `json:"fields,omitempty"`

	// load-collection: load the Field collection of Parent
	Parent RefKey `json:"parent,omitempty"`
	Field  string `json:"field,omitempty"`

	// sync-step: the serialized step descriptor
	Step *Step `json:"step,omitempty"`

	// pagination cursor carried by forAll resolution and collection continuations
	Cursor string `json:"cursor,omitempty"`
}

// LoadFieldsPayload builds a load-fields payload
func LoadFieldsPayload(refs []RefKey, loader LoaderName, fields []string) TaskPayload {
	return TaskPayload{Kind: PayloadLoadFields, Refs: refs, Loader: loader, Fields: fields}
}

// LoadCollectionPayload builds a load-collection payload
func LoadCollectionPayload(parent RefKey, field, cursor string) TaskPayload {
	return TaskPayload{Kind: PayloadLoadCollection, Parent: parent, Field: field, Cursor: cursor}
}

// SyncStepPayload builds a sync-step payload
func SyncStepPayload(step Step) TaskPayload {
	return TaskPayload{Kind: PayloadSyncStep, Step: &step}
}

// SyncGroupPayload builds a sync-group aggregation payload
func SyncGroupPayload() TaskPayload {
	return TaskPayload{Kind: PayloadSyncGroup}
}

// Task is the persistent unit of work inside a sync
type Task struct {
	ID          TaskID         `json:"id"`
	SyncID      SyncID         `json:"syncId"`
	State       TaskState      `json:"state"`
	Payload     TaskPayload    `json:"payload"`
	ParentID    TaskID         `json:"parentId,omitempty"`
	BlockedBy   []TaskID       `json:"blockedBy,omitempty"`
	NotBefore   *time.Time     `json:"notBefore,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Error       *errdefs.Error `json:"error,omitempty"`
}

// Claimable reports whether the task may be picked up at now
func (t *Task) Claimable(now time.Time) bool {
	if t.State != TaskPending {
		return false
	}
	if t.NotBefore != nil && now.Before(*t.NotBefore) {
		return false
	}
	return true
}
