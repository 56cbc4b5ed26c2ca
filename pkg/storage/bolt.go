package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/lifecycle"
	"github.com/maxsync/max/pkg/types"
)

var (
	bucketTasks   = []byte("tasks")
	bucketTaskIDs = []byte("task_ids")
)

// BoltTaskStore implements TaskStore using BoltDB. Tasks are stored as
// JSON under monotonically increasing sequence keys, which gives Claim its
// oldest-first order; a second bucket maps task IDs back to sequence keys.
type BoltTaskStore struct {
	path string

	mu sync.RWMutex
	db *bolt.DB

	lc *lifecycle.Lifecycle
}

// NewBoltTaskStore creates a task store persisting at dataDir/tasks.db
func NewBoltTaskStore(dataDir string) *BoltTaskStore {
	s := &BoltTaskStore{path: filepath.Join(dataDir, "tasks.db")}
	s.lc = lifecycle.New(lifecycle.Step{
		Name:  "task-db",
		Start: s.open,
		Stop:  s.close,
	})
	return s
}

// Health reports healthy while the database is open
func (s *BoltTaskStore) Health(ctx context.Context) types.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return types.UnhealthyStatus("database closed")
	}
	return types.HealthyStatus()
}

// Start opens the database (idempotent)
func (s *BoltTaskStore) Start(ctx context.Context) types.StartResult {
	return s.lc.Start(ctx)
}

// Stop closes the database
func (s *BoltTaskStore) Stop(ctx context.Context) types.StopResult {
	return s.lc.Stop(ctx)
}

func (s *BoltTaskStore) open(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create task store directory: %w", err)
	}
	db, err := bolt.Open(s.path, 0o600, nil)
	if err != nil {
		return fmt.Errorf("failed to open task database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketTasks, bucketTaskIDs} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return err
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	return nil
}

func (s *BoltTaskStore) close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BoltTaskStore) database() (*bolt.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errdefs.ErrStorageUnavailable.New(errdefs.Props{"detail": "task store not started"})
	}
	return s.db, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func putTask(tx *bolt.Tx, key []byte, task types.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	return tx.Bucket(bucketTasks).Put(key, data)
}

func getTask(tx *bolt.Tx, id types.TaskID) (types.Task, []byte, error) {
	key := tx.Bucket(bucketTaskIDs).Get([]byte(id))
	if key == nil {
		return types.Task{}, nil, errdefs.ErrTaskNotFound.New(errdefs.Props{"taskId": string(id)})
	}
	data := tx.Bucket(bucketTasks).Get(key)
	if data == nil {
		return types.Task{}, nil, errdefs.ErrTaskNotFound.New(errdefs.Props{"taskId": string(id)})
	}
	var task types.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return types.Task{}, nil, fmt.Errorf("corrupt task %s: %w", id, err)
	}
	return task, key, nil
}

// Insert persists tasks in slice order under fresh sequence keys
func (s *BoltTaskStore) Insert(ctx context.Context, tasks []types.Task) error {
	db, err := s.database()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		index := tx.Bucket(bucketTaskIDs)
		for _, task := range tasks {
			if task.ID == "" {
				return errdefs.ErrInvalidTransition.New(errdefs.Props{
					"taskId": "", "from": "", "to": string(types.TaskPending),
				})
			}
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			if task.State == "" {
				task.State = types.TaskPending
			}
			task.CreatedAt = now
			key := seqKey(seq)
			if err := putTask(tx, key, task); err != nil {
				return err
			}
			if err := index.Put([]byte(task.ID), key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Claim picks the oldest runnable pending task and moves it to running
func (s *BoltTaskStore) Claim(ctx context.Context, now time.Time) (types.Task, bool, error) {
	db, err := s.database()
	if err != nil {
		return types.Task{}, false, err
	}
	var claimed types.Task
	var found bool
	err = db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTasks).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var task types.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return fmt.Errorf("corrupt task at %x: %w", k, err)
			}
			if !task.Claimable(now) {
				continue
			}
			runnable, err := blockersDone(tx, task.BlockedBy)
			if err != nil {
				return err
			}
			if !runnable {
				continue
			}
			task.State = types.TaskRunning
			if err := putTask(tx, k, task); err != nil {
				return err
			}
			claimed, found = task, true
			return nil
		}
		return nil
	})
	return claimed, found, err
}

func blockersDone(tx *bolt.Tx, blockers []types.TaskID) (bool, error) {
	for _, id := range blockers {
		blocker, _, err := getTask(tx, id)
		if err != nil {
			return false, err
		}
		if blocker.State != types.TaskCompleted {
			return false, nil
		}
	}
	return true, nil
}

// Settle parks a running task as awaiting_children while any child is
// still open, or completes it and cascades. The children check and the
// state write share one transaction, so a child completing concurrently
// can never strand the parent in awaiting_children.
func (s *BoltTaskStore) Settle(ctx context.Context, id types.TaskID) (types.TaskState, error) {
	db, err := s.database()
	if err != nil {
		return "", err
	}
	var state types.TaskState
	err = db.Update(func(tx *bolt.Tx) error {
		task, key, err := getTask(tx, id)
		if err != nil {
			return err
		}
		if task.State.IsTerminal() {
			// lost a race with fail-fast or cancel; leave it settled
			state = task.State
			return nil
		}
		if task.State != types.TaskRunning && task.State != types.TaskAwaitingChildren {
			return errdefs.ErrInvalidTransition.New(errdefs.Props{
				"taskId": string(id), "from": string(task.State), "to": string(types.TaskCompleted),
			})
		}

		open, err := openChildren(tx, id)
		if err != nil {
			return err
		}
		if open {
			task.State = types.TaskAwaitingChildren
			state = task.State
			return putTask(tx, key, task)
		}

		now := time.Now().UTC()
		task.State = types.TaskCompleted
		task.CompletedAt = &now
		state = task.State
		if err := putTask(tx, key, task); err != nil {
			return err
		}
		return completeAncestors(tx, task.ParentID)
	})
	return state, err
}

func openChildren(tx *bolt.Tx, parentID types.TaskID) (bool, error) {
	open := false
	err := tx.Bucket(bucketTasks).ForEach(func(k, v []byte) error {
		var task types.Task
		if err := json.Unmarshal(v, &task); err != nil {
			return fmt.Errorf("corrupt task at %x: %w", k, err)
		}
		if task.ParentID == parentID && !task.State.IsTerminal() {
			open = true
		}
		return nil
	})
	return open, err
}

// Complete settles a task and cascades completion up the parent chain
func (s *BoltTaskStore) Complete(ctx context.Context, id types.TaskID) error {
	db, err := s.database()
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		task, key, err := getTask(tx, id)
		if err != nil {
			return err
		}
		if task.State != types.TaskRunning && task.State != types.TaskAwaitingChildren {
			return errdefs.ErrInvalidTransition.New(errdefs.Props{
				"taskId": string(id), "from": string(task.State), "to": string(types.TaskCompleted),
			})
		}
		now := time.Now().UTC()
		task.State = types.TaskCompleted
		task.CompletedAt = &now
		if err := putTask(tx, key, task); err != nil {
			return err
		}
		return completeAncestors(tx, task.ParentID)
	})
}

// completeAncestors walks up from a settled task: an awaiting parent whose
// children have all completed completes too, recursively.
func completeAncestors(tx *bolt.Tx, parentID types.TaskID) error {
	for parentID != "" {
		parent, key, err := getTask(tx, parentID)
		if err != nil {
			return err
		}
		if parent.State != types.TaskAwaitingChildren {
			return nil
		}
		allDone, err := childrenCompleted(tx, parentID)
		if err != nil {
			return err
		}
		if !allDone {
			return nil
		}
		now := time.Now().UTC()
		parent.State = types.TaskCompleted
		parent.CompletedAt = &now
		if err := putTask(tx, key, parent); err != nil {
			return err
		}
		parentID = parent.ParentID
	}
	return nil
}

func childrenCompleted(tx *bolt.Tx, parentID types.TaskID) (bool, error) {
	done := true
	err := tx.Bucket(bucketTasks).ForEach(func(k, v []byte) error {
		var task types.Task
		if err := json.Unmarshal(v, &task); err != nil {
			return fmt.Errorf("corrupt task at %x: %w", k, err)
		}
		if task.ParentID == parentID && task.State != types.TaskCompleted {
			done = false
		}
		return nil
	})
	return done, err
}

// Fail settles a task with its error, fails its ancestor chain and
// cancels the sync's remaining queued tasks. Tasks already running are
// left to finish.
func (s *BoltTaskStore) Fail(ctx context.Context, id types.TaskID, cause error) error {
	db, err := s.database()
	if err != nil {
		return err
	}
	wireErr := toWireError(cause)
	return db.Update(func(tx *bolt.Tx) error {
		task, key, err := getTask(tx, id)
		if err != nil {
			return err
		}
		if task.State.IsTerminal() {
			return errdefs.ErrInvalidTransition.New(errdefs.Props{
				"taskId": string(id), "from": string(task.State), "to": string(types.TaskFailed),
			})
		}
		now := time.Now().UTC()
		task.State = types.TaskFailed
		task.CompletedAt = &now
		task.Error = wireErr
		if err := putTask(tx, key, task); err != nil {
			return err
		}

		// fail-fast: the whole ancestor chain settles as failed
		ancestors := map[types.TaskID]bool{}
		for parentID := task.ParentID; parentID != ""; {
			parent, pkey, err := getTask(tx, parentID)
			if err != nil {
				return err
			}
			if parent.State.IsTerminal() {
				break
			}
			parent.State = types.TaskFailed
			parent.CompletedAt = &now
			parent.Error = wireErr
			if err := putTask(tx, pkey, parent); err != nil {
				return err
			}
			ancestors[parentID] = true
			parentID = parent.ParentID
		}

		// cancel the rest of the sync's queue
		return tx.Bucket(bucketTasks).ForEach(func(k, v []byte) error {
			var other types.Task
			if err := json.Unmarshal(v, &other); err != nil {
				return fmt.Errorf("corrupt task at %x: %w", k, err)
			}
			if other.SyncID != task.SyncID || other.ID == task.ID || ancestors[other.ID] {
				return nil
			}
			switch other.State {
			case types.TaskNew, types.TaskPending, types.TaskPaused, types.TaskAwaitingChildren:
				other.State = types.TaskCancelled
				other.CompletedAt = &now
				return putTask(tx, k, other)
			default:
				return nil
			}
		})
	})
}

// Retry requeues a failed task after a delay
func (s *BoltTaskStore) Retry(ctx context.Context, id types.TaskID, delay time.Duration) error {
	db, err := s.database()
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		task, key, err := getTask(tx, id)
		if err != nil {
			return err
		}
		if task.State != types.TaskFailed {
			return errdefs.ErrInvalidTransition.New(errdefs.Props{
				"taskId": string(id), "from": string(task.State), "to": string(types.TaskPending),
			})
		}
		notBefore := time.Now().UTC().Add(delay)
		task.State = types.TaskPending
		task.NotBefore = &notBefore
		task.CompletedAt = nil
		task.Error = nil
		return putTask(tx, key, task)
	})
}

// Get looks up one task by ID
func (s *BoltTaskStore) Get(ctx context.Context, id types.TaskID) (types.Task, error) {
	db, err := s.database()
	if err != nil {
		return types.Task{}, err
	}
	var task types.Task
	err = db.View(func(tx *bolt.Tx) error {
		found, _, err := getTask(tx, id)
		task = found
		return err
	})
	return task, err
}

// FindBySync lists a sync's tasks in insertion order
func (s *BoltTaskStore) FindBySync(ctx context.Context, syncID types.SyncID) ([]types.Task, error) {
	return s.filter(func(task types.Task) bool { return task.SyncID == syncID })
}

// FindByParent lists a task's children in insertion order
func (s *BoltTaskStore) FindByParent(ctx context.Context, parent types.TaskID) ([]types.Task, error) {
	return s.filter(func(task types.Task) bool { return task.ParentID == parent })
}

func (s *BoltTaskStore) filter(keep func(types.Task) bool) ([]types.Task, error) {
	db, err := s.database()
	if err != nil {
		return nil, err
	}
	var out []types.Task
	err = db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).ForEach(func(k, v []byte) error {
			var task types.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return fmt.Errorf("corrupt task at %x: %w", k, err)
			}
			if keep(task) {
				out = append(out, task)
			}
			return nil
		})
	})
	return out, err
}

// Counts tallies a sync's tasks by state
func (s *BoltTaskStore) Counts(ctx context.Context, syncID types.SyncID) (map[types.TaskState]int, error) {
	tasks, err := s.FindBySync(ctx, syncID)
	if err != nil {
		return nil, err
	}
	counts := map[types.TaskState]int{}
	for _, task := range tasks {
		counts[task.State]++
	}
	return counts, nil
}

// PauseSync parks every pending task of a sync
func (s *BoltTaskStore) PauseSync(ctx context.Context, syncID types.SyncID) (int, error) {
	return s.sweep(syncID, func(task *types.Task, now time.Time) bool {
		if task.State != types.TaskPending {
			return false
		}
		task.State = types.TaskPaused
		return true
	})
}

// ResumeSync requeues every paused task of a sync
func (s *BoltTaskStore) ResumeSync(ctx context.Context, syncID types.SyncID) (int, error) {
	return s.sweep(syncID, func(task *types.Task, now time.Time) bool {
		if task.State != types.TaskPaused {
			return false
		}
		task.State = types.TaskPending
		return true
	})
}

// CancelSync settles every non-terminal task of a sync as cancelled
func (s *BoltTaskStore) CancelSync(ctx context.Context, syncID types.SyncID) (int, error) {
	return s.sweep(syncID, func(task *types.Task, now time.Time) bool {
		if task.State.IsTerminal() {
			return false
		}
		task.State = types.TaskCancelled
		task.CompletedAt = &now
		return true
	})
}

func (s *BoltTaskStore) sweep(syncID types.SyncID, change func(*types.Task, time.Time) bool) (int, error) {
	db, err := s.database()
	if err != nil {
		return 0, err
	}
	changed := 0
	now := time.Now().UTC()
	err = db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTasks).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var task types.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return fmt.Errorf("corrupt task at %x: %w", k, err)
			}
			if task.SyncID != syncID || !change(&task, now) {
				continue
			}
			if err := putTask(tx, k, task); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	return changed, err
}

func toWireError(err error) *errdefs.Error {
	if e, ok := errdefs.As(err); ok {
		return e
	}
	return &errdefs.Error{Code: "platform.internal", Message: err.Error()}
}
