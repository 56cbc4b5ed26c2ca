package storage

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/log"
	"github.com/maxsync/max/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
}

func startStore(t *testing.T) *BoltTaskStore {
	t.Helper()
	s := NewBoltTaskStore(t.TempDir())
	require.Equal(t, types.Started, s.Start(context.Background()).Outcome)
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s
}

func newTask(syncID types.SyncID) types.Task {
	return types.Task{
		ID:      types.TaskID(uuid.NewString()),
		SyncID:  syncID,
		Payload: types.SyncGroupPayload(),
	}
}

func TestInsertAndGet(t *testing.T) {
	s := startStore(t)
	ctx := context.Background()

	task := newTask("s1")
	require.NoError(t, s.Insert(ctx, []types.Task{task}))

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskPending, got.State)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.Get(ctx, "missing")
	assert.True(t, errdefs.Has(err, errdefs.NotFound))
}

func TestClaimOldestFirst(t *testing.T) {
	s := startStore(t)
	ctx := context.Background()

	first := newTask("s1")
	second := newTask("s1")
	require.NoError(t, s.Insert(ctx, []types.Task{first, second}))

	claimed, ok, err := s.Claim(ctx, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, types.TaskRunning, claimed.State)

	claimed, ok, err = s.Claim(ctx, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.ID, claimed.ID)

	_, ok, err = s.Claim(ctx, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaimRespectsNotBefore(t *testing.T) {
	s := startStore(t)
	ctx := context.Background()

	later := time.Now().Add(time.Hour)
	task := newTask("s1")
	task.NotBefore = &later
	require.NoError(t, s.Insert(ctx, []types.Task{task}))

	_, ok, err := s.Claim(ctx, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	claimed, ok, err := s.Claim(ctx, later.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, task.ID, claimed.ID)
}

func TestClaimRespectsBlockers(t *testing.T) {
	s := startStore(t)
	ctx := context.Background()

	blocker := newTask("s1")
	blocked := newTask("s1")
	blocked.BlockedBy = []types.TaskID{blocker.ID}
	require.NoError(t, s.Insert(ctx, []types.Task{blocked, blocker}))

	// the blocked task is older but not runnable
	claimed, ok, err := s.Claim(ctx, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, blocker.ID, claimed.ID)

	_, ok, err = s.Claim(ctx, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Complete(ctx, blocker.ID))

	claimed, ok, err = s.Claim(ctx, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, blocked.ID, claimed.ID)
}

func TestCompleteCascadesToParent(t *testing.T) {
	s := startStore(t)
	ctx := context.Background()

	root := newTask("s1")
	childA := newTask("s1")
	childA.ParentID = root.ID
	childB := newTask("s1")
	childB.ParentID = root.ID
	require.NoError(t, s.Insert(ctx, []types.Task{root, childA, childB}))

	// claim and park the root, then run the children
	_, _, err := s.Claim(ctx, time.Now())
	require.NoError(t, err)
	state, err := s.Settle(ctx, root.ID)
	require.NoError(t, err)
	require.Equal(t, types.TaskAwaitingChildren, state)

	_, _, err = s.Claim(ctx, time.Now())
	require.NoError(t, err)
	_, _, err = s.Claim(ctx, time.Now())
	require.NoError(t, err)

	require.NoError(t, s.Complete(ctx, childA.ID))
	got, err := s.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskAwaitingChildren, got.State)

	require.NoError(t, s.Complete(ctx, childB.ID))
	got, err = s.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, got.State)
	assert.NotNil(t, got.CompletedAt)
}

func TestCompleteCascadesThroughGrandparent(t *testing.T) {
	s := startStore(t)
	ctx := context.Background()

	root := newTask("s1")
	step := newTask("s1")
	step.ParentID = root.ID
	leaf := newTask("s1")
	leaf.ParentID = step.ID
	require.NoError(t, s.Insert(ctx, []types.Task{root, step, leaf}))

	for range 2 {
		claimed, ok, err := s.Claim(ctx, time.Now())
		require.NoError(t, err)
		require.True(t, ok)
		state, err := s.Settle(ctx, claimed.ID)
		require.NoError(t, err)
		require.Equal(t, types.TaskAwaitingChildren, state)
	}
	claimed, ok, err := s.Claim(ctx, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, leaf.ID, claimed.ID)

	require.NoError(t, s.Complete(ctx, leaf.ID))

	for _, id := range []types.TaskID{step.ID, root.ID} {
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, types.TaskCompleted, got.State)
	}
}

func TestSettleCompletesWhenChildrenFinishFirst(t *testing.T) {
	s := startStore(t)
	ctx := context.Background()

	parent := newTask("s1")
	child := newTask("s1")
	child.ParentID = parent.ID
	require.NoError(t, s.Insert(ctx, []types.Task{parent, child}))

	// both tasks are running when the child settles: the completion
	// cascade finds the parent still running and leaves it alone
	_, _, err := s.Claim(ctx, time.Now())
	require.NoError(t, err)
	_, _, err = s.Claim(ctx, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, child.ID))

	// the parent settling afterwards must see the child is done and
	// complete, not park itself awaiting a child that already finished
	state, err := s.Settle(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, state)

	got, err := s.Get(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, got.State)

	counts, err := s.Counts(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, counts[types.TaskAwaitingChildren])
	assert.Equal(t, 2, counts[types.TaskCompleted])

	_, ok, err := s.Claim(ctx, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSettleLeavesFailedTaskAlone(t *testing.T) {
	s := startStore(t)
	ctx := context.Background()

	task := newTask("s1")
	require.NoError(t, s.Insert(ctx, []types.Task{task}))
	_, _, err := s.Claim(ctx, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Fail(ctx, task.ID, errdefs.ErrLoaderFailed.New(errdefs.Props{"loader": "users"})))

	state, err := s.Settle(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, state)
}

func TestFailFastCancelsQueueAndFailsAncestors(t *testing.T) {
	s := startStore(t)
	ctx := context.Background()

	root := newTask("s1")
	failing := newTask("s1")
	failing.ParentID = root.ID
	queued := newTask("s1")
	queued.ParentID = root.ID
	other := newTask("s2")
	require.NoError(t, s.Insert(ctx, []types.Task{root, failing, queued, other}))

	_, _, err := s.Claim(ctx, time.Now())
	require.NoError(t, err)
	_, err = s.Settle(ctx, root.ID)
	require.NoError(t, err)
	_, _, err = s.Claim(ctx, time.Now())
	require.NoError(t, err)

	cause := errdefs.ErrLoaderFailed.New(errdefs.Props{"loader": "users"})
	require.NoError(t, s.Fail(ctx, failing.ID, cause))

	got, err := s.Get(ctx, failing.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, got.State)
	require.NotNil(t, got.Error)
	assert.Equal(t, "execution.loader_failed", got.Error.Code)

	got, err = s.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, got.State)

	got, err = s.Get(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCancelled, got.State)

	// other syncs are untouched
	got, err = s.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskPending, got.State)
}

func TestInvalidTransitions(t *testing.T) {
	s := startStore(t)
	ctx := context.Background()

	task := newTask("s1")
	require.NoError(t, s.Insert(ctx, []types.Task{task}))

	// pending tasks cannot complete without being claimed
	err := s.Complete(ctx, task.ID)
	assert.Equal(t, "execution.invalid_transition", errdefs.Code(err))

	_, _, err = s.Claim(ctx, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, task.ID))

	// terminal tasks cannot fail
	err = s.Fail(ctx, task.ID, errdefs.ErrLoaderFailed.New(errdefs.Props{"loader": "users"}))
	assert.Equal(t, "execution.invalid_transition", errdefs.Code(err))
}

func TestRetryRequeuesFailedTask(t *testing.T) {
	s := startStore(t)
	ctx := context.Background()

	task := newTask("s1")
	require.NoError(t, s.Insert(ctx, []types.Task{task}))
	_, _, err := s.Claim(ctx, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Fail(ctx, task.ID, errdefs.ErrLoaderFailed.New(errdefs.Props{"loader": "users"})))

	require.NoError(t, s.Retry(ctx, task.ID, time.Minute))

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskPending, got.State)
	assert.Nil(t, got.Error)
	require.NotNil(t, got.NotBefore)

	_, ok, err := s.Claim(ctx, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Claim(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPauseResumeCancel(t *testing.T) {
	s := startStore(t)
	ctx := context.Background()

	a := newTask("s1")
	b := newTask("s1")
	require.NoError(t, s.Insert(ctx, []types.Task{a, b}))

	paused, err := s.PauseSync(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, paused)

	_, ok, err := s.Claim(ctx, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	resumed, err := s.ResumeSync(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, resumed)

	_, ok, err = s.Claim(ctx, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	cancelled, err := s.CancelSync(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, cancelled)

	counts, err := s.Counts(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[types.TaskState]int{types.TaskCancelled: 2}, counts)
}

func TestFindBySyncAndParent(t *testing.T) {
	s := startStore(t)
	ctx := context.Background()

	root := newTask("s1")
	child := newTask("s1")
	child.ParentID = root.ID
	stranger := newTask("s2")
	require.NoError(t, s.Insert(ctx, []types.Task{root, child, stranger}))

	bySync, err := s.FindBySync(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, bySync, 2)
	assert.Equal(t, root.ID, bySync[0].ID)
	assert.Equal(t, child.ID, bySync[1].ID)

	byParent, err := s.FindByParent(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, byParent, 1)
	assert.Equal(t, child.ID, byParent[0].ID)
}

func TestTasksSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := NewBoltTaskStore(dir)
	require.Equal(t, types.Started, s.Start(ctx).Outcome)
	task := newTask("s1")
	require.NoError(t, s.Insert(ctx, []types.Task{task}))
	require.Equal(t, types.Stopped, s.Stop(ctx).Outcome)

	reopened := NewBoltTaskStore(dir)
	require.Equal(t, types.Started, reopened.Start(ctx).Outcome)
	defer reopened.Stop(ctx)

	got, err := reopened.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskPending, got.State)
}
