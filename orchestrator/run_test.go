package orchestrator

import (
	"fmt"
	"os"
	"testing"
	"time"

	"teamrun/checkpoint"
	"teamrun/log"
	"teamrun/runtime"
	"teamrun/state"
	"teamrun/taskgraph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain runs before all tests to set up the test environment
func TestMain(m *testing.M) {
	log.Initialize(false)
	defer log.Close()

	os.Exit(m.Run())
}

func newTestRun(t *testing.T, tasks []taskgraph.Task) *Run {
	t.Helper()
	run, err := NewRun(Options{
		RunID:         "run-test",
		Goal:          "ship the feature",
		PolicyProfile: "standard",
		Tasks:         tasks,
	})
	require.NoError(t, err)
	return run
}

func TestNewRun(t *testing.T) {
	t.Run("starts in planning and records run_started", func(t *testing.T) {
		run := newTestRun(t, []taskgraph.Task{{ID: "t1"}})

		assert.Equal(t, runtime.PhasePlanning, run.Phase())

		snap := run.SnapshotState()
		require.Len(t, snap.Events, 1)
		assert.Equal(t, "run_started", snap.Events[0].Type)
		assert.Equal(t, "evt-1", snap.Events[0].ID)
	})

	t.Run("generates a run id when none is given", func(t *testing.T) {
		run, err := NewRun(Options{Goal: "g"})
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID())
	})

	t.Run("propagates construction errors from the graph", func(t *testing.T) {
		_, err := NewRun(Options{Goal: "g", Tasks: []taskgraph.Task{{ID: "a"}, {ID: "a"}}})
		require.Error(t, err)
	})

	t.Run("honors an initial phase for resumed runs", func(t *testing.T) {
		run, err := NewRun(Options{Goal: "g", InitialPhase: runtime.PhaseExecuting})
		require.NoError(t, err)
		assert.Equal(t, runtime.PhaseExecuting, run.Phase())
	})
}

func TestClaimTasks(t *testing.T) {
	t.Run("assigns the worker and marks it busy", func(t *testing.T) {
		run := newTestRun(t, []taskgraph.Task{{ID: "t1"}, {ID: "t2"}})

		claimed, err := run.ClaimTasks("worker-1", 2)
		require.NoError(t, err)
		require.Len(t, claimed, 2)
		assert.Equal(t, "worker-1", claimed[0].AssignedTo)

		snap := run.SnapshotState()
		hb, ok := snap.Heartbeats["worker-1"]
		require.True(t, ok)
		assert.Equal(t, state.WorkerBusy, hb.Status)
		assert.Equal(t, "t1", hb.TaskID)
		assert.Equal(t, "worker-1", snap.Tasks[0].AssignedTo)
	})

	t.Run("requires a worker id", func(t *testing.T) {
		run := newTestRun(t, []taskgraph.Task{{ID: "t1"}})
		_, err := run.ClaimTasks("", 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "workerID")
	})

	t.Run("empty claim records nothing", func(t *testing.T) {
		run := newTestRun(t, nil)
		before := len(run.SnapshotState().Events)

		claimed, err := run.ClaimTasks("worker-1", 5)
		require.NoError(t, err)
		assert.Empty(t, claimed)
		assert.Len(t, run.SnapshotState().Events, before)
	})
}

func TestSubmitReviewCycle(t *testing.T) {
	run := newTestRun(t, []taskgraph.Task{
		{ID: "t1"},
		{ID: "t2", BlockedBy: []string{"t1"}},
	})

	claimed, err := run.ClaimTasks("worker-1", 1)
	require.NoError(t, err)
	require.Equal(t, "t1", claimed[0].ID)

	require.NoError(t, run.Submit("worker-1", "t1", "patch ready"))

	awaiting := run.AwaitingReview()
	require.Len(t, awaiting, 1)
	assert.Equal(t, "t1", awaiting[0].ID)

	snap := run.SnapshotState()
	assert.Equal(t, state.WorkerIdle, snap.Heartbeats["worker-1"].Status)

	require.NoError(t, run.Complete("t1"))
	assert.Empty(t, run.AwaitingReview())

	// Completing t1 unblocks t2.
	claimed, err = run.ClaimTasks("worker-2", 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "t2", claimed[0].ID)
}

func TestRejectRequeue(t *testing.T) {
	run := newTestRun(t, []taskgraph.Task{{ID: "t1"}})

	_, err := run.ClaimTasks("worker-1", 1)
	require.NoError(t, err)
	require.NoError(t, run.Submit("worker-1", "t1", "broken"))
	require.NoError(t, run.Reject("t1", "does not build"))

	tasks := run.Tasks()
	assert.Equal(t, taskgraph.StatusDeferred, tasks[0].Status)
	assert.Equal(t, "does not build", tasks[0].Error)

	require.NoError(t, run.Requeue("t1"))
	assert.Equal(t, taskgraph.StatusPending, run.Tasks()[0].Status)
}

func TestEventHistory(t *testing.T) {
	run := newTestRun(t, []taskgraph.Task{{ID: "t1"}})

	_, err := run.ClaimTasks("worker-1", 1)
	require.NoError(t, err)
	require.NoError(t, run.Submit("worker-1", "t1", "out"))
	require.NoError(t, run.Complete("t1"))
	_, err = run.TransitionPhase(runtime.PhaseExecuting)
	require.NoError(t, err)

	snap := run.SnapshotState()
	types := make([]string, len(snap.Events))
	for i, ev := range snap.Events {
		types[i] = ev.Type
	}
	assert.Equal(t, []string{"run_started", "tasks_claimed", "result_submitted", "task_resolved", "phase_changed"}, types)

	// One event per state-changing action, ids in emission order.
	for i, ev := range snap.Events {
		assert.Equal(t, fmt.Sprintf("evt-%d", i+1), ev.ID)
	}
}

func TestGraphVersionMirrored(t *testing.T) {
	run := newTestRun(t, []taskgraph.Task{{ID: "t1"}})
	assert.Equal(t, run.Version(), run.SnapshotState().GraphVersion)

	_, err := run.ClaimTasks("worker-1", 1)
	require.NoError(t, err)

	assert.Equal(t, run.Version(), run.SnapshotState().GraphVersion)
	assert.Greater(t, run.Version(), int64(0))
}

func TestTransitionPhase(t *testing.T) {
	t.Run("illegal transition leaves phase and history unchanged", func(t *testing.T) {
		run := newTestRun(t, nil)
		before := len(run.SnapshotState().Events)

		_, err := run.TransitionPhase(runtime.PhaseCompleted)
		require.Error(t, err)
		assert.Equal(t, runtime.PhasePlanning, run.Phase())
		assert.Len(t, run.SnapshotState().Events, before)
	})

	t.Run("mirrors the phase into the tracker", func(t *testing.T) {
		run := newTestRun(t, nil)
		_, err := run.TransitionPhase(runtime.PhaseExecuting)
		require.NoError(t, err)
		assert.Equal(t, runtime.PhaseExecuting, run.SnapshotState().Phase)
	})

	t.Run("failed stops further phase changes but not task bookkeeping", func(t *testing.T) {
		run := newTestRun(t, []taskgraph.Task{{ID: "t1"}})
		_, err := run.TransitionPhase(runtime.PhaseFailed)
		require.NoError(t, err)

		_, err = run.TransitionPhase(runtime.PhasePlanning)
		require.Error(t, err)

		// In-flight work is not implicitly reverted; the caller may still
		// reject and requeue claimed tasks.
		_, err = run.ClaimTasks("worker-1", 1)
		require.NoError(t, err)
		require.NoError(t, run.Reject("t1", "run abandoned"))
	})
}

func TestCheckpointNow(t *testing.T) {
	run := newTestRun(t, []taskgraph.Task{
		{ID: "t1"},
		{ID: "t2", BlockedBy: []string{"t1"}},
	})

	_, err := run.ClaimTasks("worker-1", 1)
	require.NoError(t, err)
	require.NoError(t, run.Submit("worker-1", "t1", "out"))
	require.NoError(t, run.Complete("t1"))

	dir := t.TempDir()
	path, err := run.CheckpointNow(dir)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.Path("run-test", dir), path)

	cp, err := checkpoint.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "run-test", cp.CheckpointID)
	assert.Equal(t, "ship the feature", cp.Goal)
	assert.Equal(t, "standard", cp.PolicyProfile)
	assert.Equal(t, runtime.PhasePlanning, cp.Phase)
	assert.Equal(t, []string{"t2"}, cp.PendingTasks)
}

func TestHeartbeatAndStaleWorkers(t *testing.T) {
	run := newTestRun(t, nil)

	require.Error(t, run.Heartbeat(state.Heartbeat{}))

	require.NoError(t, run.Heartbeat(state.Heartbeat{
		WorkerID:  "fresh",
		Status:    state.WorkerBusy,
		UpdatedAt: time.Now(),
	}))
	require.NoError(t, run.Heartbeat(state.Heartbeat{
		WorkerID:  "stale",
		Status:    state.WorkerBusy,
		TaskID:    "t9",
		UpdatedAt: time.Now().Add(-10 * time.Minute),
	}))

	stale := run.StaleWorkers(5 * time.Minute)
	require.Len(t, stale, 1)
	assert.Equal(t, "stale", stale[0].WorkerID)
	assert.Equal(t, "t9", stale[0].TaskID)
}
