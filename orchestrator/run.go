package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"teamrun/checkpoint"
	"teamrun/events"
	"teamrun/log"
	"teamrun/runtime"
	"teamrun/state"
	"teamrun/taskgraph"

	"github.com/google/uuid"
)

// Event sources recorded on the run's history.
const (
	sourceScheduler    = "scheduler"
	sourceOrchestrator = "orchestrator"
	sourceTeam         = "team"
)

// Options configures a new run.
type Options struct {
	// RunID identifies the run; a fresh uuid is generated when empty.
	RunID string
	// Goal is the run's objective, carried into checkpoints.
	Goal string
	// PolicyProfile labels the operational policy stamped into checkpoints.
	PolicyProfile string
	// Tasks is the initial ordered task list.
	Tasks []taskgraph.Task
	// InitialPhase overrides the default planning phase, e.g. when resuming
	// from a checkpoint.
	InitialPhase runtime.Phase
}

// Run coordinates one team run: the task graph, the phase machine, the event
// bus and the state tracker, mutated under a single lock so version bumps
// and event ordering stay consistent (single-writer discipline). Workers
// interact out-of-process and only touch the bookkeeping here.
type Run struct {
	mu            sync.Mutex
	id            string
	goal          string
	policyProfile string
	graph         *taskgraph.Graph
	phases        *runtime.PhaseMachine
	bus           *events.Bus
	tracker       *state.Tracker
}

// NewRun wires up a run from its initial task list and emits run_started.
func NewRun(opts Options) (*Run, error) {
	graph, err := taskgraph.New(opts.Tasks)
	if err != nil {
		return nil, err
	}

	id := opts.RunID
	if id == "" {
		id = uuid.NewString()
	}

	r := &Run{
		id:            id,
		goal:          opts.Goal,
		policyProfile: opts.PolicyProfile,
		graph:         graph,
		phases:        runtime.NewPhaseMachine(opts.InitialPhase),
		bus:           events.NewBus(),
		tracker:       state.NewTracker(id, opts.Goal),
	}

	r.tracker.SetPhase(r.phases.Current())
	r.syncGraph()
	r.record("run_started", sourceOrchestrator, map[string]any{
		"goal":  opts.Goal,
		"phase": string(r.phases.Current()),
	})
	return r, nil
}

// ID returns the run's identifier.
func (r *Run) ID() string {
	return r.id
}

// Goal returns the run's objective.
func (r *Run) Goal() string {
	return r.goal
}

// ClaimTasks claims up to max ready tasks for a worker, stamping the
// worker's assignment on each and marking the worker busy. Returns the
// claimed batch, which may be empty.
func (r *Run) ClaimTasks(workerID string, max int) ([]taskgraph.Task, error) {
	if workerID == "" {
		return nil, fmt.Errorf("workerID must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	claimed := r.graph.ClaimReady(max)
	if len(claimed) == 0 {
		return nil, nil
	}

	ids := make([]string, len(claimed))
	for i, t := range claimed {
		if err := r.graph.Assign(t.ID, workerID); err != nil {
			// Assignment of a just-claimed task cannot fail while the run
			// lock is held.
			return nil, err
		}
		claimed[i].AssignedTo = workerID
		ids[i] = t.ID
	}

	r.tracker.UpsertHeartbeat(state.Heartbeat{
		WorkerID: workerID,
		Status:   state.WorkerBusy,
		TaskID:   ids[0],
	})
	r.record("tasks_claimed", sourceScheduler, map[string]any{
		"worker":   workerID,
		"task_ids": ids,
	})
	r.syncGraph()

	log.InfoLog.Printf("run %s: worker %s claimed %d task(s)", r.id, workerID, len(ids))
	return claimed, nil
}

// Submit records a worker's result on a claimed task and marks the worker
// idle. The task stays in_progress until reviewed.
func (r *Run) Submit(workerID, taskID, result string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.graph.SubmitResult(taskID, result); err != nil {
		return err
	}

	if workerID != "" {
		r.tracker.UpsertHeartbeat(state.Heartbeat{
			WorkerID: workerID,
			Status:   state.WorkerIdle,
			TaskID:   taskID,
		})
	}
	r.record("result_submitted", sourceTeam, map[string]any{
		"worker":  workerID,
		"task_id": taskID,
	})
	r.syncGraph()
	return nil
}

// Complete accepts a submitted task as done.
func (r *Run) Complete(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.graph.CompleteTask(taskID); err != nil {
		return err
	}
	r.record("task_resolved", sourceScheduler, map[string]any{"task_id": taskID})
	r.syncGraph()
	return nil
}

// Reject defers a claimed task with a reason.
func (r *Run) Reject(taskID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.graph.RejectTask(taskID, reason); err != nil {
		return err
	}
	r.record("task_rejected", sourceScheduler, map[string]any{
		"task_id": taskID,
		"reason":  reason,
	})
	r.syncGraph()
	return nil
}

// Requeue returns a deferred task to the claimable pool.
func (r *Run) Requeue(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.graph.RequeueTask(taskID); err != nil {
		return err
	}
	r.record("task_requeued", sourceScheduler, map[string]any{"task_id": taskID})
	r.syncGraph()
	return nil
}

// Heartbeat records a worker's liveness. Last write wins per worker.
func (r *Run) Heartbeat(hb state.Heartbeat) error {
	if hb.WorkerID == "" {
		return fmt.Errorf("heartbeat is missing workerId")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracker.UpsertHeartbeat(hb)
	return nil
}

// TransitionPhase drives the run's phase machine. An illegal transition
// leaves the phase unchanged. Driving to failed is how a caller abandons a
// run; in-flight claimed tasks are not implicitly reverted.
func (r *Run) TransitionPhase(next runtime.Phase) (runtime.Phase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.phases.Current()
	phase, err := r.phases.TransitionTo(next)
	if err != nil {
		return phase, err
	}

	r.tracker.SetPhase(phase)
	r.record("phase_changed", sourceOrchestrator, map[string]any{
		"from": string(from),
		"to":   string(phase),
	})
	log.InfoLog.Printf("run %s: phase %s -> %s", r.id, from, phase)
	return phase, nil
}

// Phase returns the current run phase.
func (r *Run) Phase() runtime.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phases.Current()
}

// AwaitingReview returns tasks with a submitted result and no review yet.
func (r *Run) AwaitingReview() []taskgraph.Task {
	return r.graph.AwaitingReview()
}

// Tasks returns a copy of the run's task list.
func (r *Run) Tasks() []taskgraph.Task {
	return r.graph.Tasks()
}

// Version returns the task graph's monotonic version counter.
func (r *Run) Version() int64 {
	return r.graph.Version()
}

// SnapshotState returns an immutable copy of the run's full tracked state.
// Cheap and synchronous; persist it outside any caller-held locks.
func (r *Run) SnapshotState() state.TrackerSnapshot {
	return r.tracker.Snapshot()
}

// StatusSnapshot returns the compact schema-versioned view for dashboards.
func (r *Run) StatusSnapshot() state.StateSnapshot {
	return state.NewStateSnapshot(r.tracker.Snapshot())
}

// CheckpointNow snapshots the run under the lock, then persists the
// recovery document outside it so a slow disk never blocks the run. The
// checkpoint id is the run id, so each save refreshes the run's single
// recovery document.
func (r *Run) CheckpointNow(dir string) (string, error) {
	r.mu.Lock()
	cp := checkpoint.New(checkpoint.Fields{
		CheckpointID:  r.id,
		Phase:         r.phases.Current(),
		Goal:          r.goal,
		PolicyProfile: r.policyProfile,
		PendingTasks:  r.graph.PendingIDs(),
	})
	r.mu.Unlock()

	path, err := checkpoint.Save(&cp, dir)
	if err != nil {
		return "", err
	}
	log.InfoLog.Printf("run %s: checkpoint written to %s", r.id, path)
	return path, nil
}

// StaleWorkers reports workers whose last heartbeat is older than maxAge.
// The core never expires heartbeats itself; this helper feeds an external
// policy that may choose to reject or requeue the associated tasks.
func (r *Run) StaleWorkers(maxAge time.Duration) []state.Heartbeat {
	cutoff := time.Now().Add(-maxAge)
	snap := r.tracker.Snapshot()

	var stale []state.Heartbeat
	for _, hb := range snap.Heartbeats {
		if hb.UpdatedAt.Before(cutoff) {
			stale = append(stale, hb)
		}
	}
	return stale
}

// record emits an event through the bus and appends it to the tracker's
// history. Callers must hold r.mu.
func (r *Run) record(eventType, source string, payload map[string]any) {
	r.tracker.AddEvent(r.bus.Emit(eventType, source, payload))
}

// syncGraph mirrors the graph's tasks and version into the tracker.
// Callers must hold r.mu.
func (r *Run) syncGraph() {
	r.tracker.SetTasks(r.graph.Tasks())
	r.tracker.SetGraphVersion(r.graph.Version())
}
