package taskgraph

import (
	"fmt"
	"sync"
	"time"
)

// Status tracks the lifecycle state of a team task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusDeferred   Status = "deferred"
)

// Task is a single unit of work assigned to a worker agent.
//
// Lifecycle invariants:
//   - done: Result set, CompletedAt set, Error empty
//   - deferred: Error set, Result empty
//   - pending: Result, Error and AssignedTo all empty
type Task struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	BlockedBy   []string   `json:"blocked_by,omitempty"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Graph owns the dependency graph of a run's tasks and serializes every
// mutation through one mutex. The version counter increments on every
// mutating call, so consumers can poll it like an etag to detect change.
type Graph struct {
	mu      sync.Mutex
	tasks   []*Task
	byID    map[string]*Task
	version int64
}

// New builds a Graph from an ordered task list. Task ids must be unique and
// every BlockedBy reference must name a task in the list.
func New(tasks []Task) (*Graph, error) {
	g := &Graph{
		tasks: make([]*Task, 0, len(tasks)),
		byID:  make(map[string]*Task, len(tasks)),
	}

	for i := range tasks {
		t := tasks[i]
		if t.ID == "" {
			return nil, fmt.Errorf("task at index %d has an empty id", i)
		}
		if _, exists := g.byID[t.ID]; exists {
			return nil, fmt.Errorf("duplicate task id %q", t.ID)
		}
		if t.Status == "" {
			t.Status = StatusPending
		}
		t.BlockedBy = append([]string(nil), t.BlockedBy...)
		g.tasks = append(g.tasks, &t)
		g.byID[t.ID] = &t
	}

	for _, t := range g.tasks {
		for _, dep := range t.BlockedBy {
			if _, ok := g.byID[dep]; !ok {
				return nil, fmt.Errorf("task %q is blocked by unknown task %q", t.ID, dep)
			}
		}
	}

	return g, nil
}

// ClaimReady claims up to maxCount ready tasks in insertion order, moving
// each to in_progress. A task is ready when it is pending and every task in
// its BlockedBy set is done. An empty claim is not an error and does not
// bump the version; a claim that moves at least one task bumps it once.
func (g *Graph) ClaimReady(maxCount int) []Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	var claimed []Task
	for _, t := range g.tasks {
		if len(claimed) >= maxCount {
			break
		}
		if t.Status != StatusPending || !g.depsDone(t) {
			continue
		}
		t.Status = StatusInProgress
		claimed = append(claimed, *t)
	}

	if len(claimed) > 0 {
		g.version++
	}
	return claimed
}

// depsDone reports whether every BlockedBy reference is done.
// Callers must hold g.mu.
func (g *Graph) depsDone(t *Task) bool {
	for _, dep := range t.BlockedBy {
		if g.byID[dep].Status != StatusDone {
			return false
		}
	}
	return true
}

// SubmitResult records a worker's output on an in_progress task. The task
// stays in_progress until a reviewer completes or rejects it; re-submission
// overwrites the previous result.
func (g *Graph) SubmitResult(taskID, result string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.byID[taskID]
	if !ok {
		return fmt.Errorf("unknown task %q", taskID)
	}
	if t.Status != StatusInProgress {
		return fmt.Errorf("task %q must be in_progress to submit a result (current: %s)", taskID, t.Status)
	}

	t.Result = result
	g.version++
	return nil
}

// CompleteTask marks a submitted task done and stamps its completion time.
// Dependent tasks whose blockers are now all done become claimable on the
// next ClaimReady call.
func (g *Graph) CompleteTask(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.byID[taskID]
	if !ok {
		return fmt.Errorf("unknown task %q", taskID)
	}
	if t.Status != StatusInProgress {
		return fmt.Errorf("task %q must be in_progress to complete (current: %s)", taskID, t.Status)
	}
	if t.Result == "" {
		return fmt.Errorf("cannot complete task %q without a submitted result", taskID)
	}

	now := time.Now()
	t.Status = StatusDone
	t.CompletedAt = &now
	t.Error = ""
	g.version++
	return nil
}

// RejectTask defers an in_progress task with a reason, discarding any
// submitted result. A deferred task is never auto-reclaimed; it needs an
// explicit RequeueTask, which keeps a bad task from looping forever.
func (g *Graph) RejectTask(taskID, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.byID[taskID]
	if !ok {
		return fmt.Errorf("unknown task %q", taskID)
	}
	if t.Status != StatusInProgress {
		return fmt.Errorf("task %q must be in_progress to reject (current: %s)", taskID, t.Status)
	}

	t.Status = StatusDeferred
	t.Error = reason
	t.Result = ""
	g.version++
	return nil
}

// RequeueTask returns a deferred task to the pending pool, clearing its
// error, result and assignment so it can be claimed fresh.
func (g *Graph) RequeueTask(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.byID[taskID]
	if !ok {
		return fmt.Errorf("unknown task %q", taskID)
	}
	if t.Status != StatusDeferred {
		return fmt.Errorf("task %q must be deferred to requeue (current: %s)", taskID, t.Status)
	}

	t.Status = StatusPending
	t.Error = ""
	t.Result = ""
	t.AssignedTo = ""
	g.version++
	return nil
}

// AwaitingReview returns tasks that have a submitted result but no review
// decision yet. Recomputed from status+result on every call so the view can
// never drift from the underlying fields.
func (g *Graph) AwaitingReview() []Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []Task
	for _, t := range g.tasks {
		if t.Status == StatusInProgress && t.Result != "" {
			out = append(out, *t)
		}
	}
	return out
}

// Assign records the worker responsible for a claimed task.
func (g *Graph) Assign(taskID, workerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.byID[taskID]
	if !ok {
		return fmt.Errorf("unknown task %q", taskID)
	}
	if t.Status != StatusInProgress {
		return fmt.Errorf("task %q must be in_progress to assign (current: %s)", taskID, t.Status)
	}

	t.AssignedTo = workerID
	g.version++
	return nil
}

// Tasks returns a copy of all tasks in insertion order.
func (g *Graph) Tasks() []Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Task, len(g.tasks))
	for i, t := range g.tasks {
		out[i] = *t
		out[i].BlockedBy = append([]string(nil), t.BlockedBy...)
	}
	return out
}

// PendingIDs returns the ids of all tasks that are not yet done, in
// insertion order. Used to build checkpoint recovery documents.
func (g *Graph) PendingIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []string
	for _, t := range g.tasks {
		if t.Status != StatusDone {
			out = append(out, t.ID)
		}
	}
	return out
}

// Version returns the monotonic mutation counter.
func (g *Graph) Version() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.version
}
