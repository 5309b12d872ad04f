package state

import (
	"sync"
	"time"

	"teamrun/events"
	"teamrun/runtime"
	"teamrun/taskgraph"
)

// Worker heartbeat statuses.
const (
	WorkerBusy = "busy"
	WorkerIdle = "idle"
)

// Heartbeat is the last-known liveness record for a worker. Last write wins
// per worker; the core never expires heartbeats itself — staleness is an
// external policy over UpdatedAt.
type Heartbeat struct {
	WorkerID  string    `json:"worker_id"`
	Status    string    `json:"status"`
	TaskID    string    `json:"task_id,omitempty"`
	Attempt   int       `json:"attempt"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TrackerSnapshot is an immutable point-in-time copy of a Tracker. Mutating
// the tracker after Snapshot() never affects a snapshot already handed out.
type TrackerSnapshot struct {
	RunID        string
	Goal         string
	GraphVersion int64
	Phase        runtime.Phase
	Tasks        []taskgraph.Task
	Heartbeats   map[string]Heartbeat
	Events       []events.Event
}

// Tracker aggregates one run's graph version, phase, task list, worker
// heartbeats and event history into a single inspectable state. It is a
// passive mirror: the scheduler and phase machine push updates into it and
// it performs no validation of its own.
type Tracker struct {
	mu           sync.Mutex
	runID        string
	goal         string
	graphVersion int64
	phase        runtime.Phase
	tasks        []taskgraph.Task
	heartbeats   map[string]Heartbeat
	events       []events.Event
}

// NewTracker creates an empty tracker for a run.
func NewTracker(runID, goal string) *Tracker {
	return &Tracker{
		runID:      runID,
		goal:       goal,
		heartbeats: make(map[string]Heartbeat),
	}
}

// SetGraphVersion mirrors the task graph's version counter.
func (t *Tracker) SetGraphVersion(v int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.graphVersion = v
}

// SetPhase mirrors the run phase. Transition validation is the phase
// machine's job, not the tracker's.
func (t *Tracker) SetPhase(p runtime.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = p
}

// SetTasks replaces the mirrored task list, preserving order.
func (t *Tracker) SetTasks(tasks []taskgraph.Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks = append([]taskgraph.Task(nil), tasks...)
}

// UpsertHeartbeat records a worker's latest heartbeat, stamping UpdatedAt
// when the caller left it unset.
func (t *Tracker) UpsertHeartbeat(hb Heartbeat) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if hb.UpdatedAt.IsZero() {
		hb.UpdatedAt = time.Now()
	}
	t.heartbeats[hb.WorkerID] = hb
}

// AddEvent appends to the run's event history. Events are never edited or
// reordered once added.
func (t *Tracker) AddEvent(ev events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, ev)
}

// Snapshot returns an immutable copy of the tracker's full state.
func (t *Tracker) Snapshot() TrackerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	tasks := make([]taskgraph.Task, len(t.tasks))
	copy(tasks, t.tasks)

	heartbeats := make(map[string]Heartbeat, len(t.heartbeats))
	for id, hb := range t.heartbeats {
		heartbeats[id] = hb
	}

	evs := make([]events.Event, len(t.events))
	copy(evs, t.events)

	return TrackerSnapshot{
		RunID:        t.runID,
		Goal:         t.goal,
		GraphVersion: t.graphVersion,
		Phase:        t.phase,
		Tasks:        tasks,
		Heartbeats:   heartbeats,
		Events:       evs,
	}
}
