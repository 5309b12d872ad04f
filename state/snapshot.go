package state

import (
	"fmt"

	"teamrun/events"
	"teamrun/runtime"
	"teamrun/taskgraph"
)

// SnapshotSchemaVersion identifies the StateSnapshot layout.
const SnapshotSchemaVersion = 1

// StateSnapshot is a compact, schema-versioned reduction of a tracker
// snapshot, suitable for dashboards and external read-only consumers.
// Never mutated after creation.
type StateSnapshot struct {
	SchemaVersion int              `json:"schema_version"`
	RunID         string           `json:"run_id"`
	GraphVersion  int64            `json:"graph_version"`
	Phase         runtime.Phase    `json:"phase"`
	TaskCount     int              `json:"task_count"`
	EventCount    int              `json:"event_count"`
	LastEventID   string           `json:"last_event_id,omitempty"`
	Tasks         []taskgraph.Task `json:"tasks"`
}

// NewStateSnapshot reduces a tracker snapshot to its compact form.
// LastEventID is empty when the run has no events yet.
func NewStateSnapshot(ts TrackerSnapshot) StateSnapshot {
	snap := StateSnapshot{
		SchemaVersion: SnapshotSchemaVersion,
		RunID:         ts.RunID,
		GraphVersion:  ts.GraphVersion,
		Phase:         ts.Phase,
		TaskCount:     len(ts.Tasks),
		EventCount:    len(ts.Events),
		Tasks:         append([]taskgraph.Task(nil), ts.Tasks...),
	}
	if n := len(ts.Events); n > 0 {
		snap.LastEventID = ts.Events[n-1].ID
	}
	return snap
}

// RetentionPolicy bounds how many trailing events are carried forward.
type RetentionPolicy struct {
	RetainLastEvents int
}

// RetentionResult reports what retention kept and what it discarded. The
// snapshot's EventCount still reflects the total ever observed, so consumers
// can distinguish "how much happened" from "how much we kept".
type RetentionResult struct {
	Snapshot       StateSnapshot
	RetainedEvents []events.Event
	TruncatedCount int
}

// ApplyRetentionPolicy derives a compact snapshot from ts and truncates its
// event history to the last RetainLastEvents entries, oldest first. A zero
// retain count is valid and retains nothing; a negative one is an error.
func ApplyRetentionPolicy(ts TrackerSnapshot, policy RetentionPolicy) (RetentionResult, error) {
	if policy.RetainLastEvents < 0 {
		return RetentionResult{}, fmt.Errorf("retainLastEvents must be >= 0, got %d", policy.RetainLastEvents)
	}

	total := len(ts.Events)
	keep := policy.RetainLastEvents
	if keep > total {
		keep = total
	}

	retained := make([]events.Event, keep)
	copy(retained, ts.Events[total-keep:])

	return RetentionResult{
		Snapshot:       NewStateSnapshot(ts),
		RetainedEvents: retained,
		TruncatedCount: total - keep,
	}, nil
}
