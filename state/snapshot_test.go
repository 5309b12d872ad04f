package state

import (
	"fmt"
	"testing"

	"teamrun/events"
	"teamrun/runtime"
	"teamrun/taskgraph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackerSnapWithEvents(n int) TrackerSnapshot {
	bus := events.NewBus()
	evs := make([]events.Event, n)
	for i := 0; i < n; i++ {
		evs[i] = bus.Emit("tick", "scheduler", nil)
	}
	return TrackerSnapshot{
		RunID:        "run-1",
		Goal:         "goal",
		GraphVersion: 5,
		Phase:        runtime.PhaseExecuting,
		Tasks:        []taskgraph.Task{{ID: "a"}, {ID: "b"}},
		Events:       evs,
	}
}

func TestNewStateSnapshot(t *testing.T) {
	t.Run("derives counts and last event id", func(t *testing.T) {
		snap := NewStateSnapshot(trackerSnapWithEvents(3))

		assert.Equal(t, SnapshotSchemaVersion, snap.SchemaVersion)
		assert.Equal(t, "run-1", snap.RunID)
		assert.Equal(t, int64(5), snap.GraphVersion)
		assert.Equal(t, runtime.PhaseExecuting, snap.Phase)
		assert.Equal(t, 2, snap.TaskCount)
		assert.Equal(t, 3, snap.EventCount)
		assert.Equal(t, "evt-3", snap.LastEventID)
	})

	t.Run("empty history has no last event id", func(t *testing.T) {
		snap := NewStateSnapshot(trackerSnapWithEvents(0))
		assert.Zero(t, snap.EventCount)
		assert.Empty(t, snap.LastEventID)
	})
}

func TestApplyRetentionPolicy(t *testing.T) {
	t.Run("negative retain count is rejected", func(t *testing.T) {
		_, err := ApplyRetentionPolicy(trackerSnapWithEvents(3), RetentionPolicy{RetainLastEvents: -1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retainLastEvents")
	})

	t.Run("zero retains nothing but keeps the historical count", func(t *testing.T) {
		res, err := ApplyRetentionPolicy(trackerSnapWithEvents(4), RetentionPolicy{RetainLastEvents: 0})
		require.NoError(t, err)

		assert.Empty(t, res.RetainedEvents)
		assert.Equal(t, 4, res.TruncatedCount)
		assert.Equal(t, 4, res.Snapshot.EventCount)
	})

	t.Run("keeps the tail in original order", func(t *testing.T) {
		res, err := ApplyRetentionPolicy(trackerSnapWithEvents(5), RetentionPolicy{RetainLastEvents: 2})
		require.NoError(t, err)

		require.Len(t, res.RetainedEvents, 2)
		assert.Equal(t, "evt-4", res.RetainedEvents[0].ID)
		assert.Equal(t, "evt-5", res.RetainedEvents[1].ID)
		assert.Equal(t, 3, res.TruncatedCount)
		assert.Equal(t, 5, res.Snapshot.EventCount)
	})

	t.Run("retain count larger than history keeps everything", func(t *testing.T) {
		res, err := ApplyRetentionPolicy(trackerSnapWithEvents(2), RetentionPolicy{RetainLastEvents: 10})
		require.NoError(t, err)

		require.Len(t, res.RetainedEvents, 2)
		assert.Zero(t, res.TruncatedCount)
	})

	t.Run("min(k,n) across a range of sizes", func(t *testing.T) {
		for n := 0; n <= 5; n++ {
			for k := 0; k <= 6; k++ {
				t.Run(fmt.Sprintf("n=%d_k=%d", n, k), func(t *testing.T) {
					res, err := ApplyRetentionPolicy(trackerSnapWithEvents(n), RetentionPolicy{RetainLastEvents: k})
					require.NoError(t, err)

					want := k
					if want > n {
						want = n
					}
					assert.Len(t, res.RetainedEvents, want)
					assert.Equal(t, n-want, res.TruncatedCount)
					for i, ev := range res.RetainedEvents {
						assert.Equal(t, fmt.Sprintf("evt-%d", n-want+i+1), ev.ID)
					}
				})
			}
		}
	})
}
