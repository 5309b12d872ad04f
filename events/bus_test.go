package events

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmit(t *testing.T) {
	t.Run("ids start at evt-1 and encode creation order", func(t *testing.T) {
		bus := NewBus()

		first := bus.Emit("run_started", "orchestrator", nil)
		second := bus.Emit("task_resolved", "scheduler", map[string]any{"task_id": "t1"})

		assert.Equal(t, "evt-1", first.ID)
		assert.Equal(t, "evt-2", second.ID)
		assert.Equal(t, "run_started", first.Type)
		assert.Equal(t, "scheduler", second.Source)
		assert.Equal(t, "t1", second.Payload["task_id"])
		assert.False(t, first.Timestamp.IsZero())
		assert.False(t, second.Timestamp.Before(first.Timestamp))
	})

	t.Run("separate buses have independent counters", func(t *testing.T) {
		a := NewBus()
		b := NewBus()
		a.Emit("x", "s", nil)

		assert.Equal(t, "evt-1", b.Emit("y", "s", nil).ID)
	})

	t.Run("count reports issued events", func(t *testing.T) {
		bus := NewBus()
		assert.Equal(t, uint64(0), bus.Count())
		bus.Emit("a", "s", nil)
		bus.Emit("b", "s", nil)
		assert.Equal(t, uint64(2), bus.Count())
	})
}

func TestEmitConcurrentIDsNeverCollide(t *testing.T) {
	bus := NewBus()

	const goroutines = 8
	const perGoroutine = 100

	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				ev := bus.Emit("tick", "worker", nil)
				mu.Lock()
				seen[ev.ID] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, goroutines*perGoroutine)
	for n := 1; n <= goroutines*perGoroutine; n++ {
		assert.True(t, seen[fmt.Sprintf("evt-%d", n)], "missing evt-%d", n)
	}
}
