package events

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Event is a single immutable occurrence in a run's history. IDs encode
// creation order directly: evt-1, evt-2, ...
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Bus issues monotonically sequenced events for a single run. Each run
// constructs its own Bus, so concurrent runs never share a counter.
type Bus struct {
	sequence atomic.Uint64
}

// NewBus creates an empty Bus whose first event will be evt-1.
func NewBus() *Bus {
	return &Bus{}
}

// Emit allocates the next sequence number, stamps the current time and
// returns the finished Event. The bus is the sole id authority; two events
// from the same bus never collide.
func (b *Bus) Emit(eventType, source string, payload map[string]any) Event {
	n := b.sequence.Add(1)
	return Event{
		ID:        fmt.Sprintf("evt-%d", n),
		Type:      eventType,
		Source:    source,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Count returns how many events this bus has issued.
func (b *Bus) Count() uint64 {
	return b.sequence.Load()
}
