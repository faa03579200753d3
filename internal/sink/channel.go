package sink

import (
	"sync/atomic"

	"github.com/skypro1111/live-translator/internal/pipeline"
)

// Event is either a status transition or a result
type Event struct {
	Status *pipeline.Status
	Result *pipeline.Result
}

// Channel delivers events through a buffered channel so the consumer can
// handle them on its own goroutine. Results are never dropped: OnResult
// blocks while the buffer is full. Statuses are dropped instead, since a
// newer status supersedes them.
type Channel struct {
	events          chan Event
	droppedStatuses atomic.Uint64
}

// NewChannel creates a channel sink with the given buffer size
func NewChannel(buffer int) *Channel {
	if buffer < 1 {
		buffer = 1
	}
	return &Channel{events: make(chan Event, buffer)}
}

// Events returns the channel to drain
func (c *Channel) Events() <-chan Event {
	return c.events
}

// OnStatus queues a status unless the consumer is lagging
func (c *Channel) OnStatus(status pipeline.Status) {
	select {
	case c.events <- Event{Status: &status}:
	default:
		c.droppedStatuses.Add(1)
	}
}

// OnResult queues a result, waiting for buffer space
func (c *Channel) OnResult(result pipeline.Result) {
	c.events <- Event{Result: &result}
}

// DroppedStatuses returns how many statuses were skipped
func (c *Channel) DroppedStatuses() uint64 {
	return c.droppedStatuses.Load()
}
