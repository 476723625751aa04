package agentloop

import (
	"context"
	"sync"
)

// Bus is an ordered publish/subscribe transport for AgentEvents. Every
// subscriber sees every event in publish order. Buffers are bounded: when a
// slow subscriber has not drained its buffer, Publish blocks the publisher
// rather than dropping events or growing memory without bound. The bus has no
// per-event-type logic.
type Bus struct {
	mu         sync.Mutex
	subs       []chan AgentEvent
	bufferSize int
	closed     bool
}

// NewBus creates a Bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Bus{bufferSize: bufferSize}
}

// Subscribe registers a new subscriber and returns its event channel. The
// channel is closed when the bus is closed. Subscribers registered after
// events were published do not see the earlier events.
func (b *Bus) Subscribe() <-chan AgentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan AgentEvent, b.bufferSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers the event to every subscriber, blocking on each full
// buffer until it drains or ctx is cancelled. Publishing to a closed bus is
// a no-op.
func (b *Bus) Publish(ctx context.Context, event AgentEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close closes all subscriber channels. Safe to call multiple times. Close
// waits for any in-flight Publish to complete.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
