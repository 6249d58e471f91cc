package app

import (
	"context"
	"sync"

	"github.com/hylla/tempo/internal/domain"
)

// DefaultBrokerBuffer is the per-subscriber channel capacity.
const DefaultBrokerBuffer = 64

// Broker fans committed change events out to live subscribers. A subscriber whose
// buffer is full misses the event.
type Broker struct {
	mu     sync.Mutex
	buffer int
	nextID int
	subs   map[int]subscription
}

type subscription struct {
	projectID string
	ch        chan domain.ChangeEvent
}

// NewBroker constructs a broker with the given per-subscriber buffer.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBrokerBuffer
	}
	return &Broker{buffer: buffer, subs: map[int]subscription{}}
}

// Publish delivers an event to every matching subscriber without blocking.
func (b *Broker) Publish(event domain.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.projectID != "" && sub.projectID != event.ProjectID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel of events for projectID ("" means every project). The
// channel is closed once ctx is done.
func (b *Broker) Subscribe(ctx context.Context, projectID string) <-chan domain.ChangeEvent {
	ch := make(chan domain.ChangeEvent, b.buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscription{projectID: projectID, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()
	return ch
}

// Subscribers returns the number of active subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
