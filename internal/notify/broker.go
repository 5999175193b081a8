package notify

import (
	"context"
	"sync"

	"github.com/example/ride-dispatch/internal/models"
)

// Broker is the pub/sub abstraction behind both notification paths:
// identity-keyed topics carry push events to clients, order-keyed topics
// carry chat. Delivery is best-effort and at-most-once per publish; nothing
// is persisted or retried.
type Broker interface {
	// Publish must never block the caller, even with no subscribers.
	Publish(ctx context.Context, topic string, ev models.Event) error
	// Subscribe returns a receive channel and a cancel func that stops
	// delivery and closes the channel.
	Subscribe(ctx context.Context, topic string) (<-chan models.Event, func())
}

// ClientTopic is the push channel keyed by the client's own identity.
func ClientTopic(clientID string) string { return "client:" + clientID }

// RoomTopic is the chat channel keyed by order id.
func RoomTopic(orderID string) string { return "room:" + orderID }

const subscriberBuffer = 16

// MemoryBroker fans events out to in-process subscribers. Slow subscribers
// lose events rather than stall the publisher.
type MemoryBroker struct {
	mu     sync.RWMutex
	topics map[string]map[chan models.Event]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{topics: make(map[string]map[chan models.Event]struct{})}
}

func (b *MemoryBroker) Publish(ctx context.Context, topic string, ev models.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.topics[topic] {
		select {
		case ch <- ev:
		default:
			// subscriber is not draining; drop
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (<-chan models.Event, func()) {
	ch := make(chan models.Event, subscriberBuffer)
	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[chan models.Event]struct{})
		b.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.topics[topic]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.topics, topic)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
