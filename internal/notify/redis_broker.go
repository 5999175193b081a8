package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

// RedisBroker carries topics over Redis Pub/Sub so push events reach
// clients connected to other instances. Same best-effort semantics as the
// in-memory broker: no subscriber, no delivery.
type RedisBroker struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedisBroker(addr, password string, log *slog.Logger) *RedisBroker {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisBroker{client: c, log: log}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, topic, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (<-chan models.Event, func()) {
	ps := b.client.Subscribe(ctx, topic)
	out := make(chan models.Event, subscriberBuffer)

	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev models.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("dropping malformed event", "topic", topic, "error", err)
				continue
			}
			select {
			case out <- ev:
			default:
			}
		}
	}()

	cancel := func() { _ = ps.Close() }
	return out, cancel
}

func (b *RedisBroker) Close() error { return b.client.Close() }
