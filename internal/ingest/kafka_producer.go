package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-dispatch/internal/models"
)

// LifecycleEvent is the record published for every order status change.
type LifecycleEvent struct {
	Type        string     `json:"type"`
	OrderID     string     `json:"order_id"`
	ClientID    string     `json:"client_id"`
	DriverID    string     `json:"driver_id,omitempty"`
	DriverName  string     `json:"driver_name,omitempty"`
	Status      string     `json:"status"`
	Price       float64    `json:"price,omitempty"`
	Distance    float64    `json:"distance,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	At          time.Time  `json:"at"`
}

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

// PublishLifecycle writes one lifecycle event keyed by order id so all
// events of an order land on the same partition, in order.
func (k *KafkaProducer) PublishLifecycle(eventType string, o *models.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev := LifecycleEvent{
		Type:        eventType,
		OrderID:     o.ID,
		ClientID:    o.ClientID,
		DriverID:    o.DriverID,
		DriverName:  o.DriverName,
		Status:      string(o.Status),
		Price:       o.Price,
		Distance:    o.Distance,
		CompletedAt: o.CompletedAt,
		At:          time.Now(),
	}
	b, _ := json.Marshal(ev)
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(o.ID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
