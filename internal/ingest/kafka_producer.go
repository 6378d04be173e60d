package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ridehail/internal/models"
)

// Producer writes driver positions and ride lifecycle events to Kafka.
// Both topics are keyed by ride id so per-ride ordering survives
// partitioning.
type Producer struct {
	locations *kafka.Writer
	events    *kafka.Writer
}

func NewProducer(brokers []string, locationTopic, eventTopic string) *Producer {
	return &Producer{
		locations: kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: locationTopic, Balancer: &kafka.LeastBytes{}}),
		events:    kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: eventTopic, Balancer: &kafka.LeastBytes{}}),
	}
}

func (p *Producer) PublishLocation(ctx context.Context, loc models.LocationUpdate) error {
	return p.write(ctx, p.locations, loc.RideID, loc)
}

// PublishRideEvent mirrors a committed transition onto the event topic
// for downstream consumers (analytics, audit). Implements
// ride.EventPublisher.
func (p *Producer) PublishRideEvent(ctx context.Context, r *models.Ride) error {
	return p.write(ctx, p.events, r.ID, r)
}

func (p *Producer) write(ctx context.Context, w *kafka.Writer, key string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b})
}

func (p *Producer) Close() error {
	if err := p.locations.Close(); err != nil {
		_ = p.events.Close()
		return err
	}
	return p.events.Close()
}
