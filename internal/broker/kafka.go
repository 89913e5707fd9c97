// Package broker publishes decoded records to a Kafka stream for
// downstream analytics and undecodable envelopes to a dead-letter
// topic. Both channels are best-effort side paths of the pipeline.
package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/config"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/model"
)

type Publisher struct {
	stream *kafka.Writer
	dlq    *kafka.Writer
}

func NewPublisher(cfg *config.Config) *Publisher {
	balancer := &kafka.Hash{}

	stream := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers...),
		Topic:    cfg.KafkaTopic,
		Balancer: balancer,

		BatchSize:    1000,
		BatchBytes:   1 << 20,
		BatchTimeout: 5 * time.Millisecond,

		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Compression:  kafka.Snappy,
	}

	dlq := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers...),
		Topic:    cfg.KafkaDLQTopic,
		Balancer: balancer,

		BatchSize:    200,
		BatchBytes:   512 << 10,
		BatchTimeout: 10 * time.Millisecond,

		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Compression:  kafka.Snappy,
	}

	return &Publisher{stream: stream, dlq: dlq}
}

func (p *Publisher) Close() {
	_ = p.stream.Close()
	_ = p.dlq.Close()
}

// PublishRecord streams one decoded record keyed by container id.
func (p *Publisher) PublishRecord(ctx context.Context, r *model.Record) error {
	value, err := json.Marshal(r.Fields())
	if err != nil {
		return err
	}
	return p.stream.WriteMessages(ctx, kafka.Message{
		Key:   []byte(r.ISO6346),
		Value: value,
	})
}

// PublishDead forwards an undecodable envelope to the DLQ topic with
// the failure reason and arrival time. The raw payload is carried
// base64-encoded by the JSON marshalling of []byte.
func (p *Publisher) PublishDead(ctx context.Context, payload []byte, reason string, receivedAt time.Time) error {
	value, err := json.Marshal(map[string]any{
		"error":      reason,
		"original":   payload,
		"receivedAt": receivedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	return p.dlq.WriteMessages(ctx, kafka.Message{
		Key:   []byte("undecodable"),
		Value: value,
	})
}
