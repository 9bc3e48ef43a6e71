package eventsink

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"imagegate/internal/storage"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaSink struct {
	w messageWriter
}

// publishBatchTimeout caps the wait before a partial batch is flushed.
const publishBatchTimeout = 5 * time.Millisecond

// NewKafka writes to topic with messages keyed by request id, so one request's
// events land on one partition in order.
func NewKafka(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{w: newKafkaWriter(brokers, topic)}
}

func newKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchTimeout: publishBatchTimeout,
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
	}
}

func (k *KafkaSink) Publish(ctx context.Context, e storage.EngineEvent) error {
	b, err := Encode(e)
	if err != nil {
		return err
	}
	if err := k.w.WriteMessages(ctx, kafka.Message{Key: []byte(e.RequestID), Value: b}); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.w.Close()
}
