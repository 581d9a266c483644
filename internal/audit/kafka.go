package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// producer is the part of *kgo.Client used by Kafka.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Kafka publishes events as JSON records keyed by file id so that all
// movements of one file land on one partition in order.
type Kafka struct {
	client  producer
	topic   string
	timeout time.Duration
}

// NewKafka wraps an existing producer.
func NewKafka(client producer, topic string) *Kafka {
	return &Kafka{client: client, topic: topic, timeout: 5 * time.Second}
}

// DialKafka creates a franz-go client for the given seed brokers.
func DialKafka(brokers []string, topic string) (*kgo.Client, error) {
	return kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ClientID("efiling"),
		kgo.ProducerLinger(10*time.Millisecond),
	)
}

func (k *Kafka) Emit(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	rec := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(e.FileID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(e.Action)},
		},
	}
	if err := k.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("audit: produce: %w", err)
	}
	return nil
}

// Multi fans an event out to several publishers and returns the first error.
type Multi []Publisher

func (m Multi) Emit(ctx context.Context, e Event) error {
	var first error
	for _, p := range m {
		if err := p.Emit(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
