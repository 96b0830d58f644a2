package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"vetgate/internal/platform/config"
)

// Kafka publishes feed events as JSON records keyed by process id, so all
// updates for one process land on one partition in order.
type Kafka struct {
	client *kgo.Client
	topic  string
}

func NewKafka(cfg config.KafkaConfig) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Kafka{client: client, topic: cfg.Topic}, nil
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (k *Kafka) Publish(ctx context.Context, key string, eventType string, data any) error {
	value, err := json.Marshal(envelope{Type: eventType, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	record := &kgo.Record{Key: []byte(key), Value: value}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s event: %w", eventType, err)
	}
	return nil
}

func (k *Kafka) Close() {
	k.client.Close()
}
