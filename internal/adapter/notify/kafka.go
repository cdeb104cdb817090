package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/lorefall/lorefall-backend/internal/domain"
)

// KafkaSink publishes credit notices to a Kafka topic, keyed by domain so
// one domain's notices stay ordered within a partition.
type KafkaSink struct {
	client *kgo.Client
}

// NewKafkaSink creates a sink producing to the given brokers and topic.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &KafkaSink{client: client}, nil
}

// Notify publishes one credit notice synchronously.
func (s *KafkaSink) Notify(ctx context.Context, notice domain.CreditNotice) error {
	value, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal credit notice: %w", err)
	}

	record := &kgo.Record{
		Key:   []byte(notice.DomainID.String()),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce credit notice: %w", err)
	}
	return nil
}

// Close flushes pending records and closes the producer.
func (s *KafkaSink) Close() {
	s.client.Close()
}
