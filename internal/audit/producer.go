package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Producer publishes events to the operational audit topic, compressed
// with zstd before being handed to the Kafka client (kgo also offers
// broker-side compression, but batching our own encoding lets the writer
// share one compressed blob per flush instead of per-record).
type Producer struct {
	client  *kgo.Client
	encoder *zstd.Encoder
	topic   string
	logger  *zap.Logger
}

// NewProducer creates an async Kafka producer seeded with brokers,
// publishing to topic.
func NewProducer(brokers []string, topic, clientID string, logger *zap.Logger) (*Producer, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("audit: zstd encoder: %w", err)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerBatchCompression(kgo.NoCompression()),
	)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("audit: kafka client: %w", err)
	}

	return &Producer{client: client, encoder: enc, topic: topic, logger: logger.Named("audit.producer")}, nil
}

// Publish encodes and compresses a batch of events into a single record
// and produces it asynchronously; delivery failures are logged, not
// returned, since audit export must never block the hub's request path.
func (p *Producer) Publish(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	payload, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("audit: marshal events: %w", err)
	}
	compressed := p.encoder.EncodeAll(payload, nil)

	record := &kgo.Record{Topic: p.topic, Value: compressed}
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("audit event publish failed", zap.Error(err), zap.Int("events", len(events)))
		}
	})
	return nil
}

// Close flushes outstanding records and releases the client.
func (p *Producer) Close() {
	p.client.Flush(context.Background())
	p.client.Close()
	p.encoder.Close()
}
