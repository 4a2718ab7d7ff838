package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultTopic receives audit events when Kafka is configured.
const DefaultTopic = "openletter.audit"

// DefaultDeliveryTimeout bounds how long a record may wait for a broker
// before it is failed. franz-go otherwise retries forever.
const DefaultDeliveryTimeout = 5 * time.Second

type kafkaOptions struct {
	deliveryTimeout time.Duration
	retries         int
}

// KafkaOption configures a KafkaSink.
type KafkaOption func(*kafkaOptions)

func WithDeliveryTimeout(d time.Duration) KafkaOption {
	return func(o *kafkaOptions) {
		if d > 0 {
			o.deliveryTimeout = d
		}
	}
}

// WithRecordRetries caps produce retries per record.
func WithRecordRetries(n int) KafkaOption {
	return func(o *kafkaOptions) {
		if n > 0 {
			o.retries = n
		}
	}
}

// KafkaSink produces each event as a JSON record keyed by nation, so events
// for one nation land on one partition in order.
type KafkaSink struct {
	client  *kgo.Client
	topic   string
	timeout time.Duration
}

// NewKafkaSink connects to brokers. The caller closes the sink. Writes fail
// once the delivery timeout passes, so an unreachable broker never holds the
// audit worker.
func NewKafkaSink(brokers []string, topic string, opts ...KafkaOption) (*KafkaSink, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	o := kafkaOptions{deliveryTimeout: DefaultDeliveryTimeout, retries: 5}
	for _, opt := range opts {
		opt(&o)
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordDeliveryTimeout(o.deliveryTimeout),
		kgo.RecordRetries(o.retries),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaSink{client: client, topic: topic, timeout: o.deliveryTimeout}, nil
}

func (s *KafkaSink) Write(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(e.Nation),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(e.Action)},
		},
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Ping checks broker connectivity.
func (s *KafkaSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *KafkaSink) Close() {
	s.client.Close()
}
