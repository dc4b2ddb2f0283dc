// Package kafka provides the franz-go producer used for outbound
// notification messages.
package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ProducerConfig holds configuration for the producer.
type ProducerConfig struct {
	// Brokers is a list of broker addresses.
	Brokers []string
	// LingerMS is the time to wait before sending a batch.
	LingerMS int64
	// MaxRetries is the maximum number of retries for failed sends.
	MaxRetries int
	// RetryBackoffMS is the backoff time between retries.
	RetryBackoffMS int64
}

// DefaultProducerConfig returns defaults for notification throughput.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:        []string{"localhost:9092"},
		LingerMS:       25,
		MaxRetries:     3,
		RetryBackoffMS: 100,
	}
}

// Producer publishes messages with durability acks from all replicas.
type Producer struct {
	client *kgo.Client
	logger *zap.Logger
	tracer trace.Tracer

	mu           sync.Mutex
	messagesSent int64
	errorCount   int64
}

// NewProducer creates a producer connected to the configured brokers.
func NewProducer(cfg ProducerConfig, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerLinger(time.Duration(cfg.LingerMS) * time.Millisecond),
		kgo.RecordRetries(cfg.MaxRetries),
		kgo.RetryBackoffFn(func(attempt int) time.Duration {
			return time.Duration(cfg.RetryBackoffMS) * time.Millisecond * time.Duration(attempt+1)
		}),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.Lz4Compression()),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Producer{
		client: client,
		logger: logger,
		tracer: otel.Tracer("kafka-producer"),
	}, nil
}

// Produce sends a single message and waits for the broker ack.
func (p *Producer) Produce(ctx context.Context, topic, key string, value []byte) error {
	ctx, span := p.tracer.Start(ctx, "kafka_produce",
		trace.WithAttributes(
			attribute.String("topic", topic),
			attribute.String("key", key),
			attribute.Int("value_size", len(value)),
		))
	defer span.End()

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}
	injectTraceHeaders(ctx, record)

	var produceErr error
	var wg sync.WaitGroup
	wg.Add(1)
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		defer wg.Done()
		if err != nil {
			produceErr = err
			p.count(&p.errorCount)
			span.RecordError(err)
			return
		}
		p.count(&p.messagesSent)
		p.logger.Debug("message produced",
			zap.String("topic", r.Topic),
			zap.Int32("partition", r.Partition),
			zap.Int64("offset", r.Offset))
	})
	wg.Wait()

	return produceErr
}

// Close flushes buffered records and closes the client.
func (p *Producer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("error flushing on close", zap.Error(err))
	}
	p.client.Close()
	return nil
}

func (p *Producer) count(field *int64) {
	p.mu.Lock()
	*field++
	p.mu.Unlock()
}

// injectTraceHeaders adds OpenTelemetry trace context to record headers.
func injectTraceHeaders(ctx context.Context, record *kgo.Record) {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return
	}
	record.Headers = append(record.Headers, kgo.RecordHeader{
		Key: "traceparent",
		Value: []byte(fmt.Sprintf("00-%s-%s-%02x",
			sc.TraceID().String(), sc.SpanID().String(), sc.TraceFlags())),
	})
}
