// Package kafka publishes the aggregate result to a sink topic so downstream
// consumers can react to fresh batches without polling the CDN files. It is
// feature-flagged: only wired when KAFKA_SINK_TOPIC is configured.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/signalatlas/vibe-etl/internal/domain"
)

// messageWriter is the slice of kafka-go's Writer the publisher needs;
// tests stub it.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one message per batch to the sink topic.
// It implements pipeline.Exporter.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
	clock  clockwork.Clock
}

// NewPublisher creates a Kafka producer for the configured sink topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger, clock: clockwork.NewRealClock()}
}

func (p *Publisher) Name() string { return "kafka" }

// Export serializes the full result into a single message keyed by the
// generation timestamp, with counts in headers for cheap downstream routing.
func (p *Publisher) Export(ctx context.Context, result domain.AggregateResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("serialize aggregate result: %w", err)
	}

	generatedAt := p.clock.Now().UTC().Format(time.RFC3339)
	msg := kafkago.Message{
		Key:   []byte(generatedAt),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "generated_at", Value: []byte(generatedAt)},
			{Key: "cells", Value: []byte(strconv.Itoa(len(result.Cells)))},
			{Key: "insights", Value: []byte(strconv.Itoa(len(result.Insights)))},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish aggregate result: %w", err)
	}

	p.logger.Info("aggregate result published", "bytes", len(data), "cells", len(result.Cells))
	return nil
}

// Close releases the underlying Kafka writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
