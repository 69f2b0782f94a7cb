// Package kafka publishes deduplication lifecycle events for
// downstream consumers (reporting, audit, the registry itself).
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/kone-m/karite/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// CandidateEvent is emitted when a candidate is generated or decided
type CandidateEvent struct {
	EventType      string    `json:"event_type"` // candidate.detected, candidate.confirmed, candidate.rejected, candidate.merged
	CandidateID    string    `json:"candidate_id"`
	RecordID1      string    `json:"record_id_1"`
	RecordID2      string    `json:"record_id_2"`
	ClientType     string    `json:"client_type"`
	OverallScore   int       `json:"overall_score"`
	Confidence     string    `json:"confidence"`
	ReviewerID     string    `json:"reviewer_id,omitempty"`
	SurvivingID    string    `json:"surviving_record_id,omitempty"`
	RunID          string    `json:"run_id,omitempty"`
	MatchingFields []string  `json:"matching_fields,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// RunEvent is emitted when a detection run finishes
type RunEvent struct {
	EventType  string    `json:"event_type"` // detection.completed, detection.aborted
	RunID      string    `json:"run_id"`
	ClientType string    `json:"client_type"`
	Processed  int       `json:"processed"`
	Detected   int       `json:"detected"`
	Skipped    int       `json:"skipped"`
	Timestamp  time.Time `json:"timestamp"`
}

// PublishCandidateEvent publishes a candidate event to Kafka
func (p *Producer) PublishCandidateEvent(ctx context.Context, event *CandidateEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishCandidateEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.CandidateID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "client_type", Value: []byte(event.ClientType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish candidate event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":   event.EventType,
		"candidate_id": event.CandidateID,
	}).Debug("Published candidate event")

	return nil
}

// PublishRunEvent publishes a detection run event to Kafka
func (p *Producer) PublishRunEvent(ctx context.Context, event *RunEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRunEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.RunID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "client_type", Value: []byte(event.ClientType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish run event")
		return err
	}

	return nil
}
