// Package events carries index build notifications over Kafka. The indexer
// publishes one IndexBuiltEvent per completed build and one BatchFailedEvent
// per abandoned chunk; searcher replicas consume index.built to reload the
// model and drop cached results.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/kafka"
)

// IndexBuiltEvent announces a published model generation.
type IndexBuiltEvent struct {
	Generation     string    `json:"generation"`
	Dimension      int       `json:"dimension"`
	TotalDocuments int       `json:"total_documents"`
	PointsUpserted int       `json:"points_upserted"`
	SkippedPoints  int       `json:"skipped_points"`
	FailedChunks   int       `json:"failed_chunks"`
	Collection     string    `json:"collection"`
	VectorOnly     bool      `json:"vector_only"`
	BuiltAt        time.Time `json:"built_at"`
}

// NewIndexBuiltEvent summarizes a build report.
func NewIndexBuiltEvent(r *indexer.Report) IndexBuiltEvent {
	return IndexBuiltEvent{
		Generation:     r.Generation,
		Dimension:      r.Dimension,
		TotalDocuments: r.TotalDocuments,
		PointsUpserted: r.PointsUpserted,
		SkippedPoints:  r.SkippedPoints,
		FailedChunks:   len(r.Failures),
		Collection:     r.CollectionName,
		VectorOnly:     r.VectorOnly,
		BuiltAt:        r.ModelBuiltAt,
	}
}

// BatchFailedEvent is one abandoned chunk.
type BatchFailedEvent struct {
	indexer.BatchFailure
	FirstID int64 `json:"first_id"`
	LastID  int64 `json:"last_id"`
}

// EventPublisher is the subset of the Kafka producer the Publisher needs.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher implements indexer.FailureReporter and indexer.BuildNotifier on
// top of Kafka.
type Publisher struct {
	producer EventPublisher
	topics   config.KafkaTopics
	logger   *slog.Logger
}

func NewPublisher(producer EventPublisher, topics config.KafkaTopics) *Publisher {
	return &Publisher{
		producer: producer,
		topics:   topics,
		logger:   slog.Default().With("component", "events"),
	}
}

// ReportBatchFailure publishes the chunk keyed by its first id.
func (p *Publisher) ReportBatchFailure(ctx context.Context, failure indexer.BatchFailure) error {
	event := BatchFailedEvent{
		BatchFailure: failure,
		FirstID:      failure.FirstID(),
		LastID:       failure.LastID(),
	}
	err := p.producer.Publish(ctx, kafka.Event{
		Topic: p.topics.IndexBatchFailure,
		Key:   failure.Collection + ":" + strconv.FormatInt(event.FirstID, 10),
		Value: event,
	})
	if err != nil {
		return fmt.Errorf("publishing batch failure: %w", err)
	}
	return nil
}

// IndexBuilt publishes the build summary keyed by collection so that builds
// of one collection stay ordered.
func (p *Publisher) IndexBuilt(ctx context.Context, report *indexer.Report) error {
	event := NewIndexBuiltEvent(report)
	err := p.producer.Publish(ctx, kafka.Event{
		Topic: p.topics.IndexBuilt,
		Key:   event.Collection,
		Value: event,
	})
	if err != nil {
		return fmt.Errorf("publishing index built: %w", err)
	}
	p.logger.Info("index built event published", "generation", event.Generation, "collection", event.Collection)
	return nil
}

// HandleIndexBuilt adapts fn to a Kafka message handler. Undecodable
// messages are logged and dropped so they do not block the partition.
func HandleIndexBuilt(fn func(ctx context.Context, event IndexBuiltEvent) error) kafka.MessageHandler {
	logger := slog.Default().With("component", "events")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[IndexBuiltEvent](value)
		if err != nil {
			logger.Warn("dropping malformed index built event", "key", string(key), "error", err)
			return nil
		}
		return fn(ctx, event)
	}
}
