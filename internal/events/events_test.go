package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (f *fakeProducer) Publish(ctx context.Context, event kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func topics() config.KafkaTopics {
	return config.Default().Kafka.Topics
}

func TestReportBatchFailure(t *testing.T) {
	producer := &fakeProducer{}
	p := NewPublisher(producer, topics())

	err := p.ReportBatchFailure(context.Background(), indexer.BatchFailure{
		Stage:      indexer.StageUpsert,
		Collection: "problems_v2",
		IDs:        []int64{101, 102, 103},
		Attempts:   5,
		Error:      "503",
	})
	require.NoError(t, err)
	require.Len(t, producer.events, 1)

	got := producer.events[0]
	assert.Equal(t, "index.batch-failed", got.Topic)
	assert.Equal(t, "problems_v2:101", got.Key)

	raw, err := json.Marshal(got.Value)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "upsert", decoded["stage"])
	assert.EqualValues(t, 101, decoded["first_id"])
	assert.EqualValues(t, 103, decoded["last_id"])
	assert.EqualValues(t, 5, decoded["attempts"])
}

func TestIndexBuiltRoundTripsThroughHandler(t *testing.T) {
	producer := &fakeProducer{}
	p := NewPublisher(producer, topics())
	builtAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	report := &indexer.Report{
		Generation:     "a1b2c3",
		Dimension:      42,
		TotalDocuments: 10,
		PointsUpserted: 8,
		SkippedPoints:  2,
		Failures:       []indexer.BatchFailure{{IDs: []int64{3, 4}}},
		CollectionName: "problems_v2",
		ModelBuiltAt:   builtAt,
	}
	require.NoError(t, p.IndexBuilt(context.Background(), report))
	require.Len(t, producer.events, 1)
	assert.Equal(t, "index.built", producer.events[0].Topic)
	assert.Equal(t, "problems_v2", producer.events[0].Key)

	raw, err := json.Marshal(producer.events[0].Value)
	require.NoError(t, err)

	var received IndexBuiltEvent
	handler := HandleIndexBuilt(func(ctx context.Context, e IndexBuiltEvent) error {
		received = e
		return nil
	})
	require.NoError(t, handler(context.Background(), []byte("problems_v2"), raw))
	assert.Equal(t, "a1b2c3", received.Generation)
	assert.Equal(t, 42, received.Dimension)
	assert.Equal(t, 1, received.FailedChunks)
	assert.True(t, builtAt.Equal(received.BuiltAt))
}

func TestHandleIndexBuiltDropsMalformed(t *testing.T) {
	called := false
	handler := HandleIndexBuilt(func(ctx context.Context, e IndexBuiltEvent) error {
		called = true
		return nil
	})
	assert.NoError(t, handler(context.Background(), nil, []byte("{not json")))
	assert.False(t, called)
}

func TestHandleIndexBuiltPropagatesCallbackError(t *testing.T) {
	boom := errors.New("reload failed")
	handler := HandleIndexBuilt(func(ctx context.Context, e IndexBuiltEvent) error { return boom })
	assert.ErrorIs(t, handler(context.Background(), nil, []byte(`{"generation":"x"}`)), boom)
}

func TestPublisherWrapsProducerErrors(t *testing.T) {
	down := errors.New("broker unavailable")
	p := NewPublisher(&fakeProducer{err: down}, topics())
	err := p.IndexBuilt(context.Background(), &indexer.Report{Generation: "g"})
	assert.ErrorIs(t, err, down)
	err = p.ReportBatchFailure(context.Background(), indexer.BatchFailure{IDs: []int64{1}})
	assert.ErrorIs(t, err, down)
}
