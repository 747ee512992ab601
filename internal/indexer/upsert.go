package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/vectorindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/resilience"
)

// VectorItem is a freshly computed vector awaiting publication.
type VectorItem struct {
	ID     int64
	Vector []float64
}

// UpsertManager writes vectors to the target collection in bounded chunks,
// retrying each chunk with exponential backoff. A chunk that still fails is
// reported once and skipped; the remaining chunks are still written.
type UpsertManager struct {
	index      vectorindex.Index
	updater    vectorindex.VectorUpdater
	collection string
	chunkSize  int
	backoff    resilience.Backoff
	reporter   FailureReporter
	metrics    *metrics.Metrics
	now        func() time.Time
	logger     *slog.Logger
}

// UpsertOption customises an UpsertManager.
type UpsertOption func(*UpsertManager)

// WithReporter forwards abandoned chunks to r in addition to the log.
func WithReporter(r FailureReporter) UpsertOption {
	return func(m *UpsertManager) { m.reporter = r }
}

// WithMetrics records upserts, retries and failures.
func WithMetrics(mt *metrics.Metrics) UpsertOption {
	return func(m *UpsertManager) { m.metrics = mt }
}

// WithVectorOnly writes vectors through u, leaving stored payloads alone.
func WithVectorOnly(u vectorindex.VectorUpdater) UpsertOption {
	return func(m *UpsertManager) { m.updater = u }
}

// WithCollection names the target collection in reports.
func WithCollection(name string) UpsertOption {
	return func(m *UpsertManager) { m.collection = name }
}

func NewUpsertManager(index vectorindex.Index, chunkSize int, backoff resilience.Backoff, opts ...UpsertOption) *UpsertManager {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	m := &UpsertManager{
		index:     index,
		chunkSize: chunkSize,
		backoff:   backoff,
		now:       time.Now,
		logger:    slog.Default().With("component", "upsert-manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// VectorOnly reports whether payloads are left untouched.
func (m *UpsertManager) VectorOnly() bool { return m.updater != nil }

// Publish merges each item with its existing payload (empty when unknown)
// and writes the points chunk by chunk. The only error returned is context
// cancellation; write failures land in the report.
func (m *UpsertManager) Publish(ctx context.Context, items []VectorItem, existing map[int64]vectorindex.Payload) (BatchReport, error) {
	var report BatchReport
	for start := 0; start < len(items); start += m.chunkSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := min(start+m.chunkSize, len(items))
		points := make([]vectorindex.Point, 0, end-start)
		for _, it := range items[start:end] {
			points = append(points, vectorindex.Point{
				ID:      it.ID,
				Vector:  it.Vector,
				Payload: existing[it.ID].Clone(),
			})
		}

		report.Chunks++
		attempts, err := m.write(ctx, points)
		if err == nil {
			report.Upserted += len(points)
			if m.metrics != nil {
				m.metrics.PointsUpsertedTotal.Add(float64(len(points)))
			}
			m.logger.Debug("chunk written", "count", len(points), "first_id", points[0].ID)
			continue
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		failure := m.Fail(ctx, StageUpsert, ids(points), attempts, err)
		report.Failures = append(report.Failures, failure)
	}
	return report, nil
}

func (m *UpsertManager) write(ctx context.Context, points []vectorindex.Point) (int, error) {
	attempts := 0
	name := fmt.Sprintf("upsert ids %d..%d", points[0].ID, points[len(points)-1].ID)
	err := resilience.Retry(ctx, name, m.backoff, func(ctx context.Context) error {
		attempts++
		if attempts > 1 && m.metrics != nil {
			m.metrics.UpsertRetriesTotal.Inc()
		}
		if m.updater != nil {
			return m.updater.UpdateVectors(ctx, points)
		}
		return m.index.Upsert(ctx, points)
	})
	return attempts, apperrors.Wrap(apperrors.ErrIndexWrite, err)
}

// Fail logs and reports one abandoned chunk and returns its description.
// Reporter errors are logged and otherwise ignored.
func (m *UpsertManager) Fail(ctx context.Context, stage string, chunkIDs []int64, attempts int, cause error) BatchFailure {
	failure := BatchFailure{
		Stage:      stage,
		Collection: m.collection,
		IDs:        chunkIDs,
		Attempts:   attempts,
		Error:      cause.Error(),
		FailedAt:   m.now().UTC(),
	}
	m.logger.Error("chunk abandoned after retries",
		"stage", stage,
		"count", len(chunkIDs),
		"first_id", failure.FirstID(),
		"last_id", failure.LastID(),
		"attempts", attempts,
		"error", cause,
	)
	if m.metrics != nil {
		m.metrics.BatchFailuresTotal.WithLabelValues(stage).Inc()
	}
	if m.reporter != nil {
		if err := m.reporter.ReportBatchFailure(ctx, failure); err != nil {
			m.logger.Warn("failure report not delivered", "stage", stage, "first_id", failure.FirstID(), "error", err)
		}
	}
	return failure
}

func ids(points []vectorindex.Point) []int64 {
	out := make([]int64, len(points))
	for i, p := range points {
		out[i] = p.ID
	}
	return out
}
