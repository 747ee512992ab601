package indexer

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/tracing"
)

// Failure stages.
const (
	StageRetrieve = "retrieve"
	StageUpsert   = "upsert"
)

// BatchFailure describes a chunk that was abandoned after exhausting its
// retries. The ids are enough for an operator to re-run just that range.
type BatchFailure struct {
	Stage      string    `json:"stage"`
	Collection string    `json:"collection"`
	IDs        []int64   `json:"ids"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error"`
	FailedAt   time.Time `json:"failed_at"`
}

// FirstID and LastID bound the chunk.
func (f BatchFailure) FirstID() int64 {
	if len(f.IDs) == 0 {
		return 0
	}
	return f.IDs[0]
}

func (f BatchFailure) LastID() int64 {
	if len(f.IDs) == 0 {
		return 0
	}
	return f.IDs[len(f.IDs)-1]
}

// FailureReporter surfaces abandoned chunks outside the process log.
type FailureReporter interface {
	ReportBatchFailure(ctx context.Context, failure BatchFailure) error
}

// BuildNotifier is told about every completed build.
type BuildNotifier interface {
	IndexBuilt(ctx context.Context, report *Report) error
}

// BatchReport summarizes one UpsertManager.Publish call.
type BatchReport struct {
	Chunks   int
	Upserted int
	Failures []BatchFailure
}

func (r *BatchReport) merge(o BatchReport) {
	r.Chunks += o.Chunks
	r.Upserted += o.Upserted
	r.Failures = append(r.Failures, o.Failures...)
}

// Report summarizes a full build.
type Report struct {
	Generation     string
	Dimension      int
	TotalDocuments int
	Pass2Documents int
	PointsUpserted int
	SkippedPoints  int
	Failures       []BatchFailure
	Pass1Duration  time.Duration
	Pass2Duration  time.Duration
	ModelPublished bool
	ModelBuiltAt   time.Time
	CollectionName string
	PayloadSource  string
	VectorOnly     bool
	// Trace holds per-phase timings of the run.
	Trace          *tracing.Span
}
