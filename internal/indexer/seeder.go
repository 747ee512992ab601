package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/vectorindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
)

// MetadataSource streams problem metadata in id order.
type MetadataSource interface {
	Stream(ctx context.Context, batchSize int, fn func([]corpus.ProblemMetadata) error) error
}

// SeedReport summarizes a seeding run.
type SeedReport struct {
	Dimension int
	Scanned   int
	Upserted  int
	Failures  []BatchFailure
}

// Seeder loads problem metadata into the payload collection as zero-vector
// points, so that the build can later copy payloads from it.
type Seeder struct {
	source    MetadataSource
	target    Target
	upserts   *UpsertManager
	batchSize int
	logger    *slog.Logger
}

func NewSeeder(source MetadataSource, target Target, batchSize int, upserts *UpsertManager) *Seeder {
	return &Seeder{
		source:    source,
		target:    target,
		upserts:   upserts,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "seeder"),
	}
}

// Run seeds every problem. dimension is used to create a missing collection;
// an existing collection keeps its own size.
func (s *Seeder) Run(ctx context.Context, dimension int) (SeedReport, error) {
	var report SeedReport
	dim, err := s.target.Dimension(ctx)
	switch {
	case errors.Is(err, vectorindex.ErrCollectionNotFound):
		if dimension <= 0 {
			return report, fmt.Errorf("%w: payload collection is missing and no dimension was given", apperrors.ErrInvalidInput)
		}
		if err := s.target.EnsureCollection(ctx, dimension); err != nil {
			return report, err
		}
		dim = dimension
	case err != nil:
		return report, err
	}
	report.Dimension = dim

	err = s.source.Stream(ctx, s.batchSize, func(rows []corpus.ProblemMetadata) error {
		items := make([]VectorItem, len(rows))
		payloads := make(map[int64]vectorindex.Payload, len(rows))
		for i, row := range rows {
			items[i] = VectorItem{ID: row.ID, Vector: make([]float64, dim)}
			payloads[row.ID] = row.Payload()
		}
		published, err := s.upserts.Publish(ctx, items, payloads)
		report.Scanned += len(rows)
		report.Upserted += published.Upserted
		report.Failures = append(report.Failures, published.Failures...)
		return err
	})
	if err != nil {
		return report, err
	}
	s.logger.Info("seeding complete",
		"scanned", report.Scanned,
		"upserted", report.Upserted,
		"failed_chunks", len(report.Failures),
	)
	return report, nil
}
