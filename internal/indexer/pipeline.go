// Package indexer runs the two-pass build: pass 1 derives the vocabulary and
// IDF model from the corpus, pass 2 re-reads the corpus, vectorizes every
// statement and publishes the vectors to the target collection. The model is
// published last so that readers never see a model newer than the vectors.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/modelstore"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/tfidf"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

// ModelPublisher persists the built model for the query side.
type ModelPublisher interface {
	Publish(ctx context.Context, model *tfidf.Model) (modelstore.Meta, error)
}

// Target is the collection receiving vectors.
type Target interface {
	vectorindex.Index
	vectorindex.CollectionManager
}

// Deps wires a Pipeline to its collaborators. Payloads may equal Target when
// payloads live in the target collection already. Notifier, Reporter and
// Metrics are optional.
type Deps struct {
	Source   corpus.Source
	Payloads vectorindex.Index
	Target   Target
	Models   ModelPublisher
	Notifier BuildNotifier
	Reporter FailureReporter
	Metrics  *metrics.Metrics
}

// Pipeline is a configured build. Run may be called repeatedly.
type Pipeline struct {
	cfg     config.IndexerConfig
	names   config.VectorIndexConfig
	deps    Deps
	upserts *UpsertManager
	logger  *slog.Logger
}

// BackoffFromConfig translates the indexer retry settings.
func BackoffFromConfig(cfg config.IndexerConfig) resilience.Backoff {
	return resilience.Backoff{
		MaxAttempts:    cfg.MaxAttempts,
		BaseDelay:      cfg.BaseDelay,
		MaxJitter:      cfg.MaxJitter,
		MaxDelay:       cfg.MaxDelay,
		AttemptTimeout: cfg.AttemptTimeout,
	}
}

func NewPipeline(cfg config.IndexerConfig, names config.VectorIndexConfig, deps Deps) (*Pipeline, error) {
	if deps.Source == nil || deps.Target == nil || deps.Models == nil {
		return nil, fmt.Errorf("%w: pipeline needs a source, a target and a model store", apperrors.ErrInvalidInput)
	}
	if deps.Payloads == nil {
		deps.Payloads = deps.Target
	}
	opts := []UpsertOption{WithCollection(names.Collection)}
	if deps.Reporter != nil {
		opts = append(opts, WithReporter(deps.Reporter))
	}
	if deps.Metrics != nil {
		opts = append(opts, WithMetrics(deps.Metrics))
	}
	if cfg.VectorOnly {
		updater, ok := deps.Target.(vectorindex.VectorUpdater)
		if !ok {
			return nil, fmt.Errorf("%w: vector-only mode needs a target that updates vectors in place", apperrors.ErrInvalidInput)
		}
		opts = append(opts, WithVectorOnly(updater))
	}
	return &Pipeline{
		cfg:     cfg,
		names:   names,
		deps:    deps,
		upserts: NewUpsertManager(deps.Target, cfg.UpsertBatchSize, BackoffFromConfig(cfg), opts...),
		logger:  slog.Default().With("component", "indexer"),
	}, nil
}

// Run executes both passes. Corpus read failures, an empty corpus, a
// dimension conflict with the existing collection and model store failures
// are fatal. Chunks that cannot be written are reported and skipped.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	ctx, root := tracing.StartSpan(ctx, "index_build", "")
	defer root.End()
	report := &Report{
		CollectionName: p.names.Collection,
		PayloadSource:  p.names.PayloadCollection(),
		VectorOnly:     p.upserts.VectorOnly(),
		Trace:          root,
	}

	start := time.Now()
	_, span := tracing.StartChildSpan(ctx, "pass1")
	stats, err := tfidf.BuildStats(ctx, p.deps.Source, p.cfg.CorpusBatchSize)
	span.End()
	if err != nil {
		return nil, err
	}
	span.SetAttr("docs", stats.TotalDocuments)
	p.observePass("1", stats.TotalDocuments, time.Since(start))
	report.Pass1Duration = time.Since(start)

	model, err := tfidf.NewModel(stats)
	if err != nil {
		return nil, fmt.Errorf("building idf model: %w", err)
	}
	report.Generation = model.Generation()
	report.Dimension = model.Dimension()
	report.TotalDocuments = model.TotalDocuments()
	if p.deps.Metrics != nil {
		p.deps.Metrics.VocabularySize.Set(float64(model.Dimension()))
	}

	if err := p.prepareTarget(ctx, model.Dimension()); err != nil {
		return nil, err
	}

	start = time.Now()
	passCtx, span := tracing.StartChildSpan(ctx, "pass2")
	err = p.secondPass(passCtx, model, report)
	span.End()
	if err != nil {
		return nil, err
	}
	span.SetAttr("docs", report.Pass2Documents)
	span.SetAttr("upserted", report.PointsUpserted)
	report.Pass2Duration = time.Since(start)
	p.observePass("2", report.Pass2Documents, report.Pass2Duration)
	if report.Pass2Documents != report.TotalDocuments {
		p.logger.Warn("corpus changed between passes",
			"pass1_docs", report.TotalDocuments,
			"pass2_docs", report.Pass2Documents,
		)
	}

	_, span = tracing.StartChildSpan(ctx, "publish_model")
	meta, err := p.deps.Models.Publish(ctx, model)
	span.End()
	if err != nil {
		return nil, err
	}
	report.ModelPublished = true
	report.ModelBuiltAt = meta.BuiltAt

	p.logger.Info("build complete",
		"generation", report.Generation,
		"dimension", report.Dimension,
		"upserted", report.PointsUpserted,
		"skipped", report.SkippedPoints,
		"failed_chunks", len(report.Failures),
	)
	if p.deps.Notifier != nil {
		if err := p.deps.Notifier.IndexBuilt(ctx, report); err != nil {
			p.logger.Warn("build notification not delivered", "error", err)
		}
	}
	return report, nil
}

func (p *Pipeline) prepareTarget(ctx context.Context, dim int) error {
	if p.cfg.CreateCollection {
		return p.deps.Target.EnsureCollection(ctx, dim)
	}
	current, err := p.deps.Target.Dimension(ctx)
	if err != nil {
		return fmt.Errorf("reading target collection %s: %w", p.names.Collection, err)
	}
	if current != dim {
		return fmt.Errorf("%w: collection %s has size %d, vocabulary has %d terms; rebuild the collection",
			apperrors.ErrDimensionMismatch, p.names.Collection, current, dim)
	}
	return nil
}

func (p *Pipeline) secondPass(ctx context.Context, model *tfidf.Model, report *Report) error {
	p.logger.Info("starting second pass", "workers", p.cfg.Workers, "vector_only", p.upserts.VectorOnly())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.cfg.Workers, 1))
	var mu sync.Mutex

	streamErr := p.deps.Source.Stream(gctx, p.cfg.CorpusBatchSize, func(docs []corpus.Document) error {
		mu.Lock()
		report.Pass2Documents += len(docs)
		mu.Unlock()
		g.Go(func() error {
			batch, err := p.processBatch(gctx, model, docs)
			mu.Lock()
			report.PointsUpserted += batch.Upserted
			report.Failures = append(report.Failures, batch.Failures...)
			for _, f := range batch.Failures {
				report.SkippedPoints += len(f.IDs)
			}
			mu.Unlock()
			return err
		})
		return nil
	})
	workerErr := g.Wait()

	if streamErr != nil && !errors.Is(streamErr, context.Canceled) {
		return apperrors.Wrap(apperrors.ErrCorpusRead, fmt.Errorf("second pass: %w", streamErr))
	}
	if workerErr != nil {
		return workerErr
	}
	if streamErr != nil {
		return streamErr
	}
	return ctx.Err()
}

func (p *Pipeline) processBatch(ctx context.Context, model *tfidf.Model, docs []corpus.Document) (BatchReport, error) {
	var report BatchReport
	for start := 0; start < len(docs); start += p.upserts.chunkSize {
		chunk := docs[start:min(start+p.upserts.chunkSize, len(docs))]
		items := make([]VectorItem, len(chunk))
		chunkIDs := make([]int64, len(chunk))
		for i, d := range chunk {
			items[i] = VectorItem{ID: d.ID, Vector: model.VectorizeText(d.Text)}
			chunkIDs[i] = d.ID
		}

		var existing map[int64]vectorindex.Payload
		if !p.upserts.VectorOnly() {
			var attempts int
			var err error
			existing, attempts, err = p.retrieve(ctx, chunkIDs)
			if err != nil {
				if ctx.Err() != nil {
					return report, ctx.Err()
				}
				report.Chunks++
				report.Failures = append(report.Failures, p.upserts.Fail(ctx, StageRetrieve, chunkIDs, attempts, err))
				continue
			}
		}

		published, err := p.upserts.Publish(ctx, items, existing)
		report.merge(published)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func (p *Pipeline) retrieve(ctx context.Context, chunkIDs []int64) (map[int64]vectorindex.Payload, int, error) {
	var (
		out      map[int64]vectorindex.Payload
		attempts int
	)
	name := fmt.Sprintf("retrieve payloads %d..%d", chunkIDs[0], chunkIDs[len(chunkIDs)-1])
	err := resilience.Retry(ctx, name, p.upserts.backoff, func(ctx context.Context) error {
		attempts++
		payloads, err := p.deps.Payloads.Retrieve(ctx, chunkIDs)
		if err != nil {
			return err
		}
		out = payloads
		return nil
	})
	if err != nil {
		return nil, attempts, apperrors.Wrap(apperrors.ErrIndexRead, err)
	}
	return out, attempts, nil
}

func (p *Pipeline) observePass(pass string, docs int, d time.Duration) {
	if p.deps.Metrics == nil {
		return
	}
	p.deps.Metrics.DocsScannedTotal.WithLabelValues(pass).Add(float64(docs))
	p.deps.Metrics.BuildDuration.WithLabelValues(pass).Observe(d.Seconds())
}
