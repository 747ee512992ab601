// Package searcher answers free-text queries: the query is grown with the
// thesaurus, vectorized against the published TF-IDF model and matched
// against the vector index by cosine similarity.
package searcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/modelstore"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/tfidf"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/thesaurus"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/resilience"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ModelLoader reads the published model.
type ModelLoader interface {
	Load(ctx context.Context) (*tfidf.Model, modelstore.Meta, error)
}

// ResultCache stores unfiltered result lists per model generation and
// expanded term text.
type ResultCache interface {
	GetOrCompute(ctx context.Context, generation, terms string, compute func() ([]Result, error)) ([]Result, bool, error)
	Invalidate(ctx context.Context) error
}

// Request is one search.
type Request struct {
	Query    string
	Platform string
}

// Result is one matching problem. Fields holds the configured payload
// fields, with missing ones set to the not-available marker.
type Result struct {
	ID     int64
	Score  float64
	Fields map[string]string
}

// MarshalJSON flattens the payload fields next to id and score.
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	out["score"] = r.Score
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Result{Fields: make(map[string]string, len(raw))}
	for k, v := range raw {
		switch k {
		case "id":
			n, ok := v.(float64)
			if !ok {
				return fmt.Errorf("result id has type %T", v)
			}
			r.ID = int64(n)
		case "score":
			n, ok := v.(float64)
			if !ok {
				return fmt.Errorf("result score has type %T", v)
			}
			r.Score = n
		default:
			r.Fields[k] = fmt.Sprint(v)
		}
	}
	return nil
}

// Response is the outcome of a search.
type Response struct {
	Query         string   `json:"query"`
	ExpandedTerms []string `json:"expanded_terms"`
	Generation    string   `json:"generation"`
	Platform      string   `json:"platform,omitempty"`
	Results       []Result `json:"results"`
	Total         int      `json:"total"`
	CacheHit      bool     `json:"cache_hit"`
	TookMs        int64    `json:"took_ms"`
}

type loadedModel struct {
	model *tfidf.Model
	meta  modelstore.Meta
}

// Processor runs searches. It is safe for concurrent use.
type Processor struct {
	cfg       config.SearchConfig
	models    ModelLoader
	index     vectorindex.Index
	thesaurus *thesaurus.Thesaurus
	results   ResultCache
	metrics   *metrics.Metrics
	breaker   *resilience.Breaker
	vectors   *lru.Cache[string, []float64]
	current   atomic.Pointer[loadedModel]
	loads     singleflight.Group
	logger    *slog.Logger
}

// Option customises a Processor.
type Option func(*Processor)

// WithResultCache caches result lists, typically in Redis.
func WithResultCache(c ResultCache) Option {
	return func(p *Processor) { p.results = c }
}

// WithMetrics records query, cache and model metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

func NewProcessor(cfg config.SearchConfig, models ModelLoader, index vectorindex.Index, th *thesaurus.Thesaurus, opts ...Option) *Processor {
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.NotAvailable == "" {
		cfg.NotAvailable = "N/A"
	}
	if cfg.SharedTimeout <= 0 {
		cfg.SharedTimeout = 10 * time.Second
	}
	if th == nil {
		th = thesaurus.Default()
	}
	p := &Processor{
		cfg:       cfg,
		models:    models,
		index:     index,
		thesaurus: th,
		logger:    slog.Default().With("component", "query-processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if cfg.QueryCacheSize > 0 {
		p.vectors, _ = lru.New[string, []float64](cfg.QueryCacheSize)
	}
	p.breaker = resilience.NewBreaker("vector-index", resilience.BreakerConfig{
		FailureThreshold: cfg.BreakerFailures,
		ResetTimeout:     cfg.BreakerReset,
		OnStateChange: func(s resilience.State) {
			if p.metrics != nil {
				p.metrics.IndexBreakerState.Set(float64(s))
			}
		},
	})
	return p
}

// Search expands, vectorizes and runs req. A query whose expanded form
// shares no term with the vocabulary returns no results without touching
// the index.
func (p *Processor) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query must be a non-empty string", apperrors.ErrInvalidInput)
	}
	if p.cfg.MaxQueryLength > 0 && len(query) > p.cfg.MaxQueryLength {
		return nil, fmt.Errorf("%w: query exceeds %d bytes", apperrors.ErrInvalidInput, p.cfg.MaxQueryLength)
	}

	loaded, err := p.model(ctx)
	if err != nil {
		p.countQuery("error")
		return nil, err
	}

	expansion := p.thesaurus.Expand(query)
	if expansion.Grew() {
		log.Debug("query expanded", "query", query, "expanded", expansion.Text())
	}
	if p.metrics != nil {
		p.metrics.ExpansionTermsCount.Observe(float64(len(expansion.Terms)))
	}

	var (
		results  []Result
		cacheHit bool
	)
	if p.results != nil {
		results, cacheHit, err = p.results.GetOrCompute(ctx, loaded.meta.Generation, expansion.Text(), func() ([]Result, error) {
			sctx, cancel := p.shared(ctx)
			defer cancel()
			return p.execute(sctx, loaded, expansion)
		})
	} else {
		results, err = p.execute(ctx, loaded, expansion)
	}
	if err != nil {
		p.countQuery("error")
		if errors.Is(err, apperrors.ErrDimensionMismatch) {
			p.current.CompareAndSwap(loaded, nil)
		}
		return nil, err
	}

	results = filterPlatform(results, req.Platform)
	took := time.Since(start)

	resultType := "hit"
	if len(results) == 0 {
		resultType = "empty"
	}
	p.countQuery(resultType)
	if p.metrics != nil {
		cacheStatus := "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
		p.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(took.Seconds())
		p.metrics.SearchResultsCount.Observe(float64(len(results)))
	}

	log.Info("search completed",
		"query", query,
		"expanded_terms", len(expansion.Terms),
		"platform", req.Platform,
		"returned", len(results),
		"cache_hit", cacheHit,
		"latency_ms", took.Milliseconds(),
	)
	return &Response{
		Query:         query,
		ExpandedTerms: expansion.Terms,
		Generation:    loaded.meta.Generation,
		Platform:      req.Platform,
		Results:       results,
		Total:         len(results),
		CacheHit:      cacheHit,
		TookMs:        took.Milliseconds(),
	}, nil
}

// Expand exposes the query expansion on its own.
func (p *Processor) Expand(query string) thesaurus.Expansion {
	return p.thesaurus.Expand(query)
}

func (p *Processor) execute(ctx context.Context, loaded *loadedModel, expansion thesaurus.Expansion) ([]Result, error) {
	text := expansion.Text()
	vec := p.vectorize(loaded, text)
	if tfidf.IsZero(vec) {
		return []Result{}, nil
	}

	var hits []vectorindex.ScoredPoint
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		hits, err = p.index.Query(ctx, vec, p.cfg.Limit, p.cfg.PayloadFields)
		return err
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrIndexRead, err)
		}
		if errors.Is(err, apperrors.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.ErrIndexRead, err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{ID: h.ID, Score: h.Score, Fields: p.fields(h.Payload)}
	}
	return results, nil
}

func (p *Processor) vectorize(loaded *loadedModel, text string) []float64 {
	if p.vectors == nil {
		return loaded.model.VectorizeText(text)
	}
	key := loaded.meta.Generation + "\x00" + text
	if vec, ok := p.vectors.Get(key); ok {
		p.countCache("vector", true)
		return vec
	}
	p.countCache("vector", false)
	vec := loaded.model.VectorizeText(text)
	p.vectors.Add(key, vec)
	return vec
}

func (p *Processor) fields(payload vectorindex.Payload) map[string]string {
	out := make(map[string]string, len(p.cfg.PayloadFields))
	for _, name := range p.cfg.PayloadFields {
		v, ok := payload[name]
		if !ok || v == nil {
			out[name] = p.cfg.NotAvailable
			continue
		}
		if s, ok := v.(string); ok {
			out[name] = s
			continue
		}
		out[name] = fmt.Sprint(v)
	}
	return out
}

func filterPlatform(results []Result, platform string) []Result {
	want := strings.ToLower(strings.TrimSpace(platform))
	if want == "" {
		return results
	}
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if strings.ToLower(strings.TrimSpace(r.Fields["platform"])) == want {
			out = append(out, r)
		}
	}
	return out
}

// model returns the cached model, loading it on first use. Concurrent
// callers share a single load, which outlives any one caller's context.
func (p *Processor) model(ctx context.Context) (*loadedModel, error) {
	if m := p.current.Load(); m != nil {
		return m, nil
	}
	ch := p.loads.DoChan("model", func() (any, error) {
		if m := p.current.Load(); m != nil {
			return m, nil
		}
		sctx, cancel := p.shared(ctx)
		defer cancel()
		m, err := p.load(sctx)
		if err != nil {
			return nil, err
		}
		p.current.Store(m)
		return m, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*loadedModel), nil
	}
}

// shared detaches work that several callers wait on from the caller that
// happened to start it.
func (p *Processor) shared(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), p.cfg.SharedTimeout)
}

func (p *Processor) load(ctx context.Context) (*loadedModel, error) {
	model, meta, err := p.models.Load(ctx)
	if err != nil {
		p.countReload("failure")
		return nil, err
	}
	if p.cfg.ValidateIndexDim {
		dim, err := p.index.Dimension(ctx)
		if err != nil {
			p.countReload("failure")
			return nil, apperrors.Wrap(apperrors.ErrIndexRead, err)
		}
		if dim != model.Dimension() {
			p.countReload("failure")
			return nil, fmt.Errorf("%w: index has size %d, model has %d terms",
				apperrors.ErrModelMismatch, dim, model.Dimension())
		}
	}
	p.countReload("success")
	if p.metrics != nil {
		p.metrics.ModelDimension.Set(float64(model.Dimension()))
	}
	p.logger.Info("model loaded",
		"generation", meta.Generation,
		"dimension", model.Dimension(),
		"total_documents", meta.TotalDocuments,
	)
	return &loadedModel{model: model, meta: meta}, nil
}

// Reload loads the published model and swaps it in. The current model keeps
// serving when the load fails.
func (p *Processor) Reload(ctx context.Context) error {
	v, err, _ := p.loads.Do("reload", func() (any, error) {
		sctx, cancel := p.shared(ctx)
		defer cancel()
		return p.load(sctx)
	})
	if err != nil {
		return err
	}
	next := v.(*loadedModel)
	prev := p.current.Swap(next)
	if prev == nil || prev.meta.Generation != next.meta.Generation {
		p.purge(ctx)
	}
	return nil
}

// Invalidate drops the cached model, query vectors and cached results. The
// next search reloads the model.
func (p *Processor) Invalidate(ctx context.Context) error {
	p.current.Store(nil)
	return p.purge(ctx)
}

func (p *Processor) purge(ctx context.Context) error {
	if p.vectors != nil {
		p.vectors.Purge()
	}
	if p.results == nil {
		return nil
	}
	if err := p.results.Invalidate(ctx); err != nil {
		p.logger.Warn("result cache invalidation failed", "error", err)
		return err
	}
	return nil
}

// Generation returns the generation being served, or "" before the first
// load.
func (p *Processor) Generation() string {
	if m := p.current.Load(); m != nil {
		return m.meta.Generation
	}
	return ""
}

// Model returns the metadata of the model being served, loading it if
// needed.
func (p *Processor) Model(ctx context.Context) (modelstore.Meta, error) {
	m, err := p.model(ctx)
	if err != nil {
		return modelstore.Meta{}, err
	}
	return m.meta, nil
}

// BreakerState reports the vector index breaker.
func (p *Processor) BreakerState() resilience.State {
	return p.breaker.State()
}

func (p *Processor) countQuery(resultType string) {
	if p.metrics != nil {
		p.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}

func (p *Processor) countReload(status string) {
	if p.metrics != nil {
		p.metrics.ModelReloadsTotal.WithLabelValues(status).Inc()
	}
}

func (p *Processor) countCache(cache string, hit bool) {
	if p.metrics == nil {
		return
	}
	if hit {
		p.metrics.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		p.metrics.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}
