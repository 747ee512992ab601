// Package cache keeps search result lists in Redis, keyed by the model
// generation and the expanded query terms, so that a new build never serves
// results computed against an older model.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// Store is the subset of the Redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type ResultCache struct {
	client  Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(client Store, cfg config.RedisConfig, m *metrics.Metrics) *ResultCache {
	return &ResultCache{
		client:  client,
		ttl:     cfg.CacheTTL,
		metrics: m,
		logger:  slog.Default().With("component", "result-cache"),
	}
}

func (c *ResultCache) Get(ctx context.Context, generation, terms string) ([]searcher.Result, bool) {
	key := buildKey(generation, terms)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var results []searcher.Result
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "terms", terms, "key", key)
	return results, true
}

func (c *ResultCache) Set(ctx context.Context, generation, terms string, results []searcher.Result) {
	key := buildKey(generation, terms)
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns cached results or runs computeFn once per key across
// concurrent callers. Errors from computeFn are not cached. A caller whose
// context ends stops waiting; the shared computation carries on for the rest.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	generation, terms string,
	computeFn func() ([]searcher.Result, error),
) ([]searcher.Result, bool, error) {
	if results, ok := c.Get(ctx, generation, terms); ok {
		return results, true, nil
	}
	key := buildKey(generation, terms)
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		results, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(detached, generation, terms, results)
		return results, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]searcher.Result), false, nil
	}
}

func (c *ResultCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResultCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues("result").Inc()
	}
}

func (c *ResultCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues("result").Inc()
	}
}

func buildKey(generation, terms string) string {
	raw := generation + "|" + normalizeQuery(terms)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, generation, hash[:16])
}

// normalizeQuery lower-cases and collapses whitespace.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
