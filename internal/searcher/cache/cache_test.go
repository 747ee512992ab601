package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore { return &memStore{data: map[string]string{}} }

func (m *memStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return nil
}

func (m *memStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func sample() []searcher.Result {
	return []searcher.Result{
		{ID: 7, Score: 0.9, Fields: map[string]string{"problem_name": "Two Sum", "platform": "leetcode"}},
		{ID: 3, Score: 0.4, Fields: map[string]string{"problem_name": "N/A", "platform": "codeforces"}},
	}
}

func TestGetOrComputeCachesPerGeneration(t *testing.T) {
	c := New(newMemStore(), config.RedisConfig{CacheTTL: time.Minute}, nil)
	ctx := context.Background()
	var calls atomic.Int64
	compute := func() ([]searcher.Result, error) {
		calls.Add(1)
		return sample(), nil
	}

	got, hit, err := c.GetOrCompute(ctx, "gen1", "Two  SUM", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, sample(), got)

	got, hit, err = c.GetOrCompute(ctx, "gen1", "two sum", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, sample(), got)
	assert.Equal(t, int64(1), calls.Load())

	_, hit, err = c.GetOrCompute(ctx, "gen2", "two sum", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(2), calls.Load())

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	c := New(newMemStore(), config.RedisConfig{}, nil)
	boom := errors.New("index down")
	_, _, err := c.GetOrCompute(context.Background(), "g", "q", func() ([]searcher.Result, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(context.Background(), "g", "q")
	assert.False(t, ok)
}

func TestInvalidateRemovesEntries(t *testing.T) {
	store := newMemStore()
	c := New(store, config.RedisConfig{}, nil)
	ctx := context.Background()
	c.Set(ctx, "g", "bfs", sample())
	store.data["unrelated"] = "keep"

	require.NoError(t, c.Invalidate(ctx))
	_, ok := c.Get(ctx, "g", "bfs")
	assert.False(t, ok)
	assert.Equal(t, "keep", store.data["unrelated"])
}

func TestNormalizeQueryKeepsOrder(t *testing.T) {
	assert.Equal(t, "binary search", normalizeQuery("  Binary\tSEARCH "))
	assert.NotEqual(t, buildKey("g", "search binary"), buildKey("g", "binary search"))
}

func TestCancelledCallerDoesNotAbortSharedCompute(t *testing.T) {
	c := New(newMemStore(), config.RedisConfig{CacheTTL: time.Minute}, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64
	compute := func() ([]searcher.Result, error) {
		calls.Add(1)
		close(started)
		<-release
		return sample(), nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrCompute(leaderCtx, "g", "binary search", compute)
		done <- err
	}()
	<-started

	waiterCtx, cancelWaiter := context.WithCancel(context.Background())
	cancelWaiter()
	_, _, err := c.GetOrCompute(waiterCtx, "g", "binary search", compute)
	assert.ErrorIs(t, err, context.Canceled)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	close(release)

	assert.Eventually(t, func() bool {
		_, ok := c.Get(context.Background(), "g", "binary search")
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), calls.Load())
}
