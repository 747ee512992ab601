package modelstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/tfidf"
	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	failSet error
	failGet error
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return "", m.failGet
	}
	v, ok := m.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) SetMany(ctx context.Context, values map[string]string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	for k, v := range values {
		m.data[k] = v
	}
	return nil
}

func (m *memKV) Ping(ctx context.Context) error { return nil }

func testModel(t *testing.T) *tfidf.Model {
	t.Helper()
	stats, err := tfidf.BuildStats(context.Background(), corpus.NewSliceSource([]corpus.Document{
		{ID: 1, Text: "graph traversal using dfs"},
		{ID: 2, Text: "binary search on sorted array"},
	}), 10)
	require.NoError(t, err)
	model, err := tfidf.NewModel(stats)
	require.NoError(t, err)
	return model
}

func TestPublishLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	store := New(kv)
	store.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	model := testModel(t)

	meta, err := store.Publish(ctx, model)
	require.NoError(t, err)
	assert.Equal(t, 9, meta.Dimension)
	assert.Contains(t, kv.data, VocabularyKey)
	assert.Contains(t, kv.data, IDFKey)
	assert.Contains(t, kv.data, MetaKey)

	loaded, loadedMeta, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, meta, loadedMeta)
	assert.Equal(t, model.Generation(), loaded.Generation())
	assert.Equal(t, model.VectorizeText("dfs on graph"), loaded.VectorizeText("dfs on graph"))
}

func TestLoadMissingKeyIsModelStoreError(t *testing.T) {
	_, _, err := New(newMemKV()).Load(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrModelStore)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestLoadLegacyWithoutMeta(t *testing.T) {
	kv := newMemKV()
	kv.data[VocabularyKey] = `["a","b"]`
	kv.data[IDFKey] = `{"a":1.5,"b":1}`

	model, meta, err := New(kv).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, model.Dimension())
	assert.Equal(t, model.Generation(), meta.Generation)
}

func TestLoadDetectsTampering(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		mutate  func(kv *memKV)
		wantErr error
	}{
		{
			name:    "meta dimension differs",
			mutate:  func(kv *memKV) { kv.data[MetaKey] = `{"generation":"x","dimension":3}` },
			wantErr: apperrors.ErrModelMismatch,
		},
		{
			name: "idf missing a term",
			mutate: func(kv *memKV) {
				kv.data[IDFKey] = `{"array":1.5}`
			},
			wantErr: apperrors.ErrModelStore,
		},
		{
			name:    "vocabulary not json",
			mutate:  func(kv *memKV) { kv.data[VocabularyKey] = `not-json` },
			wantErr: apperrors.ErrModelStore,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := newMemKV()
			store := New(kv)
			_, err := store.Publish(ctx, testModel(t))
			require.NoError(t, err)
			tt.mutate(kv)
			_, _, err = store.Load(ctx)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGenerationMismatch(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	store := New(kv)
	_, err := store.Publish(ctx, testModel(t))
	require.NoError(t, err)
	kv.data[MetaKey] = `{"generation":"stale","dimension":9,"total_documents":2}`

	_, _, err = store.Load(ctx)
	assert.ErrorIs(t, err, apperrors.ErrModelMismatch)
}

func TestPublishFailureIsModelStoreError(t *testing.T) {
	kv := newMemKV()
	kv.failSet = errors.New("READONLY")
	_, err := New(kv).Publish(context.Background(), testModel(t))
	assert.ErrorIs(t, err, apperrors.ErrModelStore)
	assert.Empty(t, kv.data)
}

func TestLoadBackendFailure(t *testing.T) {
	kv := newMemKV()
	kv.failGet = errors.New("connection refused")
	_, err := New(kv).LoadMeta(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrModelStore)
}
