package vectorindex

import (
	"context"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(3)
	point := Point{ID: 7, Vector: []float64{0.6, 0.8, 0}, Payload: Payload{"problem_name": "Two Sum"}}

	require.NoError(t, idx.Upsert(ctx, []Point{point}))
	once, ok := idx.Get(7)
	require.True(t, ok)

	require.NoError(t, idx.Upsert(ctx, []Point{point}))
	twice, ok := idx.Get(7)
	require.True(t, ok)

	assert.Equal(t, once, twice)
	assert.Equal(t, 1, idx.Len())
}

func TestMemoryUpsertReplacesWholePoint(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	require.NoError(t, idx.Upsert(ctx, []Point{{ID: 1, Vector: []float64{1, 0}, Payload: Payload{"a": 1, "b": 2}}}))
	require.NoError(t, idx.Upsert(ctx, []Point{{ID: 1, Vector: []float64{0, 1}, Payload: Payload{"a": 3}}}))

	got, _ := idx.Get(1)
	assert.Equal(t, []float64{0, 1}, got.Vector)
	assert.Equal(t, Payload{"a": 3}, got.Payload)
}

func TestMemoryStoresCopies(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	vec := []float64{1, 0}
	payload := Payload{"platform": "leetcode"}
	require.NoError(t, idx.Upsert(ctx, []Point{{ID: 1, Vector: vec, Payload: payload}}))
	vec[0] = 42
	payload["platform"] = "changed"

	got, _ := idx.Get(1)
	assert.Equal(t, []float64{1, 0}, got.Vector)
	assert.Equal(t, "leetcode", got.Payload["platform"])
}

func TestMemoryUpdateVectorsKeepsPayload(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	require.NoError(t, idx.Upsert(ctx, []Point{{ID: 1, Vector: []float64{0, 0}, Payload: Payload{"problem_name": "A"}}}))
	require.NoError(t, idx.UpdateVectors(ctx, []Point{{ID: 1, Vector: []float64{1, 0}}}))

	got, _ := idx.Get(1)
	assert.Equal(t, []float64{1, 0}, got.Vector)
	assert.Equal(t, Payload{"problem_name": "A"}, got.Payload)

	err := idx.UpdateVectors(ctx, []Point{{ID: 2, Vector: []float64{1, 0}}})
	assert.ErrorIs(t, err, apperrors.ErrIndexWrite)
}

func TestMemoryQueryOrdersAndProjects(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	require.NoError(t, idx.Upsert(ctx, []Point{
		{ID: 1, Vector: []float64{1, 0}, Payload: Payload{"problem_name": "A", "topics": []string{"x"}}},
		{ID: 2, Vector: []float64{0.6, 0.8}, Payload: Payload{"problem_name": "B"}},
		{ID: 3, Vector: []float64{0, 1}, Payload: Payload{"problem_name": "C"}},
		{ID: 4, Vector: []float64{0, 0}, Payload: nil},
	}))

	hits, err := idx.Query(ctx, []float64{1, 0}, 3, []string{"problem_name"})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{hits[0].ID, hits[1].ID, hits[2].ID})
	assert.InDelta(t, 1.0, hits[0].Score, 1e-12)
	assert.InDelta(t, 0.6, hits[1].Score, 1e-12)
	assert.Equal(t, Payload{"problem_name": "A"}, hits[0].Payload)
}

func TestMemoryDimensionContract(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(0)

	_, err := idx.Dimension(ctx)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.ErrorIs(t, idx.Upsert(ctx, []Point{{ID: 1, Vector: []float64{1}}}), ErrCollectionNotFound)

	require.NoError(t, idx.EnsureCollection(ctx, 2))
	require.NoError(t, idx.EnsureCollection(ctx, 2))
	assert.ErrorIs(t, idx.EnsureCollection(ctx, 3), apperrors.ErrDimensionMismatch)

	dim, err := idx.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, dim)

	err = idx.Upsert(ctx, []Point{{ID: 1, Vector: []float64{1, 0, 0}}})
	assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)
	_, err = idx.Query(ctx, []float64{1}, 10, nil)
	assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)
}
