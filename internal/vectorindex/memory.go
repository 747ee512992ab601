package vectorindex

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
)

// Memory is an exact brute-force index. A zero dimension means the
// collection has not been created yet.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	points    map[int64]Point
}

func NewMemory(dimension int) *Memory {
	return &Memory{
		dimension: dimension,
		points:    make(map[int64]Point),
	}
}

func (m *Memory) Retrieve(ctx context.Context, ids []int64) (map[int64]Payload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]Payload, len(ids))
	for _, id := range ids {
		if p, ok := m.points[id]; ok {
			out[id] = p.Payload.Clone()
		}
	}
	return out, nil
}

func (m *Memory) Upsert(ctx context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(points); err != nil {
		return err
	}
	for _, p := range points {
		m.points[p.ID] = Point{
			ID:      p.ID,
			Vector:  slices.Clone(p.Vector),
			Payload: p.Payload.Clone(),
		}
	}
	return nil
}

func (m *Memory) UpdateVectors(ctx context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(points); err != nil {
		return err
	}
	for _, p := range points {
		if _, ok := m.points[p.ID]; !ok {
			return fmt.Errorf("%w: point %d does not exist", apperrors.ErrIndexWrite, p.ID)
		}
	}
	for _, p := range points {
		existing := m.points[p.ID]
		existing.Vector = slices.Clone(p.Vector)
		m.points[p.ID] = existing
	}
	return nil
}

func (m *Memory) checkLocked(points []Point) error {
	if m.dimension == 0 {
		return ErrCollectionNotFound
	}
	for _, p := range points {
		if len(p.Vector) != m.dimension {
			return fmt.Errorf("%w: point %d has %d components, collection has %d",
				apperrors.ErrDimensionMismatch, p.ID, len(p.Vector), m.dimension)
		}
	}
	return nil
}

func (m *Memory) Query(ctx context.Context, vector []float64, limit int, fields []string) ([]ScoredPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dimension == 0 {
		return nil, ErrCollectionNotFound
	}
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d components, collection has %d",
			apperrors.ErrDimensionMismatch, len(vector), m.dimension)
	}
	hits := make([]ScoredPoint, 0, len(m.points))
	for _, p := range m.points {
		hits = append(hits, ScoredPoint{ID: p.ID, Score: cosine(vector, p.Vector), Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	for i := range hits {
		hits[i].Payload = project(hits[i].Payload, fields)
	}
	return hits, nil
}

func (m *Memory) Dimension(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dimension == 0 {
		return 0, ErrCollectionNotFound
	}
	return m.dimension, nil
}

func (m *Memory) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: collection dimension %d", apperrors.ErrInvalidInput, dimension)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.dimension {
	case 0:
		m.dimension = dimension
		return nil
	case dimension:
		return nil
	default:
		return fmt.Errorf("%w: collection has size %d, model needs %d",
			apperrors.ErrDimensionMismatch, m.dimension, dimension)
	}
}

// Get returns a copy of the stored point.
func (m *Memory) Get(id int64) (Point, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.points[id]
	if !ok {
		return Point{}, false
	}
	return Point{ID: p.ID, Vector: slices.Clone(p.Vector), Payload: p.Payload.Clone()}, true
}

// Len returns the number of stored points.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

func project(p Payload, fields []string) Payload {
	if len(fields) == 0 {
		return p.Clone()
	}
	out := make(Payload, len(fields))
	for _, f := range fields {
		if v, ok := p[f]; ok {
			out[f] = v
		}
	}
	return out
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
