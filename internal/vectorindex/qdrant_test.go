package vectorindex

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	APIKey string
	Body   map[string]any
}

type fakeQdrant struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(w http.ResponseWriter, r recordedRequest)
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	rec := recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		APIKey: r.Header.Get("api-key"),
	}
	if len(data) > 0 {
		json.Unmarshal(data, &rec.Body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	f.respond(w, rec)
}

func (f *fakeQdrant) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestQdrant(t *testing.T, respond func(w http.ResponseWriter, r recordedRequest)) (*Qdrant, *fakeQdrant) {
	t.Helper()
	fake := &fakeQdrant{respond: respond}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	q := NewQdrant(config.VectorIndexConfig{URL: srv.URL + "/", APIKey: "secret"}, "problems_v2")
	return q, fake
}

func TestQdrantRetrieve(t *testing.T) {
	q, fake := newTestQdrant(t, func(w http.ResponseWriter, r recordedRequest) {
		io.WriteString(w, `{"result":[{"id":7,"payload":{"problem_name":"Two Sum","platform":"leetcode"}}],"status":"ok"}`)
	})

	got, err := q.Retrieve(context.Background(), []int64{7, 8})
	require.NoError(t, err)
	assert.Equal(t, map[int64]Payload{7: {"problem_name": "Two Sum", "platform": "leetcode"}}, got)

	req := fake.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/collections/problems_v2/points", req.Path)
	assert.Equal(t, "secret", req.APIKey)
	assert.Equal(t, []any{7.0, 8.0}, req.Body["ids"])
	assert.Equal(t, true, req.Body["with_payload"])
}

func TestQdrantUpsertSendsEmptyPayload(t *testing.T) {
	q, fake := newTestQdrant(t, func(w http.ResponseWriter, r recordedRequest) {
		io.WriteString(w, `{"result":{"status":"completed"}}`)
	})

	err := q.Upsert(context.Background(), []Point{{ID: 1, Vector: []float64{0.5, 0.5}}})
	require.NoError(t, err)

	req := fake.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "wait=true", req.Query)
	points := req.Body["points"].([]any)
	require.Len(t, points, 1)
	point := points[0].(map[string]any)
	assert.Equal(t, map[string]any{}, point["payload"])
	assert.Equal(t, []any{0.5, 0.5}, point["vector"])
}

func TestQdrantUpdateVectors(t *testing.T) {
	q, fake := newTestQdrant(t, func(w http.ResponseWriter, r recordedRequest) {
		io.WriteString(w, `{"result":{"status":"completed"}}`)
	})
	require.NoError(t, q.UpdateVectors(context.Background(), []Point{{ID: 3, Vector: []float64{1}}}))

	req := fake.last()
	assert.Equal(t, "/collections/problems_v2/points/vectors", req.Path)
	point := req.Body["points"].([]any)[0].(map[string]any)
	assert.NotContains(t, point, "payload")
}

func TestQdrantQuery(t *testing.T) {
	q, fake := newTestQdrant(t, func(w http.ResponseWriter, r recordedRequest) {
		io.WriteString(w, `{"result":{"points":[{"id":2,"score":0.91,"payload":{"problem_name":"B"}},{"id":5,"score":0.4}]}}`)
	})

	hits, err := q.Query(context.Background(), []float64{1, 0}, 100, []string{"problem_name", "platform"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, ScoredPoint{ID: 2, Score: 0.91, Payload: Payload{"problem_name": "B"}}, hits[0])
	assert.Equal(t, Payload{}, hits[1].Payload)

	req := fake.last()
	assert.Equal(t, "/collections/problems_v2/points/query", req.Path)
	assert.Equal(t, 100.0, req.Body["limit"])
	assert.Equal(t, map[string]any{"include": []any{"problem_name", "platform"}}, req.Body["with_payload"])
}

func TestQdrantQueryDimensionError(t *testing.T) {
	q, _ := newTestQdrant(t, func(w http.ResponseWriter, r recordedRequest) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"status":{"error":"Wrong input: Vector dimension error: expected dim: 3, got 2"},"time":0.0001}`)
	})
	_, err := q.Query(context.Background(), []float64{1, 0}, 10, nil)
	assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)
	assert.NotErrorIs(t, err, apperrors.ErrIndexRead)
	assert.Equal(t, http.StatusConflict, apperrors.HTTPStatusCode(err))

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
}

func TestQdrantQueryBadRequestIsIndexRead(t *testing.T) {
	q, _ := newTestQdrant(t, func(w http.ResponseWriter, r recordedRequest) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"status":{"error":"Wrong input: limit must be positive"}}`)
	})
	_, err := q.Query(context.Background(), []float64{1, 0}, 0, nil)
	assert.ErrorIs(t, err, apperrors.ErrIndexRead)
	assert.NotErrorIs(t, err, apperrors.ErrDimensionMismatch)
}

func TestQdrantWriteErrorIsIndexWrite(t *testing.T) {
	q, _ := newTestQdrant(t, func(w http.ResponseWriter, r recordedRequest) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"status":{"error":"overloaded"}}`)
	})
	err := q.Upsert(context.Background(), []Point{{ID: 1, Vector: []float64{1}}})
	assert.ErrorIs(t, err, apperrors.ErrIndexWrite)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "overloaded")
}

func TestQdrantEnsureCollection(t *testing.T) {
	tests := []struct {
		name       string
		existing   int
		dimension  int
		wantErr    error
		wantCreate bool
	}{
		{name: "missing is created", existing: 0, dimension: 9, wantCreate: true},
		{name: "same size is kept", existing: 9, dimension: 9},
		{name: "different size fails", existing: 4, dimension: 9, wantErr: apperrors.ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var created map[string]any
			q, _ := newTestQdrant(t, func(w http.ResponseWriter, r recordedRequest) {
				switch r.Method {
				case http.MethodGet:
					if tt.existing == 0 {
						w.WriteHeader(http.StatusNotFound)
						io.WriteString(w, `{"status":{"error":"Not found"}}`)
						return
					}
					json.NewEncoder(w).Encode(map[string]any{
						"result": map[string]any{"config": map[string]any{"params": map[string]any{
							"vectors": map[string]any{"size": tt.existing, "distance": "Cosine"},
						}}},
					})
				case http.MethodPut:
					created = r.Body
					io.WriteString(w, `{"result":true}`)
				}
			})

			err := q.EnsureCollection(context.Background(), tt.dimension)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.wantCreate {
				assert.Equal(t, map[string]any{"size": 9.0, "distance": "Cosine"}, created["vectors"])
			} else {
				assert.Nil(t, created)
			}
		})
	}
}

func TestQdrantDimensionNotFound(t *testing.T) {
	q, _ := newTestQdrant(t, func(w http.ResponseWriter, r recordedRequest) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := q.Dimension(context.Background())
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}
