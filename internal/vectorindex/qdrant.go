package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
)

// HTTPError is a non-2xx answer from Qdrant.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("qdrant %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Qdrant is a REST client bound to one collection.
type Qdrant struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
	logger     *slog.Logger
}

// NewQdrant builds a client for collection using the connection settings in
// cfg.
func NewQdrant(cfg config.VectorIndexConfig, collection string) *Qdrant {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Qdrant{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
		logger:     slog.Default().With("component", "qdrant", "collection", collection),
	}
}

func (q *Qdrant) Collection() string { return q.collection }

func (q *Qdrant) path(suffix string) string {
	return "/collections/" + url.PathEscape(q.collection) + suffix
}

type storedPoint struct {
	ID      int64          `json:"id"`
	Payload map[string]any `json:"payload"`
}

type upsertPoint struct {
	ID      int64          `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type vectorPoint struct {
	ID     int64     `json:"id"`
	Vector []float64 `json:"vector"`
}

func (q *Qdrant) Retrieve(ctx context.Context, ids []int64) (map[int64]Payload, error) {
	out := make(map[int64]Payload, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	body := map[string]any{
		"ids":          ids,
		"with_payload": true,
		"with_vector":  false,
	}
	var resp struct {
		Result []storedPoint `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, q.path("/points"), body, &resp); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIndexRead, err)
	}
	for _, p := range resp.Result {
		out[p.ID] = Payload(p.Payload).Clone()
	}
	return out, nil
}

func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": upsertPoints(points)}
	if err := q.do(ctx, http.MethodPut, q.path("/points?wait=true"), body, nil); err != nil {
		return apperrors.Wrap(apperrors.ErrIndexWrite, err)
	}
	q.logger.Debug("points upserted", "count", len(points))
	return nil
}

// UpdateVectors uses the vectors endpoint, which leaves payloads intact.
func (q *Qdrant) UpdateVectors(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": vectorPoints(points)}
	if err := q.do(ctx, http.MethodPut, q.path("/points/vectors?wait=true"), body, nil); err != nil {
		return apperrors.Wrap(apperrors.ErrIndexWrite, err)
	}
	return nil
}

// upsertPoints always sends a payload object, {} for none.
func upsertPoints(points []Point) []upsertPoint {
	out := make([]upsertPoint, len(points))
	for i, p := range points {
		out[i] = upsertPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload.Clone()}
	}
	return out
}

func vectorPoints(points []Point) []vectorPoint {
	out := make([]vectorPoint, len(points))
	for i, p := range points {
		out[i] = vectorPoint{ID: p.ID, Vector: p.Vector}
	}
	return out
}

func (q *Qdrant) Query(ctx context.Context, vector []float64, limit int, fields []string) ([]ScoredPoint, error) {
	var withPayload any = true
	if len(fields) > 0 {
		withPayload = map[string]any{"include": fields}
	}
	body := map[string]any{
		"query":        vector,
		"limit":        limit,
		"with_payload": withPayload,
	}
	var resp struct {
		Result struct {
			Points []struct {
				ID      int64          `json:"id"`
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, q.path("/points/query"), body, &resp); err != nil {
		if isDimensionError(err) {
			return nil, fmt.Errorf("%w: query vector has %d components: %w", apperrors.ErrDimensionMismatch, len(vector), err)
		}
		return nil, apperrors.Wrap(apperrors.ErrIndexRead, err)
	}
	out := make([]ScoredPoint, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		out = append(out, ScoredPoint{ID: p.ID, Score: p.Score, Payload: Payload(p.Payload).Clone()})
	}
	return out, nil
}

// isDimensionError matches the 400 Qdrant answers with when a vector does
// not fit the collection, e.g. "Wrong input: Vector dimension error:
// expected dim: 3, got 2".
func isDimensionError(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadRequest {
		return false
	}
	return strings.Contains(strings.ToLower(httpErr.Body), "dimension error")
}

func (q *Qdrant) Dimension(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodGet, q.path(""), nil, &resp)
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, q.collection)
	}
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrIndexRead, err)
	}
	return resp.Result.Config.Params.Vectors.Size, nil
}

func (q *Qdrant) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: collection dimension %d", apperrors.ErrInvalidInput, dimension)
	}
	current, err := q.Dimension(ctx)
	switch {
	case err == nil && current == dimension:
		return nil
	case err == nil:
		return fmt.Errorf("%w: collection %s has size %d, model needs %d",
			apperrors.ErrDimensionMismatch, q.collection, current, dimension)
	case !errors.Is(err, ErrCollectionNotFound):
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := q.do(ctx, http.MethodPut, q.path(""), body, nil); err != nil {
		return apperrors.Wrap(apperrors.ErrIndexWrite, err)
	}
	q.logger.Info("collection created", "dimension", dimension)
	return nil
}

// Ping checks that the collection answers.
func (q *Qdrant) Ping(ctx context.Context) error {
	_, err := q.Dimension(ctx)
	return err
}

func (q *Qdrant) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building qdrant request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding qdrant %s %s: %w", method, path, err)
	}
	return nil
}
