// Package modelstore publishes the vocabulary and IDF model built by the
// indexer and loads it back on the query side.
package modelstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/tfidf"
	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/redis"
)

// Well-known keys shared with every reader of the model.
const (
	VocabularyKey = "vocab_json"
	IDFKey        = "idf_json"
	MetaKey       = "model_meta_json"
)

// ErrKeyNotFound is returned by a KV for absent keys.
var ErrKeyNotFound = errors.New("key not found")

// KV is the subset of a key-value store the model needs. SetMany must be
// atomic: readers see either all keys of a publish or none.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	SetMany(ctx context.Context, values map[string]string, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// Meta describes one published model.
type Meta struct {
	Generation     string    `json:"generation"`
	Dimension      int       `json:"dimension"`
	TotalDocuments int       `json:"total_documents"`
	BuiltAt        time.Time `json:"built_at"`
}

// Store reads and writes the model blobs.
type Store struct {
	kv     KV
	now    func() time.Time
	logger *slog.Logger
}

func New(kv KV) *Store {
	return &Store{
		kv:     kv,
		now:    time.Now,
		logger: slog.Default().With("component", "model-store"),
	}
}

// NewRedis backs a Store with the shared Redis client.
func NewRedis(client *pkgredis.Client) *Store {
	return New(redisKV{client})
}

type redisKV struct {
	*pkgredis.Client
}

func (r redisKV) Get(ctx context.Context, key string) (string, error) {
	v, err := r.Client.Get(ctx, key)
	if pkgredis.IsNilError(err) {
		return "", ErrKeyNotFound
	}
	return v, err
}

// Publish writes vocabulary, IDF and metadata in one transaction.
func (s *Store) Publish(ctx context.Context, model *tfidf.Model) (Meta, error) {
	meta := Meta{
		Generation:     model.Generation(),
		Dimension:      model.Dimension(),
		TotalDocuments: model.TotalDocuments(),
		BuiltAt:        s.now().UTC(),
	}
	vocab, err := json.Marshal(model.Vocabulary())
	if err != nil {
		return Meta{}, fmt.Errorf("encoding vocabulary: %w", err)
	}
	idf, err := json.Marshal(model.IDFWeights())
	if err != nil {
		return Meta{}, fmt.Errorf("encoding idf: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return Meta{}, fmt.Errorf("encoding model meta: %w", err)
	}

	err = s.kv.SetMany(ctx, map[string]string{
		VocabularyKey: string(vocab),
		IDFKey:        string(idf),
		MetaKey:       string(metaJSON),
	}, 0)
	if err != nil {
		return Meta{}, apperrors.Wrap(apperrors.ErrModelStore, fmt.Errorf("publishing model: %w", err))
	}
	s.logger.Info("model published",
		"generation", meta.Generation,
		"dimension", meta.Dimension,
		"total_docs", meta.TotalDocuments,
		"vocab_bytes", len(vocab),
	)
	return meta, nil
}

// LoadMeta reads only the metadata blob.
func (s *Store) LoadMeta(ctx context.Context) (Meta, error) {
	var meta Meta
	raw, err := s.get(ctx, MetaKey)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return meta, apperrors.Wrap(apperrors.ErrModelStore, fmt.Errorf("decoding %s: %w", MetaKey, err))
	}
	return meta, nil
}

// Load rebuilds the published model and checks it against its metadata.
// Models published without metadata are accepted with a warning.
func (s *Store) Load(ctx context.Context) (*tfidf.Model, Meta, error) {
	var (
		vocab []string
		idf   map[string]float64
	)
	if err := s.decode(ctx, VocabularyKey, &vocab); err != nil {
		return nil, Meta{}, err
	}
	if err := s.decode(ctx, IDFKey, &idf); err != nil {
		return nil, Meta{}, err
	}

	meta, err := s.LoadMeta(ctx)
	legacy := errors.Is(err, ErrKeyNotFound)
	if err != nil && !legacy {
		return nil, Meta{}, err
	}
	if legacy {
		s.logger.Warn("model has no metadata, generation check skipped")
	}

	model, err := tfidf.FromParts(vocab, idf, meta.TotalDocuments)
	if err != nil {
		return nil, Meta{}, apperrors.Wrap(apperrors.ErrModelStore, fmt.Errorf("invalid published model: %w", err))
	}
	if legacy {
		meta = Meta{Generation: model.Generation(), Dimension: model.Dimension()}
		return model, meta, nil
	}
	if meta.Dimension != model.Dimension() {
		return nil, Meta{}, fmt.Errorf("%w: metadata dimension %d, vocabulary has %d terms",
			apperrors.ErrModelMismatch, meta.Dimension, model.Dimension())
	}
	if meta.Generation != model.Generation() {
		return nil, Meta{}, fmt.Errorf("%w: metadata generation %s, blobs are %s",
			apperrors.ErrModelMismatch, meta.Generation, model.Generation())
	}
	return model, meta, nil
}

// Ping checks that the backing store answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %w: %s", apperrors.ErrModelStore, ErrKeyNotFound, key)
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrModelStore, fmt.Errorf("reading %s: %w", key, err))
	}
	return raw, nil
}

func (s *Store) decode(ctx context.Context, key string, out any) error {
	raw, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return apperrors.Wrap(apperrors.ErrModelStore, fmt.Errorf("decoding %s: %w", key, err))
	}
	return nil
}
