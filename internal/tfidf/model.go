package tfidf

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
)

// Model is an immutable vocabulary plus IDF snapshot. It is safe for
// concurrent use once constructed.
type Model struct {
	vocabulary     []string
	index          map[string]int
	idf            map[string]float64
	totalDocuments int
	generation     string
}

// NewModel derives idf = 1 + ln(N/df) for every vocabulary term.
func NewModel(stats *Stats) (*Model, error) {
	if stats == nil || len(stats.Vocabulary) == 0 {
		return nil, apperrors.ErrEmptyCorpus
	}
	idf := make(map[string]float64, len(stats.Vocabulary))
	n := float64(stats.TotalDocuments)
	for _, term := range stats.Vocabulary {
		df := stats.DocumentFrequency[term]
		if df < 1 || df > stats.TotalDocuments {
			return nil, fmt.Errorf("term %q has document frequency %d with %d documents", term, df, stats.TotalDocuments)
		}
		idf[term] = 1 + math.Log(n/float64(df))
	}
	return FromParts(stats.Vocabulary, idf, stats.TotalDocuments)
}

// FromParts rebuilds a model from persisted pieces. The vocabulary must be
// sorted and every term must carry an IDF weight.
func FromParts(vocabulary []string, idf map[string]float64, totalDocuments int) (*Model, error) {
	if len(vocabulary) == 0 {
		return nil, apperrors.ErrEmptyCorpus
	}
	m := &Model{
		vocabulary:     vocabulary,
		index:          make(map[string]int, len(vocabulary)),
		idf:            idf,
		totalDocuments: totalDocuments,
	}
	for i, term := range vocabulary {
		m.index[term] = i
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.generation = generation(vocabulary, idf, totalDocuments)
	return m, nil
}

// Validate checks the model invariants: a strictly sorted vocabulary and
// exactly one IDF weight >= 1 per term.
func (m *Model) Validate() error {
	if !sort.StringsAreSorted(m.vocabulary) {
		return fmt.Errorf("%w: vocabulary is not sorted", apperrors.ErrModelMismatch)
	}
	if len(m.index) != len(m.vocabulary) {
		return fmt.Errorf("%w: vocabulary has duplicate terms", apperrors.ErrModelMismatch)
	}
	if len(m.idf) != len(m.vocabulary) {
		return fmt.Errorf("%w: %d idf entries for %d terms", apperrors.ErrModelMismatch, len(m.idf), len(m.vocabulary))
	}
	for _, term := range m.vocabulary {
		w, ok := m.idf[term]
		if !ok {
			return fmt.Errorf("%w: term %q has no idf weight", apperrors.ErrModelMismatch, term)
		}
		if w < 1 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: term %q has idf %v", apperrors.ErrModelMismatch, term, w)
		}
	}
	return nil
}

// Dimension is the vector length produced by this model.
func (m *Model) Dimension() int { return len(m.vocabulary) }

// Index returns the vector position of term.
func (m *Model) Index(term string) (int, bool) {
	i, ok := m.index[term]
	return i, ok
}

// IDF returns the weight of term, or 0 when the term is out of vocabulary.
func (m *Model) IDF(term string) float64 { return m.idf[term] }

func (m *Model) TotalDocuments() int { return m.totalDocuments }

// Generation identifies the vocabulary and IDF snapshot. Two models with the
// same generation produce the same vector for any text.
func (m *Model) Generation() string { return m.generation }

// Vocabulary returns the sorted terms. Callers must not modify the slice.
func (m *Model) Vocabulary() []string { return m.vocabulary }

// IDFWeights returns the term weights. Callers must not modify the map.
func (m *Model) IDFWeights() map[string]float64 { return m.idf }

// VectorizeText counts the tokens of text and vectorizes them.
func (m *Model) VectorizeText(text string) []float64 {
	return Vectorize(TermCounts(text), m)
}

func generation(vocabulary []string, idf map[string]float64, totalDocuments int) string {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(totalDocuments))
	h.Write(buf[:])
	for _, term := range vocabulary {
		h.Write([]byte(term))
		h.Write([]byte{0})
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(idf[term]))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil)[:12])
}
