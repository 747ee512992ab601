package tfidf

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
)

// Stats is the output of the first pass over the corpus.
type Stats struct {
	TotalDocuments    int
	DocumentFrequency map[string]int
	Vocabulary        []string
}

// StatsBuilder accumulates document frequencies one document at a time.
// Memory is proportional to the vocabulary, not the corpus.
type StatsBuilder struct {
	totalDocs int
	docFreq   map[string]int
	seen      map[string]struct{}
}

func NewStatsBuilder() *StatsBuilder {
	return &StatsBuilder{
		docFreq: make(map[string]int),
		seen:    make(map[string]struct{}),
	}
}

// Add counts each distinct term of text once. Blank text is ignored and does
// not contribute to the document total.
func (b *StatsBuilder) Add(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	b.totalDocs++
	clear(b.seen)
	for _, w := range Tokenize(text) {
		if _, ok := b.seen[w]; ok {
			continue
		}
		b.seen[w] = struct{}{}
		b.docFreq[w]++
	}
}

// Stats freezes the builder into a Stats value with a sorted vocabulary.
func (b *StatsBuilder) Stats() *Stats {
	vocab := make([]string, 0, len(b.docFreq))
	for term := range b.docFreq {
		vocab = append(vocab, term)
	}
	sort.Strings(vocab)
	return &Stats{
		TotalDocuments:    b.totalDocs,
		DocumentFrequency: b.docFreq,
		Vocabulary:        vocab,
	}
}

// BuildStats streams the whole corpus once. Any iteration failure aborts the
// pass and is returned wrapped in ErrCorpusRead; no partial Stats escape.
func BuildStats(ctx context.Context, src corpus.Source, batchSize int) (*Stats, error) {
	logger := slog.Default().With("component", "tfidf")
	logger.Info("starting first pass", "batch_size", batchSize)

	b := NewStatsBuilder()
	batches := 0
	err := src.Stream(ctx, batchSize, func(docs []corpus.Document) error {
		for _, doc := range docs {
			b.Add(doc.Text)
		}
		batches++
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCorpusRead, fmt.Errorf("first pass after %d batches: %w", batches, err))
	}

	stats := b.Stats()
	logger.Info("first pass complete",
		"total_docs", stats.TotalDocuments,
		"vocab_size", len(stats.Vocabulary),
		"batches", batches,
	)
	return stats, nil
}
