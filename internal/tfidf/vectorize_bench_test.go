package tfidf

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/corpus"
)

func benchModel(b *testing.B, vocab int) *Model {
	b.Helper()
	docs := make([]corpus.Document, 0, 200)
	for d := 0; d < 200; d++ {
		words := make([]string, 0, 50)
		for w := 0; w < 50; w++ {
			words = append(words, fmt.Sprintf("term%d", (d*31+w*7)%vocab))
		}
		docs = append(docs, corpus.Document{ID: int64(d + 1), Text: strings.Join(words, " ")})
	}
	stats, err := BuildStats(context.Background(), corpus.NewSliceSource(docs), 50)
	if err != nil {
		b.Fatal(err)
	}
	model, err := NewModel(stats)
	if err != nil {
		b.Fatal(err)
	}
	return model
}

func BenchmarkVectorizeText(b *testing.B) {
	for _, vocab := range []int{1000, 10000} {
		b.Run(fmt.Sprintf("vocab=%d", vocab), func(b *testing.B) {
			model := benchModel(b, vocab)
			text := "term1 term7 term14 term21 term3 term1 term999"
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = model.VectorizeText(text)
			}
		})
	}
}

func BenchmarkStatsBuilderAdd(b *testing.B) {
	text := strings.Repeat("graph traversal using dfs binary search on sorted array ", 20)
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	sb := NewStatsBuilder()
	for i := 0; i < b.N; i++ {
		sb.Add(text)
	}
}
