// Package tfidf builds the vocabulary, document-frequency table and IDF
// model from a corpus, and maps term counts onto fixed-dimension
// L2-normalized vectors. The same Vectorize function serves indexing and
// querying so that both sides stay comparable.
package tfidf

import "strings"

// Tokenize splits text on whitespace. Statements are normalized before they
// reach the corpus, so no case folding or stemming happens here.
func Tokenize(text string) []string {
	return strings.Fields(text)
}

// TermCounts returns the occurrence count of every token in text.
func TermCounts(text string) map[string]int {
	words := Tokenize(text)
	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}
	return counts
}
