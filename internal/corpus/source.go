// Package corpus streams problem statements and metadata out of the problem
// store. Every Source iterates in ascending id order so that a second pass
// sees exactly the documents of the first.
package corpus

import (
	"context"
	"sort"
	"strings"
)

// Document is one problem statement.
type Document struct {
	ID   int64
	Text string
}

// Source yields the corpus in batches of at most batchSize documents. Blank
// statements are never delivered. Stream may be called any number of times
// and returns the first error from the store or from fn.
type Source interface {
	Stream(ctx context.Context, batchSize int, fn func([]Document) error) error
}

// SliceSource serves an in-memory corpus.
type SliceSource struct {
	docs []Document
}

// NewSliceSource copies docs, drops blank ones, and orders them by id.
func NewSliceSource(docs []Document) *SliceSource {
	kept := make([]Document, 0, len(docs))
	for _, d := range docs {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			continue
		}
		kept = append(kept, Document{ID: d.ID, Text: text})
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })
	return &SliceSource{docs: kept}
}

func (s *SliceSource) Stream(ctx context.Context, batchSize int, fn func([]Document) error) error {
	if batchSize <= 0 {
		batchSize = 1
	}
	for start := 0; start < len(s.docs); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(s.docs))
		batch := make([]Document, end-start)
		copy(batch, s.docs[start:end])
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of non-blank documents.
func (s *SliceSource) Len() int { return len(s.docs) }
