package corpus

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
	"github.com/lib/pq"
)

const metadataQuery = `
SELECT id, problem_name, problem_link, platform, topics
FROM problems
WHERE id > $1
ORDER BY id
LIMIT $2`

// ProblemMetadata is the display data stored as the vector index payload.
type ProblemMetadata struct {
	ID       int64
	Name     string
	Link     string
	Platform string
	Topics   []string
}

// Payload renders the metadata with the payload field names the search API
// whitelists.
func (m ProblemMetadata) Payload() map[string]any {
	topics := m.Topics
	if topics == nil {
		topics = []string{}
	}
	return map[string]any{
		"id":           m.ID,
		"problem_name": m.Name,
		"problem_link": m.Link,
		"platform":     m.Platform,
		"topics":       topics,
	}
}

// MetadataReader pages through problem metadata in id order.
type MetadataReader struct {
	db *sql.DB
}

func NewMetadataReader(db *sql.DB) *MetadataReader {
	return &MetadataReader{db: db}
}

func (r *MetadataReader) Stream(ctx context.Context, batchSize int, fn func([]ProblemMetadata) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size %d", apperrors.ErrInvalidInput, batchSize)
	}
	var lastID int64
	for {
		batch, err := r.page(ctx, lastID, batchSize)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCorpusRead, err)
		}
		if len(batch) == 0 {
			return nil
		}
		lastID = batch[len(batch)-1].ID
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
	}
}

func (r *MetadataReader) page(ctx context.Context, afterID int64, limit int) ([]ProblemMetadata, error) {
	rows, err := r.db.QueryContext(ctx, metadataQuery, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying metadata after id %d: %w", afterID, err)
	}
	defer rows.Close()

	batch := make([]ProblemMetadata, 0, limit)
	for rows.Next() {
		var (
			m              ProblemMetadata
			name, link, pf sql.NullString
		)
		if err := rows.Scan(&m.ID, &name, &link, &pf, pq.Array(&m.Topics)); err != nil {
			return nil, fmt.Errorf("scanning metadata row: %w", err)
		}
		m.Name, m.Link, m.Platform = name.String, link.String, pf.String
		batch = append(batch, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metadata rows: %w", err)
	}
	return batch, nil
}
