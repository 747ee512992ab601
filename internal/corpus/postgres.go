package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
)

const statementQuery = `
SELECT id, problem_statement
FROM problems
WHERE id > $1
  AND problem_statement IS NOT NULL
  AND btrim(problem_statement) <> ''
ORDER BY id
LIMIT $2`

// PostgresSource pages through the problems table by primary key. Keyset
// pagination keeps each query short and makes iteration repeatable without
// holding a server-side cursor open for the whole pass.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Stream(ctx context.Context, batchSize int, fn func([]Document) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size %d", apperrors.ErrInvalidInput, batchSize)
	}
	var lastID int64
	for {
		batch, err := s.page(ctx, lastID, batchSize)
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

func (s *PostgresSource) page(ctx context.Context, afterID int64, limit int) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, statementQuery, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying statements after id %d: %w", afterID, err)
	}
	defer rows.Close()

	batch := make([]Document, 0, limit)
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Text); err != nil {
			return nil, fmt.Errorf("scanning statement row: %w", err)
		}
		doc.Text = strings.TrimSpace(doc.Text)
		batch = append(batch, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating statement rows: %w", err)
	}
	return batch, nil
}
