package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/postgres"
)

// Annotator rewrites a statement, typically by appending the canonical
// names of concepts it mentions.
type Annotator interface {
	Annotate(text string) string
}

// EnrichReport summarizes one enrichment run.
type EnrichReport struct {
	Scanned int
	Updated int
}

// StatementEnricher rewrites problem statements in place so that documents
// describing a concept by a synonym also carry its canonical name.
type StatementEnricher struct {
	db        *sql.DB
	source    Source
	annotator Annotator
	logger    *slog.Logger
}

func NewStatementEnricher(db *sql.DB, annotator Annotator) *StatementEnricher {
	return &StatementEnricher{
		db:        db,
		source:    NewPostgresSource(db),
		annotator: annotator,
		logger:    slog.Default().With("component", "statement-enricher"),
	}
}

// Run annotates every statement and writes back the changed ones, one
// transaction per batch. With dryRun set nothing is written.
func (e *StatementEnricher) Run(ctx context.Context, batchSize int, dryRun bool) (EnrichReport, error) {
	var report EnrichReport
	err := e.source.Stream(ctx, batchSize, func(docs []Document) error {
		changed := Enrich(docs, e.annotator)
		report.Scanned += len(docs)
		report.Updated += len(changed)
		if dryRun || len(changed) == 0 {
			return nil
		}
		if err := e.write(ctx, changed); err != nil {
			return err
		}
		e.logger.Info("updated batch", "count", len(changed), "last_id", docs[len(docs)-1].ID)
		return nil
	})
	if err != nil {
		return report, err
	}
	e.logger.Info("enrichment complete", "scanned", report.Scanned, "updated", report.Updated, "dry_run", dryRun)
	return report, nil
}

func (e *StatementEnricher) write(ctx context.Context, docs []Document) error {
	return postgres.InTx(ctx, e.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "UPDATE problems SET problem_statement = $1 WHERE id = $2")
		if err != nil {
			return fmt.Errorf("preparing statement update: %w", err)
		}
		defer stmt.Close()
		for _, d := range docs {
			if _, err := stmt.ExecContext(ctx, d.Text, d.ID); err != nil {
				return fmt.Errorf("updating problem %d: %w", d.ID, err)
			}
		}
		return nil
	})
}

// Enrich returns the documents whose annotated text differs from the
// original, carrying the new text.
func Enrich(docs []Document, annotator Annotator) []Document {
	var changed []Document
	for _, d := range docs {
		annotated := annotator.Annotate(d.Text)
		if annotated != d.Text {
			changed = append(changed, Document{ID: d.ID, Text: annotated})
		}
	}
	return changed
}
