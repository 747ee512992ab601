package cmd

import (
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/thesaurus"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/postgres"
	"github.com/spf13/cobra"
)

func newEnrichCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Append canonical concept names to problem statements",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			th, err := thesaurus.LoadFile(cfg.Thesaurus.Path)
			if err != nil {
				return err
			}
			db, err := postgres.New(cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := corpus.NewStatementEnricher(db.DB, th).Run(cmd.Context(), cfg.Indexer.CorpusBatchSize, dryRun)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"scanned": report.Scanned,
				"updated": report.Updated,
				"dry_run": dryRun,
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without writing them")
	return cmd
}
