package cmd

import (
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/postgres"
	"github.com/spf13/cobra"
)

func newSeedCmd(opts *globalOptions) *cobra.Command {
	var dimension int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Copy problem metadata from Postgres into the payload collection",
		Long: `Seed writes one zero-vector point per problem into the payload
collection, carrying problem_name, problem_link, platform and topics. The
build later copies these payloads onto the real vectors.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			db, err := postgres.New(cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()

			collection := cfg.VectorIndex.PayloadCollection()
			target, err := vectorindex.Open(cfg.VectorIndex, collection)
			if err != nil {
				return err
			}
			upserts := indexer.NewUpsertManager(target, cfg.Indexer.UpsertBatchSize,
				indexer.BackoffFromConfig(cfg.Indexer), indexer.WithCollection(collection))
			seeder := indexer.NewSeeder(corpus.NewMetadataReader(db.DB), target, cfg.Indexer.CorpusBatchSize, upserts)

			report, err := seeder.Run(cmd.Context(), dimension)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"collection":    collection,
				"dimension":     report.Dimension,
				"scanned":       report.Scanned,
				"upserted":      report.Upserted,
				"failed_chunks": len(report.Failures),
			})
		},
	}
	cmd.Flags().IntVar(&dimension, "dimension", 1, "vector size used when the collection has to be created")
	return cmd
}
