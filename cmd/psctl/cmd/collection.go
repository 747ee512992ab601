package cmd

import (
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/modelstore"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/vectorindex"
	pkgredis "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/redis"
	"github.com/spf13/cobra"
)

func newCollectionCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage vector index collections",
	}
	cmd.AddCommand(newCollectionCreateCmd(opts))
	return cmd
}

func newCollectionCreateCmd(opts *globalOptions) *cobra.Command {
	var (
		name      string
		dimension int
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a cosine collection sized to the vocabulary",
		Long: `Create a cosine-distance collection. Without --dimension the size is
taken from the published model, so the collection matches the vocabulary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if name == "" {
				name = cfg.VectorIndex.Collection
			}
			if dimension <= 0 {
				client, err := pkgredis.NewClient(cfg.Redis)
				if err != nil {
					return err
				}
				defer client.Close()
				meta, err := modelstore.NewRedis(client).LoadMeta(cmd.Context())
				if err != nil {
					return fmt.Errorf("no --dimension given and no published model: %w", err)
				}
				dimension = meta.Dimension
			}
			index, err := vectorindex.Open(cfg.VectorIndex, name)
			if err != nil {
				return err
			}
			if err := index.EnsureCollection(cmd.Context(), dimension); err != nil {
				return err
			}
			slog.Info("collection ready", "collection", name, "dimension", dimension)
			return writeJSON(cmd.OutOrStdout(), map[string]any{"collection": name, "dimension": dimension})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "collection name (default: vectorIndex.collection)")
	cmd.Flags().IntVar(&dimension, "dimension", 0, "vector size (default: published model dimension)")
	return cmd
}
