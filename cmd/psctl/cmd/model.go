package cmd

import (
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/modelstore"
	pkgredis "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/redis"
	"github.com/spf13/cobra"
)

func newModelCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect the published TF-IDF model",
	}
	var full bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the published model metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := pkgredis.NewClient(opts.cfg.Redis)
			if err != nil {
				return err
			}
			defer client.Close()
			model, meta, err := modelstore.NewRedis(client).Load(cmd.Context())
			if err != nil {
				return err
			}
			out := map[string]any{
				"generation":      meta.Generation,
				"dimension":       meta.Dimension,
				"total_documents": meta.TotalDocuments,
				"built_at":        meta.BuiltAt,
			}
			if full {
				out["vocabulary"] = model.Vocabulary()
				out["idf"] = model.IDFWeights()
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	show.Flags().BoolVar(&full, "full", false, "include the vocabulary and IDF weights")
	cmd.AddCommand(show)
	return cmd
}
