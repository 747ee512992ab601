package cmd

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/thesaurus"
	"github.com/spf13/cobra"
)

func newExpandCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "expand <query>",
		Short: "Show how a query is expanded with related concepts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			th, err := thesaurus.LoadFile(opts.cfg.Thesaurus.Path)
			if err != nil {
				return err
			}
			e := th.Expand(strings.Join(args, " "))
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"original": e.Original,
				"terms":    e.Terms,
				"expanded": e.Text(),
				"grew":     e.Grew(),
			})
		},
	}
}
