package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/modelstore"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/thesaurus"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/vectorindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/redis"
	"github.com/spf13/cobra"
)

type stdinQuery struct {
	Query   string `json:"query"`
	Filters struct {
		Platform string `json:"platform"`
	} `json:"filters"`
}

// readRequest takes the query from args, or from a {"query": ...} JSON
// document on stdin when no args are given.
func readRequest(args []string, platform string, stdin io.Reader) (searcher.Request, error) {
	if len(args) > 0 {
		return searcher.Request{Query: strings.Join(args, " "), Platform: platform}, nil
	}
	var in stdinQuery
	if err := json.NewDecoder(stdin).Decode(&in); err != nil {
		return searcher.Request{}, fmt.Errorf("%w: reading query from stdin: %w", apperrors.ErrInvalidInput, err)
	}
	if platform == "" {
		platform = in.Filters.Platform
	}
	return searcher.Request{Query: in.Query, Platform: platform}, nil
}

func newQueryCmd(opts *globalOptions) *cobra.Command {
	var (
		platform string
		full     bool
	)
	cmd := &cobra.Command{
		Use:   "query [query]",
		Short: "Run a search and print the results as JSON",
		Long: `Run a search against the live index. With no arguments the query is
read from stdin as {"query": "..."}; results are written to stdout and
failures to stderr as {"error": "..."}.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runQuery(cmd, opts, args, platform, full)
			if err != nil {
				_ = json.NewEncoder(cmd.ErrOrStderr()).Encode(map[string]string{"error": err.Error()})
			}
			return err
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "only keep results from this platform")
	cmd.Flags().BoolVar(&full, "full", false, "print the full response including the expansion")
	return cmd
}

func runQuery(cmd *cobra.Command, opts *globalOptions, args []string, platform string, full bool) error {
	cfg := opts.cfg
	req, err := readRequest(args, platform, cmd.InOrStdin())
	if err != nil {
		return err
	}
	th, err := thesaurus.LoadFile(cfg.Thesaurus.Path)
	if err != nil {
		return err
	}
	client, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer client.Close()
	index, err := vectorindex.Open(cfg.VectorIndex, cfg.VectorIndex.Collection)
	if err != nil {
		return err
	}

	processor := searcher.NewProcessor(cfg.Search, modelstore.NewRedis(client), index, th)
	resp, err := processor.Search(cmd.Context(), req)
	if err != nil {
		return err
	}
	if full {
		return writeJSON(cmd.OutOrStdout(), resp)
	}
	return writeJSON(cmd.OutOrStdout(), resp.Results)
}
