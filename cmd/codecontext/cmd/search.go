package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codecontext/internal/output"
	"github.com/Aman-CERP/codecontext/pkg/codecontext"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	path       string
	topK       int
	threshold  float64
	extensions []string
	language   string
	scopes     []string
	graphHops  int
	jsonOutput bool
	maxLines   int
}

func newSearchCmd(global *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Search the indexed codebase using hybrid search.

The query is embedded and matched against stored vectors and the BM25
index at the same time; both rankings are fused with Reciprocal Rank
Fusion.

Examples:
  codecontext search "authentication middleware"
  codecontext search "handleRequest" --top-k 10 --ext .go
  codecontext search "retry policy" --scope internal/embed --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, global, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.path, "path", "p", ".", "Project to search")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Maximum number of results, 1 to 50 (default from config)")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "Drop results scoring below this value (0 to 1)")
	cmd.Flags().StringSliceVar(&opts.extensions, "ext", nil, "Only files with these extensions (repeatable, e.g. --ext .go)")
	cmd.Flags().StringVarP(&opts.language, "lang", "l", "", "Only chunks of this language (e.g. go, python)")
	cmd.Flags().StringSliceVarP(&opts.scopes, "scope", "s", nil, "Only files under these directories (repeatable)")
	cmd.Flags().IntVar(&opts.graphHops, "graph-hops", 0, "Also show chunks up to this many call, use or parent edges away from the matches (0 to 5)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().IntVar(&opts.maxLines, "max-lines", 12, "Content lines shown per result in text output (0 for all)")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, global *globalOptions, query string, opts searchOptions) error {
	p, err := openProject(opts.path, global, false)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	results, err := p.engine.SearchWithOptions(ctx, p.root, query, codecontext.SearchOptions{
		TopK:         opts.topK,
		Threshold:    opts.threshold,
		Extensions:   opts.extensions,
		Language:     opts.language,
		Scopes:       opts.scopes,
		MaxGraphHops: opts.graphHops,
	})
	if err != nil {
		return err
	}
	slog.Info("search_complete", slog.String("query", query), slog.Int("results", len(results)))

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if results == nil {
			results = []*codecontext.SearchResult{}
		}
		return enc.Encode(results)
	}

	printResults(newWriter(cmd, global), query, results, opts.maxLines)
	return nil
}

// printResults renders results as a numbered list with indented content.
func printResults(out *output.Writer, query string, results []*codecontext.SearchResult, maxLines int) {
	if len(results) == 0 {
		out.Warningf("No results found for %q", query)
		return
	}

	out.Statusf(output.MarkInfo, "%d result(s) for %q", len(results), query)
	out.Newline()
	for i, r := range results {
		header := fmt.Sprintf("%d. %s:%d-%d  (score %.2f, %s)", i+1, r.RelativePath, r.StartLine, r.EndLine, r.Score, r.Language)
		if r.Related {
			header = fmt.Sprintf("%d. %s:%d-%d  (related, %s)", i+1, r.RelativePath, r.StartLine, r.EndLine, r.Language)
		}
		if r.Symbol != "" {
			header += "  " + r.Symbol
		}
		out.Status("", header)
		out.Code(r.Content, maxLines)
		if n := len(r.Continuations); n > 0 {
			out.Dim(fmt.Sprintf("    continues in %d more chunk(s)", n))
			out.Newline()
		}
	}
}
