package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codecontext/internal/errors"
	"github.com/Aman-CERP/codecontext/internal/output"
	"github.com/Aman-CERP/codecontext/internal/ui"
	"github.com/Aman-CERP/codecontext/pkg/codecontext"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	force  bool
	ignore []string
	noTUI  bool
}

func newIndexCmd(global *globalOptions) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for searching",
		Long: `Index a directory to enable hybrid search over its contents.

Files are scanned and hashed, split into syntax-aware chunks, embedded
and stored with a BM25 index. Later runs only reprocess files that were
added, modified or removed since the last successful run.

Use --force to drop the existing index and rebuild from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl+C cancels the run; the next run resumes from the last snapshot.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, global, pathArg(args), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "Clear existing index and rebuild from scratch")
	cmd.Flags().StringSliceVar(&opts.ignore, "ignore", nil, "Extra gitignore-style patterns to skip (repeatable)")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Disable TUI mode, use plain text output")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, global *globalOptions, path string, opts indexOptions) error {
	p, err := openProject(path, global, false)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithNoColor(global.noColor),
		ui.WithProjectDir(p.root),
	))
	if err := renderer.Start(ctx); err != nil {
		return err
	}

	slog.Info("index_started",
		slog.String("root", p.root),
		slog.Bool("force", opts.force),
		slog.Int("extra_ignores", len(opts.ignore)))

	stats, err := p.engine.IndexWithOptions(ctx, p.root, codecontext.IndexOptions{
		Force:    opts.force,
		Ignore:   opts.ignore,
		Progress: ui.ProgressFunc(renderer),
	})
	if err != nil {
		renderer.AddError(ui.ErrorEvent{Err: err})
		_ = renderer.Stop()
		slog.LogAttrs(ctx, slog.LevelError, "index_failed", errors.LogAttrs(err)...)
		return err
	}

	completion := ui.CompletionFromStats(stats)
	if st, err := p.engine.Status(ctx, p.root); err == nil {
		completion.Model = st.Model
		completion.Dimensions = st.Dimensions
	}
	renderer.Complete(completion)
	if err := renderer.Stop(); err != nil {
		return err
	}

	slog.Info("index_complete",
		slog.Int("files", stats.IndexedFiles),
		slog.Int("chunks", stats.TotalChunks),
		slog.Duration("duration", stats.Duration))
	return nil
}

func newReindexCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex [path]",
		Short: "Bring an existing index up to date",
		Long: `Reindex processes only the files that changed since the last run.
It is what 'codecontext watch' runs after each batch of file events.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := openProject(pathArg(args), global, false)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			stats, err := p.engine.Reindex(ctx, p.root)
			if err != nil {
				return err
			}
			out := newWriter(cmd, global)
			out.Successf("%s", stats)
			if stats.Skipped+stats.Failed > 0 {
				out.Warningf("%d file(s) not indexed; they are retried on the next run", stats.Skipped+stats.Failed)
			}
			return nil
		},
	}
}

// newWriter returns a status writer, styled only for color terminals.
func newWriter(cmd *cobra.Command, global *globalOptions) *output.Writer {
	w := cmd.OutOrStdout()
	if !global.noColor && !ui.DetectNoColor() && ui.IsTTY(w) {
		return output.NewStyled(w)
	}
	return output.New(w)
}
