package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codecontext/internal/output"
	"github.com/Aman-CERP/codecontext/internal/watcher"
	"github.com/Aman-CERP/codecontext/pkg/codecontext"
)

func newWatchCmd(global *globalOptions) *cobra.Command {
	var polling bool

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Keep the index up to date as files change",
		Long: `Watch brings the index up to date, then reindexes after every burst
of file changes. Events are debounced (performance.watch_debounce) so a
save-all or a branch switch costs a single run.

fsnotify is used where available; --polling forces periodic rescans,
for example on network filesystems.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := openProject(pathArg(args), global, false)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			out := newWriter(cmd, global)
			if err := catchUp(ctx, p, out); err != nil {
				return err
			}

			trigger, err := newReindexTrigger(p, polling, func(err error) {
				if err != nil {
					out.Errorf("Reindex failed: %v", err)
				}
			})
			if err != nil {
				return err
			}
			trigger.OnBatch = func(batch []watcher.FileEvent) {
				out.Statusf(output.MarkInfo, "%d change(s) detected, reindexing", len(batch))
			}

			out.Statusf(output.MarkInfo, "Watching %s (Ctrl+C to stop)", p.root)
			return trigger.Run(ctx, p.root)
		},
	}

	cmd.Flags().BoolVar(&polling, "polling", false, "Rescan periodically instead of using fsnotify")

	return cmd
}

// catchUp indexes the project before watching starts.
func catchUp(ctx context.Context, p *project, out *output.Writer) error {
	var (
		stats *codecontext.IndexStats
		err   error
	)
	if p.engine.HasIndex(p.root) {
		stats, err = p.engine.Reindex(ctx, p.root)
	} else {
		stats, err = p.engine.Index(ctx, p.root, false)
	}
	if err != nil {
		return err
	}
	out.Successf("%s", stats)
	return nil
}

// newReindexTrigger builds a watcher on the project and a Trigger that
// runs an incremental reindex for each batch.
func newReindexTrigger(p *project, polling bool, onResult func(error)) (*watcher.Trigger, error) {
	w, err := watcher.New(watcher.Options{
		Debounce:     p.cfg.DebounceDuration(),
		Ignore:       p.cfg.Paths.Ignore,
		ForcePolling: polling,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("watch_started", slog.String("root", p.root), slog.String("mode", w.Mode()))

	trigger := watcher.NewTrigger(w, func(ctx context.Context) error {
		_, err := p.engine.Reindex(ctx, p.root)
		return err
	})
	trigger.OnResult = onResult
	return trigger, nil
}
