package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codecontext/internal/mcp"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Run the MCP server over stdio",
		Long: `Serve exposes the search, index, index_status and clear_index tools
to MCP clients over stdin/stdout. Tools called without a path act on
the served project.

Nothing but protocol messages is written to stdout; logs go to the log
file (logging.file, default <data_dir>/logs/codecontext.log).

With --watch the served project is also kept up to date as files change.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := openProject(pathArg(args), global, true)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			srv, err := mcp.NewServer(p.engine, p.cfg, p.root)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Close() }()

			if watch {
				trigger, err := newReindexTrigger(p, false, nil)
				if err != nil {
					return err
				}
				go func() {
					if err := trigger.Run(ctx, p.root); err != nil {
						slog.Error("watch_stopped", slog.String("error", err.Error()))
					}
				}()
			}

			return srv.Serve(ctx)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Reindex the served project when files change")

	return cmd
}
