// Package cmd provides the CLI commands for codecontext.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codecontext/internal/errors"
	"github.com/Aman-CERP/codecontext/internal/profiling"
	"github.com/Aman-CERP/codecontext/pkg/version"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	debug   bool
	verbose bool
	noColor bool

	profile  profiling.Options
	profiler *profiling.Session
}

// NewRootCmd creates the root command for the codecontext CLI.
func NewRootCmd() *cobra.Command {
	var opts globalOptions

	cmd := &cobra.Command{
		Use:   "codecontext",
		Short: "Semantic and keyword search over your codebase",
		Long: `codecontext indexes a project into a local hybrid index and answers
natural-language and keyword queries against it.

Files are split into syntax-aware chunks, embedded with the configured
provider (ollama, openai or static) and stored with a BM25 index. Only
files that changed since the last run are reprocessed.

Run 'codecontext serve' to expose the index to AI assistants over MCP.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("codecontext version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Log at debug level")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Also write logs to stderr")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if !opts.profile.Enabled() {
			return nil
		}
		s, err := profiling.Start(opts.profile)
		if err != nil {
			return err
		}
		opts.profiler = s
		return nil
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		if opts.profiler == nil {
			return nil
		}
		return opts.profiler.Stop()
	}

	cmd.AddCommand(newIndexCmd(&opts))
	cmd.AddCommand(newReindexCmd(&opts))
	cmd.AddCommand(newSearchCmd(&opts))
	cmd.AddCommand(newStatusCmd(&opts))
	cmd.AddCommand(newClearCmd(&opts))
	cmd.AddCommand(newWatchCmd(&opts))
	cmd.AddCommand(newServeCmd(&opts))
	cmd.AddCommand(newDoctorCmd(&opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints a failure as a CLI error.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, errors.FormatForCLI(err))
	}
	return err
}

// pathArg returns the optional project path argument, defaulting to ".".
func pathArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
