package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codecontext/internal/config"
	"github.com/Aman-CERP/codecontext/internal/preflight"
	"github.com/Aman-CERP/codecontext/internal/scanner"
)

func newDoctorCmd(global *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor [path]",
		Short: "Check that a project can be indexed",
		Long: `Doctor checks the project directory, the configuration, the data
directory, free disk space, the open file limit and whether the
embedding provider answers. It exits non-zero when a required check
fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := pathArg(args)
			dir := path
			if root, err := scanner.ValidateRoot(path); err == nil {
				dir = root
			}
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}

			results := preflight.New(cfg).RunAll(cmd.Context(), path)
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				preflight.Print(cmd.OutOrStdout(), results, global.verbose)
			}

			if preflight.HasCriticalFailures(results) {
				return fmt.Errorf("system check failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output check results as JSON")

	return cmd
}
