package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codecontext/internal/ui"
)

func newStatusCmd(global *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show index status",
		Long:  `Show what is indexed for a project: file, chunk and vector counts, the embedding model and when the index was last updated.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(pathArg(args), global, false)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			st, err := p.engine.Status(cmd.Context(), p.root)
			if err != nil {
				return err
			}
			info := ui.StatusFromEngine(st, p.cfg.Embeddings.Provider)
			if st.Indexed {
				info.DiskUsage = dirSize(p.collectionDir(st.Collection))
			}

			noColor := global.noColor || ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout())
			r := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor)
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	return cmd
}

func newClearCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [path]",
		Short: "Delete the index of a project",
		Long:  `Delete the collection and snapshot of a project. The next 'codecontext index' rebuilds from scratch. Fails while the project is being indexed.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(pathArg(args), global, false)
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			out := newWriter(cmd, global)
			if !p.engine.HasIndex(p.root) {
				out.Warningf("No index for %s", p.root)
				return nil
			}
			if err := p.engine.ClearIndex(cmd.Context(), p.root); err != nil {
				return err
			}
			out.Successf("Cleared index for %s", p.root)
			return nil
		},
	}
}
