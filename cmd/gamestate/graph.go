package main

import (
	"fmt"

	"github.com/aretw0/gamestate/internal/cli"
	"github.com/aretw0/gamestate/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the demo state graph as a Mermaid flowchart",
	RunE: func(cmd *cobra.Command, args []string) error {
		withOverlay, _ := cmd.Flags().GetBool("overlay")

		g, err := cli.DemoGraph()
		if err != nil {
			return err
		}

		var overlay *graph.GraphOverlay
		if withOverlay {
			backend, err := cli.OpenStore(cfg.Store, logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			st, err := cli.Inspect(cmd.Context(), backend.Store, cfg.Machine)
			if err != nil {
				return err
			}
			overlay = graph.OverlayFromStorage(st.Storage)
		}

		_, err = fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(g, overlay))
		return err
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("overlay", false, "Highlight the persisted state pointer")
}
