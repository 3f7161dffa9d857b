package main

import (
	"github.com/aretw0/gamestate/internal/cli"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the persisted state pointer and game cycle of a machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		backend, err := cli.OpenStore(cfg.Store, logger)
		if err != nil {
			return err
		}
		defer backend.Close()

		st, err := cli.Inspect(cmd.Context(), backend.Store, cfg.Machine)
		if err != nil {
			return err
		}
		return cli.WriteStatus(cmd.OutOrStdout(), st, asJSON)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the history recorded in the current game cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		minPriority, _ := cmd.Flags().GetUint("min-priority")

		backend, err := cli.OpenStore(cfg.Store, logger)
		if err != nil {
			return err
		}
		defer backend.Close()

		rows, err := cli.ReadHistory(cmd.Context(), backend.Store, minPriority)
		if err != nil {
			return err
		}
		return cli.WriteHistory(cmd.OutOrStdout(), rows, asJSON)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd, historyCmd)
	inspectCmd.Flags().Bool("json", false, "Print JSON")
	historyCmd.Flags().Bool("json", false, "Print JSON")
	historyCmd.Flags().Uint("min-priority", 0, "Only list steps at or above this priority")
}
