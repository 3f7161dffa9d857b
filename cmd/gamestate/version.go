package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/gamestate"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of gamestate",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "gamestate version %s\n", strings.TrimSpace(gamestate.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
