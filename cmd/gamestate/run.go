package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/gamestate/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the demo machine behind the HTTP presentation bridge",
	Long: `Starts the demo game machine. A presentation connects to the HTTP bridge,
follows started states on /events and completes them with POST /presentation/complete.
The first interrupt stops the machine at its next suspension point; a second one exits at once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.HTTP.Addr, _ = cmd.Flags().GetString("addr")
		}
		if noRecovery, _ := cmd.Flags().GetBool("no-recovery"); noRecovery {
			cfg.Recovery = false
		}
		if cfg.HTTP.Addr == "" {
			cfg.HTTP.Addr = ":8080"
		}

		sigCtx := cli.NewSignalContext(context.Background(), func(sig os.Signal) {
			fmt.Fprintf(os.Stderr, "\nForced exit on %v\n", sig)
			os.Exit(130)
		})
		defer sigCtx.Stop()

		err := cli.Run(sigCtx, cfg, logger)
		if sig := sigCtx.Signal(); sig != nil {
			logger.Info("machine stopped", "signal", sig.String())
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("addr", "a", "", "HTTP listen address of the presentation bridge (default :8080)")
	runCmd.Flags().Bool("no-recovery", false, "Disable power-hit recovery")
}
