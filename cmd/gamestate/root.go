package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/gamestate/internal/config"
	"github.com/aretw0/gamestate/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gamestate",
	Short: "gamestate runs power-hit-safe transactional state machines",
	Long: `gamestate executes state machines whose every stage is committed to a
transactional store, so a machine interrupted by a power loss resumes where it
stopped and replays the history of the interrupted game cycle.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		applyFlags(cmd, &loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		level, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		logger = logging.NewWithWriter(os.Stderr, cfg.Log.Format, level)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyFlags overrides configuration with flags set on the command line.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("machine") {
		c.Machine, _ = flags.GetString("machine")
	}
	if flags.Changed("store") {
		c.Store.Kind, _ = flags.GetString("store")
	}
	if flags.Changed("store-path") {
		c.Store.Path, _ = flags.GetString("store-path")
	}
	if flags.Changed("redis-url") {
		c.Store.RedisURL, _ = flags.GetString("redis-url")
	}
	if flags.Changed("log-level") {
		c.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		c.Log.Format, _ = flags.GetString("log-format")
	}
}

func init() {
	// Persistent flags (available to all commands)
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to the configuration file (default "+config.DefaultPath+" if present)")
	pf.String("machine", "", "Machine name (game-mode scope)")
	pf.String("store", "", "Store kind: memory, file, sqlite or redis")
	pf.String("store-path", "", "Directory of the file store or path of the sqlite database")
	pf.String("redis-url", "", "Redis URL for the redis store")
	pf.String("log-level", "", "Log level: debug, info, warn or error")
	pf.String("log-format", "", "Log format: text or json")
}
