package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// botVersion is reported in the welcome notification. Overridden by the
// release pipeline via -ldflags.
var botVersion = "v.local"

var (
	flagConfig string
	flagDryRun bool
	flagOnce   bool
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:   "octopus-tariff-switcher",
	Short: "Compare today's electricity costs across Octopus tariffs and switch to the cheapest",
	Long: `octopus-tariff-switcher prices one day of half-hourly consumption against
every configured Octopus Energy tariff and, when a switchable tariff beats
the current one by more than the savings buffer, drives the tariff switch
through the supplier's API.`,
	Version:       botVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(flagConfig)
		if err != nil {
			return err
		}
		if flagDryRun {
			cfg.DryRun = true
		}
		if flagOnce {
			cfg.OneOff = true
		}
		if flagDebug {
			cfg.Debug = true
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger := newLogger(cfg.Debug)
		logger.Info("starting", "version", botVersion, "dry_run", cfg.DryRun)

		app, err := NewApp(cfg, logger)
		if err != nil {
			return err
		}
		defer app.Notifier.Close()

		if cfg.OneOff {
			app.RunOnce()
			return nil
		}
		return app.RunScheduled()
	},
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "config.yaml", "path to configuration file")
	rootCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "run the decision logic without switching")
	rootCmd.Flags().BoolVar(&flagOnce, "once", false, "run immediately and exit instead of scheduling")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
