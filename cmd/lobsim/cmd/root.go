package cmd

import (
	"fmt"
	"strings"

	"github.com/XuAnn175/Simulator/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lobsim",
	Short: "Replay a recorded order book and trade tape against a strategy",
	Long: `lobsim rebuilds a limit order book from recorded depth snapshots and
trades, and matches a strategy's orders against it with price-time priority.

It provides tools for:
  - Replaying trade and depth files (plain, .gz or .xz)
  - Running grid and wiring-test strategies against the replayed book
  - Exporting account history to CSV or SQLite
  - Querying past runs stored in SQLite`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFiles(envFiles...); err != nil {
			return err
		}
		return setupLogging(logLevel, logFormat)
	},
}

var (
	logLevel  string
	logFormat string
	envFiles  []string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (overrides config)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", []string{".env"}, ".env files to load before reading config")
}

// setupLogging configures the standard logrus logger. Empty arguments
// leave the current setting alone.
func setupLogging(level, format string) error {
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		logrus.SetLevel(lvl)
	}
	switch strings.ToLower(format) {
	case "":
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("log format %q: must be text or json", format)
	}
	return nil
}
