// Package main provides the CLI entrypoint for g19d.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/g19d/internal/config"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

var (
	globalOpts struct {
		verbose    bool
		configPath string
	}
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "g19d",
	Short: "Display daemon for the Logitech G19 keyboard",
	Long: `g19d drives the LCD, keys and backlight of a Logitech G19 keyboard.

It runs a set of applets (a clock, backlight control, an applet switcher and a
desktop notification overlay), pumps the active one to the display, routes the
display keys to it and forwards G-keys to the desktop.

Running g19d without a subcommand starts the daemon.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger()
	},
	SilenceUsage: true,
	RunE:         runDaemon,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/g19d/g19d.toml)")
}

// setupLogger configures the global slog logger.
func setupLogger() {
	level := slog.LevelInfo
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// configPath returns the --config path or the default location.
func configPath() (string, error) {
	if globalOpts.configPath != "" {
		return config.ExpandPath(globalOpts.configPath), nil
	}
	return config.DefaultPath()
}

// loadConfig loads the configuration and returns it with its path.
func loadConfig() (*config.Config, string, error) {
	path, err := configPath()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get config path: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, path, nil
}
