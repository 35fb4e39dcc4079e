package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/g19d/internal/daemon"
	"github.com/jmylchreest/g19d/internal/device"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the display daemon",
	Long: `Open the keyboard and run the display daemon until SIGINT, SIGTERM or SIGHUP.

The configuration file is watched; saved changes to applet settings, the
notification chime and LCD brightness apply without a restart.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("starting g19d", "version", version, "config", path)

	dev, err := device.Open(cfg.Device.Reset, logger)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return fmt.Errorf("%w (is the keyboard plugged in?)", err)
		}
		return fmt.Errorf("failed to open keyboard: %w", err)
	}

	d, err := daemon.New(daemon.Options{
		Config:     cfg,
		ConfigPath: path,
		Device:     dev,
		Logger:     logger,
	})
	if err != nil {
		_ = dev.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	return d.Run(ctx)
}
