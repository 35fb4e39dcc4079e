package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/g19d/internal/ambient"
	"github.com/jmylchreest/g19d/internal/raster"
)

var sendColorOpts struct {
	addr string
}

var sendColorCmd = &cobra.Command{
	Use:   "send-color <r> <g> <b>",
	Short: "Send one ambient colour sample to a running daemon",
	Long: `Send an ambient colour sample to the daemon's colour socket, as the
screen-sampling helper does. Components are 0-255.`,
	Args: cobra.ExactArgs(3),
	RunE: runSendColor,
}

func init() {
	rootCmd.AddCommand(sendColorCmd)
	sendColorCmd.Flags().StringVar(&sendColorOpts.addr, "addr", "",
		"Colour socket address (default: ambient.listen from the config)")
}

func parseSample(args []string) ([]byte, error) {
	sample := make([]byte, 0, ambient.SampleSize)
	for i, s := range args {
		v, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid component %d %q: must be 0-255", i+1, s)
		}
		sample = append(sample, byte(v))
	}
	return sample, nil
}

func runSendColor(cmd *cobra.Command, args []string) error {
	sample, err := parseSample(args)
	if err != nil {
		return err
	}

	addr := sendColorOpts.addr
	if addr == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		addr = cfg.Ambient.Listen
	}
	if host, port, err := net.SplitHostPort(addr); err == nil && host == "" {
		addr = net.JoinHostPort("127.0.0.1", port)
	}

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()
	if _, err := conn.Write(sample); err != nil {
		return fmt.Errorf("failed to send sample: %w", err)
	}

	c := raster.Color{R: sample[0], G: sample[1], B: sample[2]}
	logger.Debug("sent ambient sample", "addr", addr, "color", c)
	fmt.Println("sent", c.Hex())
	return nil
}
