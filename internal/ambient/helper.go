package ambient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// CommandFunc builds the helper process.
type CommandFunc func(ctx context.Context, name string) *exec.Cmd

// Helper keeps the screen-sampling helper process running until its context
// is cancelled.
type Helper struct {
	Name    string
	LogPath string
	Delay   time.Duration

	command CommandFunc
	logger  *slog.Logger
}

// NewHelper creates a helper runner for the named executable.
func NewHelper(name, logPath string, delay time.Duration, logger *slog.Logger) *Helper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Helper{
		Name:    name,
		LogPath: logPath,
		Delay:   delay,
		command: func(ctx context.Context, name string) *exec.Cmd {
			return exec.CommandContext(ctx, name)
		},
		logger: logger,
	}
}

// Available reports whether the helper executable is on PATH.
func (h *Helper) Available() bool {
	_, err := exec.LookPath(h.Name)
	return err == nil
}

// Run starts the helper and restarts it after every exit. It returns the
// number of starts once ctx is done.
func (h *Helper) Run(ctx context.Context) int {
	starts := 0
	for ctx.Err() == nil {
		starts++
		if err := h.runOnce(ctx); err != nil && ctx.Err() == nil {
			h.logger.Warn("ambient helper exited", "helper", h.Name, "error", err)
		}

		select {
		case <-ctx.Done():
		case <-time.After(h.Delay):
		}
	}
	return starts
}

func (h *Helper) runOnce(ctx context.Context) error {
	out, err := h.openLog()
	if err != nil {
		return err
	}
	defer out.Close()

	cmd := h.command(ctx, h.Name)
	cmd.Stdout = out
	cmd.Stderr = out
	h.logger.Debug("starting ambient helper", "helper", h.Name)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", h.Name, err)
	}
	return nil
}

func (h *Helper) openLog() (io.WriteCloser, error) {
	if h.LogPath == "" {
		return nopCloser{io.Discard}, nil
	}
	if err := os.MkdirAll(filepath.Dir(h.LogPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create helper log directory: %w", err)
	}
	f, err := os.OpenFile(h.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open helper log: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
