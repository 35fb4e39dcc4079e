package keys

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// Runner executes one synthetic input command.
type Runner func(ctx context.Context, args ...string) error

// XdotoolRunner runs xdotool with args.
func XdotoolRunner(ctx context.Context, args ...string) error {
	return exec.CommandContext(ctx, "xdotool", args...).Run()
}

// DefaultKeymap forwards G1-G12 as F1-F12.
func DefaultKeymap() map[Key]string {
	m := make(map[Key]string, 12)
	for i := range 12 {
		m[G1+Key(i)] = fmt.Sprintf("F%d", i+1)
	}
	return m
}

// Forwarder is the fallback handler: it replays unbound G-keys on the host
// as synthetic key presses and releases. Other keys are ignored.
type Forwarder struct {
	keymap  map[Key]string
	run     Runner
	timeout time.Duration
	logger  *slog.Logger
}

// NewForwarder creates a forwarder. A nil keymap uses DefaultKeymap and a
// nil run uses XdotoolRunner.
func NewForwarder(keymap map[Key]string, run Runner, logger *slog.Logger) *Forwarder {
	if keymap == nil {
		keymap = DefaultKeymap()
	}
	if run == nil {
		run = XdotoolRunner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		keymap:  keymap,
		run:     run,
		timeout: time.Second,
		logger:  logger,
	}
}

// Available reports whether xdotool can be found in PATH.
func Available() bool {
	_, err := exec.LookPath("xdotool")
	return err == nil
}

// HandleKey implements Handler.
func (f *Forwarder) HandleKey(ev Event) {
	name, ok := f.keymap[ev.Key]
	if !ok || name == "" {
		return
	}
	action := "keyup"
	if ev.Pressed {
		action = "keydown"
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := f.run(ctx, action, name); err != nil {
		f.logger.Warn("failed to forward key", "key", ev.Key, "host_key", name, "error", err)
		return
	}
	f.logger.Debug("forwarded key", "key", ev.Key, "host_key", name, "action", action)
}
