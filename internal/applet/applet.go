// Package applet runs independently scheduled display units. Each applet owns
// a canvas, renders into it on its own goroutine and publishes immutable
// snapshots that the scheduler pumps to the display.
package applet

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/g19d/internal/config"
	"github.com/jmylchreest/g19d/internal/keys"
	"github.com/jmylchreest/g19d/internal/raster"
)

// MinCooldown is the shortest sleep between two renders of one applet.
const MinCooldown = 10 * time.Millisecond

// Renderer is the applet-specific part: identity, cadence, bindings and drawing.
// Setup and Render are only called from the applet's own goroutine.
type Renderer interface {
	Name() string
	// Listed reports whether the applet appears in the switcher.
	Listed() bool
	Interval() time.Duration
	Bindings() keys.Table
	// Setup draws the initial frame.
	Setup(c *raster.Canvas)
	// Render updates the canvas and reports whether it changed.
	Render(c *raster.Canvas) bool
}

// AmbientListener receives ambient colour samples.
type AmbientListener interface {
	OnAmbient(c raster.Color)
}

// Configurable accepts a reloaded configuration.
type Configurable interface {
	Configure(cfg *config.Config)
}

// Attacher is told which Applet wraps it, for renderers that need to
// request refreshes of their own output.
type Attacher interface {
	Attach(a *Applet)
}

// Applet wraps a Renderer with its render loop and snapshot.
type Applet struct {
	r      Renderer
	canvas *raster.Canvas
	logger *slog.Logger

	snapshot atomic.Pointer[[]byte]
	frames   atomic.Uint64
	overruns atomic.Uint64

	wake    chan struct{}
	mu      sync.Mutex
	pending []chan struct{}
	stopped bool
}

// New wraps r, draws its initial frame and publishes it. A nil canvas gets a
// default one.
func New(r Renderer, canvas *raster.Canvas, logger *slog.Logger) *Applet {
	if canvas == nil {
		canvas = raster.NewCanvas()
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Applet{
		r:      r,
		canvas: canvas,
		logger: logger.With("applet", r.Name()),
		wake:   make(chan struct{}, 1),
	}
	r.Setup(canvas)
	a.commit()
	if at, ok := r.(Attacher); ok {
		at.Attach(a)
	}
	return a
}

// Name returns the renderer's name.
func (a *Applet) Name() string { return a.r.Name() }

// Listed reports whether the applet appears in the switcher.
func (a *Applet) Listed() bool { return a.r.Listed() }

// Interval returns the target cadence, never below MinCooldown.
func (a *Applet) Interval() time.Duration {
	return max(a.r.Interval(), MinCooldown)
}

// Bindings returns the renderer's binding table.
func (a *Applet) Bindings() keys.Table { return a.r.Bindings() }

// Snapshot returns the latest committed frame. It never blocks and the
// returned slice must not be modified.
func (a *Applet) Snapshot() []byte {
	if p := a.snapshot.Load(); p != nil {
		return *p
	}
	return nil
}

// Frames returns the number of frames committed by the render loop.
func (a *Applet) Frames() uint64 { return a.frames.Load() }

// Overruns returns the number of renders that took longer than the interval.
func (a *Applet) Overruns() uint64 { return a.overruns.Load() }

// OnAmbient forwards c if the renderer listens for ambient colours.
func (a *Applet) OnAmbient(c raster.Color) {
	if l, ok := a.r.(AmbientListener); ok {
		l.OnAmbient(c)
	}
}

// Configure forwards cfg if the renderer is configurable.
func (a *Applet) Configure(cfg *config.Config) {
	if c, ok := a.r.(Configurable); ok {
		c.Configure(cfg)
	}
}

func (a *Applet) commit() {
	b := a.canvas.Bytes()
	a.snapshot.Store(&b)
}

// Refresh wakes the render loop and waits until a frame started after the
// call has been committed.
func (a *Applet) Refresh(ctx context.Context) error {
	done := make(chan struct{})
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return context.Canceled
	}
	a.pending = append(a.pending, done)
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// takePending returns the waiters a render starting now will satisfy.
func (a *Applet) takePending() []chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.pending
	a.pending = nil
	return p
}

// Run renders until ctx is cancelled. Between renders it sleeps
// max(MinCooldown, interval - render time); the part of the sleep beyond
// MinCooldown is cut short by Refresh.
func (a *Applet) Run(ctx context.Context) {
	a.logger.Debug("render loop started", "interval", a.Interval())
	defer a.stop()

	timer := time.NewTimer(0)
	<-timer.C
	defer timer.Stop()

	for ctx.Err() == nil {
		waiters := a.takePending()
		start := time.Now()
		if a.r.Render(a.canvas) {
			a.commit()
			a.frames.Add(1)
		}
		for _, w := range waiters {
			close(w)
		}

		interval := a.Interval()
		elapsed := time.Since(start)
		if elapsed > interval {
			a.overruns.Add(1)
			a.logger.Debug("render overran interval", "elapsed", elapsed, "interval", interval)
		}

		timer.Reset(MinCooldown)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		rest := interval - elapsed - MinCooldown
		if rest <= 0 {
			continue
		}
		timer.Reset(rest)
		select {
		case <-ctx.Done():
			return
		case <-a.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (a *Applet) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for _, w := range a.pending {
		close(w)
	}
	a.pending = nil
	a.logger.Debug("render loop stopped", "frames", a.Frames())
}
