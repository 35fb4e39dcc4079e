// Package scheduler arbitrates the single display and key stream between
// applets. It tracks the current applet and a single saved slot for
// overlays, keeps the active binding table in step with the current applet,
// and pumps the current applet's snapshots to the display.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/g19d/internal/applet"
	"github.com/jmylchreest/g19d/internal/config"
	"github.com/jmylchreest/g19d/internal/keys"
	"github.com/jmylchreest/g19d/internal/raster"
)

var (
	// ErrUnknownApplet is returned when switching to a name that was never added.
	ErrUnknownApplet = errors.New("unknown applet")
	// ErrNoApplets is returned by Run when nothing was added.
	ErrNoApplets = errors.New("no applets")
	// ErrRunning is returned when Run or Add is called on a running scheduler.
	ErrRunning = errors.New("scheduler already running")
)

// FrameSink receives complete frames.
type FrameSink interface {
	SendFrame(frame []byte) error
}

// BacklightSetter changes the keyboard backlight.
type BacklightSetter interface {
	SetBacklight(r, g, b uint8) error
}

type state struct {
	current *applet.Applet
	table   keys.Table
}

// Scheduler owns the applet set and the current/saved state machine.
type Scheduler struct {
	sink      FrameSink
	backlight BacklightSetter
	logger    *slog.Logger

	applets  []*applet.Applet
	byName   map[string]*applet.Applet
	triggers keys.Table

	// mu serializes switches; readers use active without locking.
	mu       sync.Mutex
	active   atomic.Pointer[state]
	saved    *applet.Applet
	switched chan struct{}

	ambient atomic.Bool
	running atomic.Bool
	sent    atomic.Uint64
	failed  atomic.Uint64
}

// New creates a scheduler pumping frames to sink. backlight may be nil.
func New(sink FrameSink, backlight BacklightSetter, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		sink:      sink,
		backlight: backlight,
		logger:    logger,
		byName:    make(map[string]*applet.Applet),
		triggers:  keys.Table{},
		switched:  make(chan struct{}, 1),
	}
	s.ambient.Store(true)
	return s
}

// Add registers applets in order. The first applet ever added becomes current.
func (s *Scheduler) Add(apps ...*applet.Applet) error {
	if s.running.Load() {
		return ErrRunning
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range apps {
		if _, dup := s.byName[a.Name()]; dup {
			return fmt.Errorf("applet %q added twice", a.Name())
		}
		s.applets = append(s.applets, a)
		s.byName[a.Name()] = a
		if s.active.Load() == nil {
			s.install(a)
		}
	}
	return nil
}

// SetTriggers sets the bindings that are available on top of every applet's
// own table, such as the key opening the switcher.
func (s *Scheduler) SetTriggers(t keys.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = keys.Merge(t)
	if st := s.active.Load(); st != nil {
		s.install(st.current)
	}
}

// install makes a current and rebuilds the table. Callers hold mu.
func (s *Scheduler) install(a *applet.Applet) {
	s.active.Store(&state{
		current: a,
		table:   keys.Merge(a.Bindings(), s.triggers),
	})
	select {
	case s.switched <- struct{}{}:
	default:
	}
}

// ChangeApp drops any saved overlay state and makes name current.
func (s *Scheduler) ChangeApp(name string) error {
	a, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownApplet, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = nil
	s.install(a)
	s.logger.Info("changed applet", "applet", name)
	return nil
}

// Irq shows name as an overlay. The applet it replaces is saved unless an
// overlay is already active, in which case the original saved applet is kept
// and name replaces the overlay.
func (s *Scheduler) Irq(name string) error {
	a, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownApplet, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = s.active.Load().current
	} else {
		s.logger.Debug("nested overlay replaces current overlay", "applet", name, "saved", s.saved.Name())
	}
	s.install(a)
	s.logger.Debug("overlay shown", "applet", name)
	return nil
}

// Unirq restores the applet saved by Irq. It is a no-op without an overlay.
func (s *Scheduler) Unirq() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		return
	}
	restored := s.saved
	s.saved = nil
	s.install(restored)
	s.logger.Debug("overlay closed", "applet", restored.Name())
}

// ActiveBindings implements keys.BindingSource.
func (s *Scheduler) ActiveBindings() keys.Table {
	if st := s.active.Load(); st != nil {
		return st.table
	}
	return nil
}

// Current returns the applet whose frames are pumped.
func (s *Scheduler) Current() *applet.Applet {
	if st := s.active.Load(); st != nil {
		return st.current
	}
	return nil
}

// Saved returns the applet an overlay will restore, or nil.
func (s *Scheduler) Saved() *applet.Applet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// Applet returns the applet registered under name.
func (s *Scheduler) Applet(name string) (*applet.Applet, bool) {
	a, ok := s.byName[name]
	return a, ok
}

// Applets returns every registered applet in order.
func (s *Scheduler) Applets() []*applet.Applet {
	return append([]*applet.Applet(nil), s.applets...)
}

// Listed returns the names of switcher-visible applets in order.
func (s *Scheduler) Listed() []string {
	var names []string
	for _, a := range s.applets {
		if a.Listed() {
			names = append(names, a.Name())
		}
	}
	return names
}

// SetAmbientEnabled turns routing of ambient samples to the backlight on or off.
func (s *Scheduler) SetAmbientEnabled(enabled bool) {
	s.ambient.Store(enabled)
	s.logger.Debug("ambient backlight", "enabled", enabled)
}

// AmbientEnabled reports whether ambient samples reach the backlight.
func (s *Scheduler) AmbientEnabled() bool {
	return s.ambient.Load()
}

// ApplyColor sets the backlight and passes c to every applet. Samples are
// ignored while ambient routing is disabled unless force is set.
func (s *Scheduler) ApplyColor(c raster.Color, force bool) {
	if !force && !s.ambient.Load() {
		return
	}
	if s.backlight != nil {
		if err := s.backlight.SetBacklight(c.R, c.G, c.B); err != nil {
			s.logger.Warn("failed to set backlight", "color", c, "error", err)
		}
	}
	for _, a := range s.applets {
		a.OnAmbient(c)
	}
}

// Configure passes cfg to every configurable applet.
func (s *Scheduler) Configure(cfg *config.Config) {
	for _, a := range s.applets {
		a.Configure(cfg)
	}
}

// Stats returns the number of frames sent and failed sends.
func (s *Scheduler) Stats() (sent, failed uint64) {
	return s.sent.Load(), s.failed.Load()
}

// Run starts every render loop and the pump, and returns once ctx is
// cancelled and all of them have exited.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Current() == nil {
		return ErrNoApplets
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}

	var wg sync.WaitGroup
	for _, a := range s.applets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Run(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pump(ctx)
	}()

	s.logger.Info("scheduler running", "applets", len(s.applets), "current", s.Current().Name())
	wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// pump forwards the current snapshot at the current applet's cadence. A
// switch sends the new applet's frame immediately.
func (s *Scheduler) pump(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.switched:
			timer.Stop()
		}

		st := s.active.Load()
		if frame := st.current.Snapshot(); frame != nil {
			if err := s.sink.SendFrame(frame); err != nil {
				s.failed.Add(1)
				s.logger.Warn("failed to send frame", "applet", st.current.Name(), "error", err)
			} else {
				s.sent.Add(1)
			}
		}
		timer.Reset(st.current.Interval())
	}
}
