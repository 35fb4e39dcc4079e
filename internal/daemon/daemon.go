package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jmylchreest/g19d/internal/ambient"
	"github.com/jmylchreest/g19d/internal/applet"
	"github.com/jmylchreest/g19d/internal/apps"
	"github.com/jmylchreest/g19d/internal/audio"
	"github.com/jmylchreest/g19d/internal/config"
	"github.com/jmylchreest/g19d/internal/keys"
	"github.com/jmylchreest/g19d/internal/notify"
	"github.com/jmylchreest/g19d/internal/raster"
	"github.com/jmylchreest/g19d/internal/scheduler"
)

// ErrNotRunning is returned by Shutdown before Run.
var ErrNotRunning = errors.New("daemon not running")

// Device is the keyboard the daemon drives.
type Device interface {
	SendFrame(frame []byte) error
	SetBacklight(r, g, b uint8) error
	SaveDefaultBacklight(r, g, b uint8) error
	SetModeLEDs(mask byte) error
	SetBrightness(level int) error
	Poll(ctx context.Context) ([]keys.Report, error)
	Reset() error
	Close() error
}

// Options configure a Daemon.
type Options struct {
	Config     *config.Config
	ConfigPath string // watched for changes when set
	Device     Device
	// Forward runs host key commands. Nil uses xdotool.
	Forward keys.Runner
	// Faces renders applet text. Nil uses the embedded font.
	Faces  raster.FaceFunc
	Logger *slog.Logger
}

// Daemon wires the device, applets, scheduler and external feeds together.
type Daemon struct {
	cfg    *config.Config
	path   string
	dev    Device
	logger *slog.Logger

	sched        *scheduler.Scheduler
	router       *keys.Router
	switcher     *apps.Switcher
	backlight    *apps.Backlight
	notification *apps.Notification
	chime        *audio.Chime
	notices      *Notifier

	adapter *ambient.Adapter
	server  *ambient.Server
	helper  *ambient.Helper
	monitor *notify.Monitor
	watcher *config.Watcher

	mu       sync.Mutex
	cancel   context.CancelFunc
	loops    sync.WaitGroup
	collabs  sync.WaitGroup
	shutdown atomic.Bool
	done     chan struct{}
}

// New builds the daemon. Nothing touches the device until Run.
func New(opts Options) (*Daemon, error) {
	if opts.Device == nil {
		return nil, errors.New("daemon requires a device")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{
		cfg:    cfg,
		path:   opts.ConfigPath,
		dev:    opts.Device,
		logger: logger,
		done:   make(chan struct{}),
	}
	d.sched = scheduler.New(opts.Device, opts.Device, logger)

	newApplet := func(r applet.Renderer) *applet.Applet {
		return applet.New(r, raster.NewCanvasWithFaces(opts.Faces), logger)
	}

	var all []*applet.Applet
	for _, name := range cfg.Display.Applets {
		switch name {
		case config.AppletWatch:
			all = append(all, newApplet(apps.NewWatch(cfg.Watch, logger)))
		case config.AppletBacklight:
			d.backlight = apps.NewBacklight(d.sched, cfg.Backlight)
			all = append(all, newApplet(d.backlight))
		default:
			return nil, fmt.Errorf("unknown applet %q", name)
		}
	}

	d.switcher = apps.NewSwitcher(d.sched, logger)
	all = append(all, newApplet(d.switcher))

	var enqueue func(notify.Record) bool
	if cfg.Notifications.Enabled {
		d.chime = audio.NewChime(cfg.Notifications.Sound, cfg.Notifications.Volume, logger)
		d.notification = apps.NewNotification(d.sched, cfg.Notifications, d.chime, logger)
		all = append(all, newApplet(d.notification))
		enqueue = d.notification.Enqueue
		d.monitor = notify.NewMonitor(func(r notify.Record) { d.notification.Enqueue(r) }, logger)
	}
	d.notices = NewNotifier(enqueue, logger)

	if err := d.sched.Add(all...); err != nil {
		return nil, err
	}

	trigger, err := keys.ParseKey(cfg.Display.SwitcherKey)
	if err != nil {
		return nil, fmt.Errorf("invalid switcher key: %w", err)
	}
	d.sched.SetTriggers(d.switcher.Trigger(trigger))

	var fallback keys.Handler
	if cfg.Keys.Forward {
		keymap, err := cfg.Keys.Keymap()
		if err != nil {
			return nil, err
		}
		if opts.Forward == nil && !keys.Available() {
			logger.Warn("xdotool not found, G-keys will not be forwarded")
		}
		fallback = keys.NewForwarder(keymap, opts.Forward, logger)
	}
	d.router = keys.NewRouter(d.sched, fallback, opts.Device, logger)

	if cfg.Ambient.Enabled {
		d.adapter = ambient.NewAdapter(func(c raster.Color) { d.sched.ApplyColor(c, false) }, logger)
		d.server = ambient.NewServer(d.adapter, logger)
		if cfg.Ambient.Helper != "" {
			d.helper = ambient.NewHelper(cfg.Ambient.Helper, config.ExpandPath(cfg.Ambient.HelperLog),
				cfg.Ambient.RestartDelay.Duration(), logger)
		}
	}

	if d.path != "" {
		d.watcher = config.NewWatcher(d.path, logger)
		d.watcher.SetChangeCallback(d.Reload)
		d.watcher.SetErrorCallback(d.notices.NotifyConfigError)
	}
	return d, nil
}

// Scheduler returns the display scheduler.
func (d *Daemon) Scheduler() *scheduler.Scheduler { return d.sched }

// Router returns the key router.
func (d *Daemon) Router() *keys.Router { return d.router }

// Notices returns the notifier for daemon messages.
func (d *Daemon) Notices() *Notifier { return d.notices }

// Done is closed once Shutdown has finished.
func (d *Daemon) Done() <-chan struct{} { return d.done }

// Run initialises the device, starts every loop and collaborator and blocks
// until ctx is cancelled or Shutdown is called.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	d.initDevice()

	d.goLoop(func() {
		if err := d.sched.Run(ctx); err != nil {
			d.logger.Error("scheduler stopped", "error", err)
			cancel()
		}
	})
	d.goLoop(func() { d.inputLoop(ctx) })
	if d.notification != nil {
		d.goLoop(func() { d.notification.Run(ctx) })
	}

	d.startCollaborators(ctx)
	d.logger.Info("g19d running", "applet", d.sched.Current().Name(), "mode", d.router.Mode())

	<-ctx.Done()
	if !d.shutdown.Load() {
		d.Shutdown()
	}
	<-d.done
	return nil
}

func (d *Daemon) goLoop(fn func()) {
	d.loops.Add(1)
	go func() {
		defer d.loops.Done()
		fn()
	}()
}

func (d *Daemon) goCollab(fn func()) {
	d.collabs.Add(1)
	go func() {
		defer d.collabs.Done()
		fn()
	}()
}

func (d *Daemon) initDevice() {
	if err := d.dev.SetBrightness(d.cfg.Device.Brightness); err != nil {
		d.logger.Warn("failed to set brightness", "error", err)
	}
	c := d.cfg.Device.Backlight.Color()
	if err := d.dev.SetBacklight(c.R, c.G, c.B); err != nil {
		d.logger.Warn("failed to set backlight", "error", err)
	}
	if d.cfg.Device.SaveBacklight {
		if err := d.dev.SaveDefaultBacklight(c.R, c.G, c.B); err != nil {
			d.logger.Warn("failed to save default backlight", "error", err)
		}
	}
	d.sched.SetAmbientEnabled(d.cfg.Ambient.Enabled)
	if d.backlight != nil {
		d.backlight.Apply()
	}
	d.router.RefreshLEDs()
}

func (d *Daemon) startCollaborators(ctx context.Context) {
	if d.server != nil {
		if err := d.server.Listen(ctx, d.cfg.Ambient.Listen); err != nil {
			d.logger.Warn("ambient socket unavailable", "error", err)
			d.notices.NotifyAmbientError(err)
		} else {
			d.goCollab(func() {
				if err := d.server.Serve(ctx); err != nil {
					d.logger.Warn("ambient socket stopped", "error", err)
				}
			})
		}
	}
	if d.helper != nil {
		if d.helper.Available() {
			d.goCollab(func() { d.helper.Run(ctx) })
		} else {
			d.logger.Info("ambient helper not found, waiting for external samples", "helper", d.helper.Name)
		}
	}
	if d.monitor != nil {
		if err := d.monitor.Start(ctx); err != nil {
			d.logger.Warn("notification feed unavailable", "error", err)
			d.notices.NotifyFeedError(err)
		}
	}
	if d.watcher != nil {
		if err := d.watcher.Start(ctx); err != nil {
			d.logger.Warn("config hot reload unavailable", "error", err)
		}
	}
}

// Reload applies a new configuration to the running daemon. Applet order,
// key forwarding and the ambient socket need a restart.
func (d *Daemon) Reload(cfg *config.Config) {
	d.sched.Configure(cfg)
	if d.chime != nil {
		d.chime.Configure(cfg.Notifications.Sound, cfg.Notifications.Volume)
	}
	if err := d.dev.SetBrightness(cfg.Device.Brightness); err != nil {
		d.logger.Warn("failed to set brightness", "error", err)
	}
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
	d.notices.NotifyConfigReloaded()
}

// Shutdown stops every loop and collaborator, then resets and releases the
// device. Calls after the first are logged and ignored.
func (d *Daemon) Shutdown() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel == nil {
		d.logger.Warn("shutdown requested before start", "error", ErrNotRunning)
		return
	}
	if !d.shutdown.CompareAndSwap(false, true) {
		d.logger.Warn("already shutting down")
		return
	}
	d.logger.Info("shutting down")

	cancel()
	d.loops.Wait()

	if d.monitor != nil {
		if err := d.monitor.Stop(); err != nil {
			d.logger.Warn("error stopping notification feed", "error", err)
		}
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	d.collabs.Wait()
	if d.chime != nil {
		d.chime.Close()
	}

	if err := d.dev.Reset(); err != nil {
		d.logger.Warn("failed to reset device", "error", err)
	}
	if err := d.dev.Close(); err != nil {
		d.logger.Warn("failed to close device", "error", err)
	}

	for _, a := range d.sched.Applets() {
		d.logger.Info("applet stats", "applet", a.Name(), "frames", a.Frames(), "overruns", a.Overruns())
	}
	sent, failed := d.sched.Stats()
	d.logger.Info("g19d stopped", "frames_sent", sent, "frames_failed", failed)
	close(d.done)
}
