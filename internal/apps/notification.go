package apps

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/g19d/internal/applet"
	"github.com/jmylchreest/g19d/internal/config"
	"github.com/jmylchreest/g19d/internal/keys"
	"github.com/jmylchreest/g19d/internal/notify"
	"github.com/jmylchreest/g19d/internal/raster"
)

var (
	noteTimePos    = image.Pt(15, 200)
	noteSummaryPos = image.Pt(15, 10)
	noteBodyPos    = image.Pt(15, 50)
)

const (
	noteHeadSize = 32
	noteBodySize = 24
)

// Chime plays the notification sound.
type Chime interface {
	Play() error
}

// Notification shows queued desktop notifications as overlays, one at a
// time, each until it expires or Back is pressed.
type Notification struct {
	ctl    Controller
	chime  Chime
	logger *slog.Logger
	queue  chan notify.Record

	dismiss chan struct{}
	after   func(time.Duration) <-chan time.Time
	now     func() time.Time

	mu        sync.Mutex
	cfg       config.NotificationConfig
	bg        *raster.Sprite
	bgPath    string
	applet    *applet.Applet
	current   *notify.Record
	shownTime string
	dirty     bool
}

// NewNotification creates the overlay. chime may be nil.
func NewNotification(ctl Controller, cfg config.NotificationConfig, chime Chime, logger *slog.Logger) *Notification {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notification{
		ctl:     ctl,
		chime:   chime,
		logger:  logger,
		queue:   make(chan notify.Record, max(cfg.QueueSize, 1)),
		dismiss: make(chan struct{}, 1),
		after:   time.After,
		now:     time.Now,
	}
	n.apply(cfg)
	return n
}

func (n *Notification) apply(cfg config.NotificationConfig) {
	n.cfg = cfg
	if cfg.Background != n.bgPath || n.bg == nil && cfg.Background != "" {
		n.bgPath = cfg.Background
		bg, err := backgroundSprite(cfg.Background)
		if err != nil {
			n.logger.Warn("failed to load notification background", "path", cfg.Background, "error", err)
		}
		n.bg = bg
	}
	n.dirty = true
}

func (n *Notification) Name() string            { return NotificationName }
func (n *Notification) Listed() bool            { return false }
func (n *Notification) Interval() time.Duration { return time.Second }

func (n *Notification) Bindings() keys.Table {
	return keys.Table{
		keys.Press(keys.Back): keys.HandlerFunc(func(keys.Event) { n.Dismiss() }),
	}
}

// Attach implements applet.Attacher.
func (n *Notification) Attach(a *applet.Applet) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.applet = a
}

// Configure applies a reloaded notifications section. The queue size is
// fixed at creation.
func (n *Notification) Configure(cfg *config.Config) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.apply(cfg.Notifications)
}

// Enqueue adds rec to the queue, dropping it when the queue is full.
func (n *Notification) Enqueue(rec notify.Record) bool {
	select {
	case n.queue <- rec:
		return true
	default:
		n.logger.Warn("notification queue full, dropping", "id", rec.ID, "summary", rec.Summary)
		return false
	}
}

// Dismiss closes the notification on screen.
func (n *Notification) Dismiss() {
	select {
	case n.dismiss <- struct{}{}:
	default:
	}
}

// Current returns the record on screen, if any.
func (n *Notification) Current() (notify.Record, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return notify.Record{}, false
	}
	return *n.current, true
}

// SetCurrent puts rec on screen without the overlay lifecycle, for previews.
func (n *Notification) SetCurrent(rec notify.Record) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = &rec
	n.dirty = true
}

// Run shows queued notifications until ctx is cancelled.
func (n *Notification) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-n.queue:
			n.show(ctx, rec)
		}
	}
}

func (n *Notification) show(ctx context.Context, rec notify.Record) {
	n.mu.Lock()
	n.current = &rec
	n.dirty = true
	cfg, a := n.cfg, n.applet
	n.mu.Unlock()

	select {
	case <-n.dismiss:
	default:
	}

	if a != nil {
		if err := a.Refresh(ctx); err != nil {
			return
		}
	}
	if err := n.ctl.Irq(NotificationName); err != nil {
		n.logger.Warn("failed to show notification", "id", rec.ID, "error", err)
		return
	}
	if n.chime != nil && !rec.SuppressSound() {
		if err := n.chime.Play(); err != nil {
			n.logger.Warn("failed to play chime", "error", err)
		}
	}

	timeout := rec.ExpireDuration(cfg.MinTimeout.Duration(), cfg.MaxTimeout.Duration(), cfg.DefaultTimeout.Duration())
	n.logger.Debug("showing notification", "id", rec.ID, "summary", rec.Summary, "timeout", timeout)
	select {
	case <-ctx.Done():
	case <-n.after(timeout):
	case <-n.dismiss:
		n.logger.Debug("notification dismissed", "id", rec.ID)
	}

	n.ctl.Unirq()
	n.mu.Lock()
	n.current = nil
	n.mu.Unlock()
}

func (n *Notification) Setup(c *raster.Canvas) {
	n.Render(c)
}

func (n *Notification) Render(c *raster.Canvas) bool {
	n.mu.Lock()
	clock := n.now().Format("15:04")
	if !n.dirty && clock == n.shownTime {
		n.mu.Unlock()
		return false
	}
	rec, bg, cfg := n.current, n.bg, n.cfg
	n.shownTime, n.dirty = clock, false
	n.mu.Unlock()

	col := layerColor(rec, cfg)

	drawBackground(c, bg)
	c.DrawRectangle(image.Point{}, raster.Bounds.Size(), col, cfg.Alpha)
	c.DrawTextLine(noteTimePos, noteHeadSize, clock, raster.White)
	if rec != nil {
		c.DrawTextLine(noteSummaryPos, noteHeadSize, rec.Summary, raster.White)
		c.DrawTextFitted(noteBodyPos, noteBodySize, rec.Body, raster.White)
	}
	return true
}

// layerColor picks the overlay colour: the sender's bgcolor hint, else the
// colour configured for the record's urgency.
func layerColor(rec *notify.Record, cfg config.NotificationConfig) raster.Color {
	if rec == nil {
		return cfg.Color.Color()
	}
	if hint, err := raster.ParseHex(rec.BackgroundColor()); err == nil {
		return hint
	}
	switch rec.Urgency() {
	case notify.UrgencyLow:
		return cfg.LowColor.Color()
	case notify.UrgencyCritical:
		return cfg.CriticalColor.Color()
	default:
		return cfg.Color.Color()
	}
}
