package apps

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/g19d/internal/config"
	"github.com/jmylchreest/g19d/internal/keys"
	"github.com/jmylchreest/g19d/internal/raster"
)

// Band holding the time, redrawn every frame.
var (
	watchBand     = image.Rect(0, 90, raster.Width, 175)
	watchTextPos  = image.Pt(32, 103)
	watchTextSize = 72
)

// Watch shows a clock or a stopwatch over a background image. The band
// behind the digits takes the ambient colour.
type Watch struct {
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	bgPath   string
	bg       *raster.Sprite
	band     *raster.Sprite
	color    raster.Color
	alpha    float64
	interval time.Duration
	mode     string

	paused  bool
	frozen  time.Time // clock time shown while paused
	started time.Time // stopwatch start of the current running span
	elapsed time.Duration

	shownText  string
	shownColor raster.Color
	dirty      bool
}

// NewWatch creates the watch applet.
func NewWatch(cfg config.WatchConfig, logger *slog.Logger) *Watch {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watch{logger: logger, now: time.Now}
	w.started = w.now()
	w.apply(cfg)
	return w
}

func (w *Watch) apply(cfg config.WatchConfig) {
	w.color = cfg.Color.Color()
	w.alpha = cfg.Alpha
	w.interval = cfg.Interval.Duration()
	if w.mode == "" {
		w.mode = cfg.Mode
	}
	if cfg.Background != w.bgPath || w.bg == nil && cfg.Background != "" {
		w.bgPath = cfg.Background
		w.setBackground()
	}
	w.dirty = true
}

func (w *Watch) setBackground() {
	bg, err := backgroundSprite(w.bgPath)
	if err != nil {
		w.logger.Warn("failed to load watch background", "path", w.bgPath, "error", err)
	}
	w.bg = bg
	w.band = nil
	if bg != nil {
		w.band = bg.Sub(watchBand)
	}
}

func (w *Watch) Name() string { return WatchName }
func (w *Watch) Listed() bool { return true }

func (w *Watch) Interval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.interval
}

func (w *Watch) Bindings() keys.Table {
	return keys.Table{
		keys.Press(keys.Back): keys.HandlerFunc(func(keys.Event) { w.Reset() }),
		keys.Press(keys.Menu): keys.HandlerFunc(func(keys.Event) { w.ToggleMode() }),
		keys.Press(keys.OK):   keys.HandlerFunc(func(keys.Event) { w.TogglePause() }),
	}
}

// Reset zeroes the stopwatch.
func (w *Watch) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.elapsed = 0
	w.started = w.now()
	w.frozen = w.started
	w.dirty = true
}

// ToggleMode switches between clock and stopwatch.
func (w *Watch) ToggleMode() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mode == config.WatchStopwatch {
		w.mode = config.WatchClock
	} else {
		w.mode = config.WatchStopwatch
	}
	w.dirty = true
}

// TogglePause freezes or resumes the displayed time.
func (w *Watch) TogglePause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	if w.paused {
		w.started = now
	} else {
		w.elapsed += now.Sub(w.started)
		w.frozen = now
	}
	w.paused = !w.paused
	w.dirty = true
}

// Mode returns config.WatchClock or config.WatchStopwatch.
func (w *Watch) Mode() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

// Text returns the time currently shown.
func (w *Watch) Text() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.text(w.now())
}

func (w *Watch) text(now time.Time) string {
	if w.mode == config.WatchStopwatch {
		d := w.elapsed
		if !w.paused {
			d += now.Sub(w.started)
		}
		d %= 24 * time.Hour
		h := d / time.Hour
		m := d % time.Hour / time.Minute
		s := d % time.Minute / time.Second
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	if w.paused {
		now = w.frozen
	}
	return now.Format("15:04:05")
}

// OnAmbient recolours the band. Black samples are ignored.
func (w *Watch) OnAmbient(c raster.Color) {
	if c == raster.Black {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.color = c
}

// Configure applies a reloaded watch section.
func (w *Watch) Configure(cfg *config.Config) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.apply(cfg.Watch)
}

func (w *Watch) Setup(c *raster.Canvas) {
	w.mu.Lock()
	w.dirty = true
	w.mu.Unlock()
	w.Render(c)
}

func (w *Watch) Render(c *raster.Canvas) bool {
	w.mu.Lock()
	text := w.text(w.now())
	col, alpha := w.color, w.alpha
	band, full := w.band, w.bg
	redrawAll := w.dirty
	if !w.dirty && text == w.shownText && col == w.shownColor {
		w.mu.Unlock()
		return false
	}
	w.shownText, w.shownColor, w.dirty = text, col, false
	w.mu.Unlock()

	switch {
	case redrawAll:
		drawBackground(c, full)
	case band != nil:
		c.DrawSprite(watchBand.Min, band)
	default:
		c.DrawRectangle(watchBand.Min, watchBand.Size(), clearColour, 1)
	}
	c.DrawRectangle(watchBand.Min, watchBand.Size(), col, alpha)
	c.DrawTextLine(watchTextPos, watchTextSize, text, raster.White)
	return true
}
