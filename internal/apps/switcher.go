package apps

import (
	"image"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jmylchreest/g19d/internal/keys"
	"github.com/jmylchreest/g19d/internal/raster"
)

const (
	switcherRowHeight = 30
	switcherTextSize  = 24
	switcherRows      = 4
)

// Switcher lists the listed applets and switches to the selected one.
type Switcher struct {
	ctl    Controller
	logger *slog.Logger

	mu       sync.Mutex
	selected int
	shown    []string
	dirty    bool
}

// NewSwitcher creates the applet switcher.
func NewSwitcher(ctl Controller, logger *slog.Logger) *Switcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Switcher{ctl: ctl, logger: logger, dirty: true}
}

func (s *Switcher) Name() string            { return SwitcherName }
func (s *Switcher) Listed() bool            { return false }
func (s *Switcher) Interval() time.Duration { return 50 * time.Millisecond }

func (s *Switcher) Bindings() keys.Table {
	return keys.Table{
		keys.Press(keys.Up):   keys.HandlerFunc(func(keys.Event) { s.Up() }),
		keys.Press(keys.Down): keys.HandlerFunc(func(keys.Event) { s.Down() }),
		keys.Press(keys.OK):   keys.HandlerFunc(func(keys.Event) { s.Select() }),
		keys.Press(keys.Back): keys.HandlerFunc(func(keys.Event) { s.ctl.Unirq() }),
	}
}

// Trigger returns a binding opening the switcher as an overlay on k.
func (s *Switcher) Trigger(k keys.Key) keys.Table {
	return keys.Table{
		keys.Press(k): keys.HandlerFunc(func(keys.Event) {
			if err := s.ctl.Irq(SwitcherName); err != nil {
				s.logger.Warn("failed to open switcher", "error", err)
			}
		}),
	}
}

// Up moves the selection up, wrapping to the last entry.
func (s *Switcher) Up() { s.move(-1) }

// Down moves the selection down, wrapping to the first entry.
func (s *Switcher) Down() { s.move(1) }

func (s *Switcher) move(delta int) {
	n := len(s.ctl.Listed())
	s.mu.Lock()
	defer s.mu.Unlock()
	if n == 0 {
		return
	}
	s.selected = ((s.selected+delta)%n + n) % n
	s.dirty = true
}

// Selected returns the index of the highlighted entry.
func (s *Switcher) Selected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Select switches to the highlighted applet.
func (s *Switcher) Select() {
	names := s.ctl.Listed()
	s.mu.Lock()
	if len(names) == 0 {
		s.mu.Unlock()
		return
	}
	if s.selected >= len(names) {
		s.selected = 0
	}
	name := names[s.selected]
	s.mu.Unlock()

	if err := s.ctl.ChangeApp(name); err != nil {
		s.logger.Warn("failed to change applet", "applet", name, "error", err)
	}
}

func (s *Switcher) Setup(c *raster.Canvas) {
	drawHeader(c, "Applets list")
	s.Render(c)
}

func (s *Switcher) Render(c *raster.Canvas) bool {
	names := s.ctl.Listed()

	s.mu.Lock()
	if !s.dirty && slices.Equal(names, s.shown) {
		s.mu.Unlock()
		return false
	}
	if s.selected >= len(names) {
		s.selected = 0
	}
	selected := s.selected
	s.shown = names
	s.dirty = false
	s.mu.Unlock()

	clearBody(c)
	first := max(0, selected-switcherRows+1)
	for i := first; i < len(names) && i-first < switcherRows; i++ {
		y := bodyPos.Y + switcherRowHeight*(i-first)
		if i == selected {
			c.DrawRectangle(image.Pt(rowX, y), image.Pt(rowWidth, switcherRowHeight), selectionColor, 1)
		}
		c.DrawTextLine(image.Pt(rowX+1, y+1), switcherTextSize, names[i], raster.White)
	}
	return true
}
