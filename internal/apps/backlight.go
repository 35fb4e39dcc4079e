package apps

import (
	"image"
	"sync"
	"time"

	"github.com/jmylchreest/g19d/internal/config"
	"github.com/jmylchreest/g19d/internal/keys"
	"github.com/jmylchreest/g19d/internal/raster"
)

// Backlight menu entries.
const (
	EntryMode = iota
	EntryColor
)

const backlightTextSize = 18

var (
	modeRowY   = 80
	colorRowY  = 110
	labelX     = 31
	valueX     = 171
	arrowsX    = 186
	swatchPos  = image.Pt(200, 113)
	swatchSize = image.Pt(14, 14)
	rowSize    = image.Pt(rowWidth, 20)
)

// Backlight switches the keyboard backlight between ambient colour and a
// fixed palette colour.
type Backlight struct {
	ctl Controller

	mu      sync.Mutex
	mode    string
	entry   int
	index   int
	palette []raster.Color
	dirty   bool
}

// NewBacklight creates the backlight control applet. Apply must be called
// once the controller is ready to install the configured mode.
func NewBacklight(ctl Controller, cfg config.BacklightConfig) *Backlight {
	b := &Backlight{ctl: ctl, mode: cfg.Mode, dirty: true}
	b.setPalette(cfg.Palette)
	return b
}

func (b *Backlight) setPalette(p []config.HexColor) {
	b.palette = b.palette[:0]
	for _, c := range p {
		b.palette = append(b.palette, c.Color())
	}
	if len(b.palette) == 0 {
		b.palette = append(b.palette, raster.White)
	}
	if b.index >= len(b.palette) {
		b.index = 0
	}
}

func (b *Backlight) Name() string            { return BacklightName }
func (b *Backlight) Listed() bool            { return true }
func (b *Backlight) Interval() time.Duration { return 50 * time.Millisecond }

func (b *Backlight) Bindings() keys.Table {
	return keys.Table{
		keys.Press(keys.Up):    keys.HandlerFunc(func(keys.Event) { b.MoveEntry() }),
		keys.Press(keys.Down):  keys.HandlerFunc(func(keys.Event) { b.MoveEntry() }),
		keys.Press(keys.Left):  keys.HandlerFunc(func(keys.Event) { b.Change(-1) }),
		keys.Press(keys.Right): keys.HandlerFunc(func(keys.Event) { b.Change(1) }),
	}
}

// Mode returns config.BacklightAmbient or config.BacklightManual.
func (b *Backlight) Mode() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// Entry returns the selected menu entry.
func (b *Backlight) Entry() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entry
}

// Color returns the selected palette colour.
func (b *Backlight) Color() raster.Color {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.palette[b.index]
}

// MoveEntry moves between the mode and colour entries. The colour entry is
// only reachable in manual mode.
func (b *Backlight) MoveEntry() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mode != config.BacklightManual {
		return
	}
	b.entry = (b.entry + 1) % 2
	b.dirty = true
}

// Change toggles the mode or steps through the palette, depending on the
// selected entry.
func (b *Backlight) Change(delta int) {
	b.mu.Lock()
	if b.entry == EntryMode {
		if b.mode == config.BacklightManual {
			b.mode = config.BacklightAmbient
		} else {
			b.mode = config.BacklightManual
		}
	} else {
		n := len(b.palette)
		b.index = ((b.index+delta)%n + n) % n
	}
	b.dirty = true
	b.mu.Unlock()

	b.Apply()
}

// Apply pushes the current mode to the controller.
func (b *Backlight) Apply() {
	b.mu.Lock()
	mode, c := b.mode, b.palette[b.index]
	b.mu.Unlock()

	if mode == config.BacklightManual {
		b.ctl.SetAmbientEnabled(false)
		b.ctl.ApplyColor(c, true)
		return
	}
	b.ctl.SetAmbientEnabled(true)
}

// Configure applies a reloaded palette.
func (b *Backlight) Configure(cfg *config.Config) {
	b.mu.Lock()
	b.setPalette(cfg.Backlight.Palette)
	b.dirty = true
	b.mu.Unlock()
}

func (b *Backlight) Setup(c *raster.Canvas) {
	drawHeader(c, "Backlight control")
	b.Render(c)
}

func (b *Backlight) Render(c *raster.Canvas) bool {
	b.mu.Lock()
	if !b.dirty {
		b.mu.Unlock()
		return false
	}
	mode, entry, col := b.mode, b.entry, b.palette[b.index]
	b.dirty = false
	b.mu.Unlock()

	clearBody(c)
	rowY := modeRowY
	if entry == EntryColor {
		rowY = colorRowY
	}
	c.DrawRectangle(image.Pt(rowX, rowY), rowSize, selectionColor, 1)

	c.DrawTextLine(image.Pt(labelX, modeRowY+1), backlightTextSize, "Mode:", raster.White)
	value := mode
	if entry == EntryMode {
		value = "< " + mode + " >"
	}
	c.DrawTextLine(image.Pt(valueX, modeRowY+1), backlightTextSize, value, raster.White)

	if mode == config.BacklightManual {
		c.DrawTextLine(image.Pt(labelX, colorRowY+1), backlightTextSize, "Color:", raster.White)
		if entry == EntryColor {
			c.DrawTextLine(image.Pt(arrowsX, colorRowY+1), backlightTextSize, "<     >", raster.White)
		}
		c.DrawRectangle(swatchPos, swatchSize, col, 1)
	}
	return true
}
