// Package apps contains the applets shown on the keyboard display.
package apps

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/jmylchreest/g19d/internal/config"
	"github.com/jmylchreest/g19d/internal/raster"
)

// Applet names.
const (
	SwitcherName     = "switcher"
	NotificationName = "notification"
	WatchName        = config.AppletWatch
	BacklightName    = config.AppletBacklight
)

// Controller is the part of the scheduler applets drive from key handlers.
type Controller interface {
	ChangeApp(name string) error
	Irq(name string) error
	Unirq()
	Listed() []string
	SetAmbientEnabled(enabled bool)
	ApplyColor(c raster.Color, force bool)
}

var (
	headerColor    = raster.Color{R: 145, G: 90}
	selectionColor = raster.Color{B: 155}
)

// Menu layout shared by the switcher and backlight screens.
var (
	headerPos   = image.Pt(15, 30)
	headerSize  = image.Pt(240, 34)
	titlePos    = image.Pt(16, 32)
	bodyPos     = image.Pt(0, 80)
	bodySize    = image.Pt(raster.Width, 120)
	rowX        = 30
	rowWidth    = 240
	titleSize   = 32
	clearColour = raster.Black
)

func drawHeader(c *raster.Canvas, title string) {
	c.Fill(clearColour)
	c.DrawRectangle(headerPos, headerSize, headerColor, 1)
	c.DrawTextLine(titlePos, titleSize, title, raster.White)
}

func clearBody(c *raster.Canvas) {
	c.DrawRectangle(bodyPos, bodySize, clearColour, 1)
}

// LoadBackground decodes a PNG, JPEG, BMP or WebP image.
func LoadBackground(path string) (image.Image, error) {
	f, err := os.Open(config.ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open background: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode background %s: %w", path, err)
	}
	return img, nil
}

// backgroundSprite loads path scaled to the full display, or returns nil for
// an empty path.
func backgroundSprite(path string) (*raster.Sprite, error) {
	if path == "" {
		return nil, nil
	}
	img, err := LoadBackground(path)
	if err != nil {
		return nil, err
	}
	return raster.NewSprite(img, raster.Bounds.Size()), nil
}

// drawBackground paints s, or black when there is no background.
func drawBackground(c *raster.Canvas, s *raster.Sprite) {
	if s == nil {
		c.Fill(clearColour)
		return
	}
	c.DrawSprite(image.Point{}, s)
}
