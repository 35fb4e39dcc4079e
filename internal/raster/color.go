package raster

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is a 24-bit RGB colour.
type Color struct {
	R, G, B uint8
}

// Common colours.
var (
	Black = Color{0, 0, 0}
	White = Color{255, 255, 255}
)

// RGB565 packs c into 5-6-5 bits.
func (c Color) RGB565() uint16 {
	r := clampBits(uint32(c.R)*31/255, 31)
	g := clampBits(uint32(c.G)*63/255, 63)
	b := clampBits(uint32(c.B)*31/255, 31)
	return uint16(r<<11 | g<<5 | b)
}

// Hex returns the colour as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// String implements fmt.Stringer.
func (c Color) String() string {
	return c.Hex()
}

// FromRGB565 expands a packed pixel back to 8 bits per channel.
func FromRGB565(p uint16) Color {
	r := uint32(p>>11) & 0x1f
	g := uint32(p>>5) & 0x3f
	b := uint32(p) & 0x1f
	return Color{
		R: uint8(r * 255 / 31),
		G: uint8(g * 255 / 63),
		B: uint8(b * 255 / 31),
	}
}

// ParseHex parses "#rrggbb" or "rrggbb".
func ParseHex(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("invalid colour %q: want #rrggbb", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

func clampBits(v, limit uint32) uint32 {
	if v > limit {
		return limit
	}
	return v
}

// blend mixes fg over bg with weight alpha in 8-bit space and repacks.
// Channels are truncated, so 255 at 0.5 over 0 gives 127.
func blend(bg, fg uint16, alpha float64) uint16 {
	if alpha >= 1 {
		return fg
	}
	return blendColor(bg, FromRGB565(fg), alpha)
}

func blendColor(bg uint16, f Color, alpha float64) uint16 {
	if alpha >= 1 {
		return f.RGB565()
	}
	if alpha <= 0 {
		return bg
	}
	b := FromRGB565(bg)
	return Color{
		R: mix(b.R, f.R, alpha),
		G: mix(b.G, f.G, alpha),
		B: mix(b.B, f.B, alpha),
	}.RGB565()
}

func mix(bg, fg uint8, alpha float64) uint8 {
	v := float64(bg)*(1-alpha) + float64(fg)*alpha
	if v > 255 {
		return 255
	}
	return uint8(v)
}
