package raster

import (
	"image"
	"unicode"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// LineGap is the extra vertical space between wrapped lines.
const LineGap = 15

// DrawTextLine draws text on a single line starting at pos and returns the
// drawn width. Text stops at the first newline and is cut before the first
// rune that would cross the right edge of the display.
func (c *Canvas) DrawTextLine(pos image.Point, size int, text string, col Color) int {
	if size <= 0 || pos.X >= Width {
		return 0
	}
	face := c.face(size)
	line, w := LayoutLine(face, text, Width-pos.X)
	if line == "" || w == 0 {
		return 0
	}
	mask := image.NewAlpha(image.Rect(0, 0, w, size))
	drawLine(mask, face, line, baseline(face, size))
	c.DrawText(pos, mask.Rect.Size(), mask.Pix, col)
	return w
}

// DrawTextFitted wraps text into lines no wider than the space right of pos
// and draws as many lines as fit above the bottom edge. It returns the size of
// the drawn block.
func (c *Canvas) DrawTextFitted(pos image.Point, size int, text string, col Color) image.Point {
	if size <= 0 || pos.X >= Width || pos.Y >= Height {
		return image.Point{}
	}
	face := c.face(size)
	lines := WrapText(face, text, Width-pos.X, size, Height-pos.Y)
	if len(lines) == 0 {
		return image.Point{}
	}
	w := 0
	for _, l := range lines {
		w = max(w, measure(face, []rune(l)).Ceil())
	}
	h := size + (len(lines)-1)*(size+LineGap)
	if w == 0 {
		return image.Point{}
	}
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	base := baseline(face, size)
	for i, l := range lines {
		drawLine(mask, face, l, base+i*(size+LineGap))
	}
	c.DrawText(pos, mask.Rect.Size(), mask.Pix, col)
	return mask.Rect.Size()
}

// LayoutLine returns the prefix of text that fits in maxW pixels and its width.
// The rune that would overflow is dropped along with everything after it.
func LayoutLine(face font.Face, text string, maxW int) (string, int) {
	limit := fixed.I(maxW)
	var w fixed.Int26_6
	end := 0
	for i, r := range text {
		if r == '\n' {
			break
		}
		a, _ := face.GlyphAdvance(r)
		if w+a > limit {
			break
		}
		w += a
		end = i + len(string(r))
	}
	return text[:end], w.Ceil()
}

// WrapText splits text into lines no wider than maxW. Lines break at the last
// space when the carried word fits on the next line and mid-word otherwise.
// Glyphs wider than maxW are skipped.
// Lines advance by size+LineGap and wrapping stops once the next line would
// end below maxH.
func WrapText(face font.Face, text string, maxW, size, maxH int) []string {
	if maxW <= 0 || size <= 0 || size > maxH {
		return nil
	}
	limit := fixed.I(maxW)
	step := size + LineGap
	var (
		lines []string
		cur   []rune
		curW  fixed.Int26_6
	)
	// next closes the current line and starts one with carry, reporting
	// whether another line still fits.
	next := func(carry []rune) bool {
		lines = append(lines, string(cur))
		if size+len(lines)*step > maxH {
			cur = nil
			return false
		}
		cur = append([]rune(nil), trimLeft(carry)...)
		curW = measure(face, cur)
		return true
	}
	for _, r := range text {
		if r == '\n' {
			if !next(nil) {
				return lines
			}
			continue
		}
		if len(cur) == 0 && len(lines) > 0 && unicode.IsSpace(r) {
			continue
		}
		a, _ := face.GlyphAdvance(r)
		if a > limit {
			continue
		}
		if curW+a <= limit {
			cur = append(cur, r)
			curW += a
			continue
		}
		var carry []rune
		if i := lastSpace(cur); i >= 0 {
			if tail := cur[i+1:]; measure(face, tail)+a <= limit {
				carry = append(carry, tail...)
				cur = cur[:i]
			}
		}
		if !next(carry) {
			return lines
		}
		if (len(cur) == 0 && unicode.IsSpace(r)) || curW+a > limit {
			continue
		}
		cur = append(cur, r)
		curW += a
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}

func baseline(face font.Face, size int) int {
	return face.Metrics().Ascent.Ceil() - size*3/16
}

func drawLine(dst *image.Alpha, face font.Face, line string, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(0, y),
	}
	d.DrawString(line)
}

func measure(face font.Face, rs []rune) fixed.Int26_6 {
	var w fixed.Int26_6
	for _, r := range rs {
		a, _ := face.GlyphAdvance(r)
		w += a
	}
	return w
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if unicode.IsSpace(rs[i]) {
			return i
		}
	}
	return -1
}

func trimLeft(rs []rune) []rune {
	for len(rs) > 0 && unicode.IsSpace(rs[0]) {
		rs = rs[1:]
	}
	return rs
}
