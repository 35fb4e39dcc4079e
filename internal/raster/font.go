package raster

import (
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
)

// FaceFunc returns a face for a pixel size.
type FaceFunc func(size int) font.Face

var (
	goRegular     *truetype.Font
	goRegularErr  error
	goRegularOnce sync.Once
)

// DefaultFaces renders the embedded Go Regular font at size pixels per em.
// It falls back to the 7x13 bitmap face if the font cannot be parsed.
func DefaultFaces(size int) font.Face {
	goRegularOnce.Do(func() {
		goRegular, goRegularErr = truetype.Parse(goregular.TTF)
	})
	if goRegularErr != nil {
		return basicfont.Face7x13
	}
	return truetype.NewFace(goRegular, &truetype.Options{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// FixedFace ignores the requested size and always returns f.
func FixedFace(f font.Face) FaceFunc {
	return func(int) font.Face { return f }
}

func (c *Canvas) face(size int) font.Face {
	if f, ok := c.cache[size]; ok {
		return f
	}
	f := c.faces(size)
	c.cache[size] = f
	return f
}
