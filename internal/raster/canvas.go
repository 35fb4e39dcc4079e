package raster

import (
	"encoding/binary"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
)

// Display geometry.
const (
	Width  = 320
	Height = 240

	// FrameSize is the byte length of one RGB565 frame.
	FrameSize = Width * Height * 2
)

// Bounds is the drawable area of every canvas.
var Bounds = image.Rect(0, 0, Width, Height)

// Canvas is a fixed-size RGB565 compositing surface.
// It is not safe for concurrent use; each applet owns one.
type Canvas struct {
	pix   []uint16
	faces FaceFunc
	cache map[int]font.Face
}

// NewCanvas returns a black canvas that renders text with the embedded Go Regular font.
func NewCanvas() *Canvas {
	return NewCanvasWithFaces(DefaultFaces)
}

// NewCanvasWithFaces returns a black canvas using faces for text rendering.
func NewCanvasWithFaces(faces FaceFunc) *Canvas {
	if faces == nil {
		faces = DefaultFaces
	}
	return &Canvas{
		pix:   make([]uint16, Width*Height),
		faces: faces,
		cache: make(map[int]font.Face),
	}
}

// At returns the packed pixel at (x, y), or 0 outside the canvas.
func (c *Canvas) At(x, y int) uint16 {
	if !image.Pt(x, y).In(Bounds) {
		return 0
	}
	return c.pix[y*Width+x]
}

// Fill paints the whole canvas with col.
func (c *Canvas) Fill(col Color) {
	p := col.RGB565()
	for i := range c.pix {
		c.pix[i] = p
	}
}

// Bytes returns a copy of the canvas in wire order: row-major, little-endian.
func (c *Canvas) Bytes() []byte {
	buf := make([]byte, FrameSize)
	for i, p := range c.pix {
		binary.LittleEndian.PutUint16(buf[i*2:], p)
	}
	return buf
}

// Image converts the canvas to an RGBA image, for previews.
func (c *Canvas) Image() *image.RGBA {
	return FrameImage(c.Bytes())
}

// FrameImage decodes a wire-format frame into an RGBA image.
// Short frames leave the remaining pixels black.
func FrameImage(frame []byte) *image.RGBA {
	img := image.NewRGBA(Bounds)
	for i := 0; i+1 < len(frame) && i/2 < Width*Height; i += 2 {
		col := FromRGB565(binary.LittleEndian.Uint16(frame[i:]))
		n := i / 2
		img.SetRGBA(n%Width, n/Width, color.RGBA{R: col.R, G: col.G, B: col.B, A: 0xff})
	}
	return img
}

// clip returns the visible part of the rectangle at pos with size.
func clip(pos, size image.Point) (image.Rectangle, bool) {
	if size.X <= 0 || size.Y <= 0 {
		return image.Rectangle{}, false
	}
	r := image.Rectangle{Min: pos, Max: pos.Add(size)}.Intersect(Bounds)
	return r, !r.Empty()
}

// DrawRectangle blends a solid colour over the given region.
// alpha is the weight of col, 1 meaning opaque.
func (c *Canvas) DrawRectangle(pos, size image.Point, col Color, alpha float64) {
	r, ok := clip(pos, size)
	if !ok {
		return
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := c.pix[y*Width : (y+1)*Width]
		for x := r.Min.X; x < r.Max.X; x++ {
			row[x] = blendColor(row[x], col, alpha)
		}
	}
}

// CopyRect blends a size.X*size.Y block of packed pixels onto the canvas.
// mask holds one weight per pixel, 0 transparent and 255 opaque.
// Blocks whose buffers are shorter than the rectangle are ignored.
func (c *Canvas) CopyRect(pos, size image.Point, src []uint16, mask []byte) {
	r, ok := clip(pos, size)
	if !ok {
		return
	}
	n := size.X * size.Y
	if len(src) < n || len(mask) < n {
		return
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		srow := (y - pos.Y) * size.X
		for x := r.Min.X; x < r.Max.X; x++ {
			i := srow + x - pos.X
			c.pix[y*Width+x] = blend(c.pix[y*Width+x], src[i], float64(mask[i])/255)
		}
	}
}

// DrawImage copies img into the region, resizing it first when its size differs.
func (c *Canvas) DrawImage(pos, size image.Point, img image.Image) {
	if img == nil {
		return
	}
	c.DrawSprite(pos, NewSprite(img, size))
}

// DrawSprite copies a prepared sprite with its top-left corner at pos.
func (c *Canvas) DrawSprite(pos image.Point, s *Sprite) {
	if s == nil {
		return
	}
	c.CopyRect(pos, s.Size, s.Pix, s.Mask)
}

// DrawText blends col through a single-channel mask of the given size.
func (c *Canvas) DrawText(pos, size image.Point, mask []byte, col Color) {
	r, ok := clip(pos, size)
	if !ok || len(mask) < size.X*size.Y {
		return
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		mrow := (y - pos.Y) * size.X
		for x := r.Min.X; x < r.Max.X; x++ {
			a := mask[mrow+x-pos.X]
			if a == 0 {
				continue
			}
			c.pix[y*Width+x] = blendColor(c.pix[y*Width+x], col, float64(a)/255)
		}
	}
}

// Sprite is an image converted to packed pixels and an alpha mask,
// ready to be copied repeatedly without conversion.
type Sprite struct {
	Size image.Point
	Pix  []uint16
	Mask []byte
}

// NewSprite converts img, resizing it to size with Catmull-Rom (bicubic)
// interpolation when the dimensions differ.
func NewSprite(img image.Image, size image.Point) *Sprite {
	if size.X <= 0 || size.Y <= 0 {
		return &Sprite{}
	}
	src := img
	if b := img.Bounds(); b.Dx() != size.X || b.Dy() != size.Y {
		src = Resize(img, size)
	}
	b := src.Bounds()
	s := &Sprite{
		Size: size,
		Pix:  make([]uint16, size.X*size.Y),
		Mask: make([]byte, size.X*size.Y),
	}
	opaque := isOpaque(src)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			px := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			s.Pix[i] = Color{R: px.R, G: px.G, B: px.B}.RGB565()
			if opaque {
				s.Mask[i] = 0xff
			} else {
				s.Mask[i] = px.A
			}
			i++
		}
	}
	return s
}

// Sub returns the part of the sprite inside r, in sprite coordinates.
func (s *Sprite) Sub(r image.Rectangle) *Sprite {
	r = r.Intersect(image.Rectangle{Max: s.Size})
	if r.Empty() {
		return &Sprite{}
	}
	out := &Sprite{
		Size: r.Size(),
		Pix:  make([]uint16, 0, r.Dx()*r.Dy()),
		Mask: make([]byte, 0, r.Dx()*r.Dy()),
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := y*s.Size.X + r.Min.X
		out.Pix = append(out.Pix, s.Pix[off:off+r.Dx()]...)
		out.Mask = append(out.Mask, s.Mask[off:off+r.Dx()]...)
	}
	return out
}

// Resize scales img to size with Catmull-Rom interpolation.
func Resize(img image.Image, size image.Point) *image.NRGBA {
	dst := image.NewNRGBA(image.Rectangle{Max: size})
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func isOpaque(img image.Image) bool {
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model, color.YCbCrModel, color.CMYKModel:
		return true
	}
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
