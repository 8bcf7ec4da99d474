package render

import (
	"fmt"
	"image"
	"reflect"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/f64"

	"github.com/gogpu/stackview/internal/filter"
)

// DefaultLabelSize is the point size of overlay labels.
const DefaultLabelSize = 16

var (
	background = gg.Black
	labelColor = gg.RGB(0.9, 0.3, 0.3)
)

// GGSurface is a Surface backed by a gg.Context.
//
// gg owns the pixmap and the transform stack. Images are sampled with
// golang.org/x/image/draw straight into the pixmap so that nearest
// neighbour sampling is honoured in optimized mode.
type GGSurface struct {
	dc     *gg.Context
	face   text.Face
	smooth bool

	brightness int
	contrast   int

	// last filtered image, reused while source and levels are unchanged
	memoSrc image.Image
	memoB   int
	memoC   int
	memoDst image.Image
}

// NewGGSurface returns a w×h surface.
func NewGGSurface(w, h int) (*GGSurface, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("render: invalid surface size %dx%d", w, h)
	}
	src, err := text.NewFontSource(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("render: load label font: %w", err)
	}
	s := &GGSurface{
		dc:     gg.NewContext(w, h),
		face:   src.Face(DefaultLabelSize),
		smooth: true,
	}
	s.dc.SetFont(s.face)
	return s, nil
}

// Size implements Surface.
func (s *GGSurface) Size() (int, int) { return s.dc.Width(), s.dc.Height() }

// Resize implements Surface. The pixmap is reallocated and cleared.
func (s *GGSurface) Resize(w, h int) error {
	if err := s.dc.Resize(w, h); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return nil
}

// Clear implements Surface.
func (s *GGSurface) Clear() { s.dc.ClearWithColor(background) }

// Push implements Surface.
func (s *GGSurface) Push() { s.dc.Push() }

// Pop implements Surface.
func (s *GGSurface) Pop() { s.dc.Pop() }

// Translate implements Surface.
func (s *GGSurface) Translate(x, y float64) { s.dc.Translate(x, y) }

// Scale implements Surface.
func (s *GGSurface) Scale(sx, sy float64) { s.dc.Scale(sx, sy) }

// SetLevels implements Surface.
func (s *GGSurface) SetLevels(brightness, contrast int) {
	s.brightness, s.contrast = brightness, contrast
}

// SetSmoothing implements Surface.
func (s *GGSurface) SetSmoothing(on bool) { s.smooth = on }

// DrawImage implements Surface.
func (s *GGSurface) DrawImage(img image.Image, x, y float64) {
	src := s.filtered(img)
	b := src.Bounds()

	// Map source pixel (u, v) to user space (x+u-minX, y+v-minY), then to
	// device space through the current matrix.
	m := s.dc.GetTransform()
	tx, ty := x-float64(b.Min.X), y-float64(b.Min.Y)
	s2d := f64.Aff3{
		m.A, m.B, m.A*tx + m.B*ty + m.C,
		m.D, m.E, m.D*tx + m.E*ty + m.F,
	}

	var interp draw.Interpolator = draw.NearestNeighbor
	if s.smooth {
		interp = draw.ApproxBiLinear
	}
	pm := s.dc.ResizeTarget()
	interp.Transform(pixmapImage(pm), s2d, src, b, draw.Over, nil)
	pm.NotifyPixelsChanged()
}

// filtered returns img with the current levels applied.
func (s *GGSurface) filtered(img image.Image) image.Image {
	if s.brightness == 0 && s.contrast == 0 {
		return img
	}
	if reflect.TypeOf(img).Comparable() && s.memoSrc == img &&
		s.memoB == s.brightness && s.memoC == s.contrast {
		return s.memoDst
	}
	dst := filter.Levels(s.brightness, s.contrast).Apply(img)
	if reflect.TypeOf(img).Comparable() {
		s.memoSrc, s.memoB, s.memoC, s.memoDst = img, s.brightness, s.contrast, dst
	}
	return dst
}

// DrawLabel implements Surface.
func (s *GGSurface) DrawLabel(label string, x, y float64) {
	s.dc.SetColor(labelColor)
	s.dc.DrawStringAnchored(label, x, y, 0.5, 0.5)
}

// Image implements Surface.
func (s *GGSurface) Image() image.Image { return s.dc.Image() }

// SavePNG writes the surface to path.
func (s *GGSurface) SavePNG(path string) error { return s.dc.SavePNG(path) }

// Close releases the gg context.
func (s *GGSurface) Close() error { return s.dc.Close() }

// pixmapImage views the pixmap's premultiplied RGBA buffer as an
// *image.RGBA without copying.
func pixmapImage(pm *gg.Pixmap) *image.RGBA {
	return &image.RGBA{
		Pix:    pm.Data(),
		Stride: pm.Width() * 4,
		Rect:   image.Rect(0, 0, pm.Width(), pm.Height()),
	}
}
