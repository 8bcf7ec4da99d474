// Package view holds the viewing state shared by the gesture machine, the
// compositor and the viewer: the pan/zoom/window transform and the device
// profile that bounds it.
//
// Transform is a plain value. Every mutator returns a new Transform with
// its fields already clamped, so a Transform obtained through this package
// is always within bounds for the profile it was built with.
package view

import "math"

// Level bounds for brightness and contrast.
const (
	MinLevel = -100
	MaxLevel = 100
)

// Point is a 2D offset in surface pixels.
type Point struct {
	X, Y float64
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns p+q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p-q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Distance returns the euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Midpoint returns the point halfway between p and q.
func (p Point) Midpoint(q Point) Point {
	return Point{X: (p.X + q.X) / 2, Y: (p.Y + q.Y) / 2}
}

// Profile describes the zoom range allowed on a class of device.
type Profile struct {
	Name    string
	MinZoom float64
	MaxZoom float64
	Touch   bool
}

// Device profiles.
var (
	// Desktop is used with mouse and trackpad input.
	Desktop = Profile{Name: "desktop", MinZoom: 0.1, MaxZoom: 10}

	// Touch is used on touch screens, where extreme zoom levels are hard to
	// recover from with gestures alone.
	Touch = Profile{Name: "touch", MinZoom: 0.5, MaxZoom: 5, Touch: true}
)

// ClampZoom limits z to the profile's zoom range.
// A non-positive or NaN zoom maps to the minimum.
func (p Profile) ClampZoom(z float64) float64 {
	if math.IsNaN(z) || z < p.MinZoom {
		return p.MinZoom
	}
	if z > p.MaxZoom {
		return p.MaxZoom
	}
	return z
}

// ClampLevel limits a brightness or contrast value to [MinLevel, MaxLevel].
func ClampLevel(v int) int {
	if v < MinLevel {
		return MinLevel
	}
	if v > MaxLevel {
		return MaxLevel
	}
	return v
}

// Transform is the view state applied on every composed draw.
type Transform struct {
	// Zoom is the uniform scale factor. Always > 0.
	Zoom float64

	// Pan is the offset of the image center from the surface center.
	Pan Point

	// Brightness and Contrast are in [-100, 100]; 0 is neutral.
	Brightness int
	Contrast   int
}

// Default returns the reset state: zoom 1, no pan, neutral levels.
func Default() Transform {
	return Transform{Zoom: 1}
}

// Reset restores t to Default.
func (t *Transform) Reset() {
	*t = Default()
}

// IsDefault reports whether t equals Default.
func (t Transform) IsDefault() bool {
	return t == Default()
}

// WithZoom returns t with the zoom set to z clamped to p.
func (t Transform) WithZoom(z float64, p Profile) Transform {
	t.Zoom = p.ClampZoom(z)
	return t
}

// ScaleZoom multiplies the zoom by factor and clamps the result to p.
func (t Transform) ScaleZoom(factor float64, p Profile) Transform {
	return t.WithZoom(t.Zoom*factor, p)
}

// PanBy offsets the pan by (dx, dy). Pan is unbounded.
func (t Transform) PanBy(dx, dy float64) Transform {
	t.Pan = t.Pan.Add(Point{X: dx, Y: dy})
	return t
}

// WithBrightness returns t with brightness set to v, clamped.
func (t Transform) WithBrightness(v int) Transform {
	t.Brightness = ClampLevel(v)
	return t
}

// WithContrast returns t with contrast set to v, clamped.
func (t Transform) WithContrast(v int) Transform {
	t.Contrast = ClampLevel(v)
	return t
}

// AdjustLevels adds the given deltas to brightness and contrast, clamped.
func (t Transform) AdjustLevels(dBrightness, dContrast int) Transform {
	t.Brightness = ClampLevel(t.Brightness + dBrightness)
	t.Contrast = ClampLevel(t.Contrast + dContrast)
	return t
}

// Clamp brings every field of t within bounds for p.
func (t Transform) Clamp(p Profile) Transform {
	t.Zoom = p.ClampZoom(t.Zoom)
	t.Brightness = ClampLevel(t.Brightness)
	t.Contrast = ClampLevel(t.Contrast)
	return t
}
