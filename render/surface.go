package render

import "image"

// Surface is a 2D raster target with a transform stack.
type Surface interface {
	Size() (w, h int)
	Resize(w, h int) error
	Clear()

	Push()
	Pop()
	Translate(x, y float64)
	Scale(sx, sy float64)

	// SetLevels sets the brightness and contrast applied to images drawn
	// afterwards, each in [-100, 100] with 0 neutral.
	SetLevels(brightness, contrast int)

	// SetSmoothing selects bilinear (true) or nearest-neighbour sampling.
	SetSmoothing(on bool)

	// DrawImage draws img with its top-left corner at (x, y) in the
	// current user space.
	DrawImage(img image.Image, x, y float64)

	// DrawLabel draws text centered on (x, y) in the current user space.
	DrawLabel(text string, x, y float64)

	// Image returns a snapshot of the surface.
	Image() image.Image
}
