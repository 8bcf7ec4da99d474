package filter

import (
	"image"
	"image/draw"
)

// ColorMatrix is a 4x5 color transformation applied to straight-alpha
// RGBA values in the [0, 255] range:
//
//	[R']   [a00 a01 a02 a03 a04]   [R]
//	[G'] = [a10 a11 a12 a13 a14] * [G]
//	[B']   [a20 a21 a22 a23 a24]   [B]
//	[A']   [a30 a31 a32 a33 a34]   [A]
//	                               [1]
//
// The fifth column is a bias added after the multiplication.
// Results are clamped back to [0, 255].
//
// ColorMatrix is a comparable value, so it can be used as a map key when
// memoizing filtered images.
type ColorMatrix [20]float32

// Identity returns the matrix that leaves colors unchanged.
func Identity() ColorMatrix {
	return ColorMatrix{
		1, 0, 0, 0, 0,
		0, 1, 0, 0, 0,
		0, 0, 1, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// Brightness scales RGB linearly by factor, like CSS brightness().
// 0 is black, 1 is unchanged, 2 is twice as bright.
func Brightness(factor float32) ColorMatrix {
	return ColorMatrix{
		factor, 0, 0, 0, 0,
		0, factor, 0, 0, 0,
		0, 0, factor, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// Contrast scales RGB around mid-gray by factor, like CSS contrast().
// 0 is flat gray, 1 is unchanged.
func Contrast(factor float32) ColorMatrix {
	// CSS: C' = (C - 0.5) * factor + 0.5, in the 0-255 range.
	offset := 127.5 * (1 - factor)
	return ColorMatrix{
		factor, 0, 0, 0, offset,
		0, factor, 0, 0, offset,
		0, 0, factor, 0, offset,
		0, 0, 0, 1, 0,
	}
}

// Levels returns the filter for a brightness/contrast pair in [-100, 100],
// equivalent to the CSS filter "brightness(100+b%) contrast(100+c%)".
// Brightness is applied first.
func Levels(brightness, contrast int) ColorMatrix {
	if brightness == 0 && contrast == 0 {
		return Identity()
	}
	b := float32(100+brightness) / 100
	c := float32(100+contrast) / 100
	return Brightness(b).Then(Contrast(c))
}

// IsIdentity reports whether m leaves every color unchanged.
func (m ColorMatrix) IsIdentity() bool {
	return m == Identity()
}

// Then returns the matrix that applies m first and next second.
func (m ColorMatrix) Then(next ColorMatrix) ColorMatrix {
	var r ColorMatrix
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += next[row*5+k] * m[k*5+col]
			}
			r[row*5+col] = sum
		}
		r[row*5+4] = next[row*5+0]*m[4] + next[row*5+1]*m[9] +
			next[row*5+2]*m[14] + next[row*5+3]*m[19] + next[row*5+4]
	}
	return r
}

// channelWise reports whether every output channel depends only on the same
// input channel and alpha passes through. Brightness, contrast and their
// compositions are channel-wise and can be applied with lookup tables.
func (m ColorMatrix) channelWise() bool {
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			if row != col && m[row*5+col] != 0 {
				return false
			}
		}
	}
	return m[15] == 0 && m[16] == 0 && m[17] == 0 && m[18] == 1 && m[19] == 0
}

// Transform applies m to a single straight-alpha color.
func (m ColorMatrix) Transform(r, g, b, a uint8) (uint8, uint8, uint8, uint8) {
	fr, fg, fb, fa := float32(r), float32(g), float32(b), float32(a)
	return clampUint8(m[0]*fr + m[1]*fg + m[2]*fb + m[3]*fa + m[4]),
		clampUint8(m[5]*fr + m[6]*fg + m[7]*fb + m[8]*fa + m[9]),
		clampUint8(m[10]*fr + m[11]*fg + m[12]*fb + m[13]*fa + m[14]),
		clampUint8(m[15]*fr + m[16]*fg + m[17]*fb + m[18]*fa + m[19])
}

// Apply returns a filtered copy of src. src is never modified.
func (m ColorMatrix) Apply(src image.Image) *image.NRGBA {
	dst := toNRGBA(src)
	if m.IsIdentity() {
		return dst
	}

	if m.channelWise() {
		var lut [3][256]uint8
		for ch := 0; ch < 3; ch++ {
			scale, bias := m[ch*5+ch], m[ch*5+4]
			for v := 0; v < 256; v++ {
				lut[ch][v] = clampUint8(scale*float32(v) + bias)
			}
		}
		for y := 0; y < dst.Rect.Dy(); y++ {
			row := dst.Pix[y*dst.Stride : y*dst.Stride+dst.Rect.Dx()*4]
			for i := 0; i < len(row); i += 4 {
				row[i+0] = lut[0][row[i+0]]
				row[i+1] = lut[1][row[i+1]]
				row[i+2] = lut[2][row[i+2]]
			}
		}
		return dst
	}

	for y := 0; y < dst.Rect.Dy(); y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+dst.Rect.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			row[i+0], row[i+1], row[i+2], row[i+3] = m.Transform(row[i+0], row[i+1], row[i+2], row[i+3])
		}
	}
	return dst
}

// toNRGBA returns a fresh straight-alpha copy of src with its origin at (0, 0).
func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if n, ok := src.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			so := n.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()*4], n.Pix[so:so+b.Dx()*4])
		}
		return dst
	}
	draw.Draw(dst, dst.Rect, src, b.Min, draw.Src)
	return dst
}

func clampUint8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
