package loader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imageorient"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecodeFailure is returned when fetched bytes are not a decodable image.
var ErrDecodeFailure = errors.New("loader: decode failed")

// Decode decodes a JPEG, PNG, GIF, WebP, BMP or TIFF image and applies its
// EXIF orientation, so the result is upright as a browser would show it.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", ErrDecodeFailure)
	}
	img, format, err := imageorient.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	if b := img.Bounds(); b.Empty() {
		return nil, format, fmt.Errorf("%w: empty %s image", ErrDecodeFailure, format)
	}
	return img, format, nil
}
