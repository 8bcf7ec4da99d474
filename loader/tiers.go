package loader

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/nfnt/resize"
)

// Default longest-edge bounds for derived tiers.
const (
	LowTierEdge    = 256
	MediumTierEdge = 1024
)

// Derived is one generated tier.
type Derived struct {
	Tier  Tier
	Image image.Image
}

// DeriveTiers produces low and medium tiers from a full-quality image by
// bounding its longest edge. Tiers that would not be smaller than the
// source are skipped. The source is always returned last as TierHigh.
func DeriveTiers(src image.Image) []Derived {
	b := src.Bounds()
	longest := b.Dx()
	if b.Dy() > longest {
		longest = b.Dy()
	}

	out := make([]Derived, 0, 3)
	for _, t := range []struct {
		tier Tier
		edge int
	}{{TierLow, LowTierEdge}, {TierMedium, MediumTierEdge}} {
		if longest <= t.edge {
			continue
		}
		img := resize.Thumbnail(uint(t.edge), uint(t.edge), src, resize.Bilinear)
		out = append(out, Derived{Tier: t.tier, Image: img})
	}
	return append(out, Derived{Tier: TierHigh, Image: src})
}

// EncodeJPEG writes img as a JPEG at the given quality.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("loader: encode jpeg: %w", err)
	}
	return nil
}
