package profile

import (
	"errors"
	"fmt"
	"image"
)

// ErrExtentMismatch is returned when the rasters of a bundle, or a bundle and
// the stage it is fed to, do not share the same pixel extent.
var ErrExtentMismatch = errors.New("profile: raster extents differ")

// Bundle is one frame's worth of profile data. Z and X are always present;
// Mask is nil until the chain adds one.
type Bundle struct {
	Z    Raster
	X    Raster
	Mask *Mask
}

// Extent returns the common size of the bundle's rasters.
func (b Bundle) Extent() (image.Point, error) {
	if b.Z == nil || b.X == nil {
		return image.Point{}, fmt.Errorf("%w: missing Z or X band", ErrExtentMismatch)
	}
	z := b.Z.Bounds().Size()
	if x := b.X.Bounds().Size(); x != z {
		return image.Point{}, fmt.Errorf("%w: Z %v, X %v", ErrExtentMismatch, z, x)
	}
	if b.Mask != nil {
		if m := b.Mask.Bounds().Size(); m != z {
			return image.Point{}, fmt.Errorf("%w: Z %v, mask %v", ErrExtentMismatch, z, m)
		}
	}
	return z, nil
}

// checkExtent verifies that b has the extent want.
func checkExtent(b Bundle, want image.Point) error {
	got, err := b.Extent()
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: got %v, stage built for %v", ErrExtentMismatch, got, want)
	}
	return nil
}
