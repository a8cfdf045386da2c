package profile

import (
	"fmt"
	"image"
	"strings"
)

// Stage is one step of a conversion chain. A stage may transform values or
// reshape buffers but never reorders samples.
type Stage interface {
	Name() string
	Convert(b Bundle) (Bundle, error)
}

// Chain applies its stages in order. The zero value and a nil *Chain pass
// bundles through unchanged.
type Chain struct {
	stages []Stage
}

// NewChain returns a chain running stages in the given order.
func NewChain(stages ...Stage) *Chain {
	return &Chain{stages: stages}
}

// Append adds s at the end of the chain.
func (c *Chain) Append(s Stage) {
	c.stages = append(c.stages, s)
}

// Len returns the number of stages.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.stages)
}

// String lists the stage names, e.g. "add-mask -> flip-x".
func (c *Chain) String() string {
	if c.Len() == 0 {
		return "(empty)"
	}
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}
	return strings.Join(names, " -> ")
}

// Convert runs b through every stage.
func (c *Chain) Convert(b Bundle) (Bundle, error) {
	if c == nil {
		return b, nil
	}
	for _, s := range c.stages {
		var err error
		b, err = s.Convert(b)
		if err != nil {
			return Bundle{}, fmt.Errorf("%s: %w", s.Name(), err)
		}
	}
	return b, nil
}

// AddMask derives the validity mask from Z: a sample is valid when its Z
// value differs from the invalid value reported by the sensor.
type AddMask struct {
	size    image.Point
	invalid float64
	mask    *Mask
}

// NewAddMask allocates the mask for w x h bundles.
func NewAddMask(w, h int, invalid float64) *AddMask {
	return &AddMask{size: image.Pt(w, h), invalid: invalid, mask: NewMask(w, h)}
}

func (s *AddMask) Name() string { return "add-mask" }

func (s *AddMask) Convert(b Bundle) (Bundle, error) {
	if err := checkExtent(Bundle{Z: b.Z, X: b.X}, s.size); err != nil {
		return Bundle{}, err
	}
	if z, ok := b.Z.(*U16); ok && s.invalid >= 0 && s.invalid <= MaxU16 {
		inv := uint16(s.invalid)
		for y := 0; y < s.size.Y; y++ {
			for x := 0; x < s.size.X; x++ {
				s.mask.SetValid(x, y, z.Uint16At(x, y) != inv)
			}
		}
	} else {
		for y := 0; y < s.size.Y; y++ {
			for x := 0; x < s.size.X; x++ {
				s.mask.SetValid(x, y, b.Z.At(x, y) != s.invalid)
			}
		}
	}
	b.Mask = s.mask
	return b, nil
}

// Axis selects the band a flip applies to.
type Axis int

const (
	AxisX Axis = iota
	AxisZ
)

func (a Axis) String() string {
	if a == AxisX {
		return "x"
	}
	return "z"
}

// Flip negates one band about max in place: v' = max - v.
type Flip struct {
	axis Axis
	max  float64
}

// NewFlipX flips the X band about max.
func NewFlipX(max float64) *Flip { return &Flip{axis: AxisX, max: max} }

// NewFlipZ flips the Z band about max.
func NewFlipZ(max float64) *Flip { return &Flip{axis: AxisZ, max: max} }

func (s *Flip) Name() string { return "flip-" + s.axis.String() }

func (s *Flip) Convert(b Bundle) (Bundle, error) {
	size, err := b.Extent()
	if err != nil {
		return Bundle{}, err
	}
	r := b.X
	if s.axis == AxisZ {
		r = b.Z
	}
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			r.Set(x, y, s.max-r.At(x, y))
		}
	}
	return b, nil
}

// ToWorld rescales fixed-point X and Z into float32 world units. The output
// rasters are allocated once and reused for every frame.
type ToWorld struct {
	size image.Point
	cal  Calibration
	x, z *F32
}

// NewToWorld allocates the world rasters for w x h bundles.
func NewToWorld(w, h int, cal Calibration) *ToWorld {
	return &ToWorld{size: image.Pt(w, h), cal: cal, x: NewF32(w, h), z: NewF32(w, h)}
}

func (s *ToWorld) Name() string { return "to-world" }

func (s *ToWorld) Convert(b Bundle) (Bundle, error) {
	if err := checkExtent(b, s.size); err != nil {
		return Bundle{}, err
	}
	for y := 0; y < s.size.Y; y++ {
		row := y * s.x.Stride
		for x := 0; x < s.size.X; x++ {
			s.x.Pix[row+x] = float32(s.cal.ToWorldX(b.X.At(x, y)))
			s.z.Pix[row+x] = float32(s.cal.ToWorldZ(b.Z.At(x, y)))
		}
	}
	return Bundle{Z: s.z, X: s.x, Mask: b.Mask}, nil
}

// ToFlat copies a w x h bundle into (w*h) x 1 contiguous float32 rasters in
// row-major order. A missing mask is flattened as all-valid.
type ToFlat struct {
	size image.Point
	x, z *F32
	mask *Mask
}

// NewToFlat allocates the flat rasters for w x h bundles.
func NewToFlat(w, h int) *ToFlat {
	n := w * h
	return &ToFlat{size: image.Pt(w, h), x: NewF32(n, 1), z: NewF32(n, 1), mask: NewMask(n, 1)}
}

func (s *ToFlat) Name() string { return "to-flat" }

func (s *ToFlat) Convert(b Bundle) (Bundle, error) {
	if err := checkExtent(b, s.size); err != nil {
		return Bundle{}, err
	}
	i := 0
	for y := 0; y < s.size.Y; y++ {
		for x := 0; x < s.size.X; x++ {
			s.x.Pix[i] = float32(b.X.At(x, y))
			s.z.Pix[i] = float32(b.Z.At(x, y))
			s.mask.SetValid(i, 0, b.Mask == nil || b.Mask.Valid(x, y))
			i++
		}
	}
	return Bundle{Z: s.z, X: s.x, Mask: s.mask}, nil
}

// ApplyInvalid writes each band's own Max() wherever the mask is invalid.
// Bundles without a mask pass through.
type ApplyInvalid struct{}

// NewApplyInvalid returns the stage.
func NewApplyInvalid() ApplyInvalid { return ApplyInvalid{} }

func (ApplyInvalid) Name() string { return "apply-invalid" }

func (ApplyInvalid) Convert(b Bundle) (Bundle, error) {
	size, err := b.Extent()
	if err != nil {
		return Bundle{}, err
	}
	if b.Mask == nil {
		return b, nil
	}
	xMax, zMax := b.X.Max(), b.Z.Max()
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			if !b.Mask.Valid(x, y) {
				b.X.Set(x, y, xMax)
				b.Z.Set(x, y, zMax)
			}
		}
	}
	return b, nil
}
