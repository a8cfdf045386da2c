package profile

import (
	"image"
	"image/color"
	"math"
)

// Raster is one band of profile data addressed in band-local pixel
// coordinates: Bounds().Min is always the origin.
type Raster interface {
	Bounds() image.Rectangle
	At(x, y int) float64
	Set(x, y int, v float64)
	// Max is the largest representable sample, used as the invalid sentinel.
	Max() float64
}

// MaxU16 is the largest 16-bit sample and the fixed-point invalid marker.
const MaxU16 = math.MaxUint16

// U16 is a 16-bit fixed-point raster backed by an image.Gray16. Views created
// with Child share pixels with their parent.
type U16 struct {
	img *image.Gray16
}

// NewU16 allocates a zeroed w x h raster.
func NewU16(w, h int) *U16 {
	return &U16{img: image.NewGray16(image.Rect(0, 0, w, h))}
}

// WrapU16 wraps an existing image without copying.
func WrapU16(img *image.Gray16) *U16 {
	return &U16{img: img}
}

// Image returns the backing image.
func (r *U16) Image() *image.Gray16 { return r.img }

func (r *U16) Bounds() image.Rectangle {
	return r.img.Rect.Sub(r.img.Rect.Min)
}

// Uint16At returns the sample at band-local (x, y).
func (r *U16) Uint16At(x, y int) uint16 {
	i := r.img.PixOffset(x+r.img.Rect.Min.X, y+r.img.Rect.Min.Y)
	return uint16(r.img.Pix[i])<<8 | uint16(r.img.Pix[i+1])
}

// SetUint16 stores v at band-local (x, y).
func (r *U16) SetUint16(x, y int, v uint16) {
	i := r.img.PixOffset(x+r.img.Rect.Min.X, y+r.img.Rect.Min.Y)
	r.img.Pix[i] = uint8(v >> 8)
	r.img.Pix[i+1] = uint8(v)
}

func (r *U16) At(x, y int) float64 { return float64(r.Uint16At(x, y)) }

// Set clamps v to [0, MaxU16] and rounds to the nearest integer.
func (r *U16) Set(x, y int, v float64) {
	switch {
	case v <= 0:
		r.SetUint16(x, y, 0)
	case v >= MaxU16:
		r.SetUint16(x, y, MaxU16)
	default:
		r.SetUint16(x, y, uint16(math.Round(v)))
	}
}

func (r *U16) Max() float64 { return MaxU16 }

// Child returns a view of the band-local rectangle rect. The view shares
// pixels with r; rect is clipped to r's bounds.
func (r *U16) Child(rect image.Rectangle) *U16 {
	abs := rect.Add(r.img.Rect.Min)
	return &U16{img: r.img.SubImage(abs).(*image.Gray16)}
}

// F32 is a float32 raster in world units.
type F32 struct {
	Pix    []float32
	Stride int
	W, H   int
}

// NewF32 allocates a zeroed w x h raster.
func NewF32(w, h int) *F32 {
	return &F32{Pix: make([]float32, w*h), Stride: w, W: w, H: h}
}

func (r *F32) Bounds() image.Rectangle { return image.Rect(0, 0, r.W, r.H) }

// Float32At returns the sample at (x, y).
func (r *F32) Float32At(x, y int) float32 { return r.Pix[y*r.Stride+x] }

func (r *F32) At(x, y int) float64 { return float64(r.Pix[y*r.Stride+x]) }

func (r *F32) Set(x, y int, v float64) { r.Pix[y*r.Stride+x] = float32(v) }

func (r *F32) Max() float64 { return math.MaxFloat32 }

// Mask is a validity raster: 255 marks a valid sample, 0 an invalid one.
type Mask struct {
	img *image.Gray
}

// NewMask allocates an all-invalid w x h mask.
func NewMask(w, h int) *Mask {
	return &Mask{img: image.NewGray(image.Rect(0, 0, w, h))}
}

func (m *Mask) Bounds() image.Rectangle { return m.img.Rect.Sub(m.img.Rect.Min) }

// Valid reports whether the sample at (x, y) is valid.
func (m *Mask) Valid(x, y int) bool {
	return m.img.GrayAt(x+m.img.Rect.Min.X, y+m.img.Rect.Min.Y).Y != 0
}

// SetValid marks the sample at (x, y).
func (m *Mask) SetValid(x, y int, valid bool) {
	var v uint8
	if valid {
		v = math.MaxUint8
	}
	m.img.SetGray(x+m.img.Rect.Min.X, y+m.img.Rect.Min.Y, color.Gray{Y: v})
}

func (m *Mask) At(x, y int) float64 {
	return float64(m.img.GrayAt(x+m.img.Rect.Min.X, y+m.img.Rect.Min.Y).Y)
}

func (m *Mask) Set(x, y int, v float64) { m.SetValid(x, y, v != 0) }

func (m *Mask) Max() float64 { return math.MaxUint8 }

// Image returns the backing image.
func (m *Mask) Image() *image.Gray { return m.img }
