package gige

import (
	"image"
	"time"
)

// Frame is one grabbed Mono16 image. For a scanCONTROL in container mode
// the Z band occupies the left half and the X band the right half.
type Frame struct {
	Image     *image.Gray16
	BlockID uint64
	// Timestamp is the host time the block's leader was received.
	Timestamp time.Time
	// DeviceTicks is the camera's timestamp counter from the leader.
	DeviceTicks uint64
	// MissingPackets counts stream packets lost while assembling the frame.
	MissingPackets int
}

// NewFrame allocates a zeroed w x h frame.
func NewFrame(w, h int) *Frame {
	return &Frame{Image: image.NewGray16(image.Rect(0, 0, w, h))}
}

// Size returns the frame's width and height.
func (f *Frame) Size() (w, h int) {
	b := f.Image.Bounds()
	return b.Dx(), b.Dy()
}

// ensure resizes f to w x h, reallocating only when the size changes.
func (f *Frame) ensure(w, h int) {
	if f.Image != nil {
		if cw, ch := f.Size(); cw == w && ch == h {
			return
		}
	}
	f.Image = image.NewGray16(image.Rect(0, 0, w, h))
}

// SetLittleEndian fills the image from little-endian Mono16 bytes.
func (f *Frame) SetLittleEndian(raw []byte) {
	pix := f.Image.Pix
	for i := 0; i+1 < len(raw) && i+1 < len(pix); i += 2 {
		pix[i], pix[i+1] = raw[i+1], raw[i]
	}
}

// LittleEndian returns the image as little-endian Mono16 bytes.
func (f *Frame) LittleEndian() []byte {
	pix := f.Image.Pix
	out := make([]byte, len(pix))
	for i := 0; i+1 < len(pix); i += 2 {
		out[i], out[i+1] = pix[i+1], pix[i]
	}
	return out
}

// copyFrom copies src into f, resizing f if needed.
func (f *Frame) copyFrom(src *Frame) {
	w, h := src.Size()
	f.ensure(w, h)
	copy(f.Image.Pix, src.Image.Pix)
	f.BlockID = src.BlockID
	f.Timestamp = src.Timestamp
	f.DeviceTicks = src.DeviceTicks
	f.MissingPackets = src.MissingPackets
}
