package render

import (
	"errors"
	"image"
	"image/draw"
	"image/png"
	"io"
	"sync"
)

// ErrClosed is returned by Update once the surface has been closed.
var ErrClosed = errors.New("render: surface closed")

// Surface is a double-buffered image. Update renders into the back buffer
// and then swaps it to the front, so readers never see a partial frame.
type Surface struct {
	drawMu sync.Mutex // serialises Update

	mu      sync.RWMutex
	front   *image.RGBA
	back    *image.RGBA
	version uint64
	closed  bool
}

// NewSurface allocates a w x h surface with both buffers cleared.
func NewSurface(w, h int) *Surface {
	r := image.Rect(0, 0, w, h)
	return &Surface{front: image.NewRGBA(r), back: image.NewRGBA(r)}
}

// Bounds returns the surface extent.
func (s *Surface) Bounds() image.Rectangle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.front.Bounds()
}

// Update calls fn with the back buffer and publishes it when fn succeeds.
// The back buffer still holds the frame before last; fn is expected to
// repaint it completely.
func (s *Surface) Update(fn func(dst draw.Image) error) error {
	s.drawMu.Lock()
	defer s.drawMu.Unlock()

	s.mu.RLock()
	closed, back := s.closed, s.back
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if err := fn(back); err != nil {
		return err
	}

	s.mu.Lock()
	s.front, s.back = s.back, s.front
	s.version++
	s.mu.Unlock()
	return nil
}

// Version counts published frames.
func (s *Surface) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns a copy of the front buffer.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := image.NewRGBA(s.front.Bounds())
	copy(out.Pix, s.front.Pix)
	return out
}

// EncodePNG writes the front buffer as PNG.
func (s *Surface) EncodePNG(w io.Writer) error {
	return png.Encode(w, s.Snapshot())
}

// Close releases the surface. The last published frame stays readable.
func (s *Surface) Close() {
	s.drawMu.Lock()
	defer s.drawMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.back = nil
}
