package gige

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/banshee-data/scanprofile/internal/monitoring"
)

// ErrGrabTimeout is returned when no frame arrives within the grab timeout.
var ErrGrabTimeout = errors.New("gige: grab timeout")

// DefaultGrabTimeout is used until SetGrabTimeout is called.
const DefaultGrabTimeout = 5 * time.Second

// Hook is called once per frame delivered by Digitizer.Process. The frame
// buffer is reused after the hook returns.
type Hook func(ctx context.Context, f *Frame) error

// Digitizer streams frames from a camera.
type Digitizer interface {
	Features() Features
	SetGrabTimeout(d time.Duration)
	// Grab acquires a single frame.
	Grab(ctx context.Context) (*Frame, error)
	// Process delivers frames to hook one at a time through a ring of
	// nbBuffers buffers. Frames arriving while every buffer is queued are
	// dropped. It returns nil when ctx is done or the source ends, and the
	// transport error otherwise.
	Process(ctx context.Context, nbBuffers int, hook Hook) error
	// Dropped counts frames dropped because the hook fell behind.
	Dropped() uint64
	Close() error
}

// frameSource fills dst with the next frame. It returns io.EOF when the
// source is exhausted.
type frameSource func(ctx context.Context, dst *Frame) error

// grabber implements Grab, Process and Dropped on top of a frameSource.
type grabber struct {
	next        frameSource
	grabTimeout atomic.Int64
	dropped     atomic.Uint64
}

func (g *grabber) SetGrabTimeout(d time.Duration) { g.grabTimeout.Store(int64(d)) }

func (g *grabber) timeout() time.Duration {
	if d := time.Duration(g.grabTimeout.Load()); d > 0 {
		return d
	}
	return DefaultGrabTimeout
}

func (g *grabber) Dropped() uint64 { return g.dropped.Load() }

func (g *grabber) Grab(ctx context.Context) (*Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout())
	defer cancel()
	f := &Frame{}
	if err := g.next(ctx, f); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v", ErrGrabTimeout, g.timeout())
		}
		return nil, err
	}
	return f, nil
}

func (g *grabber) Process(ctx context.Context, nbBuffers int, hook Hook) error {
	if nbBuffers < 1 {
		return fmt.Errorf("gige: need at least one buffer, got %d", nbBuffers)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	free := make(chan *Frame, nbBuffers)
	for i := 0; i < nbBuffers; i++ {
		free <- &Frame{}
	}
	ready := make(chan *Frame, nbBuffers)
	srcErr := make(chan error, 1)

	go func() {
		defer close(ready)
		scratch := &Frame{}
		for {
			var dst *Frame
			select {
			case dst = <-free:
			default:
				dst = scratch
			}
			if err := g.next(ctx, dst); err != nil {
				srcErr <- err
				return
			}
			if dst == scratch {
				g.dropped.Add(1)
				continue
			}
			ready <- dst
		}
	}()

	// Frames are handed to the hook in arrival order, one at a time.
	for f := range ready {
		if ctx.Err() == nil {
			if err := hook(ctx, f); err != nil {
				monitoring.Logf("frame %d: hook error: %v", f.BlockID, err)
			}
		}
		free <- f
	}

	err := <-srcErr
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
