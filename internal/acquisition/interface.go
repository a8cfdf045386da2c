package acquisition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/scanprofile/internal/gige"
	"github.com/banshee-data/scanprofile/internal/profile"
)

// State of an Interface.
type State int32

const (
	Idle State = iota
	Processing
)

func (s State) String() string {
	if s == Processing {
		return "processing"
	}
	return "idle"
}

// InvalidValue is the raw Z value the sensor reports for points without
// data.
const InvalidValue = 0

// FrameEvent is published after every successfully processed frame.
type FrameEvent struct {
	BlockID   uint64
	Timestamp time.Time
	Kind      profile.Kind
	Summary   profile.Summary
}

// Interface converts grabbed frames and feeds them to a profile.Process.
type Interface struct {
	process  *profile.Process
	flipPos  bool
	flipDist bool

	state         atomic.Int32
	stats         *Stats
	statsInterval atomic.Int64

	chainOnce sync.Once
	chain     *profile.Chain

	mu        sync.RWMutex
	observers []func(FrameEvent)
	digitizer gige.Digitizer
}

// Build returns an Interface for process. The FlipPos and FlipDist
// features select the sensor flips; missing features mean no flip.
func Build(f gige.Features, process *profile.Process) (*Interface, error) {
	if process == nil {
		return nil, errors.New("acquisition: nil process")
	}
	iface := &Interface{process: process, stats: NewStats(nil)}
	iface.statsInterval.Store(int64(DefaultStatsInterval))
	iface.flipPos = boolFeature(f, "FlipPos")
	iface.flipDist = boolFeature(f, "FlipDist")
	return iface, nil
}

func boolFeature(f gige.Features, name string) bool {
	if f == nil {
		return false
	}
	v, err := f.Bool(name)
	return err == nil && v
}

// State reports whether a frame is being processed.
func (i *Interface) State() State { return State(i.state.Load()) }

// Stats returns the frame counters.
func (i *Interface) Stats() *Stats { return i.stats }

// SetStatsInterval sets how often Run logs frame rates. Non-positive
// values are ignored.
func (i *Interface) SetStatsInterval(d time.Duration) {
	if d > 0 {
		i.statsInterval.Store(int64(d))
	}
}

// StatsInterval returns how often Run logs frame rates.
func (i *Interface) StatsInterval() time.Duration {
	return time.Duration(i.statsInterval.Load())
}

// Process returns the process frames are delivered to.
func (i *Interface) Process() *profile.Process { return i.process }

// Chain returns the digitizer-side conversion chain, building it on first
// use.
func (i *Interface) Chain() *profile.Chain {
	i.chainOnce.Do(func() {
		w, h := i.process.ProfileSize(), i.process.NbProfiles()
		c := profile.NewChain(profile.NewAddMask(w, h, InvalidValue))
		if i.flipPos {
			c.Append(profile.NewFlipX(profile.MaxU16))
		}
		if i.flipDist {
			c.Append(profile.NewFlipZ(profile.MaxU16))
		}
		i.chain = c
	})
	return i.chain
}

// OnFrame registers fn to be called after each processed frame. fn runs on
// the acquisition goroutine and must not block.
func (i *Interface) OnFrame(fn func(FrameEvent)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.observers = append(i.observers, fn)
}

// Hook is a gige.Hook. The frame holds the Z band in columns [0,w) and
// the X band in [w,2w), w being the process profile size.
func (i *Interface) Hook(ctx context.Context, f *gige.Frame) error {
	i.state.Store(int32(Processing))
	defer i.state.Store(int32(Idle))

	summary, err := i.handle(f)
	if err != nil {
		i.stats.AddFailure()
		return fmt.Errorf("frame %d: %w", f.BlockID, err)
	}
	i.stats.AddFrame(len(f.Image.Pix), summary.Valid)

	ev := FrameEvent{BlockID: f.BlockID, Timestamp: f.Timestamp, Kind: i.process.Kind(), Summary: summary}
	i.mu.RLock()
	obs := i.observers
	i.mu.RUnlock()
	for _, fn := range obs {
		fn(ev)
	}
	return nil
}

func (i *Interface) handle(f *gige.Frame) (profile.Summary, error) {
	w, h := f.Size()
	if pw := i.process.ProfileSize(); w != 2*pw {
		return profile.Summary{}, fmt.Errorf("%w: frame is %dx%d, want %dx%d",
			profile.ErrExtentMismatch, w, h, 2*pw, i.process.NbProfiles())
	}
	img := profile.WrapU16(f.Image)
	half := w / 2
	// The views share the frame buffer, which the digitizer reuses once the
	// hook returns.
	b := profile.Bundle{
		Z: img.Child(image.Rect(0, 0, half, h)),
		X: img.Child(image.Rect(half, 0, w, h)),
	}
	b, err := i.Chain().Convert(b)
	if err != nil {
		return profile.Summary{}, err
	}
	if err := i.process.Process(b); err != nil {
		return profile.Summary{}, err
	}
	return i.process.Last(), nil
}

func (i *Interface) attach(d gige.Digitizer) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.digitizer = d
}

// Status is a point-in-time view of an Interface.
type Status struct {
	State     string          `json:"state"`
	Mode      string          `json:"mode"`
	Chain     string          `json:"chain"`
	Frames    int64           `json:"frames"`
	Failures  int64           `json:"failures"`
	Dropped   uint64          `json:"dropped"`
	Processed uint64          `json:"processed"`
	Last      profile.Summary `json:"last"`
	// Stream is set for digitizers that reassemble GVSP packets.
	Stream *gige.AssemblerStats `json:"stream,omitempty"`
}

// streamReporter is implemented by digitizers that reassemble a GVSP
// stream.
type streamReporter interface {
	AssemblerStats() gige.AssemblerStats
}

// Status reports the current state and counters.
func (i *Interface) Status() Status {
	tot := i.stats.Totals()
	st := Status{
		State:     i.State().String(),
		Mode:      i.process.Kind().String(),
		Chain:     i.Chain().String(),
		Frames:    tot.Frames,
		Failures:  tot.Failures,
		Processed: i.process.FramesProcessed(),
		Last:      i.process.Last(),
	}
	i.mu.RLock()
	if i.digitizer != nil {
		st.Dropped = i.digitizer.Dropped()
		if sr, ok := i.digitizer.(streamReporter); ok {
			stream := sr.AssemblerStats()
			st.Stream = &stream
		}
	}
	i.mu.RUnlock()
	return st
}
