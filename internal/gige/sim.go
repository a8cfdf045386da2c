package gige

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/scanprofile/internal/profile"
	"github.com/banshee-data/scanprofile/internal/timeutil"
)

// SimConfig describes a synthetic laser-line scanner looking down at a
// conveyor that carries a row of domes through the field.
type SimConfig struct {
	Vendor      string
	Model       string
	Calibration profile.Calibration
	Range       profile.WorldRange

	// ProfileSizes become the ContainerResolution entries; Resolution
	// selects the current one.
	ProfileSizes []int
	Resolution   int

	// FrameRate is the profile rate in Hz (AcquisitionFrameRate).
	FrameRate float64
	// ConveyorSpeed is the Y travel between two profiles, mm.
	ConveyorSpeed float64
	// DropoutEvery makes every n-th point invalid; 0 disables dropouts.
	DropoutEvery int
	// Noise is the standard deviation of Z noise, mm.
	Noise float64

	FlipPos, FlipDist bool

	Seed  int64
	Clock timeutil.Clock
}

// SimDigitizer generates Mono16 container frames at the configured rate.
type SimDigitizer struct {
	grabber
	cfg      SimConfig
	features *FeatureMap

	mu       sync.Mutex
	rng      *rand.Rand
	profiles uint64
	block    uint64
	deadline time.Time
}

// NewSimDigitizer returns a simulated camera with a populated feature set.
func NewSimDigitizer(cfg SimConfig) *SimDigitizer {
	if len(cfg.ProfileSizes) == 0 {
		cfg.ProfileSizes = []int{160, 320, 640, 1280}
		cfg.Resolution = 2
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 300
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	f := NewFeatureMap()
	f.Define("DeviceVendorName", cfg.Vendor)
	f.Define("DeviceModelName", cfg.Model)
	f.Define("AcquisitionFrameRate", cfg.FrameRate)
	f.Define("FlipPos", cfg.FlipPos)
	f.Define("FlipDist", cfg.FlipDist)
	entries := make([]EnumEntry, len(cfg.ProfileSizes))
	for i, n := range cfg.ProfileSizes {
		entries[i] = EnumEntry{Value: int64(i), Display: strconv.Itoa(n)}
	}
	f.DefineEnum("ContainerResolution", int64(cfg.Resolution), entries...)
	f.Define("Width", int64(2*cfg.ProfileSizes[cfg.Resolution]))
	f.Define("Height", int64(1))

	d := &SimDigitizer{cfg: cfg, features: f, rng: rand.New(rand.NewSource(cfg.Seed))}
	d.next = d.nextFrame
	return d
}

func (d *SimDigitizer) Features() Features { return d.features }

func (d *SimDigitizer) Close() error { return nil }

func (d *SimDigitizer) geometry() (w, h int, err error) {
	wi, err := d.features.Int("Width")
	if err != nil {
		return 0, 0, err
	}
	hi, err := d.features.Int("Height")
	if err != nil {
		return 0, 0, err
	}
	if wi <= 0 || wi%2 != 0 || hi <= 0 {
		return 0, 0, fmt.Errorf("sim: bad frame geometry %dx%d", wi, hi)
	}
	return int(wi), int(hi), nil
}

func (d *SimDigitizer) nextFrame(ctx context.Context, dst *Frame) error {
	w, h, err := d.geometry()
	if err != nil {
		return err
	}
	rate, err := d.features.Float("AcquisitionFrameRate")
	if err != nil || rate <= 0 {
		rate = d.cfg.FrameRate
	}
	period := time.Duration(float64(h) / rate * float64(time.Second))

	d.mu.Lock()
	now := d.cfg.Clock.Now()
	if d.deadline.IsZero() || d.deadline.Before(now.Add(-period)) {
		d.deadline = now
	}
	d.deadline = d.deadline.Add(period)
	wait := d.deadline.Sub(now)
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.cfg.Clock.After(wait):
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	dst.ensure(w, h)
	d.render(dst, w/2, h)
	d.block++
	dst.BlockID = d.block
	dst.Timestamp = d.cfg.Clock.Now()
	dst.DeviceTicks = uint64(dst.Timestamp.UnixNano())
	dst.MissingPackets = 0
	return nil
}

// render fills rows of profileSize Z samples followed by profileSize X
// samples, encoded with the inverse of the sensor calibration.
func (d *SimDigitizer) render(dst *Frame, profileSize, rows int) {
	cal, rng := d.cfg.Calibration, d.cfg.Range
	flipPos, _ := d.features.Bool("FlipPos")
	flipDist, _ := d.features.Bool("FlipDist")
	step := rng.SizeX() / float64(profileSize)

	for r := 0; r < rows; r++ {
		p := d.profiles + uint64(r)
		y := float64(p) * d.cfg.ConveyorSpeed
		for c := 0; c < profileSize; c++ {
			x := rng.MinX + (float64(c)+0.5)*step
			var rawX, rawZ uint16
			if d.cfg.DropoutEvery <= 0 || (uint64(c)+p)%uint64(d.cfg.DropoutEvery) != 0 {
				z := d.surface(x, y) + d.rng.NormFloat64()*d.cfg.Noise
				rawX = encode((x - cal.WorldX) / cal.ScaleX)
				rawZ = encode((z - cal.WorldZ) / cal.ScaleZ)
				if flipPos {
					rawX = math.MaxUint16 - rawX
				}
				if flipDist {
					rawZ = math.MaxUint16 - rawZ
				}
			}
			setGray16(dst, c, r, rawZ)
			setGray16(dst, profileSize+c, r, rawX)
		}
	}
	d.profiles += uint64(rows)
}

// surface is the conveyor depth at (x, y): a flat belt at 3/4 of the
// field with domes every four radii along Y, the first centred at y = 0.
func (d *SimDigitizer) surface(x, y float64) float64 {
	rng := d.cfg.Range
	belt := rng.MinZ + 0.75*rng.SizeZ()
	radius := 0.3 * rng.SizeX()
	pitch := 4 * radius
	dy := math.Mod(y+pitch/2, pitch) - pitch/2
	if r2 := x*x + dy*dy; r2 < radius*radius {
		return belt - 0.5*math.Sqrt(radius*radius-r2)
	}
	return belt
}

// encode rounds a fixed-point value into [1, 65534]; 0 marks no data.
func encode(v float64) uint16 {
	return uint16(math.Max(1, math.Min(math.MaxUint16-1, math.Round(v))))
}

func setGray16(f *Frame, x, y int, v uint16) {
	i := f.Image.PixOffset(x, y)
	f.Image.Pix[i] = uint8(v >> 8)
	f.Image.Pix[i+1] = uint8(v)
}
