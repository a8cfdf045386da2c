package gige

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanprofile/internal/profile"
	"github.com/banshee-data/scanprofile/internal/timeutil"
)

var simCal = profile.Calibration{WorldX: -32768 * 0.002, WorldZ: 0, ScaleX: 0.002, ScaleZ: 0.002}

func simConfig() SimConfig {
	return SimConfig{
		Vendor:        "Micro-Epsilon",
		Model:         "scanCONTROL 2950-50",
		Calibration:   simCal,
		Range:         profile.WorldRange{MinX: -25, MinZ: 53.5, MaxX: 25, MaxZ: 103.5},
		FrameRate:     1e6,
		ConveyorSpeed: 0.05,
	}
}

func rawAt(f *Frame, x, y int) uint16 { return f.Image.Gray16At(x, y).Y }

func TestSimFeatures(t *testing.T) {
	d := NewSimDigitizer(simConfig())
	f := d.Features()

	model, err := f.String("DeviceModelName")
	require.NoError(t, err)
	assert.Equal(t, "scanCONTROL 2950-50", model)

	entries, err := f.EnumEntries("ContainerResolution")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	cur, err := f.Int("ContainerResolution")
	require.NoError(t, err)
	assert.Equal(t, "640", entries[cur].Display)

	w, err := f.Int("Width")
	require.NoError(t, err)
	assert.Equal(t, int64(1280), w)
}

func TestSimGrabEncodesField(t *testing.T) {
	cfg := simConfig()
	d := NewSimDigitizer(cfg)
	require.NoError(t, d.Features().SetInt("Height", 4))

	f, err := d.Grab(context.Background())
	require.NoError(t, err)
	w, h := f.Size()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 4, h)

	for y := 0; y < h; y++ {
		prevX := -math.MaxFloat64
		for c := 0; c < 640; c++ {
			z := simCal.ToWorldZ(float64(rawAt(f, c, y)))
			x := simCal.ToWorldX(float64(rawAt(f, 640+c, y)))
			rng := cfg.Range
			require.True(t, x >= rng.MinX && x <= rng.MaxX && z >= rng.MinZ && z <= rng.MaxZ,
				"(%d,%d) -> (%v,%v)", c, y, x, z)
			assert.Greater(t, x, prevX)
			prevX = x
		}
	}
	// The dome under the sensor is closer than the belt at the edge.
	assert.Less(t, rawAt(f, 320, 0), rawAt(f, 0, 0))
}

func TestSimDropouts(t *testing.T) {
	cfg := simConfig()
	cfg.DropoutEvery = 10
	d := NewSimDigitizer(cfg)

	f, err := d.Grab(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rawAt(f, 0, 0))
	assert.Zero(t, rawAt(f, 640, 0))
	assert.Zero(t, rawAt(f, 10, 0))
	assert.NotZero(t, rawAt(f, 1, 0))

	// The next profile shifts the dropout pattern by one column.
	f, err = d.Grab(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rawAt(f, 9, 0))
	assert.NotZero(t, rawAt(f, 0, 0))
}

func TestSimFlips(t *testing.T) {
	plain := NewSimDigitizer(simConfig())
	cfg := simConfig()
	cfg.FlipPos, cfg.FlipDist = true, true
	flipped := NewSimDigitizer(cfg)

	a, err := plain.Grab(context.Background())
	require.NoError(t, err)
	b, err := flipped.Grab(context.Background())
	require.NoError(t, err)

	for _, c := range []int{0, 100, 320, 639} {
		assert.Equal(t, math.MaxUint16-rawAt(a, c, 0), rawAt(b, c, 0))
		assert.Equal(t, math.MaxUint16-rawAt(a, 640+c, 0), rawAt(b, 640+c, 0))
	}
}

func TestSimPacing(t *testing.T) {
	cfg := simConfig()
	cfg.FrameRate = 1000
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	cfg.Clock = clock
	d := NewSimDigitizer(cfg)
	require.NoError(t, d.Features().SetInt("Height", 100))

	got := make(chan *Frame, 1)
	go func() {
		f, err := d.Grab(context.Background())
		if err == nil {
			got <- f
		}
		close(got)
	}()

	clock.BlockUntil(1)
	select {
	case <-got:
		t.Fatal("frame delivered before its period elapsed")
	default:
	}
	clock.Advance(100 * time.Millisecond)

	select {
	case f, ok := <-got:
		require.True(t, ok)
		assert.Equal(t, uint64(1), f.BlockID)
		assert.True(t, f.Timestamp.Equal(time.Unix(100, 0).Add(100*time.Millisecond)))
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestSimRejectsBadGeometry(t *testing.T) {
	d := NewSimDigitizer(simConfig())
	require.NoError(t, d.Features().SetInt("Width", 1281))
	_, err := d.Grab(context.Background())
	assert.Error(t, err)
}
