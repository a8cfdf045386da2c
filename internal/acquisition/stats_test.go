package acquisition

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/scanprofile/internal/monitoring"
	"github.com/banshee-data/scanprofile/internal/timeutil"
)

func TestStatsGetAndReset(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	s := NewStats(clock)
	s.AddFrame(2560, 600)
	s.AddFrame(2560, 640)
	s.AddFailure()
	clock.Advance(2 * time.Second)

	frames, bytes, points, failed, d := s.GetAndReset()
	assert.Equal(t, int64(2), frames)
	assert.Equal(t, int64(5120), bytes)
	assert.Equal(t, int64(1240), points)
	assert.Equal(t, int64(1), failed)
	assert.Equal(t, 2*time.Second, d)

	frames, _, _, _, _ = s.GetAndReset()
	assert.Zero(t, frames)
	assert.Equal(t, Totals{Frames: 2, Bytes: 5120, ValidPoints: 1240, Failures: 1}, s.Totals())
}

func TestStatsLogStats(t *testing.T) {
	defer monitoring.Quiet()()
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	s := NewStats(clock)
	clock.Advance(time.Second)
	s.LogStats()
	assert.Empty(t, lines, "idle periods are not logged")

	for i := 0; i < 100; i++ {
		s.AddFrame(1024*1024/100, 64000)
	}
	s.AddFailure()
	clock.Advance(time.Second)
	s.LogStats()
	assert.Equal(t, []string{"Profile stats (/sec): 1.00 MB, 100.0 frames, 6,400,000 points, 1 failed"}, lines)
}

func TestFormatWithCommas(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-1234, "-1,234"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatWithCommas(tt.n))
	}
}
