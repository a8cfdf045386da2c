package acquisition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/scanprofile/internal/monitoring"
	"github.com/banshee-data/scanprofile/internal/timeutil"
)

// Stats tracks frame statistics with thread-safe operations.
type Stats struct {
	clock timeutil.Clock

	mu          sync.Mutex
	frameCount  int64
	byteCount   int64
	pointCount  int64
	failedCount int64
	lastReset   time.Time

	totals Totals
}

// Totals are cumulative counters since the Stats was created.
type Totals struct {
	Frames      int64 `json:"frames"`
	Bytes       int64 `json:"bytes"`
	ValidPoints int64 `json:"valid_points"`
	Failures    int64 `json:"failures"`
}

// NewStats creates a Stats instance. A nil clock means the real clock.
func NewStats(clock timeutil.Clock) *Stats {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Stats{clock: clock, lastReset: clock.Now()}
}

// AddFrame counts a processed frame of the given size and valid points.
func (s *Stats) AddFrame(bytes, validPoints int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameCount++
	s.byteCount += int64(bytes)
	s.pointCount += int64(validPoints)
	s.totals.Frames++
	s.totals.Bytes += int64(bytes)
	s.totals.ValidPoints += int64(validPoints)
}

// AddFailure counts a frame that could not be converted or processed.
func (s *Stats) AddFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedCount++
	s.totals.Failures++
}

// Totals returns the cumulative counters.
func (s *Stats) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

// GetAndReset returns the counters since the last reset and clears them.
func (s *Stats) GetAndReset() (frames, bytes, points, failed int64, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	duration = now.Sub(s.lastReset)
	frames, bytes, points, failed = s.frameCount, s.byteCount, s.pointCount, s.failedCount

	s.frameCount = 0
	s.byteCount = 0
	s.pointCount = 0
	s.failedCount = 0
	s.lastReset = now
	return
}

// LogStats logs per-second rates since the last call. Nothing is logged
// for an idle period.
func (s *Stats) LogStats() {
	frames, bytes, points, failed, duration := s.GetAndReset()
	if (frames == 0 && failed == 0) || duration <= 0 {
		return
	}
	secs := duration.Seconds()
	msg := fmt.Sprintf("Profile stats (/sec): %.2f MB, %.1f frames, %s points",
		float64(bytes)/secs/(1024*1024), float64(frames)/secs, FormatWithCommas(int64(float64(points)/secs)))
	if failed > 0 {
		msg += fmt.Sprintf(", %d failed", failed)
	}
	monitoring.Logf("%s", msg)
}

// LogEvery calls LogStats every interval until ctx is done.
func (s *Stats) LogEvery(ctx context.Context, interval time.Duration) {
	t := s.clock.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			s.LogStats()
		}
	}
}

// FormatWithCommas formats a number with thousands separators.
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	neg := false
	if n < 0 {
		neg, str = true, str[1:]
	}
	if len(str) <= 3 {
		if neg {
			return "-" + str
		}
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	if neg {
		return "-" + result
	}
	return result
}
