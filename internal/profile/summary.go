package profile

import (
	"math"

	"github.com/banshee-data/scanprofile/internal/pointcloud"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the valid depth samples of one converted frame.
type Summary struct {
	Points int     `json:"points"`
	Valid  int     `json:"valid"`
	MinZ   float64 `json:"min_z"`
	MaxZ   float64 `json:"max_z"`
	MeanZ  float64 `json:"mean_z"`
	StdZ   float64 `json:"std_z"`
}

// ValidRatio is the fraction of points carrying data.
func (s Summary) ValidRatio() float64 {
	if s.Points == 0 {
		return 0
	}
	return float64(s.Valid) / float64(s.Points)
}

// Summarize computes a Summary of zs, skipping the invalid sentinel.
func Summarize(zs []float32) Summary {
	s := Summary{Points: len(zs)}
	vals := make([]float64, 0, len(zs))
	for _, z := range zs {
		if pointcloud.IsInvalid(z) {
			continue
		}
		vals = append(vals, float64(z))
	}
	s.Valid = len(vals)
	if s.Valid == 0 {
		return s
	}
	s.MinZ = floats.Min(vals)
	s.MaxZ = floats.Max(vals)
	s.MeanZ, s.StdZ = stat.MeanStdDev(vals, nil)
	if math.IsNaN(s.StdZ) {
		s.StdZ = 0
	}
	return s
}
