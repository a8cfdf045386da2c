package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// ExtractOptions tunes depth map extraction.
type ExtractOptions struct {
	// FillGapsX interpolates runs of at most this many invalid cells lying
	// between two valid cells of the same row. Zero disables filling.
	FillGapsX int
}

// Extract rebuilds dm from every point in c. Points outside the depth map's
// box are dropped; when several points land in one cell the highest Z wins.
// It returns the number of cells written directly by points.
func Extract(c *Container, dm *DepthMap, opts ExtractOptions) int {
	dm.Clear()
	written := 0
	c.Iterate(func(_ int, p r3.Vector) bool {
		col, row, g, ok := dm.cell(p)
		if !ok {
			return true
		}
		cur := dm.At(col, row)
		if cur == InvalidDepth {
			written++
			dm.Set(col, row, g)
		} else if g > cur {
			dm.Set(col, row, g)
		}
		return true
	})
	if opts.FillGapsX > 0 {
		fillGapsX(dm, opts.FillGapsX)
	}
	return written
}

// cell maps a world point to its depth map cell and gray level.
func (dm *DepthMap) cell(p r3.Vector) (col, row int, g uint16, ok bool) {
	cal := dm.Cal
	if cal.PixelSizeX == 0 || cal.PixelSizeY == 0 || cal.GrayLevelSizeZ == 0 {
		return 0, 0, 0, false
	}
	fc := math.Round((p.X - cal.WorldPosX) / cal.PixelSizeX)
	fr := math.Round((p.Y - cal.WorldPosY) / cal.PixelSizeY)
	fg := math.Round((p.Z - cal.WorldPosZ) / cal.GrayLevelSizeZ)
	if fc < 0 || fr < 0 || fg < 0 || fc >= float64(dm.W) || fr >= float64(dm.H) || fg >= float64(InvalidDepth) {
		return 0, 0, 0, false
	}
	return int(fc), int(fr), uint16(fg), true
}

func fillGapsX(dm *DepthMap, maxGap int) {
	for row := 0; row < dm.H; row++ {
		last := -1
		for col := 0; col < dm.W; col++ {
			g := dm.At(col, row)
			if g == InvalidDepth {
				continue
			}
			if gap := col - last - 1; last >= 0 && gap > 0 && gap <= maxGap {
				a, b := float64(dm.At(last, row)), float64(g)
				for k := 1; k <= gap; k++ {
					t := float64(k) / float64(gap+1)
					dm.Set(last+k, row, uint16(math.Round(a+(b-a)*t)))
				}
			}
			last = col
		}
	}
}
