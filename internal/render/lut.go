package render

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/banshee-data/scanprofile/internal/pointcloud"
)

// InvalidColor is the colour of depth map cells without data.
var InvalidColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}

var (
	jetOnce sync.Once
	jetLUT  [65536]color.RGBA
)

// JetLUT returns the shared 16-bit jet colour map. Entry 65535 is
// InvalidColor.
func JetLUT() *[65536]color.RGBA {
	jetOnce.Do(func() {
		for i := 0; i < len(jetLUT)-1; i++ {
			jetLUT[i] = jet(float64(i) / float64(len(jetLUT)-2))
		}
		jetLUT[pointcloud.InvalidDepth] = InvalidColor
	})
	return &jetLUT
}

// jet maps t in [0,1] through blue, cyan, yellow and red.
func jet(t float64) color.RGBA {
	ch := func(v float64) uint8 {
		v = math.Max(0, math.Min(1, v))
		return uint8(math.Round(v * 255))
	}
	return color.RGBA{
		R: ch(1.5 - math.Abs(4*t-3)),
		G: ch(1.5 - math.Abs(4*t-2)),
		B: ch(1.5 - math.Abs(4*t-1)),
		A: 255,
	}
}

// Colorize paints dm into dst through the jet LUT. dst must be at least
// as large as dm.
func Colorize(dst *image.RGBA, dm *pointcloud.DepthMap) {
	lut := JetLUT()
	b := dst.Bounds()
	for row := 0; row < dm.H && row < b.Dy(); row++ {
		off := dst.PixOffset(b.Min.X, b.Min.Y+row)
		for col := 0; col < dm.W && col < b.Dx(); col++ {
			c := lut[dm.At(col, row)]
			dst.Pix[off+0] = c.R
			dst.Pix[off+1] = c.G
			dst.Pix[off+2] = c.B
			dst.Pix[off+3] = c.A
			off += 4
		}
	}
}
