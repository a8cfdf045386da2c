package render

import (
	"fmt"
	"image/color"
	"image/draw"

	"github.com/banshee-data/scanprofile/internal/pointcloud"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	vgdraw "gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var (
	backgroundGray = color.RGBA{R: 192, G: 192, B: 192, A: 255}
	frameBlue      = color.RGBA{B: 255, A: 255}
	pointRed       = color.RGBA{R: 255, A: 255}
)

// Extent is a world-space rectangle in mm. Y grows downward on screen.
type Extent struct {
	MinX, MinY, MaxX, MaxY float64
}

// CanvasSize returns the pixel size of a canvas covering e with square
// pixels of pixelSize mm.
func CanvasSize(e Extent, pixelSize float64) (w, h int) {
	if pixelSize <= 0 {
		return 0, 0
	}
	w = int((e.MaxX-e.MinX)/pixelSize + 0.5)
	h = int((e.MaxY-e.MinY)/pixelSize + 0.5)
	return w, h
}

// DrawScatter repaints dst with the calibration frame of e and a red dot
// for every valid (xs[i], ys[i]) sample. Samples carrying the float32
// invalid sentinel are skipped. It returns the number of dots drawn.
func DrawScatter(dst draw.Image, xs, ys []float32, e Extent) (int, error) {
	if len(xs) != len(ys) {
		return 0, fmt.Errorf("render: coordinate lengths differ: x=%d y=%d", len(xs), len(ys))
	}

	p := plot.New()
	p.BackgroundColor = backgroundGray
	p.HideAxes()
	p.X.Padding, p.Y.Padding = 0, 0
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}

	box := plotter.XYs{
		{X: e.MinX, Y: e.MinY},
		{X: e.MaxX, Y: e.MinY},
		{X: e.MaxX, Y: e.MaxY},
		{X: e.MinX, Y: e.MaxY},
		{X: e.MinX, Y: e.MinY},
	}
	frame, err := plotter.NewLine(box)
	if err != nil {
		return 0, err
	}
	frame.Color = frameBlue
	frame.Width = vg.Points(2)
	p.Add(frame)

	// optical axis
	if e.MinX < 0 && e.MaxX > 0 {
		axis, err := plotter.NewLine(plotter.XYs{{X: 0, Y: e.MinY}, {X: 0, Y: e.MaxY}})
		if err != nil {
			return 0, err
		}
		axis.Color = frameBlue
		axis.Width = vg.Points(1)
		axis.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(axis)
	}

	pts := make(plotter.XYs, 0, len(xs))
	for i := range xs {
		if pointcloud.IsInvalid(xs[i]) || pointcloud.IsInvalid(ys[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(xs[i]), Y: float64(ys[i])})
	}
	if len(pts) > 0 {
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return 0, err
		}
		sc.GlyphStyle.Color = pointRed
		sc.GlyphStyle.Radius = vg.Points(1)
		sc.GlyphStyle.Shape = vgdraw.CircleGlyph{}
		p.Add(sc)
	}

	// Add widens the axes to the data; pin them back to the world range.
	p.X.Min, p.X.Max = e.MinX, e.MaxX
	p.Y.Min, p.Y.Max = e.MinY, e.MaxY

	// vgimg draws into its own copy of the image it is given.
	c := vgimg.NewWith(vgimg.UseImage(dst))
	p.Draw(vgdraw.New(c))
	src := c.Image()
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return len(pts), nil
}
