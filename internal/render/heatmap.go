package render

import (
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/scanprofile/internal/pointcloud"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// AssetsHost is where rendered chart pages load echarts from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

var jetStops = []string{"#00007f", "#0000ff", "#007fff", "#00ffff", "#7fff7f", "#ffff00", "#ff7f00", "#ff0000", "#7f0000"}

// DepthHeatmapHTML writes an interactive heatmap page of dm. The map is
// sampled with a uniform stride so that at most maxCells cells are
// emitted; invalid cells are left out.
func DepthHeatmapHTML(w io.Writer, dm *pointcloud.DepthMap, maxCells int) error {
	if dm == nil || dm.W == 0 || dm.H == 0 {
		return fmt.Errorf("render: empty depth map")
	}
	stride := 1
	if maxCells > 0 && dm.W*dm.H > maxCells {
		stride = int(math.Ceil(math.Sqrt(float64(dm.W*dm.H) / float64(maxCells))))
	}

	var xs, ys []string
	for col := 0; col < dm.W; col += stride {
		x, _ := dm.WorldXY(col, 0)
		xs = append(xs, fmt.Sprintf("%.2f", x))
	}
	for row := 0; row < dm.H; row += stride {
		_, y := dm.WorldXY(0, row)
		ys = append(ys, fmt.Sprintf("%.2f", y))
	}

	minZ, maxZ := math.Inf(1), math.Inf(-1)
	data := make([]opts.HeatMapData, 0, len(xs)*len(ys))
	for ri, row := 0, 0; row < dm.H; ri, row = ri+1, row+stride {
		for ci, col := 0, 0; col < dm.W; ci, col = ci+1, col+stride {
			z, ok := dm.WorldZ(col, row)
			if !ok {
				continue
			}
			minZ = math.Min(minZ, z)
			maxZ = math.Max(maxZ, z)
			data = append(data, opts.HeatMapData{Value: [3]interface{}{ci, ri, math.Round(z*1000) / 1000}})
		}
	}
	if len(data) == 0 {
		minZ, maxZ = 0, 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Depth Map", Width: "1000px", Height: "800px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Corrected Depth Map", Subtitle: fmt.Sprintf("%dx%d stride=%d valid=%d", dm.W, dm.H, stride, dm.ValidCount())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "X (mm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys, Name: "Y (mm)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minZ),
			Max:        float32(maxZ),
			InRange:    &opts.VisualMapInRange{Color: jetStops},
		}),
	)
	hm.SetXAxis(xs).AddSeries("depth", data)
	return hm.Render(w)
}
