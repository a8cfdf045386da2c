package render

import (
	"bytes"
	"image"
	"strings"
	"testing"

	"github.com/banshee-data/scanprofile/internal/pointcloud"
)

func TestJetLUT(t *testing.T) {
	lut := JetLUT()
	if lut[65535] != InvalidColor {
		t.Fatalf("lut[65535] = %v, want %v", lut[65535], InvalidColor)
	}
	lo, hi := lut[0], lut[65534]
	if lo.B < 100 || lo.R != 0 {
		t.Errorf("lut[0] = %v, want dark blue", lo)
	}
	if hi.R < 100 || hi.B != 0 {
		t.Errorf("lut[65534] = %v, want dark red", hi)
	}
	if mid := lut[32767]; mid.G < 200 {
		t.Errorf("lut[mid] = %v, want green dominant", mid)
	}
}

func TestColorize(t *testing.T) {
	dm := pointcloud.NewDepthMap(3, 2, pointcloud.DepthCalibration{PixelSizeX: 1, PixelSizeY: 1, GrayLevelSizeZ: 1})
	dm.Set(0, 0, 0)
	dm.Set(2, 1, 65534)

	dst := image.NewRGBA(image.Rect(0, 0, 3, 2))
	Colorize(dst, dm)

	lut := JetLUT()
	if got := dst.RGBAAt(0, 0); got != lut[0] {
		t.Errorf("(0,0) = %v, want %v", got, lut[0])
	}
	if got := dst.RGBAAt(2, 1); got != lut[65534] {
		t.Errorf("(2,1) = %v, want %v", got, lut[65534])
	}
	if got := dst.RGBAAt(1, 0); got != InvalidColor {
		t.Errorf("(1,0) = %v, want invalid gray", got)
	}
}

func TestDepthHeatmapHTML(t *testing.T) {
	dm := pointcloud.NewDepthMap(40, 30, pointcloud.DepthCalibration{PixelSizeX: 0.1, PixelSizeY: 0.05, WorldPosZ: 50, GrayLevelSizeZ: 0.001})
	for col := 0; col < dm.W; col++ {
		dm.Set(col, 3, uint16(col*100))
	}

	var buf bytes.Buffer
	if err := DepthHeatmapHTML(&buf, dm, 300); err != nil {
		t.Fatalf("DepthHeatmapHTML: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Corrected Depth Map", "stride=2", "heatmap"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}

	if err := DepthHeatmapHTML(&buf, &pointcloud.DepthMap{}, 10); err == nil {
		t.Error("expected error for empty map")
	}
}
