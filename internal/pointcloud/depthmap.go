package pointcloud

import (
	"image"
	"math"
)

// InvalidDepth is the gray level reserved for cells without data.
const InvalidDepth uint16 = math.MaxUint16

// DepthCalibration is a uniform calibration of a depth map: pixel (col, row)
// with gray level g sits at world
//
//	x = WorldPosX + col*PixelSizeX
//	y = WorldPosY + row*PixelSizeY
//	z = WorldPosZ + g*GrayLevelSizeZ
type DepthCalibration struct {
	WorldPosX, WorldPosY float64
	PixelSizeX           float64
	PixelSizeY           float64
	WorldPosZ            float64
	GrayLevelSizeZ       float64
}

// DepthMap is a 16-bit corrected depth map.
type DepthMap struct {
	W, H int
	Pix  []uint16
	Cal  DepthCalibration
}

// NewDepthMap allocates a w x h depth map with every cell invalid.
func NewDepthMap(w, h int, cal DepthCalibration) *DepthMap {
	dm := &DepthMap{W: w, H: h, Pix: make([]uint16, w*h), Cal: cal}
	dm.Clear()
	return dm
}

// Clear marks every cell invalid.
func (dm *DepthMap) Clear() {
	for i := range dm.Pix {
		dm.Pix[i] = InvalidDepth
	}
}

// At returns the gray level at (col, row).
func (dm *DepthMap) At(col, row int) uint16 { return dm.Pix[row*dm.W+col] }

// Set stores a gray level at (col, row).
func (dm *DepthMap) Set(col, row int, g uint16) { dm.Pix[row*dm.W+col] = g }

// WorldZ returns the world depth at (col, row); ok is false for invalid cells.
func (dm *DepthMap) WorldZ(col, row int) (z float64, ok bool) {
	g := dm.At(col, row)
	if g == InvalidDepth {
		return 0, false
	}
	return dm.Cal.WorldPosZ + float64(g)*dm.Cal.GrayLevelSizeZ, true
}

// WorldXY returns the world position of the centre of (col, row).
func (dm *DepthMap) WorldXY(col, row int) (x, y float64) {
	return dm.Cal.WorldPosX + float64(col)*dm.Cal.PixelSizeX,
		dm.Cal.WorldPosY + float64(row)*dm.Cal.PixelSizeY
}

// ValidCount returns the number of cells holding data.
func (dm *DepthMap) ValidCount() int {
	n := 0
	for _, g := range dm.Pix {
		if g != InvalidDepth {
			n++
		}
	}
	return n
}

// Gray16 returns a copy of the depth map as an image.
func (dm *DepthMap) Gray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, dm.W, dm.H))
	for i, g := range dm.Pix {
		img.Pix[2*i] = uint8(g >> 8)
		img.Pix[2*i+1] = uint8(g)
	}
	return img
}
