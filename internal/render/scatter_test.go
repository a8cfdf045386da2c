package render

import (
	"image"
	"math"
	"testing"
)

func TestCanvasSize(t *testing.T) {
	e := Extent{MinX: -30, MinY: 65, MaxX: 30, MaxY: 125}
	w, h := CanvasSize(e, 60.0/640)
	if w != 640 || h != 640 {
		t.Fatalf("CanvasSize = %dx%d, want 640x640", w, h)
	}
	if w, h := CanvasSize(e, 0); w != 0 || h != 0 {
		t.Fatalf("zero pixel size gave %dx%d", w, h)
	}
}

func TestDrawScatter(t *testing.T) {
	e := Extent{MinX: -30, MinY: 65, MaxX: 30, MaxY: 125}
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))

	inv := float32(math.MaxFloat32)
	xs := []float32{-10, 0, 10, inv}
	ys := []float32{80, 90, 100, 90}
	n, err := DrawScatter(img, xs, ys, e)
	if err != nil {
		t.Fatalf("DrawScatter: %v", err)
	}
	if n != 3 {
		t.Fatalf("drew %d points, want 3", n)
	}

	if got := img.RGBAAt(0, 0); got != backgroundGray {
		t.Errorf("corner pixel = %v, want gray 192", got)
	}

	var red, blue int
	for i := 0; i < len(img.Pix); i += 4 {
		r, g, b := img.Pix[i], img.Pix[i+1], img.Pix[i+2]
		switch {
		case r > 200 && g < 100 && b < 100:
			red++
		case b > 200 && r < 100 && g < 100:
			blue++
		}
	}
	if red == 0 {
		t.Error("no red point pixels drawn")
	}
	if blue == 0 {
		t.Error("no blue frame pixels drawn")
	}
}

func TestDrawScatterLengthMismatch(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	if _, err := DrawScatter(img, []float32{1}, nil, Extent{MaxX: 1, MaxY: 1}); err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
}
