package scancontrol

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/scanprofile/internal/gige"
)

func TestMatchDevice(t *testing.T) {
	tests := []struct {
		name   string
		vendor string
		model  string
		want   int
	}{
		{"2910-100", Vendor, "scanCONTROL 2910-100", 0},
		{"2950-50", Vendor, "scanCONTROL 2950-50", 1},
		{"2650-25", Vendor, "scanCONTROL 2650-25", 2},
		{"2910-10", Vendor, "scanCONTROL 2910-10", 3},
		{"2600-100 with suffix", Vendor, "scanCONTROL 2600-100(v43)", 0},
		{"wrong vendor", "Acme", "scanCONTROL 2950-50", -1},
		{"unknown model", Vendor, "scanCONTROL 30xx-50", -1},
		{"truncated model", Vendor, "scanCONTROL 2950", -1},
		{"no range", Vendor, "scanCONTROL 2950-", -1},
		{"unknown range", Vendor, "scanCONTROL 2950-75", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchDevice(tt.vendor, tt.model)
			if tt.want < 0 {
				if !errors.Is(err, ErrUnsupportedDevice) {
					t.Fatalf("MatchDevice() err = %v, want ErrUnsupportedDevice", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("MatchDevice() err = %v", err)
			}
			if got != tt.want {
				t.Errorf("MatchDevice() = %d (%s), want %d (%s)", got, Ranges[got].Token, tt.want, Ranges[tt.want].Token)
			}
		})
	}
}

func TestRangesCalibration(t *testing.T) {
	// Fixed-point 32768 is the optical axis at the nominal offset.
	wantOffset := []float64{250, 95, 65, 55}
	for i, r := range Ranges {
		cal := r.Calibration
		if cal.ScaleX != cal.ScaleZ {
			t.Errorf("%s: anisotropic scale", r.Token)
		}
		if x := cal.ToWorldX(32768); math.Abs(x) > 1e-9 {
			t.Errorf("%s: X(32768) = %g, want 0", r.Token, x)
		}
		if z := cal.ToWorldZ(32768); math.Abs(z-wantOffset[i]) > 1e-9 {
			t.Errorf("%s: Z(32768) = %g, want %g", r.Token, z, wantOffset[i])
		}
		w := r.World
		if w.MinX != -w.MaxX || w.SizeZ() <= 0 {
			t.Errorf("%s: bad world range %+v", r.Token, w)
		}
		// The measuring field fits in the 16-bit coded range.
		if lo, hi := cal.ToWorldZ(0), cal.ToWorldZ(65535); w.MinZ < lo || w.MaxZ > hi {
			t.Errorf("%s: field %g..%g outside coded range %g..%g", r.Token, w.MinZ, w.MaxZ, lo, hi)
		}
	}
	if len(Ranges[0].Token) < len(Ranges[1].Token) {
		t.Error("longest range token must come first")
	}
}

func TestVerify(t *testing.T) {
	f := gige.NewFeatureMap()
	_ = f.SetString("DeviceVendorName", Vendor)
	_ = f.SetString("DeviceModelName", "scanCONTROL 2950-25")

	d, err := Verify(f)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if d.RangeIndex != 2 || d.Range().Token != "25" {
		t.Errorf("device = %+v", d)
	}

	_ = f.SetString("DeviceVendorName", "Other")
	if _, err := Verify(f); !errors.Is(err, ErrUnsupportedDevice) {
		t.Errorf("Verify err = %v, want ErrUnsupportedDevice", err)
	}

	if _, err := Verify(gige.NewFeatureMap()); !errors.Is(err, gige.ErrUnknownFeature) {
		t.Errorf("Verify on empty features err = %v", err)
	}
}
