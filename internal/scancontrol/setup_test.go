package scancontrol

import (
	"testing"
	"time"

	"github.com/banshee-data/scanprofile/internal/gige"
	"github.com/google/go-cmp/cmp"
)

func sensorFeatures() *gige.FeatureMap {
	f := gige.NewFeatureMap()
	f.Define("AcquisitionFrameRate", 25.0)
	f.Define("FlipDist", true)
	f.DefineEnum("ContainerResolution", 2,
		gige.EnumEntry{Value: 0, Display: "160"},
		gige.EnumEntry{Value: 1, Display: "320"},
		gige.EnumEntry{Value: 2, Display: "640 points"},
	)
	return f
}

func TestSetupCamera(t *testing.T) {
	f := sensorFeatures()
	s, err := SetupCamera(f, NbProfilesPerGrab)
	if err != nil {
		t.Fatalf("SetupCamera: %v", err)
	}

	want := Setup{
		ProfileSize:  640,
		NbProfiles:   100,
		FrameRate:    25,
		GrabTimeout:  8 * time.Second,
		FlipPosition: false,
		FlipDistance: true,
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("SetupCamera() mismatch (-want +got):\n%s", diff)
	}

	wantWrites := []string{
		"TransmissionType", "PixelFormat",
		"ContainerZ", "ContainerX", "ContainerH", "ContainerW", "ContainerM01", "ContainerM02", "ContainerTS",
		"GevSCPSPacketSize", "Calibration", "Width", "Height",
	}
	if diff := cmp.Diff(wantWrites, f.Writes()); diff != "" {
		t.Errorf("feature writes mismatch (-want +got):\n%s", diff)
	}

	checks := map[string]any{
		"TransmissionType":  "TypeContainer",
		"PixelFormat":       "Mono16",
		"ContainerZ":        true,
		"ContainerTS":       false,
		"GevSCPSPacketSize": int64(356),
		"Width":             int64(1280),
		"Height":            int64(100),
	}
	for name, want := range checks {
		var got any
		switch want.(type) {
		case string:
			got, _ = f.String(name)
		case bool:
			got, _ = f.Bool(name)
		case int64:
			got, _ = f.Int(name)
		}
		if got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestSetupCameraErrors(t *testing.T) {
	if _, err := SetupCamera(sensorFeatures(), 0); err == nil {
		t.Error("expected error for zero profiles")
	}

	f := sensorFeatures()
	f.DefineEnum("ContainerResolution", 7, gige.EnumEntry{Value: 0, Display: "160"})
	if _, err := SetupCamera(f, 1); err == nil {
		t.Error("expected error for missing enum entry")
	}

	f = sensorFeatures()
	f.DefineEnum("ContainerResolution", 0, gige.EnumEntry{Value: 0, Display: "max"})
	if _, err := SetupCamera(f, 1); err == nil {
		t.Error("expected error for non-numeric display name")
	}
}

func TestGrabTimeout(t *testing.T) {
	tests := []struct {
		profiles int
		rate     float64
		want     time.Duration
	}{
		{1, 300, MinGrabTimeout},
		{100, 25, 8 * time.Second},
		{100, 10, 20 * time.Second},
		{100, 0, MinGrabTimeout},
	}
	for _, tt := range tests {
		if got := GrabTimeout(tt.profiles, tt.rate); got != tt.want {
			t.Errorf("GrabTimeout(%d, %g) = %v, want %v", tt.profiles, tt.rate, got, tt.want)
		}
	}
}
