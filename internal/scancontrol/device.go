// Package scancontrol holds what is specific to MicroEpsilon scanCONTROL
// 26xx/29xx sensors: recognising a supported device, the calibration and
// measuring field of each range, and putting the camera in dual-band
// container mode.
package scancontrol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/scanprofile/internal/gige"
	"github.com/banshee-data/scanprofile/internal/profile"
)

const (
	Vendor = "MICRO-EPSILON Optronic GmbH"

	// NbProfilesPerGrab is the number of profiles per frame in multi
	// profile mode.
	NbProfilesPerGrab = 100
	// ConveyorSpeed is the Y displacement between two profiles, in mm.
	ConveyorSpeed = 0.05
)

// Models are the supported model name prefixes.
var Models = []string{"scanCONTROL 26", "scanCONTROL 29"}

// ErrUnsupportedDevice is returned when the vendor, model or range of the
// connected camera is not recognised.
var ErrUnsupportedDevice = errors.New("scancontrol: unsupported device")

// Range is one measuring range of the sensor family. Calibration and World
// share an index so a matched device selects both.
type Range struct {
	Token       string
	Calibration profile.Calibration
	World       profile.WorldRange
}

func newRange(token string, scale, offset float64, world profile.WorldRange) Range {
	return Range{
		Token: token,
		Calibration: profile.Calibration{
			WorldX: -32768 * scale,
			WorldZ: -32768*scale + offset,
			ScaleX: scale,
			ScaleZ: scale,
		},
		World: world,
	}
}

// Ranges lists the measuring ranges in matching order. The longest token
// comes first.
var Ranges = []Range{
	newRange("100", 0.005, 250, profile.WorldRange{MinX: -71.75, MinZ: 125, MaxX: 71.75, MaxZ: 390}),
	newRange("50", 0.002, 95, profile.WorldRange{MinX: -30, MinZ: 65, MaxX: 30, MaxZ: 125}),
	newRange("25", 0.001, 65, profile.WorldRange{MinX: -14.65, MinZ: 53, MaxX: 14.65, MaxZ: 79}),
	newRange("10", 0.0005, 55, profile.WorldRange{MinX: -5.35, MinZ: 52.5, MaxX: 5.35, MaxZ: 60.5}),
}

// MatchDevice returns the index into Ranges of the device described by
// vendor and model. The range token is searched after the model prefix
// plus the width of the longest range token, e.g. "scanCONTROL 2950-50"
// only has "50" searched. Model names too short to hold a range are
// unsupported.
func MatchDevice(vendor, model string) (int, error) {
	if vendor != Vendor {
		return -1, fmt.Errorf("%w: vendor %q", ErrUnsupportedDevice, vendor)
	}
	for _, m := range Models {
		pos := strings.Index(model, m)
		if pos < 0 {
			continue
		}
		start := pos + len(m) + len(Ranges[0].Token)
		if len(model) < start {
			return -1, fmt.Errorf("%w: model %q has no range", ErrUnsupportedDevice, model)
		}
		rest := model[start:]
		for i, r := range Ranges {
			if strings.Contains(rest, r.Token) {
				return i, nil
			}
		}
		return -1, fmt.Errorf("%w: unknown range in model %q", ErrUnsupportedDevice, model)
	}
	return -1, fmt.Errorf("%w: model %q", ErrUnsupportedDevice, model)
}

// Device identifies a connected sensor.
type Device struct {
	Vendor     string `json:"vendor"`
	Model      string `json:"model"`
	RangeIndex int    `json:"range_index"`
}

// Range returns the matched measuring range.
func (d Device) Range() Range { return Ranges[d.RangeIndex] }

// Verify reads DeviceVendorName and DeviceModelName and matches them.
func Verify(f gige.Features) (Device, error) {
	vendor, err := f.String("DeviceVendorName")
	if err != nil {
		return Device{}, fmt.Errorf("read vendor: %w", err)
	}
	d := Device{Vendor: vendor, RangeIndex: -1}
	if vendor != Vendor {
		return d, fmt.Errorf("%w: vendor %q", ErrUnsupportedDevice, vendor)
	}
	if d.Model, err = f.String("DeviceModelName"); err != nil {
		return d, fmt.Errorf("read model: %w", err)
	}
	if d.RangeIndex, err = MatchDevice(d.Vendor, d.Model); err != nil {
		return d, err
	}
	return d, nil
}
