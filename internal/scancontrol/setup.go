package scancontrol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/banshee-data/scanprofile/internal/gige"
)

const (
	// PacketSize is the GVSP packet size recommended by MicroEpsilon.
	PacketSize = 356
	// MinGrabTimeout bounds the grab timeout from below.
	MinGrabTimeout = 5 * time.Second
)

// Setup is the acquisition geometry after SetupCamera.
type Setup struct {
	ProfileSize  int           `json:"profile_size"`
	NbProfiles   int           `json:"nb_profiles"`
	FrameRate    float64       `json:"frame_rate_hz"`
	GrabTimeout  time.Duration `json:"grab_timeout"`
	FlipPosition bool          `json:"flip_position"`
	FlipDistance bool          `json:"flip_distance"`
}

// Width is the frame width: the Z band then the X band.
func (s Setup) Width() int { return 2 * s.ProfileSize }

type featureWrite struct {
	name string
	set  func(gige.Features) error
}

func setString(name, v string) featureWrite {
	return featureWrite{name, func(f gige.Features) error { return f.SetString(name, v) }}
}

func setBool(name string, v bool) featureWrite {
	return featureWrite{name, func(f gige.Features) error { return f.SetBool(name, v) }}
}

func setInt(name string, v int64) featureWrite {
	return featureWrite{name, func(f gige.Features) error { return f.SetInt(name, v) }}
}

// containerMode puts the camera in Mono16 container mode with only the Z
// and X planes enabled and calibrated output.
var containerMode = []featureWrite{
	setString("TransmissionType", "TypeContainer"),
	setString("PixelFormat", "Mono16"),
	setBool("ContainerZ", true),
	setBool("ContainerX", true),
	setBool("ContainerH", false),
	setBool("ContainerW", false),
	setBool("ContainerM01", false),
	setBool("ContainerM02", false),
	setBool("ContainerTS", false),
	setInt("GevSCPSPacketSize", PacketSize),
	setBool("Calibration", true),
}

// SetupCamera configures the camera for nbProfiles profiles per frame and
// returns the resulting geometry.
func SetupCamera(f gige.Features, nbProfiles int) (Setup, error) {
	if nbProfiles <= 0 {
		return Setup{}, fmt.Errorf("invalid number of profiles %d", nbProfiles)
	}
	for _, w := range containerMode {
		if err := w.set(f); err != nil {
			return Setup{}, fmt.Errorf("set %s: %w", w.name, err)
		}
	}

	profileSize, err := ContainerResolution(f)
	if err != nil {
		return Setup{}, err
	}
	s := Setup{ProfileSize: profileSize, NbProfiles: nbProfiles}

	if err := f.SetInt("Width", int64(s.Width())); err != nil {
		return Setup{}, fmt.Errorf("set Width: %w", err)
	}
	if err := f.SetInt("Height", int64(nbProfiles)); err != nil {
		return Setup{}, fmt.Errorf("set Height: %w", err)
	}

	if s.FrameRate, err = f.Float("AcquisitionFrameRate"); err != nil {
		return Setup{}, fmt.Errorf("read AcquisitionFrameRate: %w", err)
	}
	s.GrabTimeout = GrabTimeout(nbProfiles, s.FrameRate)

	// Absent flip features mean no flip.
	s.FlipPosition, _ = f.Bool("FlipPos")
	s.FlipDistance, _ = f.Bool("FlipDist")
	return s, nil
}

// GrabTimeout allows two frame periods at the given profile rate, and at
// least MinGrabTimeout.
func GrabTimeout(nbProfiles int, rateHz float64) time.Duration {
	if rateHz <= 0 {
		return MinGrabTimeout
	}
	t := time.Duration(2 * float64(nbProfiles) / rateHz * float64(time.Second))
	if t < MinGrabTimeout {
		return MinGrabTimeout
	}
	return t
}

// ContainerResolution returns the number of points per profile, parsed
// from the display name of the current ContainerResolution entry.
func ContainerResolution(f gige.Features) (int, error) {
	cur, err := f.Int("ContainerResolution")
	if err != nil {
		return 0, fmt.Errorf("read ContainerResolution: %w", err)
	}
	entries, err := f.EnumEntries("ContainerResolution")
	if err != nil {
		return 0, fmt.Errorf("read ContainerResolution entries: %w", err)
	}
	for _, e := range entries {
		if e.Value != cur {
			continue
		}
		return leadingInt(e.Display)
	}
	return 0, fmt.Errorf("ContainerResolution value %d has no entry", cur)
}

func leadingInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if end < 0 {
		end = len(s)
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad ContainerResolution display name %q", s)
	}
	return n, nil
}
