package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical acquisition defaults file.
const DefaultConfigPath = "config/acquisition.defaults.json"

// AcquisitionConfig is the root configuration of the scancontrol service.
// Every field is optional; the Get* methods supply defaults for fields
// omitted from the file.
type AcquisitionConfig struct {
	// Acquisition
	Mode          *string  `json:"mode,omitempty"`   // "single" or "multi"
	Source        *string  `json:"source,omitempty"` // "sim", "udp" or "pcap"
	NbProfiles    *int     `json:"nb_profiles,omitempty"`
	NbBuffers     *int     `json:"nb_buffers,omitempty"`
	ConveyorSpeed *float64 `json:"conveyor_speed,omitempty"` // mm per profile
	BasePosY      *float64 `json:"base_pos_y,omitempty"`
	FillGapsX     *int     `json:"fill_gaps_x,omitempty"`
	StatsInterval *string  `json:"stats_interval,omitempty"` // duration string like "10s"

	// Camera features for the udp and pcap sources
	FeaturesPath *string `json:"features_path,omitempty"`

	// GVSP over UDP
	GVSPAddress *string `json:"gvsp_address,omitempty"`
	RcvBuf      *int    `json:"rcv_buf,omitempty"`

	// PCAP replay
	PCAPPath     *string `json:"pcap_path,omitempty"`
	PCAPPort     *int    `json:"pcap_port,omitempty"`
	PCAPRealtime *bool   `json:"pcap_realtime,omitempty"`
	PCAPLoop     *bool   `json:"pcap_loop,omitempty"`

	// Simulated scanner
	SimModel        *string  `json:"sim_model,omitempty"`
	SimFrameRate    *float64 `json:"sim_frame_rate,omitempty"`
	SimDropoutEvery *int     `json:"sim_dropout_every,omitempty"`
	SimNoise        *float64 `json:"sim_noise,omitempty"`
	SimFlipPos      *bool    `json:"sim_flip_pos,omitempty"`
	SimFlipDist     *bool    `json:"sim_flip_dist,omitempty"`

	// Monitor and persistence
	Listen           *string `json:"listen,omitempty"`
	DBPath           *string `json:"db_path,omitempty"`
	SnapshotInterval *string `json:"snapshot_interval,omitempty"` // "0s" disables snapshots
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyAcquisitionConfig returns an AcquisitionConfig with all fields nil.
func EmptyAcquisitionConfig() *AcquisitionConfig {
	return &AcquisitionConfig{}
}

// LoadAcquisitionConfig loads an AcquisitionConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file fall back to the Get* defaults, so partial configs are
// safe.
func LoadAcquisitionConfig(path string) (*AcquisitionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAcquisitionConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. It panics if the file
// cannot be loaded and is intended for test setup.
func MustLoadDefaultConfig() *AcquisitionConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/<pkg>/ and cmd/scancontrol/
	}
	for _, path := range candidates {
		if cfg, err := LoadAcquisitionConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *AcquisitionConfig) Validate() error {
	if c.Mode != nil {
		switch *c.Mode {
		case "single", "multi":
		default:
			return fmt.Errorf("mode must be single or multi, got %q", *c.Mode)
		}
	}
	if c.Source != nil {
		switch *c.Source {
		case "sim", "udp", "pcap":
		default:
			return fmt.Errorf("source must be sim, udp or pcap, got %q", *c.Source)
		}
	}
	if c.NbProfiles != nil && *c.NbProfiles < 1 {
		return fmt.Errorf("nb_profiles must be positive, got %d", *c.NbProfiles)
	}
	if c.NbBuffers != nil && *c.NbBuffers < 1 {
		return fmt.Errorf("nb_buffers must be positive, got %d", *c.NbBuffers)
	}
	if c.ConveyorSpeed != nil && *c.ConveyorSpeed <= 0 {
		return fmt.Errorf("conveyor_speed must be positive, got %f", *c.ConveyorSpeed)
	}
	if c.FillGapsX != nil && *c.FillGapsX < 0 {
		return fmt.Errorf("fill_gaps_x must be non-negative, got %d", *c.FillGapsX)
	}
	if c.SimFrameRate != nil && *c.SimFrameRate <= 0 {
		return fmt.Errorf("sim_frame_rate must be positive, got %f", *c.SimFrameRate)
	}
	if c.SimDropoutEvery != nil && *c.SimDropoutEvery < 0 {
		return fmt.Errorf("sim_dropout_every must be non-negative, got %d", *c.SimDropoutEvery)
	}
	if c.PCAPPort != nil && (*c.PCAPPort < 0 || *c.PCAPPort > 65535) {
		return fmt.Errorf("pcap_port out of range: %d", *c.PCAPPort)
	}
	for name, v := range map[string]*string{
		"stats_interval":    c.StatsInterval,
		"snapshot_interval": c.SnapshotInterval,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetMode returns the mode or "single".
func (c *AcquisitionConfig) GetMode() string {
	if c.Mode == nil {
		return "single"
	}
	return *c.Mode
}

// GetSource returns the frame source or "sim".
func (c *AcquisitionConfig) GetSource() string {
	if c.Source == nil {
		return "sim"
	}
	return *c.Source
}

// GetNbProfiles returns the profiles per frame in multi mode.
func (c *AcquisitionConfig) GetNbProfiles() int {
	if c.NbProfiles == nil {
		return 100
	}
	return *c.NbProfiles
}

// GetNbBuffers returns the grab ring size.
func (c *AcquisitionConfig) GetNbBuffers() int {
	if c.NbBuffers == nil {
		return 2
	}
	return *c.NbBuffers
}

// GetConveyorSpeed returns the Y step between profiles in mm.
func (c *AcquisitionConfig) GetConveyorSpeed() float64 {
	if c.ConveyorSpeed == nil {
		return 0.05
	}
	return *c.ConveyorSpeed
}

// GetBasePosY returns the Y of the first profile row.
func (c *AcquisitionConfig) GetBasePosY() float64 {
	if c.BasePosY == nil {
		return 0
	}
	return *c.BasePosY
}

// GetFillGapsX returns the longest X gap filled in depth maps.
func (c *AcquisitionConfig) GetFillGapsX() int {
	if c.FillGapsX == nil {
		return 0
	}
	return *c.FillGapsX
}

// GetStatsInterval returns how often frame rates are logged.
func (c *AcquisitionConfig) GetStatsInterval() time.Duration {
	return durationOr(c.StatsInterval, 10*time.Second)
}

// GetFeaturesPath returns the camera feature file, empty if unset.
func (c *AcquisitionConfig) GetFeaturesPath() string {
	if c.FeaturesPath == nil {
		return ""
	}
	return *c.FeaturesPath
}

// GetGVSPAddress returns the local GVSP stream address.
func (c *AcquisitionConfig) GetGVSPAddress() string {
	if c.GVSPAddress == nil {
		return "0.0.0.0:50010"
	}
	return *c.GVSPAddress
}

// GetRcvBuf returns the UDP receive buffer size.
func (c *AcquisitionConfig) GetRcvBuf() int {
	if c.RcvBuf == nil {
		return 4 << 20
	}
	return *c.RcvBuf
}

// GetPCAPPath returns the capture to replay, empty if unset.
func (c *AcquisitionConfig) GetPCAPPath() string {
	if c.PCAPPath == nil {
		return ""
	}
	return *c.PCAPPath
}

// GetPCAPPort returns the UDP destination port kept during replay; 0
// keeps every port.
func (c *AcquisitionConfig) GetPCAPPort() int {
	if c.PCAPPort == nil {
		return 0
	}
	return *c.PCAPPort
}

// GetPCAPRealtime reports whether replay follows capture timing.
func (c *AcquisitionConfig) GetPCAPRealtime() bool {
	if c.PCAPRealtime == nil {
		return true
	}
	return *c.PCAPRealtime
}

// GetPCAPLoop reports whether replay rewinds at the end of the capture.
func (c *AcquisitionConfig) GetPCAPLoop() bool {
	if c.PCAPLoop == nil {
		return false
	}
	return *c.PCAPLoop
}

// GetSimModel returns the model name reported by the simulated scanner.
func (c *AcquisitionConfig) GetSimModel() string {
	if c.SimModel == nil {
		return "scanCONTROL 2950-50"
	}
	return *c.SimModel
}

// GetSimFrameRate returns the simulated profile rate in Hz.
func (c *AcquisitionConfig) GetSimFrameRate() float64 {
	if c.SimFrameRate == nil {
		return 300
	}
	return *c.SimFrameRate
}

// GetSimDropoutEvery returns the simulated dropout period.
func (c *AcquisitionConfig) GetSimDropoutEvery() int {
	if c.SimDropoutEvery == nil {
		return 0
	}
	return *c.SimDropoutEvery
}

// GetSimNoise returns the simulated Z noise in mm.
func (c *AcquisitionConfig) GetSimNoise() float64 {
	if c.SimNoise == nil {
		return 0
	}
	return *c.SimNoise
}

// GetSimFlipPos returns the simulated FlipPos feature.
func (c *AcquisitionConfig) GetSimFlipPos() bool {
	if c.SimFlipPos == nil {
		return false
	}
	return *c.SimFlipPos
}

// GetSimFlipDist returns the simulated FlipDist feature.
func (c *AcquisitionConfig) GetSimFlipDist() bool {
	if c.SimFlipDist == nil {
		return false
	}
	return *c.SimFlipDist
}

// GetListen returns the monitor listen address.
func (c *AcquisitionConfig) GetListen() string {
	if c.Listen == nil {
		return ":8090"
	}
	return *c.Listen
}

// GetDBPath returns the SQLite path; empty disables persistence.
func (c *AcquisitionConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetSnapshotInterval returns how often depth maps are stored; zero
// disables snapshots.
func (c *AcquisitionConfig) GetSnapshotInterval() time.Duration {
	return durationOr(c.SnapshotInterval, 30*time.Second)
}
