package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/scanprofile/internal/acquisition"
	"github.com/banshee-data/scanprofile/internal/config"
	"github.com/banshee-data/scanprofile/internal/gige"
	"github.com/banshee-data/scanprofile/internal/monitor"
	"github.com/banshee-data/scanprofile/internal/monitoring"
	"github.com/banshee-data/scanprofile/internal/pointcloud"
	"github.com/banshee-data/scanprofile/internal/profile"
	"github.com/banshee-data/scanprofile/internal/scancontrol"
	"github.com/banshee-data/scanprofile/internal/storage/sqlite"
)

const requirementsMessage = `The application requires the following conditions to run:
   - A GigE Vision stream from a Micro-Epsilon scanCONTROL 26xx or 29xx,
     or a capture or simulation of one.
   - A supported measuring range (10, 25, 50 or 100 mm).
`

const grabFailureMessage = `Unable to grab from the scanCONTROL camera!
Verify the configuration of the camera:
   - Profile frequency vs measuring field.
   - The GVSP destination address and port.
The default configuration of the camera upon powerup should work.
`

// disabled turns the monitor off when given as the listen address.
const disabled = "-"

// overrides are command-line values that replace config file fields when
// non-empty.
type overrides struct {
	Mode     string
	Source   string
	Listen   string
	DBPath   string
	PCAPPath string
	GVSPAddr string
}

type options struct {
	ExportDir string
	// Out receives the operator messages printed on startup failures.
	Out io.Writer
}

// loadConfig reads path, or the default config when path is empty and the
// default file exists. With neither, every field takes its built-in
// default.
func loadConfig(path string) (*config.AcquisitionConfig, error) {
	if path != "" {
		return config.LoadAcquisitionConfig(path)
	}
	if _, err := os.Stat(config.DefaultConfigPath); err == nil {
		return config.LoadAcquisitionConfig(config.DefaultConfigPath)
	}
	return config.EmptyAcquisitionConfig(), nil
}

func applyOverrides(cfg *config.AcquisitionConfig, o overrides) {
	set := func(dst **string, v string) {
		if v != "" {
			*dst = &v
		}
	}
	set(&cfg.Mode, o.Mode)
	set(&cfg.Listen, o.Listen)
	set(&cfg.DBPath, o.DBPath)
	set(&cfg.GVSPAddress, o.GVSPAddr)
	set(&cfg.PCAPPath, o.PCAPPath)
	if o.PCAPPath != "" && o.Source == "" {
		o.Source = "pcap"
	}
	set(&cfg.Source, o.Source)
}

// newDigitizer opens the configured frame source.
func newDigitizer(cfg *config.AcquisitionConfig) (gige.Digitizer, error) {
	switch src := cfg.GetSource(); src {
	case "sim":
		model := cfg.GetSimModel()
		// An unsupported model still gets a camera so that Verify reports it.
		r := scancontrol.Ranges[0]
		if idx, err := scancontrol.MatchDevice(scancontrol.Vendor, model); err == nil {
			r = scancontrol.Ranges[idx]
		}
		return gige.NewSimDigitizer(gige.SimConfig{
			Vendor:        scancontrol.Vendor,
			Model:         model,
			Calibration:   r.Calibration,
			Range:         r.World,
			FrameRate:     cfg.GetSimFrameRate(),
			ConveyorSpeed: cfg.GetConveyorSpeed(),
			DropoutEvery:  cfg.GetSimDropoutEvery(),
			Noise:         cfg.GetSimNoise(),
			FlipPos:       cfg.GetSimFlipPos(),
			FlipDist:      cfg.GetSimFlipDist(),
			Seed:          time.Now().UnixNano(),
		}), nil

	case "udp":
		features, err := loadFeatures(cfg, src)
		if err != nil {
			return nil, err
		}
		return gige.NewUDPDigitizer(gige.UDPConfig{
			Address:    cfg.GetGVSPAddress(),
			RcvBuf:     cfg.GetRcvBuf(),
			PacketSize: scancontrol.PacketSize,
			Features:   features,
		}), nil

	case "pcap":
		if cfg.GetPCAPPath() == "" {
			return nil, errors.New("pcap source requires pcap_path or -pcap")
		}
		features, err := loadFeatures(cfg, src)
		if err != nil {
			return nil, err
		}
		return gige.NewPCAPDigitizer(gige.PCAPConfig{
			Path:       cfg.GetPCAPPath(),
			Port:       cfg.GetPCAPPort(),
			PacketSize: scancontrol.PacketSize,
			Realtime:   cfg.GetPCAPRealtime(),
			Loop:       cfg.GetPCAPLoop(),
			Features:   features,
		})

	default:
		return nil, fmt.Errorf("unknown source %q", src)
	}
}

// loadFeatures reads the feature file that describes a streamed camera.
// The stream itself carries no device identity.
func loadFeatures(cfg *config.AcquisitionConfig, src string) (*gige.FeatureMap, error) {
	path := cfg.GetFeaturesPath()
	if path == "" {
		return nil, fmt.Errorf("%s source requires features_path", src)
	}
	return gige.LoadFeatureMap(path)
}

// nbProfilesFor is 1 in single mode and the configured grab height
// otherwise.
func nbProfilesFor(kind profile.Kind, cfg *config.AcquisitionConfig) int {
	if kind == profile.KindSingle {
		return 1
	}
	return cfg.GetNbProfiles()
}

func newProcess(kind profile.Kind, cfg *config.AcquisitionConfig, dev scancontrol.Device, setup scancontrol.Setup) *profile.Process {
	r := dev.Range()
	if kind == profile.KindSingle {
		return profile.NewSingle(r.Calibration, r.World, setup.ProfileSize)
	}
	return profile.NewDepthMap(r.Calibration, r.World, cfg.GetBasePosY(), cfg.GetConveyorSpeed(),
		setup.ProfileSize, setup.NbProfiles, pointcloud.ExtractOptions{FillGapsX: cfg.GetFillGapsX()})
}

func frameRecord(ev acquisition.FrameEvent) sqlite.FrameRecord {
	return sqlite.FrameRecord{
		Mode:        ev.Kind.String(),
		BlockID:     ev.BlockID,
		Points:      ev.Summary.Points,
		ValidPoints: ev.Summary.Valid,
		MinZ:        ev.Summary.MinZ,
		MaxZ:        ev.Summary.MaxZ,
		MeanZ:       ev.Summary.MeanZ,
		StdZ:        ev.Summary.StdZ,
		CapturedNs:  ev.Timestamp.UnixNano(),
	}
}

// run verifies and configures the camera, then acquires until ctx is done
// or the source ends.
func run(ctx context.Context, cfg *config.AcquisitionConfig, opts options) error {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	kind, err := profile.ParseKind(cfg.GetMode())
	if err != nil {
		return err
	}

	d, err := newDigitizer(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	dev, err := scancontrol.Verify(d.Features())
	if err != nil {
		fmt.Fprint(opts.Out, requirementsMessage)
		return err
	}
	monitoring.Logf("Connected to %s, %s mm range", dev.Model, dev.Range().Token)

	setup, err := scancontrol.SetupCamera(d.Features(), nbProfilesFor(kind, cfg))
	if err != nil {
		return fmt.Errorf("setup camera: %w", err)
	}
	d.SetGrabTimeout(setup.GrabTimeout)
	monitoring.Logf("Profile size %d, %d profiles per frame at %.0f Hz", setup.ProfileSize, setup.NbProfiles, setup.FrameRate)

	if _, err := d.Grab(ctx); err != nil {
		fmt.Fprint(opts.Out, grabFailureMessage)
		return fmt.Errorf("test grab: %w", err)
	}

	proc := newProcess(kind, cfg, dev, setup)
	defer proc.Close()
	iface, err := acquisition.Build(d.Features(), proc)
	if err != nil {
		return err
	}
	iface.SetStatsInterval(cfg.GetStatsInterval())

	sessionID := uuid.New().String()
	monCfg := monitor.Config{
		Address:   cfg.GetListen(),
		Interface: iface,
		Device:    dev,
		Setup:     setup,
		SessionID: sessionID,
		ExportDir: opts.ExportDir,
	}
	var db *sqlite.DB
	if path := cfg.GetDBPath(); path != "" {
		if db, err = sqlite.Open(path); err != nil {
			return err
		}
		defer db.Close()
	}

	// Background services stop once acquisition returns, even when the
	// source ended on its own.
	bgCtx, stopBg := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		stopBg()
		wg.Wait()
	}()

	if db != nil {
		frames := sqlite.NewFrameStore(db.DB)
		snapshots := sqlite.NewSnapshotStore(db.DB)
		rec := sqlite.NewRecorder(sqlite.RecorderConfig{
			Frames:           frames,
			Snapshots:        snapshots,
			SessionID:        sessionID,
			SnapshotInterval: cfg.GetSnapshotInterval(),
			DepthMap:         proc.DepthMap,
		})
		iface.OnFrame(func(ev acquisition.FrameEvent) { rec.Enqueue(frameRecord(ev)) })
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Run(bgCtx)
		}()
		monCfg.DB, monCfg.Frames, monCfg.Snapshots, monCfg.Recorder = db, frames, snapshots, rec
		monitoring.Logf("Recording session %s to %s", sessionID, db.Path())
	}

	if monCfg.Address != disabled {
		srv, err := monitor.NewServer(monCfg)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(bgCtx); err != nil {
				monitoring.Logf("monitor: %v", err)
			}
		}()
	}

	return acquisition.Run(ctx, d, iface, cfg.GetNbBuffers())
}
