// Command scancontrol acquires profiles from a scanCONTROL laser scanner
// over GigE Vision, converts them to world coordinates and serves the
// live profile or depth map over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/scanprofile/internal/config"
	"github.com/banshee-data/scanprofile/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to acquisition config JSON (default "+config.DefaultConfigPath+" when present)")
	mode        = flag.String("mode", "", "Profile mode: single or multi")
	source      = flag.String("source", "", "Frame source: sim, udp or pcap")
	listen      = flag.String("listen", "", "Monitor listen address; \"-\" disables the monitor")
	dbPath      = flag.String("db", "", "SQLite database for frame summaries")
	pcapPath    = flag.String("pcap", "", "GVSP capture to replay (implies -source pcap)")
	gvspAddr    = flag.String("gvsp-addr", "", "Local address the camera streams GVSP to")
	exportDir   = flag.String("export-dir", "", "Directory point clouds may be saved to from the monitor")
	statusURL   = flag.String("status", "", "Print the status of a running service at this base URL and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Current())
		return
	}
	if *statusURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := printStatus(ctx, defaultHTTPClient, *statusURL, os.Stdout); err != nil {
			log.Fatalf("status: %v", err)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyOverrides(cfg, overrides{
		Mode:     *mode,
		Source:   *source,
		Listen:   *listen,
		DBPath:   *dbPath,
		PCAPPath: *pcapPath,
		GVSPAddr: *gvspAddr,
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, options{ExportDir: *exportDir, Out: os.Stderr}); err != nil {
		log.Printf("scancontrol: %v", err)
		os.Exit(1)
	}
}
