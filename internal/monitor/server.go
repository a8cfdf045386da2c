// Package monitor serves the live profile display, acquisition status and
// point-cloud downloads over HTTP.
package monitor

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/banshee-data/scanprofile/internal/acquisition"
	"github.com/banshee-data/scanprofile/internal/monitoring"
	"github.com/banshee-data/scanprofile/internal/scancontrol"
	"github.com/banshee-data/scanprofile/internal/storage/sqlite"
)

//go:embed status.html
var statusHTML string

var statusTemplate = template.Must(template.New("status").Parse(statusHTML))

// DefaultChartCells bounds the number of heatmap cells sent to the browser.
const DefaultChartCells = 40000

// Config wires a Server to a running acquisition. Storage fields are
// optional; the routes backed by them answer 503 when nil.
type Config struct {
	Address   string
	Interface *acquisition.Interface
	Device    scancontrol.Device
	Setup     scancontrol.Setup
	SessionID string

	DB        *sqlite.DB
	Frames    *sqlite.FrameStore
	Snapshots *sqlite.SnapshotStore
	Recorder  *sqlite.Recorder

	// ExportDir enables POST /api/pointcloud/save when set.
	ExportDir  string
	ChartCells int
}

// Server is the monitoring HTTP server.
type Server struct {
	cfg     Config
	started time.Time
	server  *http.Server
}

// NewServer builds the route table. It fails only when the database admin
// routes cannot be mounted.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Interface == nil {
		return nil, errors.New("monitor: nil acquisition interface")
	}
	if cfg.ChartCells <= 0 {
		cfg.ChartCells = DefaultChartCells
	}
	s := &Server{cfg: cfg, started: time.Now()}
	mux, err := s.setupRoutes()
	if err != nil {
		return nil, err
	}
	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start serves until ctx is cancelled, then shuts down with a short grace
// period. A listen failure is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("Starting HTTP server on %s", s.cfg.Address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("monitor: listen %s: %w", s.cfg.Address, err)
		}
		return nil
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	monitoring.Logf("HTTP server routine stopped")
	return nil
}

func (s *Server) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/frames", s.handleFrames)
	mux.HandleFunc("/profile.png", s.handleProfilePNG)
	mux.HandleFunc("/depthmap.png", s.handleDepthMapPNG)
	mux.HandleFunc("/depthmap/chart", s.handleDepthChart)
	mux.HandleFunc("/pointcloud.pcd", s.handlePointCloud)
	mux.HandleFunc("/pointcloud.asc", s.handlePointCloud)
	mux.HandleFunc("/api/pointcloud/save", s.handleSavePointCloud)

	if s.cfg.DB != nil {
		if err := s.cfg.DB.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}
