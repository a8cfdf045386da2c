package monitor

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/scanprofile/internal/acquisition"
	"github.com/banshee-data/scanprofile/internal/httputil"
	"github.com/banshee-data/scanprofile/internal/monitoring"
	"github.com/banshee-data/scanprofile/internal/pointcloud"
	"github.com/banshee-data/scanprofile/internal/render"
	"github.com/banshee-data/scanprofile/internal/scancontrol"
	"github.com/banshee-data/scanprofile/internal/security"
	"github.com/banshee-data/scanprofile/internal/storage/sqlite"
	"github.com/banshee-data/scanprofile/internal/version"
)

const (
	defaultFrameLimit = 100
	maxFrameLimit     = 5000
)

// StatusResponse is the body of /api/status.
type StatusResponse struct {
	Version     version.Info       `json:"version"`
	SessionID   string             `json:"session_id"`
	Uptime      string             `json:"uptime"`
	Device      scancontrol.Device `json:"device"`
	Range       string             `json:"range"`
	Setup       scancontrol.Setup  `json:"setup"`
	Acquisition acquisition.Status `json:"acquisition"`
	Storage     *StorageStatus     `json:"storage,omitempty"`
	Cloud       *CloudStatus       `json:"cloud,omitempty"`
}

// CloudStatus describes the live point cloud in depth-map mode.
type CloudStatus struct {
	Points int       `json:"points"`
	Min    r3.Vector `json:"min"`
	Max    r3.Vector `json:"max"`
}

// StorageStatus reports the recorder queue when persistence is enabled.
type StorageStatus struct {
	Path    string `json:"path"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) status() StatusResponse {
	st := StatusResponse{
		Version:     version.Current(),
		SessionID:   s.cfg.SessionID,
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Device:      s.cfg.Device,
		Setup:       s.cfg.Setup,
		Acquisition: s.cfg.Interface.Status(),
	}
	if s.cfg.Device.Model != "" {
		st.Range = s.cfg.Device.Range().Token
	}
	if s.cfg.DB != nil {
		st.Storage = &StorageStatus{Path: s.cfg.DB.Path()}
		if s.cfg.Recorder != nil {
			st.Storage.Written = s.cfg.Recorder.Written()
			st.Storage.Dropped = s.cfg.Recorder.Dropped()
		}
	}
	if cloud := s.cfg.Interface.Process().Cloud(); cloud != nil {
		st.Cloud = &CloudStatus{Points: cloud.Size()}
		if lo, hi, ok := cloud.Bounds(); ok {
			st.Cloud.Min, st.Cloud.Max = lo, hi
		}
	}
	return st
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "not found")
		return
	}
	var buf bytes.Buffer
	if err := statusTemplate.Execute(&buf, s.status()); err != nil {
		httputil.InternalServerError(w, "failed to render status page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.status())
}

// handleFrames lists stored frame summaries, newest first. Query params:
// limit (default 100) and session ("all" for every session).
func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.Frames == nil {
		httputil.Unavailable(w, "frame storage is not enabled")
		return
	}
	limit := defaultFrameLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxFrameLimit)
	}
	session := s.cfg.SessionID
	switch q := r.URL.Query().Get("session"); q {
	case "":
	case "all":
		session = ""
	default:
		session = q
	}

	frames, err := s.cfg.Frames.List(session, limit)
	if err != nil {
		monitoring.Logf("monitor: list frames: %v", err)
		httputil.InternalServerError(w, "failed to list frames")
		return
	}
	total, err := s.cfg.Frames.Count(session)
	if err != nil {
		monitoring.Logf("monitor: count frames: %v", err)
		httputil.InternalServerError(w, "failed to count frames")
		return
	}
	if frames == nil {
		frames = []*sqlite.FrameRecord{}
	}
	httputil.WriteJSONOK(w, map[string]any{
		"session_id": session,
		"total":      total,
		"frames":     frames,
	})
}

// handleProfilePNG serves the live display surface: the scatter canvas in
// single mode, the colorized depth map otherwise. A closed surface keeps
// serving its last frame.
func (s *Server) handleProfilePNG(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.cfg.Interface.Process().Surface().EncodePNG(&buf); err != nil {
		httputil.InternalServerError(w, "failed to encode profile")
		return
	}
	writePNG(w, buf.Bytes())
}

// depthMap returns the live depth map or, with ?snapshot=latest, the most
// recent stored one.
func (s *Server) depthMap(w http.ResponseWriter, r *http.Request) (*pointcloud.DepthMap, bool) {
	if r.URL.Query().Get("snapshot") == "latest" {
		if s.cfg.Snapshots == nil {
			httputil.Unavailable(w, "snapshot storage is not enabled")
			return nil, false
		}
		snap, err := s.cfg.Snapshots.Latest(s.cfg.SessionID)
		if errors.Is(err, sqlite.ErrNoSnapshot) {
			httputil.NotFound(w, "no stored depth map")
			return nil, false
		}
		if err != nil {
			monitoring.Logf("monitor: latest snapshot: %v", err)
			httputil.InternalServerError(w, "failed to load snapshot")
			return nil, false
		}
		return snap.DepthMap, true
	}
	dm := s.cfg.Interface.Process().DepthMap()
	if dm == nil {
		httputil.NotFound(w, "no depth map in single profile mode")
		return nil, false
	}
	return dm, true
}

// handleDepthMapPNG serves the depth map through the jet palette, or as
// 16-bit grayscale with ?format=gray16.
func (s *Server) handleDepthMapPNG(w http.ResponseWriter, r *http.Request) {
	dm, ok := s.depthMap(w, r)
	if !ok {
		return
	}
	var img image.Image
	switch r.URL.Query().Get("format") {
	case "", "jet":
		rgba := image.NewRGBA(image.Rect(0, 0, dm.W, dm.H))
		render.Colorize(rgba, dm)
		img = rgba
	case "gray16":
		img = dm.Gray16()
	default:
		httputil.BadRequest(w, "format must be jet or gray16")
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		httputil.InternalServerError(w, "failed to encode depth map")
		return
	}
	writePNG(w, buf.Bytes())
}

func (s *Server) handleDepthChart(w http.ResponseWriter, r *http.Request) {
	dm, ok := s.depthMap(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := render.DepthHeatmapHTML(&buf, dm, s.cfg.ChartCells); err != nil {
		httputil.InternalServerError(w, "failed to render chart: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func writePNG(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(b)
}

type cloudFormat struct {
	ext         string
	contentType string
	write       func(io.Writer, *pointcloud.Container) error
}

var cloudFormats = map[string]cloudFormat{
	".pcd": {".pcd", "text/plain; charset=utf-8", pointcloud.WritePCD},
	".asc": {".asc", "text/plain; charset=utf-8", pointcloud.WriteASC},
}

// encodeCloud renders the live cloud in the given format. ok is false
// when the response has already been written.
func (s *Server) encodeCloud(w http.ResponseWriter, f cloudFormat) ([]byte, bool) {
	cloud := s.cfg.Interface.Process().Cloud()
	if cloud == nil {
		httputil.NotFound(w, "no point cloud in single-profile mode")
		return nil, false
	}
	if cloud.Size() == 0 {
		httputil.NotFound(w, "point cloud is empty")
		return nil, false
	}
	var buf bytes.Buffer
	if err := f.write(&buf, cloud); err != nil {
		httputil.InternalServerError(w, "failed to encode point cloud")
		return nil, false
	}
	return buf.Bytes(), true
}

func (s *Server) handlePointCloud(w http.ResponseWriter, r *http.Request) {
	f := cloudFormats[r.URL.Path[strings.LastIndex(r.URL.Path, "."):]]
	b, ok := s.encodeCloud(w, f)
	if !ok {
		return
	}
	httputil.Attachment(w, f.contentType, "pointcloud"+f.ext)
	w.Write(b)
}

// handleSavePointCloud writes the live cloud into the export directory.
// Query params: name (sanitized) and format (pcd or asc, default pcd).
func (s *Server) handleSavePointCloud(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.ExportDir == "" {
		httputil.Unavailable(w, "point cloud export is not enabled")
		return
	}
	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = "pcd"
	}
	f, ok := cloudFormats["."+format]
	if !ok {
		httputil.BadRequest(w, "format must be pcd or asc")
		return
	}
	name := q.Get("name")
	if name == "" {
		name = "cloud-" + time.Now().UTC().Format("20060102-150405")
	}
	path, err := security.ExportPath(s.cfg.ExportDir, name, f.ext)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	b, ok := s.encodeCloud(w, f)
	if !ok {
		return
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		monitoring.Logf("monitor: save point cloud: %v", err)
		httputil.InternalServerError(w, "failed to write point cloud")
		return
	}
	monitoring.Logf("Saved point cloud to %s", path)
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"path":  path,
		"bytes": len(b),
	})
}
