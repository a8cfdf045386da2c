package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanprofile/internal/acquisition"
	"github.com/banshee-data/scanprofile/internal/gige"
	"github.com/banshee-data/scanprofile/internal/monitoring"
	"github.com/banshee-data/scanprofile/internal/pointcloud"
	"github.com/banshee-data/scanprofile/internal/profile"
	"github.com/banshee-data/scanprofile/internal/scancontrol"
	"github.com/banshee-data/scanprofile/internal/storage/sqlite"
)

const testSession = "session-1"

type fixture struct {
	srv   *Server
	iface *acquisition.Interface
	db    *sqlite.DB
}

type options struct {
	depth     bool
	db        bool
	exportDir string
}

// newFixture runs one simulated frame through a verified, configured
// pipeline and serves it.
func newFixture(t *testing.T, o options) *fixture {
	t.Helper()
	t.Cleanup(monitoring.Quiet())

	r := scancontrol.Ranges[1]
	sim := gige.NewSimDigitizer(gige.SimConfig{
		Vendor:        scancontrol.Vendor,
		Model:         "scanCONTROL 2950-50",
		Calibration:   r.Calibration,
		Range:         r.World,
		FrameRate:     1e6,
		ConveyorSpeed: scancontrol.ConveyorSpeed,
	})
	dev, err := scancontrol.Verify(sim.Features())
	require.NoError(t, err)
	nb := 1
	if o.depth {
		nb = 10
	}
	setup, err := scancontrol.SetupCamera(sim.Features(), nb)
	require.NoError(t, err)

	rng := dev.Range()
	var proc *profile.Process
	if o.depth {
		proc = profile.NewDepthMap(rng.Calibration, rng.World, 0, scancontrol.ConveyorSpeed,
			setup.ProfileSize, setup.NbProfiles, pointcloud.ExtractOptions{})
	} else {
		proc = profile.NewSingle(rng.Calibration, rng.World, setup.ProfileSize)
	}
	iface, err := acquisition.Build(sim.Features(), proc)
	require.NoError(t, err)

	ctx := context.Background()
	frame, err := sim.Grab(ctx)
	require.NoError(t, err)
	require.NoError(t, iface.Hook(ctx, frame))

	cfg := Config{
		Address:   "127.0.0.1:0",
		Interface: iface,
		Device:    dev,
		Setup:     setup,
		SessionID: testSession,
		ExportDir: o.exportDir,
	}
	fx := &fixture{iface: iface}
	if o.db {
		db, err := sqlite.Open(filepath.Join(t.TempDir(), "scan.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		cfg.DB = db
		cfg.Frames = sqlite.NewFrameStore(db.DB)
		cfg.Snapshots = sqlite.NewSnapshotStore(db.DB)
		fx.db = db
	}
	fx.srv, err = NewServer(cfg)
	require.NoError(t, err)
	return fx
}

func (fx *fixture) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	fx.srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestNewServerRequiresInterface(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	fx := newFixture(t, options{})
	rec := fx.do(http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestIndex(t *testing.T) {
	fx := newFixture(t, options{})

	rec := fx.do(http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "scanCONTROL 2950-50")
	assert.Contains(t, body, "add-mask")

	assert.Equal(t, http.StatusNotFound, fx.do(http.MethodGet, "/nope").Code)
}

func TestStatus(t *testing.T) {
	fx := newFixture(t, options{depth: true})

	rec := fx.do(http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var st StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, testSession, st.SessionID)
	assert.Equal(t, "scanCONTROL 2950-50", st.Device.Model)
	assert.Equal(t, "50", st.Range)
	assert.Equal(t, 10, st.Setup.NbProfiles)
	assert.Equal(t, "idle", st.Acquisition.State)
	assert.EqualValues(t, 1, st.Acquisition.Frames)
	assert.Equal(t, 10*st.Setup.ProfileSize, st.Acquisition.Last.Points)
	assert.Nil(t, st.Storage)
	assert.Equal(t, "dev", st.Version.Version)

	require.NotNil(t, st.Cloud)
	assert.Equal(t, fx.iface.Process().Cloud().Size(), st.Cloud.Points)
	assert.Positive(t, st.Cloud.Points)
	assert.LessOrEqual(t, st.Cloud.Min.Z, st.Cloud.Max.Z)
	assert.LessOrEqual(t, st.Cloud.Min.X, st.Cloud.Max.X)
	assert.Nil(t, st.Acquisition.Stream, "simulated source has no GVSP stream")

	assert.Equal(t, http.StatusMethodNotAllowed, fx.do(http.MethodPost, "/api/status").Code)
}

func TestStatusSingleModeHasNoCloud(t *testing.T) {
	fx := newFixture(t, options{})
	var st StatusResponse
	require.NoError(t, json.Unmarshal(fx.do(http.MethodGet, "/api/status").Body.Bytes(), &st))
	assert.Equal(t, "single", st.Acquisition.Mode)
	assert.Nil(t, st.Cloud)
}

func TestFramesWithoutStorage(t *testing.T) {
	fx := newFixture(t, options{})
	rec := fx.do(http.MethodGet, "/api/frames")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFrames(t *testing.T) {
	fx := newFixture(t, options{db: true})
	store := sqlite.NewFrameStore(fx.db.DB)
	for i := 1; i <= 3; i++ {
		require.NoError(t, store.Insert(&sqlite.FrameRecord{
			SessionID: testSession, Mode: "single", BlockID: uint64(i), CapturedNs: int64(i),
		}))
	}
	require.NoError(t, store.Insert(&sqlite.FrameRecord{SessionID: "other", Mode: "single", CapturedNs: 9}))

	var body struct {
		Total  int                   `json:"total"`
		Frames []sqlite.FrameRecord `json:"frames"`
	}
	rec := fx.do(http.MethodGet, "/api/frames?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Total)
	require.Len(t, body.Frames, 2)
	assert.EqualValues(t, 3, body.Frames[0].BlockID)

	rec = fx.do(http.MethodGet, "/api/frames?session=all")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Total)

	rec = fx.do(http.MethodGet, "/api/frames?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorOf(t, rec), "limit")
}

func TestFramesEmptyList(t *testing.T) {
	fx := newFixture(t, options{db: true})
	rec := fx.do(http.MethodGet, "/api/frames")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"frames":[]`)
}

func TestStatusReportsStorage(t *testing.T) {
	fx := newFixture(t, options{db: true})
	var st StatusResponse
	require.NoError(t, json.Unmarshal(fx.do(http.MethodGet, "/api/status").Body.Bytes(), &st))
	require.NotNil(t, st.Storage)
	assert.Equal(t, fx.db.Path(), st.Storage.Path)
}

func decodePNG(t *testing.T, rec *httptest.ResponseRecorder) image.Image {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	return img
}

func TestProfilePNG(t *testing.T) {
	fx := newFixture(t, options{})
	img := decodePNG(t, fx.do(http.MethodGet, "/profile.png"))
	b := img.Bounds()
	assert.Equal(t, fx.iface.Process().Surface().Bounds(), b)

	// The published profile is painted, not the zero image.
	_, _, _, alpha := img.At(b.Min.X, b.Min.Y).RGBA()
	assert.NotZero(t, alpha)
}

func TestProfilePNGAfterClose(t *testing.T) {
	fx := newFixture(t, options{})
	fx.iface.Process().Close()
	decodePNG(t, fx.do(http.MethodGet, "/profile.png"))
}

func TestDepthMapPNG(t *testing.T) {
	fx := newFixture(t, options{depth: true})
	dm := fx.iface.Process().DepthMap()

	img := decodePNG(t, fx.do(http.MethodGet, "/depthmap.png"))
	assert.Equal(t, image.Rect(0, 0, dm.W, dm.H), img.Bounds())

	gray := decodePNG(t, fx.do(http.MethodGet, "/depthmap.png?format=gray16"))
	_, ok := gray.(*image.Gray16)
	assert.True(t, ok, "got %T", gray)

	assert.Equal(t, http.StatusBadRequest, fx.do(http.MethodGet, "/depthmap.png?format=tiff").Code)
}

func TestDepthMapSingleMode(t *testing.T) {
	fx := newFixture(t, options{})
	for _, path := range []string{"/depthmap.png", "/depthmap/chart"} {
		assert.Equal(t, http.StatusNotFound, fx.do(http.MethodGet, path).Code, path)
	}
}

func TestDepthMapSnapshot(t *testing.T) {
	fx := newFixture(t, options{db: true})

	assert.Equal(t, http.StatusNotFound, fx.do(http.MethodGet, "/depthmap.png?snapshot=latest").Code)

	dm := pointcloud.NewDepthMap(8, 4, pointcloud.DepthCalibration{PixelSizeX: 1, PixelSizeY: 1, GrayLevelSizeZ: 1})
	dm.Set(2, 1, 1000)
	require.NoError(t, sqlite.NewSnapshotStore(fx.db.DB).Insert(&sqlite.Snapshot{SessionID: testSession, DepthMap: dm}))

	img := decodePNG(t, fx.do(http.MethodGet, "/depthmap.png?snapshot=latest"))
	assert.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())
}

func TestDepthMapSnapshotWithoutStorage(t *testing.T) {
	fx := newFixture(t, options{depth: true})
	assert.Equal(t, http.StatusServiceUnavailable, fx.do(http.MethodGet, "/depthmap/chart?snapshot=latest").Code)
}

func TestDepthChart(t *testing.T) {
	fx := newFixture(t, options{depth: true})
	rec := fx.do(http.MethodGet, "/depthmap/chart")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "echarts")
}

func TestPointCloudDownloads(t *testing.T) {
	fx := newFixture(t, options{depth: true})

	rec := fx.do(http.MethodGet, "/pointcloud.pcd")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="pointcloud.pcd"`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "VERSION 0.7")

	rec = fx.do(http.MethodGet, "/pointcloud.asc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="pointcloud.asc"`, rec.Header().Get("Content-Disposition"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Equal(t, "# Format: X Y Z Label", lines[1])
	assert.Equal(t, fx.iface.Process().Cloud().Size()+2, len(lines))
}

func TestPointCloudEmptyInSingleMode(t *testing.T) {
	fx := newFixture(t, options{exportDir: t.TempDir()})
	for _, path := range []string{"/pointcloud.pcd", "/pointcloud.asc"} {
		rec := fx.do(http.MethodGet, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "single-profile", path)
	}
	assert.Equal(t, http.StatusNotFound, fx.do(http.MethodPost, "/api/pointcloud/save").Code)
}

func TestSavePointCloud(t *testing.T) {
	dir := t.TempDir()
	fx := newFixture(t, options{depth: true, exportDir: dir})

	assert.Equal(t, http.StatusMethodNotAllowed, fx.do(http.MethodGet, "/api/pointcloud/save").Code)
	assert.Equal(t, http.StatusBadRequest, fx.do(http.MethodPost, "/api/pointcloud/save?format=ply").Code)

	rec := fx.do(http.MethodPost, "/api/pointcloud/save?name=../belt%20run&format=asc")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	want := filepath.Join(dir, "belt_run.asc")
	var body struct {
		Path  string `json:"path"`
		Bytes int    `json:"bytes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, want, body.Path)

	info, err := os.Stat(want)
	require.NoError(t, err)
	assert.EqualValues(t, body.Bytes, info.Size())
}

func TestSavePointCloudDisabled(t *testing.T) {
	fx := newFixture(t, options{depth: true})
	assert.Equal(t, http.StatusServiceUnavailable, fx.do(http.MethodPost, "/api/pointcloud/save").Code)
}

func TestAdminRoutesMounted(t *testing.T) {
	fx := newFixture(t, options{db: true})
	assert.NotEqual(t, http.StatusNotFound, fx.do(http.MethodGet, "/debug/").Code)
}

func TestStartStops(t *testing.T) {
	fx := newFixture(t, options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.srv.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestStartListenError(t *testing.T) {
	fx := newFixture(t, options{})
	fx.srv.server.Addr = "127.0.0.1:-1"
	fx.srv.cfg.Address = fx.srv.server.Addr
	err := fx.srv.Start(context.Background())
	assert.Error(t, err)
}
