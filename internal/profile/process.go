package profile

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/scanprofile/internal/pointcloud"
	"github.com/banshee-data/scanprofile/internal/render"
)

// Kind selects what a Process does with converted profiles.
type Kind int

const (
	// KindSingle plots one profile per frame on a calibrated canvas.
	KindSingle Kind = iota
	// KindDepthMap accumulates many profiles per frame into a point cloud
	// and extracts a corrected depth map.
	KindDepthMap
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindDepthMap:
		return "depthmap"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a mode name to a Kind. "multi" is accepted for depth maps.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "single":
		return KindSingle, nil
	case "multi", "depthmap":
		return KindDepthMap, nil
	}
	return 0, fmt.Errorf("unknown profile mode %q", s)
}

// ErrClosed is returned by Process after Close.
var ErrClosed = errors.New("profile: process closed")

// Cloud label used for the frame being extracted.
const cloudLabel = 1

// Process consumes profile bundles coming out of the digitizer chain.
// Both kinds convert the bundle to flat world coordinates with invalid
// points set to the float32 sentinel before using it.
type Process struct {
	kind        Kind
	cal         Calibration
	rng         WorldRange
	profileSize int
	nbProfiles  int

	chain   *Chain
	surface *render.Surface
	frames  atomic.Uint64

	mu     sync.Mutex
	closed bool
	last   Summary

	// single
	extent render.Extent

	// depth map
	yTable  []float32
	cloud   *pointcloud.Container
	depth   *pointcloud.DepthMap
	extract pointcloud.ExtractOptions
}

// NewSingle builds a process that plots one profile of profileSize points
// per frame. The canvas covers rng with square pixels of
// rng.SizeX()/profileSize mm.
func NewSingle(cal Calibration, rng WorldRange, profileSize int) *Process {
	p := newProcess(KindSingle, cal, rng, profileSize, 1)
	p.extent = render.Extent{MinX: rng.MinX, MinY: rng.MinZ, MaxX: rng.MaxX, MaxY: rng.MaxZ}
	w, h := render.CanvasSize(p.extent, rng.SizeX()/float64(profileSize))
	p.surface = render.NewSurface(w, h)
	return p
}

// NewDepthMap builds a process that turns nbProfiles profiles per frame
// into a profileSize x nbProfiles depth map. Profile row r sits at
// Y = basePosY + r*conveyorSpeed.
func NewDepthMap(cal Calibration, rng WorldRange, basePosY, conveyorSpeed float64, profileSize, nbProfiles int, opts pointcloud.ExtractOptions) *Process {
	p := newProcess(KindDepthMap, cal, rng, profileSize, nbProfiles)

	p.yTable = make([]float32, profileSize*nbProfiles)
	for row := 0; row < nbProfiles; row++ {
		y := float32(basePosY + float64(row)*conveyorSpeed)
		for col := 0; col < profileSize; col++ {
			p.yTable[row*profileSize+col] = y
		}
	}

	p.cloud = pointcloud.NewContainer()
	p.depth = pointcloud.NewDepthMap(profileSize, nbProfiles, pointcloud.DepthCalibration{
		WorldPosX:      rng.MinX,
		WorldPosY:      basePosY,
		PixelSizeX:     rng.SizeX() / float64(profileSize),
		PixelSizeY:     conveyorSpeed,
		WorldPosZ:      rng.MinZ,
		GrayLevelSizeZ: rng.SizeZ() / float64(pointcloud.InvalidDepth),
	})
	p.extract = opts
	p.surface = render.NewSurface(profileSize, nbProfiles)
	return p
}

func newProcess(kind Kind, cal Calibration, rng WorldRange, profileSize, nbProfiles int) *Process {
	return &Process{
		kind:        kind,
		cal:         cal,
		rng:         rng,
		profileSize: profileSize,
		nbProfiles:  nbProfiles,
		chain: NewChain(
			NewToWorld(profileSize, nbProfiles, cal),
			NewToFlat(profileSize, nbProfiles),
			NewApplyInvalid(),
		),
	}
}

// Kind reports which variant p is.
func (p *Process) Kind() Kind { return p.kind }

// ProfileSize is the number of points per profile.
func (p *Process) ProfileSize() int { return p.profileSize }

// NbProfiles is the number of profiles expected per frame.
func (p *Process) NbProfiles() int { return p.nbProfiles }

// Range returns the world range the process was built for.
func (p *Process) Range() WorldRange { return p.rng }

// Surface returns the published display image.
func (p *Process) Surface() *render.Surface { return p.surface }

// FramesProcessed counts frames that went through Process successfully.
func (p *Process) FramesProcessed() uint64 { return p.frames.Load() }

// YTable returns the per-point Y coordinates used by depth map processes.
func (p *Process) YTable() []float32 { return p.yTable }

// Cloud returns the point cloud container of a depth map process, nil for
// single processes.
func (p *Process) Cloud() *pointcloud.Container { return p.cloud }

// Last returns the summary of the most recent frame.
func (p *Process) Last() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// DepthMap returns a copy of the latest extracted depth map, or nil for
// single processes.
func (p *Process) DepthMap() *pointcloud.DepthMap {
	if p.kind != KindDepthMap {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := *p.depth
	cp.Pix = append([]uint16(nil), p.depth.Pix...)
	return &cp
}

// Process converts b and hands the result to the variant. b must be a
// profileSize x nbProfiles bundle.
func (p *Process) Process(b Bundle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	out, err := p.chain.Convert(b)
	if err != nil {
		return err
	}
	xs, zs := out.X.(*F32).Pix, out.Z.(*F32).Pix

	switch p.kind {
	case KindSingle:
		err = p.processSingle(xs, zs)
	case KindDepthMap:
		err = p.processDepthMap(xs, zs)
	default:
		err = fmt.Errorf("profile: unknown process kind %v", p.kind)
	}
	if err != nil {
		return err
	}

	p.last = Summarize(zs)
	p.frames.Add(1)
	return nil
}

func (p *Process) processSingle(xs, zs []float32) error {
	return p.surface.Update(func(dst draw.Image) error {
		_, err := render.DrawScatter(dst, xs, zs, p.extent)
		return err
	})
}

func (p *Process) processDepthMap(xs, zs []float32) error {
	if _, err := p.cloud.Put(cloudLabel, xs, p.yTable, zs); err != nil {
		return err
	}
	pointcloud.Extract(p.cloud, p.depth, p.extract)
	return p.surface.Update(func(dst draw.Image) error {
		rgba, ok := dst.(*image.RGBA)
		if !ok {
			return fmt.Errorf("profile: unexpected surface type %T", dst)
		}
		render.Colorize(rgba, p.depth)
		return nil
	})
}

// Close releases the display surface. Later calls to Process fail with
// ErrClosed.
func (p *Process) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.surface.Close()
}
