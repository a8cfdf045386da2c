package sqlite

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/banshee-data/scanprofile/internal/monitoring"
	"github.com/banshee-data/scanprofile/internal/pointcloud"
	"github.com/banshee-data/scanprofile/internal/timeutil"
)

// RecorderConfig contains configuration for a Recorder.
type RecorderConfig struct {
	Frames    *FrameStore
	Snapshots *SnapshotStore
	SessionID string

	// QueueSize bounds the frames waiting to be written; frames enqueued
	// while it is full are dropped. Defaults to 1024.
	QueueSize int
	// FlushInterval is how often queued frames are written. Defaults to 1s.
	FlushInterval time.Duration
	// SnapshotInterval is how often DepthMap is stored; zero disables
	// snapshots.
	SnapshotInterval time.Duration
	// DepthMap returns the depth map to snapshot, or nil when there is
	// none.
	DepthMap func() *pointcloud.DepthMap

	Clock timeutil.Clock
}

// Recorder writes frame summaries in batches and stores periodic depth
// map snapshots, off the acquisition goroutine.
type Recorder struct {
	cfg     RecorderConfig
	queue   chan FrameRecord
	dropped atomic.Uint64
	written atomic.Uint64
}

// NewRecorder creates a Recorder. Call Run to start writing.
func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Recorder{cfg: cfg, queue: make(chan FrameRecord, cfg.QueueSize)}
}

// Enqueue queues rec without blocking. It reports false when the queue is
// full and rec was dropped.
func (r *Recorder) Enqueue(rec FrameRecord) bool {
	if rec.SessionID == "" {
		rec.SessionID = r.cfg.SessionID
	}
	select {
	case r.queue <- rec:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Dropped counts frames lost to a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written counts frames stored so far.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Run writes until ctx is done, then drains the queue and takes a final
// snapshot.
func (r *Recorder) Run(ctx context.Context) {
	flush := r.cfg.Clock.NewTicker(r.cfg.FlushInterval)
	defer flush.Stop()

	var snapC <-chan time.Time
	if r.cfg.SnapshotInterval > 0 && r.cfg.Snapshots != nil && r.cfg.DepthMap != nil {
		snap := r.cfg.Clock.NewTicker(r.cfg.SnapshotInterval)
		defer snap.Stop()
		snapC = snap.C()
	}

	monitoring.Logf("Recorder started: session=%s flush=%v snapshot=%v",
		r.cfg.SessionID, r.cfg.FlushInterval, r.cfg.SnapshotInterval)

	var batch []*FrameRecord
	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case rec := <-r.queue:
					batch = append(batch, &rec)
				default:
					break drain
				}
			}
			r.writeBatch(batch)
			if snapC != nil {
				r.snapshot()
			}
			monitoring.Logf("Recorder stopped: %d frames written, %d dropped", r.Written(), r.Dropped())
			return
		case rec := <-r.queue:
			batch = append(batch, &rec)
			if len(batch) >= r.cfg.QueueSize {
				r.writeBatch(batch)
				batch = nil
			}
		case <-flush.C():
			r.writeBatch(batch)
			batch = nil
		case <-snapC:
			r.snapshot()
		}
	}
}

func (r *Recorder) writeBatch(batch []*FrameRecord) {
	if len(batch) == 0 || r.cfg.Frames == nil {
		return
	}
	if err := r.cfg.Frames.InsertBatch(batch); err != nil {
		monitoring.Logf("Recorder: error writing %d frames: %v", len(batch), err)
		return
	}
	r.written.Add(uint64(len(batch)))
}

func (r *Recorder) snapshot() {
	dm := r.cfg.DepthMap()
	if dm == nil || dm.ValidCount() == 0 {
		return
	}
	snap := &Snapshot{SessionID: r.cfg.SessionID, CapturedNs: r.cfg.Clock.Now().UnixNano(), DepthMap: dm}
	if err := r.cfg.Snapshots.Insert(snap); err != nil {
		monitoring.Logf("Recorder: error storing snapshot: %v", err)
	}
}
