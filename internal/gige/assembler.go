package gige

import (
	"fmt"
	"time"

	"github.com/banshee-data/scanprofile/internal/monitoring"
)

// MaxFrameBytes bounds the image a leader may announce. The largest
// scanCONTROL container (2048 points, two bands, 4096 profiles) fits well
// inside it.
const MaxFrameBytes = 64 << 20

// AssemblerStats counts stream events seen by a FrameAssembler.
type AssemblerStats struct {
	Packets        uint64 `json:"packets"`
	Completed      uint64 `json:"completed"`
	Incomplete     uint64 `json:"incomplete"`
	MissingPackets uint64 `json:"missing_packets"`
	Unexpected     uint64 `json:"unexpected"`
	LostBlocks     uint64 `json:"lost_blocks"`
}

// FrameAssembler rebuilds Mono16 images from GVSP leader, payload and
// trailer packets. One block is assembled at a time; a leader for a new
// block abandons the one in progress.
type FrameAssembler struct {
	payloadSize int

	active   bool
	blockID  uint16
	leader   ImageLeader
	data     []byte
	received []bool // indexed by packet ID - 1
	expected int
	arrived  time.Time

	haveLast  bool
	lastBlock uint16

	stats AssemblerStats
}

// NewFrameAssembler returns an assembler for streams carrying payloadSize
// image bytes per payload packet.
func NewFrameAssembler(payloadSize int) *FrameAssembler {
	return &FrameAssembler{payloadSize: payloadSize}
}

// Stats returns a copy of the counters.
func (a *FrameAssembler) Stats() AssemblerStats { return a.stats }

// Add consumes one packet received by the host at the given time. When p
// completes a block without gaps, the image is written to dst and Add
// returns true. Blocks with missing packets are dropped and counted.
func (a *FrameAssembler) Add(p *GVSP, at time.Time, dst *Frame) (bool, error) {
	a.stats.Packets++
	switch p.Format {
	case FormatLeader:
		return false, a.start(p, at)
	case FormatPayload:
		a.payload(p)
		return false, nil
	case FormatTrailer:
		return a.finish(p, dst), nil
	}
	a.stats.Unexpected++
	return false, nil
}

func (a *FrameAssembler) start(p *GVSP, at time.Time) error {
	if a.active {
		a.abandon("superseded by block %d", p.BlockID)
	}
	l := p.Leader
	if l.PixelFormat != PixelMono16 {
		return fmt.Errorf("gvsp: block %d: unsupported pixel format %#08x", p.BlockID, l.PixelFormat)
	}
	if a.payloadSize <= 0 {
		return fmt.Errorf("gvsp: payload size not configured")
	}

	n, ok := frameBytes(l.SizeX, l.SizeY)
	if !ok {
		a.stats.Unexpected++
		monitoring.Logf("gvsp: ignoring block %d: leader announces %dx%d image", p.BlockID, l.SizeX, l.SizeY)
		return nil
	}

	if a.haveLast {
		if gap := blockGap(a.lastBlock, p.BlockID); gap > 0 {
			a.stats.LostBlocks += uint64(gap)
		}
	}
	a.haveLast, a.lastBlock = true, p.BlockID

	if cap(a.data) < n {
		a.data = make([]byte, n)
	}
	a.data = a.data[:n]
	a.expected = (n + a.payloadSize - 1) / a.payloadSize
	if cap(a.received) < a.expected {
		a.received = make([]bool, a.expected)
	}
	a.received = a.received[:a.expected]
	for i := range a.received {
		a.received[i] = false
	}
	a.active, a.blockID, a.leader, a.arrived = true, p.BlockID, l, at
	return nil
}

// frameBytes returns the Mono16 size of a w x h image, or false when the
// geometry is empty or larger than MaxFrameBytes.
func frameBytes(w, h uint32) (int, bool) {
	if w == 0 || h == 0 {
		return 0, false
	}
	n := uint64(w) * uint64(h) * 2
	if n > MaxFrameBytes {
		return 0, false
	}
	return int(n), true
}

func (a *FrameAssembler) payload(p *GVSP) {
	if !a.active || p.BlockID != a.blockID {
		a.stats.Unexpected++
		return
	}
	id := int(p.PacketID)
	if id < 1 || id > a.expected {
		a.stats.Unexpected++
		return
	}
	off := (id - 1) * a.payloadSize
	copy(a.data[off:], p.Payload)
	a.received[id-1] = true
}

func (a *FrameAssembler) finish(p *GVSP, dst *Frame) bool {
	if !a.active || p.BlockID != a.blockID {
		a.stats.Unexpected++
		return false
	}
	if missing := a.missing(); missing > 0 {
		a.abandon("%d of %d packets missing", missing, a.expected)
		return false
	}
	a.active = false
	a.stats.Completed++

	dst.ensure(int(a.leader.SizeX), int(a.leader.SizeY))
	dst.SetLittleEndian(a.data)
	dst.BlockID = uint64(a.blockID)
	dst.Timestamp = a.arrived
	dst.DeviceTicks = a.leader.Timestamp
	dst.MissingPackets = 0
	return true
}

func (a *FrameAssembler) missing() int {
	n := 0
	for _, ok := range a.received {
		if !ok {
			n++
		}
	}
	return n
}

func (a *FrameAssembler) abandon(format string, args ...any) {
	missing := a.missing()
	a.stats.Incomplete++
	a.stats.MissingPackets += uint64(missing)
	a.active = false
	monitoring.Logf("gvsp: dropping block %d: "+format, append([]any{a.blockID}, args...)...)
}

// blockGap returns how many block IDs were skipped between last and next.
// Block ID 0 is reserved, so IDs wrap from 65535 to 1.
func blockGap(last, next uint16) int {
	want := last + 1
	if want == 0 {
		want = 1
	}
	if next == want {
		return 0
	}
	gap := int(next) - int(want)
	if gap < 0 {
		gap += 65535
	}
	return gap
}
