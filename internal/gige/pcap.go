package gige

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/banshee-data/scanprofile/internal/monitoring"
	"github.com/banshee-data/scanprofile/internal/timeutil"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PCAPConfig configures a PCAPDigitizer.
type PCAPConfig struct {
	Path string
	// Port keeps only UDP packets sent to this port; 0 keeps all.
	Port int
	// PacketSize is the GevSCPSPacketSize used during the capture.
	PacketSize int
	// Realtime replays at the capture's packet timing.
	Realtime bool
	// Loop rewinds at the end of the capture instead of stopping.
	Loop     bool
	Features Features
	Clock    timeutil.Clock
}

// PCAPDigitizer replays a GVSP stream from a capture file.
type PCAPDigitizer struct {
	grabber
	cfg PCAPConfig

	mu      sync.Mutex
	file    *os.File
	reader  *pcapgo.Reader
	asm     *FrameAssembler
	closed  bool
	packets int

	firstCapture time.Time
	firstReplay  time.Time
}

// NewPCAPDigitizer opens the capture file.
func NewPCAPDigitizer(cfg PCAPConfig) (*PCAPDigitizer, error) {
	if cfg.Features == nil {
		cfg.Features = NewFeatureMap()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	d := &PCAPDigitizer{cfg: cfg, asm: NewFrameAssembler(PayloadSizeForPacket(cfg.PacketSize))}
	if err := d.open(); err != nil {
		return nil, err
	}
	d.next = d.nextFrame
	return d, nil
}

func (d *PCAPDigitizer) open() error {
	f, err := os.Open(d.cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", d.cfg.Path, err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to read PCAP header of %s: %w", d.cfg.Path, err)
	}
	if d.file != nil {
		d.file.Close()
	}
	d.file, d.reader = f, r
	d.firstCapture = time.Time{}
	return nil
}

func (d *PCAPDigitizer) Features() Features { return d.cfg.Features }

// AssemblerStats returns the stream reassembly counters.
func (d *PCAPDigitizer) AssemblerStats() AssemblerStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.asm.Stats()
}

func (d *PCAPDigitizer) nextFrame(ctx context.Context, dst *Frame) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, ts, err := d.nextPayload()
		if errors.Is(err, io.EOF) && d.cfg.Loop {
			monitoring.Logf("PCAP replay of %s complete (%d packets), rewinding", d.cfg.Path, d.packets)
			d.mu.Lock()
			err = d.open()
			d.mu.Unlock()
			if err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if d.cfg.Realtime {
			if err := d.pace(ctx, ts); err != nil {
				return err
			}
		}

		pkt, err := DecodeGVSP(payload)
		if err != nil {
			continue
		}
		d.mu.Lock()
		done, err := d.asm.Add(pkt, ts, dst)
		d.mu.Unlock()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// nextPayload returns the UDP payload of the next matching packet.
func (d *PCAPDigitizer) nextPayload() ([]byte, time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, time.Time{}, io.EOF
	}
	for {
		data, ci, err := d.reader.ReadPacketData()
		if err != nil {
			return nil, time.Time{}, err
		}
		d.packets++
		packet := gopacket.NewPacket(data, d.reader.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if d.cfg.Port != 0 && int(udp.DstPort) != d.cfg.Port {
			continue
		}
		return udp.Payload, ci.Timestamp, nil
	}
}

// pace waits until the packet's offset into the capture has elapsed on the
// replay clock.
func (d *PCAPDigitizer) pace(ctx context.Context, ts time.Time) error {
	if d.firstCapture.IsZero() {
		d.firstCapture, d.firstReplay = ts, d.cfg.Clock.Now()
		return nil
	}
	wait := ts.Sub(d.firstCapture) - d.cfg.Clock.Since(d.firstReplay)
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.cfg.Clock.After(wait):
		return nil
	}
}

// Close releases the capture file.
func (d *PCAPDigitizer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

// WritePCAP writes GVSP packets as an Ethernet capture of UDP datagrams from
// srcPort to dstPort, one packet every interval starting at start.
func WritePCAP(w io.Writer, packets [][]byte, srcPort, dstPort layers.UDPPort, start time.Time, interval time.Duration) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return err
	}
	eth := &layers.Ethernet{
		SrcMAC:       []byte{0x00, 0x0c, 0x29, 0x00, 0x00, 0x01},
		DstMAC:       []byte{0x00, 0x0c, 0x29, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    []byte{192, 168, 0, 42},
		DstIP:    []byte{192, 168, 0, 1},
	}
	udp := &layers.UDP{SrcPort: srcPort, DstPort: dstPort}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	for i, p := range packets {
		buf := gopacket.NewSerializeBuffer()
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(p)); err != nil {
			return err
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * interval),
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		if err := pw.WritePacket(ci, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
