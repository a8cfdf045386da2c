package gige

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/scanprofile/internal/monitoring"
)

// UDPSocket is the subset of *net.UDPConn the stream receiver uses.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// UDPSocketFactory opens UDP sockets.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// NetSocketFactory opens real sockets with net.ListenUDP.
type NetSocketFactory struct{}

func (NetSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// UDPConfig configures a UDPDigitizer.
type UDPConfig struct {
	// Address is the local host:port the camera streams GVSP to.
	Address string
	// RcvBuf is the socket receive buffer size in bytes.
	RcvBuf int
	// PacketSize is the GevSCPSPacketSize the camera was configured with.
	PacketSize int
	// Features describes the camera. The stream channel carries no
	// feature access, so they come from a feature file.
	Features Features
	// Sockets defaults to NetSocketFactory.
	Sockets UDPSocketFactory
}

// UDPDigitizer receives a live GVSP stream.
type UDPDigitizer struct {
	grabber
	cfg UDPConfig
	asm *FrameAssembler

	mu     sync.Mutex
	sock   UDPSocket
	closed bool
	buf    []byte
}

// NewUDPDigitizer returns a digitizer that listens lazily on first use.
func NewUDPDigitizer(cfg UDPConfig) *UDPDigitizer {
	if cfg.Sockets == nil {
		cfg.Sockets = NetSocketFactory{}
	}
	if cfg.Features == nil {
		cfg.Features = NewFeatureMap()
	}
	d := &UDPDigitizer{
		cfg: cfg,
		asm: NewFrameAssembler(PayloadSizeForPacket(cfg.PacketSize)),
		buf: make([]byte, 9000),
	}
	d.next = d.nextFrame
	return d
}

func (d *UDPDigitizer) Features() Features { return d.cfg.Features }

// AssemblerStats returns the stream reassembly counters.
func (d *UDPDigitizer) AssemblerStats() AssemblerStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.asm.Stats()
}

func (d *UDPDigitizer) socket() (UDPSocket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, net.ErrClosed
	}
	if d.sock != nil {
		return d.sock, nil
	}
	addr, err := net.ResolveUDPAddr("udp", d.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	sock, err := d.cfg.Sockets.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	if d.cfg.RcvBuf > 0 {
		if err := sock.SetReadBuffer(d.cfg.RcvBuf); err != nil {
			monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", d.cfg.RcvBuf, err)
		}
	}
	monitoring.Logf("GVSP receiver listening on %s", sock.LocalAddr())
	d.sock = sock
	return sock, nil
}

func (d *UDPDigitizer) nextFrame(ctx context.Context, dst *Frame) error {
	sock, err := d.socket()
	if err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Short deadlines keep ctx cancellation responsive.
		_ = sock.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := sock.ReadFromUDP(d.buf)
		at := time.Now()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("UDP read error: %w", err)
		}

		pkt, err := DecodeGVSP(d.buf[:n])
		if err != nil {
			monitoring.Logf("gvsp: skipping packet: %v", err)
			continue
		}
		d.mu.Lock()
		done, err := d.asm.Add(pkt, at, dst)
		d.mu.Unlock()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Close stops the receiver.
func (d *UDPDigitizer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.sock != nil {
		return d.sock.Close()
	}
	return nil
}

// MockUDPSocket is a UDPSocket fed from a channel, for tests.
type MockUDPSocket struct {
	Packets chan []byte
	From    *net.UDPAddr
	Local   *net.UDPAddr

	mu       sync.Mutex
	closed   bool
	deadline time.Time
	rcvBuf   int
	done     chan struct{}
}

// NewMockUDPSocket returns a socket holding up to depth queued packets.
func NewMockUDPSocket(depth int) *MockUDPSocket {
	return &MockUDPSocket{
		Packets: make(chan []byte, depth),
		From:    &net.UDPAddr{IP: net.IPv4(192, 168, 0, 42), Port: 50010},
		Local:   &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000},
		done:    make(chan struct{}),
	}
}

func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	deadline := m.deadline
	m.mu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		t := time.NewTimer(time.Until(deadline))
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-m.done:
		return 0, nil, net.ErrClosed
	case p := <-m.Packets:
		return copy(b, p), m.From, nil
	case <-timeout:
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: mockTimeout{}}
	}
}

func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rcvBuf = bytes
	return nil
}

// ReadBuffer returns the last size passed to SetReadBuffer.
func (m *MockUDPSocket) ReadBuffer() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rcvBuf
}

func (m *MockUDPSocket) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadline = t
	return nil
}

func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// Closed reports whether Close was called.
func (m *MockUDPSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockUDPSocket) LocalAddr() net.Addr { return m.Local }

// MockSocketFactory hands out a fixed socket and records listen addresses.
type MockSocketFactory struct {
	Socket UDPSocket
	Err    error

	mu    sync.Mutex
	addrs []string
}

func (f *MockSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.mu.Lock()
	f.addrs = append(f.addrs, network+"://"+laddr.String())
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Socket, nil
}

// Listens returns the addresses passed to ListenUDP.
func (f *MockSocketFactory) Listens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.addrs...)
}

type mockTimeout struct{}

func (mockTimeout) Error() string   { return "i/o timeout" }
func (mockTimeout) Timeout() bool   { return true }
func (mockTimeout) Temporary() bool { return true }
