package gige

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// GVSP packet formats (GigE Vision 2.0, standard 16-bit block IDs).
type PacketFormat uint8

const (
	FormatLeader  PacketFormat = 1
	FormatTrailer PacketFormat = 2
	FormatPayload PacketFormat = 3
)

func (f PacketFormat) String() string {
	switch f {
	case FormatLeader:
		return "leader"
	case FormatTrailer:
		return "trailer"
	case FormatPayload:
		return "payload"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

const (
	gvspHeaderLen  = 8
	leaderLen      = 36
	trailerLen     = 8
	payloadImage   = 0x0001
	PixelMono16    = 0x01100007
	ipUDPGVSPBytes = 20 + 8 + gvspHeaderLen
)

// PayloadSizeForPacket returns the image bytes carried by each payload
// packet for a GevSCPSPacketSize of packetSize.
func PayloadSizeForPacket(packetSize int) int {
	return packetSize - ipUDPGVSPBytes
}

// LayerTypeGVSP is registered with gopacket so GVSP can be decoded from
// UDP payloads and serialized alongside the standard layers.
var LayerTypeGVSP = gopacket.RegisterLayerType(4951, gopacket.LayerTypeMetadata{
	Name:    "GVSP",
	Decoder: gopacket.DecodeFunc(decodeGVSP),
})

var errShortGVSP = errors.New("gvsp: packet too short")

// ImageLeader is the body of a leader packet for an image payload.
type ImageLeader struct {
	Timestamp   uint64
	PixelFormat uint32
	SizeX       uint32
	SizeY       uint32
	OffsetX     uint32
	OffsetY     uint32
	PaddingX    uint16
	PaddingY    uint16
}

// GVSP is one GigE Vision stream packet.
type GVSP struct {
	layers.BaseLayer

	Status   uint16
	BlockID  uint16
	Format   PacketFormat
	PacketID uint32 // 24 bits

	// Leader is set on leader packets.
	Leader ImageLeader
	// TrailerSizeY is set on trailer packets: the number of lines sent.
	TrailerSizeY uint32
}

func (g *GVSP) LayerType() gopacket.LayerType { return LayerTypeGVSP }

func (g *GVSP) CanDecode() gopacket.LayerClass { return LayerTypeGVSP }

func (g *GVSP) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

// DecodeFromBytes parses a GVSP packet. Image data of payload packets is
// left in g.Payload without copying.
func (g *GVSP) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < gvspHeaderLen {
		df.SetTruncated()
		return errShortGVSP
	}
	g.Status = binary.BigEndian.Uint16(data[0:2])
	g.BlockID = binary.BigEndian.Uint16(data[2:4])
	if data[4]&0x80 != 0 {
		return fmt.Errorf("gvsp: extended IDs not supported")
	}
	g.Format = PacketFormat(data[4] & 0x0f)
	g.PacketID = uint32(data[5])<<16 | uint32(data[6])<<8 | uint32(data[7])

	body := data[gvspHeaderLen:]
	switch g.Format {
	case FormatLeader:
		if len(body) < leaderLen {
			df.SetTruncated()
			return errShortGVSP
		}
		if pt := binary.BigEndian.Uint16(body[2:4]); pt != payloadImage {
			return fmt.Errorf("gvsp: unsupported payload type %#04x", pt)
		}
		g.Leader = ImageLeader{
			Timestamp:   binary.BigEndian.Uint64(body[4:12]),
			PixelFormat: binary.BigEndian.Uint32(body[12:16]),
			SizeX:       binary.BigEndian.Uint32(body[16:20]),
			SizeY:       binary.BigEndian.Uint32(body[20:24]),
			OffsetX:     binary.BigEndian.Uint32(body[24:28]),
			OffsetY:     binary.BigEndian.Uint32(body[28:32]),
			PaddingX:    binary.BigEndian.Uint16(body[32:34]),
			PaddingY:    binary.BigEndian.Uint16(body[34:36]),
		}
		g.BaseLayer = layers.BaseLayer{Contents: data[:gvspHeaderLen+leaderLen], Payload: body[leaderLen:]}
	case FormatTrailer:
		if len(body) < trailerLen {
			df.SetTruncated()
			return errShortGVSP
		}
		g.TrailerSizeY = binary.BigEndian.Uint32(body[4:8])
		g.BaseLayer = layers.BaseLayer{Contents: data[:gvspHeaderLen+trailerLen], Payload: body[trailerLen:]}
	case FormatPayload:
		g.BaseLayer = layers.BaseLayer{Contents: data[:gvspHeaderLen], Payload: body}
	default:
		return fmt.Errorf("gvsp: unsupported packet format %d", g.Format)
	}
	return nil
}

// SerializeTo writes the header (and leader or trailer body) in front of
// whatever b already holds.
func (g *GVSP) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	n := gvspHeaderLen
	switch g.Format {
	case FormatLeader:
		n += leaderLen
	case FormatTrailer:
		n += trailerLen
	}
	buf, err := b.PrependBytes(n)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(buf[0:2], g.Status)
	binary.BigEndian.PutUint16(buf[2:4], g.BlockID)
	buf[4] = byte(g.Format) & 0x0f
	buf[5], buf[6], buf[7] = byte(g.PacketID>>16), byte(g.PacketID>>8), byte(g.PacketID)

	body := buf[gvspHeaderLen:]
	switch g.Format {
	case FormatLeader:
		l := g.Leader
		binary.BigEndian.PutUint16(body[0:2], 0)
		binary.BigEndian.PutUint16(body[2:4], payloadImage)
		binary.BigEndian.PutUint64(body[4:12], l.Timestamp)
		binary.BigEndian.PutUint32(body[12:16], l.PixelFormat)
		binary.BigEndian.PutUint32(body[16:20], l.SizeX)
		binary.BigEndian.PutUint32(body[20:24], l.SizeY)
		binary.BigEndian.PutUint32(body[24:28], l.OffsetX)
		binary.BigEndian.PutUint32(body[28:32], l.OffsetY)
		binary.BigEndian.PutUint16(body[32:34], l.PaddingX)
		binary.BigEndian.PutUint16(body[34:36], l.PaddingY)
	case FormatTrailer:
		binary.BigEndian.PutUint16(body[0:2], 0)
		binary.BigEndian.PutUint16(body[2:4], payloadImage)
		binary.BigEndian.PutUint32(body[4:8], g.TrailerSizeY)
	}
	return nil
}

func decodeGVSP(data []byte, p gopacket.PacketBuilder) error {
	g := &GVSP{}
	if err := g.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(g)
	return p.NextDecoder(g.NextLayerType())
}

// DecodeGVSP parses a UDP payload as a GVSP packet.
func DecodeGVSP(data []byte) (*GVSP, error) {
	g := &GVSP{}
	if err := g.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, err
	}
	return g, nil
}

// Packetize splits f into the leader, payload and trailer packets of one
// GVSP block, with at most payloadSize image bytes per payload packet.
// Pixels are sent little-endian as GigE Vision Mono16 requires.
func Packetize(f *Frame, blockID uint16, payloadSize int) ([][]byte, error) {
	if payloadSize <= 0 || payloadSize%2 != 0 {
		return nil, fmt.Errorf("gvsp: payload size %d must be positive and even", payloadSize)
	}
	b := f.Image.Bounds()
	raw := f.LittleEndian()

	opts := gopacket.SerializeOptions{}
	var pkts [][]byte
	emit := func(l gopacket.SerializableLayer, payload []byte) error {
		buf := gopacket.NewSerializeBuffer()
		ls := []gopacket.SerializableLayer{l}
		if payload != nil {
			ls = append(ls, gopacket.Payload(payload))
		}
		if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
			return err
		}
		pkts = append(pkts, append([]byte(nil), buf.Bytes()...))
		return nil
	}

	id := uint32(0)
	leader := &GVSP{BlockID: blockID, Format: FormatLeader, PacketID: id, Leader: ImageLeader{
		Timestamp:   f.DeviceTicks,
		PixelFormat: PixelMono16,
		SizeX:       uint32(b.Dx()),
		SizeY:       uint32(b.Dy()),
	}}
	if err := emit(leader, nil); err != nil {
		return nil, err
	}
	for off := 0; off < len(raw); off += payloadSize {
		id++
		end := min(off+payloadSize, len(raw))
		if err := emit(&GVSP{BlockID: blockID, Format: FormatPayload, PacketID: id}, raw[off:end]); err != nil {
			return nil, err
		}
	}
	id++
	trailer := &GVSP{BlockID: blockID, Format: FormatTrailer, PacketID: id, TrailerSizeY: uint32(b.Dy())}
	if err := emit(trailer, nil); err != nil {
		return nil, err
	}
	return pkts, nil
}
