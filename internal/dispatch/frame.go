package dispatch

import (
	"encoding/binary"
	"fmt"
)

// Frame is the wire unit exchanged with the Network Bridge. The dispatcher
// treats every variant opaquely except Data, whose header it parses to
// extract routing information. Sealed by the unexported frameMarker method.
type Frame interface {
	frameMarker()

	// FrameKind returns a short tag for logging/observability.
	FrameKind() string
}

// DataFrame carries a routed envelope's serialized payload.
type DataFrame struct {
	StreamID uint64
	Seq      uint64
	Payload  []byte
}

func (DataFrame) frameMarker()      {}
func (DataFrame) FrameKind() string { return "data" }

// HelloFrame is sent once a connection is established, before any Data
// frames, carrying the sender's own SystemPath for peer identification.
type HelloFrame struct {
	Sender SystemPath
}

func (HelloFrame) frameMarker()      {}
func (HelloFrame) FrameKind() string { return "hello" }

// ByeFrame announces an orderly connection teardown.
type ByeFrame struct {
	Reason string
}

func (ByeFrame) frameMarker()      {}
func (ByeFrame) FrameKind() string { return "bye" }

// AckFrame acknowledges receipt of a Data frame by stream/seq. The
// dispatcher never requires acks (Non-goals: no reliable delivery), but the
// Bridge may use them for its own connection-health bookkeeping.
type AckFrame struct {
	StreamID uint64
	Seq      uint64
}

func (AckFrame) frameMarker()      {}
func (AckFrame) FrameKind() string { return "ack" }

// streamID derives the deterministic per-destination stream identifier
// used to key ordering on the wire (§4.2 step 2): the low 64 bits of the
// unique ID for a Unique path, or a stable hash of the segment list for a
// Named path.
func streamID(dst ActorPath) uint64 {
	if dst.IsUnique() {
		id := dst.UniqueID()
		return binary.BigEndian.Uint64(id[8:16])
	}

	var h uint64 = 1469598103934665603 // FNV offset basis
	for _, seg := range dst.Named() {
		for i := 0; i < len(seg); i++ {
			h ^= uint64(seg[i])
			h *= 1099511628211 // FNV prime
		}
		h ^= '/'
		h *= 1099511628211
	}
	return h
}

// EncodeEnvelopeHeader builds the Data frame payload prefix described in
// the external interfaces: a serializer ID, the source path, the
// destination path, and the caller-supplied already-serialized user
// payload, exactly as the bridge must write it to the wire.
func EncodeEnvelopeHeader(
	serializerID uint64, src, dst ActorPath, userPayload []byte) []byte {

	srcBytes := encodeActorPath(src)
	dstBytes := encodeActorPath(dst)

	out := make([]byte, 0, 8+2+len(srcBytes)+2+len(dstBytes)+len(userPayload))

	var buf8 [8]byte
	binary.BigEndian.PutUint64(buf8[:], serializerID)
	out = append(out, buf8[:]...)

	out = appendU16Prefixed(out, srcBytes)
	out = appendU16Prefixed(out, dstBytes)
	out = append(out, userPayload...)

	return out
}

// DecodeEnvelopeHeader parses the prefix written by EncodeEnvelopeHeader,
// returning the serializer ID, the source and destination paths, and the
// remaining user payload bytes (a subslice of raw, not copied).
func DecodeEnvelopeHeader(
	raw []byte) (serializerID uint64, src, dst ActorPath, payload []byte, err error) {

	if len(raw) < 8 {
		return 0, ActorPath{}, ActorPath{}, nil, ErrMalformedFrame
	}
	serializerID = binary.BigEndian.Uint64(raw[:8])
	rest := raw[8:]

	srcBytes, rest, err := readU16Prefixed(rest)
	if err != nil {
		return 0, ActorPath{}, ActorPath{}, nil, err
	}
	src, err = decodeActorPath(srcBytes)
	if err != nil {
		return 0, ActorPath{}, ActorPath{}, nil, err
	}

	dstBytes, rest, err := readU16Prefixed(rest)
	if err != nil {
		return 0, ActorPath{}, ActorPath{}, nil, err
	}
	dst, err = decodeActorPath(dstBytes)
	if err != nil {
		return 0, ActorPath{}, ActorPath{}, nil, err
	}

	return serializerID, src, dst, rest, nil
}

func appendU16Prefixed(out []byte, body []byte) []byte {
	var buf2 [2]byte
	binary.BigEndian.PutUint16(buf2[:], uint16(len(body)))
	out = append(out, buf2[:]...)
	return append(out, body...)
}

func readU16Prefixed(in []byte) (body, rest []byte, err error) {
	if len(in) < 2 {
		return nil, nil, ErrMalformedFrame
	}
	n := binary.BigEndian.Uint16(in[:2])
	in = in[2:]
	if len(in) < int(n) {
		return nil, nil, ErrMalformedFrame
	}
	return in[:n], in[n:], nil
}

func encodeActorPath(p ActorPath) []byte {
	sysBytes := encodeSystemPath(p.System().Path)

	if p.IsUnique() {
		out := make([]byte, 0, 1+len(sysBytes)+16)
		out = append(out, byte(pathKindUnique))
		out = append(out, sysBytes...)
		id := p.UniqueID()
		out = append(out, id[:]...)
		return out
	}

	out := make([]byte, 0, 1+len(sysBytes)+2)
	out = append(out, byte(pathKindNamed))
	out = append(out, sysBytes...)

	var segCount [2]byte
	binary.BigEndian.PutUint16(segCount[:], uint16(len(p.Named())))
	out = append(out, segCount[:]...)

	for _, seg := range p.Named() {
		out = appendU16Prefixed(out, []byte(seg))
	}

	return out
}

func decodeActorPath(raw []byte) (ActorPath, error) {
	if len(raw) < 1 {
		return ActorPath{}, ErrMalformedFrame
	}
	kind := pathKind(raw[0])
	rest := raw[1:]

	sys, rest, err := decodeSystemPath(rest)
	if err != nil {
		return ActorPath{}, err
	}

	switch kind {
	case pathKindUnique:
		if len(rest) < 16 {
			return ActorPath{}, ErrMalformedFrame
		}
		var id [16]byte
		copy(id[:], rest[:16])
		return NewUniquePath(System{Path: sys}, id), nil

	case pathKindNamed:
		if len(rest) < 2 {
			return ActorPath{}, ErrMalformedFrame
		}
		segCount := binary.BigEndian.Uint16(rest[:2])
		rest = rest[2:]

		segs := make(NamedPath, 0, segCount)
		for i := uint16(0); i < segCount; i++ {
			var segBytes []byte
			segBytes, rest, err = readU16Prefixed(rest)
			if err != nil {
				return ActorPath{}, err
			}
			segs = append(segs, string(segBytes))
		}
		return NewNamedPath(System{Path: sys}, segs), nil

	default:
		return ActorPath{}, fmt.Errorf(
			"%w: unknown path kind %d", ErrMalformedFrame, kind)
	}
}

func encodeSystemPath(s SystemPath) []byte {
	ip4 := s.IP.To4()

	var ipKind byte
	var ipBytes []byte
	if ip4 != nil {
		ipKind = 4
		ipBytes = ip4
	} else {
		ipKind = 6
		ipBytes = s.IP.To16()
	}

	out := make([]byte, 0, 1+1+len(ipBytes)+2)
	out = append(out, byte(s.Transport))
	out = append(out, ipKind)
	out = append(out, ipBytes...)

	var portBytes [2]byte
	binary.BigEndian.PutUint16(portBytes[:], s.Port)
	out = append(out, portBytes[:]...)

	return out
}

func decodeSystemPath(raw []byte) (SystemPath, []byte, error) {
	if len(raw) < 2 {
		return SystemPath{}, nil, ErrMalformedFrame
	}
	transport := Transport(raw[0])
	ipKind := raw[1]
	raw = raw[2:]

	var ipLen int
	switch ipKind {
	case 4:
		ipLen = 4
	case 6:
		ipLen = 16
	default:
		return SystemPath{}, nil, ErrMalformedFrame
	}

	if len(raw) < ipLen+2 {
		return SystemPath{}, nil, ErrMalformedFrame
	}

	ip := make([]byte, ipLen)
	copy(ip, raw[:ipLen])
	raw = raw[ipLen:]

	port := binary.BigEndian.Uint16(raw[:2])
	raw = raw[2:]

	return SystemPath{Transport: transport, IP: ip, Port: port}, raw, nil
}
