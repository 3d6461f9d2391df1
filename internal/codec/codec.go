// Package codec turns snapshots into the canonical bytes used for change
// detection and into the base64 text frames sent to the listener.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cristalhq/base64"
	json "github.com/goccy/go-json"

	"github.com/five82/unreadbell/internal/snapshot"
)

// PacketTypeUpdate is the only packet type the relay emits.
const PacketTypeUpdate = "Update"

var (
	// ErrEncode marks a snapshot or packet that could not be serialized.
	ErrEncode = errors.New("encode")
	// ErrDecode marks malformed input on the receiving side.
	ErrDecode = errors.New("decode")
	// ErrUnknownPacket marks a packet whose type is not understood.
	ErrUnknownPacket = errors.New("unknown packet type")
)

// Packet is the document carried by one wire frame.
type Packet struct {
	Type    string            `json:"type"`
	Payload snapshot.Snapshot `json:"payload"`
	Revive  bool              `json:"revive"`
}

// NewUpdate builds an Update packet. forced marks an authoritative resync.
func NewUpdate(snap snapshot.Snapshot, forced bool) Packet {
	return Packet{Type: PacketTypeUpdate, Payload: snap, Revive: forced}
}

// Encode returns the canonical encoding of snap. Map keys are sorted and
// member sets normalized, so equal content always yields equal bytes.
func Encode(snap snapshot.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap.Normalize())
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot: %v", ErrEncode, err)
	}
	return data, nil
}

// Decode parses a canonical encoding back into a snapshot.
func Decode(data []byte) (snapshot.Snapshot, error) {
	var snap snapshot.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("%w: snapshot: %v", ErrDecode, err)
	}
	return snap.Normalize(), nil
}

// EncodePacket serializes p as base64 of its JSON form.
func EncodePacket(p Packet) (string, error) {
	p.Payload = p.Payload.Normalize()
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("%w: packet: %v", ErrEncode, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePacket reverses EncodePacket. Surrounding whitespace, including a
// trailing frame delimiter, is ignored.
func DecodePacket(text []byte) (Packet, error) {
	raw, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(text)))
	if err != nil {
		return Packet{}, fmt.Errorf("%w: base64: %v", ErrDecode, err)
	}
	var p Packet
	if err := json.Unmarshal(raw, &p); err != nil {
		return Packet{}, fmt.Errorf("%w: packet: %v", ErrDecode, err)
	}
	if p.Type != PacketTypeUpdate {
		return Packet{}, fmt.Errorf("%w: %q", ErrUnknownPacket, p.Type)
	}
	p.Payload = p.Payload.Normalize()
	return p, nil
}

// FrameKind distinguishes stream transports from message transports.
type FrameKind int

const (
	// FrameMessage transports deliver one message per send.
	FrameMessage FrameKind = iota
	// FrameStream transports need an explicit newline delimiter.
	FrameStream
)

// Frame wraps encoded packet text into the unit a transport writes.
func Frame(kind FrameKind, text string) []byte {
	if kind == FrameStream {
		out := make([]byte, 0, len(text)+1)
		out = append(out, text...)
		return append(out, '\n')
	}
	return []byte(text)
}
