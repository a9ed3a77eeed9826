package types

import (
	"encoding/binary"
	"fmt"
)

// MessageType identifies the three wire-level message kinds exchanged
// between peers.
type MessageType int32

const (
	// REQ requests the lock.
	REQ MessageType = iota
	// ACK acknowledges a received REQ.
	ACK
	// REL releases the lock.
	REL
)

func (t MessageType) String() string {
	switch t {
	case REQ:
		return "REQ"
	case ACK:
		return "ACK"
	case REL:
		return "REL"
	default:
		return fmt.Sprintf("MessageType(%d)", int32(t))
	}
}

// WireSize is the fixed length, in bytes, of an encoded Message.
const WireSize = 12

// Message is the fixed-shape record exchanged on the wire: a type tag,
// a Lamport timestamp and the sending peer's id. Every field is encoded
// as a 4-byte little-endian integer, so every Message is exactly
// WireSize bytes regardless of content.
type Message struct {
	Type      MessageType
	Timestamp int32
	Pid       int32
}

// Encode writes the fixed 12-byte wire representation of m.
func (m Message) Encode() [WireSize]byte {
	var buf [WireSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.Type))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.Timestamp))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(m.Pid))
	return buf
}

// DecodeMessage parses a 12-byte wire record. It returns an error if buf
// is not exactly WireSize bytes long.
func DecodeMessage(buf []byte) (Message, error) {
	if len(buf) != WireSize {
		return Message{}, fmt.Errorf("dlock: wire record must be %d bytes, got %d", WireSize, len(buf))
	}
	return Message{
		Type:      MessageType(binary.LittleEndian.Uint32(buf[0:4])),
		Timestamp: int32(binary.LittleEndian.Uint32(buf[4:8])),
		Pid:       int32(binary.LittleEndian.Uint32(buf[8:12])),
	}, nil
}

func (m Message) String() string {
	return fmt.Sprintf("%s(ts=%d, pid=%d)", m.Type, m.Timestamp, m.Pid)
}
