// Package wire implements the typed, length-prefixed packet format shared
// by every agentd IPC socket: a 1-byte type tag, a 4-byte big-endian
// length, and a payload of exactly that many bytes.
//
// The read/write state machine here is adapted from a resumable
// header-then-payload parse (code.hybscloud.com/framer), but the header
// shape is fixed-width rather than that encoding's variable-length
// header: agentd's wire format always carries a type byte, never elides
// the length field, and never exceeds 32 bits of payload length.
package wire

import (
	"encoding/binary"
	"errors"
)

// Type is the wire tag identifying a packet's payload kind.
type Type uint8

const (
	TypeUint8 Type = iota + 1
	TypeInt8
	TypeUint64
	TypeInt64
	TypeString
	TypeData
)

func (t Type) String() string {
	switch t {
	case TypeUint8:
		return "UINT8"
	case TypeInt8:
		return "INT8"
	case TypeUint64:
		return "UINT64"
	case TypeInt64:
		return "INT64"
	case TypeString:
		return "STRING"
	case TypeData:
		return "DATA_PACKET"
	default:
		return "UNKNOWN"
	}
}

// HeaderLen is the number of bytes preceding the payload: 1 type byte + 4
// big-endian length bytes.
const HeaderLen = 5

var (
	// ErrUnexpectedType reports that a read packet's type tag did not
	// match what the caller expected.
	ErrUnexpectedType = errors.New("wire: unexpected type byte")

	// ErrUnexpectedSize reports that a fixed-width type's declared length
	// did not equal that type's wire width.
	ErrUnexpectedSize = errors.New("wire: unexpected declared size")

	// ErrShortRead/ErrShortWrite report a packet boundary that could not
	// be completed against an underlying stream.
	ErrShortRead  = errors.New("wire: short or failed read")
	ErrShortWrite = errors.New("wire: short or failed write")
)

func fixedWidth(t Type) (int, bool) {
	switch t {
	case TypeUint8, TypeInt8:
		return 1, true
	case TypeUint64, TypeInt64:
		return 8, true
	default:
		return 0, false
	}
}

// Packet is a fully decoded frame: its type tag and raw payload bytes.
// Buffers are owned by whoever returned the Packet from a read.
type Packet struct {
	Type    Type
	Payload []byte
}

// Encode serializes (type, be32(len(payload)), payload) into a single
// buffer; for fixed-width types it validates that len(payload) equals the
// type's wire width.
func Encode(t Type, payload []byte) ([]byte, error) {
	if w, ok := fixedWidth(t); ok && len(payload) != w {
		return nil, ErrUnexpectedSize
	}
	buf := make([]byte, HeaderLen+len(payload))
	buf[0] = byte(t)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf, nil
}

// EncodeUint8, EncodeInt8, EncodeUint64, EncodeInt64, EncodeString and
// EncodeData are typed convenience wrappers around Encode.
func EncodeUint8(v uint8) []byte {
	b, _ := Encode(TypeUint8, []byte{v})
	return b
}

func EncodeInt8(v int8) []byte {
	b, _ := Encode(TypeInt8, []byte{byte(v)})
	return b
}

func EncodeUint64(v uint64) []byte {
	var p [8]byte
	binary.BigEndian.PutUint64(p[:], v)
	b, _ := Encode(TypeUint64, p[:])
	return b
}

func EncodeInt64(v int64) []byte {
	return EncodeUint64(uint64(v))
}

// EncodeString serializes s without a null terminator on the wire.
func EncodeString(s string) []byte {
	b, _ := Encode(TypeString, []byte(s))
	return b
}

func EncodeData(data []byte) []byte {
	b, _ := Encode(TypeData, data)
	return b
}

// Decode parses one packet header+payload out of buf, returning the
// decoded Packet and the number of bytes of buf consumed. It validates that
// the declared length matches the type's fixed width where applicable.
func Decode(buf []byte) (Packet, int, error) {
	if len(buf) < HeaderLen {
		return Packet{}, 0, ErrShortRead
	}
	t := Type(buf[0])
	n := binary.BigEndian.Uint32(buf[1:5])
	if w, ok := fixedWidth(t); ok && int(n) != w {
		return Packet{}, 0, ErrUnexpectedSize
	}
	total := HeaderLen + int(n)
	if len(buf) < total {
		return Packet{}, 0, ErrShortRead
	}
	payload := make([]byte, n)
	copy(payload, buf[HeaderLen:total])
	return Packet{Type: t, Payload: payload}, total, nil
}

// DecodeUint8 decodes a packet payload previously produced by EncodeUint8,
// failing with ErrUnexpectedType/ErrUnexpectedSize on a tag or width
// mismatch.
func DecodeUint8(p Packet) (uint8, error) {
	if p.Type != TypeUint8 {
		return 0, ErrUnexpectedType
	}
	if len(p.Payload) != 1 {
		return 0, ErrUnexpectedSize
	}
	return p.Payload[0], nil
}

func DecodeInt8(p Packet) (int8, error) {
	if p.Type != TypeInt8 {
		return 0, ErrUnexpectedType
	}
	if len(p.Payload) != 1 {
		return 0, ErrUnexpectedSize
	}
	return int8(p.Payload[0]), nil
}

func DecodeUint64(p Packet) (uint64, error) {
	if p.Type != TypeUint64 {
		return 0, ErrUnexpectedType
	}
	if len(p.Payload) != 8 {
		return 0, ErrUnexpectedSize
	}
	return binary.BigEndian.Uint64(p.Payload), nil
}

func DecodeInt64(p Packet) (int64, error) {
	v, err := decodeFixedAs(p, TypeInt64)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

func decodeFixedAs(p Packet, want Type) (uint64, error) {
	if p.Type != want {
		return 0, ErrUnexpectedType
	}
	if len(p.Payload) != 8 {
		return 0, ErrUnexpectedSize
	}
	return binary.BigEndian.Uint64(p.Payload), nil
}

// DecodeString materializes an owned string from a STRING packet. The wire
// payload carries no terminator; DecodeString does not add one since Go
// strings are not NUL-terminated.
func DecodeString(p Packet) (string, error) {
	if p.Type != TypeString {
		return "", ErrUnexpectedType
	}
	return string(p.Payload), nil
}

func DecodeData(p Packet) ([]byte, error) {
	if p.Type != TypeData {
		return nil, ErrUnexpectedType
	}
	return p.Payload, nil
}

// Zero overwrites buf in place with zero bytes. Nothing in this module
// calls it: the Reader, Writer and socket contexts do not clear the
// buffers that held request/response bytes.
func Zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
