package dataservice

import (
	"crypto/subtle"

	"github.com/google/uuid"
)

// ID is a 16-byte identifier as carried on the wire. It wraps
// google/uuid.UUID, which is itself a [16]byte, so wire (de)serialization
// is a direct copy.
type ID uuid.UUID

// Bytes returns the raw 16 bytes for wire encoding.
func (id ID) Bytes() []byte {
	u := uuid.UUID(id)
	b := make([]byte, 16)
	copy(b, u[:])
	return b
}

// IDFromBytes parses exactly 16 bytes into an ID.
func IDFromBytes(b []byte) (ID, bool) {
	if len(b) != 16 {
		return ID{}, false
	}
	var u uuid.UUID
	copy(u[:], b)
	return ID(u), true
}

// NewID generates a random (v4) ID for newly submitted transactions.
func NewID() ID {
	return ID(uuid.New())
}

// beginningID and endID are the distinguished reference values: all-zero
// means "beginning of a linked list", all-0xFF means "end of a linked
// list".
var (
	beginningID = ID{}
	endID       = func() ID {
		var u uuid.UUID
		for i := range u {
			u[i] = 0xFF
		}
		return ID(u)
	}()
)

// BeginningID returns the "beginning of list" sentinel.
func BeginningID() ID { return beginningID }

// EndID returns the "end of list" sentinel.
func EndID() ID { return endID }

// IsBeginning reports whether id is the all-zero sentinel, compared in
// constant time.
func IsBeginning(id ID) bool {
	return subtle.ConstantTimeCompare(id.Bytes(), beginningID.Bytes()) == 1
}

// IsEnd reports whether id is the all-0xFF sentinel, compared in constant
// time.
func IsEnd(id ID) bool {
	return subtle.ConstantTimeCompare(id.Bytes(), endID.Bytes()) == 1
}
