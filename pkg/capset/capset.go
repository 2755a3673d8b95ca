// Package capset implements a dense capability bitset: a fixed-width bit
// array naming permitted dataservice operations, whose only shrink
// operation is a monotone AND (reduce).
//
// Backed by github.com/bits-and-blooms/bitset the way
// nestybox-sysbox-libs/capability models POSIX capability sets: named bit
// constants plus Set/Clear/Test/Union/Intersect over a dense word array.
package capset

import "github.com/bits-and-blooms/bitset"

// Bit names one dataservice capability.
type Bit uint

const (
	RootContextCreate Bit = iota
	RootContextReduceCaps
	ChildContextCreate
	ChildContextClose
	DatabaseBackup
	DatabaseRestore
	DatabaseUpgrade
	GlobalSettingRead
	GlobalSettingWrite
	LatestBlockIDRead
	NextBlockIDRead
	PreviousBlockIDRead
	BlockIDByTransactionIDRead
	BlockIDByHeightRead
	BlockRead
	TransactionRead
	TransactionSubmit
	TransactionQueueFirstRead
	TransactionQueueNextRead
	TransactionPromote
	BlockWrite

	// NumBits is the width of the dense bitset; it must stay last.
	NumBits
)

// Set is a fixed-width bitset of width NumBits. The zero Set is empty (all
// bits clear); use AllTrue for an all-true set.
type Set struct {
	bs *bitset.BitSet
}

// AllTrue returns a Set with every named bit set, the capability set a
// freshly created root context starts with.
func AllTrue() Set {
	s := Set{bs: bitset.New(uint(NumBits))}
	for i := Bit(0); i < NumBits; i++ {
		s.bs.Set(uint(i))
	}
	return s
}

// AllFalse returns a Set with every named bit clear.
func AllFalse() Set {
	return Set{bs: bitset.New(uint(NumBits))}
}

func (s Set) ensure() *bitset.BitSet {
	if s.bs == nil {
		return bitset.New(uint(NumBits))
	}
	return s.bs
}

// Test reports whether b is set.
func (s Set) Test(b Bit) bool {
	return s.ensure().Test(uint(b))
}

// WithSet returns a copy of s with b set.
func (s Set) WithSet(b Bit) Set {
	out := s.ensure().Clone()
	out.Set(uint(b))
	return Set{bs: out}
}

// WithClear returns a copy of s with b cleared.
func (s Set) WithClear(b Bit) Set {
	out := s.ensure().Clone()
	out.Clear(uint(b))
	return Set{bs: out}
}

// Intersect returns s ∧ other (bitwise AND), the sole reduction operation
// used by root-context capability reduction and child-context creation.
func (s Set) Intersect(other Set) Set {
	return Set{bs: s.ensure().Intersection(other.ensure())}
}

// Union returns s ∨ other (bitwise OR).
func (s Set) Union(other Set) Set {
	return Set{bs: s.ensure().Union(other.ensure())}
}

// Reduce applies the monotone reduction invariant: the result is always a
// subset of s, never a superset, regardless of mask.
func (s Set) Reduce(mask Set) Set {
	return s.Intersect(mask)
}

// Bytes serializes the set as a raw bitset for the wire.
func (s Set) Bytes() []byte {
	words := s.ensure().Bytes()
	out := make([]byte, ByteWidth)
	for i, w := range words {
		off := i * 8
		if off >= ByteWidth {
			break
		}
		for j := 0; j < 8 && off+j < ByteWidth; j++ {
			out[off+j] = byte(w >> (8 * j))
		}
	}
	return out
}

// ByteWidth is the number of bytes a serialized Set occupies on the wire.
var ByteWidth = int((uint(NumBits) + 7) / 8)

// FromBytes parses a raw bitset previously produced by Bytes. It reports
// failure via the boolean ok when len(b) != ByteWidth, matching the
// dataservice codec's invalid-size handling.
func FromBytes(b []byte) (Set, bool) {
	if len(b) != ByteWidth {
		return Set{}, false
	}
	bs := bitset.New(uint(NumBits))
	for byteIdx, v := range b {
		for bit := 0; bit < 8; bit++ {
			if v&(1<<uint(bit)) != 0 {
				pos := byteIdx*8 + bit
				if uint(pos) < uint(NumBits) {
					bs.Set(uint(pos))
				}
			}
		}
	}
	return Set{bs: bs}, true
}

// Equal reports whether s and other have identical bits set.
func (s Set) Equal(other Set) bool {
	return s.ensure().Equal(other.ensure())
}
