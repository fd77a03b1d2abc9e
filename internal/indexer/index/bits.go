package index

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Bits is a growable bitset marking deleted document ordinals. A nil *Bits
// is a valid empty set for reads.
type Bits struct {
	words []uint64
	count int
}

func NewBits(n int) *Bits {
	return &Bits{words: make([]uint64, (n+63)/64)}
}

// Set marks i and reports whether it was newly set.
func (b *Bits) Set(i int) bool {
	w := i / 64
	for w >= len(b.words) {
		b.words = append(b.words, 0)
	}
	mask := uint64(1) << (uint(i) % 64)
	if b.words[w]&mask != 0 {
		return false
	}
	b.words[w] |= mask
	b.count++
	return true
}

func (b *Bits) Test(i int) bool {
	if b == nil {
		return false
	}
	w := i / 64
	if w >= len(b.words) {
		return false
	}
	return b.words[w]&(uint64(1)<<(uint(i)%64)) != 0
}

func (b *Bits) Count() int {
	if b == nil {
		return 0
	}
	return b.count
}

func (b *Bits) Clone() *Bits {
	if b == nil {
		return &Bits{}
	}
	return &Bits{words: append([]uint64(nil), b.words...), count: b.count}
}

// MarshalBinary encodes the set as little-endian words.
func (b *Bits) MarshalBinary() ([]byte, error) {
	out := make([]byte, 8*len(b.words))
	for i, w := range b.words {
		binary.LittleEndian.PutUint64(out[i*8:], w)
	}
	return out, nil
}

func (b *Bits) UnmarshalBinary(data []byte) error {
	if len(data)%8 != 0 {
		return fmt.Errorf("bitset length %d is not a multiple of 8", len(data))
	}
	b.words = make([]uint64, len(data)/8)
	b.count = 0
	for i := range b.words {
		b.words[i] = binary.LittleEndian.Uint64(data[i*8:])
		b.count += bits.OnesCount64(b.words[i])
	}
	return nil
}
