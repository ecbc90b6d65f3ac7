// hash.go - seeded 128-bit signature codecs
//
// (c) Sudhi Herle 2024
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package bhstore

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
)

// Hasher turns a serialized key into a 128-bit signature under a given
// seed. Implementations must be deterministic: the same (seed, key) pair
// must always yield the same signature. Callers serialize their objects
// to []byte before handing them to the store.
type Hasher interface {
	Hash128(seed uint64, key []byte) (h0, h1 uint64)
}

// sipHasher is the default signature codec: SipHash-2-4 with a 128-bit
// output. The 64-bit store seed is stretched into the (k0, k1) key pair.
type sipHasher struct{}

func (sipHasher) Hash128(seed uint64, key []byte) (uint64, uint64) {
	return siphash.Hash128(seed, mix(seed), key)
}

// xxHasher derives the two signature halves from XXH64 over two
// domain-separated lanes. Faster than siphash on large keys; offers no
// keyed-hash guarantees, which the store does not need.
type xxHasher struct{}

func (xxHasher) Hash128(seed uint64, key []byte) (uint64, uint64) {
	var s [8]byte
	var d xxhash.Digest

	binary.LittleEndian.PutUint64(s[:], seed)
	d.Reset()
	d.Write(s[:])
	d.Write(key)
	h0 := d.Sum64()

	// second lane: flip the seed so the two words are independent
	binary.LittleEndian.PutUint64(s[:], ^seed)
	d.Reset()
	d.Write(s[:])
	d.Write(key)
	return h0, d.Sum64()
}

// SipHasher returns the default SipHash-2-4 based signature codec.
func SipHasher() Hasher {
	return sipHasher{}
}

// XXHasher returns an XXH64 based signature codec.
func XXHasher() Hasher {
	return xxHasher{}
}
