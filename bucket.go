// bucket.go - immutable view of one emitted bucket
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

// Bucket is a contiguous run of records sharing a bucket index, sorted
// by full 128-bit signature. A bucket returned by Iter.Bucket() borrows
// the iterator's scratch storage and becomes stale when the iterator
// advances; Copy() produces a standalone bucket that is safe to retain,
// e.g. to hand buckets to worker goroutines outside the store.
type Bucket struct {
	idx  uint64
	mask uint64

	h0, h1 []uint64
	data   []uint64 // nil when payloads are not stored
}

// Size returns the number of records in the bucket
func (b *Bucket) Size() int {
	return len(b.h0)
}

// Index returns the bucket's index under the store's signature-to-bucket map
func (b *Bucket) Index() uint64 {
	return b.idx
}

// Hash returns the i-th signature
func (b *Bucket) Hash(i int) (h0, h1 uint64) {
	return b.h0[i], b.h1[i]
}

// Data returns the i-th record's payload: the stored value, or the
// masked low bits of h0 when the store retains no payloads.
func (b *Bucket) Data(i int) uint64 {
	if b.data == nil {
		return b.h0[i] & b.mask
	}
	return b.data[i]
}

// Each calls fn for every (h0, h1, data) triple in signature order
func (b *Bucket) Each(fn func(h0, h1, data uint64)) {
	for i := range b.h0 {
		fn(b.h0[i], b.h1[i], b.Data(i))
	}
}

// Copy returns a deep copy of the bucket, decoupled from the iterator's
// scratch storage.
func (b *Bucket) Copy() *Bucket {
	nb := &Bucket{
		idx:  b.idx,
		mask: b.mask,
		h0:   append([]uint64(nil), b.h0...),
		h1:   append([]uint64(nil), b.h1...),
	}
	if b.data != nil {
		nb.data = append([]uint64(nil), b.data...)
	}
	return nb
}
