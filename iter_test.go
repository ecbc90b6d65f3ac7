// iter_test.go -- test suite for bucket iteration
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
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// verify ordering within and across buckets and return the number of
// buckets and records seen
func walkOrdered(t *testing.T, st *Store) (nbuckets, nrec int) {
	assert := newAsserter(t)

	it, err := st.Iter()
	assert(err == nil, "iter: %s", err)

	prevIdx := int64(-1)
	for it.Next() {
		b := it.Bucket()
		assert(int64(b.Index()) > prevIdx, "bucket index %d after %d", b.Index(), prevIdx)
		prevIdx = int64(b.Index())

		var ph0, ph1 uint64
		for i := 0; i < b.Size(); i++ {
			h0, h1 := b.Hash(i)
			if i > 0 {
				less := ph0 < h0 || (ph0 == h0 && ph1 < h1)
				assert(less, "bucket %d: (%#x,%#x) !< (%#x,%#x)",
					b.Index(), ph0, ph1, h0, h1)
			}
			assert(it.bucketOf(h0) == b.Index(),
				"bucket %d holds h0 %#x of bucket %d", b.Index(), h0, it.bucketOf(h0))
			ph0, ph1 = h0, h1
		}
		nbuckets++
		nrec += b.Size()
	}
	assert(it.Err() == nil, "iteration failed: %s", it.Err())
	assert(nbuckets == int(it.m), "emitted %d buckets, expected %d", nbuckets, it.m)
	return nbuckets, nrec
}

func TestBucketCount(t *testing.T) {
	assert := newAsserter(t)

	const n = 3000
	st := newTestStore(t, nil)
	assert(st.AddKeyVals(numKeys(n), nil) == nil, "ingest failed")

	for _, b := range []int{1, 3, 7, 100, 256, 5000} {
		assert(st.SetBucketSize(b) == nil, "set bucket size %d", b)
		nbuckets, nrec := walkOrdered(t, st)
		assert(nbuckets == 1+n/b, "bucket size %d: %d buckets, expected %d",
			b, nbuckets, 1+n/b)
		assert(nrec == n, "bucket size %d: %d records, expected %d", b, nrec, n)
	}
}

func TestBucketsSpanSegments(t *testing.T) {
	assert := newAsserter(t)

	const n = 4096
	st := newTestStore(t, &Config{
		Log2Segments: 3,
		BucketSize:   16 * n,
	})
	assert(st.AddKeyVals(numKeys(n), nil) == nil, "ingest failed")

	// with a bucket 16x the whole store, residual carry across all 8
	// segments must still produce ordered output
	nbuckets, nrec := walkOrdered(t, st)
	assert(nbuckets == 1, "%d buckets, expected 1", nbuckets)
	assert(nrec == n, "%d records, expected %d", nrec, n)
}

func TestCompleteness(t *testing.T) {
	assert := newAsserter(t)

	const n = 5000
	st := newTestStore(t, &Config{BucketSize: 64})
	keys := numKeys(n)
	assert(st.AddKeyVals(keys, nil) == nil, "ingest failed")

	sigs := func(h Hasher, seed uint64) [][2]uint64 {
		out := make([][2]uint64, len(keys))
		for i, k := range keys {
			h0, h1 := h.Hash128(seed, k)
			out[i] = [2]uint64{h0, h1}
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i][0] != out[j][0] {
				return out[i][0] < out[j][0]
			}
			return out[i][1] < out[j][1]
		})
		return out
	}
	want := sigs(SipHasher(), st.seed)

	it, err := st.Iter()
	assert(err == nil, "iter: %s", err)

	var got [][2]uint64
	for it.Next() {
		b := it.Bucket()
		for i := 0; i < b.Size(); i++ {
			h0, h1 := b.Hash(i)
			got = append(got, [2]uint64{h0, h1})
		}
	}
	assert(it.Err() == nil, "iteration failed: %s", it.Err())

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("emitted signatures differ from ingested (-want +got):\n%s", diff)
	}
}

func TestHashMask(t *testing.T) {
	assert := newAsserter(t)

	const n = 1000
	st := newTestStore(t, &Config{HashBits: 16})
	assert(st.stride == 2, "stride %d with hash mask, expected 2", st.stride)
	assert(st.AddKeyVals(numKeys(n), nil) == nil, "ingest failed")

	it, err := st.Iter()
	assert(err == nil, "iter: %s", err)

	var nrec int
	for it.Next() {
		b := it.Bucket()
		for i := 0; i < b.Size(); i++ {
			h0, _ := b.Hash(i)
			assert(b.Data(i) == h0&0xffff, "data %#x != h0 %#x & 0xffff", b.Data(i), h0)
			nrec++
		}
	}
	assert(it.Err() == nil, "iteration failed: %s", it.Err())
	assert(nrec == n, "saw %d records, expected %d", nrec, n)
}

func TestSegmentCache(t *testing.T) {
	assert := newAsserter(t)

	const n = 2500
	st := newTestStore(t, &Config{CacheSegments: 1 << 8, BucketSize: 32})
	assert(st.AddKeyVals(numKeys(n), nil) == nil, "ingest failed")

	_, nrec := walkOrdered(t, st)
	assert(nrec == n, "first pass: %d records, expected %d", nrec, n)

	// second pass served from the ARC cache
	_, nrec = walkOrdered(t, st)
	assert(nrec == n, "cached pass: %d records, expected %d", nrec, n)
}

func TestSegmentCacheInterleavedAdds(t *testing.T) {
	assert := newAsserter(t)

	const n = 2000
	st := newTestStore(t, &Config{CacheSegments: 1 << 8, BucketSize: 32})
	keys := numKeys(n)

	// first pass caches every segment
	assert(st.AddKeyVals(keys[:n/2], nil) == nil, "ingest failed")
	_, nrec := walkOrdered(t, st)
	assert(nrec == n/2, "first pass: %d records, expected %d", nrec, n/2)

	// records added after a cached pass must still be visible
	assert(st.AddKeyVals(keys[n/2:], nil) == nil, "second ingest failed")
	_, nrec = walkOrdered(t, st)
	assert(nrec == n, "interleaved pass: %d records, expected %d", nrec, n)

	// and so must duplicates landing in an already-cached segment
	assert(st.Add(keys[0]) == nil, "dup add failed")
	err := st.Check()
	assert(err == ErrDuplicate, "expected ErrDuplicate, got %v", err)
}

func TestXXHasher(t *testing.T) {
	assert := newAsserter(t)

	const n = 1500
	st := newTestStore(t, &Config{Hasher: XXHasher(), BucketSize: 16})
	assert(st.AddKeyVals(numKeys(n), nil) == nil, "ingest failed")

	_, nrec := walkOrdered(t, st)
	assert(nrec == n, "%d records, expected %d", nrec, n)
}

func TestBucketCopy(t *testing.T) {
	assert := newAsserter(t)

	const n = 800
	st := newTestStore(t, &Config{BucketSize: 100})
	assert(st.AddKeyVals(numKeys(n), nil) == nil, "ingest failed")

	it, err := st.Iter()
	assert(err == nil, "iter: %s", err)

	// deep copies must survive iterator advancement
	var copies []*Bucket
	for it.Next() {
		copies = append(copies, it.Bucket().Copy())
	}
	assert(it.Err() == nil, "iteration failed: %s", it.Err())

	var nrec int
	var ph0 uint64
	for _, b := range copies {
		for i := 0; i < b.Size(); i++ {
			h0, _ := b.Hash(i)
			if nrec > 0 {
				assert(h0 >= ph0, "copied buckets out of order")
			}
			ph0 = h0
			nrec++
		}
	}
	assert(nrec == n, "copies hold %d records, expected %d", nrec, n)
}
