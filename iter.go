// iter.go - streaming bucket iteration over sorted segment windows
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
	"math/bits"
	"sort"
)

// Iter replays the store as a sequence of buckets: maximal runs of
// records sharing bucketOf(h0), sorted by full signature. Usage follows
// bufio.Scanner:
//
//	it, err := st.Iter()
//	for it.Next() {
//		b := it.Bucket()
//		...
//	}
//	err = it.Err()
//
// The bucket returned by Bucket() borrows the iterator's scratch arrays
// and is invalidated by the next call to Next(); use Bucket.Copy() to
// retain one.
//
// Segments are loaded one at a time. The scratch window holds the
// current segment plus any still-open bucket carried over from earlier
// segments; because bucketOf is monotone in h0 and segments partition
// the h0 space by its top bits, sorting each newly loaded segment is
// enough to keep the whole window ordered.
type Iter struct {
	st *Store

	h0, h1 []uint64
	data   []uint64 // nil when payloads are not stored

	m    uint64 // number of buckets
	mult uint64 // 2*m; fixed-point multiplier for bucketOf

	bucket  uint64 // next bucket index to emit
	last    int    // end of the previously emitted bucket in the window
	nextSeg int

	cur *Bucket
	err error

	dupcheck bool
	done     bool
}

// Iter flushes the write buffers and starts a new bucket iteration. The
// number of buckets is fixed at this point: 1 + n/b for post-filter
// size n and target bucket size b. Every iteration re-reads the
// segments from the beginning.
func (s *Store) Iter() (*Iter, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.flushAll(); err != nil {
		return nil, err
	}

	n, err := s.Size()
	if err != nil {
		return nil, err
	}

	var maxc uint64
	for _, c := range s.count {
		if c > maxc {
			maxc = c
		}
	}

	m := 1 + n/s.bucketSize

	// headroom for partial buckets carried across segment boundaries;
	// the window grows past this under adversarial skew
	capacity := maxc + 16*s.bucketSize

	it := &Iter{
		st:       s,
		h0:       make([]uint64, 0, capacity),
		h1:       make([]uint64, 0, capacity),
		m:        m,
		mult:     2 * m,
		dupcheck: !s.checkedDups,
	}
	if s.stride == 3 {
		it.data = make([]uint64, 0, capacity)
	}
	return it, nil
}

// Next advances to the next bucket. It returns false when all m buckets
// have been emitted or an error occurred; consult Err() afterwards.
func (it *Iter) Next() bool {
	if it.err != nil || it.done {
		return false
	}
	if it.bucket >= it.m {
		it.done = true
		it.cur = nil
		// a full pass visited every adjacent signature pair
		it.st.checkedDups = true
		return false
	}

	b, err := it.emit()
	if err != nil {
		it.err = err
		it.cur = nil
		return false
	}
	it.cur = b
	return true
}

// Bucket returns the bucket found by the last successful Next(). It is
// only valid until Next() is called again.
func (it *Iter) Bucket() *Bucket {
	return it.cur
}

// Err returns the first error encountered during iteration
func (it *Iter) Err() error {
	return it.err
}

// bucketOf maps h0 to its bucket index in [0, m) via fixed-point
// inversion: the high 64 bits of (h0 >> 1) * 2m. Monotone non-decreasing
// in h0; works for any m, not just powers of two.
func (it *Iter) bucketOf(h0 uint64) uint64 {
	hi, _ := bits.Mul64(h0>>1, it.mult)
	return hi
}

func (it *Iter) emit() (*Bucket, error) {
	var end int
	for {
		// galloping probe for the first record past the current bucket
		pos := it.last
		step := 1
		for pos < len(it.h0) && it.bucketOf(it.h0[pos]) == it.bucket {
			pos = it.last + step
			step <<= 1
		}

		if pos >= len(it.h0) && it.nextSeg < len(it.st.segs) {
			// the bucket may continue into the next segment
			if err := it.refill(); err != nil {
				return nil, err
			}
			continue
		}

		to := pos
		if to > len(it.h0) {
			to = len(it.h0)
		}
		end = it.last + sort.Search(to-it.last, func(i int) bool {
			return it.bucketOf(it.h0[it.last+i]) > it.bucket
		})
		break
	}

	start := it.last
	if it.dupcheck {
		// equal adjacent signatures mean two keys collided under this seed
		for i := start + 1; i < end; i++ {
			if it.h0[i] == it.h0[i-1] && it.h1[i] == it.h1[i-1] {
				return nil, ErrDuplicate
			}
		}
	}

	b := &Bucket{
		idx:  it.bucket,
		mask: it.st.hashMask,
		h0:   it.h0[start:end],
		h1:   it.h1[start:end],
	}
	if it.data != nil {
		b.data = it.data[start:end]
	}

	it.last = end
	it.bucket++
	return b, nil
}

// refill compacts the residual tail of the window to the front and
// appends the next segment's records, filtered and sorted.
func (it *Iter) refill() error {
	st := it.st

	if it.last > 0 {
		it.h0 = it.h0[:copy(it.h0, it.h0[it.last:])]
		it.h1 = it.h1[:copy(it.h1, it.h1[it.last:])]
		if it.data != nil {
			it.data = it.data[:copy(it.data, it.data[it.last:])]
		}
		it.last = 0
	}

	from := len(it.h0)
	stride := st.stride
	err := st.withSegment(it.nextSeg, func(words []uint64) error {
		for j := 0; j+stride <= len(words); j += stride {
			h0, h1 := words[j], words[j+1]
			if st.filter != nil && !st.filter(h0, h1) {
				continue
			}
			it.h0 = append(it.h0, h0)
			it.h1 = append(it.h1, h1)
			if it.data != nil {
				it.data = append(it.data, words[j+2])
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	it.nextSeg++

	// every record of a later segment sorts above the residual prefix,
	// so ordering the new range keeps the whole window sorted
	sort.Sort(&sigRange{it: it, from: from, to: len(it.h0)})
	return nil
}

// sigRange sorts a window sub-range by (h0, h1), keeping the parallel
// data slice aligned.
type sigRange struct {
	it       *Iter
	from, to int
}

func (r *sigRange) Len() int {
	return r.to - r.from
}

func (r *sigRange) Less(i, j int) bool {
	it := r.it
	a, b := r.from+i, r.from+j
	if it.h0[a] != it.h0[b] {
		return it.h0[a] < it.h0[b]
	}
	return it.h1[a] < it.h1[b]
}

func (r *sigRange) Swap(i, j int) {
	it := r.it
	a, b := r.from+i, r.from+j
	it.h0[a], it.h0[b] = it.h0[b], it.h0[a]
	it.h1[a], it.h1[b] = it.h1[b], it.h1[a]
	if it.data != nil {
		it.data[a], it.data[b] = it.data[b], it.data[a]
	}
}
