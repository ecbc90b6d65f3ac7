// bhstore.go - bucketed signature store over temporary disk segments
//
// The store design follows the construction side of large-scale static
// function builders: one streaming pass over the keys, bounded RAM, and
// a replay phase that emits signature-sorted buckets for downstream
// solvers.
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
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/hashicorp/golang-lru/arc/v2"
)

const (
	defaultLog2Segments = 8
	defaultBufferSize   = 16 * 1024
	defaultBucketSize   = 256
	defaultRetryLimit   = 4
)

// Filter restricts the store to the signatures it accepts. Replacing the
// filter invalidates the cached filtered size; doing so while an
// iteration or a Size() rescan is in flight is a caller error.
type Filter func(h0, h1 uint64) bool

// Config carries the construction-time knobs of a Store. The zero value
// selects sensible defaults for every field.
type Config struct {
	// Dir is the directory for segment files (default: system temp dir).
	// Each store creates a private subdirectory inside it.
	Dir string

	// Log2Segments is log2 of the number of on-disk segments (default 8,
	// i.e. 256 segments). All segment files stay open for the lifetime
	// of the store.
	Log2Segments uint

	// BufferSize is the per-segment staging buffer in bytes (default 16 KiB)
	BufferSize int

	// BucketSize is the target mean bucket size (default 256)
	BucketSize int

	// HashBits, when nonzero, stops the store from retaining per-key
	// values on disk; emitted bucket data is h0 masked to the low
	// HashBits bits instead.
	HashBits uint

	// Frequencies builds the value -> occurrence-count histogram during
	// ingest. The histogram can dominate RAM for pathological value
	// distributions; FreqSize() exposes its cardinality.
	Frequencies bool

	// RetryLimit bounds CheckAndRetry() reseed attempts (default 4)
	RetryLimit int

	// CacheSegments, when nonzero, keeps up to this many segments'
	// records in an ARC cache across iterations. A segment read again
	// with no ingest into it since the last read (e.g. Check() followed
	// by Iter(), or a filtered Size() rescan followed by Iter()) is served
	// from RAM. Reset/Clear purge the cache, so each CheckAndRetry()
	// reseed pass reads the segments from disk.
	CacheSegments int

	// Hasher is the signature codec (default SipHasher())
	Hasher Hasher
}

// Store is an external-memory bucketed signature store. It is not safe
// for concurrent use.
type Store struct {
	hasher Hasher
	seed   uint64

	dir   string
	segs  []*segment
	count []uint64
	shift uint // segment of h0 is h0 >> shift

	size     uint64
	filtered int64 // -1 means the next Size() must rescan

	hashMask uint64
	stride   int // u64 words per on-disk record: 2 or 3

	filter Filter
	freq   map[uint64]uint64

	bucketSize uint64
	retries    int

	cache *arc.ARCCache[int, []uint64]
	rng   *xorshift

	checkedDups bool
	locked      bool
	closed      bool
}

// New creates an empty store rooted in a fresh private directory. The
// caller must Close() the store to release its file descriptors and
// delete the backing files; a finalizer reclaims them as a safety net if
// the store is garbage collected unclosed.
func New(cfg *Config) (*Store, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}

	if c.Log2Segments == 0 {
		c.Log2Segments = defaultLog2Segments
	}
	if c.Log2Segments > 16 {
		return nil, fmt.Errorf("bhstore: log2segments %d too large", c.Log2Segments)
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.BucketSize == 0 {
		c.BucketSize = defaultBucketSize
	}
	if c.BucketSize < 1 {
		return nil, fmt.Errorf("bhstore: invalid bucket size %d", c.BucketSize)
	}
	if c.RetryLimit <= 0 {
		c.RetryLimit = defaultRetryLimit
	}
	if c.HashBits > 64 {
		return nil, fmt.Errorf("bhstore: invalid hash width %d", c.HashBits)
	}
	if c.Hasher == nil {
		c.Hasher = SipHasher()
	}

	dir, err := os.MkdirTemp(c.Dir, "bhstore")
	if err != nil {
		return nil, err
	}

	nseg := 1 << c.Log2Segments
	bufwords := c.BufferSize / 8
	if bufwords < 3 {
		bufwords = 3
	}

	s := &Store{
		hasher:     c.Hasher,
		dir:        dir,
		segs:       make([]*segment, nseg),
		count:      make([]uint64, nseg),
		shift:      64 - c.Log2Segments,
		filtered:   0,
		stride:     3,
		bucketSize: uint64(c.BucketSize),
		retries:    c.RetryLimit,
		rng:        newXorshift(),
	}

	if c.HashBits > 0 {
		s.hashMask = ^uint64(0) >> (64 - c.HashBits)
		s.stride = 2
	}
	if c.Frequencies {
		s.freq = make(map[uint64]uint64)
	}
	if c.CacheSegments > 0 {
		s.cache, err = arc.NewARC[int, []uint64](c.CacheSegments)
		if err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
	}

	for i := range s.segs {
		s.segs[i], err = newSegment(dir, i, bufwords)
		if err != nil {
			s.destroy()
			return nil, err
		}
	}

	runtime.SetFinalizer(s, (*Store).finalize)
	return s, nil
}

// Add ingests a key with the implicit value: the number of records
// accepted by the filter so far (the raw record count if the filtered
// size has been invalidated by a filter change).
func (s *Store) Add(key []byte) error {
	if s.closed {
		return ErrClosed
	}
	return s.add(key, s.implicitValue())
}

// AddValue ingests a key with an explicit 64-bit value.
func (s *Store) AddValue(key []byte, val uint64) error {
	if s.closed {
		return ErrClosed
	}
	return s.add(key, val)
}

// AddKeyVals ingests keys and values in lockstep. A nil vals slice
// assigns implicit (rank) values; otherwise the slices must have equal
// length.
func (s *Store) AddKeyVals(keys [][]byte, vals []uint64) error {
	if s.closed {
		return ErrClosed
	}
	if vals != nil && len(vals) != len(keys) {
		return ErrMismatched
	}

	for i, k := range keys {
		var err error
		if vals == nil {
			err = s.add(k, s.implicitValue())
		} else {
			err = s.add(k, vals[i])
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) implicitValue() uint64 {
	if s.filtered >= 0 {
		return uint64(s.filtered)
	}
	return s.size
}

func (s *Store) add(key []byte, val uint64) error {
	h0, h1 := s.hasher.Hash128(s.seed, key)
	seg := int(h0 >> s.shift)

	var err error
	if s.stride == 3 {
		err = s.segs[seg].put(h0, h1, val)
	} else {
		err = s.segs[seg].put(h0, h1)
	}
	if err != nil {
		return err
	}

	// the cached copy of this segment no longer reflects the file
	if s.cache != nil {
		s.cache.Remove(seg)
	}

	s.count[seg]++
	s.checkedDups = false
	if s.filtered >= 0 && (s.filter == nil || s.filter(h0, h1)) {
		s.filtered++
	}
	if s.freq != nil {
		s.freq[val]++
	}
	s.size++
	return nil
}

// SetFilter installs (or, with nil, removes) the signature filter.
// Installing a filter invalidates the cached filtered size; the next
// Size() call rescans the segments.
func (s *Store) SetFilter(f Filter) {
	s.filter = f
	if f == nil {
		s.filtered = int64(s.size)
	} else {
		s.filtered = -1
	}
}

// Size returns the number of records accepted by the current filter
// (the total record count when no filter is set). The first call after
// a filter change reads every segment; the result is cached until the
// filter changes again.
func (s *Store) Size() (uint64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if s.filter == nil {
		return s.size, nil
	}
	if s.filtered >= 0 {
		return uint64(s.filtered), nil
	}

	n, err := s.rescan()
	if err != nil {
		return 0, err
	}
	s.filtered = int64(n)
	return n, nil
}

func (s *Store) rescan() (uint64, error) {
	if err := s.flushAll(); err != nil {
		return 0, err
	}

	var n uint64
	for i := range s.segs {
		err := s.withSegment(i, func(words []uint64) error {
			for j := 0; j+s.stride <= len(words); j += s.stride {
				if s.filter(words[j], words[j+1]) {
					n++
				}
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return n, nil
}

// withSegment hands segment i's records to fn, via the ARC cache when
// one is configured.
func (s *Store) withSegment(i int, fn func(words []uint64) error) error {
	if s.cache != nil {
		if words, ok := s.cache.Get(i); ok {
			return fn(words)
		}
	}

	return s.segs[i].withWords(func(words []uint64) error {
		if s.cache != nil {
			cp := make([]uint64, len(words))
			copy(cp, words)
			s.cache.Add(i, cp)
			words = cp
		}
		return fn(words)
	})
}

func (s *Store) flushAll() error {
	for _, sg := range s.segs {
		if err := sg.flush(); err != nil {
			return err
		}
	}
	return nil
}

// Seed returns the current hash seed and locks the store: the seed is
// presumed to be durably recorded in a downstream structure from this
// point on, so Reset() is refused until Clear().
func (s *Store) Seed() uint64 {
	s.locked = true
	return s.seed
}

// Reset discards every record and installs a new seed. Refused once the
// seed has been observed via Seed().
func (s *Store) Reset(seed uint64) error {
	if s.closed {
		return ErrClosed
	}
	if s.locked {
		return ErrLocked
	}
	return s.reset(seed)
}

func (s *Store) reset(seed uint64) error {
	s.seed = seed
	s.size = 0
	s.checkedDups = false
	s.filtered = 0
	for i := range s.count {
		s.count[i] = 0
	}
	if s.cache != nil {
		s.cache.Purge()
	}
	for _, sg := range s.segs {
		if err := sg.reset(); err != nil {
			return err
		}
	}
	return nil
}

// Clear returns the store to its post-construction state: unlocked,
// empty, seed zero, frequency histogram (if any) emptied.
func (s *Store) Clear() error {
	if s.closed {
		return ErrClosed
	}

	s.locked = false
	if s.freq != nil {
		clear(s.freq)
	}
	return s.reset(0)
}

// Freq returns the value -> occurrence-count histogram accumulated over
// every ingested record since the last Clear(). The returned map is the
// store's own; callers must not modify it.
func (s *Store) Freq() (map[uint64]uint64, error) {
	if s.freq == nil {
		return nil, ErrNoFrequencies
	}
	return s.freq, nil
}

// FreqSize returns the number of distinct values in the histogram, or 0
// when none is configured.
func (s *Store) FreqSize() int {
	return len(s.freq)
}

// SetBucketSize changes the target mean bucket size for subsequent
// iterations. It must not be called while an iteration is in progress.
func (s *Store) SetBucketSize(b int) error {
	if s.closed {
		return ErrClosed
	}
	if b < 1 {
		return fmt.Errorf("bhstore: invalid bucket size %d", b)
	}
	s.bucketSize = uint64(b)
	return nil
}

// DumpMeta dumps store metadata to io.Writer 'w'
func (s *Store) DumpMeta(w io.Writer) {
	var maxc uint64
	for _, c := range s.count {
		if c > maxc {
			maxc = c
		}
	}

	fmt.Fprintf(w, "bhstore: seed %#x; %d keys in %d segments <%s>\n",
		s.seed, s.size, len(s.segs), s.dir)
	fmt.Fprintf(w, "  bucket size %d, largest segment %d records (%s on disk)\n",
		s.bucketSize, maxc, humansize(maxc*uint64(s.stride)*8))
	if s.filter != nil {
		fmt.Fprintf(w, "  filter set; filtered size %d\n", s.filtered)
	}
	if s.freq != nil {
		fmt.Fprintf(w, "  histogram: %d distinct values\n", len(s.freq))
	}
	if s.hashMask != 0 {
		fmt.Fprintf(w, "  payloads not stored; hash mask %#x\n", s.hashMask)
	}
}

// Close releases all segment files and deletes the backing directory.
// Closing a closed store is a no-op.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true
	runtime.SetFinalizer(s, nil)
	return s.destroy()
}

func (s *Store) destroy() error {
	var firstErr error
	for _, sg := range s.segs {
		if sg == nil {
			continue
		}
		if err := sg.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.cache != nil {
		s.cache.Purge()
	}
	if err := os.RemoveAll(s.dir); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// safety net for stores dropped without Close()
func (s *Store) finalize() {
	if !s.closed {
		s.closed = true
		s.destroy()
	}
}
