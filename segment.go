// segment.go - append-only on-disk segment of signature records
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
	"os"
	"path/filepath"

	"github.com/opencoff/go-mmap"
)

// segments below this size are read with a plain pread instead of mmap
const _MmapThreshold = 64 * 1024

// segment is one on-disk shard of the record stream. Records whose h0
// shares the segment's top bits land here, staged through a fixed
// capacity native-endian u64 buffer. The file has no header or footer:
// it is a raw run of (h0, h1[, payload]) words in host byte order.
type segment struct {
	fd   *os.File
	path string
	buf  []uint64
}

func newSegment(dir string, i, bufwords int) (*segment, error) {
	path := filepath.Join(dir, fmt.Sprintf("seg-%03d", i))
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}

	s := &segment{
		fd:   fd,
		path: path,
		buf:  make([]uint64, 0, bufwords),
	}
	return s, nil
}

// put appends one record's words, flushing the staging buffer when full.
func (s *segment) put(vals ...uint64) error {
	for _, v := range vals {
		if len(s.buf) == cap(s.buf) {
			if err := s.flush(); err != nil {
				return err
			}
		}
		s.buf = append(s.buf, v)
	}
	return nil
}

func (s *segment) flush() error {
	if len(s.buf) == 0 {
		return nil
	}

	if _, err := writeAll(s.fd, u64sToByteSlice(s.buf)); err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}
	s.buf = s.buf[:0]
	return nil
}

// reset discards buffered and on-disk records
func (s *segment) reset() error {
	s.buf = s.buf[:0]
	if err := s.fd.Truncate(0); err != nil {
		return fmt.Errorf("%s: truncate: %w", s.path, err)
	}
	return nil
}

// withWords hands the flushed on-disk contents to fn as a native-endian
// u64 slice. Large segments are mapped read-only; small ones (and
// platforms where the map fails) fall back to a plain read. The slice is
// only valid for the duration of fn.
func (s *segment) withWords(fn func(words []uint64) error) error {
	st, err := s.fd.Stat()
	if err != nil {
		return fmt.Errorf("%s: stat: %w", s.path, err)
	}

	sz := st.Size()
	if sz == 0 {
		return fn(nil)
	}

	if sz >= _MmapThreshold {
		m := mmap.New(s.fd)
		mapping, err := m.Map(sz, 0, mmap.PROT_READ, mmap.F_READAHEAD)
		if err == nil {
			defer mapping.Unmap()
			return fn(bsToUint64Slice(mapping.Bytes()[:sz]))
		}
	}

	buf := make([]byte, sz)
	if _, err := s.fd.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("%s: read: %w", s.path, err)
	}
	return fn(bsToUint64Slice(buf))
}

// close closes and removes the backing file
func (s *segment) close() error {
	if s.fd == nil {
		return nil
	}

	err := s.fd.Close()
	if rmerr := os.Remove(s.path); err == nil {
		err = rmerr
	}
	s.fd = nil
	return err
}
