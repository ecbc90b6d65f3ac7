// sigtable.go - packed signature table derived from a rank-valued store
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
)

// Signatures emits the packed table of masked signatures indexed by
// rank: entry i holds the low w bits of h0 for the i-th accepted key.
// The store must retain payloads and have been ingested with default
// (rank) values; stores built with Config.HashBits return ErrNoPayloads.
func (s *Store) Signatures(w uint) (*IntVector, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.hashMask != 0 {
		return nil, ErrNoPayloads
	}
	if w == 0 || w > 64 {
		return nil, fmt.Errorf("bhstore: invalid signature width %d", w)
	}

	n, err := s.Size()
	if err != nil {
		return nil, err
	}

	mask := ^uint64(0) >> (64 - w)
	tbl := newIntVector(n, w)

	it, err := s.Iter()
	if err != nil {
		return nil, err
	}
	for it.Next() {
		b := it.Bucket()
		for i := 0; i < b.Size(); i++ {
			r := b.Data(i)
			if r >= n {
				return nil, fmt.Errorf("bhstore: rank %d out of range (size %d)", r, n)
			}
			h0, _ := b.Hash(i)
			tbl.Set(r, h0&mask)
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return tbl, nil
}
