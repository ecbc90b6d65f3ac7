// check.go - duplicate detection and the reseed/retry controller
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
	"errors"
)

// Check iterates the store to completion, discarding buckets, so that
// duplicate detection runs over every record. On success the store
// remembers the pass and later iterations skip the scan.
func (s *Store) Check() error {
	it, err := s.Iter()
	if err != nil {
		return err
	}
	for it.Next() {
	}
	return it.Err()
}

// CheckAndRetry verifies the current ingest is free of signature
// collisions, reseeding the store and re-ingesting keys/vals on each
// ErrDuplicate, up to the configured retry limit. A nil vals slice
// re-ingests with implicit (rank) values. Any error other than
// ErrDuplicate is returned as-is.
func (s *Store) CheckAndRetry(keys [][]byte, vals []uint64) error {
	if s.closed {
		return ErrClosed
	}
	if vals != nil && len(vals) != len(keys) {
		return ErrMismatched
	}

	for try := 0; try < s.retries; try++ {
		err := s.Check()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return err
		}

		if err = s.Reset(s.rng.next()); err != nil {
			return err
		}
		if err = s.AddKeyVals(keys, vals); err != nil {
			return err
		}
	}
	return ErrTooManyDuplicates
}
