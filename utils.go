// utils.go -- utility functions
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
)

// compression function for fasthash
func mix(h uint64) uint64 {
	h ^= h >> 23
	h *= 0x2127599bf4325c37
	h ^= h >> 47
	return h
}

// write all bytes
func writeAll(w io.Writer, buf []byte) (int, error) {
	n, err := w.Write(buf)
	if err != nil {
		return 0, err
	}
	if n != len(buf) {
		return n, errShortWrite("bhstore", len(buf), n)
	}
	return n, nil
}

func humansize(sz uint64) string {
	suffix := []string{"B", "kB", "MB", "GB", "TB"}

	i := 0
	for sz >= 10240 && i < len(suffix)-1 {
		sz >>= 10
		i++
	}
	return fmt.Sprintf("%d %s", sz, suffix[i])
}
