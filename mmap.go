// mmap.go -- reinterpret a byte slice as a slice of uints and back
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
	"unsafe"
)

// byte-slice to uint64 slice
func bsToUint64Slice(b []byte) []uint64 {
	n := len(b) / 8
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), n)
}

// uint64 slice to byte-slice
func u64sToByteSlice(b []uint64) []byte {
	n := len(b)
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&b[0])), n*8)
}
