// Package heap supplies memory for thread stacks and kernel objects.
package heap

import "errors"

var (
	ErrNoMemory    = errors.New("heap: out of memory")
	ErrInvalidSize = errors.New("heap: invalid size")
)

// Allocator is the allocate/free/reallocate contract shared by every
// allocator the kernel can be booted with.
//
// Blocks are identified by the slice returned from Alloc or Realloc; reslicing
// the tail (b[:n]) is fine, reslicing the head (b[n:]) is not.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(b []byte)
	Realloc(b []byte, size int) ([]byte, error)

	// Used returns the bytes in use, including bookkeeping.
	Used() int
	// Available returns the bytes still free.
	Available() int
}
