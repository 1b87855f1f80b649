package heap

import (
	"fmt"
	"math"
	"sync"
	"unsafe"
)

// Runtime delegates to the Go allocator and only keeps accounting. It is the
// "external allocator" option; limit caps the bytes in use (0 = no cap).
type Runtime struct {
	mu    sync.Mutex
	limit int
	used  int
	live  map[*byte]int
}

// NewRuntime returns a Runtime allocator.
func NewRuntime(limit int) *Runtime {
	return &Runtime{limit: limit, live: make(map[*byte]int)}
}

func (r *Runtime) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && r.used+size > r.limit {
		return nil, fmt.Errorf("heap: alloc %d bytes (%d available): %w", size, r.limit-r.used, ErrNoMemory)
	}
	b := make([]byte, size)
	r.live[unsafe.SliceData(b)] = size
	r.used += size
	return b, nil
}

func (r *Runtime) Free(b []byte) {
	if b == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := unsafe.SliceData(b)
	size, ok := r.live[p]
	if !ok {
		panic("heap: block not owned by this allocator")
	}
	delete(r.live, p)
	r.used -= size
}

func (r *Runtime) Realloc(b []byte, size int) ([]byte, error) {
	if b == nil {
		return r.Alloc(size)
	}
	if size <= 0 {
		r.Free(b)
		return nil, nil
	}
	nb, err := r.Alloc(size)
	if err != nil {
		return nil, err
	}
	copy(nb, b[:cap(b)])
	r.Free(b)
	return nb, nil
}

func (r *Runtime) Used() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used
}

func (r *Runtime) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit <= 0 {
		return math.MaxInt
	}
	return r.limit - r.used
}
