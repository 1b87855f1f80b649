package ipc

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"sparkrt/kernel"
	"sparkrt/kernel/heap"
)

const (
	linkSize = 4
	noBlock  = ^uint32(0)
)

// Pool hands out equal-size blocks carved from one heap allocation. Free
// blocks are chained through their first four bytes.
type Pool struct {
	k         *kernel.Kernel
	heap      heap.Allocator
	mem       []byte
	blockSize int
	count     int
	free      uint32 // index of the first free block
	inUse     []uint32
	avail     *kernel.Semaphore
}

// NewPool allocates count blocks of blockSize bytes.
func NewPool(k *kernel.Kernel, blockSize, count int) (*Pool, error) {
	if blockSize <= 0 || count <= 0 {
		return nil, fmt.Errorf("ipc: pool of %d x %d bytes: %w", count, blockSize, heap.ErrInvalidSize)
	}
	if blockSize < linkSize {
		blockSize = linkSize
	}
	blockSize = (blockSize + linkSize - 1) &^ (linkSize - 1)
	h := k.Heap()
	mem, err := h.Alloc(blockSize * count)
	if err != nil {
		return nil, fmt.Errorf("ipc: pool: %w", err)
	}
	p := &Pool{
		k:         k,
		heap:      h,
		mem:       mem,
		blockSize: blockSize,
		count:     count,
		inUse:     make([]uint32, (count+31)/32),
		avail:     k.NewSemaphore(uint32(count), uint32(count)),
	}
	for i := 0; i < count; i++ {
		next := uint32(i + 1)
		if i == count-1 {
			next = noBlock
		}
		binary.LittleEndian.PutUint32(mem[i*blockSize:], next)
	}
	return p, nil
}

// BlockSize returns the size of each block.
func (p *Pool) BlockSize() int { return p.blockSize }

// Available returns the number of free blocks.
func (p *Pool) Available() int { return int(p.avail.Count()) }

// Close returns the pool memory to the heap. Every block must be free.
func (p *Pool) Close() {
	p.heap.Free(p.mem)
	p.mem = nil
}

func (p *Pool) block(i uint32) []byte {
	off := int(i) * p.blockSize
	return p.mem[off : off+p.blockSize : off+p.blockSize]
}

// index returns the block number of b, panicking on a foreign block.
func (p *Pool) index(b []byte) uint32 {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(p.mem)))
	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	if ptr < base || ptr >= base+uintptr(len(p.mem)) || (ptr-base)%uintptr(p.blockSize) != 0 {
		panic("ipc: block not from this pool")
	}
	return uint32((ptr - base) / uintptr(p.blockSize))
}

func (p *Pool) pop() []byte {
	p.k.Enter()
	defer p.k.Leave()
	i := p.free
	if i == noBlock {
		// The semaphore guarantees a free block.
		panic("ipc: pool freelist out of sync")
	}
	b := p.block(i)
	p.free = binary.LittleEndian.Uint32(b)
	p.inUse[i/32] |= 1 << (i % 32)
	return b
}

// Alloc takes a block without waiting.
func (p *Pool) Alloc() ([]byte, bool) {
	if !p.avail.TryTake() {
		return nil, false
	}
	return p.pop(), true
}

// TimedAlloc waits at most timeout ticks for a block.
func (p *Pool) TimedAlloc(timeout kernel.Ticks) ([]byte, error) {
	if _, err := p.avail.TakeTimeout(timeout); err != nil {
		return nil, err
	}
	return p.pop(), nil
}

// BlockedAlloc waits for a block. It returns nil only when called where a
// thread cannot block.
func (p *Pool) BlockedAlloc() []byte {
	b, _ := p.TimedAlloc(kernel.Forever)
	return b
}

// Free returns b to the pool and wakes one waiting allocator. Freeing a
// block that is already free panics.
func (p *Pool) Free(b []byte) {
	if b == nil {
		return
	}
	i := p.index(b)
	bit := uint32(1) << (i % 32)
	p.k.Enter()
	if p.inUse[i/32]&bit == 0 {
		p.k.Leave()
		panic("ipc: block freed twice")
	}
	p.inUse[i/32] &^= bit
	binary.LittleEndian.PutUint32(p.block(i), p.free)
	p.free = i
	p.k.Leave()
	if err := p.avail.Give(); err != nil {
		panic("ipc: pool count out of sync: " + err.Error())
	}
}
