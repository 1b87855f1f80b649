package heap

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// Node header layout, little-endian, at the start of every block.
const (
	headerSize = 16
	alignment  = 8

	hdrPrev  = 0
	hdrNext  = 4
	hdrUsed  = 8
	hdrMagic = 12

	nodeMagic = 0x4b525053 // "SPRK"
	nilNode   = ^uint32(0)
)

// Bare is a best-effort first-fit allocator over one byte arena.
//
// Blocks form an address-ordered chain of in-place headers. Each header
// records the bytes used from its own offset; free space is the gap up to the
// next header. The first header is a sentinel owning no user bytes.
type Bare struct {
	mem []byte
	// hint is the first node that may be followed by a gap. No node before it
	// has free space behind it.
	hint   uint32
	used   int
	blocks int
}

// NewBare returns an allocator over a fresh arena of size bytes.
func NewBare(size int) (*Bare, error) {
	return NewBareOn(make([]byte, size))
}

// NewBareOn returns an allocator managing mem.
func NewBareOn(mem []byte) (*Bare, error) {
	mem = mem[:len(mem)&^(alignment-1)]
	if len(mem) < 2*headerSize {
		return nil, fmt.Errorf("heap: arena of %d bytes: %w", len(mem), ErrInvalidSize)
	}
	b := &Bare{mem: mem}
	b.put(0, nilNode, nilNode, headerSize)
	b.used = headerSize
	return b, nil
}

func alignUp(n int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}

func (b *Bare) u32(off uint32, field int) uint32 {
	return binary.LittleEndian.Uint32(b.mem[int(off)+field:])
}

func (b *Bare) setU32(off uint32, field int, v uint32) {
	binary.LittleEndian.PutUint32(b.mem[int(off)+field:], v)
}

func (b *Bare) put(off, prev, next uint32, used int) {
	b.setU32(off, hdrPrev, prev)
	b.setU32(off, hdrNext, next)
	b.setU32(off, hdrUsed, uint32(used))
	b.setU32(off, hdrMagic, nodeMagic)
}

func (b *Bare) next(off uint32) uint32 { return b.u32(off, hdrNext) }
func (b *Bare) prev(off uint32) uint32 { return b.u32(off, hdrPrev) }
func (b *Bare) usedOf(off uint32) int  { return int(b.u32(off, hdrUsed)) }

// gap returns the free bytes between the end of node off and the next header.
func (b *Bare) gap(off uint32) int {
	end := len(b.mem)
	if nx := b.next(off); nx != nilNode {
		end = int(nx)
	}
	return end - int(off) - b.usedOf(off)
}

func (b *Bare) block(off uint32, size int) []byte {
	start := int(off) + headerSize
	return b.mem[start : start+size : start+size]
}

func (b *Bare) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	need := alignUp(headerSize + size)
	for n := b.hint; n != nilNode; n = b.next(n) {
		if b.gap(n) < need {
			continue
		}
		off := n + uint32(b.usedOf(n))
		nx := b.next(n)
		b.put(off, n, nx, need)
		b.setU32(n, hdrNext, off)
		if nx != nilNode {
			b.setU32(nx, hdrPrev, off)
		}
		if n == b.hint {
			b.hint = off
		}
		b.used += need
		b.blocks++
		return b.block(off, size), nil
	}
	return nil, fmt.Errorf("heap: alloc %d bytes (%d available): %w", size, b.Available(), ErrNoMemory)
}

// node returns the header offset of blk, panicking when blk was not handed
// out by this allocator.
func (b *Bare) node(blk []byte) uint32 {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(b.mem)))
	p := uintptr(unsafe.Pointer(unsafe.SliceData(blk)))
	if p < base+2*headerSize || p >= base+uintptr(len(b.mem)) {
		panic("heap: block not owned by this allocator")
	}
	off := uint32(p-base) - headerSize
	if off%alignment != 0 || b.u32(off, hdrMagic) != nodeMagic {
		panic(fmt.Sprintf("heap: corrupt or foreign block at offset %d", off))
	}
	return off
}

func (b *Bare) Free(blk []byte) {
	if blk == nil {
		return
	}
	off := b.node(blk)
	prev, next := b.prev(off), b.next(off)
	b.setU32(prev, hdrNext, next)
	if next != nilNode {
		b.setU32(next, hdrPrev, prev)
	}
	b.used -= b.usedOf(off)
	b.blocks--
	b.setU32(off, hdrMagic, 0)
	if prev < b.hint {
		b.hint = prev
	}
}

func (b *Bare) Realloc(blk []byte, size int) ([]byte, error) {
	if blk == nil {
		return b.Alloc(size)
	}
	if size <= 0 {
		b.Free(blk)
		return nil, nil
	}
	off := b.node(blk)
	need := alignUp(headerSize + size)
	cur := b.usedOf(off)
	switch {
	case need <= cur:
		b.setU32(off, hdrUsed, uint32(need))
		b.used -= cur - need
		if off < b.hint {
			b.hint = off
		}
		return b.block(off, size), nil
	case need <= cur+b.gap(off):
		b.setU32(off, hdrUsed, uint32(need))
		b.used += need - cur
		return b.block(off, size), nil
	}

	nb, err := b.Alloc(size)
	if err != nil {
		return nil, err
	}
	copy(nb, b.mem[int(off)+headerSize:int(off)+cur])
	b.Free(blk)
	return nb, nil
}

func (b *Bare) Used() int      { return b.used }
func (b *Bare) Available() int { return len(b.mem) - b.used }

// Blocks returns the number of live allocations.
func (b *Bare) Blocks() int { return b.blocks }
