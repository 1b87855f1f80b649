package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"sparkrt/kernel"
	"sparkrt/kernel/heap"
)

// ErrTooLarge is returned when a message can never fit its container.
var ErrTooLarge = errors.New("ipc: message too large")

// frameHeader is the little-endian length prefix of a mailbox frame.
const frameHeader = 2

// Mailbox is a byte ring of length-prefixed frames. A frame is posted whole
// or not at all; a read always consumes one whole frame.
type Mailbox struct {
	heap     heap.Allocator
	mu       *kernel.Mutex
	notEmpty *kernel.Cond
	notFull  *kernel.Cond

	buf    []byte
	head   int // next byte to read
	used   int
	frames int
}

// NewMailbox allocates a ring of size bytes from the kernel heap.
func NewMailbox(k *kernel.Kernel, size int) (*Mailbox, error) {
	if size <= frameHeader {
		return nil, fmt.Errorf("ipc: mailbox of %d bytes: %w", size, heap.ErrInvalidSize)
	}
	h := k.Heap()
	buf, err := h.Alloc(size)
	if err != nil {
		return nil, fmt.Errorf("ipc: mailbox: %w", err)
	}
	return &Mailbox{
		heap:     h,
		mu:       k.NewMutex(),
		notEmpty: k.NewCond(),
		notFull:  k.NewCond(),
		buf:      buf,
	}, nil
}

// Close returns the ring to the heap. The mailbox must be idle.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heap.Free(m.buf)
	m.buf = nil
}

// Cap returns the ring size in bytes.
func (m *Mailbox) Cap() int { return len(m.buf) }

// Len returns the number of queued frames.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// Post queues msg as one frame, waiting at most timeout ticks for room.
func (m *Mailbox) Post(msg []byte, timeout kernel.Ticks) error {
	need := frameHeader + len(msg)
	if !m.fits(msg) {
		return fmt.Errorf("ipc: post %d bytes to a %d byte mailbox: %w", len(msg), len(m.buf), ErrTooLarge)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.buf)-m.used < need {
		if timeout == 0 {
			return kernel.ErrTimeout
		}
		left, err := m.notFull.WaitTimeout(m.mu, timeout)
		if err != nil {
			if len(m.buf)-m.used >= need {
				break
			}
			return err
		}
		if timeout != kernel.Forever {
			timeout = left
		}
	}
	m.put(msg)
	return nil
}

// TryPost posts without waiting, even for the mailbox lock. It fails when the
// ring is full or another thread is inside the mailbox.
func (m *Mailbox) TryPost(msg []byte) bool {
	if !m.fits(msg) || !m.mu.TryLock() {
		return false
	}
	defer m.mu.Unlock()
	if len(m.buf)-m.used < frameHeader+len(msg) {
		return false
	}
	m.put(msg)
	return true
}

func (m *Mailbox) fits(msg []byte) bool {
	return len(msg) <= 0xFFFF && frameHeader+len(msg) <= len(m.buf)
}

// put appends msg as one frame. The caller holds mu and checked for room.
func (m *Mailbox) put(msg []byte) {
	var hdr [frameHeader]byte
	binary.LittleEndian.PutUint16(hdr[:], uint16(len(msg)))
	m.write(hdr[:])
	m.write(msg)
	m.frames++
	m.notEmpty.Signal()
}

// Read pops one frame into out, waiting at most timeout ticks for one. A
// frame longer than out is truncated and its remainder discarded. Read
// returns the bytes delivered.
func (m *Mailbox) Read(out []byte, timeout kernel.Ticks) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.frames == 0 {
		if timeout == 0 {
			return 0, kernel.ErrTimeout
		}
		left, err := m.notEmpty.WaitTimeout(m.mu, timeout)
		if err != nil {
			if m.frames > 0 {
				break
			}
			return 0, err
		}
		if timeout != kernel.Forever {
			timeout = left
		}
	}

	var hdr [frameHeader]byte
	m.read(hdr[:])
	size := int(binary.LittleEndian.Uint16(hdr[:]))
	n := size
	if n > len(out) {
		n = len(out)
	}
	m.read(out[:n])
	m.skip(size - n)
	m.frames--
	m.notFull.Broadcast()
	return n, nil
}

// write appends p at the tail of the ring. The caller checked for room.
func (m *Mailbox) write(p []byte) {
	tail := (m.head + m.used) % len(m.buf)
	n := copy(m.buf[tail:], p)
	copy(m.buf, p[n:])
	m.used += len(p)
}

func (m *Mailbox) read(p []byte) {
	n := copy(p, m.buf[m.head:])
	copy(p[n:], m.buf)
	m.skip(len(p))
}

func (m *Mailbox) skip(n int) {
	m.head = (m.head + n) % len(m.buf)
	m.used -= n
}
