package ipc

import "sparkrt/kernel"

// Barrier releases its waiters once target threads have arrived.
type Barrier struct {
	mu     *kernel.Mutex
	cond   *kernel.Cond
	count  uint32
	target uint32
	// gen advances on every release so that early wakers keep waiting.
	gen uint32
}

func NewBarrier(k *kernel.Kernel, target uint32) *Barrier {
	return &Barrier{mu: k.NewMutex(), cond: k.NewCond(), target: target}
}

// Wait blocks until the barrier releases. The last arrival releases everyone
// and does not block.
func (b *Barrier) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	if b.releasable() {
		b.release()
		return
	}
	gen := b.gen
	for gen == b.gen {
		b.cond.Wait(b.mu)
	}
}

// Set changes the target. Waiters already meeting the new target are released
// immediately.
func (b *Barrier) Set(target uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = target
	if b.releasable() {
		b.release()
	}
}

// Arrived returns the threads currently waiting.
func (b *Barrier) Arrived() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *Barrier) releasable() bool { return b.count > 0 && b.count >= b.target }

func (b *Barrier) release() {
	b.count = 0
	b.gen++
	b.cond.Broadcast()
}
