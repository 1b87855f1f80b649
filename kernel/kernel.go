// Package kernel is a small preemptive priority kernel.
//
// Threads run one at a time on a port. The kernel keeps per-priority ready
// lists, a lazily scanned sleep queue, and the synchronization objects built
// on them. All kernel state is guarded by one nestable critical section
// (Enter/Leave); a context switch requested inside it is deferred until the
// outermost Leave.
//
// Code outside kernel threads must not call into the kernel directly. It
// raises an interrupt with Interrupt instead; the callback runs in interrupt
// context where only non-blocking calls are allowed.
package kernel

import (
	"context"
	"fmt"
	"sync/atomic"

	"sparkrt/kernel/heap"
	"sparkrt/kernel/port"

	"github.com/phuslu/log"
)

// Kernel is one scheduler instance.
type Kernel struct {
	cfg  Config
	port port.Port
	heap heap.Allocator
	log  *log.Logger

	// Critical section state of the running context.
	nest int
	irq  port.IRQState
	isr  int
	// pending is set when a switch was requested inside a critical section.
	pending bool

	cur  *Thread
	idle *Thread

	ready    []threadList
	readyMap uint64
	highest  int

	sleepq       threadList
	sleepElapsed Ticks
	sleepNext    Ticks

	registry threadList
	dead     threadList

	now       uint64
	sliceLeft Ticks
	nextID    uint32

	started bool
	halted  atomic.Bool
	done    chan error

	stats Stats
}

// Stats are cumulative kernel counters.
type Stats struct {
	Ticks       uint64
	Switches    uint64
	Preemptions uint64
	SleepScans  uint64
	Created     uint64
	Reaped      uint64
	Overflows   uint64
	Faults      uint64
	AllocFails  uint64

	Threads       int
	HeapUsed      int
	HeapAvailable int
}

// New returns a kernel that runs its threads on p and allocates their stacks
// from h.
func New(p port.Port, h heap.Allocator, cfg Config) *Kernel {
	cfg = cfg.withDefaults()
	k := &Kernel{
		cfg:       cfg,
		port:      p,
		heap:      h,
		log:       cfg.Log,
		ready:     make([]threadList, cfg.MaxPriority+1),
		sleepq:    newList(linkSched),
		registry:  newList(linkReg),
		dead:      newList(linkSched),
		sleepNext: Forever,
		done:      make(chan error, 1),
	}
	for i := range k.ready {
		k.ready[i] = newList(linkSched)
		k.ready[i].bucket = i
	}
	return k
}

// Config returns the effective configuration.
func (k *Kernel) Config() Config { return k.cfg }

// Run creates the idle thread and a thread running main(arg), starts
// scheduling and blocks until the system halts.
//
// Run returns nil when every thread exited or Shutdown was called, ctx.Err()
// when ctx was cancelled, ErrDeadlock when no thread can ever run again, or
// the error that halted the system, such as a *StackOverflowError.
func (k *Kernel) Run(ctx context.Context, main ThreadFunc, arg any) error {
	if k.started {
		return ErrHalted
	}
	idle, err := k.create(k.idleLoop, nil, ThreadAttr{Name: "idle", StackSize: k.cfg.MinStackSize}, IdlePriority)
	if err != nil {
		return fmt.Errorf("kernel: create idle thread: %w", err)
	}
	k.idle = idle
	if _, err := k.Create(main, arg, ThreadAttr{Name: "main"}); err != nil {
		return fmt.Errorf("kernel: create main thread: %w", err)
	}
	k.started = true

	stop := context.AfterFunc(ctx, func() {
		k.port.Raise(func() { k.halt(ctx.Err()) })
	})
	defer stop()

	first := k.pickNext()
	first.state = Running
	first.fresh = false
	k.cur = first
	k.sliceLeft = k.cfg.TimeSlice
	k.irq = k.port.DisableInterrupts()
	k.nest = 1
	k.log.Info().Int("threads", k.registry.len()).Int("max_priority", k.cfg.MaxPriority).Msg("kernel started")
	k.port.Start(first.frame)

	return <-k.done
}

// Shutdown halts the system from a kernel thread; Run returns nil.
func (k *Kernel) Shutdown() {
	k.Enter()
	k.halt(nil)
}

// halt stops every context and terminates the caller's goroutine.
func (k *Kernel) halt(err error) {
	if k.halted.Swap(true) {
		goexit()
	}
	if err != nil {
		k.log.Error().Err(err).Uint64("tick", k.now).Msg("kernel halted")
	} else {
		k.log.Info().Uint64("tick", k.now).Msg("kernel halted")
	}
	k.port.Halt()
	k.done <- err
	goexit()
}

// Halted reports whether the system stopped.
func (k *Kernel) Halted() bool { return k.halted.Load() }

// Interrupt raises fn as an interrupt. It is the only entry point that is
// safe from goroutines that are not kernel threads.
func (k *Kernel) Interrupt(fn func()) {
	k.port.Raise(fn)
}

// InInterrupt reports whether the caller runs in interrupt context.
func (k *Kernel) InInterrupt() bool { return k.isr > 0 }

// Now returns the ticks since Run.
func (k *Kernel) Now() uint64 {
	if k.halted.Load() {
		return k.now
	}
	k.Enter()
	defer k.Leave()
	return k.now
}

// Stats returns a snapshot of the kernel counters. Call it from a kernel
// thread or interrupt, or after Run returned.
func (k *Kernel) Stats() Stats {
	if !k.halted.Load() {
		k.Enter()
		defer k.Leave()
	}
	s := k.stats
	s.Threads = k.registry.len() - k.dead.len()
	s.HeapUsed = k.heap.Used()
	s.HeapAvailable = k.heap.Available()
	return s
}

// Heap returns the kernel allocator guarded by the critical section.
func (k *Kernel) Heap() heap.Allocator { return sharedHeap{k} }

type sharedHeap struct{ k *Kernel }

func (h sharedHeap) Alloc(size int) ([]byte, error) {
	h.k.Enter()
	defer h.k.Leave()
	b, err := h.k.heap.Alloc(size)
	if err != nil {
		h.k.allocFailed(size)
	}
	return b, err
}

func (h sharedHeap) Free(b []byte) {
	h.k.Enter()
	defer h.k.Leave()
	h.k.heap.Free(b)
}

func (h sharedHeap) Realloc(b []byte, size int) ([]byte, error) {
	h.k.Enter()
	defer h.k.Leave()
	nb, err := h.k.heap.Realloc(b, size)
	if err != nil {
		h.k.allocFailed(size)
	}
	return nb, err
}

func (h sharedHeap) Used() int {
	h.k.Enter()
	defer h.k.Leave()
	return h.k.heap.Used()
}

func (h sharedHeap) Available() int {
	h.k.Enter()
	defer h.k.Leave()
	return h.k.heap.Available()
}

func (k *Kernel) allocFailed(size int) {
	k.stats.AllocFails++
	k.log.Warn().Int("size", size).Int("available", k.heap.Available()).Msg("allocation failed")
	if k.cfg.OnAllocFail != nil {
		k.cfg.OnAllocFail(size)
	}
}
