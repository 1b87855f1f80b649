package port

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Sim runs kernel threads on goroutines. Interrupts are taken when the
// running thread unmasks them or while the idle thread waits.
//
// Without a tick source the clock is virtual: Idle jumps straight to the next
// timed wake point, and a system with no wake point and no pending interrupt
// is reported as dead.
type Sim struct {
	executor
	mask masker

	ticks atomic.Uint32

	mu   sync.Mutex
	isrs []func()

	wake chan struct{}

	realtime bool
}

// Option configures a Sim port.
type Option func(*Sim)

// WithTickSource drives the tick from a monotonically increasing sequence,
// such as hal.Time.Ticks. The clock becomes real-time.
func WithTickSource(seq <-chan uint64) Option {
	return func(s *Sim) {
		if seq == nil {
			return
		}
		s.realtime = true
		go s.pump(seq)
	}
}

// WithManualClock makes the clock real-time but driven only by Tick.
func WithManualClock() Option {
	return func(s *Sim) { s.realtime = true }
}

// NewSim returns a goroutine-backed port.
func NewSim(opts ...Option) *Sim {
	s := &Sim{
		executor: executor{halt: make(chan struct{})},
		mask:     newMasker(),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sim) pump(seq <-chan uint64) {
	var last uint64
	for {
		select {
		case <-s.halted():
			return
		case n, ok := <-seq:
			if !ok {
				return
			}
			if last != 0 && n > last {
				s.ticks.Add(uint32(n - last))
			} else {
				s.ticks.Add(1)
			}
			last = n
			s.signal()
		}
	}
}

func (s *Sim) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Sim) DisableInterrupts() IRQState  { return s.mask.disable() }
func (s *Sim) RestoreInterrupts(st IRQState) { s.mask.restore(st) }

// Tick raises n periodic ticks. Safe from any goroutine.
func (s *Sim) Tick(n uint32) {
	if n == 0 {
		return
	}
	s.ticks.Add(n)
	s.signal()
}

func (s *Sim) Raise(isr func()) {
	if isr == nil {
		return
	}
	s.mu.Lock()
	s.isrs = append(s.isrs, isr)
	s.mu.Unlock()
	s.signal()
}

func (s *Sim) Pending() (uint32, []func()) {
	ticks := s.ticks.Swap(0)
	s.mu.Lock()
	isrs := s.isrs
	s.isrs = nil
	s.mu.Unlock()
	return ticks, isrs
}

func (s *Sim) hasPending() bool {
	if s.ticks.Load() != 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.isrs) != 0
}

func (s *Sim) Idle(max uint32) (uint32, bool) {
	if s.hasPending() {
		return 0, true
	}
	if !s.realtime {
		if max == Forever {
			return 0, false
		}
		return max, true
	}
	select {
	case <-s.wake:
		return 0, true
	case <-s.halted():
		runtime.Goexit()
		return 0, false
	}
}
