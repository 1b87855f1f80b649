// Package ipc provides the inter-thread communication objects built on the
// kernel primitives: event flags, barriers, mailboxes, fixed-block pools and
// message queues.
package ipc

import "sparkrt/kernel"

// FlagOpt selects how EventFlags.Wait matches.
type FlagOpt uint8

const (
	// WaitAny is satisfied by any of the requested bits.
	WaitAny FlagOpt = 0
	// WaitAll needs every requested bit.
	WaitAll FlagOpt = 1 << 0
	// WaitClear clears the matched bits on return.
	WaitClear FlagOpt = 1 << 1
)

// EventFlags is a 32-bit set of flags threads can wait on.
type EventFlags struct {
	mu   *kernel.Mutex
	cond *kernel.Cond
	bits uint32
}

func NewEventFlags(k *kernel.Kernel) *EventFlags {
	return &EventFlags{mu: k.NewMutex(), cond: k.NewCond()}
}

// Set raises bits and wakes every waiter to re-check its match.
func (f *EventFlags) Set(bits uint32) {
	f.mu.Lock()
	f.bits |= bits
	f.cond.Broadcast()
	f.mu.Unlock()
}

// Clear lowers bits.
func (f *EventFlags) Clear(bits uint32) {
	f.mu.Lock()
	f.bits &^= bits
	f.mu.Unlock()
}

// Get returns the current flags.
func (f *EventFlags) Get() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bits
}

func (f *EventFlags) match(bits uint32, opts FlagOpt) uint32 {
	got := f.bits & bits
	if opts&WaitAll != 0 && got != bits {
		return 0
	}
	return got
}

// Wait blocks until the flags match bits under opts, at most timeout ticks.
// It returns the matched bits.
func (f *EventFlags) Wait(bits uint32, opts FlagOpt, timeout kernel.Ticks) (uint32, error) {
	if bits == 0 {
		return 0, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if got := f.match(bits, opts); got != 0 {
			if opts&WaitClear != 0 {
				f.bits &^= got
			}
			return got, nil
		}
		if timeout == 0 {
			return 0, kernel.ErrTimeout
		}
		left, err := f.cond.WaitTimeout(f.mu, timeout)
		if err != nil {
			// A last look: the flags may have been set as the timeout fired.
			if got := f.match(bits, opts); got != 0 {
				if opts&WaitClear != 0 {
					f.bits &^= got
				}
				return got, nil
			}
			return 0, err
		}
		if timeout != kernel.Forever {
			timeout = left
		}
	}
}
