package kernel

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned by timed waits that expired before acquiring.
	ErrTimeout = errors.New("kernel: timed out")
	// ErrNoMemory is returned when a thread or object cannot be allocated.
	ErrNoMemory = errors.New("kernel: out of memory")
	// ErrNotOwner reports an unlock or wait by a thread not holding the lock.
	ErrNotOwner = errors.New("kernel: lock not held by caller")
	// ErrBlockingContext reports a blocking call from an interrupt, from a
	// nested critical section, or from outside a kernel thread.
	ErrBlockingContext = errors.New("kernel: blocking call from non-blocking context")
	// ErrUnbalancedCritical reports Leave without a matching Enter.
	ErrUnbalancedCritical = errors.New("kernel: unbalanced critical section")
	// ErrHoldsLocks reports deleting or exiting a thread that owns mutexes.
	ErrHoldsLocks = errors.New("kernel: thread still owns mutexes")
	// ErrDeadlock is returned by Run when every thread is blocked forever.
	ErrDeadlock = errors.New("kernel: deadlock, no thread can ever run")
	// ErrOverflow is returned by Semaphore.Give when the count is at its limit.
	ErrOverflow = errors.New("kernel: semaphore count at limit")
	// ErrHalted is returned by Run on a kernel that already ran.
	ErrHalted = errors.New("kernel: system halted")
)

// StackOverflowError is the reason a system reset by ResetOnOverflow halts.
type StackOverflowError struct {
	ID     uint32
	Thread string
}

func (e *StackOverflowError) Error() string {
	return fmt.Sprintf("kernel: stack overflow in thread %d (%s)", e.ID, e.Thread)
}

// PanicError is returned by Run when a thread panicked.
type PanicError struct {
	ID     uint32
	Thread string
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("kernel: thread %d (%s) panicked: %v", e.ID, e.Thread, e.Value)
}

// Unwrap exposes a panicking error value, such as a fault.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// fault reports kernel misuse. Without an OnFault hook it panics with err;
// when the hook returns, the faulting operation is abandoned.
func (k *Kernel) fault(err error) {
	k.stats.Faults++
	k.log.Error().Err(err).Msg("kernel fault")
	if k.cfg.OnFault != nil {
		k.cfg.OnFault(err)
		return
	}
	panic(err)
}
