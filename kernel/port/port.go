// Package port is the hardware-specific seam of the kernel.
//
// The scheduler decides which thread runs next; a Port executes the switch.
// A Port also owns interrupt masking, initial stack frames, the idle wait and
// the delivery of periodic ticks and interrupt callbacks.
package port

import "errors"

// Forever is the Idle budget meaning "no timed wake point is known".
const Forever = ^uint32(0)

// IRQState is the interrupt mask state returned by DisableInterrupts.
type IRQState uintptr

// ErrStackTooSmall is returned by InitStack when the initial register frame
// does not fit the stack.
var ErrStackTooSmall = errors.New("port: stack too small for initial frame")

// Frame is a thread's execution context as built by InitStack.
type Frame interface {
	// SP returns the initial stack pointer as an offset into the stack.
	SP() int
}

// Port is implemented once per CPU family.
type Port interface {
	// DisableInterrupts masks interrupts and returns the previous mask state.
	DisableInterrupts() IRQState
	// RestoreInterrupts restores a state returned by DisableInterrupts.
	RestoreInterrupts(IRQState)

	// InitStack lays out the initial frame on stack so that the first resumption
	// of the returned Frame calls entry(arg) and then exit.
	InitStack(stack []byte, entry func(arg any), arg any, exit func()) (Frame, error)
	// Start resumes the first frame from the boot context.
	Start(to Frame)
	// Switch resumes to and suspends the calling context (from) until another
	// context switches back to it.
	Switch(from, to Frame)
	// Exit resumes to and terminates the calling context. It never returns.
	Exit(from, to Frame)
	// Release discards a frame that will never be resumed.
	Release(f Frame)

	// Idle waits for an interrupt. max is the number of ticks until the next
	// timed wake point (Forever when none). It returns the ticks that elapsed
	// while idle that were not delivered through Pending; ok is false when no
	// interrupt can ever arrive.
	Idle(max uint32) (elapsed uint32, ok bool)
	// Pending drains the ticks and interrupt callbacks raised since the last call.
	Pending() (ticks uint32, isrs []func())
	// Raise queues an interrupt callback. Safe from any goroutine.
	Raise(isr func())
	// Halt stops every context. The caller's context must terminate afterwards.
	Halt()
}
