package port

import (
	"encoding/binary"
	"runtime"
	"sync"
)

// Initial frame layout, one 32-bit little-endian word each, lowest address
// first: r4-r11 (software saved), then r0-r3, r12, lr, pc, xpsr.
const (
	frameWords = 16

	frameR0   = 8
	frameLR   = 13
	framePC   = 14
	frameXPSR = 15

	// exitToken marks lr so that returning from entry lands in exit.
	exitToken = 0xFFFFFFFD
	// thumbState is the initial xpsr (T bit set).
	thumbState = 0x01000000
)

// frame is a context backed by a parked goroutine. A thread only gives up the
// baton inside a kernel call, so a loop that never calls into the kernel is
// not preempted on the host.
type frame struct {
	id     uint32
	sp     int
	resume chan struct{}
	kill   chan struct{}
	once   sync.Once
}

func (f *frame) SP() int { return f.sp }

func (f *frame) release() {
	f.once.Do(func() { close(f.kill) })
}

// executor hands the CPU from goroutine to goroutine. Exactly one context
// runs at a time; every other context is parked on its resume channel.
type executor struct {
	idMu   sync.Mutex
	nextID uint32
	halt   chan struct{}
	once   sync.Once
}

func (e *executor) InitStack(stack []byte, entry func(arg any), arg any, exit func()) (Frame, error) {
	top := len(stack) &^ 7
	sp := top - frameWords*4
	if sp < 0 {
		return nil, ErrStackTooSmall
	}

	e.idMu.Lock()
	e.nextID++
	id := e.nextID
	e.idMu.Unlock()

	words := stack[sp:top]
	for i := range words {
		words[i] = 0
	}
	binary.LittleEndian.PutUint32(words[frameR0*4:], id)
	binary.LittleEndian.PutUint32(words[frameLR*4:], exitToken)
	binary.LittleEndian.PutUint32(words[framePC*4:], id|1)
	binary.LittleEndian.PutUint32(words[frameXPSR*4:], thumbState)

	f := &frame{
		id:     id,
		sp:     sp,
		resume: make(chan struct{}, 1),
		kill:   make(chan struct{}),
	}
	go func() {
		if !e.park(f) {
			return
		}
		entry(arg)
		exit()
	}()
	return f, nil
}

// park blocks until f is resumed. It reports false when f was released or
// the executor halted.
func (e *executor) park(f *frame) bool {
	select {
	case <-f.resume:
		return true
	case <-f.kill:
		// Deleted while parked: stay parked until halt so deferred calls on
		// this goroutine never run next to a live kernel.
		<-e.halt
		return false
	case <-e.halt:
		return false
	}
}

func (e *executor) Start(to Frame) {
	to.(*frame).resume <- struct{}{}
}

func (e *executor) Switch(from, to Frame) {
	f, n := from.(*frame), to.(*frame)
	if f == n {
		return
	}
	n.resume <- struct{}{}
	if !e.park(f) {
		runtime.Goexit()
	}
}

func (e *executor) Exit(from, to Frame) {
	from.(*frame).release()
	to.(*frame).resume <- struct{}{}
	runtime.Goexit()
}

func (e *executor) Release(f Frame) {
	if f == nil {
		return
	}
	f.(*frame).release()
}

func (e *executor) Halt() {
	e.once.Do(func() { close(e.halt) })
}

func (e *executor) halted() <-chan struct{} { return e.halt }
