package kernel

import (
	"fmt"

	"sparkrt/kernel/port"
)

// ThreadFunc is a thread entry point. Returning from it exits the thread.
type ThreadFunc func(arg any)

// ThreadAttr are optional creation attributes. Zero fields take the
// configured defaults.
type ThreadAttr struct {
	Name      string
	StackSize int
	Priority  int
}

// State is a thread's scheduling state.
type State uint8

const (
	Running State = iota
	Ready
	Sleeping
	Blocked
	Suspended
	Dead
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Ready:
		return "ready"
	case Sleeping:
		return "sleeping"
	case Blocked:
		return "blocked"
	case Suspended:
		return "suspended"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Thread is a kernel thread control block.
type Thread struct {
	k     *Kernel
	id    uint32
	name  string
	prio  int
	state State

	links  [numLinks]link
	waitOn *waitQueue

	stack []byte
	frame port.Frame
	entry ThreadFunc
	arg   any
	fresh bool

	// Saved critical section state while switched out.
	nest int
	irq  port.IRQState

	// deadline is the sleep queue key, relative to the last scan.
	deadline  Ticks
	timedOut  bool
	remaining Ticks

	runtime uint64
	// held counts the mutexes this thread owns.
	held int
}

func (t *Thread) ID() uint32      { return t.id }
func (t *Thread) Name() string    { return t.name }
func (t *Thread) Priority() int   { return t.prio }
func (t *Thread) State() State    { return t.state }
func (t *Thread) Stack() []byte   { return t.stack }
func (t *Thread) RunTime() uint64 { return t.runtime }

func (t *Thread) String() string {
	return fmt.Sprintf("%s#%d", t.name, t.id)
}

// waitResult reports the outcome of the last blocking wait.
func (t *Thread) waitResult() (Ticks, error) {
	if t.timedOut {
		return 0, ErrTimeout
	}
	return t.remaining, nil
}

// ThreadInfo is a snapshot of one thread.
type ThreadInfo struct {
	ID        uint32
	Name      string
	Priority  int
	State     State
	StackSize int
	StackUsed int
	RunTime   uint64
}

// Create makes a new ready thread running entry(arg). It preempts the caller
// when the new thread has a higher priority.
func (k *Kernel) Create(entry ThreadFunc, arg any, attr ThreadAttr) (*Thread, error) {
	return k.create(entry, arg, attr, k.cfg.clampPriority(attr.Priority))
}

func (k *Kernel) create(entry ThreadFunc, arg any, attr ThreadAttr, prio int) (*Thread, error) {
	size := attr.StackSize
	if size <= 0 {
		size = k.cfg.DefaultStackSize
	}
	if size < k.cfg.MinStackSize {
		size = k.cfg.MinStackSize
	}

	k.Enter()
	defer k.Leave()

	stack, err := k.heap.Alloc(size)
	if err != nil {
		k.allocFailed(size)
		return nil, fmt.Errorf("kernel: stack for %q: %w: %w", attr.Name, ErrNoMemory, err)
	}
	fillStack(stack)

	k.nextID++
	t := &Thread{
		k:     k,
		id:    k.nextID,
		name:  attr.Name,
		prio:  prio,
		stack: stack,
		entry: entry,
		arg:   arg,
		fresh: true,
	}
	if t.name == "" {
		t.name = fmt.Sprintf("thread%d", t.id)
	}
	frame, err := k.port.InitStack(stack, k.threadMain, t, k.Exit)
	if err != nil {
		k.heap.Free(stack)
		return nil, fmt.Errorf("kernel: create %q: %w", t.name, err)
	}
	t.frame = frame

	k.registry.pushBack(t)
	k.makeReady(t)
	k.stats.Created++
	k.log.Debug().Uint32("id", t.id).Str("thread", t.name).Int("priority", prio).Int("stack", size).Msg("thread created")
	if k.started {
		k.preempt(false)
	}
	return t, nil
}

// threadMain runs on a thread's own context.
func (k *Kernel) threadMain(arg any) {
	t := arg.(*Thread)
	defer func() {
		if r := recover(); r != nil {
			k.Enter()
			p := &PanicError{ID: t.id, Thread: t.name, Value: r, Stack: captureStack()}
			if k.cfg.OnPanic != nil && !k.halted.Load() {
				k.cfg.OnPanic(p)
			}
			k.halt(p)
		}
	}()
	// First resumption: finish the switch that selected this thread.
	k.Leave()
	t.entry(t.arg)
}

// Current returns the running thread, or nil before Run.
func (k *Kernel) Current() *Thread {
	if k.isr > 0 {
		return nil
	}
	return k.cur
}

// Exit terminates the calling thread. Its stack is reclaimed by the idle
// thread.
func (k *Kernel) Exit() {
	k.Enter()
	if !k.canBlock() {
		k.Leave()
		return
	}
	t := k.cur
	if t.held > 0 {
		k.fault(ErrHoldsLocks)
	}
	k.kill(t)
	k.Leave()
}

// Delete terminates t. Deleting the calling thread is Exit. Deleting a dead
// thread does nothing.
func (k *Kernel) Delete(t *Thread) {
	if t == nil {
		return
	}
	k.Enter()
	if t == k.cur && k.isr == 0 {
		k.Leave()
		k.Exit()
		return
	}
	defer k.Leave()
	switch {
	case t.state == Dead:
		return
	case t == k.idle || t == k.cur:
		k.fault(ErrBlockingContext)
		return
	case t.held > 0:
		k.fault(ErrHoldsLocks)
	}
	k.kill(t)
}

func (k *Kernel) kill(t *Thread) {
	if t.waitOn != nil {
		t.waitOn.remove(t)
	}
	k.unschedule(t)
	t.state = Dead
	k.dead.pushBack(t)
	k.log.Debug().Uint32("id", t.id).Str("thread", t.name).Msg("thread exited")
	if t == k.cur {
		k.schedule()
	}
}

// reap frees the stacks of dead threads.
func (k *Kernel) reap() {
	for {
		k.Enter()
		t := k.dead.popFront()
		if t == nil {
			k.Leave()
			return
		}
		k.registry.remove(t)
		k.heap.Free(t.stack)
		t.stack = nil
		k.port.Release(t.frame)
		k.stats.Reaped++
		k.Leave()
	}
}

// Sleep blocks the caller for ticks ticks. Sleep(0) yields.
func (k *Kernel) Sleep(ticks Ticks) {
	if ticks == 0 {
		k.Yield()
		return
	}
	k.Enter()
	if k.canBlock() {
		t := k.cur
		k.sleepFor(t, ticks)
		t.state = Sleeping
		k.schedule()
	}
	k.Leave()
}

// Yield moves the caller behind the other ready threads of its priority.
func (k *Kernel) Yield() {
	k.Enter()
	if k.isr == 0 {
		k.preempt(true)
	}
	k.Leave()
}

// SetPriority changes t's priority and reschedules.
func (k *Kernel) SetPriority(t *Thread, prio int) {
	k.Enter()
	defer k.Leave()
	if t == k.idle || t.state == Dead {
		return
	}
	prio = k.cfg.clampPriority(prio)
	if prio == t.prio {
		return
	}
	t.prio = prio
	if t.state == Ready {
		k.makeReady(t)
	}
	if t.waitOn != nil {
		t.waitOn.reposition(t)
	}
	k.preempt(false)
}

// Suspend takes t off the CPU until Resume. A suspended waiter leaves its
// wait queue. Once resumed, a timed wait reports ErrTimeout and a Forever
// wait queues again.
func (k *Kernel) Suspend(t *Thread) {
	k.Enter()
	defer k.Leave()
	if t == k.cur && k.isr == 0 && !k.canBlock() {
		return
	}
	if t == k.idle {
		k.fault(ErrBlockingContext)
		return
	}
	k.suspend(t)
}

func (k *Kernel) suspend(t *Thread) {
	if t.state == Dead || t.state == Suspended {
		return
	}
	if t.waitOn != nil {
		t.waitOn.remove(t)
		t.timedOut = true
	}
	k.unschedule(t)
	t.state = Suspended
	if t == k.cur {
		k.schedule()
	}
}

// Resume readies a suspended thread.
func (k *Kernel) Resume(t *Thread) {
	k.Enter()
	defer k.Leave()
	if t.state != Suspended {
		return
	}
	k.makeReady(t)
	k.preempt(false)
}

// Threads returns a snapshot of every live thread in creation order.
func (k *Kernel) Threads() []ThreadInfo {
	if !k.halted.Load() {
		k.Enter()
		defer k.Leave()
	}
	out := make([]ThreadInfo, 0, k.registry.len())
	for t := k.registry.front(); t != nil; t = k.registry.next(t) {
		if t.state == Dead {
			continue
		}
		out = append(out, ThreadInfo{
			ID:        t.id,
			Name:      t.name,
			Priority:  t.prio,
			State:     t.state,
			StackSize: len(t.stack),
			StackUsed: StackHighWater(t.stack),
			RunTime:   t.runtime,
		})
	}
	return out
}

// idleLoop runs at IdlePriority whenever nothing else is ready.
func (k *Kernel) idleLoop(any) {
	for {
		k.reap()

		k.Enter()
		if k.registry.len()-k.dead.len() <= 1 {
			k.halt(nil)
		}
		budget := k.idleBudget()
		k.Leave()

		elapsed, ok := k.port.Idle(budget)
		k.Enter()
		if !ok {
			k.halt(ErrDeadlock)
		}
		if elapsed > 0 {
			k.isr++
			k.tick(elapsed)
			k.isr--
		}
		k.Leave()
	}
}
