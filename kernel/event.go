package kernel

// Event is a binary signal. A manual-reset event stays set and releases every
// waiter until Reset; an auto-reset event releases one waiter per Set.
type Event struct {
	k         *Kernel
	set       bool
	autoReset bool
	waiters   waitQueue
}

func (k *Kernel) NewEvent(autoReset, initial bool) *Event {
	return &Event{k: k, set: initial, autoReset: autoReset, waiters: k.newWaitQueue()}
}

// Set signals the event. It is safe from interrupt context.
func (e *Event) Set() {
	k := e.k
	k.Enter()
	defer k.Leave()
	if e.autoReset {
		if k.wakeOne(&e.waiters) == nil {
			e.set = true
			return
		}
	} else {
		e.set = true
		if k.wakeAll(&e.waiters) == 0 {
			return
		}
	}
	k.preempt(false)
}

// Reset clears the event.
func (e *Event) Reset() {
	e.k.Enter()
	e.set = false
	e.k.Leave()
}

// IsSet reports the event state.
func (e *Event) IsSet() bool {
	e.k.Enter()
	defer e.k.Leave()
	return e.set
}

func (e *Event) Wait() {
	e.WaitTimeout(Forever)
}

// WaitTimeout waits at most timeout ticks for the event. An auto-reset event
// is consumed by the waiter it releases.
func (e *Event) WaitTimeout(timeout Ticks) (Ticks, error) {
	for {
		left, err := e.wait(timeout)
		if err != ErrTimeout || timeout != Forever {
			return left, err
		}
	}
}

func (e *Event) wait(timeout Ticks) (Ticks, error) {
	k := e.k
	k.Enter()
	if e.set {
		if e.autoReset {
			e.set = false
		}
		k.Leave()
		return timeout, nil
	}
	if timeout == 0 {
		k.Leave()
		return 0, ErrTimeout
	}
	if !k.canBlock() {
		k.Leave()
		return 0, ErrBlockingContext
	}
	cur := k.cur
	k.block(&e.waiters, timeout)
	k.Leave()
	return cur.waitResult()
}
