package kernel

// Cond is a condition variable used with a Mutex.
type Cond struct {
	k       *Kernel
	waiters waitQueue
}

func (k *Kernel) NewCond() *Cond {
	return &Cond{k: k, waiters: k.newWaitQueue()}
}

// Wait releases m, blocks until signalled and reacquires m at its previous
// recursion depth.
func (c *Cond) Wait(m *Mutex) {
	c.WaitTimeout(m, Forever)
}

// WaitTimeout is Wait bounded by timeout ticks. m is reacquired in either
// case. A Forever wait cut short by Suspend returns as a spurious wakeup.
func (c *Cond) WaitTimeout(m *Mutex, timeout Ticks) (Ticks, error) {
	k := c.k
	k.Enter()
	cur := k.self()
	if cur == nil {
		k.Leave()
		return 0, ErrBlockingContext
	}
	if m.owner.holder != cur {
		k.fault(ErrNotOwner)
		k.Leave()
		return 0, ErrNotOwner
	}
	if timeout == 0 {
		k.Leave()
		return 0, ErrTimeout
	}
	if !k.canBlock() {
		k.Leave()
		return 0, ErrBlockingContext
	}
	depth := m.owner.count
	k.block(&c.waiters, timeout)
	m.release()
	k.Leave()

	left, err := cur.waitResult()
	m.Lock()
	k.Enter()
	m.owner.count = depth
	k.Leave()
	if err == ErrTimeout && timeout == Forever {
		return Forever, nil
	}
	return left, err
}

// Signal wakes one waiter.
func (c *Cond) Signal() {
	c.k.Enter()
	if c.k.wakeOne(&c.waiters) != nil {
		c.k.preempt(false)
	}
	c.k.Leave()
}

// Broadcast wakes every waiter.
func (c *Cond) Broadcast() {
	c.k.Enter()
	if c.k.wakeAll(&c.waiters) > 0 {
		c.k.preempt(false)
	}
	c.k.Leave()
}
