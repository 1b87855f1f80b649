package kernel

// owner is the holder of a mutex and its recursion depth.
type owner struct {
	holder *Thread
	count  uint32
}

// Mutex is a recursive mutual exclusion lock owned by a thread. Unlock hands
// the lock directly to the first waiter.
type Mutex struct {
	k       *Kernel
	owner   owner
	waiters waitQueue
}

// NewMutex returns an unlocked mutex using the configured wait order.
func (k *Kernel) NewMutex() *Mutex {
	return &Mutex{k: k, waiters: k.newWaitQueue()}
}

// SetWaitOrder changes how waiters are woken. Set it before first use.
func (m *Mutex) SetWaitOrder(o WaitOrder) { m.waiters.order = o }

// Lock blocks until the caller owns m.
func (m *Mutex) Lock() {
	m.LockTimeout(Forever)
}

// TryLock acquires m without blocking.
func (m *Mutex) TryLock() bool {
	_, err := m.LockTimeout(0)
	return err == nil
}

// LockTimeout waits at most timeout ticks for m and returns the ticks left.
// A Forever wait interrupted by Suspend queues again once resumed.
func (m *Mutex) LockTimeout(timeout Ticks) (Ticks, error) {
	for {
		left, err := m.lock(timeout)
		if err != ErrTimeout || timeout != Forever {
			return left, err
		}
	}
}

func (m *Mutex) lock(timeout Ticks) (Ticks, error) {
	k := m.k
	k.Enter()
	cur := k.self()
	if cur == nil {
		k.Leave()
		return 0, ErrBlockingContext
	}
	switch m.owner.holder {
	case nil:
		m.owner = owner{holder: cur, count: 1}
		cur.held++
		k.Leave()
		return timeout, nil
	case cur:
		m.owner.count++
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
	k.block(&m.waiters, timeout)
	k.Leave()
	return cur.waitResult()
}

// Unlock releases one level of ownership. The last level passes m to the
// first waiter.
func (m *Mutex) Unlock() {
	k := m.k
	k.Enter()
	defer k.Leave()
	if k.isr > 0 || m.owner.holder == nil || m.owner.holder != k.cur {
		k.fault(ErrNotOwner)
		return
	}
	m.owner.count--
	if m.owner.count > 0 {
		return
	}
	m.release()
	k.preempt(false)
}

// release drops ownership and hands m to the next waiter.
func (m *Mutex) release() {
	m.owner.holder.held--
	m.owner = owner{}
	if t := m.waiters.popFront(); t != nil {
		m.owner = owner{holder: t, count: 1}
		t.held++
		m.k.wake(t)
	}
}

// Owner returns the holding thread, or nil.
func (m *Mutex) Owner() *Thread {
	m.k.Enter()
	defer m.k.Leave()
	return m.owner.holder
}

// Waiting returns the number of blocked lockers.
func (m *Mutex) Waiting() int {
	m.k.Enter()
	defer m.k.Leave()
	return m.waiters.len()
}
