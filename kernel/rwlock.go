package kernel

// RWLock is a read-write lock with writer preference: a new reader waits
// while any writer is waiting. When a writer releases, the waiting readers
// are admitted before the next writer.
type RWLock struct {
	k *Kernel
	// state is the number of readers holding the lock, or -1 for a writer.
	state   int
	writer  *Thread
	readers waitQueue
	writers waitQueue
}

func (k *Kernel) NewRWLock() *RWLock {
	return &RWLock{k: k, readers: k.newWaitQueue(), writers: k.newWaitQueue()}
}

// SetWaitOrder changes how both reader and writer waiters are woken.
func (rw *RWLock) SetWaitOrder(o WaitOrder) {
	rw.readers.order = o
	rw.writers.order = o
}

func (rw *RWLock) RLock() { rw.RLockTimeout(Forever) }

func (rw *RWLock) TryRLock() bool {
	_, err := rw.RLockTimeout(0)
	return err == nil
}

// RLockTimeout waits at most timeout ticks for shared access.
func (rw *RWLock) RLockTimeout(timeout Ticks) (Ticks, error) {
	for {
		left, err := rw.rlock(timeout)
		if err != ErrTimeout || timeout != Forever {
			return left, err
		}
	}
}

func (rw *RWLock) rlock(timeout Ticks) (Ticks, error) {
	k := rw.k
	k.Enter()
	if rw.state >= 0 && rw.writers.len() == 0 {
		rw.state++
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
	k.block(&rw.readers, timeout)
	k.Leave()
	return cur.waitResult()
}

// RUnlock releases shared access. The last reader admits a waiting writer.
func (rw *RWLock) RUnlock() {
	k := rw.k
	k.Enter()
	defer k.Leave()
	if rw.state <= 0 {
		k.fault(ErrNotOwner)
		return
	}
	rw.state--
	if rw.state == 0 {
		rw.grant(false)
	}
}

func (rw *RWLock) Lock() { rw.LockTimeout(Forever) }

func (rw *RWLock) TryLock() bool {
	_, err := rw.LockTimeout(0)
	return err == nil
}

// LockTimeout waits at most timeout ticks for exclusive access.
func (rw *RWLock) LockTimeout(timeout Ticks) (Ticks, error) {
	for {
		left, err := rw.lock(timeout)
		if err != ErrTimeout || timeout != Forever {
			return left, err
		}
	}
}

func (rw *RWLock) lock(timeout Ticks) (Ticks, error) {
	k := rw.k
	k.Enter()
	cur := k.self()
	if cur == nil {
		k.Leave()
		return 0, ErrBlockingContext
	}
	if rw.state == 0 {
		rw.state = -1
		rw.writer = cur
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
	k.block(&rw.writers, timeout)
	k.Leave()

	left, err := cur.waitResult()
	if err != nil {
		// Readers held back by this writer may go now.
		k.Enter()
		rw.grant(false)
		k.Leave()
	}
	return left, err
}

// Unlock releases exclusive access.
func (rw *RWLock) Unlock() {
	k := rw.k
	k.Enter()
	defer k.Leave()
	if rw.state != -1 || rw.writer != k.cur || k.isr > 0 {
		k.fault(ErrNotOwner)
		return
	}
	rw.state = 0
	rw.writer = nil
	rw.grant(true)
}

// grant admits waiters after a release. fromWriter favors waiting readers.
func (rw *RWLock) grant(fromWriter bool) {
	k := rw.k
	woke := false
	switch {
	case rw.state < 0:
		return
	case rw.state > 0 || (fromWriter && rw.readers.len() > 0):
		if rw.state > 0 && rw.writers.len() > 0 {
			return
		}
		woke = rw.admitReaders()
	case rw.writers.len() > 0:
		t := rw.writers.popFront()
		rw.state = -1
		rw.writer = t
		k.wake(t)
		woke = true
	default:
		woke = rw.admitReaders()
	}
	if woke {
		k.preempt(false)
	}
}

func (rw *RWLock) admitReaders() bool {
	n := 0
	for t := rw.readers.popFront(); t != nil; t = rw.readers.popFront() {
		rw.state++
		rw.k.wake(t)
		n++
	}
	return n > 0
}

// ReadersWaiting and WritersWaiting return the blocked reader and writer
// counts.
func (rw *RWLock) ReadersWaiting() int {
	rw.k.Enter()
	defer rw.k.Leave()
	return rw.readers.len()
}

func (rw *RWLock) WritersWaiting() int {
	rw.k.Enter()
	defer rw.k.Leave()
	return rw.writers.len()
}
