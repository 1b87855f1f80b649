package kernel

// Semaphore is a counting semaphore. Give hands the count directly to the
// first waiter.
type Semaphore struct {
	k       *Kernel
	count   uint32
	limit   uint32
	waiters waitQueue
}

// NewSemaphore returns a semaphore holding initial units. limit caps the
// count; 0 means no cap.
func (k *Kernel) NewSemaphore(initial, limit uint32) *Semaphore {
	if limit == 0 {
		limit = ^uint32(0)
	}
	if initial > limit {
		initial = limit
	}
	return &Semaphore{k: k, count: initial, limit: limit, waiters: k.newWaitQueue()}
}

// SetWaitOrder changes how waiters are woken.
func (s *Semaphore) SetWaitOrder(o WaitOrder) { s.waiters.order = o }

// Give releases one unit. It is safe from interrupt context.
func (s *Semaphore) Give() error {
	k := s.k
	k.Enter()
	defer k.Leave()
	if k.wakeOne(&s.waiters) != nil {
		k.preempt(false)
		return nil
	}
	if s.count >= s.limit {
		return ErrOverflow
	}
	s.count++
	return nil
}

// Take blocks until a unit is available.
func (s *Semaphore) Take() {
	s.TakeTimeout(Forever)
}

// TryTake takes a unit without blocking.
func (s *Semaphore) TryTake() bool {
	_, err := s.TakeTimeout(0)
	return err == nil
}

// TakeTimeout waits at most timeout ticks for a unit. A Forever wait only
// returns holding a unit.
func (s *Semaphore) TakeTimeout(timeout Ticks) (Ticks, error) {
	for {
		left, err := s.take(timeout)
		if err != ErrTimeout || timeout != Forever {
			return left, err
		}
	}
}

func (s *Semaphore) take(timeout Ticks) (Ticks, error) {
	k := s.k
	k.Enter()
	if s.count > 0 {
		s.count--
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
	k.block(&s.waiters, timeout)
	k.Leave()
	return cur.waitResult()
}

// Count returns the units available.
func (s *Semaphore) Count() uint32 {
	s.k.Enter()
	defer s.k.Leave()
	return s.count
}
