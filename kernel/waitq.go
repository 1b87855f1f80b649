package kernel

// waitQueue is the list of threads blocked on one object.
type waitQueue struct {
	list  threadList
	order WaitOrder
}

func (k *Kernel) newWaitQueue() waitQueue {
	return waitQueue{list: newList(linkWait), order: k.cfg.WaitOrder}
}

func (q *waitQueue) len() int { return q.list.len() }

func (q *waitQueue) insert(t *Thread) {
	var at *Thread
	if q.order == PriorityOrder {
		for at = q.list.front(); at != nil; at = q.list.next(at) {
			if at.prio < t.prio {
				break
			}
		}
	}
	q.list.insertBefore(t, at)
	t.waitOn = q
}

func (q *waitQueue) remove(t *Thread) {
	q.list.remove(t)
	t.waitOn = nil
}

func (q *waitQueue) popFront() *Thread {
	t := q.list.popFront()
	if t != nil {
		t.waitOn = nil
	}
	return t
}

// reposition re-sorts t after a priority change.
func (q *waitQueue) reposition(t *Thread) {
	if q.order != PriorityOrder {
		return
	}
	q.remove(t)
	q.insert(t)
}

// block parks the running thread on q for at most timeout ticks. The switch
// happens at the caller's Leave; the outcome is then in waitResult.
func (k *Kernel) block(q *waitQueue, timeout Ticks) {
	t := k.cur
	t.timedOut = false
	t.remaining = timeout
	k.sleepFor(t, timeout)
	q.insert(t)
	t.state = Blocked
	k.schedule()
}

// wakeOne hands the object to the first waiter of q.
func (k *Kernel) wakeOne(q *waitQueue) *Thread {
	t := q.popFront()
	if t != nil {
		k.wake(t)
	}
	return t
}

// wakeAll wakes every waiter of q and reports how many there were.
func (k *Kernel) wakeAll(q *waitQueue) int {
	n := 0
	for k.wakeOne(q) != nil {
		n++
	}
	return n
}
