package kernel

import "math/bits"

// All functions in this file run inside the critical section.

func (k *Kernel) schedule() { k.pending = true }

// unschedule takes t off its ready bucket or the sleep queue.
func (k *Kernel) unschedule(t *Thread) {
	l := t.links[linkSched].owner
	if l == nil || l == &k.dead {
		return
	}
	l.remove(t)
	if l.bucket >= 0 && l.len() == 0 {
		k.clearReady(l.bucket)
	}
	if l == &k.sleepq && l.len() == 0 {
		k.sleepElapsed = 0
		k.sleepNext = Forever
	}
}

func (k *Kernel) clearReady(prio int) {
	k.readyMap &^= 1 << uint(prio)
	if prio == k.highest {
		k.highest = bits.Len64(k.readyMap) - 1
		if k.highest < 0 {
			k.highest = 0
		}
	}
}

// makeReady appends t to the tail of its priority bucket.
func (k *Kernel) makeReady(t *Thread) {
	k.unschedule(t)
	k.ready[t.prio].pushBack(t)
	k.readyMap |= 1 << uint(t.prio)
	if t.prio > k.highest {
		k.highest = t.prio
	}
	t.state = Ready
}

// pickNext dequeues the first thread of the highest non-empty bucket.
func (k *Kernel) pickNext() *Thread {
	if k.readyMap == 0 {
		return nil
	}
	l := &k.ready[k.highest]
	t := l.popFront()
	if l.len() == 0 {
		k.clearReady(l.bucket)
	}
	return t
}

// sleepFor puts t on the sleep queue for timeout ticks. Forever leaves it off
// the queue. The caller sets the state.
func (k *Kernel) sleepFor(t *Thread, timeout Ticks) {
	k.unschedule(t)
	if timeout == Forever {
		return
	}
	if k.sleepq.len() == 0 {
		k.sleepElapsed = 0
	}
	d := timeout
	if d > Forever-1-k.sleepElapsed {
		d = Forever - 1
	} else {
		d += k.sleepElapsed
	}
	t.deadline = d
	k.sleepq.pushBack(t)
	if d < k.sleepNext {
		k.sleepNext = d
	}
}

// wake readies t after the object it waited on was handed to it.
func (k *Kernel) wake(t *Thread) {
	if t.waitOn != nil {
		t.waitOn.remove(t)
	}
	t.timedOut = false
	t.remaining = Forever
	if k.sleepq.contains(t) {
		t.remaining = t.deadline - k.sleepElapsed
	}
	k.makeReady(t)
}

// expire readies a thread whose timeout elapsed.
func (k *Kernel) expire(t *Thread) {
	if t.waitOn != nil {
		t.waitOn.remove(t)
	}
	t.timedOut = true
	t.remaining = 0
	k.makeReady(t)
}

// preempt requeues the running thread when a higher priority thread is ready,
// or an equal one when rotate is set.
func (k *Kernel) preempt(rotate bool) {
	c := k.cur
	if c == nil || c.state != Running || k.readyMap == 0 {
		return
	}
	if k.highest > c.prio || (rotate && k.highest == c.prio) {
		k.makeReady(c)
		k.stats.Preemptions++
		k.schedule()
	}
}

// tick advances the clock by n ticks in interrupt context.
func (k *Kernel) tick(n Ticks) {
	k.now += uint64(n)
	k.stats.Ticks += uint64(n)
	if c := k.cur; c != nil {
		c.runtime += uint64(n)
	}

	if k.sleepq.len() > 0 {
		if n > Forever-k.sleepElapsed {
			k.sleepElapsed = Forever
		} else {
			k.sleepElapsed += n
		}
		if k.sleepElapsed >= k.sleepNext {
			k.scanSleepers()
		}
	}

	if k.cfg.RoundRobin && k.cur != nil && k.cur != k.idle {
		if n >= k.sliceLeft {
			k.sliceLeft = k.cfg.TimeSlice
			k.preempt(true)
		} else {
			k.sliceLeft -= n
		}
	}
}

// scanSleepers wakes every expired sleeper and rebases the rest on the new
// scan point.
func (k *Kernel) scanSleepers() {
	elapsed := k.sleepElapsed
	next := Forever
	woke := false
	for t := k.sleepq.front(); t != nil; {
		nx := k.sleepq.next(t)
		if t.deadline <= elapsed {
			k.expire(t)
			woke = true
		} else {
			t.deadline -= elapsed
			if t.deadline < next {
				next = t.deadline
			}
		}
		t = nx
	}
	k.sleepElapsed = 0
	k.sleepNext = next
	k.stats.SleepScans++
	if woke {
		k.preempt(false)
	}
}

// idleBudget returns the ticks until the next sleeper expires.
func (k *Kernel) idleBudget() Ticks {
	if k.sleepq.len() == 0 {
		return Forever
	}
	if k.sleepElapsed >= k.sleepNext {
		return 0
	}
	return k.sleepNext - k.sleepElapsed
}

// dispatch performs a deferred switch to the highest priority ready thread.
func (k *Kernel) dispatch() {
	prev := k.cur
	k.checkStack(prev)
	k.pending = false
	if prev.state == Running {
		return
	}
	next := k.pickNext()
	if next == nil {
		// The idle thread is always ready or running.
		panic("kernel: no runnable thread")
	}
	next.state = Running
	k.sliceLeft = k.cfg.TimeSlice
	if next == prev {
		return
	}
	k.stats.Switches++
	k.cur = next
	if next.fresh {
		next.fresh = false
		next.nest = 1
		next.irq = k.irq
	}
	prev.nest, prev.irq = k.nest, k.irq
	k.nest, k.irq = next.nest, next.irq
	if prev.state == Dead {
		k.port.Exit(prev.frame, next.frame)
	}
	k.port.Switch(prev.frame, next.frame)
}
