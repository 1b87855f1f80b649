package kernel

import "runtime"

func goexit() { runtime.Goexit() }

// Enter begins a critical section. Sections nest; interrupts stay masked until
// the outermost Leave.
func (k *Kernel) Enter() {
	st := k.port.DisableInterrupts()
	if k.halted.Load() {
		goexit()
	}
	if k.nest == 0 {
		k.irq = st
	}
	k.nest++
}

// Leave ends a critical section. The outermost Leave of a thread takes
// pending interrupts and performs any switch requested inside the section.
func (k *Kernel) Leave() {
	if k.halted.Load() {
		return
	}
	if k.nest <= 0 {
		k.fault(ErrUnbalancedCritical)
		return
	}
	if k.nest == 1 && k.isr == 0 && k.cur != nil {
		k.serviceInterrupts()
		for k.pending {
			k.dispatch()
			k.serviceInterrupts()
		}
	}
	k.nest--
	if k.nest == 0 {
		k.port.RestoreInterrupts(k.irq)
	}
}

// serviceInterrupts runs the ticks and callbacks pending in the port in
// interrupt context.
func (k *Kernel) serviceInterrupts() {
	ticks, isrs := k.port.Pending()
	if ticks == 0 && len(isrs) == 0 {
		return
	}
	k.isr++
	if ticks > 0 {
		k.tick(ticks)
	}
	for _, fn := range isrs {
		fn()
	}
	k.isr--
}

// canBlock reports whether the running context may give up the CPU. It must
// be called inside the caller's own, single level critical section.
func (k *Kernel) canBlock() bool {
	if k.isr > 0 || k.nest != 1 || k.cur == nil || k.cur == k.idle {
		k.fault(ErrBlockingContext)
		return false
	}
	return true
}

// self returns the calling thread, faulting from interrupt context.
func (k *Kernel) self() *Thread {
	if k.isr > 0 || k.cur == nil {
		k.fault(ErrBlockingContext)
		return nil
	}
	return k.cur
}
