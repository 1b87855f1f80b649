package kernel

// stackFill is the pattern written over a new stack. The lowest
// StackGuardSize bytes must still hold it when the thread is switched out.
const stackFill = 0xA5

func fillStack(stack []byte) {
	for i := range stack {
		stack[i] = stackFill
	}
}

// StackHighWater returns how many bytes of stack were ever written, judged by
// the fill pattern.
func StackHighWater(stack []byte) int {
	for i, b := range stack {
		if b != stackFill {
			return len(stack) - i
		}
	}
	return 0
}

// StackHighWater returns the deepest stack use of t so far.
func (t *Thread) StackHighWater() int { return StackHighWater(t.stack) }

func (k *Kernel) guardIntact(t *Thread) bool {
	n := k.cfg.StackGuardSize
	if n > len(t.stack) {
		n = len(t.stack)
	}
	for _, b := range t.stack[:n] {
		if b != stackFill {
			return false
		}
	}
	return true
}

func (k *Kernel) rearmGuard(t *Thread) {
	n := k.cfg.StackGuardSize
	if n > len(t.stack) {
		n = len(t.stack)
	}
	fillStack(t.stack[:n])
}

// checkStack applies the overflow policy to t when its guard region was
// overwritten.
func (k *Kernel) checkStack(t *Thread) {
	if k.cfg.StackGuardSize == 0 || t.stack == nil || k.guardIntact(t) {
		return
	}
	k.stats.Overflows++
	k.log.Error().Uint32("id", t.id).Str("thread", t.name).Int("guard", k.cfg.StackGuardSize).Msg("stack overflow")
	k.cfg.Overflow.StackOverflow(k, t)
}

// OverflowPolicy decides the fate of a thread that overran its stack. It runs
// inside the critical section during a context switch away from t.
type OverflowPolicy interface {
	StackOverflow(k *Kernel, t *Thread)
}

// OverflowFunc adapts a function to OverflowPolicy.
type OverflowFunc func(k *Kernel, t *Thread)

func (f OverflowFunc) StackOverflow(k *Kernel, t *Thread) { f(k, t) }

var (
	// ResetOnOverflow halts the system; Run returns a *StackOverflowError.
	ResetOnOverflow OverflowPolicy = OverflowFunc(func(k *Kernel, t *Thread) {
		k.halt(&StackOverflowError{ID: t.id, Thread: t.name})
	})

	// SuspendOnOverflow suspends the offending thread. The rest of the system
	// keeps running.
	SuspendOnOverflow OverflowPolicy = OverflowFunc(func(k *Kernel, t *Thread) {
		k.suspend(t)
	})
)

// CallbackOnOverflow reports the offending thread to fn, then re-arms its
// guard and lets it continue.
func CallbackOnOverflow(fn func(t *Thread)) OverflowPolicy {
	return OverflowFunc(func(k *Kernel, t *Thread) {
		if fn != nil {
			fn(t)
		}
		k.rearmGuard(t)
	})
}
