//go:build tinygo

package port

import "runtime/interrupt"

// masker masks the CPU's interrupts for real.
type masker struct{}

func newMasker() masker { return masker{} }

func (masker) disable() IRQState {
	return IRQState(interrupt.Disable())
}

func (masker) restore(st IRQState) {
	interrupt.Restore(interrupt.State(st))
}
