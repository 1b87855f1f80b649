//go:build !tinygo

package port

// masker is a software interrupt mask. Only the running context touches it,
// so a plain field is enough.
type masker struct {
	masked bool
}

func newMasker() masker { return masker{} }

func (m *masker) disable() IRQState {
	prev := m.masked
	m.masked = true
	if prev {
		return 1
	}
	return 0
}

func (m *masker) restore(st IRQState) {
	m.masked = st != 0
}
