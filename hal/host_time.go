//go:build !tinygo

package hal

import "time"

// hostTime turns wall-clock time observed at each runner frame into kernel
// ticks of a fixed period.
type hostTime struct {
	ch      chan uint64
	seq     uint64
	period  time.Duration
	last    time.Time
	acc     time.Duration
	dropped uint64
}

func newHostTime() *hostTime {
	return &hostTime{ch: make(chan uint64, 1024), period: time.Millisecond}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

// setRate sets the tick frequency. It must be called before the first step.
func (t *hostTime) setRate(hz int) {
	if hz > 0 {
		t.period = time.Second / time.Duration(hz)
	}
}

// step publishes the ticks that elapsed since the previous call.
func (t *hostTime) step() {
	now := time.Now()
	if t.last.IsZero() {
		t.last = now
		t.publish(1)
		return
	}
	t.acc += now.Sub(t.last)
	t.last = now
	n := uint64(t.acc / t.period)
	if n == 0 {
		return
	}
	t.acc %= t.period
	t.publish(n)
}

// publish advances the sequence by n and sends only the latest value; the
// kernel port counts the gap.
func (t *hostTime) publish(n uint64) {
	t.seq += n
	select {
	case t.ch <- t.seq:
	default:
		t.dropped++
	}
}
