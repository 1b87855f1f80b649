//go:build tinygo

package hal

import "time"

// tickerTime publishes a tick sequence from a free-running ticker. When the
// kernel falls behind, a stale sequence number still in the channel is
// replaced by the latest one and the port counts the gap.
type tickerTime struct {
	ch      chan uint64
	seq     uint64
	dropped uint64
}

func newTickerTime(period time.Duration) *tickerTime {
	t := &tickerTime{ch: make(chan uint64, 1)}
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for range ticker.C {
			t.seq++
			select {
			case <-t.ch:
				t.dropped++
			default:
			}
			t.ch <- t.seq
		}
	}()
	return t
}

func (t *tickerTime) Ticks() <-chan uint64 { return t.ch }
