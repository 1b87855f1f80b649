package metrics

import (
	"sparkrt/kernel"
)

// Sampler is a kernel thread that feeds a Collector.
type Sampler struct {
	k        *kernel.Kernel
	c        *Collector
	interval kernel.Ticks
	stop     *kernel.Event
	exited   *kernel.Event
}

// Sample takes a snapshot of k. It must run on a kernel thread.
func Sample(k *kernel.Kernel) *Snapshot {
	return &Snapshot{Stats: k.Stats(), Threads: k.Threads(), Now: k.Now()}
}

// StartSampler stores a snapshot into c now and every interval ticks.
func StartSampler(k *kernel.Kernel, c *Collector, interval kernel.Ticks, attr kernel.ThreadAttr) (*Sampler, error) {
	if interval == 0 {
		interval = 1000
	}
	if attr.Name == "" {
		attr.Name = "metrics"
	}
	s := &Sampler{
		k:        k,
		c:        c,
		interval: interval,
		stop:     k.NewEvent(false, false),
		exited:   k.NewEvent(false, false),
	}
	if _, err := k.Create(s.run, nil, attr); err != nil {
		return nil, err
	}
	return s, nil
}

// Close takes a last sample and stops the thread.
func (s *Sampler) Close() {
	s.stop.Set()
	s.exited.Wait()
}

func (s *Sampler) run(any) {
	defer s.exited.Set()
	for {
		s.c.Store(Sample(s.k))
		if _, err := s.stop.WaitTimeout(s.interval); err == nil {
			s.c.Store(Sample(s.k))
			return
		}
	}
}
