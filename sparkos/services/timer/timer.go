// Package timer runs software timers on one service thread.
//
// Handlers run on the timer thread, never on the caller of Start. The thread
// sleeps until the earliest armed timer expires and is woken early whenever a
// timer is started or stopped.
package timer

import (
	"errors"

	"sparkrt/internal/logging"
	"sparkrt/kernel"

	"github.com/phuslu/log"
)

// ErrClosed is returned when arming a timer on a closed service.
var ErrClosed = errors.New("timer: service closed")

// Handler is called on the timer thread when a timer expires.
type Handler func(arg any)

// Timer is one software timer. A zero period makes it one-shot.
type Timer struct {
	svc     *Service
	name    string
	handler Handler
	arg     any
	period  kernel.Ticks

	remaining kernel.Ticks
	armed     bool
	fired     uint64
}

// Service owns the armed timers and the thread that fires them.
type Service struct {
	k     *kernel.Kernel
	log   *log.Logger
	mu    *kernel.Mutex
	rearm *kernel.Event

	armed  []*Timer
	due    []*Timer
	last   uint64
	closed bool
	thread *kernel.Thread
	exited *kernel.Event
}

// New starts the timer thread. attr.Name defaults to "timer".
func New(k *kernel.Kernel, attr kernel.ThreadAttr, lg *log.Logger) (*Service, error) {
	if attr.Name == "" {
		attr.Name = "timer"
	}
	s := &Service{
		k:      k,
		log:    logging.Module(lg, "timer"),
		mu:     k.NewMutex(),
		rearm:  k.NewEvent(true, false),
		exited: k.NewEvent(false, false),
		last:   k.Now(),
	}
	t, err := k.Create(s.run, nil, attr)
	if err != nil {
		return nil, err
	}
	s.thread = t
	return s, nil
}

// Thread returns the service thread.
func (s *Service) Thread() *kernel.Thread { return s.thread }

// NewTimer returns a stopped timer. period 0 makes it one-shot.
func (s *Service) NewTimer(name string, period kernel.Ticks, h Handler, arg any) *Timer {
	return &Timer{svc: s, name: name, handler: h, arg: arg, period: period}
}

// Close stops every timer and waits for the timer thread to exit.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, t := range s.armed {
		t.armed = false
	}
	s.armed = nil
	s.mu.Unlock()
	s.rearm.Set()
	s.exited.Wait()
}

// Start arms t to fire delay ticks from now, then every period ticks for a
// periodic timer. A zero delay uses the period. Restarting an armed timer
// moves its expiry.
func (t *Timer) Start(delay kernel.Ticks) error {
	s := t.svc
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if delay == 0 {
		delay = t.period
	}
	// remaining is kept relative to the thread's last pass.
	t.remaining = delay + kernel.Ticks(s.k.Now()-s.last)
	if !t.armed {
		t.armed = true
		s.armed = append(s.armed, t)
	}
	s.mu.Unlock()
	s.rearm.Set()
	return nil
}

// Stop disarms t. It reports whether t was armed.
func (t *Timer) Stop() bool {
	s := t.svc
	s.mu.Lock()
	was := t.armed
	if was {
		s.remove(t)
	}
	s.mu.Unlock()
	if was {
		s.rearm.Set()
	}
	return was
}

// Armed reports whether t will fire.
func (t *Timer) Armed() bool {
	t.svc.mu.Lock()
	defer t.svc.mu.Unlock()
	return t.armed
}

// Fired returns how many times t has fired.
func (t *Timer) Fired() uint64 {
	t.svc.mu.Lock()
	defer t.svc.mu.Unlock()
	return t.fired
}

func (s *Service) remove(t *Timer) {
	t.armed = false
	for i, a := range s.armed {
		if a == t {
			s.armed = append(s.armed[:i], s.armed[i+1:]...)
			return
		}
	}
}

// advance charges the ticks since the last pass to every armed timer, moves
// the expired ones to s.due and returns the wait until the next expiry.
func (s *Service) advance() kernel.Ticks {
	now := s.k.Now()
	elapsed := kernel.Ticks(now - s.last)
	s.last = now

	s.due = s.due[:0]
	wait := kernel.Forever
	keep := s.armed[:0]
	for _, t := range s.armed {
		if t.remaining <= elapsed {
			t.fired++
			s.due = append(s.due, t)
			if t.period == 0 {
				t.armed = false
				continue
			}
			t.remaining = t.period
		} else {
			t.remaining -= elapsed
		}
		keep = append(keep, t)
		if t.remaining < wait {
			wait = t.remaining
		}
	}
	clear(s.armed[len(keep):])
	s.armed = keep
	return wait
}

func (s *Service) run(any) {
	defer s.exited.Set()
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			s.log.Debug().Msg("timer service stopped")
			return
		}
		wait := s.advance()
		due := s.due
		s.mu.Unlock()

		for _, t := range due {
			if t.handler != nil {
				t.handler(t.arg)
			}
		}
		if len(due) > 0 {
			s.log.Trace().Int("fired", len(due)).Uint64("now", s.last).Msg("timers fired")
			// A handler may have re-armed or stopped timers.
			continue
		}
		s.rearm.WaitTimeout(wait)
	}
}
