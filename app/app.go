// Package app boots the kernel on a HAL and starts the system services.
package app

import (
	"context"
	"errors"
	"fmt"

	"sparkrt/hal"
	"sparkrt/internal/buildinfo"
	"sparkrt/internal/config"
	"sparkrt/internal/logging"
	"sparkrt/internal/metrics"
	"sparkrt/kernel"
	"sparkrt/kernel/heap"
	"sparkrt/kernel/port"
	"sparkrt/sparkos/drivers/busshare"
	"sparkrt/sparkos/services/logger"
	"sparkrt/sparkos/services/monitor"
	"sparkrt/sparkos/services/timer"
	"sparkrt/sparkos/services/workpool"

	"github.com/phuslu/log"
)

// ErrHalted is returned by the step function once the kernel stopped cleanly.
var ErrHalted = errors.New("app: system halted")

// Service priorities. The main thread runs at the kernel default (16).
const (
	prioLogger  = 4
	prioMonitor = 6
	prioWorker  = 10
	prioSensor  = 12
	prioMetrics = 20
	prioTimer   = 24
)

type Config struct {
	// File is the loaded configuration; nil uses config.Default().
	File *config.Config
	// Metrics receives kernel samples when non-nil.
	Metrics *metrics.Collector
}

type system struct {
	h   hal.HAL
	cfg *config.Config
	col *metrics.Collector
	k   *kernel.Kernel
	log *log.Logger
}

func newSystem(h hal.HAL, cfg Config) (*system, error) {
	fc := cfg.File
	if fc == nil {
		fc = config.Default()
	}
	if err := fc.Validate(); err != nil {
		return nil, err
	}

	var mem heap.Allocator
	switch fc.Heap.Kind {
	case "runtime":
		mem = heap.NewRuntime(fc.Heap.Size)
	default:
		b, err := heap.NewBare(fc.Heap.Size)
		if err != nil {
			return nil, fmt.Errorf("app: heap: %w", err)
		}
		mem = b
	}

	var opts []port.Option
	if t := h.Time(); t != nil {
		if ch := t.Ticks(); ch != nil {
			opts = append(opts, port.WithTickSource(ch))
		}
	}

	base := logging.New(h.Logger(), logging.Options{
		Level:  fc.Log.Level,
		Format: fc.Log.Format,
		Color:  fc.Log.Color,
	})
	kc := fc.KernelConfig()
	kc.Log = logging.Module(base, "kernel")
	kc.OnPanic = panicHandler(h)

	s := &system{
		h:   h,
		cfg: fc,
		col: cfg.Metrics,
		k:   kernel.New(port.NewSim(opts...), mem, kc),
		log: logging.Module(base, "app"),
	}
	return s, nil
}

// New boots the system in the background and returns the runner's step
// function. The step function reports the kernel's exit: ErrHalted after a
// clean halt, the halting error otherwise. Cancelling ctx halts the kernel.
func New(ctx context.Context, h hal.HAL, cfg Config) func() error {
	s, err := newSystem(h, cfg)
	if err != nil {
		return func() error { return err }
	}
	done := make(chan error, 1)
	go func() { done <- s.k.Run(ctx, s.boot, nil) }()

	var result error
	return func() error {
		if result != nil {
			return result
		}
		select {
		case err := <-done:
			if err == nil {
				err = ErrHalted
			}
			result = err
		default:
		}
		return result
	}
}

// Run boots the system and blocks until the kernel halts.
func Run(h hal.HAL, cfg Config) error {
	s, err := newSystem(h, cfg)
	if err != nil {
		return err
	}
	return s.k.Run(context.Background(), s.boot, nil)
}

// boot is the main thread: it starts the services and returns.
func (s *system) boot(any) {
	k := s.k
	s.log.Info().Str("build", buildinfo.Short()).Int("heap", s.cfg.Heap.Size).Msg("booting")

	ls, err := logger.New(k, s.h.Logger(), s.cfg.Log.MailboxSize, kernel.ThreadAttr{Priority: prioLogger})
	if err != nil {
		s.log.Error().Err(err).Msg("logger service")
		return
	}
	svcLog := ls.Logger(logging.ParseLevel(s.cfg.Log.Level), "services")

	timers, err := timer.New(k, kernel.ThreadAttr{Priority: prioTimer}, svcLog)
	if err != nil {
		s.log.Error().Err(err).Msg("timer service")
		return
	}
	s.startBlink(timers)

	pool, err := workpool.New(k, workpool.Options{
		Workers: 2,
		Depth:   8,
		Thread:  kernel.ThreadAttr{Name: "worker", Priority: prioWorker},
		Log:     svcLog,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("work pool")
		return
	}

	bus := busshare.NewI2C(k, s.h.I2C())
	if _, err := k.Create(s.sensor, &sensorArgs{bus: bus, pool: pool, log: svcLog},
		kernel.ThreadAttr{Name: "sensor", Priority: prioSensor}); err != nil {
		s.log.Error().Err(err).Msg("sensor thread")
	}

	if s.cfg.Monitor.Enabled {
		if _, err := monitor.New(k, s.h.Display(), s.cfg.Monitor.Period, kernel.ThreadAttr{Priority: prioMonitor}); err != nil {
			s.log.Warn().Err(err).Msg("monitor disabled")
		}
	}

	if s.col != nil {
		if _, err := metrics.StartSampler(k, s.col, s.cfg.Metrics.Interval, kernel.ThreadAttr{Priority: prioMetrics}); err != nil {
			s.log.Error().Err(err).Msg("metrics sampler")
		}
	}

	st := k.Stats()
	s.log.Info().Int("threads", st.Threads).Int("heap_used", st.HeapUsed).Msg("services started")
}

func (s *system) startBlink(timers *timer.Service) {
	led := s.h.LED()
	if led == nil {
		return
	}
	on := false
	t := timers.NewTimer("blink", kernel.Ticks(max(s.cfg.Tick.Hz/2, 1)), func(any) {
		on = !on
		if on {
			led.High()
		} else {
			led.Low()
		}
	}, nil)
	if err := t.Start(0); err != nil {
		s.log.Error().Err(err).Msg("blink timer")
	}
}
