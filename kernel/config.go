package kernel

import (
	"io"

	"github.com/phuslu/log"
)

// Ticks counts periodic timer interrupts.
type Ticks = uint32

// Forever is the timeout that never expires. A timeout of 0 polls.
const Forever Ticks = ^Ticks(0)

// Priority bounds. Higher numbers run first; the idle thread alone runs at
// IdlePriority.
const (
	IdlePriority    = 0
	MaxPriorityCap  = 63
	defaultMaxPrio  = 31
	defaultPriority = 16
)

// WaitOrder selects how an object's waiters are woken.
type WaitOrder uint8

const (
	// FIFO wakes waiters in arrival order.
	FIFO WaitOrder = iota
	// PriorityOrder wakes the highest priority waiter first, FIFO among equals.
	PriorityOrder
)

func (o WaitOrder) String() string {
	switch o {
	case FIFO:
		return "fifo"
	case PriorityOrder:
		return "priority"
	default:
		return "unknown"
	}
}

// Config holds the compile-time knobs of the kernel.
type Config struct {
	// MaxPriority is the highest thread priority, at most MaxPriorityCap.
	MaxPriority int
	// DefaultPriority is used for threads created with priority 0.
	DefaultPriority int

	DefaultStackSize int
	MinStackSize     int
	// StackGuardSize is the number of lowest stack bytes checked for overflow
	// at every switch away from a thread. 0 disables the check.
	StackGuardSize int

	// WaitOrder is the default order of new objects' wait queues.
	WaitOrder WaitOrder

	// RoundRobin rotates equal-priority threads every TimeSlice ticks.
	RoundRobin bool
	TimeSlice  Ticks

	// Overflow decides what happens to a thread whose guard was overwritten.
	// Nil means ResetOnOverflow.
	Overflow OverflowPolicy

	// OnFault is called on kernel misuse instead of panicking.
	OnFault func(err error)
	// OnPanic is called once with the panic that halts the system. It must
	// not block or panic.
	OnPanic func(p *PanicError)
	// OnAllocFail is called when a kernel allocation of size bytes fails.
	OnAllocFail func(size int)

	// Log receives kernel diagnostics. Nil discards them.
	Log *log.Logger
}

// DefaultConfig returns the configuration used for zero fields.
func DefaultConfig() Config {
	return Config{
		MaxPriority:      defaultMaxPrio,
		DefaultPriority:  defaultPriority,
		DefaultStackSize: 2048,
		MinStackSize:     256,
		StackGuardSize:   32,
		WaitOrder:        FIFO,
		TimeSlice:        10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPriority <= 0 {
		c.MaxPriority = d.MaxPriority
	}
	if c.MaxPriority > MaxPriorityCap {
		c.MaxPriority = MaxPriorityCap
	}
	if c.DefaultPriority <= 0 {
		c.DefaultPriority = d.DefaultPriority
	}
	if c.DefaultPriority > c.MaxPriority {
		c.DefaultPriority = c.MaxPriority
	}
	if c.MinStackSize <= 0 {
		c.MinStackSize = d.MinStackSize
	}
	if c.DefaultStackSize <= 0 {
		c.DefaultStackSize = d.DefaultStackSize
	}
	if c.DefaultStackSize < c.MinStackSize {
		c.DefaultStackSize = c.MinStackSize
	}
	if c.StackGuardSize < 0 {
		c.StackGuardSize = 0
	}
	if c.StackGuardSize > c.MinStackSize/2 {
		c.StackGuardSize = c.MinStackSize / 2
	}
	if c.TimeSlice == 0 {
		c.TimeSlice = d.TimeSlice
	}
	if c.Overflow == nil {
		c.Overflow = ResetOnOverflow
	}
	if c.Log == nil {
		c.Log = &log.Logger{Level: log.PanicLevel, Writer: &log.IOWriter{Writer: io.Discard}}
	}
	return c
}

// clampPriority maps a requested priority onto 1..MaxPriority.
func (c *Config) clampPriority(p int) int {
	if p <= 0 {
		return c.DefaultPriority
	}
	if p > c.MaxPriority {
		return c.MaxPriority
	}
	return p
}
