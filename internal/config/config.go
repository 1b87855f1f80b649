// Package config loads the TOML configuration of the host build.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"sparkrt/kernel"

	"github.com/BurntSushi/toml"
)

// Config is the whole configuration file.
type Config struct {
	Kernel  KernelConfig  `toml:"kernel"`
	Heap    HeapConfig    `toml:"heap"`
	Tick    TickConfig    `toml:"tick"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
	Monitor MonitorConfig `toml:"monitor"`
}

type KernelConfig struct {
	MaxPriority      int `toml:"max_priority"`
	DefaultPriority  int `toml:"default_priority"`
	DefaultStackSize int `toml:"default_stack_size"`
	MinStackSize     int `toml:"min_stack_size"`
	StackGuardSize   int `toml:"stack_guard_size"`

	// WaitOrder is "fifo" or "priority".
	WaitOrder  string `toml:"wait_order"`
	RoundRobin bool   `toml:"round_robin"`
	TimeSlice  uint32 `toml:"time_slice"`

	// Overflow is "reset" or "suspend".
	Overflow string `toml:"overflow"`
}

type HeapConfig struct {
	// Kind is "bare" (fixed arena) or "runtime" (Go heap with a budget).
	Kind string `toml:"kind"`
	Size int    `toml:"size"`
}

type TickConfig struct {
	// Hz is the tick rate of the host clock.
	Hz int `toml:"hz"`
}

type LogConfig struct {
	Level string `toml:"level"`
	// Format is "json", "console" or "logfmt".
	Format string `toml:"format"`
	Color  bool   `toml:"color"`
	// MailboxSize is the byte size of the logger service mailbox.
	MailboxSize int `toml:"mailbox_size"`
}

type MetricsConfig struct {
	Enabled       bool   `toml:"enabled"`
	ListenAddress string `toml:"listen_address"`
	Path          string `toml:"path"`
	// Interval is the sampling period in ticks.
	Interval uint32 `toml:"interval"`
}

type MonitorConfig struct {
	Enabled bool `toml:"enabled"`
	// Period is the redraw period in ticks.
	Period uint32 `toml:"period"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	kc := kernel.DefaultConfig()
	return &Config{
		Kernel: KernelConfig{
			MaxPriority:      kc.MaxPriority,
			DefaultPriority:  kc.DefaultPriority,
			DefaultStackSize: kc.DefaultStackSize,
			MinStackSize:     kc.MinStackSize,
			StackGuardSize:   kc.StackGuardSize,
			WaitOrder:        kc.WaitOrder.String(),
			RoundRobin:       true,
			TimeSlice:        kc.TimeSlice,
			Overflow:         "reset",
		},
		Heap: HeapConfig{Kind: "bare", Size: 256 << 10},
		Tick: TickConfig{Hz: 1000},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			MailboxSize: 4096,
		},
		Metrics: MetricsConfig{
			ListenAddress: "localhost:9190",
			Path:          "/metrics",
			Interval:      1000,
		},
		Monitor: MonitorConfig{Enabled: true, Period: 250},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if und := md.Undecoded(); len(und) > 0 {
		keys := make([]string, len(und))
		for i, k := range und {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config file %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	k := c.Kernel
	if k.MaxPriority < 1 || k.MaxPriority > kernel.MaxPriorityCap {
		return fmt.Errorf("kernel.max_priority %d out of range 1..%d", k.MaxPriority, kernel.MaxPriorityCap)
	}
	if k.DefaultPriority < 1 || k.DefaultPriority > k.MaxPriority {
		return fmt.Errorf("kernel.default_priority %d out of range 1..%d", k.DefaultPriority, k.MaxPriority)
	}
	if k.MinStackSize <= 0 || k.DefaultStackSize < k.MinStackSize {
		return fmt.Errorf("kernel.default_stack_size %d below min_stack_size %d", k.DefaultStackSize, k.MinStackSize)
	}
	if k.StackGuardSize < 0 || k.StackGuardSize > k.MinStackSize/2 {
		return fmt.Errorf("kernel.stack_guard_size %d must be within 0..%d", k.StackGuardSize, k.MinStackSize/2)
	}
	if _, err := parseWaitOrder(k.WaitOrder); err != nil {
		return err
	}
	if _, err := parseOverflow(k.Overflow); err != nil {
		return err
	}
	switch c.Heap.Kind {
	case "bare", "runtime":
	default:
		return fmt.Errorf("heap.kind %q must be bare or runtime", c.Heap.Kind)
	}
	if c.Heap.Size <= 0 {
		return fmt.Errorf("heap.size must be positive")
	}
	if c.Tick.Hz <= 0 {
		return fmt.Errorf("tick.hz must be positive")
	}
	switch c.Log.Format {
	case "json", "console", "logfmt":
	default:
		return fmt.Errorf("log.format %q must be json, console or logfmt", c.Log.Format)
	}
	if c.Log.MailboxSize < 64 {
		return fmt.Errorf("log.mailbox_size %d below 64", c.Log.MailboxSize)
	}
	if c.Metrics.Enabled {
		if c.Metrics.ListenAddress == "" {
			return fmt.Errorf("metrics.listen_address is required when metrics are enabled")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
		}
		if c.Metrics.Interval == 0 {
			return fmt.Errorf("metrics.interval must be positive")
		}
	}
	if c.Monitor.Enabled && c.Monitor.Period == 0 {
		return fmt.Errorf("monitor.period must be positive")
	}
	return nil
}

// KernelConfig maps the [kernel] section onto a kernel.Config. Hooks and the
// logger are left for the caller.
func (c *Config) KernelConfig() kernel.Config {
	order, _ := parseWaitOrder(c.Kernel.WaitOrder)
	overflow, _ := parseOverflow(c.Kernel.Overflow)
	return kernel.Config{
		MaxPriority:      c.Kernel.MaxPriority,
		DefaultPriority:  c.Kernel.DefaultPriority,
		DefaultStackSize: c.Kernel.DefaultStackSize,
		MinStackSize:     c.Kernel.MinStackSize,
		StackGuardSize:   c.Kernel.StackGuardSize,
		WaitOrder:        order,
		RoundRobin:       c.Kernel.RoundRobin,
		TimeSlice:        c.Kernel.TimeSlice,
		Overflow:         overflow,
	}
}

func parseWaitOrder(s string) (kernel.WaitOrder, error) {
	switch s {
	case "", "fifo":
		return kernel.FIFO, nil
	case "priority":
		return kernel.PriorityOrder, nil
	}
	return kernel.FIFO, fmt.Errorf("kernel.wait_order %q must be fifo or priority", s)
}

func parseOverflow(s string) (kernel.OverflowPolicy, error) {
	switch s {
	case "", "reset":
		return kernel.ResetOnOverflow, nil
	case "suspend":
		return kernel.SuspendOnOverflow, nil
	}
	return nil, fmt.Errorf("kernel.overflow %q must be reset or suspend", s)
}
