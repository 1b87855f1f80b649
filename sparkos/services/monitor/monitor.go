// Package monitor draws the kernel thread table on the HAL framebuffer.
package monitor

import (
	"errors"
	"fmt"

	"sparkrt/hal"
	"sparkrt/kernel"

	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"
)

const (
	fontHeight = 10
	fontOffset = 6
)

// ErrNoFramebuffer is returned by New when the display has nothing to draw on.
var ErrNoFramebuffer = errors.New("monitor: no RGB565 framebuffer")

type Service struct {
	k      *kernel.Kernel
	fb     hal.Framebuffer
	d      *fbDisplay
	period kernel.Ticks
	rows   int

	stop   *kernel.Event
	exited *kernel.Event
	thread *kernel.Thread
	frames uint64
}

// New starts a thread that redraws the table every period ticks.
func New(k *kernel.Kernel, disp hal.Display, period kernel.Ticks, attr kernel.ThreadAttr) (*Service, error) {
	if disp == nil {
		return nil, ErrNoFramebuffer
	}
	fb := disp.Framebuffer()
	d := newFBDisplay(fb)
	if !d.usable() {
		return nil, ErrNoFramebuffer
	}
	if period == 0 {
		period = 100
	}
	if attr.Name == "" {
		attr.Name = "monitor"
	}
	s := &Service{
		k:      k,
		fb:     fb,
		d:      d,
		period: period,
		rows:   d.h / fontHeight,
		stop:   k.NewEvent(false, false),
		exited: k.NewEvent(false, false),
	}
	t, err := k.Create(s.run, nil, attr)
	if err != nil {
		return nil, err
	}
	s.thread = t
	return s, nil
}

func (s *Service) Thread() *kernel.Thread { return s.thread }

// Frames returns the number of frames presented.
func (s *Service) Frames() uint64 { return s.frames }

// Close stops the monitor thread and waits for it to exit.
func (s *Service) Close() {
	s.stop.Set()
	s.exited.Wait()
}

// Format renders a stats snapshot as text lines, header first.
func Format(st kernel.Stats, threads []kernel.ThreadInfo, now uint64) []string {
	lines := []string{
		fmt.Sprintf("tick %d  threads %d", now, st.Threads),
		fmt.Sprintf("sw %d  pre %d  flt %d", st.Switches, st.Preemptions, st.Faults),
		fmt.Sprintf("heap %d/%d", st.HeapUsed, st.HeapUsed+st.HeapAvailable),
		"ID NAME     PR STATE    STACK",
	}
	for _, t := range threads {
		name := t.Name
		if len(name) > 8 {
			name = name[:8]
		}
		lines = append(lines, fmt.Sprintf("%2d %-8s %2d %-8s %d/%d",
			t.ID, name, t.Priority, t.State, t.StackUsed, t.StackSize))
	}
	return lines
}

func (s *Service) render() {
	lines := Format(s.k.Stats(), s.k.Threads(), s.k.Now())
	if len(lines) > s.rows {
		lines = lines[:s.rows]
	}
	s.fb.ClearRGB(0, 0, 0)
	term := tinyterm.NewTerminal(s.d)
	term.Configure(&tinyterm.Config{
		Font:       &proggy.TinySZ8pt7b,
		FontHeight: fontHeight,
		FontOffset: fontOffset,
	})
	for i, l := range lines {
		if i > 0 {
			term.Write([]byte("\r\n"))
		}
		term.Write([]byte(l))
	}
	if err := s.d.Display(); err == nil {
		s.frames++
	}
}

func (s *Service) run(any) {
	defer s.exited.Set()
	for {
		s.render()
		if _, err := s.stop.WaitTimeout(s.period); err == nil {
			return
		}
	}
}
