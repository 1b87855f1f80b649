// Package logger drains log lines from kernel threads to the HAL logger on
// its own thread, so a slow console never stalls the writer.
package logger

import (
	"bytes"
	"errors"
	"sync/atomic"

	"sparkrt/hal"
	"sparkrt/kernel"
	"sparkrt/sparkos/ipc"

	"github.com/phuslu/log"
)

// MaxLine is the longest line kept; longer lines are cut.
const MaxLine = 240

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("logger: closed")

type Service struct {
	k   *kernel.Kernel
	out hal.Logger
	mb  *ipc.Mailbox

	closing atomic.Bool
	dropped atomic.Uint32
	written atomic.Uint32
	exited  *kernel.Event
	thread  *kernel.Thread
}

// New allocates a mailbox of size bytes and starts the drain thread.
func New(k *kernel.Kernel, out hal.Logger, size int, attr kernel.ThreadAttr) (*Service, error) {
	mb, err := ipc.NewMailbox(k, size)
	if err != nil {
		return nil, err
	}
	if attr.Name == "" {
		attr.Name = "logger"
	}
	s := &Service{k: k, out: out, mb: mb, exited: k.NewEvent(false, false)}
	t, err := k.Create(s.run, nil, attr)
	if err != nil {
		mb.Close()
		return nil, err
	}
	s.thread = t
	return s, nil
}

// Write queues one line without waiting. The line is dropped when the
// mailbox is full or busy, or when Write runs in interrupt context. It is
// safe inside a critical section.
func (s *Service) Write(p []byte) (int, error) {
	if s.closing.Load() {
		return 0, ErrClosed
	}
	line := bytes.TrimRight(p, "\r\n")
	if len(line) == 0 {
		return len(p), nil
	}
	if len(line) > MaxLine {
		line = line[:MaxLine]
	}
	if s.k.InInterrupt() || !s.mb.TryPost(line) {
		s.dropped.Add(1)
	}
	return len(p), nil
}

// Logger returns a phuslu logger writing JSON lines through s.
func (s *Service) Logger(level log.Level, module string) *log.Logger {
	return &log.Logger{
		Level:   level,
		Writer:  &log.IOWriter{Writer: s},
		Context: log.NewContext(nil).Str("module", module).Value(),
	}
}

// Dropped returns the lines lost to a full or busy mailbox.
func (s *Service) Dropped() uint32 { return s.dropped.Load() }

// Written returns the lines handed to the HAL logger.
func (s *Service) Written() uint32 { return s.written.Load() }

// Close flushes the queued lines and stops the drain thread.
func (s *Service) Close() {
	if s.closing.Swap(true) {
		return
	}
	// Write never queues an empty line, so an empty frame ends the stream.
	s.mb.Post(nil, kernel.Forever)
	s.exited.Wait()
	s.mb.Close()
}

func (s *Service) run(any) {
	defer s.exited.Set()
	buf := make([]byte, MaxLine)
	for {
		n, err := s.mb.Read(buf, kernel.Forever)
		if err != nil {
			continue
		}
		if n == 0 {
			return
		}
		if s.out != nil {
			s.out.WriteLineBytes(buf[:n])
			s.written.Add(1)
		}
	}
}
