//go:build !tinygo

package hal

import (
	"io"
	"os"
	"sync"

	"tinygo.org/x/drivers"
)

// hostHAL runs on a desktop: stdout logging, an in-memory framebuffer shown
// by the window runner, a runner-driven clock and a simulated sensor bus.
type hostHAL struct {
	logger *hostLogger
	led    *logLED
	fb     *hostFramebuffer
	t      *hostTime
	i2c    *hostI2C
}

func New() HAL {
	logger := &hostLogger{w: os.Stdout}
	return &hostHAL{
		logger: logger,
		led:    &logLED{out: logger},
		fb:     newHostFramebuffer(320, 320),
		t:      newHostTime(),
		i2c:    newHostI2C(),
	}
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) LED() LED         { return h.led }
func (h *hostHAL) Display() Display { return fbDisplay{fb: h.fb} }
func (h *hostHAL) Time() Time       { return h.t }
func (h *hostHAL) I2C() drivers.I2C { return h.i2c }

// hostLogger serializes lines from kernel threads and runner goroutines.
type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.w, s+"\n")
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(append(b[:len(b):len(b)], '\n'))
}
