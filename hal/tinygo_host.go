//go:build tinygo && !baremetal

package hal

import (
	"runtime"
	"time"

	"tinygo.org/x/drivers"
)

// tinyGoHostHAL backs `tinygo run` on linux or wasm: console logging, an
// in-memory framebuffer and no sensor bus.
type tinyGoHostHAL struct {
	logger printLogger
	led    *logLED
	fb     *hostFramebuffer
	t      *tickerTime
}

func New() HAL {
	return &tinyGoHostHAL{
		led: &logLED{out: printLogger{}, tag: " (tinygo/" + runtime.GOOS + ")"},
		fb:  newHostFramebuffer(320, 320),
		t:   newTickerTime(time.Millisecond),
	}
}

func (h *tinyGoHostHAL) Logger() Logger   { return h.logger }
func (h *tinyGoHostHAL) LED() LED         { return h.led }
func (h *tinyGoHostHAL) Display() Display { return fbDisplay{fb: h.fb} }
func (h *tinyGoHostHAL) Time() Time       { return h.t }
func (h *tinyGoHostHAL) I2C() drivers.I2C { return nullI2C{} }

type printLogger struct{}

func (printLogger) WriteLineString(s string) { println(s) }
func (printLogger) WriteLineBytes(b []byte)  { println(string(b)) }
