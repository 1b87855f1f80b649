package hal

import "testing"

type lines []string

func (l *lines) WriteLineString(s string) { *l = append(*l, s) }
func (l *lines) WriteLineBytes(b []byte)  { *l = append(*l, string(b)) }

func TestLogLEDReportsChangesOnly(t *testing.T) {
	var out lines
	led := &logLED{out: &out, tag: " (test)"}
	led.Low()
	led.High()
	led.High()
	led.Low()
	want := []string{"led: HIGH (test)", "led: LOW (test)"}
	if len(out) != len(want) || out[0] != want[0] || out[1] != want[1] {
		t.Fatalf("lines = %q, want %q", out, want)
	}
}
