package hal

// logLED stands in for a pin on boards without one: it reports level changes
// on a Logger.
type logLED struct {
	on  bool
	out Logger
	tag string
}

func (l *logLED) set(on bool) {
	if l.on == on {
		return
	}
	l.on = on
	if on {
		l.out.WriteLineString("led: HIGH" + l.tag)
	} else {
		l.out.WriteLineString("led: LOW" + l.tag)
	}
}

func (l *logLED) High() { l.set(true) }
func (l *logLED) Low()  { l.set(false) }

type fbDisplay struct{ fb Framebuffer }

func (d fbDisplay) Framebuffer() Framebuffer { return d.fb }
