package app

import (
	"fmt"
	"image/color"
	"strings"
	"unicode/utf8"

	"sparkrt/hal"
	"sparkrt/kernel"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

const (
	panicLineHeight = 10
	panicBaseline   = 7
)

// panicHandler returns the kernel's OnPanic hook: it logs the panic and its
// stack, then paints them white-on-red on the framebuffer. The kernel halts
// after it returns.
func panicHandler(h hal.HAL) func(p *kernel.PanicError) {
	return func(p *kernel.PanicError) {
		lines := panicLines(p)
		if l := h.Logger(); l != nil {
			for _, line := range lines {
				l.WriteLineString(line)
			}
		}
		disp := h.Display()
		if disp == nil {
			return
		}
		fb := disp.Framebuffer()
		if fb == nil || fb.Format() != hal.PixelFormatRGB565 {
			return
		}
		drawPanic(fb, lines)
	}
}

func panicLines(p *kernel.PanicError) []string {
	lines := []string{
		"Spark RT panic",
		fmt.Sprintf("thread: %d (%s)", p.ID, p.Thread),
		fmt.Sprintf("panic: %v", p.Value),
	}
	if len(p.Stack) == 0 {
		return append(lines, "stack: unavailable")
	}
	lines = append(lines, "stack:")
	for _, line := range strings.Split(string(p.Stack), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func drawPanic(fb hal.Framebuffer, lines []string) {
	fb.ClearRGB(0xa0, 0, 0)
	d := panicDisplay{fb: fb}
	font := &proggy.TinySZ8pt7b
	_, cw := tinyfont.LineWidth(font, "0")
	cols := fb.Width() / max(int(cw), 1)
	fg := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

	y := 0
	for _, line := range lines {
		for line != "" {
			if y+panicLineHeight > fb.Height() {
				_ = fb.Present()
				return
			}
			var chunk string
			chunk, line = takeRunes(line, cols)
			tinyfont.WriteLine(d, font, 0, int16(y+panicBaseline), chunk, fg)
			y += panicLineHeight
			line = strings.TrimLeft(line, " \t")
		}
	}
	_ = fb.Present()
}

// panicDisplay is the minimal drivers.Displayer tinyfont needs.
type panicDisplay struct {
	fb hal.Framebuffer
}

func (d panicDisplay) Size() (x, y int16) { return int16(d.fb.Width()), int16(d.fb.Height()) }

func (d panicDisplay) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || int(x) >= d.fb.Width() || y < 0 || int(y) >= d.fb.Height() {
		return
	}
	buf := d.fb.Buffer()
	off := int(y)*d.fb.StrideBytes() + int(x)*2
	if off+1 >= len(buf) {
		return
	}
	p := uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
	buf[off] = byte(p)
	buf[off+1] = byte(p >> 8)
}

func (d panicDisplay) Display() error { return nil }

// takeRunes splits s after at most n runes.
func takeRunes(s string, n int) (prefix, rest string) {
	if n <= 0 {
		return s, ""
	}
	i := 0
	for count := 0; i < len(s) && count < n; count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i], s[i:]
}
