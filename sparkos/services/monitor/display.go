package monitor

import (
	"image/color"

	"sparkrt/hal"

	"tinygo.org/x/drivers"
)

// fbDisplay draws into an RGB565 hal.Framebuffer for tinyfont and tinyterm.
// Out-of-range pixels are clipped.
type fbDisplay struct {
	fb     hal.Framebuffer
	buf    []byte
	w, h   int
	stride int
}

func newFBDisplay(fb hal.Framebuffer) *fbDisplay {
	d := &fbDisplay{fb: fb}
	if fb != nil && fb.Format() == hal.PixelFormatRGB565 {
		d.buf = fb.Buffer()
		d.w, d.h = fb.Width(), fb.Height()
		d.stride = fb.StrideBytes()
	}
	return d
}

// usable reports whether there are pixels to draw into.
func (d *fbDisplay) usable() bool { return d.buf != nil && d.w > 0 && d.h > 0 }

func (d *fbDisplay) Size() (x, y int16) { return int16(d.w), int16(d.h) }

func (d *fbDisplay) put(x, y int, lo, hi byte) {
	off := y*d.stride + x*2
	if off < 0 || off+1 >= len(d.buf) {
		return
	}
	d.buf[off] = lo
	d.buf[off+1] = hi
}

func (d *fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	if !d.usable() || x < 0 || int(x) >= d.w || y < 0 || int(y) >= d.h {
		return
	}
	p := rgb565(c)
	d.put(int(x), int(y), byte(p), byte(p>>8))
}

func (d *fbDisplay) Display() error {
	if d.fb == nil {
		return nil
	}
	return d.fb.Present()
}

func (d *fbDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	if !d.usable() {
		return nil
	}
	x0, x1 := clamp(int(x), 0, d.w), clamp(int(x)+int(width), 0, d.w)
	y0, y1 := clamp(int(y), 0, d.h), clamp(int(y)+int(height), 0, d.h)
	p := rgb565(c)
	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			d.put(px, py, byte(p), byte(p>>8))
		}
	}
	return nil
}

// SetScroll is a no-op: the monitor redraws whole frames.
func (d *fbDisplay) SetScroll(line int16) {}

func (d *fbDisplay) SetRotation(rotation drivers.Rotation) error { return nil }

func rgb565(c color.RGBA) uint16 {
	return uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
