//go:build !tinygo

package hal

import (
	"fmt"
	"sync"
)

// TMP102Addr is the address of the simulated temperature sensor.
const TMP102Addr = 0x48

// hostI2C is an in-memory bus of register-mapped devices. A write whose
// first byte is a register number selects it; the rest of the write is
// stored there and a read returns the selected register onward.
type hostI2C struct {
	mu      sync.Mutex
	devices map[uint16]*regDevice
}

type regDevice struct {
	regs   []byte
	width  int
	update func(d *regDevice, reg byte)
}

func newHostI2C() *hostI2C {
	b := &hostI2C{devices: make(map[uint16]*regDevice)}
	b.attach(TMP102Addr, newTMP102())
	return b
}

func (b *hostI2C) attach(addr uint16, d *regDevice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[addr] = d
}

func (b *hostI2C) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.devices[addr]
	if !ok {
		return fmt.Errorf("i2c: no device at %#x", addr)
	}
	if len(w) == 0 {
		return fmt.Errorf("i2c: empty write to %#x", addr)
	}
	off := int(w[0]) * d.width
	if off >= len(d.regs) {
		return fmt.Errorf("i2c: register %#x out of range at %#x", w[0], addr)
	}
	copy(d.regs[off:], w[1:])
	if d.update != nil {
		d.update(d, w[0])
	}
	copy(r, d.regs[off:])
	return nil
}

// newTMP102 models a TMP102 whose temperature climbs by one LSB per read
// and wraps after 2°C, starting at 24°C.
func newTMP102() *regDevice {
	var step uint16
	return &regDevice{
		regs:  []byte{0x18, 0x00, 0x60, 0xA0, 0x4B, 0x00, 0x50, 0x00},
		width: 2,
		update: func(d *regDevice, reg byte) {
			if reg != 0 {
				return
			}
			raw := (uint16(24)<<4 + step%32) << 4
			d.regs[0] = byte(raw >> 8)
			d.regs[1] = byte(raw)
			step++
		},
	}
}
