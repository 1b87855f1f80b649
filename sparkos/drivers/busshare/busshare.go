// Package busshare lets several kernel threads drive one I2C or SPI bus.
// Each transaction runs with the bus mutex held, so transfers from different
// threads never interleave.
package busshare

import (
	"sparkrt/kernel"

	"tinygo.org/x/drivers"
)

// I2C is a drivers.I2C shared between kernel threads.
type I2C struct {
	bus drivers.I2C
	mu  *kernel.Mutex
	txs uint64
}

var _ drivers.I2C = (*I2C)(nil)

func NewI2C(k *kernel.Kernel, bus drivers.I2C) *I2C {
	return &I2C{bus: bus, mu: k.NewMutex()}
}

// Tx runs one transaction with the bus held.
func (b *I2C) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs++
	return b.bus.Tx(addr, w, r)
}

// Do runs fn with the bus held for a sequence of transactions. The mutex is
// reentrant, so fn may call Tx on b.
func (b *I2C) Do(fn func(bus drivers.I2C) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(b)
}

// Transactions returns the number of transactions run.
func (b *I2C) Transactions() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.txs
}

// SPI is a drivers.SPI shared between devices with their own chip selects.
type SPI struct {
	bus drivers.SPI
	mu  *kernel.Mutex
}

func NewSPI(k *kernel.Kernel, bus drivers.SPI) *SPI {
	return &SPI{bus: bus, mu: k.NewMutex()}
}

// Device returns a drivers.SPI for one device. selectFn drives its chip
// select line: true asserts, false releases. It may be nil.
func (b *SPI) Device(selectFn func(active bool)) *SPIDevice {
	return &SPIDevice{shared: b, sel: selectFn}
}

// SPIDevice is one chip on a shared SPI bus.
type SPIDevice struct {
	shared *SPI
	sel    func(bool)
}

var _ drivers.SPI = (*SPIDevice)(nil)

func (d *SPIDevice) begin() {
	d.shared.mu.Lock()
	if d.sel != nil {
		d.sel(true)
	}
}

func (d *SPIDevice) end() {
	if d.sel != nil {
		d.sel(false)
	}
	d.shared.mu.Unlock()
}

// Tx transfers w and r with the chip selected.
func (d *SPIDevice) Tx(w, r []byte) error {
	d.begin()
	defer d.end()
	return d.shared.bus.Tx(w, r)
}

// Transfer exchanges one byte with the chip selected.
func (d *SPIDevice) Transfer(b byte) (byte, error) {
	d.begin()
	defer d.end()
	return d.shared.bus.Transfer(b)
}

// Do keeps the chip selected and the bus held while fn runs.
func (d *SPIDevice) Do(fn func(bus drivers.SPI) error) error {
	d.begin()
	defer d.end()
	return fn(d.shared.bus)
}
