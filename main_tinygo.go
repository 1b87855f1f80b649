//go:build tinygo

package main

import (
	"sparkrt/app"
	"sparkrt/hal"
	"sparkrt/internal/config"
)

func main() {
	h := hal.New()
	cfg := config.Default()
	cfg.Heap.Size = 64 << 10
	// The board clock ticks at 1 kHz; the display is slow to push.
	cfg.Monitor.Period = 500
	if err := app.Run(h, app.Config{File: cfg}); err != nil {
		h.Logger().WriteLineString("spark rt halted: " + err.Error())
	}
	select {}
}
