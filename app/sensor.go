package app

import (
	"sparkrt/kernel"
	"sparkrt/sparkos/drivers/busshare"
	"sparkrt/sparkos/services/workpool"

	"github.com/phuslu/log"
	"tinygo.org/x/drivers/tmp102"
)

type sensorArgs struct {
	bus  *busshare.I2C
	pool *workpool.Pool
	log  *log.Logger
}

// sensor samples the TMP102 once a second and hands each reading to the
// work pool. It exits when the sensor is missing.
func (s *system) sensor(arg any) {
	a := arg.(*sensorArgs)
	dev := tmp102.New(a.bus)
	dev.Configure(tmp102.Config{})
	if !dev.Connected() {
		a.log.Warn().Msg("tmp102 not connected")
		return
	}
	period := kernel.Ticks(s.cfg.Tick.Hz)
	for {
		milli, err := dev.ReadTemperature()
		if err != nil {
			a.log.Error().Err(err).Msg("tmp102 read")
		} else if err := a.pool.Submit(a.report, milli, 0); err != nil {
			a.log.Warn().Err(err).Msg("reading dropped")
		}
		s.k.Sleep(period)
	}
}

func (a *sensorArgs) report(arg any) {
	milli := arg.(int32)
	a.log.Info().Int("milli_c", int(milli)).Uint64("i2c_tx", a.bus.Transactions()).Msg("temperature")
}
