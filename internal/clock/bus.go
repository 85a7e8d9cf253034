package clock

import (
	"fmt"
	"io"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

// periph buses already speak the drivers.I2C contract.
var _ drivers.I2C = i2c.Bus(nil)

// OpenBus initialises the periph host drivers and opens the named I2C bus.
// An empty name selects the first bus found.
func OpenBus(name string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	return bus, nil
}

// OpenBM8563 opens the bus and runs the chip's init sequence. The closer
// releases the bus. A stopped oscillator is not an error; callers check
// IsRunning.
func OpenBM8563(busName string) (*BM8563, io.Closer, error) {
	bus, err := OpenBus(busName)
	if err != nil {
		return nil, nil, err
	}
	rtc := NewBM8563(bus)
	if _, err := rtc.Begin(); err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("bm8563 init: %w", err)
	}
	return rtc, bus, nil
}
