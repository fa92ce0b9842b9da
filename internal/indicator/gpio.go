package indicator

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var (
	hostOnce sync.Once
	hostErr  error
)

func initHost() error {
	hostOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			hostErr = fmt.Errorf("failed to initialize gpio host drivers: %w", err)
		}
	})
	return hostErr
}

// GPIOOutput drives an LED on a GPIO pin, active high.
type GPIOOutput struct {
	pin gpio.PinIO
}

// OpenGPIO claims the named pin (e.g. "GPIO18") as an output, initially low.
func OpenGPIO(name string) (*GPIOOutput, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to set %s as output: %w", name, err)
	}
	return &GPIOOutput{pin: pin}, nil
}

func (g *GPIOOutput) On() error {
	return g.pin.Out(gpio.High)
}

func (g *GPIOOutput) Off() error {
	return g.pin.Out(gpio.Low)
}

// Close drives the pin low and stops any ongoing operation on it.
func (g *GPIOOutput) Close() error {
	if err := g.pin.Out(gpio.Low); err != nil {
		return err
	}
	return g.pin.Halt()
}
