// Package indicator drives the authorized and denied status outputs.
package indicator

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/face-gate/internal/config"
	"go.uber.org/zap"
)

// Output is a single on/off indicator such as an LED.
type Output interface {
	On() error
	Off() error
	Close() error
}

// Pair is the authorized (green) and denied (red) indicator pair.
type Pair struct {
	Authorized Output
	Denied     Output
}

// Show lights the indicator for the given decision and turns the other off.
func (p *Pair) Show(authorized bool) error {
	if authorized {
		return errors.Join(p.Denied.Off(), p.Authorized.On())
	}
	return errors.Join(p.Authorized.Off(), p.Denied.On())
}

// Clear turns both indicators off.
func (p *Pair) Clear() error {
	return errors.Join(p.Authorized.Off(), p.Denied.Off())
}

// Close turns both indicators off and releases them.
func (p *Pair) Close() error {
	return errors.Join(p.Clear(), p.Authorized.Close(), p.Denied.Close())
}

// Open creates the indicator pair for the configured driver. Both outputs
// start off.
func Open(cfg config.IndicatorConfig, logger *zap.Logger) (*Pair, error) {
	switch cfg.Driver {
	case config.IndicatorGPIO:
		authorized, err := OpenGPIO(cfg.AuthorizedPin)
		if err != nil {
			return nil, err
		}
		denied, err := OpenGPIO(cfg.DeniedPin)
		if err != nil {
			authorized.Close()
			return nil, err
		}
		return &Pair{Authorized: authorized, Denied: denied}, nil
	case config.IndicatorLog:
		return &Pair{
			Authorized: NewLogOutput("authorized", logger),
			Denied:     NewLogOutput("denied", logger),
		}, nil
	default:
		return nil, fmt.Errorf("unknown indicator driver %q", cfg.Driver)
	}
}
