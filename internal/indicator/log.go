package indicator

import (
	"sync"

	"go.uber.org/zap"
)

// LogOutput reports indicator changes to the log instead of hardware.
// Only state transitions are logged.
type LogOutput struct {
	name   string
	logger *zap.Logger

	mu sync.Mutex
	on bool
}

// NewLogOutput returns an indicator that starts off.
func NewLogOutput(name string, logger *zap.Logger) *LogOutput {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogOutput{name: name, logger: logger}
}

func (l *LogOutput) On() error {
	l.set(true)
	return nil
}

func (l *LogOutput) Off() error {
	l.set(false)
	return nil
}

func (l *LogOutput) Close() error {
	return l.Off()
}

// IsOn reports the current state.
func (l *LogOutput) IsOn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

func (l *LogOutput) set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.on == on {
		return
	}
	l.on = on
	l.logger.Info("indicator changed", zap.String("indicator", l.name), zap.Bool("on", on))
}
