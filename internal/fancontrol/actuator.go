// Package fancontrol turns a fan speed in [0,255] into hardware writes.
package fancontrol

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"thermal-governor/internal/config"
)

// Actuator is a governor.Actuator that owns a device handle.
type Actuator interface {
	Apply(ctx context.Context, speed uint8) error
	Close() error
}

var (
	openEMC2301Fn  = openEMC2301
	openSysfsPWMFn = openSysfsPWM
	openHwmonPWMFn = openHwmonPWM
	openGPIOFn     = openGPIO
	openRPIOFn     = openRPIO
)

// Open initializes the configured backend. The fan is not written to until
// the first Apply.
func Open(cfg config.FanConfig, log logr.Logger) (Actuator, error) {
	log = log.WithValues("backend", cfg.Backend)

	switch cfg.Backend {
	case config.BackendEMC2301:
		return openEMC2301Fn(cfg.I2CBus, cfg.I2CAddr)

	case config.BackendSysfsPWM:
		drv, err := openSysfsPWMFn(cfg.PWMChip, cfg.PWMChannel)
		if err != nil {
			return nil, err
		}
		return newDutyActuator(drv, cfg.PWMFrequency)

	case config.BackendHwmonPWM:
		return openHwmonPWMFn(cfg.PWMPath)

	case config.BackendGPIO:
		drv, err := openGPIOFn(cfg.Pin)
		if err != nil {
			return nil, err
		}
		log.Info("gpio backend is on/off only; any speed above 0 runs the fan at full power", "pin", cfg.Pin)
		return newDutyActuator(drv, 0)

	case config.BackendRPIO:
		drv, err := openRPIOFn(cfg.Pin)
		if err != nil {
			return nil, err
		}
		return newDutyActuator(drv, cfg.PWMFrequency)

	case config.BackendLog:
		return &logActuator{log: log}, nil
	}
	return nil, fmt.Errorf("fancontrol: unsupported backend %q", cfg.Backend)
}

// dutyActuator maps speeds onto a percent-duty driver.
type dutyActuator struct {
	drv pwmDriver
}

func newDutyActuator(drv pwmDriver, freqHz int) (*dutyActuator, error) {
	if freqHz > 0 {
		if err := drv.SetFrequencyHz(freqHz); err != nil {
			_ = drv.Close()
			return nil, fmt.Errorf("fancontrol: set pwm frequency failed: %w", err)
		}
	}
	return &dutyActuator{drv: drv}, nil
}

func (a *dutyActuator) Apply(ctx context.Context, speed uint8) error {
	if err := a.drv.SetDutyPercent(speedToPercent(speed)); err != nil {
		return fmt.Errorf("fancontrol: set pwm duty failed: %w", err)
	}
	return nil
}

func (a *dutyActuator) Close() error { return a.drv.Close() }

func speedToPercent(speed uint8) float64 {
	return float64(speed) * 100.0 / 255.0
}

// logActuator only records what it would have written.
type logActuator struct {
	log logr.Logger
}

func (a *logActuator) Apply(ctx context.Context, speed uint8) error {
	a.log.Info("dry run: fan speed", "speed", speed, "dutyPercent", speedToPercent(speed))
	return nil
}

func (a *logActuator) Close() error { return nil }
