package fancontrol

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// hwmonPWM writes 0..255 straight into a hwmon pwmN attribute, e.g. the
// pwm-fan driver on the Pi 5 active cooler (/sys/class/hwmon/hwmon2/pwm1).
type hwmonPWM struct {
	path string
}

func openHwmonPWM(path string) (Actuator, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("fancontrol: hwmon pwm: %w", err)
	}
	// Mode 1 is manual control; the kernel thermal governor stops touching
	// the fan.
	enable := path + "_enable"
	if _, err := os.Stat(enable); err == nil {
		if err := writeSysfs(enable, "1"); err != nil {
			return nil, fmt.Errorf("fancontrol: hwmon pwm manual mode: %w", err)
		}
	}
	return &hwmonPWM{path: path}, nil
}

func (h *hwmonPWM) Apply(ctx context.Context, speed uint8) error {
	if err := writeSysfs(h.path, strconv.Itoa(int(speed))); err != nil {
		return fmt.Errorf("fancontrol: hwmon pwm write: %w", err)
	}
	return nil
}

func (h *hwmonPWM) Close() error { return nil }
