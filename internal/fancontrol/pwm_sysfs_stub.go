//go:build !linux

package fancontrol

import "fmt"

func openSysfsPWM(chip string, channel int) (pwmDriver, error) {
	return nil, fmt.Errorf("fancontrol: sysfs pwm unsupported on this platform")
}
