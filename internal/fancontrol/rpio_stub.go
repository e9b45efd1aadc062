//go:build !linux || (!arm && !arm64)

package fancontrol

import "fmt"

func openRPIO(pin int) (pwmDriver, error) {
	return nil, fmt.Errorf("fancontrol: rpio needs a Raspberry Pi (linux/arm)")
}
