//go:build linux && (arm || arm64)

package fancontrol

import (
	"fmt"
	"math"

	"github.com/stianeikeland/go-rpio"
)

// rpioCycle is the PWM range; with a clock of freq*rpioCycle the output runs
// at freq Hz and a speed maps 1:1 onto duty ticks.
const rpioCycle = 255

// rpioPWM drives the BCM283x PWM block through /dev/gpiomem. It does not work
// on a Pi 5, where the header PWM moved to the RP1.
type rpioPWM struct {
	pin rpio.Pin
}

func openRPIO(pin int) (pwmDriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("fancontrol: rpio open: %w", err)
	}
	p := rpio.Pin(pin)
	p.Mode(rpio.Pwm)
	return &rpioPWM{pin: p}, nil
}

func (r *rpioPWM) SetFrequencyHz(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("fancontrol: invalid frequency %d", hz)
	}
	r.pin.Freq(hz * rpioCycle)
	return nil
}

func (r *rpioPWM) SetDutyPercent(p float64) error {
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	rpio.SetDutyCycle(r.pin, uint32(math.Round(p*rpioCycle/100)), rpioCycle)
	return nil
}

func (r *rpioPWM) Close() error {
	return rpio.Close()
}
