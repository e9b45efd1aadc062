package fancontrol

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
)

var afterFn = time.After

// SelfTestConfig describes the spin-up check run before the control loop.
type SelfTestConfig struct {
	MinSpeed uint8
	Full     time.Duration
	Min      time.Duration
}

// SelfTest runs the fan at full speed, then at the minimum speed, then stops
// it, so a dead fan or wiring fault is audible and visible in the log at boot.
// Cancellation ends the test early; the fan is still left at 0.
func SelfTest(ctx context.Context, act Actuator, cfg SelfTestConfig, log logr.Logger) (err error) {
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if serr := act.Apply(stopCtx, 0); serr != nil && err == nil {
			err = fmt.Errorf("fancontrol: self test stop: %w", serr)
		}
	}()

	steps := []struct {
		speed uint8
		hold  time.Duration
	}{
		{speed: 255, hold: cfg.Full},
		{speed: cfg.MinSpeed, hold: cfg.Min},
	}
	for _, st := range steps {
		log.Info("fan self test", "speed", st.speed, "hold", st.hold)
		if err := act.Apply(ctx, st.speed); err != nil {
			return fmt.Errorf("fancontrol: self test at speed %d: %w", st.speed, err)
		}
		select {
		case <-afterFn(st.hold):
		case <-ctx.Done():
			log.Info("fan self test interrupted")
			return nil
		}
	}
	log.Info("fan self test done")
	return nil
}
