package governor

import "math"

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Curve maps an effective temperature to a candidate fan speed with no regard
// for history. It is total and monotonically non-decreasing in temp, and never
// returns a value strictly between 0 and MinSpeed.
//
// Below HighThreshold the candidate is MinSpeed; switching the fan off is the
// debounce state machine's decision, not the curve's.
func (c Config) Curve(temp float64) uint8 {
	if math.IsNaN(temp) || temp < c.HighThreshold {
		return c.MinSpeed
	}
	if temp >= c.VeryHighThreshold {
		return c.MaxSpeed
	}

	f := clamp((temp-c.HighThreshold)/(c.VeryHighThreshold-c.HighThreshold), 0, 1)
	lo, hi := float64(c.MinSpeed), float64(c.MaxSpeed)
	speed := clamp(lo+math.Pow(f, c.exponent())*(hi-lo), lo, hi)
	return uint8(speed)
}
