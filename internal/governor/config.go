// Package governor turns fused temperature readings into a debounced fan speed.
//
// The package is pure decision logic plus a sequential control loop; it knows
// nothing about how sensors are read or how a speed reaches the fan.
package governor

import (
	"fmt"
	"math"
	"time"
)

// DefaultCurveExponent biases the interpolated curve to rise slowly just above
// the high threshold and steeply near the very-high threshold.
const DefaultCurveExponent = 1.5

// Config holds the thresholds, speeds and timings that drive every decision.
type Config struct {
	LowThreshold      float64
	HighThreshold     float64
	VeryHighThreshold float64

	MinSpeed uint8
	MaxSpeed uint8

	// LowDuration is how long the temperature must stay in the Low band before
	// the fan is switched off.
	LowDuration time.Duration
	// VeryHighDuration is how long the temperature must stay in the Critical
	// band before the fan is forced to MaxSpeed.
	VeryHighDuration time.Duration

	PollInterval time.Duration

	// CurveExponent shapes the High band interpolation. Zero means DefaultCurveExponent.
	CurveExponent float64
}

// Validate reports the first inconsistency that would make band ordering or
// speed limits ambiguous. A controller must not run with an invalid Config.
func (c Config) Validate() error {
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"low threshold", c.LowThreshold},
		{"high threshold", c.HighThreshold},
		{"very high threshold", c.VeryHighThreshold},
	} {
		if math.IsNaN(v.val) || math.IsInf(v.val, 0) {
			return fmt.Errorf("governor: %s must be finite", v.name)
		}
	}
	if !(c.LowThreshold < c.HighThreshold) {
		return fmt.Errorf("governor: low threshold %.2f must be below high threshold %.2f", c.LowThreshold, c.HighThreshold)
	}
	if !(c.HighThreshold < c.VeryHighThreshold) {
		return fmt.Errorf("governor: high threshold %.2f must be below very high threshold %.2f", c.HighThreshold, c.VeryHighThreshold)
	}
	if c.MinSpeed > c.MaxSpeed {
		return fmt.Errorf("governor: min speed %d exceeds max speed %d", c.MinSpeed, c.MaxSpeed)
	}
	if c.LowDuration < 0 {
		return fmt.Errorf("governor: low duration %s is negative", c.LowDuration)
	}
	if c.VeryHighDuration < 0 {
		return fmt.Errorf("governor: very high duration %s is negative", c.VeryHighDuration)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("governor: poll interval %s must be positive", c.PollInterval)
	}
	if c.CurveExponent < 0 || math.IsNaN(c.CurveExponent) {
		return fmt.Errorf("governor: curve exponent %v must be positive", c.CurveExponent)
	}
	return nil
}

func (c Config) exponent() float64 {
	if c.CurveExponent == 0 {
		return DefaultCurveExponent
	}
	return c.CurveExponent
}

// Band is one of the four mutually exclusive temperature ranges. BandNone
// marks a tick without an effective temperature.
type Band int

const (
	BandNone Band = iota
	BandLow
	BandMid
	BandHigh
	BandCritical
)

func (b Band) String() string {
	switch b {
	case BandNone:
		return "none"
	case BandLow:
		return "low"
	case BandMid:
		return "mid"
	case BandHigh:
		return "high"
	case BandCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText lets Band appear by name in JSON status output.
func (b Band) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// BandOf classifies temp. Critical is checked first so that a misconfigured
// overlap always resolves towards protection.
func (c Config) BandOf(temp float64) Band {
	switch {
	case temp >= c.VeryHighThreshold:
		return BandCritical
	case temp >= c.HighThreshold:
		return BandHigh
	case temp >= c.LowThreshold:
		return BandMid
	default:
		return BandLow
	}
}
