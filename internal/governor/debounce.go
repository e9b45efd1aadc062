package governor

import "time"

// State is the controller's only mutable data. A zero State is the power-on
// state: fan off, no dwell timer running.
//
// LowSince and CriticalSince are zero when their timer is not running. At most
// one of them is non-zero after any call to Step.
type State struct {
	CurrentSpeed  uint8     `json:"current_speed"`
	LowSince      time.Time `json:"low_since,omitempty"`
	CriticalSince time.Time `json:"critical_since,omitempty"`
}

// Step advances the state machine by one poll with a present effective
// temperature and returns the band temp fell into. An absent temperature must
// not be fed to Step at all; the caller skips the call so that neither timer
// starts, clears, or elapses on a sensor outage.
func (s *State) Step(now time.Time, temp float64, cfg Config) Band {
	band := cfg.BandOf(temp)
	switch band {
	case BandCritical:
		s.LowSince = time.Time{}
		if s.CriticalSince.IsZero() {
			s.CriticalSince = now
			break
		}
		if now.Sub(s.CriticalSince) > cfg.VeryHighDuration {
			s.CurrentSpeed = cfg.MaxSpeed
		}

	case BandHigh, BandMid:
		// Changes inside these bands are gradual, so they need no dwell.
		s.LowSince = time.Time{}
		s.CriticalSince = time.Time{}
		s.CurrentSpeed = cfg.Curve(temp)

	default:
		s.CriticalSince = time.Time{}
		if s.LowSince.IsZero() {
			s.LowSince = now
			break
		}
		if now.Sub(s.LowSince) > cfg.LowDuration {
			s.CurrentSpeed = 0
		}
	}
	return band
}
