// Package telemetry publishes fan speed changes to optional external sinks.
package telemetry

import (
	"time"

	"thermal-governor/internal/governor"
)

// Event is the JSON document sent on every committed speed change.
type Event struct {
	At         time.Time `json:"at"`
	Speed      uint8     `json:"speed"`
	PrevSpeed  uint8     `json:"prev_speed"`
	EffectiveC *float64  `json:"effective_c"`
	Band       string    `json:"band"`
	Applied    bool      `json:"applied"`
}

func EventFromTick(t governor.Tick) Event {
	ev := Event{
		At:        t.At.UTC(),
		Speed:     t.State.CurrentSpeed,
		PrevSpeed: t.PrevSpeed,
		Band:      t.Band.String(),
		Applied:   t.HaveApplied && t.Applied == t.State.CurrentSpeed && t.ActuationErr == nil,
	}
	if t.HaveTemp {
		eff := t.Effective
		ev.EffectiveC = &eff
	}
	return ev
}
