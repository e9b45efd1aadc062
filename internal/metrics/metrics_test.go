package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"thermal-governor/internal/governor"
)

func TestRecorder_DecidedTick(t *testing.T) {
	r := NewRecorder()
	r.Observe(governor.Tick{
		At: time.Now(),
		Readings: []governor.Reading{
			{Source: "cpu", Value: 58, OK: true},
			{Source: "nvme", OK: false},
		},
		Effective:    60,
		HaveTemp:     true,
		Band:         governor.BandHigh,
		State:        governor.State{CurrentSpeed: 119},
		PrevSpeed:    100,
		SpeedChanged: true,
		Applied:      119,
		HaveApplied:  true,
	})

	expected := `
# HELP thermal_governor_fan_speed_target Intended fan speed (0-255).
# TYPE thermal_governor_fan_speed_target gauge
thermal_governor_fan_speed_target 119
# HELP thermal_governor_sensor_read_failures_total Reads that produced no usable value, per sensor.
# TYPE thermal_governor_sensor_read_failures_total counter
thermal_governor_sensor_read_failures_total{sensor="nvme"} 1
# HELP thermal_governor_ticks_total Completed control ticks by outcome.
# TYPE thermal_governor_ticks_total counter
thermal_governor_ticks_total{outcome="decided"} 1
thermal_governor_ticks_total{outcome="no_sensors"} 0
`
	if err := testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected),
		"thermal_governor_fan_speed_target",
		"thermal_governor_sensor_read_failures_total",
		"thermal_governor_ticks_total",
	); err != nil {
		t.Fatalf("metrics mismatch: %v", err)
	}

	if got := testutil.ToFloat64(r.effectiveTemp); got != 60 {
		t.Fatalf("effective=%v want 60", got)
	}
	if got := testutil.ToFloat64(r.sensorTemp.WithLabelValues("cpu")); got != 58 {
		t.Fatalf("cpu=%v want 58", got)
	}
	if got := testutil.ToFloat64(r.band.WithLabelValues("high")); got != 1 {
		t.Fatalf("band high=%v want 1", got)
	}
	if got := testutil.ToFloat64(r.band.WithLabelValues("low")); got != 0 {
		t.Fatalf("band low=%v want 0", got)
	}
	if got := testutil.ToFloat64(r.speedChanges); got != 1 {
		t.Fatalf("speed changes=%v want 1", got)
	}
}

func TestRecorder_NoSensorsAndActuationFailure(t *testing.T) {
	r := NewRecorder()
	r.Observe(governor.Tick{
		Readings:     []governor.Reading{{Source: "cpu"}},
		State:        governor.State{CurrentSpeed: 255},
		ActuationErr: errors.New("i2c"),
	})

	if got := testutil.ToFloat64(r.ticks.WithLabelValues("no_sensors")); got != 1 {
		t.Fatalf("no_sensors ticks=%v want 1", got)
	}
	if got := testutil.ToFloat64(r.actuationFailure); got != 1 {
		t.Fatalf("actuation failures=%v want 1", got)
	}
	if got := testutil.ToFloat64(r.speedApplied); got != 0 {
		t.Fatalf("applied=%v want untouched 0", got)
	}
	if got := testutil.ToFloat64(r.speedTarget); got != 255 {
		t.Fatalf("target=%v want 255", got)
	}
}
