package web

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"thermal-governor/internal/governor"
)

func testCoreConfig() governor.Config {
	return governor.Config{
		LowThreshold:      45,
		HighThreshold:     55,
		VeryHighThreshold: 75,
		MinSpeed:          100,
		MaxSpeed:          255,
		LowDuration:       30 * time.Second,
		VeryHighDuration:  10 * time.Second,
		PollInterval:      5 * time.Second,
		CurveExponent:     1.5,
	}
}

func TestStatus_SnapshotBeforeFirstTick(t *testing.T) {
	st := NewStatus(testCoreConfig(), map[string]float64{"nvme": 5}, "emc2301")
	snap := st.Snapshot(time.Now().UTC())

	if snap.Service != "thermal-governor" {
		t.Fatalf("service=%q", snap.Service)
	}
	if snap.Band != "none" || snap.EffectiveC != nil || snap.AppliedSpeed != nil {
		t.Fatalf("unexpected tick data before first tick: %+v", snap)
	}
	if snap.Config.PollInterval != "5s" || snap.Config.FanBackend != "emc2301" || snap.Config.Offsets["nvme"] != 5 {
		t.Fatalf("config summary=%+v", snap.Config)
	}
	if !snap.Healthy {
		t.Fatalf("expected healthy during startup grace")
	}
}

func TestStatus_ObserveTracksSensorsAndCounters(t *testing.T) {
	st := NewStatus(testCoreConfig(), nil, "log")
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	st.Observe(governor.Tick{
		At: at,
		Readings: []governor.Reading{
			{Source: "cpu", Value: 61.5, OK: true},
			{Source: "nvme", OK: false},
		},
		Effective:    61.5,
		HaveTemp:     true,
		Band:         governor.BandHigh,
		State:        governor.State{CurrentSpeed: 128},
		SpeedChanged: true,
		ActuationErr: errors.New("i2c write failed"),
	})
	st.Observe(governor.Tick{
		At: at.Add(5 * time.Second),
		Readings: []governor.Reading{
			{Source: "cpu", OK: false},
			{Source: "nvme", OK: false},
		},
		State:       governor.State{CurrentSpeed: 128},
		Applied:     128,
		HaveApplied: true,
	})

	snap := st.Snapshot(at.Add(6 * time.Second))
	if snap.TicksTotal != 2 || snap.SpeedChangesTotal != 1 || snap.ActuationFailuresTotal != 1 {
		t.Fatalf("counters=%d/%d/%d want 2/1/1", snap.TicksTotal, snap.SpeedChangesTotal, snap.ActuationFailuresTotal)
	}
	if snap.LastActuationError != "" {
		t.Fatalf("last actuation error=%q want cleared after a successful apply", snap.LastActuationError)
	}
	if snap.EffectiveC != nil || snap.Band != "none" {
		t.Fatalf("absent tick reported effective=%v band=%s", snap.EffectiveC, snap.Band)
	}
	if snap.AppliedSpeed == nil || *snap.AppliedSpeed != 128 {
		t.Fatalf("applied=%v want 128", snap.AppliedSpeed)
	}

	last := 61.5
	want := []SensorSnapshot{
		{ID: "cpu", OK: false, LastC: &last, LastOK: at.Format(time.RFC3339Nano), Failures: 1},
		{ID: "nvme", OK: false, Failures: 2},
	}
	if diff := cmp.Diff(want, snap.Sensors); diff != "" {
		t.Fatalf("sensors mismatch (-want +got):\n%s", diff)
	}
}

func TestStatus_Healthy(t *testing.T) {
	st := NewStatus(testCoreConfig(), nil, "log")
	if st.Healthy(time.Now().UTC().Add(time.Hour)) {
		t.Fatalf("healthy an hour after start without any tick")
	}

	at := time.Now().UTC()
	st.Observe(governor.Tick{At: at})
	if !st.Healthy(at.Add(10 * time.Second)) {
		t.Fatalf("unhealthy two polls after a tick")
	}
	if st.Healthy(at.Add(16 * time.Second)) {
		t.Fatalf("healthy after more than three missed polls")
	}
}

func TestStatus_StartupGraceCoversFirstTickOnly(t *testing.T) {
	st := NewStatus(testCoreConfig(), nil, "emc2301")
	st.SetStartupGrace(15 * time.Second)

	// Three polls of 5s plus 15s of self test.
	if !st.Healthy(st.start.Add(29 * time.Second)) {
		t.Fatalf("unhealthy inside the startup grace")
	}
	if st.Healthy(st.start.Add(31 * time.Second)) {
		t.Fatalf("healthy after the startup grace without any tick")
	}

	at := st.start.Add(20 * time.Second)
	st.Observe(governor.Tick{At: at})
	if st.Healthy(at.Add(16 * time.Second)) {
		t.Fatalf("grace applied after the first tick")
	}
}
