package governor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/google/go-cmp/cmp"
	"k8s.io/utils/clock"
	testclock "k8s.io/utils/clock/testing"

	"thermal-governor/internal/logging"
)

type fakeSensor struct {
	id   string
	temp float64
	ok   bool
}

func (s *fakeSensor) ID() string { return s.id }

func (s *fakeSensor) Read(ctx context.Context) (float64, bool) {
	return s.temp, s.ok
}

type fakeActuator struct {
	calls   []uint8
	failFor int
}

func (a *fakeActuator) Apply(ctx context.Context, speed uint8) error {
	a.calls = append(a.calls, speed)
	if a.failFor > 0 {
		a.failFor--
		return errors.New("i2c write failed")
	}
	return nil
}

type recordingObserver struct {
	ticks []Tick
}

func (o *recordingObserver) Observe(t Tick) { o.ticks = append(o.ticks, t) }

func newTestLoop(t *testing.T, sensors []Sensor, act Actuator, offsets map[string]float64) (*Loop, *testclock.FakeClock, *recordingObserver) {
	t.Helper()
	fc := testclock.NewFakeClock(t0)
	obs := &recordingObserver{}
	l, err := NewLoop(testConfig(), sensors, act, LoopOptions{
		Offsets:   offsets,
		Clock:     fc,
		Logger:    testr.New(t),
		Observers: []Observer{obs},
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	return l, fc, obs
}

func TestNewLoop_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.LowThreshold = 80
	_, err := NewLoop(cfg, []Sensor{&fakeSensor{id: "cpu"}}, &fakeActuator{}, LoopOptions{})
	if err == nil {
		t.Fatalf("expected error for out-of-order thresholds")
	}
}

func TestNewLoop_RequiresSensorsAndActuator(t *testing.T) {
	if _, err := NewLoop(testConfig(), nil, &fakeActuator{}, LoopOptions{}); err == nil {
		t.Fatalf("expected error without sensors")
	}
	if _, err := NewLoop(testConfig(), []Sensor{&fakeSensor{id: "cpu"}}, nil, LoopOptions{}); err == nil {
		t.Fatalf("expected error without actuator")
	}
}

func TestNewLoop_ZeroOptionsUseDefaults(t *testing.T) {
	act := &fakeActuator{}
	l, err := NewLoop(testConfig(), []Sensor{&fakeSensor{id: "cpu", temp: 60, ok: true}}, act, LoopOptions{})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	if _, ok := l.clock.(clock.RealClock); !ok {
		t.Fatalf("clock=%T want clock.RealClock", l.clock)
	}
	if tick := l.Tick(context.Background()); tick.At.IsZero() || tick.State.CurrentSpeed != 119 {
		t.Fatalf("tick at=%v speed=%d want a real timestamp and 119", tick.At, tick.State.CurrentSpeed)
	}
	if diff := cmp.Diff([]uint8{119}, act.calls); diff != "" {
		t.Fatalf("apply calls mismatch (-want +got):\n%s", diff)
	}
}

func TestTick_HighBandSequence(t *testing.T) {
	cpu := &fakeSensor{id: "cpu", temp: 60, ok: true}
	act := &fakeActuator{}
	l, fc, _ := newTestLoop(t, []Sensor{cpu}, act, nil)

	for i := 0; i < 3; i++ {
		tick := l.Tick(context.Background())
		if tick.State.CurrentSpeed != 119 {
			t.Fatalf("tick %d: speed=%d want 119", i, tick.State.CurrentSpeed)
		}
		fc.Step(time.Second)
	}
	if diff := cmp.Diff([]uint8{119}, act.calls); diff != "" {
		t.Fatalf("apply calls mismatch (-want +got):\n%s", diff)
	}
}

func TestTick_PerTickDetailOnlyAtDebugLevel(t *testing.T) {
	for _, tc := range []struct {
		level string
		want  bool
	}{
		{level: "info", want: false},
		{level: "debug", want: true},
	} {
		var out bytes.Buffer
		log, flush, err := logging.New(logging.Options{Level: tc.level, Format: "json", Stderr: &out})
		if err != nil {
			t.Fatalf("logging.New: %v", err)
		}
		sensors := []Sensor{&fakeSensor{id: "cpu", temp: 50, ok: true}, &fakeSensor{id: "nvme"}}
		l, err := NewLoop(testConfig(), sensors, &fakeActuator{}, LoopOptions{
			Clock:  testclock.NewFakeClock(t0),
			Logger: log,
		})
		if err != nil {
			t.Fatalf("NewLoop: %v", err)
		}
		l.Tick(context.Background())
		flush()

		msgs := map[string]bool{}
		for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
			var entry struct {
				Msg string `json:"msg"`
			}
			if line != "" && json.Unmarshal([]byte(line), &entry) == nil {
				msgs[entry.Msg] = true
			}
		}
		for _, msg := range []string{"tick", "sensor unavailable"} {
			if msgs[msg] != tc.want {
				t.Fatalf("level=%s %q logged=%v want %v\n%s", tc.level, msg, msgs[msg], tc.want, out.String())
			}
		}
	}
}

func TestTick_AppliesOffsets(t *testing.T) {
	cpu := &fakeSensor{id: "cpu", temp: 50, ok: true}
	nvme := &fakeSensor{id: "nvme", temp: 40, ok: true}
	l, _, _ := newTestLoop(t, []Sensor{cpu, nvme}, &fakeActuator{}, map[string]float64{"nvme": 5})

	tick := l.Tick(context.Background())
	if !tick.HaveTemp || tick.Effective != 50 {
		t.Fatalf("effective=%v have=%v want 50 true", tick.Effective, tick.HaveTemp)
	}

	nvme.temp = 58
	tick = l.Tick(context.Background())
	if tick.Effective != 63 || tick.Band != BandHigh {
		t.Fatalf("effective=%v band=%s want 63 high", tick.Effective, tick.Band)
	}
}

func TestTick_AbsenceIsIdempotent(t *testing.T) {
	cpu := &fakeSensor{id: "cpu", temp: 40, ok: true}
	act := &fakeActuator{}
	l, fc, _ := newTestLoop(t, []Sensor{cpu}, act, nil)

	// Start the low dwell timer, then lose the sensor.
	l.Tick(context.Background())
	before := l.State()
	if before.LowSince.IsZero() {
		t.Fatalf("low timer not started")
	}

	cpu.ok = false
	for i := 0; i < 20; i++ {
		fc.Step(5 * time.Second)
		tick := l.Tick(context.Background())
		if tick.HaveTemp {
			t.Fatalf("tick %d reported a temperature with every sensor down", i)
		}
		if diff := cmp.Diff(before, l.State()); diff != "" {
			t.Fatalf("tick %d: state changed during outage (-before +after):\n%s", i, diff)
		}
	}
}

func TestTick_OutageNeverTriggersCooldownOrRamp(t *testing.T) {
	cpu := &fakeSensor{id: "cpu", temp: 60, ok: true}
	act := &fakeActuator{}
	l, fc, _ := newTestLoop(t, []Sensor{cpu}, act, nil)

	l.Tick(context.Background())
	cpu.ok = false
	for i := 0; i < 100; i++ {
		fc.Step(time.Second)
		l.Tick(context.Background())
	}
	if got := l.State().CurrentSpeed; got != 119 {
		t.Fatalf("speed=%d want 119 held through outage", got)
	}
	if diff := cmp.Diff([]uint8{119}, act.calls); diff != "" {
		t.Fatalf("apply calls mismatch (-want +got):\n%s", diff)
	}
}

func TestTick_ActuationFailureRetriesNextTick(t *testing.T) {
	cpu := &fakeSensor{id: "cpu", temp: 60, ok: true}
	act := &fakeActuator{failFor: 1}
	l, fc, _ := newTestLoop(t, []Sensor{cpu}, act, nil)

	tick := l.Tick(context.Background())
	if tick.ActuationErr == nil {
		t.Fatalf("expected actuation error")
	}
	if tick.State.CurrentSpeed != 119 {
		t.Fatalf("intended speed=%d want 119 despite failure", tick.State.CurrentSpeed)
	}
	if tick.HaveApplied {
		t.Fatalf("applied cache updated after a failed apply")
	}

	fc.Step(time.Second)
	tick = l.Tick(context.Background())
	if tick.ActuationErr != nil {
		t.Fatalf("retry failed: %v", tick.ActuationErr)
	}
	if !tick.HaveApplied || tick.Applied != 119 {
		t.Fatalf("applied=%d have=%v want 119 true", tick.Applied, tick.HaveApplied)
	}
	if diff := cmp.Diff([]uint8{119, 119}, act.calls); diff != "" {
		t.Fatalf("apply calls mismatch (-want +got):\n%s", diff)
	}
}

func TestTick_RetriesEvenWhenSensorsAbsent(t *testing.T) {
	cpu := &fakeSensor{id: "cpu", temp: 60, ok: true}
	act := &fakeActuator{failFor: 1}
	l, _, _ := newTestLoop(t, []Sensor{cpu}, act, nil)

	l.Tick(context.Background())
	cpu.ok = false
	tick := l.Tick(context.Background())
	if !tick.HaveApplied || tick.Applied != 119 {
		t.Fatalf("applied=%d have=%v want 119 true", tick.Applied, tick.HaveApplied)
	}
}

func TestTick_ObserversSeeSpeedChanges(t *testing.T) {
	cpu := &fakeSensor{id: "cpu", temp: 50, ok: true}
	l, fc, obs := newTestLoop(t, []Sensor{cpu}, &fakeActuator{}, nil)

	l.Tick(context.Background())
	fc.Step(time.Second)
	l.Tick(context.Background())
	cpu.temp = 65
	fc.Step(time.Second)
	l.Tick(context.Background())

	var changed []bool
	for _, tk := range obs.ticks {
		changed = append(changed, tk.SpeedChanged)
	}
	if diff := cmp.Diff([]bool{true, false, true}, changed); diff != "" {
		t.Fatalf("speed change flags mismatch (-want +got):\n%s", diff)
	}
	last := obs.ticks[len(obs.ticks)-1]
	if last.PrevSpeed != 100 || last.State.CurrentSpeed != 154 {
		t.Fatalf("prev=%d cur=%d want 100 154", last.PrevSpeed, last.State.CurrentSpeed)
	}
}

func waitForWaiter(t *testing.T, fc *testclock.FakeClock) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !fc.HasWaiters() {
		if time.Now().After(deadline) {
			t.Fatalf("loop never blocked on the clock")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRun_StartupZeroTicksAndShutdownZero(t *testing.T) {
	cpu := &fakeSensor{id: "cpu", temp: 60, ok: true}
	act := &fakeActuator{}
	l, fc, obs := newTestLoop(t, []Sensor{cpu}, act, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	waitForWaiter(t, fc)
	fc.Step(time.Second)
	waitForWaiter(t, fc)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}

	if diff := cmp.Diff([]uint8{0, 119, 0}, act.calls); diff != "" {
		t.Fatalf("apply calls mismatch (-want +got):\n%s", diff)
	}
	if len(obs.ticks) != 2 {
		t.Fatalf("ticks=%d want 2", len(obs.ticks))
	}
}

func TestRun_CanceledBeforeStartStillTurnsFanOff(t *testing.T) {
	act := &fakeActuator{}
	l, _, obs := newTestLoop(t, []Sensor{&fakeSensor{id: "cpu", temp: 90, ok: true}}, act, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]uint8{0}, act.calls); diff != "" {
		t.Fatalf("apply calls mismatch (-want +got):\n%s", diff)
	}
	if len(obs.ticks) != 0 {
		t.Fatalf("ticks=%d want 0", len(obs.ticks))
	}
}

type panicSensor struct{}

func (panicSensor) ID() string { return "broken" }

func (panicSensor) Read(ctx context.Context) (float64, bool) { panic("driver bug") }

func TestRun_PanicStillTurnsFanOff(t *testing.T) {
	act := &fakeActuator{}
	l, _, _ := newTestLoop(t, []Sensor{panicSensor{}}, act, nil)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = l.Run(context.Background())
	}()

	if diff := cmp.Diff([]uint8{0, 0}, act.calls); diff != "" {
		t.Fatalf("apply calls mismatch (-want +got):\n%s", diff)
	}
}
