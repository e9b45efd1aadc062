package governor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"thermal-governor/internal/logging"
)

// shutdownTimeout bounds the final best-effort actuation.
var shutdownTimeout = 2 * time.Second

// Sensor is the read side of a temperature source. Read must swallow every
// failure and report it as ok=false.
type Sensor interface {
	ID() string
	Read(ctx context.Context) (tempC float64, ok bool)
}

// Actuator turns a speed in [0,255] into a physical fan duty.
type Actuator interface {
	Apply(ctx context.Context, speed uint8) error
}

// Observer receives a copy of every completed tick. Observers run on the loop
// goroutine and must return quickly.
type Observer interface {
	Observe(Tick)
}

// Tick describes one completed poll.
type Tick struct {
	At       time.Time `json:"at"`
	Readings []Reading `json:"readings"`

	// Effective is valid only when HaveTemp is true.
	Effective float64 `json:"effective_c"`
	HaveTemp  bool    `json:"have_temp"`
	Band      Band    `json:"band"`

	State     State `json:"state"`
	PrevSpeed uint8 `json:"prev_speed"`
	// SpeedChanged is true when this tick committed a new intended speed.
	SpeedChanged bool `json:"speed_changed"`

	Applied     uint8 `json:"applied_speed"`
	HaveApplied bool  `json:"have_applied"`
	// ActuationErr is set when this tick tried and failed to apply a speed.
	ActuationErr error `json:"-"`
}

// LoopOptions are the optional collaborators of a Loop. A nil Clock means
// the real clock and a zero Logger discards everything.
type LoopOptions struct {
	// Offsets are calibration offsets in °C keyed by sensor ID.
	Offsets map[string]float64
	Clock   clock.Clock
	Logger  logr.Logger
	// Observers are notified after every tick, in order.
	Observers []Observer
}

// Loop owns the controller state and runs the poll, decide, actuate cycle.
// It is not safe for concurrent use; Run is the only entry point in production.
type Loop struct {
	cfg     Config
	sensors []Sensor
	act     Actuator
	offsets map[string]float64
	clock   clock.Clock
	log     logr.Logger
	obs     []Observer

	state State

	applied     uint8
	haveApplied bool
}

// NewLoop validates cfg and returns a loop with the power-on State.
func NewLoop(cfg Config, sensors []Sensor, act Actuator, opts LoopOptions) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if act == nil {
		return nil, fmt.Errorf("governor: actuator is nil")
	}
	if len(sensors) == 0 {
		return nil, fmt.Errorf("governor: at least one sensor is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	return &Loop{
		cfg:     cfg,
		sensors: sensors,
		act:     act,
		offsets: opts.Offsets,
		clock:   opts.Clock,
		log:     opts.Logger,
		obs:     opts.Observers,
	}, nil
}

// State returns a copy of the controller state.
func (l *Loop) State() State { return l.state }

// Run applies the initial speed, then ticks every poll interval until ctx is
// canceled. Cancellation is only observed between ticks. On the way out, for
// cancellation as well as a panic further down, the fan is set to 0 on a best
// effort basis.
func (l *Loop) Run(ctx context.Context) error {
	defer l.shutdown()

	if ctx.Err() != nil {
		return nil
	}

	// A tick always runs to completion, even when ctx is canceled mid-tick.
	tickCtx := context.WithoutCancel(ctx)

	l.log.Info("governor starting",
		"low", l.cfg.LowThreshold, "high", l.cfg.HighThreshold, "veryHigh", l.cfg.VeryHighThreshold,
		"minSpeed", l.cfg.MinSpeed, "maxSpeed", l.cfg.MaxSpeed,
		"lowDuration", l.cfg.LowDuration, "veryHighDuration", l.cfg.VeryHighDuration,
		"pollInterval", l.cfg.PollInterval, "sensors", len(l.sensors))
	l.actuate(tickCtx)

	for {
		l.Tick(tickCtx)

		select {
		case <-ctx.Done():
			return nil
		case <-l.clock.After(l.cfg.PollInterval):
		}
	}
}

// Tick performs one poll: read, fuse, decide, actuate, notify observers.
func (l *Loop) Tick(ctx context.Context) Tick {
	now := l.clock.Now()
	t := Tick{
		At:        now,
		Readings:  l.readAll(ctx),
		PrevSpeed: l.state.CurrentSpeed,
	}

	t.Effective, t.HaveTemp = Fuse(t.Readings, l.offsets)
	if t.HaveTemp {
		t.Band = l.state.Step(now, t.Effective, l.cfg)
		l.log.V(logging.DEBUG).Info("tick", "effectiveC", t.Effective, "band", t.Band, "speed", l.state.CurrentSpeed)
	} else {
		l.log.V(logging.DEBUG).Info("no sensor produced a reading, holding state", "speed", l.state.CurrentSpeed)
	}

	if l.state.CurrentSpeed != t.PrevSpeed {
		t.SpeedChanged = true
		l.log.Info("fan speed changed", "speed", l.state.CurrentSpeed, "was", t.PrevSpeed, "effectiveC", t.Effective, "band", t.Band)
	}

	t.ActuationErr = l.actuate(ctx)
	t.State = l.state
	t.Applied, t.HaveApplied = l.applied, l.haveApplied

	for _, o := range l.obs {
		o.Observe(t)
	}
	return t
}

func (l *Loop) readAll(ctx context.Context) []Reading {
	out := make([]Reading, 0, len(l.sensors))
	for _, s := range l.sensors {
		rctx, cancel := context.WithTimeout(ctx, l.cfg.PollInterval)
		v, ok := s.Read(rctx)
		cancel()
		if !ok {
			l.log.V(logging.DEBUG).Info("sensor unavailable", "sensor", s.ID())
		}
		out = append(out, Reading{Source: s.ID(), Value: v, OK: ok})
	}
	return out
}

// actuate pushes the intended speed when it differs from what the fan last
// accepted. A failure leaves the cache untouched so the next tick retries.
func (l *Loop) actuate(ctx context.Context) error {
	want := l.state.CurrentSpeed
	if l.haveApplied && l.applied == want {
		return nil
	}
	if err := l.act.Apply(ctx, want); err != nil {
		l.log.Error(err, "apply fan speed failed", "speed", want)
		return err
	}
	l.applied = want
	l.haveApplied = true
	return nil
}

func (l *Loop) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	l.log.Info("governor stopping, turning fan off")
	if err := l.act.Apply(ctx, 0); err != nil {
		l.log.Error(err, "final fan off failed")
	}
}
