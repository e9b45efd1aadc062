package web

import (
	"sync"
	"time"

	"thermal-governor/internal/governor"
)

// ConfigSummary is the static part of /api/status.
type ConfigSummary struct {
	LowThreshold      float64            `json:"low_threshold_c"`
	HighThreshold     float64            `json:"high_threshold_c"`
	VeryHighThreshold float64            `json:"very_high_threshold_c"`
	MinSpeed          uint8              `json:"min_speed"`
	MaxSpeed          uint8              `json:"max_speed"`
	LowDuration       string             `json:"low_duration"`
	VeryHighDuration  string             `json:"very_high_duration"`
	PollInterval      string             `json:"poll_interval"`
	CurveExponent     float64            `json:"curve_exponent"`
	Offsets           map[string]float64 `json:"offsets,omitempty"`
	FanBackend        string             `json:"fan_backend"`
}

// Status is a governor.Observer holding the latest tick for the HTTP API.
type Status struct {
	start   time.Time
	poll    time.Duration
	summary ConfigSummary
	grace   time.Duration

	mu                sync.RWMutex
	last              governor.Tick
	haveTick          bool
	sensors           map[string]*sensorState
	order             []string
	ticks             uint64
	speedChanges      uint64
	actuationFailures uint64
	lastActuationErr  string
}

type sensorState struct {
	lastC    float64
	haveC    bool
	ok       bool
	lastOKAt time.Time
	failures uint64
}

func NewStatus(cfg governor.Config, offsets map[string]float64, backend string) *Status {
	return &Status{
		start: time.Now().UTC(),
		poll:  cfg.PollInterval,
		summary: ConfigSummary{
			LowThreshold:      cfg.LowThreshold,
			HighThreshold:     cfg.HighThreshold,
			VeryHighThreshold: cfg.VeryHighThreshold,
			MinSpeed:          cfg.MinSpeed,
			MaxSpeed:          cfg.MaxSpeed,
			LowDuration:       cfg.LowDuration.String(),
			VeryHighDuration:  cfg.VeryHighDuration.String(),
			PollInterval:      cfg.PollInterval.String(),
			CurveExponent:     cfg.CurveExponent,
			Offsets:           offsets,
			FanBackend:        backend,
		},
		sensors: make(map[string]*sensorState),
	}
}

// SetStartupGrace extends the window before the first tick in which the
// process still counts as healthy, e.g. while the fan self test runs.
func (s *Status) SetStartupGrace(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grace = d
}

func (s *Status) Observe(t governor.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = t
	s.haveTick = true
	s.ticks++
	if t.SpeedChanged {
		s.speedChanges++
	}
	if t.ActuationErr != nil {
		s.actuationFailures++
		s.lastActuationErr = t.ActuationErr.Error()
	} else if t.HaveApplied && t.Applied == t.State.CurrentSpeed {
		s.lastActuationErr = ""
	}

	for _, r := range t.Readings {
		st, ok := s.sensors[r.Source]
		if !ok {
			st = &sensorState{}
			s.sensors[r.Source] = st
			s.order = append(s.order, r.Source)
		}
		st.ok = r.OK
		if r.OK {
			st.lastC, st.haveC, st.lastOKAt = r.Value, true, t.At
		} else {
			st.failures++
		}
	}
}

type SensorSnapshot struct {
	ID       string   `json:"id"`
	OK       bool     `json:"ok"`
	LastC    *float64 `json:"last_c"`
	LastOK   string   `json:"last_ok_utc,omitempty"`
	Failures uint64   `json:"failures_total"`
}

type StatusSnapshot struct {
	Service   string        `json:"service"`
	NowUTC    string        `json:"now_utc"`
	UptimeSec int64         `json:"uptime_sec"`
	Healthy   bool          `json:"healthy"`
	Config    ConfigSummary `json:"config"`

	LastTickUTC   string   `json:"last_tick_utc,omitempty"`
	EffectiveC    *float64 `json:"effective_c"`
	Band          string   `json:"band"`
	CurrentSpeed  uint8    `json:"current_speed"`
	AppliedSpeed  *uint8   `json:"applied_speed"`
	LowSince      string   `json:"low_since_utc,omitempty"`
	CriticalSince string   `json:"critical_since_utc,omitempty"`

	Sensors []SensorSnapshot `json:"sensors"`

	TicksTotal             uint64 `json:"ticks_total"`
	SpeedChangesTotal      uint64 `json:"speed_changes_total"`
	ActuationFailuresTotal uint64 `json:"actuation_failures_total"`
	LastActuationError     string `json:"last_actuation_error,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StatusSnapshot{
		Service:                "thermal-governor",
		NowUTC:                 formatTime(nowUTC),
		UptimeSec:              int64(nowUTC.Sub(s.start).Seconds()),
		Healthy:                s.healthyLocked(nowUTC),
		Config:                 s.summary,
		Band:                   governor.BandNone.String(),
		Sensors:                make([]SensorSnapshot, 0, len(s.order)),
		TicksTotal:             s.ticks,
		SpeedChangesTotal:      s.speedChanges,
		ActuationFailuresTotal: s.actuationFailures,
		LastActuationError:     s.lastActuationErr,
	}
	if s.haveTick {
		t := s.last
		snap.LastTickUTC = formatTime(t.At)
		if t.HaveTemp {
			eff := t.Effective
			snap.EffectiveC = &eff
			snap.Band = t.Band.String()
		}
		snap.CurrentSpeed = t.State.CurrentSpeed
		if t.HaveApplied {
			applied := t.Applied
			snap.AppliedSpeed = &applied
		}
		snap.LowSince = formatTime(t.State.LowSince)
		snap.CriticalSince = formatTime(t.State.CriticalSince)
	}
	for _, id := range s.order {
		st := s.sensors[id]
		ss := SensorSnapshot{ID: id, OK: st.ok, LastOK: formatTime(st.lastOKAt), Failures: st.failures}
		if st.haveC {
			v := st.lastC
			ss.LastC = &v
		}
		snap.Sensors = append(snap.Sensors, ss)
	}
	return snap
}

// Healthy reports whether the loop has ticked recently. Sensor outages do not
// count against health; a stalled loop does.
func (s *Status) Healthy(nowUTC time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthyLocked(nowUTC)
}

func (s *Status) healthyLocked(nowUTC time.Time) bool {
	limit := 3 * s.poll
	if !s.haveTick {
		return nowUTC.Sub(s.start) <= limit+s.grace
	}
	return nowUTC.Sub(s.last.At) <= limit
}
