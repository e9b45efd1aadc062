package telemetry

import (
	"encoding/json"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"thermal-governor/internal/config"
	"thermal-governor/internal/governor"
	"thermal-governor/internal/udp"
)

// Sink receives one serialized Event per speed change.
type Sink interface {
	Name() string
	Publish(payload []byte) error
	Close() error
}

type udpSink struct {
	b *udp.Broadcaster
}

func (s udpSink) Name() string                 { return "udp" }
func (s udpSink) Publish(payload []byte) error { return s.b.Send(payload) }
func (s udpSink) Close() error                 { return s.b.Close() }

var newBroadcasterFn = udp.NewBroadcaster

// Publisher is a governor.Observer fanning speed changes out to every sink.
// Sink failures are logged and never reach the control loop.
type Publisher struct {
	sinks []Sink
	log   logr.Logger
}

// New opens the sinks enabled in cfg. A sink that cannot be opened is logged
// and left out.
func New(cfg config.TelemetryConfig, log logr.Logger) *Publisher {
	p := &Publisher{log: log}
	if cfg.NATS.Enable {
		s, err := openNATS(cfg.NATS.URL, cfg.NATS.Subject, log)
		if err != nil {
			log.Error(err, "telemetry sink disabled", "sink", "nats")
		} else {
			p.sinks = append(p.sinks, s)
			log.Info("telemetry sink enabled", "sink", "nats", "url", cfg.NATS.URL, "subject", cfg.NATS.Subject)
		}
	}
	if cfg.UDP.Enable {
		b, err := newBroadcasterFn(cfg.UDP.Dest)
		if err != nil {
			log.Error(err, "telemetry sink disabled", "sink", "udp")
		} else {
			p.sinks = append(p.sinks, udpSink{b: b})
			log.Info("telemetry sink enabled", "sink", "udp", "dest", cfg.UDP.Dest)
		}
	}
	return p
}

// NewWithSinks builds a Publisher over already opened sinks.
func NewWithSinks(log logr.Logger, sinks ...Sink) *Publisher {
	return &Publisher{sinks: sinks, log: log}
}

func (p *Publisher) Enabled() bool { return len(p.sinks) > 0 }

func (p *Publisher) Observe(t governor.Tick) {
	if !t.SpeedChanged || len(p.sinks) == 0 {
		return
	}
	payload, err := json.Marshal(EventFromTick(t))
	if err != nil {
		p.log.Error(err, "telemetry encode failed")
		return
	}
	for _, s := range p.sinks {
		if err := s.Publish(payload); err != nil {
			p.log.Error(err, "telemetry publish failed", "sink", s.Name())
		}
	}
}

func (p *Publisher) Close() error {
	var err error
	for _, s := range p.sinks {
		err = multierr.Append(err, s.Close())
	}
	p.sinks = nil
	return err
}
