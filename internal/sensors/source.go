// Package sensors turns configured temperature sources into governor sensors.
//
// Every failure inside a source is reported as an absent reading; the control
// loop never sees an error from here.
package sensors

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"thermal-governor/internal/config"
	"thermal-governor/internal/governor"
	"thermal-governor/internal/logging"
)

// Source is a governor.Sensor that owns a resource.
type Source interface {
	governor.Sensor
	Close() error
}

// reader is implemented by each kind. read may return any error; source
// converts it into an absent reading.
type reader interface {
	read(ctx context.Context) (float64, error)
	close() error
}

type source struct {
	id  string
	r   reader
	log logr.Logger

	failing bool
}

func (s *source) ID() string { return s.id }

func (s *source) Read(ctx context.Context) (float64, bool) {
	v, err := s.r.read(ctx)
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = fmt.Errorf("non-finite value %v", v)
	}
	if err != nil {
		if !s.failing {
			s.log.Info("sensor unavailable", "error", err.Error())
			s.failing = true
		} else {
			s.log.V(logging.DEBUG).Info("sensor still unavailable", "error", err.Error())
		}
		return 0, false
	}
	if s.failing {
		s.log.Info("sensor recovered", "tempC", v)
		s.failing = false
	}
	return v, true
}

func (s *source) Close() error { return s.r.close() }

// Open builds the source described by cfg. Hardware and network sources
// connect lazily on the first Read, so Open only fails on configuration.
func Open(cfg config.SensorConfig, log logr.Logger) (Source, error) {
	log = log.WithValues("sensor", cfg.ID, "kind", cfg.Kind)

	var r reader
	switch cfg.Kind {
	case config.KindFile:
		r = &fileReader{path: cfg.Path, scale: cfg.Scale}
	case config.KindHwmon:
		r = &hwmonReader{key: cfg.SensorKey}
	case config.KindCommand:
		r = &commandReader{name: cfg.Command, args: cfg.Args, scale: cfg.Scale}
	case config.KindBMP280:
		r = &bmp280Reader{bus: cfg.I2CBus, addr: cfg.I2CAddr}
	case config.KindMCP9808:
		r = &mcp9808Reader{bus: cfg.I2CBus}
	case config.KindNATS:
		r = newNATSReader(cfg.URL, cfg.Subject, time.Duration(cfg.MaxAge), log)
	default:
		return nil, fmt.Errorf("sensors: unsupported kind %q for %q", cfg.Kind, cfg.ID)
	}
	return &source{id: cfg.ID, r: r, log: log}, nil
}

// OpenAll opens every configured source. On error, the ones already opened
// are closed.
func OpenAll(cfgs []config.SensorConfig, log logr.Logger) ([]Source, error) {
	out := make([]Source, 0, len(cfgs))
	for _, c := range cfgs {
		s, err := Open(c, log)
		if err != nil {
			return nil, multierr.Append(err, CloseAll(out))
		}
		out = append(out, s)
	}
	return out, nil
}

func CloseAll(srcs []Source) error {
	var err error
	for _, s := range srcs {
		err = multierr.Append(err, s.Close())
	}
	return err
}

// AsSensors narrows a slice of sources for governor.NewLoop.
func AsSensors(srcs []Source) []governor.Sensor {
	out := make([]governor.Sensor, len(srcs))
	for i, s := range srcs {
		out[i] = s
	}
	return out
}
