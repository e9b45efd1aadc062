package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/oklog/run"
	"go.uber.org/multierr"

	"thermal-governor/internal/config"
	"thermal-governor/internal/fancontrol"
	"thermal-governor/internal/governor"
	"thermal-governor/internal/metrics"
	"thermal-governor/internal/sensors"
	"thermal-governor/internal/telemetry"
	"thermal-governor/internal/web"
)

// runtime owns every long-lived resource of the process.
type runtime struct {
	cfg config.Config
	log logr.Logger

	sources []sensors.Source
	act     fancontrol.Actuator
	loop    *governor.Loop

	logs    *web.LogBuffer
	status  *web.Status
	metrics *metrics.Recorder
	telem   *telemetry.Publisher
}

// newRuntime opens sources, the actuator and telemetry sinks and builds the
// loop. Nothing is written to the fan here.
func newRuntime(cfg config.Config, log logr.Logger, logs *web.LogBuffer) (*runtime, error) {
	core := cfg.Core()
	r := &runtime{cfg: cfg, log: log, logs: logs}

	srcs, err := sensors.OpenAll(cfg.Sensors, log.WithName("sensors"))
	if err != nil {
		return nil, fmt.Errorf("open sensors: %w", err)
	}
	r.sources = srcs

	act, err := fancontrol.Open(cfg.Fan, log.WithName("fan"))
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("open fan backend %q: %w", cfg.Fan.Backend, err), r.Close())
	}
	r.act = act

	r.status = web.NewStatus(core, cfg.Offsets(), cfg.Fan.Backend)
	if cfg.Fan.SelfTest {
		// The loop's first tick waits for the self test to finish.
		r.status.SetStartupGrace(time.Duration(cfg.Fan.SelfTestFull + cfg.Fan.SelfTestMin))
	}
	r.metrics = metrics.NewRecorder()
	r.telem = telemetry.New(cfg.Telemetry, log.WithName("telemetry"))

	loop, err := governor.NewLoop(core, sensors.AsSensors(srcs), act, governor.LoopOptions{
		Offsets:   cfg.Offsets(),
		Logger:    log.WithName("governor"),
		Observers: []governor.Observer{r.status, r.metrics, r.telem},
	})
	if err != nil {
		return nil, multierr.Append(err, r.Close())
	}
	r.loop = loop

	ids := make([]string, 0, len(cfg.Sensors))
	for _, s := range cfg.Sensors {
		ids = append(ids, s.ID)
	}
	log.Info("thermal-governor configured", "sensors", ids, "fan", cfg.Fan.Backend,
		"listen", cfg.Status.Listen, "telemetry", r.telem.Enabled())
	return r, nil
}

// addActors registers the control loop and, when enabled, the status server.
func (r *runtime) addActors(ctx context.Context, g *run.Group) {
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			if r.cfg.Fan.SelfTest {
				st := fancontrol.SelfTestConfig{
					MinSpeed: r.cfg.Core().MinSpeed,
					Full:     time.Duration(r.cfg.Fan.SelfTestFull),
					Min:      time.Duration(r.cfg.Fan.SelfTestMin),
				}
				if err := fancontrol.SelfTest(ctx, r.act, st, r.log.WithName("fan")); err != nil {
					r.log.Error(err, "fan self test failed")
				}
			}
			return r.loop.Run(ctx)
		}, func(error) {
			cancel()
		})
	}

	if r.cfg.Status.Listen != "" {
		ctx, cancel := context.WithCancel(ctx)
		h := web.Handler(r.status, r.logs, r.metrics.Handler())
		g.Add(func() error {
			r.log.Info("status server listening", "addr", r.cfg.Status.Listen)
			if err := web.Serve(ctx, r.cfg.Status.Listen, h); err != nil {
				// The fan keeps being governed without the status server.
				r.log.Error(err, "status server failed", "addr", r.cfg.Status.Listen)
				<-ctx.Done()
			}
			return nil
		}, func(error) {
			cancel()
		})
	}
}

func (r *runtime) Close() error {
	var err error
	if r.telem != nil {
		err = multierr.Append(err, r.telem.Close())
	}
	if r.act != nil {
		err = multierr.Append(err, r.act.Close())
	}
	err = multierr.Append(err, sensors.CloseAll(r.sources))
	r.telem, r.act, r.sources = nil, nil, nil
	return err
}
