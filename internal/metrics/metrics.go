// Package metrics exports the governor's decisions as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"thermal-governor/internal/governor"
)

const namespace = "thermal_governor"

const (
	outcomeDecided   = "decided"
	outcomeNoSensors = "no_sensors"
)

// Recorder is a governor.Observer that keeps a private registry, so tests and
// multiple instances never collide on the global one.
type Recorder struct {
	reg *prometheus.Registry

	effectiveTemp    prometheus.Gauge
	sensorTemp       *prometheus.GaugeVec
	sensorFailures   *prometheus.CounterVec
	speedTarget      prometheus.Gauge
	speedApplied     prometheus.Gauge
	actuationFailure prometheus.Counter
	ticks            *prometheus.CounterVec
	speedChanges     prometheus.Counter
	band             *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		effectiveTemp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "effective_temperature_celsius",
			Help:      "Hottest offset-adjusted sensor reading of the last tick that had one.",
		}),
		sensorTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_temperature_celsius",
			Help:      "Last successful raw reading per sensor, before offsets.",
		}, []string{"sensor"}),
		sensorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_read_failures_total",
			Help:      "Reads that produced no usable value, per sensor.",
		}, []string{"sensor"}),
		speedTarget: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_speed_target",
			Help:      "Intended fan speed (0-255).",
		}),
		speedApplied: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_speed_applied",
			Help:      "Fan speed last accepted by the hardware (0-255).",
		}),
		actuationFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuation_failures_total",
			Help:      "Failed attempts to write the fan speed.",
		}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Completed control ticks by outcome.",
		}, []string{"outcome"}),
		speedChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speed_changes_total",
			Help:      "Ticks that committed a new intended speed.",
		}),
		band: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "band",
			Help:      "1 for the temperature band of the last decided tick, 0 otherwise.",
		}, []string{"band"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.effectiveTemp,
		r.sensorTemp,
		r.sensorFailures,
		r.speedTarget,
		r.speedApplied,
		r.actuationFailure,
		r.ticks,
		r.speedChanges,
		r.band,
	)
	// Make both outcomes visible from the first scrape.
	r.ticks.WithLabelValues(outcomeDecided)
	r.ticks.WithLabelValues(outcomeNoSensors)
	return r
}

func (r *Recorder) Observe(t governor.Tick) {
	for _, rd := range t.Readings {
		if rd.OK {
			r.sensorTemp.WithLabelValues(rd.Source).Set(rd.Value)
		} else {
			r.sensorFailures.WithLabelValues(rd.Source).Inc()
		}
	}

	if t.HaveTemp {
		r.ticks.WithLabelValues(outcomeDecided).Inc()
		r.effectiveTemp.Set(t.Effective)
		for _, b := range []governor.Band{governor.BandLow, governor.BandMid, governor.BandHigh, governor.BandCritical} {
			v := 0.0
			if b == t.Band {
				v = 1
			}
			r.band.WithLabelValues(b.String()).Set(v)
		}
	} else {
		r.ticks.WithLabelValues(outcomeNoSensors).Inc()
	}

	r.speedTarget.Set(float64(t.State.CurrentSpeed))
	if t.HaveApplied {
		r.speedApplied.Set(float64(t.Applied))
	}
	if t.SpeedChanged {
		r.speedChanges.Inc()
	}
	if t.ActuationErr != nil {
		r.actuationFailure.Inc()
	}
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
