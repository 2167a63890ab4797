// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports laser status and wire counters to Prometheus
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/stradus/pkg/stradus"
)

const namespace = "stradus"

// Collector holds the stradus metrics on a private registry.
// It implements stradus.EventSink.
type Collector struct {
	registry *prometheus.Registry

	frames        *prometheus.CounterVec
	bytes         *prometheus.CounterVec
	timeouts      prometheus.Counter
	ioErrors      prometheus.Counter
	roundTrip     prometheus.Histogram
	pollErrors    prometheus.Counter
	state         *prometheus.GaugeVec
	faultCode     prometheus.Gauge
	faults        *prometheus.GaugeVec
	temperature   *prometheus.GaugeVec
	power         prometheus.Gauge
	powerSetpoint prometheus.Gauge
	emitting      prometheus.Gauge
	interlock     prometheus.Gauge
	wavelength    prometheus.Gauge

	sentAt time.Time
}

// New creates a collector with all metrics registered
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames exchanged with the controller.",
		}, []string{"direction"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes exchanged with the controller.",
		}, []string{"direction"}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_timeouts_total",
			Help:      "Read phases that ended without a reply delimiter.",
		}),
		ioErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "io_errors_total",
			Help:      "Serial channel failures.",
		}),
		roundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_trip_seconds",
			Help:      "Time from request written to payload frame received.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Status polls that failed.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current device state, 0 otherwise.",
		}, []string{"state"}),
		faultCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fault_code",
			Help:      "Raw fault register.",
		}),
		faults: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fault",
			Help:      "1 while the named fault bit is set.",
		}, []string{"fault"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Measured temperatures.",
		}, []string{"sensor"}),
		power: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power_milliwatts",
			Help:      "Measured output power.",
		}),
		powerSetpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power_setpoint_milliwatts",
			Help:      "Active power setpoint.",
		}),
		emitting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "emitting",
			Help:      "1 while the laser is emitting.",
		}),
		interlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "interlock_closed",
			Help:      "1 while the interlock is closed.",
		}),
		wavelength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wavelength_nanometers",
			Help:      "Laser wavelength.",
		}),
	}

	c.registry.MustRegister(
		c.frames,
		c.bytes,
		c.timeouts,
		c.ioErrors,
		c.roundTrip,
		c.pollErrors,
		c.state,
		c.faultCode,
		c.faults,
		c.temperature,
		c.power,
		c.powerSetpoint,
		c.emitting,
		c.interlock,
		c.wavelength,
	)
	return c
}

// Registry returns the private registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Record counts one wire event
func (c *Collector) Record(ev stradus.Event) {
	switch ev.Kind {
	case stradus.EventSent:
		c.frames.WithLabelValues("tx").Inc()
		c.bytes.WithLabelValues("tx").Add(float64(len(ev.Frame) + len(stradus.RequestTerminator)))
		c.sentAt = ev.Time
	case stradus.EventReceived:
		c.frames.WithLabelValues("rx").Inc()
		c.bytes.WithLabelValues("rx").Add(float64(len(ev.Frame)))
		if ev.Phase == 2 && !c.sentAt.IsZero() {
			c.roundTrip.Observe(ev.Time.Sub(c.sentAt).Seconds())
		}
	case stradus.EventTimeout:
		c.timeouts.Inc()
		c.bytes.WithLabelValues("rx").Add(float64(len(ev.Frame)))
	case stradus.EventError:
		c.ioErrors.Inc()
	}
}

// Observe updates the status gauges from a snapshot
func (c *Collector) Observe(s stradus.Status) {
	for _, st := range []stradus.DeviceState{
		stradus.StateEmissionActive,
		stradus.StateStandby,
		stradus.StateWarmup,
		stradus.StateFault,
	} {
		c.state.WithLabelValues(st.String()).Set(boolGauge(st == s.State))
	}

	c.faultCode.Set(float64(s.FaultCode))
	for _, f := range stradus.FaultFields()[1:] {
		c.faults.WithLabelValues(f.String()).Set(boolGauge(s.FaultCode.Has(f)))
	}

	c.temperature.WithLabelValues("base_plate").Set(s.BasePlateTemperature)
	c.temperature.WithLabelValues("optical_block").Set(s.OpticalBlockTemperature)
	c.power.Set(s.Power)
	c.powerSetpoint.Set(s.PowerSetpoint)
	c.emitting.Set(boolGauge(s.Emitting))
	c.interlock.Set(boolGauge(s.InterlockClosed))
	c.wavelength.Set(float64(s.Wavelength))
}

// PollFailed counts a failed status poll
func (c *Collector) PollFailed() {
	c.pollErrors.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics and /health on addr until ctx is cancelled
func (c *Collector) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
