package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	serverStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "servman",
			Subsystem: "server",
			Name:      "starts_total",
			Help:      "Number of successful server starts.",
		},
	)
	serverStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "servman",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Number of server stops (graceful or kill).",
		},
	)
	serverRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "servman",
			Subsystem: "server",
			Name:      "restarts_total",
			Help:      "Number of restart commands completed.",
		},
	)
	bindFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "servman",
			Subsystem: "server",
			Name:      "bind_failures_total",
			Help:      "Startup failures detected from a port-already-in-use signature.",
		},
	)
	outputLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "servman",
			Subsystem: "server",
			Name:      "output_lines_total",
			Help:      "Output lines relayed from the supervised server.",
		}, []string{"stream"},
	)
	serverUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "servman",
			Subsystem: "server",
			Name:      "up",
			Help:      "1 while the supervised server is recorded as running.",
		},
	)
)

// Register registers all metrics with the provided registerer. Safe to
// call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serverStarts, serverStops, serverRestarts, bindFailures, outputLines, serverUp}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves Prometheus metrics for the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart()   { serverStarts.Inc() }
func IncStop()    { serverStops.Inc() }
func IncRestart() { serverRestarts.Inc() }

func IncBindFailure() { bindFailures.Inc() }

func IncOutputLine(stream string) { outputLines.WithLabelValues(stream).Inc() }

// SetUp flips the running gauge.
func SetUp(running bool) {
	if running {
		serverUp.Set(1)
		return
	}
	serverUp.Set(0)
}
