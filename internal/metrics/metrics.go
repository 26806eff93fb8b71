package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serviceStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "portkeeper",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of spawn attempts that reached Starting.",
		},
	)
	serviceStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "portkeeper",
			Subsystem: "service",
			Name:      "stops_total",
			Help:      "Number of completed stops (graceful or kill).",
		},
	)
	serviceRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "portkeeper",
			Subsystem: "service",
			Name:      "restarts_total",
			Help:      "Number of restart commands issued.",
		},
	)
	portConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "portkeeper",
			Subsystem: "service",
			Name:      "port_conflicts_total",
			Help:      "Times the well-known port was found held by a foreign process.",
		},
	)
	droppedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "portkeeper",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events discarded because the queue was full.",
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portkeeper",
			Subsystem: "service",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between supervisor states.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "portkeeper",
			Subsystem: "service",
			Name:      "current_state",
			Help:      "Current supervisor state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	probeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "portkeeper",
			Subsystem: "health",
			Name:      "probe_duration_seconds",
			Help:      "Duration of readiness probe round trips.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serviceStarts, serviceStops, serviceRestarts, portConflicts, droppedEvents, stateTransitions, currentState, probeDuration}
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

// Handler returns an http.Handler serving Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Lightweight helpers used by internal packages. They no-op if Register
// hasn't been called.

func IncStart() {
	if regOK.Load() {
		serviceStarts.Inc()
	}
}

func IncStop() {
	if regOK.Load() {
		serviceStops.Inc()
	}
}

func IncRestart() {
	if regOK.Load() {
		serviceRestarts.Inc()
	}
}

func IncPortConflict() {
	if regOK.Load() {
		portConflicts.Inc()
	}
}

func IncDroppedEvent() {
	if regOK.Load() {
		droppedEvents.Inc()
	}
}

func ObserveProbeDuration(seconds float64) {
	if regOK.Load() {
		probeDuration.Observe(seconds)
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func SetCurrentState(state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentState.WithLabelValues(state).Set(value)
	}
}
