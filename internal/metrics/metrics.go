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

	serverStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devsrv",
			Subsystem: "server",
			Name:      "starts_total",
			Help:      "Number of successful spawns, manual or automatic.",
		}, []string{"name"},
	)
	serverSpawnFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devsrv",
			Subsystem: "server",
			Name:      "spawn_failures_total",
			Help:      "Number of spawn attempts that failed.",
		}, []string{"name"},
	)
	serverStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devsrv",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Number of requested stops.",
		}, []string{"name"},
	)
	serverCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devsrv",
			Subsystem: "server",
			Name:      "crashes_total",
			Help:      "Number of unexpected exits.",
		}, []string{"name"},
	)
	serverRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devsrv",
			Subsystem: "server",
			Name:      "auto_restarts_total",
			Help:      "Number of automatic restarts after a crash.",
		}, []string{"name"},
	)
	serverGiveUps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devsrv",
			Subsystem: "server",
			Name:      "restart_give_ups_total",
			Help:      "Number of times the restart limit was reached.",
		}, []string{"name"},
	)

	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devsrv",
			Subsystem: "server",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between server states.",
		}, []string{"name", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "devsrv",
			Subsystem: "server",
			Name:      "current_state",
			Help:      "Current state of servers (1 = active state, 0 = inactive).",
		}, []string{"name", "state"},
	)

	cpuPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "devsrv",
			Subsystem: "server",
			Name:      "cpu_percent",
			Help:      "Last sampled CPU usage of monitored servers.",
		}, []string{"name"},
	)
	memoryMB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "devsrv",
			Subsystem: "server",
			Name:      "memory_mb",
			Help:      "Last sampled resident memory of monitored servers in MB.",
		}, []string{"name"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		serverStarts, serverSpawnFailures, serverStops, serverCrashes, serverRestarts, serverGiveUps,
		stateTransitions, currentStates, cpuPercent, memoryMB,
	}
}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range collectors() {
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

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		serverStarts.WithLabelValues(name).Inc()
	}
}
func IncSpawnFailure(name string) {
	if regOK.Load() {
		serverSpawnFailures.WithLabelValues(name).Inc()
	}
}
func IncStop(name string) {
	if regOK.Load() {
		serverStops.WithLabelValues(name).Inc()
	}
}
func IncCrash(name string) {
	if regOK.Load() {
		serverCrashes.WithLabelValues(name).Inc()
	}
}
func IncRestart(name string) {
	if regOK.Load() {
		serverRestarts.WithLabelValues(name).Inc()
	}
}
func IncGiveUp(name string) {
	if regOK.Load() {
		serverGiveUps.WithLabelValues(name).Inc()
	}
}

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}

func SetCurrentState(name, state string, active bool) {
	if regOK.Load() {
		var value float64 = 0
		if active {
			value = 1
		}
		currentStates.WithLabelValues(name, state).Set(value)
	}
}

func SetUsage(name string, cpu, memMB float64) {
	if regOK.Load() {
		cpuPercent.WithLabelValues(name).Set(cpu)
		memoryMB.WithLabelValues(name).Set(memMB)
	}
}

func ClearUsage(name string) {
	if regOK.Load() {
		cpuPercent.DeleteLabelValues(name)
		memoryMB.DeleteLabelValues(name)
	}
}

// Forget drops every per-server series for a deleted server.
func Forget(name string) {
	if !regOK.Load() {
		return
	}
	ClearUsage(name)
	labels := prometheus.Labels{"name": name}
	for _, v := range []*prometheus.CounterVec{serverStarts, serverSpawnFailures, serverStops, serverCrashes, serverRestarts, serverGiveUps, stateTransitions} {
		v.DeletePartialMatch(labels)
	}
	currentStates.DeletePartialMatch(labels)
}
