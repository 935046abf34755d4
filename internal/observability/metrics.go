package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the bridge's snapshot counters.
type Metrics struct {
	snapshots *prometheus.CounterVec
	nodes     *prometheus.CounterVec
	cycles    prometheus.Counter
	exports   *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	snapshots := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "octane_bridge_snapshots_total",
		Help: "Total snapshot requests by outcome.",
	}, []string{"outcome"})
	nodes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "octane_bridge_snapshot_nodes_total",
		Help: "Total snapshot nodes produced by status.",
	}, []string{"status"})
	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "octane_bridge_dependency_cycles_total",
		Help: "Total dependency edges truncated because they closed a cycle.",
	}, nil)
	exports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "octane_bridge_exports_total",
		Help: "Total snapshot exports by destination.",
	}, []string{"destination"})

	snapshots = registerCounterVec(registerer, snapshots)
	nodes = registerCounterVec(registerer, nodes)
	cycles = registerCounterVec(registerer, cycles)
	exports = registerCounterVec(registerer, exports)

	return &Metrics{
		snapshots: snapshots,
		nodes:     nodes,
		cycles:    cycles.WithLabelValues(),
		exports:   exports,
	}
}

// MetricsHandler serves the given gatherer, or the default registry when nil.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) IncSnapshot(outcome string) {
	if m == nil || m.snapshots == nil {
		return
	}
	m.snapshots.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncNode(status string) {
	if m == nil || m.nodes == nil {
		return
	}
	m.nodes.WithLabelValues(status).Inc()
}

// IncDependencyCycle implements snapshot.CycleObserver.
func (m *Metrics) IncDependencyCycle() {
	if m == nil || m.cycles == nil {
		return
	}
	m.cycles.Inc()
}

func (m *Metrics) IncExport(destination string) {
	if m == nil || m.exports == nil {
		return
	}
	m.exports.WithLabelValues(destination).Inc()
}

func registerCounterVec(registerer prometheus.Registerer, counter *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return counter
}
