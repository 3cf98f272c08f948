// Package metrics provides Prometheus metrics for the worker cluster.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exit kinds used as the "kind" label of the exits counter.
const (
	ExitClean = "clean"
	ExitCrash = "crash"
)

var (
	poolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "webcluster",
		Name:      "pool_size",
		Help:      "Configured number of worker slots",
	})

	workersReady = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "webcluster",
		Name:      "workers_ready",
		Help:      "Distinct slots that reported app_started",
	})

	clusterHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "webcluster",
		Name:      "cluster_healthy",
		Help:      "1 once cluster_healthy was broadcast",
	})

	workerSpawns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "webcluster",
		Subsystem: "worker",
		Name:      "spawns_total",
		Help:      "Worker processes started, including respawns",
	})

	workerExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webcluster",
		Subsystem: "worker",
		Name:      "exits_total",
		Help:      "Worker process exits by kind",
	}, []string{"kind"})

	workerRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "webcluster",
		Subsystem: "worker",
		Name:      "restarts_total",
		Help:      "Respawns scheduled after a crash",
	})

	workerAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "webcluster",
		Subsystem: "worker",
		Name:      "abandoned_total",
		Help:      "Slots that exhausted their restart attempts",
	})

	// Local cache for SSE exporter access.
	snapshot   ClusterMetrics
	snapshotMu sync.RWMutex
)

// ClusterMetrics holds current metric values.
type ClusterMetrics struct {
	PoolSize  int
	Ready     int
	Healthy   bool
	Spawns    int
	Restarts  int
	Abandoned int
	Exits     map[string]int
}

// SetPoolSize sets the configured pool size.
func SetPoolSize(n int) {
	poolSize.Set(float64(n))
	update(func(m *ClusterMetrics) { m.PoolSize = n })
}

// SetWorkersReady sets the number of slots counted toward the barrier.
func SetWorkersReady(n int) {
	workersReady.Set(float64(n))
	update(func(m *ClusterMetrics) { m.Ready = n })
}

// SetClusterHealthy records whether the barrier fired.
func SetClusterHealthy(healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	clusterHealthy.Set(v)
	update(func(m *ClusterMetrics) { m.Healthy = healthy })
}

// IncSpawns counts a started worker process.
func IncSpawns() {
	workerSpawns.Inc()
	update(func(m *ClusterMetrics) { m.Spawns++ })
}

// IncExits counts a worker exit of the given kind (ExitClean or ExitCrash).
func IncExits(kind string) {
	workerExits.WithLabelValues(kind).Inc()
	update(func(m *ClusterMetrics) {
		if m.Exits == nil {
			m.Exits = make(map[string]int)
		}
		m.Exits[kind]++
	})
}

// IncRestarts counts a scheduled respawn.
func IncRestarts() {
	workerRestarts.Inc()
	update(func(m *ClusterMetrics) { m.Restarts++ })
}

// IncAbandoned counts a slot that was given up on.
func IncAbandoned() {
	workerAbandoned.Inc()
	update(func(m *ClusterMetrics) { m.Abandoned++ })
}

// GetClusterMetrics returns a copy of the current values.
func GetClusterMetrics() ClusterMetrics {
	snapshotMu.RLock()
	defer snapshotMu.RUnlock()
	dup := snapshot
	dup.Exits = make(map[string]int, len(snapshot.Exits))
	for k, v := range snapshot.Exits {
		dup.Exits[k] = v
	}
	return dup
}

func update(fn func(*ClusterMetrics)) {
	snapshotMu.Lock()
	defer snapshotMu.Unlock()
	fn(&snapshot)
}
