// Package collectors feeds cluster lifecycle events into the metrics package.
package collectors

import (
	"sync"

	"github.com/smazurov/webcluster/internal/events"
	"github.com/smazurov/webcluster/internal/logging"
	"github.com/smazurov/webcluster/internal/metrics"
)

// ClusterCollector updates cluster metrics from supervisor events.
type ClusterCollector struct {
	bus    *events.Bus
	size   int
	logger logging.Logger
	unsubs []func()
	mu     sync.Mutex
}

// NewClusterCollector creates a collector for a pool of the given size.
func NewClusterCollector(bus *events.Bus, size int) *ClusterCollector {
	return &ClusterCollector{
		bus:    bus,
		size:   size,
		logger: logging.GetLogger("metrics"),
	}
}

// Start subscribes to the event bus.
func (c *ClusterCollector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	metrics.SetPoolSize(c.size)
	metrics.SetWorkersReady(0)
	metrics.SetClusterHealthy(false)

	c.unsubs = append(c.unsubs,
		c.bus.Subscribe(func(events.WorkerSpawnedEvent) {
			metrics.IncSpawns()
		}),
		c.bus.Subscribe(func(e events.WorkerReadyEvent) {
			metrics.SetWorkersReady(e.Ready)
		}),
		c.bus.Subscribe(func(events.ClusterHealthyEvent) {
			metrics.SetClusterHealthy(true)
		}),
		c.bus.Subscribe(func(e events.WorkerExitedEvent) {
			if e.Clean {
				metrics.IncExits(metrics.ExitClean)
				return
			}
			metrics.IncExits(metrics.ExitCrash)
		}),
		c.bus.Subscribe(func(events.WorkerRestartScheduledEvent) {
			metrics.IncRestarts()
		}),
		c.bus.Subscribe(func(e events.WorkerAbandonedEvent) {
			c.logger.Debug("Counting abandoned slot", "wid", e.SlotID)
			metrics.IncAbandoned()
		}),
	)
	c.logger.Debug("Cluster metrics collection started", "pool_size", c.size)
}

// Stop unsubscribes from the event bus.
func (c *ClusterCollector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}
