package exporters

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/webcluster/internal/events"
	"github.com/smazurov/webcluster/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter periodically publishes a cluster metrics snapshot on the event
// bus, from where the admin API streams it over Server-Sent Events.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		interval: 5 * time.Second,
	}
}

// Start begins the SSE export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the SSE exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.publishMetrics()
		}
	}
}

func (s *SSEExporter) publishMetrics() {
	m := metrics.GetClusterMetrics()
	s.eventBus.Publish(events.ClusterMetricsEvent{
		PoolSize:     m.PoolSize,
		Ready:        m.Ready,
		Healthy:      m.Healthy,
		Spawns:       m.Spawns,
		Restarts:     m.Restarts,
		Abandoned:    m.Abandoned,
		CleanExits:   m.Exits[metrics.ExitClean],
		CrashedExits: m.Exits[metrics.ExitCrash],
		Timestamp:    time.Now().Format(time.RFC3339),
	})
}

// GetEventTypes returns event types for SSE endpoint registration.
func GetEventTypes() map[string]any {
	return map[string]any{
		"cluster-metrics": events.ClusterMetricsEvent{},
	}
}
