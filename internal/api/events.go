package api

import (
	"context"
	"maps"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/webcluster/internal/events"
	"github.com/smazurov/webcluster/internal/metrics/exporters"
)

// registerSSERoutes registers the cluster event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time worker lifecycle events and periodic cluster metrics",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func() map[string]any {
		eventTypes := map[string]any{
			"worker-spawned":           events.WorkerSpawnedEvent{},
			"worker-ready":             events.WorkerReadyEvent{},
			"cluster-healthy":          events.ClusterHealthyEvent{},
			"worker-exited":            events.WorkerExitedEvent{},
			"worker-restart-scheduled": events.WorkerRestartScheduledEvent{},
			"worker-abandoned":         events.WorkerAbandonedEvent{},
		}
		maps.Copy(eventTypes, exporters.GetEventTypes())
		return eventTypes
	}(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribe := subscribeAll(
			events.SubscribeToChannel[events.WorkerSpawnedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.WorkerReadyEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ClusterHealthyEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.WorkerExitedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.WorkerRestartScheduledEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.WorkerAbandonedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ClusterMetricsEvent](s.eventBus, eventCh),
		)
		defer unsubscribe()

		forward(ctx, eventCh, send.Data)
	})
}
