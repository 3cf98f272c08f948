// Package ipc carries cluster signals between the primary and its workers over
// an embedded NATS server.
//
// # Architecture
//
//   - Server: embedded NATS server running in the primary (webcluster)
//   - Bridge: primary-side connection; receives worker signals and implements
//     cluster.Broadcaster
//   - WorkerClient: worker-side connection (webcluster worker); publishes
//     app_started and receives cluster_healthy
//
// # Subject Hierarchy
//
//	webcluster.workers.signal       # app_started (worker → primary)
//	webcluster.control.{pid}        # cluster_healthy (primary → worker)
//
// Messages are JSON encoded SignalMessage values. Delivery is fire-and-forget
// (core NATS, no JetStream). A worker subscribes to its control subject and
// flushes before it publishes app_started, so the primary's answer cannot
// overtake the subscription.
//
// # Debugging with nats CLI
//
// Monitor worker signals:
//
//	nats sub "webcluster.workers.signal"
//
// Monitor everything sent to workers:
//
//	nats sub "webcluster.control.>"
//
// Flip the health flag of one worker by hand:
//
//	nats pub "webcluster.control.4242" '{"signal":"cluster_healthy","pid":4242,"timestamp":"2025-01-01T00:00:00Z"}'
package ipc
