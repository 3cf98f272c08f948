// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Keeps the most recent entries in a ring buffer for the admin API log stream
//
// Worker processes initialize with Relayed set and write to stdout only; the
// primary reads that output and logs it again under the "worker" module.
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"cluster": "debug",
//			"ipc":     "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("cluster").With("wid", 0)
//	logger.Info("Worker spawned", "pid", pid)
//
// Failures that end a component for good are logged one step above error:
//
//	logger.Log(ctx, logging.LevelFatal, "No more restart attempts")
//
// Levels can be changed at runtime with UpdateLevels; the primary process
// does this when the TOML config file changes.
//
// # Viewing Logs
//
//	journalctl -t webcluster              # All logs, primary and workers
//	journalctl -t webcluster MODULE=cluster
//	journalctl -t webcluster WID=1
//	journalctl -t webcluster -p crit      # Abandoned worker slots
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "text"
//	cluster = "debug"
//	ipc = "warn"
package logging
