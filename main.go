package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/google/uuid"
	"github.com/smazurov/webcluster/cmd"
	"github.com/smazurov/webcluster/internal/api"
	"github.com/smazurov/webcluster/internal/cluster"
	"github.com/smazurov/webcluster/internal/config"
	"github.com/smazurov/webcluster/internal/events"
	"github.com/smazurov/webcluster/internal/ipc"
	"github.com/smazurov/webcluster/internal/logging"
	"github.com/smazurov/webcluster/internal/metrics/collectors"
	"github.com/smazurov/webcluster/internal/metrics/exporters"
	"github.com/smazurov/webcluster/internal/process"
	"github.com/smazurov/webcluster/internal/systemd"
	"github.com/smazurov/webcluster/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `doc:"Path to configuration file" short:"c" default:"webcluster.toml"`

	// Cluster settings
	Forks              int           `doc:"Number of worker processes" short:"n" default:"1" toml:"cluster.forks" env:"FORKS"`
	Port               int           `doc:"Port every worker listens on" short:"p" default:"8080" toml:"cluster.port" env:"PORT"`
	RestartMaxAttempts int           `doc:"Consecutive crashes tolerated per worker" default:"5" toml:"cluster.restart_max_attempts" env:"RESTART_MAX_ATTEMPTS"`
	RestartDelay       time.Duration `doc:"Delay before respawning a crashed worker" default:"1s" toml:"cluster.restart_delay" env:"RESTART_DELAY"`
	GracefulTimeout    time.Duration `doc:"How long workers get to exit on shutdown" default:"5s" toml:"cluster.graceful_timeout" env:"GRACEFUL_TIMEOUT"`
	WorkerCommand      string        `doc:"Worker command line (default: this binary's worker command)" toml:"cluster.worker_command" env:"WORKER_COMMAND"`

	// Messaging settings
	MessagingPort int `doc:"Port of the embedded message server" default:"4222" toml:"messaging.port" env:"MESSAGING_PORT"`

	// Admin API settings
	AdminAddr    string `doc:"Admin API listen address, empty disables it" default:"127.0.0.1:9090" toml:"admin.addr" env:"ADMIN_ADDR"`
	AuthUsername string `doc:"Admin API basic auth username" toml:"admin.username" env:"AUTH_USERNAME"`
	AuthPassword string `doc:"Admin API basic auth password" toml:"admin.password" env:"AUTH_PASSWORD"`

	// Logging settings. Empty module levels follow LoggingLevel.
	LoggingLevel   string `doc:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `doc:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCluster string `doc:"Supervisor logging level" toml:"logging.cluster" env:"LOGGING_CLUSTER"`
	LoggingProcess string `doc:"Process layer logging level" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingIPC     string `doc:"Messaging logging level" toml:"logging.ipc" env:"LOGGING_IPC"`
	LoggingWorker  string `doc:"Relayed worker output logging level" toml:"logging.worker" env:"LOGGING_WORKER"`
	LoggingAPI     string `doc:"Admin API logging level" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	var cli humacli.CLI

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Error("Failed to load config", "error", loadErr)
			os.Exit(1)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: moduleLevels(map[string]string{
				"cluster": opts.LoggingCluster,
				"process": opts.LoggingProcess,
				"ipc":     opts.LoggingIPC,
				"worker":  opts.LoggingWorker,
				"api":     opts.LoggingAPI,
			}),
		})

		runID := uuid.NewString()
		logger := logging.GetLogger("main").With("run_id", runID)

		workerCmd, cmdErr := workerCommand(opts.WorkerCommand)
		if cmdErr != nil {
			logger.Error("Invalid worker command", "error", cmdErr)
			os.Exit(1)
		}

		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        entry.Seq,
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		ipcServer, ipcErr := ipc.NewServer(ipc.ServerOptions{
			Port:   opts.MessagingPort,
			Logger: logging.GetLogger("ipc"),
		})
		if ipcErr != nil {
			logger.Error("Invalid messaging configuration", "error", ipcErr)
			os.Exit(1)
		}
		// the port is fixed, so the URL is known before the server starts
		bridge := ipc.NewBridge(ipcServer.ClientURL(), logging.GetLogger("ipc"))

		forker := process.NewForker(&process.ForkerOptions{
			Command: workerCmd,
			Env: []string{
				"PORT=" + strconv.Itoa(opts.Port),
				cmd.EnvIPCURL + "=" + ipcServer.ClientURL(),
			},
			GracefulTimeout: opts.GracefulTimeout,
			Logger:          logging.GetLogger("process"),
			ConfigureProcess: func(slotID int, proc *process.Process) {
				proc.SetLogParser(logging.GetLogger("worker").With("wid", slotID), process.ParseSlogLine)
			},
		})

		supervisor := cluster.New(cluster.Options{
			Size:        opts.Forks,
			Spawner:     forker,
			Broadcaster: bridge,
			Policy: cluster.RestartPolicy{
				MaxAttempts: opts.RestartMaxAttempts,
				Delay:       opts.RestartDelay,
			},
			EventBus: eventBus,
			Logger:   logging.GetLogger("cluster"),
		})
		bridge.OnSignal(supervisor.HandleMessage)
		forker.OnExit(supervisor.HandleExit)

		collector := collectors.NewClusterCollector(eventBus, supervisor.Size())
		sseExporter := exporters.NewSSEExporter(eventBus)
		notifier := systemd.NewNotifier(logging.GetLogger("systemd"))

		var apiServer *api.Server
		if opts.AdminAddr != "" {
			apiServer = api.NewServer(&api.Options{
				AuthUsername:      opts.AuthUsername,
				AuthPassword:      opts.AuthPassword,
				Cluster:           supervisor,
				EventBus:          eventBus,
				IPCClients:        ipcServer.NumClients,
				IPCWorkers:        ipcServer.ConnectedWorkers,
				IPCConnected:      bridge.IsConnected,
				Processes:         forker.List,
				RunID:             runID,
				PrometheusHandler: exporters.HTTPHandler(),
			})
		}

		logWatcher := config.NewLoggingWatcher(opts.Config, logger)
		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			logger.Info("Starting webcluster", "version", version.Get().String(), "forks", supervisor.Size(), "port", opts.Port)

			if startErr := ipcServer.Start(); startErr != nil {
				logger.Error("Failed to start message server", "error", startErr)
				os.Exit(1)
			}
			if startErr := bridge.Start(); startErr != nil {
				logger.Error("Failed to connect to message server", "error", startErr)
				os.Exit(1)
			}

			collector.Start()
			sseExporter.Start(ctx)
			notifier.Subscribe(eventBus, supervisor.Size())
			notifier.StartWatchdog()

			if watchErr := logWatcher.Start(); watchErr != nil {
				logger.Warn("Failed to start config watcher, log level reload disabled", "error", watchErr)
			}

			if apiServer != nil {
				if startErr := apiServer.Start(opts.AdminAddr); startErr != nil {
					logger.Error("Failed to start admin API", "error", startErr)
					os.Exit(1)
				}
			}

			if startErr := supervisor.Start(); startErr != nil {
				logger.Error("Failed to start workers", "error", startErr)
				os.Exit(1)
			}

			<-ctx.Done()
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			notifier.Stopping()

			// no respawns from here on, then stop the workers themselves
			supervisor.Stop()
			forker.StopAll()

			bridge.Stop()
			ipcServer.Stop()

			if apiServer != nil {
				if stopErr := apiServer.Stop(); stopErr != nil {
					logger.Error("Error stopping admin API", "error", stopErr)
				}
			}
			_ = logWatcher.Stop()
			cancel()
			sseExporter.Stop()
			collector.Stop()
		})
	})

	cli.Root().Use = "webcluster"
	cli.Root().Short = "Run an HTTP application on a supervised pool of worker processes"
	cli.Root().Version = version.Get().String()
	cli.Root().AddCommand(cmd.CreateWorkerCmd())

	cli.Run()
}

// workerCommand returns the argv used to fork workers: the configured
// command line, or this binary's worker subcommand.
func workerCommand(override string) ([]string, error) {
	if override != "" {
		return process.ParseCommand(override)
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	return []string{exe, "worker"}, nil
}

// moduleLevels drops modules without an explicit level.
func moduleLevels(levels map[string]string) map[string]string {
	for module, level := range levels {
		if level == "" {
			delete(levels, module)
		}
	}
	return levels
}
