package cmd

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/smazurov/webcluster/internal/app"
	"github.com/smazurov/webcluster/internal/config"
	"github.com/smazurov/webcluster/internal/ipc"
	"github.com/smazurov/webcluster/internal/logging"
	"github.com/spf13/cobra"
)

// EnvIPCURL carries the primary's message server URL to forked workers.
const EnvIPCURL = "WEBCLUSTER_IPC_URL"

const shutdownTimeout = 5 * time.Second

// workerOptions are read from the environment the Forker prepares.
type workerOptions struct {
	WorkerID      int           `env:"WID"`
	Port          int           `env:"PORT"`
	Host          string        `env:"WORKER_HOST"`
	IPCURL        string        `env:"WEBCLUSTER_IPC_URL"`
	CrashAfter    time.Duration `env:"WORKER_CRASH_AFTER"`
	LoggingLevel  string        `env:"LOGGING_LEVEL"`
	LoggingFormat string        `env:"LOGGING_FORMAT"`
}

// CreateWorkerCmd returns the hidden subcommand run inside each forked worker.
func CreateWorkerCmd() *cobra.Command {
	opts := &workerOptions{
		Port:          8080,
		Host:          "0.0.0.0",
		LoggingLevel:  "info",
		LoggingFormat: "text",
	}

	workerCmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run one worker of the pool (started by the primary)",
		Hidden: true,
		Args:   cobra.NoArgs,
		// replaces the root pre-run, which sets up the primary
		PersistentPreRun: func(*cobra.Command, []string) {},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadConfig(opts, cmd); err != nil {
				return err
			}

			// workers print slog lines on stdout; the primary parses and relays them
			logging.Initialize(logging.Config{Level: opts.LoggingLevel, Format: opts.LoggingFormat, Relayed: true})
			logger := logging.GetLogger("worker")

			if err := app.ExitWithParent(); err != nil {
				logger.Warn("Failed to tie worker lifetime to the primary", "error", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			os.Exit(runWorker(ctx, opts, logger))
			return nil
		},
	}

	workerCmd.Flags().StringVar(&opts.Host, "host", opts.Host, "Interface the application binds to")
	workerCmd.Flags().DurationVar(&opts.CrashAfter, "crash-after", 0, "Exit with code 1 after this delay")
	_ = workerCmd.Flags().MarkHidden("crash-after")

	return workerCmd
}

// runWorker serves the application until ctx is cancelled or serving fails
// and returns the process exit code.
func runWorker(ctx context.Context, opts *workerOptions, base *slog.Logger) int {
	logger := base.With("wid", opts.WorkerID)

	// app and ipc tag their own lines with the wid
	a, err := app.Start(ctx, app.Options{
		Addr:      net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		WorkerID:  opts.WorkerID,
		ReusePort: true,
		Logger:    base,
	})
	if err != nil {
		logger.Error("Failed to start application", "error", err)
		return 1
	}

	if opts.IPCURL == "" {
		logger.Warn("No message server configured, running standalone")
		a.BecomeHealthy()
	} else {
		client := ipc.NewWorkerClient(opts.IPCURL, opts.WorkerID, os.Getpid(), base)
		client.OnClusterHealthy(a.BecomeHealthy)
		if err := client.Connect(); err != nil {
			logger.Error("Failed to connect to primary", "error", err)
			return 1
		}
		defer client.Close()

		if err := client.PublishStarted(); err != nil {
			logger.Error("Failed to report startup", "error", err)
			return 1
		}
	}

	var crash <-chan time.Time
	if opts.CrashAfter > 0 {
		timer := time.NewTimer(opts.CrashAfter)
		defer timer.Stop()
		crash = timer.C
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Shutdown did not complete cleanly", "error", err)
		}
		return 0
	case err, ok := <-a.Err():
		if ok && err != nil {
			logger.Error("Application stopped serving", "error", err)
		} else {
			logger.Error("Application stopped serving")
		}
		return 1
	case <-crash:
		logger.Error("Crashing on request", "after", opts.CrashAfter)
		return 1
	}
}
