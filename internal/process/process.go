package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a log line and returns the log level and message.
// Used to re-log worker output at the level the worker logged it.
type LogParser func(line string) (level, msg string)

// exitCodeKilled is reported when a process had to be force-killed.
const exitCodeKilled = 137

// Process manages the lifecycle of one subprocess.
type Process struct {
	id              string
	args            []string
	env             []string
	cmd             *exec.Cmd
	logger          *slog.Logger
	processLogger   *slog.Logger // logger for process output (nil = use logger)
	logParser       LogParser    // parses process output for log level (nil = no parsing)
	outputHandler   OutputHandler
	gracefulTimeout time.Duration // timeout for graceful shutdown before force kill
	killTimeout     time.Duration // timeout after Kill() before giving up

	done     chan struct{}
	exitCode int
	stopOnce sync.Once
}

// NewProcess creates a process for the given argv. Nothing is started until Start.
func NewProcess(id string, args []string, logger *slog.Logger) *Process {
	if logger == nil {
		logger = slog.Default()
	}
	return &Process{
		id:              id,
		args:            args,
		logger:          logger,
		done:            make(chan struct{}),
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
	}
}

// ID returns the process identifier used in logs.
func (p *Process) ID() string { return p.id }

// Args returns the argv the process is started with.
func (p *Process) Args() []string { return p.args }

// SetEnv sets extra environment variables, appended to the parent's environment.
func (p *Process) SetEnv(env []string) {
	p.env = env
}

// SetLogParser sets a custom logger and log parser for process output.
func (p *Process) SetLogParser(logger *slog.Logger, parser LogParser) {
	p.processLogger = logger
	p.logParser = parser
}

// SetOutputHandler sets a handler that receives every output line.
func (p *Process) SetOutputHandler(handler OutputHandler) {
	p.outputHandler = handler
}

// SetGracefulTimeout sets how long Shutdown waits after SIGINT before killing.
func (p *Process) SetGracefulTimeout(timeout time.Duration) {
	if timeout > 0 {
		p.gracefulTimeout = timeout
	}
}

// Start launches the subprocess and returns its pid. The exit is observed on a
// background goroutine; use Done and ExitCode to collect it.
func (p *Process) Start() (int, error) {
	if len(p.args) == 0 {
		p.logger.Error("Empty command")
		return 0, fmt.Errorf("empty command")
	}

	p.cmd = exec.Command(p.args[0], p.args[1:]...)
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	p.cmd.Env = append(os.Environ(), p.env...)

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		p.logger.Error("Failed to create stdout pipe", "error", err)
		return 0, err
	}

	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		p.logger.Error("Failed to create stderr pipe", "error", err)
		return 0, err
	}

	if err := p.cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "error", err, "command", p.args[0])
		return 0, fmt.Errorf("failed to start %s: %w", p.args[0], err)
	}

	pid := p.cmd.Process.Pid
	p.logger.Debug("Process started", "id", p.id, "pid", pid)

	// Stream output in separate goroutines
	outputDone := make(chan struct{}, 2)
	go func() {
		p.streamOutput(stdout, "stdout")
		outputDone <- struct{}{}
	}()
	go func() {
		p.streamOutput(stderr, "stderr")
		outputDone <- struct{}{}
	}()

	// Wait closes the pipes, so it runs only after both streams hit EOF.
	go func() {
		<-outputDone
		<-outputDone
		err := p.cmd.Wait()
		p.exitCode = p.handleProcessExit(err)
		close(p.done)
	}()

	return pid, nil
}

// PID returns the OS pid, or 0 if the process was never started.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code. Only valid after Done is closed.
func (p *Process) ExitCode() int {
	return p.exitCode
}

// Wait blocks until the process exits and returns its exit code.
func (p *Process) Wait() int {
	<-p.done
	return p.exitCode
}

// Shutdown sends SIGINT and waits for the process to exit, force-killing the
// process group after the graceful timeout. Returns the exit code.
func (p *Process) Shutdown() int {
	if p.PID() == 0 {
		return 0
	}
	p.stopOnce.Do(p.sendStopSignal)
	return p.waitForExit(p.gracefulTimeout)
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, 128+signal for a process
// terminated by a signal, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}

// handleProcessExit extracts exit code from process error and logs non-ExitError errors.
func (p *Process) handleProcessExit(processErr error) int {
	exitCode := exitCodeFromError(processErr)
	var exitErr *exec.ExitError
	if processErr != nil && !errors.As(processErr, &exitErr) {
		p.logger.Error("Process exited with error", "id", p.id, "error", processErr)
	}
	return exitCode
}

// sendStopSignal sends SIGINT to the subprocess without waiting.
func (p *Process) sendStopSignal() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	p.logger.Debug("Sending SIGINT to process", "id", p.id, "pid", p.cmd.Process.Pid)
	if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGINT", "error", err)
	}
}

// waitForExit waits for the process to exit with a timeout, force-killing if needed.
func (p *Process) waitForExit(timeout time.Duration) int {
	select {
	case <-p.done:
		return p.exitCode
	case <-time.After(timeout):
		p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", timeout)
		// Kill the whole group so grandchildren do not keep the output pipes open.
		if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL); err != nil {
			if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				p.logger.Error("Failed to kill process", "error", err)
			}
		}
		// Wait for process to exit with a secondary timeout to prevent hanging
		select {
		case <-p.done:
		case <-time.After(p.killTimeout):
			p.logger.Error("Process did not exit after kill signal", "id", p.id)
		}
		return exitCodeKilled
	}
}

// streamOutput streams output from the subprocess.
// Uses the configured processLogger (or falls back to default logger).
// Uses the configured LogParser to extract log levels from process output.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)

	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "fatal", "error":
			logger.Error(msg)
		case "warning":
			logger.Warn(msg)
		case "debug", "trace":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Warn("Error reading output", "source", source, "error", err)
	}
}
