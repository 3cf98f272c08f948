package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/journal"
)

const defaultBufferSize = 1000

// LevelFatal is logged when a failure cannot be recovered from by the component
// that observed it. It sorts above slog.LevelError.
const LevelFatal = slog.Level(12)

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Use this interface instead of *slog.Logger to decouple from the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{}
	isInitialized   bool
	mutex           sync.RWMutex
	logBuffer       *RingBuffer
	logCallback     LogCallback
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`

	// Relayed is set in worker processes. Their stdout is parsed and
	// re-logged by the primary, so they write to stdout only.
	Relayed bool `toml:"-"`
}

// Initialize sets up the logging system.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true

	logBuffer = nil
	if !config.Relayed {
		logBuffer = NewRingBuffer(defaultBufferSize)
	}

	globalLevelVar.Set(levelOrDefault(config.Level, slog.LevelInfo))

	// Handlers created before Initialize() lack the buffer handler, so recreate them
	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(config, module))
		handler := createHandler(config, levelVar)
		moduleLoggers[module] = slog.New(handler).With("module", module)
	}

	slog.SetDefault(slog.New(createHandler(config, globalLevelVar)))
}

// UpdateLevels applies new global and per-module levels to existing loggers
// without recreating their handlers. The output format is not changed.
func UpdateLevels(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig.Level = config.Level
	globalConfig.Modules = config.Modules

	globalLevelVar.Set(levelOrDefault(config.Level, slog.LevelInfo))
	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(globalConfig, module))
	}
}

// GetBuffer returns the log ring buffer for reading historical logs.
func GetBuffer() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer
}

// SetLogCallback sets a callback to be called for each new log entry.
// Used for publishing log events to SSE clients.
func SetLogCallback(callback LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = callback
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	// Double-check in case another goroutine created it
	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(slog.LevelInfo)
	if isInitialized {
		levelVar.Set(moduleLevel(globalConfig, module))
	}

	logger := slog.New(createHandler(globalConfig, levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// moduleLevel resolves the level for a module: module override, then global, then info.
func moduleLevel(config Config, module string) slog.Level {
	level := levelOrDefault(config.Level, slog.LevelInfo)
	if levelStr, exists := config.Modules[module]; exists {
		level = levelOrDefault(levelStr, level)
	}
	return level
}

// createHandler builds the sink chain for one level: stdout when it is
// connected, then the journal and the ring buffer unless the process is relayed.
// Must be called with mutex held.
func createHandler(config Config, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: ReplaceLevelName}

	var stdoutHandler slog.Handler
	if config.Format == "json" {
		stdoutHandler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdoutHandler = slog.NewTextHandler(os.Stdout, opts)
	}
	if config.Relayed {
		return stdoutHandler
	}

	var handlers fanout
	if isStdoutAvailable() {
		handlers = append(handlers, stdoutHandler)
	}
	if journal.Enabled() {
		handlers = append(handlers, newJournalHandler(DefaultIdentifier, level))
	}
	if logBuffer != nil {
		handlers = append(handlers, newRingHandler(logBuffer, level, dispatchCallback))
	}

	switch len(handlers) {
	case 0:
		return stdoutHandler
	case 1:
		return handlers[0]
	default:
		return handlers
	}
}

// dispatchCallback forwards a buffered entry to the callback registered at call time.
func dispatchCallback(entry LogEntry) {
	mutex.RLock()
	cb := logCallback
	mutex.RUnlock()
	if cb != nil {
		cb(entry)
	}
}

// ReplaceLevelName is a slog ReplaceAttr func that renders LevelFatal as FATAL
// instead of ERROR+4.
func ReplaceLevelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level >= LevelFatal {
		a.Value = slog.StringValue("FATAL")
	}
	return a
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	// Available if terminal, pipe, socket, or regular file (not /dev/null which is ModeDevice)
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

// levelOrDefault parses level, returning fallback when it is not recognized.
func levelOrDefault(level string, fallback slog.Level) slog.Level {
	if parsed := parseLevel(level); parsed != nil {
		return *parsed
	}
	return fallback
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	case "fatal":
		l = LevelFatal
	default:
		return nil
	}
	return &l
}
