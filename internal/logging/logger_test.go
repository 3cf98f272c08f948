package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func resetState() {
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	globalConfig = Config{}
	logBuffer = nil
	logCallback = nil
	mutex.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetState()

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"cluster": "debug",
			"api":     "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"cluster", true, true, true},
		{"api", false, false, true},
		{"other", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()

			gotDebug := handler.Enabled(context.Background(), slog.LevelDebug)
			gotInfo := handler.Enabled(context.Background(), slog.LevelInfo)
			gotWarn := handler.Enabled(context.Background(), slog.LevelWarn)

			if gotDebug != tt.wantDebug {
				t.Errorf("module %q: Debug enabled = %v, want %v", tt.module, gotDebug, tt.wantDebug)
			}
			if gotInfo != tt.wantInfo {
				t.Errorf("module %q: Info enabled = %v, want %v", tt.module, gotInfo, tt.wantInfo)
			}
			if gotWarn != tt.wantWarn {
				t.Errorf("module %q: Warn enabled = %v, want %v", tt.module, gotWarn, tt.wantWarn)
			}
		})
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetState()

	before := GetLogger("ipc").Handler()
	if before.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Logger created before Initialize should NOT have debug enabled")
	}

	Initialize(Config{
		Level:   "info",
		Format:  "text",
		Modules: map[string]string{"ipc": "debug"},
	})

	// The level var is shared, so the old handler sees the new level too
	if !before.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("handler created before Initialize should follow the updated level")
	}
	if !GetLogger("ipc").Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("ipc logger should have debug enabled after Initialize")
	}
}

func TestUpdateLevels(t *testing.T) {
	resetState()

	Initialize(Config{Level: "info", Format: "text"})
	handler := GetLogger("workers").Handler()

	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be disabled before update")
	}

	UpdateLevels(Config{Level: "warn", Modules: map[string]string{"workers": "debug"}})

	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("workers logger should accept debug after update")
	}
	if GetLogger("other").Handler().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("other logger should follow the new global warn level")
	}
}

func TestFatalLevelRendering(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{ReplaceAttr: ReplaceLevelName})
	logger := slog.New(handler)

	logger.Log(context.Background(), LevelFatal, "no more restarts")
	logger.Error("plain error")

	output := buf.String()
	if !strings.Contains(output, "level=FATAL") {
		t.Errorf("expected FATAL level in output, got: %s", output)
	}
	if !strings.Contains(output, "level=ERROR") {
		t.Errorf("expected ERROR level to be untouched, got: %s", output)
	}
}

func TestBufferCapturesEntries(t *testing.T) {
	resetState()

	Initialize(Config{Level: "debug", Format: "text"})

	var got []LogEntry
	SetLogCallback(func(entry LogEntry) {
		got = append(got, entry)
	})
	defer SetLogCallback(nil)

	logger := GetLogger("buffertest")
	logger.Info("restart scheduled", "slot_id", 3)
	logger.Log(context.Background(), LevelFatal, "given up")

	entries := GetBuffer().ReadAll()
	if len(entries) != 2 {
		t.Fatalf("expected 2 buffered entries, got %d", len(entries))
	}
	if entries[0].Module != "buffertest" {
		t.Errorf("expected module buffertest, got %q", entries[0].Module)
	}
	if entries[0].Attributes["slot_id"] != int64(3) {
		t.Errorf("expected slot_id attribute 3, got %v", entries[0].Attributes["slot_id"])
	}
	if entries[1].Level != "fatal" {
		t.Errorf("expected fatal level, got %q", entries[1].Level)
	}
	if len(got) != 2 {
		t.Errorf("expected callback to see 2 entries, got %d", len(got))
	}
}

func TestFanoutDeliversByLevel(t *testing.T) {
	var debugBuf, infoBuf bytes.Buffer

	debugHandler := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(fanout{debugHandler, infoHandler}).With("module", "test")
	logger.Debug("debug only message")

	if count := strings.Count(debugBuf.String(), "debug only message"); count != 1 {
		t.Errorf("expected 1 debug line, got %d: %s", count, debugBuf.String())
	}
	if infoBuf.Len() != 0 {
		t.Errorf("info sink received a debug line: %s", infoBuf.String())
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(2)
	rb.Write(LogEntry{Message: "a"})
	rb.Write(LogEntry{Message: "b"})
	last := rb.Write(LogEntry{Message: "c"})

	if last.Seq != 3 {
		t.Errorf("expected seq 3, got %d", last.Seq)
	}
	entries := rb.ReadAll()
	if len(entries) != 2 || entries[0].Message != "b" || entries[1].Message != "c" {
		t.Errorf("unexpected ring contents: %+v", entries)
	}
	if rb.Count() != 2 {
		t.Errorf("expected count 2, got %d", rb.Count())
	}
}

func TestRingBufferSince(t *testing.T) {
	rb := NewRingBuffer(4)
	for _, msg := range []string{"a", "b", "c"} {
		rb.Write(LogEntry{Message: msg})
	}

	entries := rb.Since(1)
	if len(entries) != 2 || entries[0].Seq != 2 || entries[1].Message != "c" {
		t.Errorf("unexpected entries after seq 1: %+v", entries)
	}
	if entries := rb.Since(3); len(entries) != 0 {
		t.Errorf("expected nothing after the last seq, got %+v", entries)
	}
}

func TestJournalFieldName(t *testing.T) {
	tests := map[string][]string{
		"WID":            {"wid"},
		"HTTP_STATUS":    {"http", "status"},
		"REMOTE_ADDR":    {"remote-addr"},
		"ATTR_PRIVATE":   {"_private"},
		"ATTR_1ST_SPAWN": {"1st.spawn"},
	}
	for want, path := range tests {
		if got := journalFieldName(path); got != want {
			t.Errorf("journalFieldName(%v) = %q, want %q", path, got, want)
		}
	}
}

func TestRelayedWritesStdoutOnly(t *testing.T) {
	Initialize(Config{Level: "info", Format: "text", Relayed: true})
	defer Initialize(Config{Level: "info", Format: "text"})

	if GetBuffer() != nil {
		t.Error("relayed process should not keep a ring buffer")
	}
	if _, ok := GetLogger("relayed-test").Handler().(fanout); ok {
		t.Error("relayed process should log through a single stdout handler")
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		isNil bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"fatal", LevelFatal, false},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			switch {
			case tt.isNil && got != nil:
				t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
			case !tt.isNil && got == nil:
				t.Errorf("parseLevel(%q) = nil, want %v", tt.input, tt.want)
			case !tt.isNil && *got != tt.want:
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, tt.want)
			}
		})
	}
}
