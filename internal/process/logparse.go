package process

import (
	"encoding/json"
	"strings"
)

// ParseSlogLine extracts the level and message from a line written by a slog
// text or JSON handler, so worker output can be re-logged at its original level.
// Lines that are not slog records are reported at info level unchanged.
func ParseSlogLine(line string) (level, msg string) {
	if strings.HasPrefix(line, "{") {
		var record struct {
			Level string `json:"level"`
			Msg   string `json:"msg"`
		}
		if err := json.Unmarshal([]byte(line), &record); err == nil && record.Level != "" {
			return normalizeLevel(record.Level), record.Msg
		}
		return "info", line
	}

	rest := line
	if strings.HasPrefix(rest, "time=") {
		_, after, found := strings.Cut(rest, " ")
		if !found {
			return "info", line
		}
		rest = after
	}

	if lvl, ok := strings.CutPrefix(rest, "level="); ok {
		lvl, tail, _ := strings.Cut(lvl, " ")
		return normalizeLevel(lvl), tail
	}

	return "info", line
}

// normalizeLevel maps slog level names ("WARN", "ERROR+2", "FATAL") to the
// names understood by streamOutput.
func normalizeLevel(level string) string {
	if i := strings.IndexAny(level, "+-"); i > 0 {
		level = level[:i]
	}
	switch strings.ToLower(level) {
	case "debug":
		return "debug"
	case "warn", "warning":
		return "warning"
	case "error":
		return "error"
	case "fatal":
		return "fatal"
	default:
		return "info"
	}
}
