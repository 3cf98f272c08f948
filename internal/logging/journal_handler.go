package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/coreos/go-systemd/v22/journal"
)

// DefaultIdentifier is the SYSLOG_IDENTIFIER used for journal entries.
const DefaultIdentifier = "webcluster"

// journalHandler writes records to the systemd journal. Attributes become
// upper-case journal fields, so relayed worker lines can be filtered with
// WID=<n>.
type journalHandler struct {
	identifier string
	level      slog.Leveler
	attrs      []slog.Attr
	groups     []string
}

func newJournalHandler(identifier string, level slog.Leveler) *journalHandler {
	if identifier == "" {
		identifier = DefaultIdentifier
	}
	return &journalHandler{identifier: identifier, level: level}
}

func (h *journalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *journalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := map[string]string{"SYSLOG_IDENTIFIER": h.identifier}
	for _, a := range h.attrs {
		addJournalField(fields, h.groups, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addJournalField(fields, h.groups, a)
		return true
	})

	if err := journal.Send(r.Message, journalPriority(r.Level), fields); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

func (h *journalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *journalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	return &clone
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= LevelFatal:
		return journal.PriCrit
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

func addJournalField(fields map[string]string, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		nested := append(append([]string{}, groups...), a.Key)
		for _, ga := range a.Value.Group() {
			addJournalField(fields, nested, ga)
		}
		return
	}

	key := journalFieldName(append(append([]string{}, groups...), a.Key))
	if key == "" {
		return
	}

	switch a.Value.Kind() {
	case slog.KindInt64:
		fields[key] = strconv.FormatInt(a.Value.Int64(), 10)
	case slog.KindDuration:
		fields[key] = a.Value.Duration().String()
	case slog.KindTime:
		fields[key] = a.Value.Time().Format("2006-01-02T15:04:05.000Z07:00")
	default:
		fields[key] = a.Value.String()
	}
}

// journalFieldName joins the path with underscores and keeps only the
// characters journald accepts in field names. Names starting with an
// underscore are reserved by journald and get an ATTR prefix.
func journalFieldName(path []string) string {
	var b strings.Builder
	for i, part := range path {
		if i > 0 {
			b.WriteByte('_')
		}
		for _, r := range part {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
				b.WriteRune(unicode.ToUpper(r))
			case r >= '0' && r <= '9':
				b.WriteRune(r)
			default:
				b.WriteByte('_')
			}
		}
	}

	name := b.String()
	switch {
	case name == "":
	case name[0] == '_':
		name = "ATTR" + name
	case name[0] >= '0' && name[0] <= '9':
		name = "ATTR_" + name
	}
	return name
}
