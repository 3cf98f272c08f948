package cluster

// Signal is a content-less message exchanged between the primary and its workers.
type Signal int

// Known signals. Anything else parses to SignalUnknown and is ignored.
const (
	SignalUnknown Signal = iota
	SignalAppStarted
	SignalClusterHealthy
)

const (
	tagAppStarted     = "app_started"
	tagClusterHealthy = "cluster_healthy"
	tagUnknown        = "unknown"
)

// ParseSignal converts a wire tag to a Signal.
func ParseSignal(tag string) Signal {
	switch tag {
	case tagAppStarted:
		return SignalAppStarted
	case tagClusterHealthy:
		return SignalClusterHealthy
	default:
		return SignalUnknown
	}
}

// String returns the wire tag of the signal.
func (s Signal) String() string {
	switch s {
	case SignalAppStarted:
		return tagAppStarted
	case SignalClusterHealthy:
		return tagClusterHealthy
	default:
		return tagUnknown
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Signal) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// Unrecognized tags decode to SignalUnknown without error.
func (s *Signal) UnmarshalText(text []byte) error {
	*s = ParseSignal(string(text))
	return nil
}
