package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/smazurov/webcluster/internal/cluster"
)

// Subjects for NATS topics.
const (
	SubjectWorkerSignal  = "webcluster.workers.signal"
	SubjectControlPrefix = "webcluster.control"
)

// SubjectControl returns the subject a worker process listens on.
func SubjectControl(pid int) string {
	return fmt.Sprintf("%s.%d", SubjectControlPrefix, pid)
}

// SignalMessage is a cluster signal sent over NATS in either direction.
type SignalMessage struct {
	Signal    cluster.Signal `json:"signal"`
	PID       int            `json:"pid"`
	WID       int            `json:"wid"`
	Timestamp string         `json:"timestamp"`
}

// Marshal serializes the message to JSON.
func (m SignalMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalSignal deserializes a SignalMessage from JSON.
// Unknown signal tags decode to cluster.SignalUnknown.
func UnmarshalSignal(data []byte) (SignalMessage, error) {
	var m SignalMessage
	err := json.Unmarshal(data, &m)
	return m, err
}
