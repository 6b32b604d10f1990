package domain

import "time"

// EventType classifies chain lifecycle events published on the
// orchestrator's event feed.
type EventType string

const (
	EventChainCreated  EventType = "chain.created"
	EventChainDeleted  EventType = "chain.deleted"
	EventStatusChanged EventType = "chain.status"
	EventHealthChanged EventType = "chain.health"
)

// ChainEvent is one entry on the orchestrator's event feed. For
// EventStatusChanged, Status carries the new status and Error the failure
// that caused it, if any.
type ChainEvent struct {
	Type    EventType   `json:"type"`
	ChainID string      `json:"chainId"`
	Status  ChainStatus `json:"status,omitempty"`
	Healthy bool        `json:"healthy,omitempty"`
	Error   string      `json:"error,omitempty"`
	Time    time.Time   `json:"time"`
}

// LogSource tells which stream of the node process a line came from.
type LogSource string

const (
	LogStdout LogSource = "stdout"
	LogStderr LogSource = "stderr"
)

// LogLine is one captured line of node output. Seq increases
// monotonically per chain and survives ring-buffer eviction, so
// consumers can detect gaps.
type LogLine struct {
	Seq    uint64    `json:"seq"`
	Time   time.Time `json:"time"`
	Source LogSource `json:"source"`
	Text   string    `json:"text"`
}
