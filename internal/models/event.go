package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType is the category of an agent log entry.
type EventType string

const (
	EventSensor    EventType = "sensor"
	EventContract  EventType = "contract"
	EventMarket    EventType = "market"
	EventAlert     EventType = "alert"
	EventArbitrage EventType = "arbitrage"
	EventSystem    EventType = "system"
)

// Severity of an agent log entry.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AgentEvent is one entry of the agent log. Entries are immutable once created.
type AgentEvent struct {
	ID        string    `bson:"event_id" json:"id"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Type      EventType `bson:"type" json:"type"`
	Message   string    `bson:"message" json:"message"`
	Severity  Severity  `bson:"severity" json:"severity"`
}

// NewAgentEvent stamps a new log entry. IDs are random UUIDs, so entries
// created within the same millisecond never collide.
func NewAgentEvent(now time.Time, typ EventType, severity Severity, message string) AgentEvent {
	return AgentEvent{
		ID:        uuid.NewString(),
		Timestamp: now,
		Type:      typ,
		Message:   message,
		Severity:  severity,
	}
}
