package events

import "time"

// Event defines the contract for all session events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "OPERATION_FAILED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

const (
	TypeOperationStarted   = "OPERATION_STARTED"
	TypeOperationSucceeded = "OPERATION_SUCCEEDED"
	TypeOperationFailed    = "OPERATION_FAILED"
	TypeOperationDiscarded = "OPERATION_DISCARDED"
	TypeValidationRejected = "VALIDATION_REJECTED"
	TypeSessionRestored    = "SESSION_RESTORED"
	TypeSessionCleared     = "SESSION_CLEARED"
)

type BaseEvent struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// New stamps an event with the current time
func New(eventType string, data map[string]interface{}) BaseEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now().UTC()}
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// String returns the payload value under key, or "" when absent
func (e BaseEvent) String(key string) string {
	if v, ok := e.Data[key].(string); ok {
		return v
	}
	return ""
}
