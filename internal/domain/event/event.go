package event

import (
	"time"

	"github.com/garyjia/process-portal/pkg/utils"
)

// Payload keys shared by producers and handlers
const (
	KeyRequestID     = "request_id"
	KeyRequestedBy   = "requested_by"
	KeyTitle         = "title"
	KeyComment       = "comment"
	KeyReason        = "reason"
	KeyOwnerID       = "owner_id"
	KeyCreatedBy     = "created_by"
	KeyVersionNumber = "version_number"
	KeySessionID     = "session_id"
	KeyConflicts     = "conflicts"
)

// Event represents a domain event
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	ProcessID     int64                  `json:"process_id"`
	ActorID       string                 `json:"actor_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with a snowflake ID and UTC timestamp
func NewEvent(eventType Type, processID int64, actorID string, payload map[string]interface{}) *Event {
	id := utils.NewID().String()
	return &Event{
		ID:            id,
		Type:          eventType,
		ProcessID:     processID,
		ActorID:       actorID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: id,
	}
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, processID int64, actorID string, payload map[string]interface{}, correlationID string) *Event {
	evt := NewEvent(eventType, processID, actorID, payload)
	evt.CorrelationID = correlationID
	return evt
}

// WithPayload returns a copy of the event with an added payload entry
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	cp := *e
	cp.Payload = newPayload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// GetPayloadStrings retrieves a string slice from the payload
func (e *Event) GetPayloadStrings(key string) []string {
	switch v := e.Payload[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
