package event

import (
	"testing"
	"time"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"approval submitted", TypeApprovalSubmitted, true},
		{"approval approved", TypeApprovalApproved, true},
		{"approval rejected", TypeApprovalRejected, true},
		{"approval withdrawn", TypeApprovalWithdrawn, true},
		{"approval commented", TypeApprovalCommented, true},
		{"process deleted", TypeProcessDeleted, true},
		{"process restored", TypeProcessRestored, true},
		{"process hard deleted", TypeProcessHardDeleted, true},
		{"edit completed", TypeEditCompleted, true},
		{"edit conflict", TypeEditConflictDetected, true},
		{"unknown", Type("instance.created"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestType_String(t *testing.T) {
	if got := TypeProcessHardDeleted.String(); got != "process.hard_deleted" {
		t.Errorf("Type.String() = %v, want %v", got, "process.hard_deleted")
	}
}

func TestNewEvent(t *testing.T) {
	before := time.Now().UTC()
	evt := NewEvent(TypeApprovalSubmitted, 42, "alice", map[string]interface{}{KeyRequestID: int64(7)})

	if evt.ID == "" {
		t.Error("NewEvent() ID should not be empty")
	}
	if evt.CorrelationID != evt.ID {
		t.Errorf("CorrelationID = %v, want %v", evt.CorrelationID, evt.ID)
	}
	if evt.ProcessID != 42 || evt.ActorID != "alice" {
		t.Errorf("NewEvent() = %+v, want process 42 by alice", evt)
	}
	if evt.Timestamp.Before(before) {
		t.Errorf("Timestamp %v should not be before %v", evt.Timestamp, before)
	}
	if evt.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp location = %v, want UTC", evt.Timestamp.Location())
	}
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		evt := NewEvent(TypeEditCompleted, 1, "bob", nil)
		if seen[evt.ID] {
			t.Fatalf("duplicate event ID %s after %d events", evt.ID, i)
		}
		seen[evt.ID] = true
	}
}

func TestNewEventWithCorrelation(t *testing.T) {
	parent := NewEvent(TypeApprovalSubmitted, 1, "alice", nil)
	child := NewEventWithCorrelation(TypeApprovalApproved, 1, "bob", nil, parent.CorrelationID)

	if child.CorrelationID != parent.CorrelationID {
		t.Errorf("CorrelationID = %v, want %v", child.CorrelationID, parent.CorrelationID)
	}
	if child.ID == parent.ID {
		t.Error("child event should have its own ID")
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeProcessDeleted, 3, "carol", map[string]interface{}{KeyReason: "obsolete"})
	updated := original.WithPayload(KeyTitle, "Onboarding")

	if _, ok := original.Payload[KeyTitle]; ok {
		t.Error("WithPayload() must not modify the original payload")
	}
	if got := updated.GetPayloadString(KeyTitle); got != "Onboarding" {
		t.Errorf("GetPayloadString(title) = %v, want Onboarding", got)
	}
	if got := updated.GetPayloadString(KeyReason); got != "obsolete" {
		t.Errorf("GetPayloadString(reason) = %v, want obsolete", got)
	}
	if updated.ID != original.ID {
		t.Error("WithPayload() should keep the event ID")
	}
}

func TestEvent_PayloadGetters(t *testing.T) {
	evt := NewEvent(TypeEditConflictDetected, 1, "alice", map[string]interface{}{
		"int":       7,
		"int64":     int64(8),
		"float":     float64(9),
		"strs":      []string{"title"},
		"ifaces":    []interface{}{"steps", 3, "tags"},
		"wrongtype": true,
	})

	tests := []struct {
		key  string
		want int64
	}{
		{"int", 7},
		{"int64", 8},
		{"float", 9},
		{"missing", 0},
		{"wrongtype", 0},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := evt.GetPayloadInt(tt.key); got != tt.want {
				t.Errorf("GetPayloadInt(%s) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}

	if got := evt.GetPayloadString("wrongtype"); got != "" {
		t.Errorf("GetPayloadString(wrongtype) = %q, want empty", got)
	}
	if got := evt.GetPayloadStrings("strs"); len(got) != 1 || got[0] != "title" {
		t.Errorf("GetPayloadStrings(strs) = %v", got)
	}
	if got := evt.GetPayloadStrings("ifaces"); len(got) != 2 {
		t.Errorf("GetPayloadStrings(ifaces) = %v, want 2 strings", got)
	}
}
