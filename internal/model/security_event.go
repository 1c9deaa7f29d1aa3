package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SecurityEventType is a client-observed integrity signal.
type SecurityEventType string

const (
	EventTabSwitch        SecurityEventType = "tab_switch"
	EventWindowBlur       SecurityEventType = "window_blur"
	EventFullScreenExit   SecurityEventType = "fullscreen_exit"
	EventCopyAttempt      SecurityEventType = "copy_attempt"
	EventPasteAttempt     SecurityEventType = "paste_attempt"
	EventRightClick       SecurityEventType = "right_click"
	EventDevtoolsOpen     SecurityEventType = "devtools_open"
	EventMultipleDisplays SecurityEventType = "multiple_displays"
	EventNetworkChange    SecurityEventType = "network_change"
)

// Severity classifies how serious a security event is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var eventSeverity = map[SecurityEventType]Severity{
	EventRightClick:       SeverityLow,
	EventNetworkChange:    SeverityLow,
	EventWindowBlur:       SeverityMedium,
	EventTabSwitch:        SeverityMedium,
	EventCopyAttempt:      SeverityHigh,
	EventPasteAttempt:     SeverityHigh,
	EventFullScreenExit:   SeverityHigh,
	EventDevtoolsOpen:     SeverityCritical,
	EventMultipleDisplays: SeverityCritical,
}

// Valid reports whether t is a known event type.
func (t SecurityEventType) Valid() bool {
	_, ok := eventSeverity[t]
	return ok
}

// Severity returns the fixed classification of t.
func (t SecurityEventType) Severity() Severity {
	if s, ok := eventSeverity[t]; ok {
		return s
	}
	return SeverityLow
}

// SecurityEvent is one entry of an attempt's append-only integrity log.
// Sequence is assigned atomically on the attempt row and orders the log.
type SecurityEvent struct {
	ID         uuid.UUID         `json:"id"`
	AttemptID  uuid.UUID         `json:"attempt_id"`
	ExamID     uuid.UUID         `json:"exam_id"`
	StudentID  int               `json:"student_id"`
	Sequence   int               `json:"sequence"`
	Type       SecurityEventType `json:"type"`
	Severity   Severity          `json:"severity"`
	Details    json.RawMessage   `json:"details,omitempty"`
	ClientTime *time.Time        `json:"client_time,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// RecordSecurityEventRequest is the payload for reporting an event.
type RecordSecurityEventRequest struct {
	Type       SecurityEventType `json:"type" binding:"required,event_type"`
	Details    json.RawMessage   `json:"details"`
	ClientTime *time.Time        `json:"client_time"`
}
