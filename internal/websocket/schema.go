package websocket

import (
	"encoding/json"
	"time"

	"github.com/stemsi/exstem-engine/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
	ActionSecurity Action = "security"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
	// Ref is echoed back so the client can match replies to requests.
	Ref string `json:"ref,omitempty"`
}

// AutosaveRequest saves a single answer.
type AutosaveRequest struct {
	QID              string            `json:"q_id"`
	Value            model.AnswerValue `json:"value"`
	TimeSpentSeconds int               `json:"time_spent_seconds"`
	MarkedForReview  bool              `json:"marked_for_review"`
}

// SecurityRequest reports an integrity event.
type SecurityRequest struct {
	Type       model.SecurityEventType `json:"type"`
	Details    json.RawMessage         `json:"details,omitempty"`
	ClientTime *time.Time              `json:"client_time,omitempty"`
}

// SubmitRequest finishes the attempt.
type SubmitRequest struct {
	ClientRemainingSeconds *int `json:"client_remaining_seconds,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventRecorded  Event = "recorded"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

// Response is every server message. Data depends on Event.
type Response struct {
	Event Event       `json:"event"`
	Ref   string      `json:"ref,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Ref   string `json:"ref,omitempty"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event            Event     `json:"event"`
	Ref              string    `json:"ref,omitempty"`
	RemainingSeconds int       `json:"remaining_seconds"`
	ServerTime       time.Time `json:"server_time"`
}
