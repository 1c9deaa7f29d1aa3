package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptProgress is one row of the live monitor.
type AttemptProgress struct {
	AttemptID      uuid.UUID     `json:"attempt_id"`
	StudentID      int           `json:"student_id"`
	AttemptNumber  int           `json:"attempt_number"`
	Status         AttemptStatus `json:"status"`
	AnsweredCount  int           `json:"answered_count"`
	SecurityEvents int           `json:"security_events"`
	Score          *float64      `json:"score"`
	StartTime      time.Time     `json:"start_time"`
	LastSeenAt     time.Time     `json:"last_seen_at"`
}

// MonitorSnapshot is the initial state sent to a live monitor.
type MonitorSnapshot struct {
	Type                string            `json:"type"`
	ExamID              uuid.UUID         `json:"exam_id"`
	Title               string            `json:"title"`
	TotalQuestions      int               `json:"total_questions"`
	TotalAttempts       int               `json:"total_attempts"`
	InProgress          int               `json:"in_progress"`
	Finalized           int               `json:"finalized"`
	TotalSecurityEvents int               `json:"total_security_events"`
	Attempts            []AttemptProgress `json:"attempts"`
}
