package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates the lifecycle states of an attempt.
type AttemptStatus string

const (
	AttemptStatusInProgress    AttemptStatus = "in_progress"
	AttemptStatusSubmitted     AttemptStatus = "submitted"
	AttemptStatusAutoSubmitted AttemptStatus = "auto_submitted"
	AttemptStatusTerminated    AttemptStatus = "terminated"
	AttemptStatusAbandoned     AttemptStatus = "abandoned"
	AttemptStatusGraded        AttemptStatus = "graded"
)

// IsTerminal reports whether the attempt has left in_progress.
func (s AttemptStatus) IsTerminal() bool {
	return s != AttemptStatusInProgress
}

// AcceptsManualGrade reports whether hand grading may change answers in this status.
// Graded attempts accept regrades.
func (s AttemptStatus) AcceptsManualGrade() bool {
	switch s {
	case AttemptStatusSubmitted, AttemptStatusAutoSubmitted, AttemptStatusTerminated,
		AttemptStatusGraded:
		return true
	}
	return false
}

// ClientContext is captured at start for audit.
type ClientContext struct {
	IPAddress         string `json:"ip_address"`
	UserAgent         string `json:"user_agent"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty"`
}

// SecurityCounters are the cumulative integrity counters kept on the attempt row.
type SecurityCounters struct {
	TabSwitches     int `json:"tab_switches"`
	FullScreenExits int `json:"full_screen_exits"`
	CopyAttempts    int `json:"copy_attempts"`
	Total           int `json:"total"`
	LastSequence    int `json:"last_sequence"`
}

// Record counts one event of type t and advances the sequence.
func (c *SecurityCounters) Record(t SecurityEventType) {
	switch t {
	case EventTabSwitch, EventWindowBlur:
		c.TabSwitches++
	case EventFullScreenExit:
		c.FullScreenExits++
	case EventCopyAttempt, EventPasteAttempt:
		c.CopyAttempts++
	}
	c.Total++
	c.LastSequence++
}

// Attempt is one student's timed instance of an exam.
type Attempt struct {
	ID                uuid.UUID        `json:"id"`
	ExamID            uuid.UUID        `json:"exam_id"`
	StudentID         int              `json:"student_id"`
	AttemptNumber     int              `json:"attempt_number"`
	Status            AttemptStatus    `json:"status"`
	StartTime         time.Time        `json:"start_time"`
	EndTime           *time.Time       `json:"end_time,omitempty"`
	TimeTakenSeconds  *int             `json:"time_taken_seconds,omitempty"`
	TimeBudgetSeconds int              `json:"time_budget_seconds"`
	TotalMarks        float64          `json:"total_marks"`
	PassMark          float64          `json:"pass_mark"`
	DurationMinutes   int              `json:"duration_minutes"`
	Settings          ExamSettings     `json:"settings"`
	GradeScale        []GradeBand      `json:"grade_scale,omitempty"`
	QuestionOrder     []QuestionRef    `json:"question_order"`
	Answers           []Answer         `json:"answers"`
	Security          SecurityCounters `json:"security"`
	Score             *float64         `json:"score"`
	Percentage        *float64         `json:"percentage"`
	Passed            *bool            `json:"passed"`
	Grade             *string          `json:"grade,omitempty"`
	SubmittedLate     bool             `json:"submitted_late"`
	IsUnderReview     bool             `json:"is_under_review"`
	TerminationReason *string          `json:"termination_reason,omitempty"`
	Client            ClientContext    `json:"client"`
	LastSeenAt        time.Time        `json:"last_seen_at"`
	Version           int              `json:"-"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// IsTerminal reports whether the attempt has left in_progress.
func (a *Attempt) IsTerminal() bool { return a.Status.IsTerminal() }

// Deadline is when answer saving closes.
func (a *Attempt) Deadline() time.Time {
	return a.StartTime.Add(time.Duration(a.TimeBudgetSeconds) * time.Second)
}

// ReviewDeadline is the end of the penalty-free submission window.
func (a *Attempt) ReviewDeadline() time.Time {
	return a.Deadline().Add(time.Duration(a.Settings.ReviewTimeSeconds) * time.Second)
}

// HardDeadline is the last instant a manual submission is accepted.
// After it the attempt is finalized by the system.
func (a *Attempt) HardDeadline() time.Time {
	return a.ReviewDeadline().Add(a.Settings.LateGrace())
}

// RemainingSeconds is the answering time left, never negative.
func (a *Attempt) RemainingSeconds(now time.Time) int {
	left := a.Deadline().Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

// HasQuestion returns the pinned ref for questionID.
func (a *Attempt) HasQuestion(questionID uuid.UUID) (QuestionRef, bool) {
	for _, r := range a.QuestionOrder {
		if r.QuestionID == questionID {
			return r, true
		}
	}
	return QuestionRef{}, false
}

// AnswerByID returns a pointer into Answers.
func (a *Attempt) AnswerByID(id uuid.UUID) *Answer {
	for i := range a.Answers {
		if a.Answers[i].ID == id {
			return &a.Answers[i]
		}
	}
	return nil
}

// AnswerFor returns the stored answer for questionID, if any.
func (a *Attempt) AnswerFor(questionID uuid.UUID) *Answer {
	for i := range a.Answers {
		if a.Answers[i].QuestionID == questionID {
			return &a.Answers[i]
		}
	}
	return nil
}

// Result projects the scored figures of the attempt.
func (a *Attempt) Result() *ScoredResult {
	r := &ScoredResult{
		AttemptID:        a.ID,
		ExamID:           a.ExamID,
		StudentID:        a.StudentID,
		AttemptNumber:    a.AttemptNumber,
		Status:           a.Status,
		TotalMarks:       a.TotalMarks,
		PassMark:         a.PassMark,
		Score:            a.Score,
		Percentage:       a.Percentage,
		Passed:           a.Passed,
		Grade:            a.Grade,
		SubmittedLate:    a.SubmittedLate,
		IsUnderReview:    a.IsUnderReview,
		EndTime:          a.EndTime,
		TimeTakenSeconds: a.TimeTakenSeconds,
	}
	for _, ans := range a.Answers {
		if ans.PendingManual() {
			r.PendingManual++
		}
	}
	return r
}

// ForStudent hides grading data that must not be released yet.
func (a *Attempt) ForStudent() *Attempt {
	out := *a
	if a.IsUnderReview || a.Status == AttemptStatusInProgress {
		out.Score, out.Percentage, out.Passed, out.Grade = nil, nil, nil, nil
	}
	out.Answers = make([]Answer, len(a.Answers))
	for i, ans := range a.Answers {
		if a.Status == AttemptStatusInProgress || a.IsUnderReview {
			ans.IsCorrect = nil
			ans.MarksAwarded = 0
		}
		out.Answers[i] = ans
	}
	return &out
}

// Answer is one per-question answer record of an attempt.
type Answer struct {
	ID               uuid.UUID    `json:"id"`
	AttemptID        uuid.UUID    `json:"attempt_id"`
	QuestionID       uuid.UUID    `json:"question_id"`
	QuestionVersion  int          `json:"question_version"`
	QuestionType     QuestionType `json:"question_type"`
	Value            AnswerValue  `json:"value"`
	IsCorrect        *bool        `json:"is_correct"`
	MarksAwarded     float64      `json:"marks_awarded"`
	MaxMarks         float64      `json:"max_marks"`
	TimeSpentSeconds int          `json:"time_spent_seconds"`
	MarkedForReview  bool         `json:"marked_for_review"`
	EvaluatedAt      *time.Time   `json:"evaluated_at,omitempty"`
	GradedBy         *int         `json:"graded_by,omitempty"`
	GradedAt         *time.Time   `json:"graded_at,omitempty"`
	Feedback         *string      `json:"feedback,omitempty"`
	SavedAt          time.Time    `json:"saved_at"`
}

// PendingManual reports an essay that has not been hand graded yet.
func (a *Answer) PendingManual() bool {
	return a.QuestionType == QuestionTypeEssay && a.GradedAt == nil
}

// Cleared reports an auto-graded answer whose value was emptied by the student.
// It counts as unanswered.
func (a *Answer) Cleared() bool {
	return a.QuestionType != QuestionTypeEssay && a.EvaluatedAt != nil && a.IsCorrect == nil
}

// ScoredResult is returned by every finalizing operation.
type ScoredResult struct {
	AttemptID        uuid.UUID     `json:"attempt_id"`
	ExamID           uuid.UUID     `json:"exam_id"`
	StudentID        int           `json:"student_id"`
	AttemptNumber    int           `json:"attempt_number"`
	Status           AttemptStatus `json:"status"`
	TotalMarks       float64       `json:"total_marks"`
	PassMark         float64       `json:"pass_mark"`
	Score            *float64      `json:"score"`
	Percentage       *float64      `json:"percentage"`
	Passed           *bool         `json:"passed"`
	Grade            *string       `json:"grade,omitempty"`
	SubmittedLate    bool          `json:"submitted_late"`
	PendingManual    int           `json:"pending_manual"`
	IsUnderReview    bool          `json:"is_under_review"`
	EndTime          *time.Time    `json:"end_time,omitempty"`
	TimeTakenSeconds *int          `json:"time_taken_seconds,omitempty"`
}

// AttemptHistory summarizes a student's prior attempts at one exam.
type AttemptHistory struct {
	TerminalCount    int
	MaxAttemptNumber int
}

// PolicyDecision is the outcome of the start policy.
type PolicyDecision struct {
	Allowed           bool       `json:"allowed"`
	Reason            string     `json:"reason,omitempty"`
	AttemptNumber     int        `json:"attempt_number,omitempty"`
	TimeBudgetSeconds int        `json:"time_budget_seconds,omitempty"`
	ExistingAttemptID *uuid.UUID `json:"existing_attempt_id,omitempty"`
}

// AttemptPaper is what a student sees while answering.
type AttemptPaper struct {
	AttemptID        uuid.UUID            `json:"attempt_id"`
	ExamID           uuid.UUID            `json:"exam_id"`
	Title            string               `json:"title"`
	Deadline         time.Time            `json:"deadline"`
	RemainingSeconds int                  `json:"remaining_seconds"`
	Questions        []QuestionForStudent `json:"questions"`
	Answers          []SavedAnswer        `json:"answers"`
}

// SavedAnswer is a restored answer on the paper, without grading data.
type SavedAnswer struct {
	QuestionID       uuid.UUID   `json:"question_id"`
	Value            AnswerValue `json:"value"`
	TimeSpentSeconds int         `json:"time_spent_seconds"`
	MarkedForReview  bool        `json:"marked_for_review"`
}

// AttemptStatistics summarizes finalized attempts of one exam.
type AttemptStatistics struct {
	ExamID            uuid.UUID `json:"exam_id"`
	TotalAttempts     int       `json:"total_attempts"`
	InProgress        int       `json:"in_progress"`
	AverageScore      float64   `json:"average_score"`
	AveragePercentage float64   `json:"average_percentage"`
	PassRate          float64   `json:"pass_rate"`
	MaxScore          float64   `json:"max_score"`
	MinScore          float64   `json:"min_score"`
}

// ─── Requests ───────────────────────────────────────────────────────

// SaveAnswerRequest is the payload for saving one answer.
type SaveAnswerRequest struct {
	Value            AnswerValue `json:"value"`
	TimeSpentSeconds int         `json:"time_spent_seconds" binding:"min=0,max=86400"`
	MarkedForReview  bool        `json:"marked_for_review"`
}

// SubmitAttemptRequest carries the client's view of the remaining time, kept for audit only.
type SubmitAttemptRequest struct {
	ClientRemainingSeconds *int `json:"client_remaining_seconds" binding:"omitempty,min=0"`
}

// ManualGradeRequest is the payload for hand grading one answer.
type ManualGradeRequest struct {
	MarksAwarded *float64 `json:"marks_awarded" binding:"required,min=0"`
	Feedback     *string  `json:"feedback" binding:"omitempty,max=4000"`
}

// TerminateAttemptRequest is the payload for an admin termination.
type TerminateAttemptRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}
