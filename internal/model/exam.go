package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "draft"
	ExamStatusPublished ExamStatus = "published"
	ExamStatusArchived  ExamStatus = "archived"
)

// TimingMode selects which clock governs an attempt's time budget.
type TimingMode string

const (
	TimingWholeExam   TimingMode = "whole_exam"
	TimingPerQuestion TimingMode = "per_question"
	TimingHybrid      TimingMode = "hybrid"
)

// DefaultLateGraceSeconds applies when late submission is allowed without an explicit grace.
const DefaultLateGraceSeconds = 600

var (
	ErrInvalidExamSettings = errors.New("invalid exam settings")
	ErrInvalidTimingConfig = errors.New("invalid timing configuration")
	ErrInvalidGradeScale   = errors.New("invalid grade scale")
)

// ExamSettings is the per-exam settings bundle stored as jsonb and snapshotted onto attempts.
type ExamSettings struct {
	MaxAttempts                int        `json:"max_attempts"`
	AllowRetake                bool       `json:"allow_retake"`
	RandomizeQuestions         bool       `json:"randomize_questions"`
	RandomizeOptions           bool       `json:"randomize_options"`
	FullScreenMode             bool       `json:"full_screen_mode"`
	TabSwitchDetection         bool       `json:"tab_switch_detection"`
	DisableCopyPaste           bool       `json:"disable_copy_paste"`
	ProctoringEnabled          bool       `json:"proctoring_enabled"`
	AllowLateSubmission        bool       `json:"allow_late_submission"`
	LateSubmissionPenalty      float64    `json:"late_submission_penalty"`
	LateSubmissionGraceSeconds int        `json:"late_submission_grace_seconds"`
	ReviewTimeSeconds          int        `json:"review_time_seconds"`
	AutoSubmit                 *bool      `json:"auto_submit,omitempty"`
	AutoFinalize               bool       `json:"auto_finalize"`
	NegativeMarking            bool       `json:"negative_marking"`
	NegativeMarkingPercentage  float64    `json:"negative_marking_percentage"`
	PartialCredit              bool       `json:"partial_credit"`
	ScoreFloor                 *float64   `json:"score_floor,omitempty"`
	TimingMode                 TimingMode `json:"timing_mode,omitempty" binding:"omitempty,timing_mode"`
	TimePerQuestionSeconds     int        `json:"time_per_question_seconds"`
	MaxTabSwitches             int        `json:"max_tab_switches"`
	MaxFullScreenExits         int        `json:"max_full_screen_exits"`
	MaxCopyAttempts            int        `json:"max_copy_attempts"`
}

// AutoSubmitEnabled reports whether expired attempts are auto-submitted. Defaults to true.
func (s ExamSettings) AutoSubmitEnabled() bool {
	return s.AutoSubmit == nil || *s.AutoSubmit
}

// Valid reports whether m is a known timing mode.
func (m TimingMode) Valid() bool {
	return m == TimingWholeExam || m == TimingPerQuestion || m == TimingHybrid
}

// Timing returns the configured timing mode, defaulting to whole-exam timing.
func (s ExamSettings) Timing() TimingMode {
	if s.TimingMode == "" {
		return TimingWholeExam
	}
	return s.TimingMode
}

// LateGrace is the window after the review period in which a late submission is accepted.
func (s ExamSettings) LateGrace() time.Duration {
	if !s.AllowLateSubmission {
		return 0
	}
	if s.LateSubmissionGraceSeconds <= 0 {
		return DefaultLateGraceSeconds * time.Second
	}
	return time.Duration(s.LateSubmissionGraceSeconds) * time.Second
}

// Validate checks ranges and timing consistency.
func (s ExamSettings) Validate() error {
	switch {
	case s.MaxAttempts < 0:
		return fmt.Errorf("%w: max_attempts must not be negative", ErrInvalidExamSettings)
	case s.LateSubmissionPenalty < 0 || s.LateSubmissionPenalty > 100:
		return fmt.Errorf("%w: late_submission_penalty must be within 0..100", ErrInvalidExamSettings)
	case s.NegativeMarkingPercentage < 0 || s.NegativeMarkingPercentage > 100:
		return fmt.Errorf("%w: negative_marking_percentage must be within 0..100", ErrInvalidExamSettings)
	case s.ReviewTimeSeconds < 0 || s.LateSubmissionGraceSeconds < 0:
		return fmt.Errorf("%w: time allowances must not be negative", ErrInvalidExamSettings)
	case s.MaxTabSwitches < 0 || s.MaxFullScreenExits < 0 || s.MaxCopyAttempts < 0:
		return fmt.Errorf("%w: violation thresholds must not be negative", ErrInvalidExamSettings)
	case s.TimePerQuestionSeconds < 0:
		return fmt.Errorf("%w: time_per_question_seconds must not be negative", ErrInvalidTimingConfig)
	}

	switch s.Timing() {
	case TimingWholeExam:
		if s.TimePerQuestionSeconds > 0 {
			return fmt.Errorf("%w: whole_exam timing cannot carry a per-question time", ErrInvalidTimingConfig)
		}
	case TimingPerQuestion, TimingHybrid:
	default:
		return fmt.Errorf("%w: unknown timing mode %q", ErrInvalidTimingConfig, s.TimingMode)
	}
	return nil
}

// GradeBand maps a minimum percentage to a grade label.
type GradeBand struct {
	Grade         string  `json:"grade" binding:"required,max=16"`
	MinPercentage float64 `json:"min_percentage" binding:"min=0,max=100"`
}

// Exam represents an exam definition.
type Exam struct {
	ID              uuid.UUID    `json:"id"`
	Title           string       `json:"title"`
	AuthorID        int          `json:"author_id"`
	IsPublic        bool         `json:"is_public"`
	StartDate       *time.Time   `json:"start_date,omitempty"`
	EndDate         *time.Time   `json:"end_date,omitempty"`
	DurationMinutes int          `json:"duration_minutes"`
	PassMark        float64      `json:"pass_mark"`
	Settings        ExamSettings `json:"settings"`
	GradeScale      []GradeBand  `json:"grade_scale,omitempty"`
	Status          ExamStatus   `json:"status"`
	QuestionCount   int          `json:"question_count"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// IsAvailableAt reports whether the exam is published and now falls within [StartDate, EndDate).
func (e *Exam) IsAvailableAt(now time.Time) bool {
	if e.Status != ExamStatusPublished {
		return false
	}
	if e.StartDate != nil && now.Before(*e.StartDate) {
		return false
	}
	if e.EndDate != nil && !now.Before(*e.EndDate) {
		return false
	}
	return true
}

// Validate checks the exam definition before it is persisted or published.
func (e *Exam) Validate() error {
	if e.PassMark < 0 || e.PassMark > 100 {
		return fmt.Errorf("%w: pass_mark must be within 0..100", ErrInvalidExamSettings)
	}
	if e.DurationMinutes < 0 {
		return fmt.Errorf("%w: duration_minutes must not be negative", ErrInvalidExamSettings)
	}
	if e.StartDate != nil && e.EndDate != nil && !e.EndDate.After(*e.StartDate) {
		return fmt.Errorf("%w: end_date must be after start_date", ErrInvalidExamSettings)
	}
	if e.Settings.Timing() != TimingPerQuestion && e.DurationMinutes == 0 {
		return fmt.Errorf("%w: duration_minutes is required for %s timing", ErrInvalidTimingConfig, e.Settings.Timing())
	}
	if len(e.GradeScale) > 0 {
		if err := ValidateGradeScale(e.GradeScale); err != nil {
			return err
		}
	}
	return e.Settings.Validate()
}

// ValidateGradeScale requires unique thresholds within 0..100 and non-empty labels.
func ValidateGradeScale(scale []GradeBand) error {
	seen := make(map[float64]struct{}, len(scale))
	for _, b := range scale {
		if b.Grade == "" {
			return fmt.Errorf("%w: grade label is required", ErrInvalidGradeScale)
		}
		if b.MinPercentage < 0 || b.MinPercentage > 100 {
			return fmt.Errorf("%w: threshold %.2f out of range", ErrInvalidGradeScale, b.MinPercentage)
		}
		if _, dup := seen[b.MinPercentage]; dup {
			return fmt.Errorf("%w: duplicate threshold %.2f", ErrInvalidGradeScale, b.MinPercentage)
		}
		seen[b.MinPercentage] = struct{}{}
	}
	return nil
}

// CreateExamRequest is the payload used by the seeding tool and admin tooling.
type CreateExamRequest struct {
	Title           string       `json:"title" binding:"required,min=3,max=255"`
	IsPublic        bool         `json:"is_public"`
	StartDate       *time.Time   `json:"start_date" binding:"omitempty"`
	EndDate         *time.Time   `json:"end_date" binding:"omitempty,gtfield=StartDate"`
	DurationMinutes int          `json:"duration_minutes" binding:"min=0,max=480"`
	PassMark        float64      `json:"pass_mark" binding:"min=0,max=100"`
	Settings        ExamSettings `json:"settings"`
	GradeScale      []GradeBand  `json:"grade_scale" binding:"omitempty,dive"`
}
