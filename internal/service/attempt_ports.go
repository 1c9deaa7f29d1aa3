package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
)

// Clock supplies the current time. Tests inject a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall clock in UTC.
func SystemClock() Clock { return systemClock{} }

// AttemptStore persists attempts. Every mutation is atomic per attempt.
// Implementations return repository.ErrNotFound, repository.ErrVersionConflict
// and repository.ErrAttemptNotOpen.
type AttemptStore interface {
	// CreateAttempt inserts the attempt unless another in_progress attempt or the
	// same attempt number already exists; created is false when it lost that race.
	CreateAttempt(ctx context.Context, a *model.Attempt) (created bool, err error)
	GetAttempt(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	FindInProgress(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error)
	History(ctx context.Context, examID uuid.UUID, studentID int) (model.AttemptHistory, error)
	// SaveAnswer upserts by (attempt, question) only while the attempt is in_progress,
	// bumping the attempt version in the same transaction. An older SavedAt never
	// overwrites a newer one; the stored row is returned.
	SaveAnswer(ctx context.Context, ans *model.Answer) (*model.Answer, error)
	// UpdateAttempt writes status and scoring fields plus the given answers
	// if the stored version still equals expectedVersion.
	UpdateAttempt(ctx context.Context, a *model.Attempt, expectedVersion int, answers []model.Answer) error
	// BumpSecurityCounters atomically increments the counters for eventType on an
	// in_progress attempt and returns the new values.
	BumpSecurityCounters(ctx context.Context, attemptID uuid.UUID, eventType model.SecurityEventType, at time.Time) (model.SecurityCounters, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ExamStatistics(ctx context.Context, examID uuid.UUID) (*model.AttemptStatistics, error)
}

// ExamCatalog is the read-only source of exam and question definitions.
type ExamCatalog interface {
	GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	// ListQuestions returns the latest version of every question, in order.
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	// GetQuestions returns the pinned versions keyed by question id.
	GetQuestions(ctx context.Context, examID uuid.UUID, refs []model.QuestionRef) (map[uuid.UUID]*model.Question, error)
	IsAssigned(ctx context.Context, examID uuid.UUID, studentID int) (bool, error)
	SystemGradeScale(ctx context.Context) ([]model.GradeBand, error)
}

// SecurityEventSink accepts events for durable, ordered persistence.
type SecurityEventSink interface {
	EnqueueSecurityEvent(ctx context.Context, ev *model.SecurityEvent) error
}

// SecurityEventReader reads the persisted log.
type SecurityEventReader interface {
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.SecurityEvent, error)
}

// HeartbeatSink records client contact without touching the attempt version.
type HeartbeatSink interface {
	EnqueueHeartbeat(ctx context.Context, attemptID uuid.UUID, at time.Time) error
}

// MonitorPublisher fans attempt activity out to live monitors.
type MonitorPublisher interface {
	Publish(ctx context.Context, examID uuid.UUID, ev MonitorEvent)
}

// StatisticsCache caches per-exam statistics for a short time.
type StatisticsCache interface {
	GetStatistics(ctx context.Context, examID uuid.UUID) (*model.AttemptStatistics, bool)
	SetStatistics(ctx context.Context, st *model.AttemptStatistics)
	InvalidateStatistics(ctx context.Context, examID uuid.UUID)
}

// MonitorEvent is one live-monitor message.
type MonitorEvent struct {
	Type       string              `json:"type"`
	AttemptID  uuid.UUID           `json:"attempt_id"`
	StudentID  int                 `json:"student_id"`
	Status     model.AttemptStatus `json:"status,omitempty"`
	Score      *float64            `json:"score,omitempty"`
	EventType  string              `json:"event_type,omitempty"`
	Severity   string              `json:"severity,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

const (
	MonitorAttemptStarted   = "attempt_started"
	MonitorAnswerSaved      = "answer_saved"
	MonitorSecurityEvent    = "security_event"
	MonitorAttemptFinalized = "attempt_finalized"
	MonitorAnswerGraded     = "answer_graded"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, uuid.UUID, MonitorEvent) {}

type nopStatsCache struct{}

func (nopStatsCache) GetStatistics(context.Context, uuid.UUID) (*model.AttemptStatistics, bool) {
	return nil, false
}
func (nopStatsCache) SetStatistics(context.Context, *model.AttemptStatistics) {}
func (nopStatsCache) InvalidateStatistics(context.Context, uuid.UUID) {}
