package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/grading"
	"github.com/stemsi/exstem-engine/internal/metrics"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

// AttemptConfig tunes the attempt lifecycle.
type AttemptConfig struct {
	// MaxRetries bounds optimistic concurrency retries per operation.
	MaxRetries int
	// AbandonAfter is how long an expired attempt may sit without client contact
	// before the sweep classifies it abandoned instead of auto-submitted.
	AbandonAfter   time.Duration
	SweepBatchSize int
}

// AttemptDeps are the collaborators of AttemptService.
type AttemptDeps struct {
	Store      AttemptStore
	Catalog    ExamCatalog
	Events     SecurityEventSink
	EventLog   SecurityEventReader
	Heartbeats HeartbeatSink
	Monitor    MonitorPublisher
	Stats      StatisticsCache
	Clock      Clock
}

// AttemptService owns the attempt state machine: start, answer, submit,
// expire, terminate and grade.
type AttemptService struct {
	store      AttemptStore
	catalog    ExamCatalog
	events     SecurityEventSink
	eventLog   SecurityEventReader
	heartbeats HeartbeatSink
	monitor    MonitorPublisher
	stats      StatisticsCache
	clock      Clock
	cfg        AttemptConfig
	log        zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(deps AttemptDeps, cfg AttemptConfig, log zerolog.Logger) *AttemptService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.AbandonAfter <= 0 {
		cfg.AbandonAfter = 30 * time.Minute
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 200
	}
	if deps.Monitor == nil {
		deps.Monitor = nopPublisher{}
	}
	if deps.Stats == nil {
		deps.Stats = nopStatsCache{}
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	return &AttemptService{
		store:      deps.Store,
		catalog:    deps.Catalog,
		events:     deps.Events,
		eventLog:   deps.EventLog,
		heartbeats: deps.Heartbeats,
		monitor:    deps.Monitor,
		stats:      deps.Stats,
		clock:      deps.Clock,
		cfg:        cfg,
		log:        log.With().Str("component", "attempt_service").Logger(),
	}
}

// ─── Start ──────────────────────────────────────────────────────────

// StartAttempt creates a new attempt or resumes the student's in-progress one.
// Concurrent calls for the same student and exam yield a single attempt.
func (s *AttemptService) StartAttempt(ctx context.Context, studentID int, examID uuid.UUID, client model.ClientContext) (*model.Attempt, error) {
	exam, err := s.getExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	for i := 0; i < s.cfg.MaxRetries; i++ {
		now := s.clock.Now()
		out, err := s.evaluatePolicy(ctx, exam, studentID, now)
		if err != nil {
			return nil, err
		}
		if out.resume != nil {
			s.log.Debug().
				Str("attempt_id", out.resume.ID.String()).
				Int("student_id", studentID).
				Msg("Resuming in-progress attempt")
			return out.resume, nil
		}
		if out.denial != nil {
			return nil, out.denial
		}

		a, err := s.newAttempt(ctx, exam, out, studentID, client, now)
		if err != nil {
			return nil, err
		}

		created, err := s.store.CreateAttempt(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		if created {
			metrics.AttemptsStarted.Inc()
			s.monitor.Publish(ctx, a.ExamID, MonitorEvent{
				Type:       MonitorAttemptStarted,
				AttemptID:  a.ID,
				StudentID:  a.StudentID,
				Status:     a.Status,
				OccurredAt: now,
			})
			s.log.Info().
				Str("attempt_id", a.ID.String()).
				Str("exam_id", examID.String()).
				Int("student_id", studentID).
				Int("attempt_number", a.AttemptNumber).
				Int("time_budget_seconds", a.TimeBudgetSeconds).
				Msg("Attempt started")
			return a, nil
		}

		metrics.VersionConflicts.WithLabelValues("start").Inc()
		s.log.Debug().Int("student_id", studentID).Msg("Concurrent start detected, re-reading")
	}
	return nil, ErrConcurrentUpdate
}

func (s *AttemptService) newAttempt(ctx context.Context, exam *model.Exam, out *policyOutcome, studentID int, client model.ClientContext, now time.Time) (*model.Attempt, error) {
	id := uuid.New()

	refs := make([]model.QuestionRef, len(out.questions))
	var total float64
	for i := range out.questions {
		refs[i] = out.questions[i].Ref()
		total += out.questions[i].Marks
	}
	if exam.Settings.RandomizeQuestions {
		shuffleRefs(id, refs)
	}

	scale := exam.GradeScale
	if len(scale) == 0 {
		sys, err := s.catalog.SystemGradeScale(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("System grade scale unavailable, attempt will carry no grades")
		}
		scale = sys
	}

	return &model.Attempt{
		ID:                id,
		ExamID:            exam.ID,
		StudentID:         studentID,
		AttemptNumber:     out.decision.AttemptNumber,
		Status:            model.AttemptStatusInProgress,
		StartTime:         now,
		TimeBudgetSeconds: out.decision.TimeBudgetSeconds,
		TotalMarks:        grading.Round2(total),
		PassMark:          exam.PassMark,
		DurationMinutes:   exam.DurationMinutes,
		Settings:          exam.Settings,
		GradeScale:        scale,
		QuestionOrder:     refs,
		Answers:           []model.Answer{},
		Client:            client,
		LastSeenAt:        now,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ─── Answers ────────────────────────────────────────────────────────

// SaveAnswerInput is one answer write from a student.
type SaveAnswerInput struct {
	AttemptID        uuid.UUID
	StudentID        int
	QuestionID       uuid.UUID
	Value            model.AnswerValue
	TimeSpentSeconds int
	MarkedForReview  bool
}

// SaveAnswerResult is the acknowledgement of a saved answer.
type SaveAnswerResult struct {
	AnswerID         uuid.UUID `json:"answer_id"`
	QuestionID       uuid.UUID `json:"question_id"`
	IsCorrect        *bool     `json:"is_correct"`
	MarksAwarded     float64   `json:"marks_awarded"`
	SavedAt          time.Time `json:"saved_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// SaveAnswer evaluates and stores one answer, replacing any earlier answer
// to the same question.
func (s *AttemptService) SaveAnswer(ctx context.Context, in SaveAnswerInput) (*SaveAnswerResult, error) {
	a, err := s.loadOwned(ctx, in.AttemptID, in.StudentID)
	if err != nil {
		return nil, err
	}
	if a.IsTerminal() {
		return nil, ErrAttemptNotInProgress
	}

	now := s.clock.Now()
	if !now.Before(a.Deadline()) {
		s.expireLazily(ctx, a, now)
		return nil, ErrAttemptExpired
	}

	ref, ok := a.HasQuestion(in.QuestionID)
	if !ok {
		return nil, ErrQuestionNotInAttempt
	}
	q, err := s.pinnedQuestion(ctx, a.ExamID, ref)
	if err != nil {
		return nil, err
	}

	value, err := in.Value.ForQuestion(q.Type)
	if err != nil {
		return nil, ErrAnswerTypeMismatch.with(err)
	}
	ev, err := grading.Evaluate(q, value, grading.OptionsFromSettings(a.Settings))
	if err != nil {
		return nil, evaluationError(err)
	}

	ans := &model.Answer{
		ID:               uuid.New(),
		AttemptID:        a.ID,
		QuestionID:       q.ID,
		QuestionVersion:  q.Version,
		QuestionType:     q.Type,
		Value:            value,
		IsCorrect:        ev.IsCorrect,
		MarksAwarded:     ev.MarksAwarded,
		MaxMarks:         ev.MaxMarks,
		TimeSpentSeconds: in.TimeSpentSeconds,
		MarkedForReview:  in.MarkedForReview,
		SavedAt:          now,
	}
	if !ev.NeedsManual {
		ans.EvaluatedAt = &now
	}

	stored, err := s.store.SaveAnswer(ctx, ans)
	if errors.Is(err, repository.ErrAttemptNotOpen) {
		return nil, ErrAttemptNotInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("save answer: %w", err)
	}

	metrics.AnswersSaved.WithLabelValues(string(q.Type)).Inc()
	s.monitor.Publish(ctx, a.ExamID, MonitorEvent{
		Type:       MonitorAnswerSaved,
		AttemptID:  a.ID,
		StudentID:  a.StudentID,
		OccurredAt: now,
	})

	return &SaveAnswerResult{
		AnswerID:         stored.ID,
		QuestionID:       stored.QuestionID,
		IsCorrect:        stored.IsCorrect,
		MarksAwarded:     stored.MarksAwarded,
		SavedAt:          stored.SavedAt,
		RemainingSeconds: a.RemainingSeconds(now),
	}, nil
}

func evaluationError(err error) error {
	switch {
	case errors.Is(err, model.ErrAnswerTypeMismatch):
		return ErrAnswerTypeMismatch.with(err)
	case errors.Is(err, grading.ErrUnknownOption):
		return ErrUnknownOption.with(err)
	}
	return fmt.Errorf("evaluate answer: %w", err)
}

// ─── Heartbeat ──────────────────────────────────────────────────────

// HeartbeatResult tells the client how much time is left.
type HeartbeatResult struct {
	AttemptID        uuid.UUID           `json:"attempt_id"`
	Status           model.AttemptStatus `json:"status"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	Deadline         time.Time           `json:"deadline"`
	ServerTime       time.Time           `json:"server_time"`
}

// Heartbeat records client contact and reports the remaining time.
func (s *AttemptService) Heartbeat(ctx context.Context, attemptID uuid.UUID, studentID int) (*HeartbeatResult, error) {
	a, err := s.loadOwned(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	status := a.Status
	if !a.IsTerminal() {
		if !now.Before(a.HardDeadline()) {
			res, _, err := s.finalizeExpired(ctx, a.ID, now)
			if err != nil {
				return nil, err
			}
			status = res.Status
		} else if s.heartbeats != nil {
			if err := s.heartbeats.EnqueueHeartbeat(ctx, a.ID, now); err != nil {
				s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Failed to enqueue heartbeat")
			}
		}
	}

	remaining := 0
	if !status.IsTerminal() {
		remaining = a.RemainingSeconds(now)
	}
	return &HeartbeatResult{
		AttemptID:        a.ID,
		Status:           status,
		RemainingSeconds: remaining,
		Deadline:         a.Deadline(),
		ServerTime:       now,
	}, nil
}

// ─── Finalization ───────────────────────────────────────────────────

// SubmitAttempt is the student's manual submit. clientRemaining is logged only.
func (s *AttemptService) SubmitAttempt(ctx context.Context, attemptID uuid.UUID, studentID int, clientRemaining *int) (*model.ScoredResult, error) {
	a, err := s.loadOwned(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if a.IsTerminal() {
		return a.Result(), nil
	}

	now := s.clock.Now()
	if clientRemaining != nil {
		s.log.Debug().
			Str("attempt_id", a.ID.String()).
			Int("client_remaining_seconds", *clientRemaining).
			Int("server_remaining_seconds", a.RemainingSeconds(now)).
			Msg("Submit timing reported by client")
	}

	if !now.Before(a.HardDeadline()) {
		s.expireLazily(ctx, a, now)
		return nil, ErrSubmissionWindowClosed
	}

	late := !now.Before(a.ReviewDeadline())
	res, _, err := s.finalize(ctx, a.ID, finalizeRequest{
		status: model.AttemptStatusSubmitted,
		late:   late,
		now:    now,
	})
	return res, err
}

// AutoSubmit finalizes an attempt whose hard deadline has passed.
// It is a no-op for attempts that are final or still within their window.
func (s *AttemptService) AutoSubmit(ctx context.Context, attemptID uuid.UUID) (*model.ScoredResult, error) {
	res, _, err := s.finalizeExpired(ctx, attemptID, s.clock.Now())
	return res, err
}

// TerminateAttempt ends an attempt for an integrity violation and flags it for review.
// actorID is nil when the engine terminates on a security threshold.
func (s *AttemptService) TerminateAttempt(ctx context.Context, attemptID uuid.UUID, reason string, actorID *int) (*model.ScoredResult, error) {
	a, err := s.loadOwned(ctx, attemptID, 0)
	if err != nil {
		return nil, err
	}
	if a.IsTerminal() {
		return nil, ErrAttemptNotInProgress
	}

	res, changed, err := s.finalize(ctx, attemptID, finalizeRequest{
		status: model.AttemptStatusTerminated,
		reason: &reason,
		now:    s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	if changed {
		evt := s.log.Warn().Str("attempt_id", attemptID.String()).Str("reason", reason)
		if actorID != nil {
			evt = evt.Int("actor_id", *actorID)
		}
		evt.Msg("Attempt terminated")
	}
	return res, nil
}

// SweepExpiredAttempts finalizes every in-progress attempt past its hard deadline
// and returns how many this call finalized.
func (s *AttemptService) SweepExpiredAttempts(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	total := 0
	breakdown := map[model.AttemptStatus]int{}
	for {
		ids, err := s.store.ListExpired(ctx, now, s.cfg.SweepBatchSize)
		if err != nil {
			return total, fmt.Errorf("list expired attempts: %w", err)
		}

		progressed := 0
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			res, changed, err := s.finalizeExpired(ctx, id, now)
			if err != nil {
				s.log.Error().Err(err).Str("attempt_id", id.String()).Msg("Failed to finalize expired attempt")
				continue
			}
			if changed {
				total++
				progressed++
				breakdown[res.Status]++
			}
		}

		if len(ids) < s.cfg.SweepBatchSize || progressed == 0 {
			break
		}
	}

	if total > 0 {
		s.log.Info().
			Int("finalized", total).
			Int("auto_submitted", breakdown[model.AttemptStatusAutoSubmitted]).
			Int("abandoned", breakdown[model.AttemptStatusAbandoned]).
			Msg("Expired attempts swept")
	}
	return total, nil
}

type finalizeRequest struct {
	status model.AttemptStatus
	late   bool
	reason *string
	now    time.Time
	// expired marks the system path: the status is classified from the attempt
	// and nothing happens before the hard deadline.
	expired bool
}

func (s *AttemptService) finalizeExpired(ctx context.Context, attemptID uuid.UUID, now time.Time) (*model.ScoredResult, bool, error) {
	return s.finalize(ctx, attemptID, finalizeRequest{expired: true, now: now})
}

// expireLazily finalizes an attempt found past its hard deadline during another
// operation. Failures are logged; the sweep retries later.
func (s *AttemptService) expireLazily(ctx context.Context, a *model.Attempt, now time.Time) {
	if a.IsTerminal() || now.Before(a.HardDeadline()) {
		return
	}
	if _, _, err := s.finalizeExpired(ctx, a.ID, now); err != nil {
		s.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Lazy expiry failed")
	}
}

// finalize moves an in-progress attempt to a terminal status with its score
// computed in the same write. changed is false when the attempt was already final.
func (s *AttemptService) finalize(ctx context.Context, attemptID uuid.UUID, req finalizeRequest) (*model.ScoredResult, bool, error) {
	for i := 0; i < s.cfg.MaxRetries; i++ {
		a, err := s.loadOwned(ctx, attemptID, 0)
		if err != nil {
			return nil, false, err
		}
		if a.IsTerminal() {
			return a.Result(), false, nil
		}

		status := req.status
		if req.expired {
			if req.now.Before(a.HardDeadline()) {
				return a.Result(), false, nil
			}
			status = s.expiredStatus(a, req.now)
		}

		evaluated, err := s.evaluatePending(ctx, a, req.now)
		if err != nil {
			return nil, false, err
		}

		res := grading.Aggregate(grading.InputFromAttempt(a, req.late))
		if status == model.AttemptStatusSubmitted && a.Settings.AutoFinalize && res.PendingManual == 0 {
			status = model.AttemptStatusGraded
		}

		applyResult(a, res)
		end := req.now
		taken := int(end.Sub(a.StartTime) / time.Second)
		a.Status = status
		a.EndTime = &end
		a.TimeTakenSeconds = &taken
		a.SubmittedLate = req.late
		if status == model.AttemptStatusTerminated {
			a.IsUnderReview = true
			a.TerminationReason = req.reason
		}
		a.UpdatedAt = req.now

		expected := a.Version
		err = s.store.UpdateAttempt(ctx, a, expected, evaluated)
		if errors.Is(err, repository.ErrVersionConflict) {
			metrics.VersionConflicts.WithLabelValues("finalize").Inc()
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("finalize attempt: %w", err)
		}
		a.Version = expected + 1

		s.afterFinalize(ctx, a, req.now)
		return a.Result(), true, nil
	}
	return nil, false, ErrConcurrentUpdate
}

// expiredStatus is auto_submitted unless auto-submit is off or the student
// went silent well past the hard deadline.
func (s *AttemptService) expiredStatus(a *model.Attempt, now time.Time) model.AttemptStatus {
	if !a.Settings.AutoSubmitEnabled() {
		return model.AttemptStatusAbandoned
	}
	if now.Sub(a.HardDeadline()) >= s.cfg.AbandonAfter && now.Sub(a.LastSeenAt) >= s.cfg.AbandonAfter {
		return model.AttemptStatusAbandoned
	}
	return model.AttemptStatusAutoSubmitted
}

// evaluatePending scores stored answers that have no evaluation yet against their
// pinned question versions. Essays stay pending. The changed answers are returned
// so they are written together with the attempt.
func (s *AttemptService) evaluatePending(ctx context.Context, a *model.Attempt, now time.Time) ([]model.Answer, error) {
	var refs []model.QuestionRef
	for _, ans := range a.Answers {
		if ans.EvaluatedAt == nil && ans.QuestionType != model.QuestionTypeEssay {
			refs = append(refs, model.QuestionRef{QuestionID: ans.QuestionID, Version: ans.QuestionVersion})
		}
	}
	if len(refs) == 0 {
		return nil, nil
	}

	questions, err := s.catalog.GetQuestions(ctx, a.ExamID, refs)
	if err != nil {
		return nil, fmt.Errorf("load pinned questions: %w", err)
	}

	opts := grading.OptionsFromSettings(a.Settings)
	changed := make([]model.Answer, 0, len(refs))
	for i := range a.Answers {
		ans := &a.Answers[i]
		if ans.EvaluatedAt != nil || ans.QuestionType == model.QuestionTypeEssay {
			continue
		}
		q, ok := questions[ans.QuestionID]
		if !ok {
			return nil, fmt.Errorf("question %s v%d missing from catalog", ans.QuestionID, ans.QuestionVersion)
		}
		ev, err := grading.Evaluate(q, ans.Value, opts)
		if err != nil {
			// A stored value that no longer evaluates scores zero.
			s.log.Warn().Err(err).Str("answer_id", ans.ID.String()).Msg("Stored answer failed evaluation")
			incorrect := false
			ev = grading.Evaluation{IsCorrect: &incorrect, MaxMarks: q.Marks}
		}
		evaluatedAt := now
		ans.IsCorrect = ev.IsCorrect
		ans.MarksAwarded = ev.MarksAwarded
		ans.MaxMarks = ev.MaxMarks
		ans.EvaluatedAt = &evaluatedAt
		changed = append(changed, *ans)
	}
	return changed, nil
}

func applyResult(a *model.Attempt, res grading.Result) {
	score, pct, passed := res.Score, res.Percentage, res.Passed
	a.Score = &score
	a.Percentage = &pct
	a.Passed = &passed
	a.Grade = res.Grade
}

func (s *AttemptService) afterFinalize(ctx context.Context, a *model.Attempt, now time.Time) {
	s.stats.InvalidateStatistics(ctx, a.ExamID)
	metrics.AttemptsFinalized.WithLabelValues(string(a.Status)).Inc()
	s.monitor.Publish(ctx, a.ExamID, MonitorEvent{
		Type:       MonitorAttemptFinalized,
		AttemptID:  a.ID,
		StudentID:  a.StudentID,
		Status:     a.Status,
		Score:      a.Score,
		OccurredAt: now,
	})
	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("status", string(a.Status)).
		Float64("score", *a.Score).
		Bool("late", a.SubmittedLate).
		Msg("Attempt finalized")
}

// ─── Manual grading ─────────────────────────────────────────────────

// ManualGradeInput is one hand-graded answer.
type ManualGradeInput struct {
	AttemptID uuid.UUID
	AnswerID  uuid.UUID
	Marks     float64
	Feedback  *string
	GraderID  int
}

// ManualGrade replaces the marks of a short-answer or essay answer and
// re-aggregates the attempt.
func (s *AttemptService) ManualGrade(ctx context.Context, in ManualGradeInput) (*model.ScoredResult, error) {
	for i := 0; i < s.cfg.MaxRetries; i++ {
		a, err := s.loadOwned(ctx, in.AttemptID, 0)
		if err != nil {
			return nil, err
		}
		if !a.Status.AcceptsManualGrade() {
			return nil, ErrAttemptNotGradable
		}
		ans := a.AnswerByID(in.AnswerID)
		if ans == nil {
			return nil, ErrAnswerNotFound
		}
		if !ans.QuestionType.IsSubjective() {
			return nil, ErrAnswerNotGradable
		}
		if !(in.Marks >= 0 && in.Marks <= ans.MaxMarks) {
			return nil, ErrInvalidMarks
		}

		now := s.clock.Now()
		marks := grading.Round2(in.Marks)
		correct := marks >= ans.MaxMarks
		grader := in.GraderID
		ans.MarksAwarded = marks
		ans.IsCorrect = &correct
		ans.GradedBy = &grader
		ans.GradedAt = &now
		ans.EvaluatedAt = &now
		ans.Feedback = in.Feedback

		res := grading.Aggregate(grading.InputFromAttempt(a, a.SubmittedLate))
		applyResult(a, res)
		if res.PendingManual == 0 {
			a.Status = model.AttemptStatusGraded
		}
		a.UpdatedAt = now

		expected := a.Version
		err = s.store.UpdateAttempt(ctx, a, expected, []model.Answer{*ans})
		if errors.Is(err, repository.ErrVersionConflict) {
			metrics.VersionConflicts.WithLabelValues("manual_grade").Inc()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save manual grade: %w", err)
		}

		s.stats.InvalidateStatistics(ctx, a.ExamID)
		s.monitor.Publish(ctx, a.ExamID, MonitorEvent{
			Type:       MonitorAnswerGraded,
			AttemptID:  a.ID,
			StudentID:  a.StudentID,
			Status:     a.Status,
			Score:      a.Score,
			OccurredAt: now,
		})
		s.log.Info().
			Str("attempt_id", a.ID.String()).
			Str("answer_id", ans.ID.String()).
			Int("grader_id", grader).
			Float64("marks", marks).
			Int("pending_manual", res.PendingManual).
			Msg("Answer graded")
		return a.Result(), nil
	}
	return nil, ErrConcurrentUpdate
}

// ─── Reads ──────────────────────────────────────────────────────────

// GetAttempt returns the student's attempt, finalizing it first when it expired.
// A studentID of 0 skips the ownership check (admin reads).
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, error) {
	a, err := s.loadOwned(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if a.IsTerminal() || now.Before(a.HardDeadline()) {
		return a, nil
	}
	if _, _, err := s.finalizeExpired(ctx, a.ID, now); err != nil {
		return nil, err
	}
	return s.loadOwned(ctx, attemptID, studentID)
}

// GetAttemptStatistics summarizes finalized attempts of an exam.
func (s *AttemptService) GetAttemptStatistics(ctx context.Context, examID uuid.UUID) (*model.AttemptStatistics, error) {
	if st, ok := s.stats.GetStatistics(ctx, examID); ok {
		return st, nil
	}
	if _, err := s.getExam(ctx, examID); err != nil {
		return nil, err
	}

	st, err := s.store.ExamStatistics(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("exam statistics: %w", err)
	}
	st.ExamID = examID
	s.stats.SetStatistics(ctx, st)
	return st, nil
}

// ListSecurityEvents returns the ordered security log of an attempt.
func (s *AttemptService) ListSecurityEvents(ctx context.Context, attemptID uuid.UUID) ([]model.SecurityEvent, error) {
	if _, err := s.loadOwned(ctx, attemptID, 0); err != nil {
		return nil, err
	}
	events, err := s.eventLog.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list security events: %w", err)
	}
	if events == nil {
		events = []model.SecurityEvent{}
	}
	return events, nil
}

// ─── Helpers ────────────────────────────────────────────────────────

func (s *AttemptService) loadOwned(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if studentID != 0 && a.StudentID != studentID {
		return nil, ErrAttemptNotOwned
	}
	return a, nil
}

func (s *AttemptService) getExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.catalog.GetExam(ctx, examID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

func (s *AttemptService) pinnedQuestion(ctx context.Context, examID uuid.UUID, ref model.QuestionRef) (*model.Question, error) {
	qs, err := s.catalog.GetQuestions(ctx, examID, []model.QuestionRef{ref})
	if err != nil {
		return nil, fmt.Errorf("load question: %w", err)
	}
	q, ok := qs[ref.QuestionID]
	if !ok {
		return nil, fmt.Errorf("question %s v%d missing from catalog", ref.QuestionID, ref.Version)
	}
	return q, nil
}
