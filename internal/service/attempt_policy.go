package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

type policyOutcome struct {
	decision  model.PolicyDecision
	denial    *AttemptError
	resume    *model.Attempt
	questions []model.Question
}

func (o *policyOutcome) deny(e *AttemptError) *policyOutcome {
	o.decision = model.PolicyDecision{Allowed: false, Reason: e.Code}
	o.denial = e
	return o
}

// ResolveStartPolicy decides whether the student may start a new attempt now.
// An in-progress attempt found past its hard deadline is finalized first.
func (s *AttemptService) ResolveStartPolicy(ctx context.Context, studentID int, examID uuid.UUID) (*model.PolicyDecision, error) {
	exam, err := s.getExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	out, err := s.evaluatePolicy(ctx, exam, studentID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return &out.decision, nil
}

// evaluatePolicy applies the start rules in order; the first failure wins.
// Configuration errors are returned as errors, rule failures as a denial.
func (s *AttemptService) evaluatePolicy(ctx context.Context, exam *model.Exam, studentID int, now time.Time) (*policyOutcome, error) {
	out := &policyOutcome{}

	if !exam.IsAvailableAt(now) {
		return out.deny(ErrExamNotAvailable), nil
	}

	if !exam.IsPublic {
		assigned, err := s.catalog.IsAssigned(ctx, exam.ID, studentID)
		if err != nil {
			return nil, fmt.Errorf("check assignment: %w", err)
		}
		if !assigned {
			return out.deny(ErrNotAssigned), nil
		}
	}

	current, err := s.store.FindInProgress(ctx, exam.ID, studentID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find in-progress attempt: %w", err)
	}
	if current != nil && !now.Before(current.HardDeadline()) {
		if _, _, err := s.finalizeExpired(ctx, current.ID, now); err != nil {
			return nil, err
		}
		current = nil
	}

	history, err := s.store.History(ctx, exam.ID, studentID)
	if err != nil {
		return nil, fmt.Errorf("attempt history: %w", err)
	}
	if limit := exam.Settings.MaxAttempts; limit > 0 && history.TerminalCount >= limit && !exam.Settings.AllowRetake {
		return out.deny(ErrMaxAttempts), nil
	}

	if current != nil {
		out.deny(ErrAttemptInProgress.withAttempt(current.ID))
		id := current.ID
		out.decision.ExistingAttemptID = &id
		out.resume = current
		return out, nil
	}

	questions, err := s.catalog.ListQuestions(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	budget, err := TimeBudget(exam, questions)
	if err != nil {
		return nil, ErrInvalidTimingConfig.with(err)
	}
	if exam.EndDate != nil {
		left := int(exam.EndDate.Sub(now) / time.Second)
		if left <= 0 {
			return out.deny(ErrExamNotAvailable), nil
		}
		if left < budget {
			budget = left
		}
	}

	out.questions = questions
	out.decision = model.PolicyDecision{
		Allowed:           true,
		AttemptNumber:     history.MaxAttemptNumber + 1,
		TimeBudgetSeconds: budget,
	}
	return out, nil
}

// TimeBudget computes the answering time of a new attempt from the exam's timing mode.
func TimeBudget(exam *model.Exam, questions []model.Question) (int, error) {
	if err := exam.Settings.Validate(); err != nil {
		return 0, err
	}

	whole := exam.DurationMinutes * 60
	switch exam.Settings.Timing() {
	case model.TimingWholeExam:
		if whole <= 0 {
			return 0, fmt.Errorf("%w: duration must be positive", model.ErrInvalidTimingConfig)
		}
		return whole, nil
	case model.TimingPerQuestion:
		return perQuestionBudget(exam, questions)
	case model.TimingHybrid:
		per, err := perQuestionBudget(exam, questions)
		if err != nil {
			return 0, err
		}
		if whole > 0 && whole < per {
			return whole, nil
		}
		return per, nil
	}
	return 0, fmt.Errorf("%w: unknown timing mode %q", model.ErrInvalidTimingConfig, exam.Settings.TimingMode)
}

func perQuestionBudget(exam *model.Exam, questions []model.Question) (int, error) {
	total := 0
	for _, q := range questions {
		switch {
		case q.TimeLimitSeconds > 0:
			total += q.TimeLimitSeconds
		case exam.Settings.TimePerQuestionSeconds > 0:
			total += exam.Settings.TimePerQuestionSeconds
		}
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: per-question timing without question time limits", model.ErrInvalidTimingConfig)
	}
	return total, nil
}
