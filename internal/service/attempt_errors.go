package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorKind groups attempt errors by how a caller should react.
type ErrorKind string

const (
	KindPolicy     ErrorKind = "policy"
	KindValidation ErrorKind = "validation"
	KindExpired    ErrorKind = "expired"
	KindConflict   ErrorKind = "conflict"
	KindNotFound   ErrorKind = "not_found"
	KindForbidden  ErrorKind = "forbidden"
)

// AttemptError is an expected, typed failure of an attempt operation.
// Two AttemptErrors match under errors.Is when their codes are equal.
type AttemptError struct {
	Code      string
	Kind      ErrorKind
	Msg       string
	AttemptID *uuid.UUID
	Err       error
}

func (e *AttemptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return e.Code + ": " + e.Msg
}

func (e *AttemptError) Unwrap() error { return e.Err }

func (e *AttemptError) Is(target error) bool {
	var t *AttemptError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

func newAttemptError(kind ErrorKind, code, msg string) *AttemptError {
	return &AttemptError{Code: code, Kind: kind, Msg: msg}
}

// with returns a copy carrying a cause.
func (e *AttemptError) with(err error) *AttemptError {
	c := *e
	c.Err = err
	return &c
}

// ─── Policy ─────────────────────────────────────────────────────────
var (
	ErrExamNotAvailable  = newAttemptError(KindPolicy, "EXAM_NOT_AVAILABLE", "exam is not published or outside its availability window")
	ErrNotAssigned       = newAttemptError(KindPolicy, "NOT_ASSIGNED", "exam is not assigned to this student")
	ErrMaxAttempts       = newAttemptError(KindPolicy, "MAX_ATTEMPTS_REACHED", "maximum number of attempts reached")
	ErrAttemptInProgress = newAttemptError(KindPolicy, "ATTEMPT_IN_PROGRESS", "an attempt is already in progress")
)

// ─── Expiry ─────────────────────────────────────────────────────────
var (
	ErrAttemptExpired         = newAttemptError(KindExpired, "ATTEMPT_EXPIRED", "attempt time budget is exhausted")
	ErrSubmissionWindowClosed = newAttemptError(KindExpired, "SUBMISSION_WINDOW_CLOSED", "submission window has closed")
)

// ─── State and validation ───────────────────────────────────────────
var (
	ErrAttemptNotInProgress = newAttemptError(KindConflict, "ATTEMPT_NOT_IN_PROGRESS", "attempt is no longer in progress")
	ErrAttemptNotGradable   = newAttemptError(KindConflict, "ATTEMPT_NOT_GRADABLE", "attempt status does not accept manual grading")
	ErrConcurrentUpdate     = newAttemptError(KindConflict, "CONFLICT", "attempt was modified concurrently, retries exhausted")
	ErrAnswerNotGradable    = newAttemptError(KindValidation, "ANSWER_NOT_GRADABLE", "only short-answer and essay answers can be graded manually")
	ErrAnswerTypeMismatch   = newAttemptError(KindValidation, "ANSWER_TYPE_MISMATCH", "answer value does not fit the question type")
	ErrUnknownOption        = newAttemptError(KindValidation, "UNKNOWN_OPTION", "answer references an option the question does not have")
	ErrQuestionNotInAttempt = newAttemptError(KindValidation, "QUESTION_NOT_IN_ATTEMPT", "question is not part of this attempt")
	ErrInvalidMarks         = newAttemptError(KindValidation, "INVALID_MARKS", "marks must be between 0 and the question's marks")
	ErrInvalidEventType     = newAttemptError(KindValidation, "INVALID_EVENT_TYPE", "unknown security event type")
	ErrInvalidTimingConfig  = newAttemptError(KindValidation, "INVALID_TIMING_CONFIG", "exam timing configuration is invalid")
	ErrNoQuestions          = newAttemptError(KindValidation, "NO_QUESTIONS", "exam has no questions")
)

// ─── Lookup and ownership ───────────────────────────────────────────
var (
	ErrExamNotFound    = newAttemptError(KindNotFound, "EXAM_NOT_FOUND", "exam not found")
	ErrAttemptNotFound = newAttemptError(KindNotFound, "ATTEMPT_NOT_FOUND", "attempt not found")
	ErrAnswerNotFound  = newAttemptError(KindNotFound, "ANSWER_NOT_FOUND", "answer not found")
	ErrAttemptNotOwned = newAttemptError(KindForbidden, "ATTEMPT_NOT_OWNED", "attempt belongs to another student")
)

// AsAttemptError extracts an AttemptError from err.
func AsAttemptError(err error) (*AttemptError, bool) {
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// withAttempt returns a copy naming the attempt it refers to.
func (e *AttemptError) withAttempt(id uuid.UUID) *AttemptError {
	c := *e
	c.AttemptID = &id
	return &c
}
