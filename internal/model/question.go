package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeSingleChoice   QuestionType = "single_choice"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
	QuestionTypeEssay          QuestionType = "essay"
)

// Valid reports whether t is a supported question kind.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeMultipleChoice, QuestionTypeTrueFalse,
		QuestionTypeShortAnswer, QuestionTypeEssay:
		return true
	}
	return false
}

// IsSubjective reports whether answers of this kind may be graded by hand.
func (t QuestionType) IsSubjective() bool {
	return t == QuestionTypeShortAnswer || t == QuestionTypeEssay
}

// ErrInvalidQuestion wraps every question definition error.
var ErrInvalidQuestion = errors.New("invalid question")

// Option is one selectable choice. IsCorrect is never sent to students.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// BoolValue parses the boolean a true/false option encodes, from its id or its text.
func (o Option) BoolValue() (bool, bool) {
	for _, s := range []string{o.ID, o.Text} {
		if b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(s))); err == nil {
			return b, true
		}
	}
	return false, false
}

// Question is one versioned question definition. Edits insert a new Version.
type Question struct {
	ID               uuid.UUID    `json:"id"`
	ExamID           uuid.UUID    `json:"exam_id"`
	Version          int          `json:"version"`
	Type             QuestionType `json:"type"`
	Prompt           string       `json:"prompt"`
	MediaURL         *string      `json:"media_url,omitempty"`
	Options          []Option     `json:"options,omitempty"`
	AcceptedAnswers  []string     `json:"accepted_answers,omitempty"`
	Marks            float64      `json:"marks"`
	NegativeMarks    *float64     `json:"negative_marks,omitempty"`
	TimeLimitSeconds int          `json:"time_limit_seconds,omitempty"`
	Difficulty       string       `json:"difficulty,omitempty"`
	OrderNum         int          `json:"order_num"`
}

// Ref identifies the exact question version an attempt is graded against.
func (q *Question) Ref() QuestionRef {
	return QuestionRef{QuestionID: q.ID, Version: q.Version}
}

// CorrectOptions returns the ids of every option flagged correct.
func (q *Question) CorrectOptions() []string {
	ids := make([]string, 0, 1)
	for _, o := range q.Options {
		if o.IsCorrect {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// HasOption reports whether id names one of the question's options.
func (q *Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// Validate enforces the answer-key invariants for each question kind.
func (q *Question) Validate() error {
	if q.Marks < 0 {
		return fmt.Errorf("%w: marks must not be negative", ErrInvalidQuestion)
	}
	if q.NegativeMarks != nil && *q.NegativeMarks < 0 {
		return fmt.Errorf("%w: negative_marks is a magnitude and must not be negative", ErrInvalidQuestion)
	}
	if q.TimeLimitSeconds < 0 {
		return fmt.Errorf("%w: time_limit_seconds must not be negative", ErrInvalidQuestion)
	}

	seen := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		if o.ID == "" {
			return fmt.Errorf("%w: option id is required", ErrInvalidQuestion)
		}
		if _, dup := seen[o.ID]; dup {
			return fmt.Errorf("%w: duplicate option id %q", ErrInvalidQuestion, o.ID)
		}
		seen[o.ID] = struct{}{}
	}

	correct := len(q.CorrectOptions())
	switch q.Type {
	case QuestionTypeSingleChoice:
		if len(q.Options) < 2 || correct != 1 {
			return fmt.Errorf("%w: single_choice needs at least two options and exactly one correct", ErrInvalidQuestion)
		}
	case QuestionTypeTrueFalse:
		if len(q.Options) != 2 || correct != 1 {
			return fmt.Errorf("%w: true_false needs two options and exactly one correct", ErrInvalidQuestion)
		}
		for _, o := range q.Options {
			if _, ok := o.BoolValue(); !ok {
				return fmt.Errorf("%w: true_false option %q does not encode a boolean", ErrInvalidQuestion, o.ID)
			}
		}
	case QuestionTypeMultipleChoice:
		if len(q.Options) < 2 || correct < 1 {
			return fmt.Errorf("%w: multiple_choice needs at least two options and one correct", ErrInvalidQuestion)
		}
	case QuestionTypeShortAnswer:
		ok := false
		for _, a := range q.AcceptedAnswers {
			if strings.TrimSpace(a) != "" {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: short_answer needs at least one accepted answer", ErrInvalidQuestion)
		}
	case QuestionTypeEssay:
		if correct > 0 || len(q.AcceptedAnswers) > 0 {
			return fmt.Errorf("%w: essay has no automatic answer key", ErrInvalidQuestion)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidQuestion, q.Type)
	}
	return nil
}

// QuestionRef pins a question version into an attempt's paper.
type QuestionRef struct {
	QuestionID uuid.UUID `json:"question_id"`
	Version    int       `json:"version"`
}

// OptionForStudent is an option without its correctness flag.
type OptionForStudent struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionForStudent is a question without its answer key.
type QuestionForStudent struct {
	ID               uuid.UUID          `json:"id"`
	Version          int                `json:"version"`
	Type             QuestionType       `json:"type"`
	Prompt           string             `json:"prompt"`
	MediaURL         *string            `json:"media_url,omitempty"`
	Options          []OptionForStudent `json:"options,omitempty"`
	Marks            float64            `json:"marks"`
	TimeLimitSeconds int                `json:"time_limit_seconds,omitempty"`
	OrderNum         int                `json:"order_num"`
}

// AddQuestionRequest is the payload for adding a question version.
type AddQuestionRequest struct {
	Type             QuestionType `json:"type" binding:"required,question_type"`
	Prompt           string       `json:"prompt" binding:"required,min=1,max=4000"`
	MediaURL         *string      `json:"media_url" binding:"omitempty,url"`
	Options          []Option     `json:"options" binding:"omitempty,dive"`
	AcceptedAnswers  []string     `json:"accepted_answers"`
	Marks            float64      `json:"marks" binding:"min=0"`
	NegativeMarks    *float64     `json:"negative_marks" binding:"omitempty,min=0"`
	TimeLimitSeconds int          `json:"time_limit_seconds" binding:"min=0"`
	Difficulty       string       `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	OrderNum         int          `json:"order_num" binding:"min=0"`
}
