// Package grading holds the pure question evaluator and score aggregator.
// Nothing here performs I/O; callers pass immutable snapshots in.
package grading

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/stemsi/exstem-engine/internal/model"
)

// ErrUnknownOption is returned when a submitted option id is not on the question.
var ErrUnknownOption = errors.New("unknown option")

// Options carries the exam-level marking policy.
type Options struct {
	NegativeMarking           bool
	NegativeMarkingPercentage float64
	PartialCredit             bool
}

// OptionsFromSettings derives marking options from an exam settings snapshot.
func OptionsFromSettings(s model.ExamSettings) Options {
	return Options{
		NegativeMarking:           s.NegativeMarking,
		NegativeMarkingPercentage: s.NegativeMarkingPercentage,
		PartialCredit:             s.PartialCredit,
	}
}

// Evaluation is the outcome of evaluating one submitted answer.
type Evaluation struct {
	IsCorrect    *bool
	MarksAwarded float64
	MaxMarks     float64
	NeedsManual  bool
}

type strategy func(q *model.Question, v model.AnswerValue, opts Options) (Evaluation, error)

var strategies = map[model.QuestionType]strategy{
	model.QuestionTypeSingleChoice:   evaluateSingleChoice,
	model.QuestionTypeMultipleChoice: evaluateMultipleChoice,
	model.QuestionTypeTrueFalse:      evaluateTrueFalse,
	model.QuestionTypeShortAnswer:    evaluateShortAnswer,
	model.QuestionTypeEssay:          evaluateEssay,
}

// Evaluate decides correctness and awarded marks for one answer.
// The value is coerced to the question kind first; a value that cannot answer
// the kind yields model.ErrAnswerTypeMismatch. A cleared answer gets a nil
// IsCorrect and zero marks.
func Evaluate(q *model.Question, v model.AnswerValue, opts Options) (Evaluation, error) {
	s, ok := strategies[q.Type]
	if !ok {
		return Evaluation{}, fmt.Errorf("%w: unknown question type %q", model.ErrAnswerTypeMismatch, q.Type)
	}
	value, err := v.ForQuestion(q.Type)
	if err != nil {
		return Evaluation{}, err
	}
	if blank(q.Type, value) {
		return Evaluation{MaxMarks: q.Marks}, nil
	}
	return s(q, value, opts)
}

// blank reports a cleared answer: no selected options or text that normalizes
// to nothing. It is scored as unanswered.
func blank(t model.QuestionType, v model.AnswerValue) bool {
	switch t {
	case model.QuestionTypeMultipleChoice:
		return len(v.Strings) == 0
	case model.QuestionTypeShortAnswer, model.QuestionTypeSingleChoice:
		return NormalizeText(v.String) == ""
	}
	return false
}

func evaluateSingleChoice(q *model.Question, v model.AnswerValue, opts Options) (Evaluation, error) {
	if !q.HasOption(v.String) {
		return Evaluation{}, fmt.Errorf("%w: %q", ErrUnknownOption, v.String)
	}
	correct := q.CorrectOptions()
	return binary(q, len(correct) == 1 && correct[0] == v.String, opts), nil
}

func evaluateMultipleChoice(q *model.Question, v model.AnswerValue, opts Options) (Evaluation, error) {
	for _, id := range v.Strings {
		if !q.HasOption(id) {
			return Evaluation{}, fmt.Errorf("%w: %q", ErrUnknownOption, id)
		}
	}

	correct := make(map[string]struct{})
	for _, id := range q.CorrectOptions() {
		correct[id] = struct{}{}
	}

	hits, falsePositive := 0, false
	for _, id := range v.Strings {
		if _, ok := correct[id]; ok {
			hits++
		} else {
			falsePositive = true
		}
	}

	if !falsePositive && hits == len(correct) {
		return binary(q, true, opts), nil
	}
	if opts.PartialCredit && !falsePositive && hits > 0 {
		return Evaluation{
			IsCorrect:    boolPtr(false),
			MarksAwarded: Round2(q.Marks * float64(hits) / float64(len(correct))),
			MaxMarks:     q.Marks,
		}, nil
	}
	return binary(q, false, opts), nil
}

func evaluateTrueFalse(q *model.Question, v model.AnswerValue, opts Options) (Evaluation, error) {
	for _, o := range q.Options {
		if !o.IsCorrect {
			continue
		}
		want, ok := o.BoolValue()
		if !ok {
			return Evaluation{}, fmt.Errorf("%w: correct option %q is not boolean", model.ErrInvalidQuestion, o.ID)
		}
		return binary(q, v.Bool == want, opts), nil
	}
	return Evaluation{}, fmt.Errorf("%w: no correct option", model.ErrInvalidQuestion)
}

func evaluateShortAnswer(q *model.Question, v model.AnswerValue, opts Options) (Evaluation, error) {
	got := NormalizeText(v.String)
	for _, accepted := range q.AcceptedAnswers {
		if n := NormalizeText(accepted); n != "" && n == got {
			return binary(q, true, opts), nil
		}
	}
	return binary(q, false, opts), nil
}

func evaluateEssay(q *model.Question, _ model.AnswerValue, _ Options) (Evaluation, error) {
	return Evaluation{MaxMarks: q.Marks, NeedsManual: true}, nil
}

// binary awards full marks when correct, the negative marks when wrong under
// negative marking, and nothing otherwise.
func binary(q *model.Question, correct bool, opts Options) Evaluation {
	ev := Evaluation{IsCorrect: boolPtr(correct), MaxMarks: q.Marks}
	switch {
	case correct:
		ev.MarksAwarded = q.Marks
	case opts.NegativeMarking:
		ev.MarksAwarded = -NegativeMarks(q, opts)
	}
	ev.MarksAwarded = Round2(ev.MarksAwarded)
	return ev
}

// NegativeMarks is the penalty magnitude for a wrong answer: the question's own
// value when set, else the exam percentage of the question's marks.
func NegativeMarks(q *model.Question, opts Options) float64 {
	if q.NegativeMarks != nil {
		return *q.NegativeMarks
	}
	return q.Marks * opts.NegativeMarkingPercentage / 100
}

// NormalizeText lowercases, trims and collapses inner whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Round2 rounds half away from zero to two decimals.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func boolPtr(b bool) *bool { return &b }
