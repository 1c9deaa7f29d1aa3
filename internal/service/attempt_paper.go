package service

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-engine/internal/model"
)

// GetAttemptPaper returns the questions of an in-progress attempt in attempt
// order, without answer keys, together with the answers saved so far.
func (s *AttemptService) GetAttemptPaper(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.AttemptPaper, error) {
	a, err := s.GetAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if a.IsTerminal() {
		return nil, ErrAttemptNotInProgress
	}

	exam, err := s.getExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	byID, err := s.catalog.GetQuestions(ctx, a.ExamID, a.QuestionOrder)
	if err != nil {
		return nil, fmt.Errorf("load attempt questions: %w", err)
	}

	questions := make([]model.QuestionForStudent, 0, len(a.QuestionOrder))
	for i, ref := range a.QuestionOrder {
		q, ok := byID[ref.QuestionID]
		if !ok {
			return nil, fmt.Errorf("question %s v%d missing from catalog", ref.QuestionID, ref.Version)
		}
		questions = append(questions, studentQuestion(a, q, i+1))
	}

	saved := make([]model.SavedAnswer, 0, len(a.Answers))
	for _, ans := range a.Answers {
		saved = append(saved, model.SavedAnswer{
			QuestionID:       ans.QuestionID,
			Value:            ans.Value,
			TimeSpentSeconds: ans.TimeSpentSeconds,
			MarkedForReview:  ans.MarkedForReview,
		})
	}

	return &model.AttemptPaper{
		AttemptID:        a.ID,
		ExamID:           a.ExamID,
		Title:            exam.Title,
		Deadline:         a.Deadline(),
		RemainingSeconds: a.RemainingSeconds(s.clock.Now()),
		Questions:        questions,
		Answers:          saved,
	}, nil
}

func studentQuestion(a *model.Attempt, q *model.Question, position int) model.QuestionForStudent {
	opts := make([]model.OptionForStudent, len(q.Options))
	for i, o := range q.Options {
		opts[i] = model.OptionForStudent{ID: o.ID, Text: o.Text}
	}
	shuffleable := q.Type == model.QuestionTypeSingleChoice || q.Type == model.QuestionTypeMultipleChoice
	if a.Settings.RandomizeOptions && shuffleable {
		r := seededRand(a.ID, q.ID)
		r.Shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
	}

	return model.QuestionForStudent{
		ID:               q.ID,
		Version:          q.Version,
		Type:             q.Type,
		Prompt:           q.Prompt,
		MediaURL:         q.MediaURL,
		Options:          opts,
		Marks:            q.Marks,
		TimeLimitSeconds: q.TimeLimitSeconds,
		OrderNum:         position,
	}
}

// shuffleRefs permutes refs deterministically for the attempt.
func shuffleRefs(attemptID uuid.UUID, refs []model.QuestionRef) {
	r := seededRand(attemptID, uuid.Nil)
	r.Shuffle(len(refs), func(i, j int) { refs[i], refs[j] = refs[j], refs[i] })
}

// seededRand derives a PCG stream from two ids so a given attempt always
// sees the same permutation.
func seededRand(a, b uuid.UUID) *rand.Rand {
	hi := binary.BigEndian.Uint64(a[:8]) ^ binary.BigEndian.Uint64(b[8:])
	lo := binary.BigEndian.Uint64(a[8:]) ^ binary.BigEndian.Uint64(b[:8])
	return rand.New(rand.NewPCG(hi, lo))
}
