package grading

import (
	"sort"

	"github.com/stemsi/exstem-engine/internal/model"
)

// AggregateInput is everything the aggregator needs, taken from the attempt snapshot.
type AggregateInput struct {
	Answers            []model.Answer
	TotalMarks         float64
	PassMark           float64
	Late               bool
	LatePenaltyPercent float64
	ScoreFloor         *float64
	GradeScale         []model.GradeBand
}

// Result holds the recomputed figures of an attempt.
type Result struct {
	Score              float64
	Percentage         float64
	Passed             bool
	Grade              *string
	LatePenaltyApplied bool
	PendingManual      int
	Answered           int
	Correct            int
}

// InputFromAttempt builds the aggregator input from an attempt snapshot.
func InputFromAttempt(a *model.Attempt, late bool) AggregateInput {
	return AggregateInput{
		Answers:            a.Answers,
		TotalMarks:         a.TotalMarks,
		PassMark:           a.PassMark,
		Late:               late,
		LatePenaltyPercent: a.Settings.LateSubmissionPenalty,
		ScoreFloor:         a.Settings.ScoreFloor,
		GradeScale:         a.GradeScale,
	}
}

// Aggregate recomputes score, percentage, pass and grade from scratch.
// The late penalty reduces the score, once, and only when the score is positive.
// Unanswered questions have no Answer, or a cleared one, and contribute nothing.
func Aggregate(in AggregateInput) Result {
	var r Result
	var sum float64
	for _, a := range in.Answers {
		if a.Cleared() {
			continue
		}
		r.Answered++
		sum += a.MarksAwarded
		if a.IsCorrect != nil && *a.IsCorrect {
			r.Correct++
		}
		if a.PendingManual() {
			r.PendingManual++
		}
	}

	if in.Late && in.LatePenaltyPercent > 0 && sum > 0 {
		sum -= sum * in.LatePenaltyPercent / 100
		r.LatePenaltyApplied = true
	}
	if in.ScoreFloor != nil && sum < *in.ScoreFloor {
		sum = *in.ScoreFloor
	}
	if sum > in.TotalMarks {
		sum = in.TotalMarks
	}

	r.Score = Round2(sum)
	r.Percentage = Percentage(r.Score, in.TotalMarks)
	r.Passed = r.Percentage >= in.PassMark
	r.Grade = GradeFor(in.GradeScale, r.Percentage)
	return r
}

// Percentage is round(score / total × 100, 2), or 0 when total is 0.
func Percentage(score, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return Round2(score / total * 100)
}

// GradeFor returns the label of the highest band whose threshold the percentage reaches.
func GradeFor(scale []model.GradeBand, percentage float64) *string {
	if len(scale) == 0 {
		return nil
	}
	bands := make([]model.GradeBand, len(scale))
	copy(bands, scale)
	sort.Slice(bands, func(i, j int) bool { return bands[i].MinPercentage > bands[j].MinPercentage })

	for _, b := range bands {
		if percentage >= b.MinPercentage {
			g := b.Grade
			return &g
		}
	}
	return nil
}

// Summarize computes exam statistics over finalized results.
// Only attempts with a score count.
func Summarize(results []*model.ScoredResult) model.AttemptStatistics {
	var st model.AttemptStatistics
	var sumScore, sumPct float64
	passed := 0
	for _, r := range results {
		if r.Score == nil || !r.Status.IsTerminal() {
			continue
		}
		score := *r.Score
		if st.TotalAttempts == 0 || score > st.MaxScore {
			st.MaxScore = score
		}
		if st.TotalAttempts == 0 || score < st.MinScore {
			st.MinScore = score
		}
		st.TotalAttempts++
		sumScore += score
		if r.Percentage != nil {
			sumPct += *r.Percentage
		}
		if r.Passed != nil && *r.Passed {
			passed++
		}
	}
	if st.TotalAttempts > 0 {
		n := float64(st.TotalAttempts)
		st.AverageScore = Round2(sumScore / n)
		st.AveragePercentage = Round2(sumPct / n)
		st.PassRate = Round2(float64(passed) / n * 100)
	}
	return st
}
