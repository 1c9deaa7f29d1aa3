package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/model"
)

const testStudent = 42

type harness struct {
	svc     *AttemptService
	store   *memStore
	catalog *fakeCatalog
	events  *eventSink
	clock   *fakeClock
	exam    *model.Exam
	choice  model.Question
	essay   model.Question
}

// newHarness builds a published one-minute exam with a 5-mark single choice
// question and a 5-mark essay.
func newHarness(t *testing.T, tweak func(*model.Exam)) *harness {
	t.Helper()

	exam := &model.Exam{
		ID:              uuid.New(),
		Title:           "Jaringan Dasar",
		IsPublic:        true,
		DurationMinutes: 1,
		PassMark:        60,
		Status:          model.ExamStatusPublished,
	}
	if tweak != nil {
		tweak(exam)
	}

	choice := model.Question{
		ID: uuid.New(), ExamID: exam.ID, Version: 1, Type: model.QuestionTypeSingleChoice,
		Prompt: "Port HTTPS?", Marks: 5, OrderNum: 1,
		Options: []model.Option{{ID: "a", Text: "80"}, {ID: "b", Text: "443", IsCorrect: true}},
	}
	essay := model.Question{
		ID: uuid.New(), ExamID: exam.ID, Version: 1, Type: model.QuestionTypeEssay,
		Prompt: "Jelaskan subnetting.", Marks: 5, OrderNum: 2,
	}

	store := newMemStore()
	catalog := &fakeCatalog{
		exams:     map[uuid.UUID]*model.Exam{exam.ID: exam},
		questions: map[uuid.UUID][]model.Question{exam.ID: {choice, essay}},
		assigned:  map[int]bool{},
	}
	events := &eventSink{}
	clock := newFakeClock()

	svc := NewAttemptService(AttemptDeps{
		Store:      store,
		Catalog:    catalog,
		Events:     events,
		Heartbeats: heartbeatSink{store: store},
		Clock:      clock,
	}, AttemptConfig{AbandonAfter: 30 * time.Minute}, zerolog.Nop())

	return &harness{svc: svc, store: store, catalog: catalog, events: events, clock: clock, exam: exam, choice: choice, essay: essay}
}

func (h *harness) start(t *testing.T) *model.Attempt {
	t.Helper()
	a, err := h.svc.StartAttempt(context.Background(), testStudent, h.exam.ID, model.ClientContext{IPAddress: "10.0.0.7"})
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	return a
}

func (h *harness) save(t *testing.T, attemptID uuid.UUID, q model.Question, v model.AnswerValue) *SaveAnswerResult {
	t.Helper()
	res, err := h.svc.SaveAnswer(context.Background(), SaveAnswerInput{
		AttemptID: attemptID, StudentID: testStudent, QuestionID: q.ID, Value: v, TimeSpentSeconds: 5,
	})
	if err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	return res
}

func TestStartPolicyDenials(t *testing.T) {
	ctx := context.Background()
	past := newFakeClock().Now().Add(-time.Hour)
	future := newFakeClock().Now().Add(time.Hour)
	closing := newFakeClock().Now().Add(400 * time.Millisecond)

	tests := []struct {
		name    string
		tweak   func(*model.Exam)
		prepare func(t *testing.T, h *harness)
		want    *AttemptError
	}{
		{
			name:  "draft exam",
			tweak: func(e *model.Exam) { e.Status = model.ExamStatusDraft },
			want:  ErrExamNotAvailable,
		},
		{
			name:  "before start date",
			tweak: func(e *model.Exam) { e.StartDate = &future },
			want:  ErrExamNotAvailable,
		},
		{
			name:  "after end date",
			tweak: func(e *model.Exam) { e.EndDate = &past },
			want:  ErrExamNotAvailable,
		},
		{
			name:  "window closes within the second",
			tweak: func(e *model.Exam) { e.EndDate = &closing },
			want:  ErrExamNotAvailable,
		},
		{
			name:  "private exam not assigned",
			tweak: func(e *model.Exam) { e.IsPublic = false },
			want:  ErrNotAssigned,
		},
		{
			name:  "attempt limit reached",
			tweak: func(e *model.Exam) { e.Settings.MaxAttempts = 1 },
			prepare: func(t *testing.T, h *harness) {
				a := h.start(t)
				if _, err := h.svc.SubmitAttempt(ctx, a.ID, testStudent, nil); err != nil {
					t.Fatalf("SubmitAttempt: %v", err)
				}
			},
			want: ErrMaxAttempts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.tweak)
			if tt.prepare != nil {
				tt.prepare(t, h)
			}

			decision, err := h.svc.ResolveStartPolicy(ctx, testStudent, h.exam.ID)
			if err != nil {
				t.Fatalf("ResolveStartPolicy: %v", err)
			}
			if decision.Allowed || decision.Reason != tt.want.Code {
				t.Errorf("decision = %+v, want denial %s", decision, tt.want.Code)
			}

			_, err = h.svc.StartAttempt(ctx, testStudent, h.exam.ID, model.ClientContext{})
			if !errors.Is(err, tt.want) {
				t.Errorf("StartAttempt error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStartPolicyAllowsAssignedStudent(t *testing.T) {
	h := newHarness(t, func(e *model.Exam) { e.IsPublic = false })
	h.catalog.assigned[testStudent] = true

	decision, err := h.svc.ResolveStartPolicy(context.Background(), testStudent, h.exam.ID)
	if err != nil {
		t.Fatalf("ResolveStartPolicy: %v", err)
	}
	if !decision.Allowed || decision.AttemptNumber != 1 || decision.TimeBudgetSeconds != 60 {
		t.Errorf("decision = %+v", decision)
	}
}

func TestStartPolicyRetakeNumbering(t *testing.T) {
	h := newHarness(t, func(e *model.Exam) {
		e.Settings.MaxAttempts = 1
		e.Settings.AllowRetake = true
	})
	first := h.start(t)
	if _, err := h.svc.SubmitAttempt(context.Background(), first.ID, testStudent, nil); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}

	second := h.start(t)
	if second.AttemptNumber != 2 {
		t.Errorf("AttemptNumber = %d, want 2", second.AttemptNumber)
	}
}

func TestStartAttemptEmptyExam(t *testing.T) {
	h := newHarness(t, nil)
	h.catalog.questions[h.exam.ID] = nil

	_, err := h.svc.StartAttempt(context.Background(), testStudent, h.exam.ID, model.ClientContext{})
	if !errors.Is(err, ErrNoQuestions) {
		t.Errorf("err = %v, want ErrNoQuestions", err)
	}
}

func TestStartAttemptResumesInProgress(t *testing.T) {
	h := newHarness(t, nil)
	first := h.start(t)
	h.clock.Advance(10 * time.Second)
	again := h.start(t)

	if again.ID != first.ID {
		t.Fatalf("resume returned %s, want %s", again.ID, first.ID)
	}
	if got := again.RemainingSeconds(h.clock.Now()); got != 50 {
		t.Errorf("remaining = %d, want 50", got)
	}
}

func TestConcurrentStartsYieldOneAttempt(t *testing.T) {
	h := newHarness(t, nil)

	const n = 8
	ids := make([]uuid.UUID, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := h.svc.StartAttempt(context.Background(), testStudent, h.exam.ID, model.ClientContext{})
			errs[i] = err
			if a != nil {
				ids[i] = a.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("start %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("start %d returned %s, want %s", i, ids[i], ids[0])
		}
	}
	if got := h.store.count(); got != 1 {
		t.Errorf("stored attempts = %d, want 1", got)
	}
}

func TestSaveAnswerIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	a := h.start(t)

	first := h.save(t, a.ID, h.choice, model.StringAnswer("b"))
	h.clock.Advance(time.Second)
	second := h.save(t, a.ID, h.choice, model.StringAnswer("b"))

	if first.AnswerID != second.AnswerID {
		t.Errorf("answer id changed: %s -> %s", first.AnswerID, second.AnswerID)
	}
	if second.IsCorrect == nil || !*second.IsCorrect || second.MarksAwarded != 5 {
		t.Errorf("result = %+v, want correct with 5 marks", second)
	}

	stored, _ := h.store.GetAttempt(context.Background(), a.ID)
	if len(stored.Answers) != 1 {
		t.Errorf("stored answers = %d, want 1", len(stored.Answers))
	}
}

func TestSaveAnswerRejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		in   func(h *harness, a *model.Attempt) SaveAnswerInput
		want *AttemptError
	}{
		{
			name: "other student",
			in: func(h *harness, a *model.Attempt) SaveAnswerInput {
				return SaveAnswerInput{AttemptID: a.ID, StudentID: testStudent + 1, QuestionID: h.choice.ID, Value: model.StringAnswer("b")}
			},
			want: ErrAttemptNotOwned,
		},
		{
			name: "question outside attempt",
			in: func(h *harness, a *model.Attempt) SaveAnswerInput {
				return SaveAnswerInput{AttemptID: a.ID, StudentID: testStudent, QuestionID: uuid.New(), Value: model.StringAnswer("b")}
			},
			want: ErrQuestionNotInAttempt,
		},
		{
			name: "unknown option",
			in: func(h *harness, a *model.Attempt) SaveAnswerInput {
				return SaveAnswerInput{AttemptID: a.ID, StudentID: testStudent, QuestionID: h.choice.ID, Value: model.StringAnswer("z")}
			},
			want: ErrUnknownOption,
		},
		{
			name: "wrong value shape",
			in: func(h *harness, a *model.Attempt) SaveAnswerInput {
				return SaveAnswerInput{AttemptID: a.ID, StudentID: testStudent, QuestionID: h.choice.ID, Value: model.BoolAnswer(true)}
			},
			want: ErrAnswerTypeMismatch,
		},
		{
			name: "after deadline",
			in: func(h *harness, a *model.Attempt) SaveAnswerInput {
				h.clock.Advance(61 * time.Second)
				return SaveAnswerInput{AttemptID: a.ID, StudentID: testStudent, QuestionID: h.choice.ID, Value: model.StringAnswer("b")}
			},
			want: ErrAttemptExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			a := h.start(t)
			_, err := h.svc.SaveAnswer(ctx, tt.in(h, a))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSaveAnswerAfterSubmit(t *testing.T) {
	h := newHarness(t, nil)
	a := h.start(t)
	if _, err := h.svc.SubmitAttempt(context.Background(), a.ID, testStudent, nil); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}

	_, err := h.svc.SaveAnswer(context.Background(), SaveAnswerInput{
		AttemptID: a.ID, StudentID: testStudent, QuestionID: h.choice.ID, Value: model.StringAnswer("b"),
	})
	if !errors.Is(err, ErrAttemptNotInProgress) {
		t.Errorf("err = %v, want ErrAttemptNotInProgress", err)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	a := h.start(t)
	h.save(t, a.ID, h.choice, model.StringAnswer("b"))

	first, err := h.svc.SubmitAttempt(context.Background(), a.ID, testStudent, nil)
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	h.clock.Advance(5 * time.Second)
	second, err := h.svc.SubmitAttempt(context.Background(), a.ID, testStudent, nil)
	if err != nil {
		t.Fatalf("second SubmitAttempt: %v", err)
	}

	if *first.Score != 5 || *second.Score != 5 || !second.EndTime.Equal(*first.EndTime) {
		t.Errorf("first = %+v, second = %+v", first, second)
	}
}

func TestSubmitLateAppliesPenalty(t *testing.T) {
	h := newHarness(t, func(e *model.Exam) {
		e.Settings.AllowLateSubmission = true
		e.Settings.LateSubmissionGraceSeconds = 300
		e.Settings.LateSubmissionPenalty = 10
	})
	a := h.start(t)
	h.save(t, a.ID, h.choice, model.StringAnswer("b"))

	h.clock.Advance(90 * time.Second)
	res, err := h.svc.SubmitAttempt(context.Background(), a.ID, testStudent, nil)
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if !res.SubmittedLate || *res.Score != 4.5 {
		t.Errorf("result = %+v, want late with score 4.5", res)
	}
}

func TestSubmitAfterHardDeadline(t *testing.T) {
	h := newHarness(t, nil)
	a := h.start(t)
	h.save(t, a.ID, h.choice, model.StringAnswer("b"))

	h.clock.Advance(2 * time.Minute)
	_, err := h.svc.SubmitAttempt(context.Background(), a.ID, testStudent, nil)
	if !errors.Is(err, ErrSubmissionWindowClosed) {
		t.Fatalf("err = %v, want ErrSubmissionWindowClosed", err)
	}

	stored, _ := h.store.GetAttempt(context.Background(), a.ID)
	if stored.Status != model.AttemptStatusAutoSubmitted || *stored.Score != 5 {
		t.Errorf("stored = %s score %v, want auto_submitted with 5", stored.Status, stored.Score)
	}
}

func TestSweepFinalizesExpiredAttempts(t *testing.T) {
	ctx := context.Background()

	t.Run("auto submitted", func(t *testing.T) {
		h := newHarness(t, nil)
		a := h.start(t)
		h.save(t, a.ID, h.choice, model.StringAnswer("b"))

		h.clock.Advance(30 * time.Second)
		if n, _ := h.svc.SweepExpiredAttempts(ctx, h.clock.Now()); n != 0 {
			t.Fatalf("swept %d before the deadline", n)
		}

		h.clock.Advance(31 * time.Second)
		n, err := h.svc.SweepExpiredAttempts(ctx, h.clock.Now())
		if err != nil || n != 1 {
			t.Fatalf("sweep = %d, %v; want 1", n, err)
		}
		stored, _ := h.store.GetAttempt(ctx, a.ID)
		if stored.Status != model.AttemptStatusAutoSubmitted {
			t.Errorf("status = %s, want auto_submitted", stored.Status)
		}
		if stored.TimeTakenSeconds == nil || *stored.TimeTakenSeconds != 61 {
			t.Errorf("time taken = %v, want 61", stored.TimeTakenSeconds)
		}

		if n, _ := h.svc.SweepExpiredAttempts(ctx, h.clock.Now()); n != 0 {
			t.Errorf("second sweep finalized %d", n)
		}
	})

	t.Run("abandoned when silent", func(t *testing.T) {
		h := newHarness(t, nil)
		a := h.start(t)

		h.clock.Advance(time.Minute + 31*time.Minute)
		if _, err := h.svc.SweepExpiredAttempts(ctx, h.clock.Now()); err != nil {
			t.Fatalf("sweep: %v", err)
		}
		stored, _ := h.store.GetAttempt(ctx, a.ID)
		if stored.Status != model.AttemptStatusAbandoned {
			t.Errorf("status = %s, want abandoned", stored.Status)
		}
	})

	t.Run("auto submit disabled", func(t *testing.T) {
		off := false
		h := newHarness(t, func(e *model.Exam) { e.Settings.AutoSubmit = &off })
		a := h.start(t)

		h.clock.Advance(61 * time.Second)
		res, err := h.svc.AutoSubmit(ctx, a.ID)
		if err != nil {
			t.Fatalf("AutoSubmit: %v", err)
		}
		if res.Status != model.AttemptStatusAbandoned {
			t.Errorf("status = %s, want abandoned", res.Status)
		}
	})
}

func TestHeartbeatReportsRemainingTime(t *testing.T) {
	h := newHarness(t, nil)
	a := h.start(t)
	h.clock.Advance(20 * time.Second)

	res, err := h.svc.Heartbeat(context.Background(), a.ID, testStudent)
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if res.RemainingSeconds != 40 || res.Status != model.AttemptStatusInProgress {
		t.Errorf("heartbeat = %+v", res)
	}

	stored, _ := h.store.GetAttempt(context.Background(), a.ID)
	if !stored.LastSeenAt.Equal(h.clock.Now()) {
		t.Errorf("last seen = %v, want %v", stored.LastSeenAt, h.clock.Now())
	}
	if stored.Version != a.Version {
		t.Errorf("heartbeat bumped version %d -> %d", a.Version, stored.Version)
	}
}

func TestManualGradeFlipsPassed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	a := h.start(t)
	h.save(t, a.ID, h.choice, model.StringAnswer("b"))
	essay := h.save(t, a.ID, h.essay, model.StringAnswer("Subnetting membagi jaringan."))

	submitted, err := h.svc.SubmitAttempt(ctx, a.ID, testStudent, nil)
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if submitted.Status != model.AttemptStatusSubmitted || submitted.PendingManual != 1 || *submitted.Passed {
		t.Fatalf("submitted = %+v, want submitted, one pending, not passed", submitted)
	}

	choiceAns := h.choiceAnswerID(t, a.ID)
	rejections := []struct {
		name string
		in   ManualGradeInput
		want *AttemptError
	}{
		{"objective answer", ManualGradeInput{AttemptID: a.ID, AnswerID: choiceAns, Marks: 1}, ErrAnswerNotGradable},
		{"above max", ManualGradeInput{AttemptID: a.ID, AnswerID: essay.AnswerID, Marks: 6}, ErrInvalidMarks},
		{"negative", ManualGradeInput{AttemptID: a.ID, AnswerID: essay.AnswerID, Marks: -1}, ErrInvalidMarks},
		{"unknown answer", ManualGradeInput{AttemptID: a.ID, AnswerID: uuid.New(), Marks: 1}, ErrAnswerNotFound},
	}
	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.ManualGrade(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	graded, err := h.svc.ManualGrade(ctx, ManualGradeInput{AttemptID: a.ID, AnswerID: essay.AnswerID, Marks: 4, GraderID: 7})
	if err != nil {
		t.Fatalf("ManualGrade: %v", err)
	}
	if graded.Status != model.AttemptStatusGraded || *graded.Score != 9 || !*graded.Passed || graded.PendingManual != 0 {
		t.Errorf("graded = %+v, want graded 9 passed", graded)
	}

	regraded, err := h.svc.ManualGrade(ctx, ManualGradeInput{AttemptID: a.ID, AnswerID: essay.AnswerID, Marks: 0, GraderID: 7})
	if err != nil {
		t.Fatalf("regrade: %v", err)
	}
	if *regraded.Score != 5 || *regraded.Passed {
		t.Errorf("regraded = %+v, want 5 not passed", regraded)
	}
}

func (h *harness) choiceAnswerID(t *testing.T, attemptID uuid.UUID) uuid.UUID {
	t.Helper()
	a, _ := h.store.GetAttempt(context.Background(), attemptID)
	if ans := a.AnswerFor(h.choice.ID); ans != nil {
		return ans.ID
	}
	t.Fatal("choice answer missing")
	return uuid.Nil
}

func TestManualGradeRejectedStatuses(t *testing.T) {
	tests := []struct {
		name   string
		finish func(t *testing.T, h *harness, id uuid.UUID)
	}{
		{name: "in progress", finish: func(*testing.T, *harness, uuid.UUID) {}},
		{
			name: "abandoned",
			finish: func(t *testing.T, h *harness, _ uuid.UUID) {
				h.clock.Advance(time.Minute + 31*time.Minute)
				if _, err := h.svc.SweepExpiredAttempts(context.Background(), h.clock.Now()); err != nil {
					t.Fatalf("sweep: %v", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			a := h.start(t)
			essay := h.save(t, a.ID, h.essay, model.StringAnswer("draft"))
			tt.finish(t, h, a.ID)

			_, err := h.svc.ManualGrade(context.Background(), ManualGradeInput{AttemptID: a.ID, AnswerID: essay.AnswerID, Marks: 3})
			if !errors.Is(err, ErrAttemptNotGradable) {
				t.Errorf("err = %v, want ErrAttemptNotGradable", err)
			}
		})
	}
}

func TestSecurityViolationTerminates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(e *model.Exam) {
		e.Settings.TabSwitchDetection = true
		e.Settings.MaxTabSwitches = 2
	})
	a := h.start(t)

	for i := 0; i < 3; i++ {
		if _, err := h.svc.RecordSecurityEvent(ctx, SecurityEventInput{
			AttemptID: a.ID, StudentID: testStudent, Type: model.EventTabSwitch,
		}); err != nil {
			t.Fatalf("event %d: %v", i+1, err)
		}
	}

	stored, _ := h.store.GetAttempt(ctx, a.ID)
	if stored.Status != model.AttemptStatusTerminated || !stored.IsUnderReview || stored.TerminationReason == nil {
		t.Fatalf("attempt = %s review=%v, want terminated under review", stored.Status, stored.IsUnderReview)
	}

	if len(h.events.events) != 3 {
		t.Fatalf("events = %d, want 3", len(h.events.events))
	}
	for i, ev := range h.events.events {
		if ev.Sequence != i+1 || ev.Severity != model.SeverityMedium {
			t.Errorf("event %d = seq %d severity %s", i, ev.Sequence, ev.Severity)
		}
	}

	_, err := h.svc.RecordSecurityEvent(ctx, SecurityEventInput{AttemptID: a.ID, StudentID: testStudent, Type: model.EventTabSwitch})
	if !errors.Is(err, ErrAttemptNotInProgress) {
		t.Errorf("after termination err = %v, want ErrAttemptNotInProgress", err)
	}
}

func TestSecurityEventValidation(t *testing.T) {
	h := newHarness(t, nil)
	a := h.start(t)

	tests := []struct {
		name string
		in   SecurityEventInput
	}{
		{"unknown type", SecurityEventInput{AttemptID: a.ID, StudentID: testStudent, Type: "teleport"}},
		{"bad details", SecurityEventInput{AttemptID: a.ID, StudentID: testStudent, Type: model.EventCopyAttempt, Details: []byte("{oops")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.RecordSecurityEvent(context.Background(), tt.in); !errors.Is(err, ErrInvalidEventType) {
				t.Errorf("err = %v, want ErrInvalidEventType", err)
			}
		})
	}
}

func TestTerminateByAdmin(t *testing.T) {
	h := newHarness(t, nil)
	a := h.start(t)
	actor := 7

	res, err := h.svc.TerminateAttempt(context.Background(), a.ID, "caught with notes", &actor)
	if err != nil {
		t.Fatalf("TerminateAttempt: %v", err)
	}
	if res.Status != model.AttemptStatusTerminated || !res.IsUnderReview {
		t.Errorf("result = %+v", res)
	}

	if _, err := h.svc.TerminateAttempt(context.Background(), a.ID, "again", &actor); !errors.Is(err, ErrAttemptNotInProgress) {
		t.Errorf("second terminate err = %v", err)
	}
}

func TestStatisticsCountFinalizedOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	a := h.start(t)
	h.save(t, a.ID, h.choice, model.StringAnswer("b"))
	if _, err := h.svc.SubmitAttempt(ctx, a.ID, testStudent, nil); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}

	if _, err := h.svc.StartAttempt(ctx, testStudent+1, h.exam.ID, model.ClientContext{}); err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}

	st, err := h.svc.GetAttemptStatistics(ctx, h.exam.ID)
	if err != nil {
		t.Fatalf("GetAttemptStatistics: %v", err)
	}
	if st.TotalAttempts != 1 || st.InProgress != 1 || st.AverageScore != 5 || st.PassRate != 0 {
		t.Errorf("statistics = %+v", st)
	}
}

func TestGetAttemptPaperHidesAnswerKey(t *testing.T) {
	h := newHarness(t, func(e *model.Exam) { e.Settings.RandomizeOptions = true })
	a := h.start(t)
	h.save(t, a.ID, h.choice, model.StringAnswer("a"))

	paper, err := h.svc.GetAttemptPaper(context.Background(), a.ID, testStudent)
	if err != nil {
		t.Fatalf("GetAttemptPaper: %v", err)
	}
	if len(paper.Questions) != 2 || len(paper.Answers) != 1 {
		t.Fatalf("paper = %d questions, %d answers", len(paper.Questions), len(paper.Answers))
	}

	again, _ := h.svc.GetAttemptPaper(context.Background(), a.ID, testStudent)
	for i := range paper.Questions {
		for j := range paper.Questions[i].Options {
			if paper.Questions[i].Options[j].ID != again.Questions[i].Options[j].ID {
				t.Errorf("option order changed between reads")
			}
		}
	}
}

func TestStartAttemptNoTimeLeftConsumesNothing(t *testing.T) {
	closing := newFakeClock().Now().Add(400 * time.Millisecond)
	h := newHarness(t, func(e *model.Exam) {
		e.EndDate = &closing
		e.Settings.MaxAttempts = 1
	})

	if _, err := h.svc.StartAttempt(context.Background(), testStudent, h.exam.ID, model.ClientContext{}); !errors.Is(err, ErrExamNotAvailable) {
		t.Fatalf("err = %v, want ErrExamNotAvailable", err)
	}
	if n := len(h.store.attempts); n != 0 {
		t.Errorf("%d attempts stored, want 0", n)
	}

	// Once the window widens again the first attempt is still available.
	later := closing.Add(time.Hour)
	h.exam.EndDate = &later
	if a := h.start(t); a.AttemptNumber != 1 {
		t.Errorf("AttemptNumber = %d, want 1", a.AttemptNumber)
	}
}
