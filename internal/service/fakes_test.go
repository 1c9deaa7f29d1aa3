package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-engine/internal/grading"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

// fakeClock is a settable clock shared by the service and the test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memStore is an in-memory AttemptStore with the same conflict rules as Postgres.
type memStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.Attempt
}

func newMemStore() *memStore {
	return &memStore{attempts: map[uuid.UUID]*model.Attempt{}}
}

func cloneAttempt(a *model.Attempt) *model.Attempt {
	c := *a
	c.Answers = append([]model.Answer(nil), a.Answers...)
	c.QuestionOrder = append([]model.QuestionRef(nil), a.QuestionOrder...)
	return &c
}

func (s *memStore) CreateAttempt(_ context.Context, a *model.Attempt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.attempts {
		if other.ExamID != a.ExamID || other.StudentID != a.StudentID {
			continue
		}
		if other.Status == model.AttemptStatusInProgress || other.AttemptNumber == a.AttemptNumber {
			return false, nil
		}
	}
	s.attempts[a.ID] = cloneAttempt(a)
	return true, nil
}

func (s *memStore) GetAttempt(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAttempt(a), nil
}

func (s *memStore) FindInProgress(_ context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.ExamID == examID && a.StudentID == studentID && a.Status == model.AttemptStatusInProgress {
			return cloneAttempt(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) History(_ context.Context, examID uuid.UUID, studentID int) (model.AttemptHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var h model.AttemptHistory
	for _, a := range s.attempts {
		if a.ExamID != examID || a.StudentID != studentID {
			continue
		}
		if a.IsTerminal() {
			h.TerminalCount++
		}
		if a.AttemptNumber > h.MaxAttemptNumber {
			h.MaxAttemptNumber = a.AttemptNumber
		}
	}
	return h, nil
}

func (s *memStore) SaveAnswer(_ context.Context, ans *model.Answer) (*model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[ans.AttemptID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.Status != model.AttemptStatusInProgress {
		return nil, repository.ErrAttemptNotOpen
	}
	for i := range a.Answers {
		cur := &a.Answers[i]
		if cur.QuestionID != ans.QuestionID {
			continue
		}
		if ans.SavedAt.Before(cur.SavedAt) {
			out := *cur
			return &out, nil
		}
		id := cur.ID
		*cur = *ans
		cur.ID = id
		a.Version++
		out := *cur
		return &out, nil
	}
	a.Answers = append(a.Answers, *ans)
	a.Version++
	out := *ans
	return &out, nil
}

func (s *memStore) UpdateAttempt(_ context.Context, a *model.Attempt, expectedVersion int, answers []model.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.attempts[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return repository.ErrVersionConflict
	}

	next := cloneAttempt(a)
	next.Answers = append([]model.Answer(nil), cur.Answers...)
	for _, upd := range answers {
		for i := range next.Answers {
			if next.Answers[i].ID == upd.ID {
				next.Answers[i] = upd
			}
		}
	}
	next.Security = cur.Security
	next.LastSeenAt = cur.LastSeenAt
	next.Version = expectedVersion + 1
	s.attempts[a.ID] = next
	return nil
}

func (s *memStore) BumpSecurityCounters(_ context.Context, attemptID uuid.UUID, t model.SecurityEventType, _ time.Time) (model.SecurityCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return model.SecurityCounters{}, repository.ErrNotFound
	}
	if a.Status != model.AttemptStatusInProgress {
		return model.SecurityCounters{}, repository.ErrAttemptNotOpen
	}
	a.Security.Record(t)
	return a.Security, nil
}

func (s *memStore) ListExpired(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, a := range s.attempts {
		if a.Status == model.AttemptStatusInProgress && !now.Before(a.HardDeadline()) {
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

func (s *memStore) ExamStatistics(_ context.Context, examID uuid.UUID) (*model.AttemptStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []*model.ScoredResult
	inProgress := 0
	for _, a := range s.attempts {
		if a.ExamID != examID {
			continue
		}
		if a.Status == model.AttemptStatusInProgress {
			inProgress++
			continue
		}
		results = append(results, a.Result())
	}
	st := grading.Summarize(results)
	st.InProgress = inProgress
	return &st, nil
}

func (s *memStore) touch(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.attempts[id]; ok {
		a.LastSeenAt = at
	}
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

// fakeCatalog serves one version of each question.
type fakeCatalog struct {
	exams     map[uuid.UUID]*model.Exam
	questions map[uuid.UUID][]model.Question
	assigned  map[int]bool
	scale     []model.GradeBand
}

func (c *fakeCatalog) GetExam(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	e, ok := c.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *e
	return &out, nil
}

func (c *fakeCatalog) ListQuestions(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	return append([]model.Question(nil), c.questions[examID]...), nil
}

func (c *fakeCatalog) GetQuestions(_ context.Context, examID uuid.UUID, refs []model.QuestionRef) (map[uuid.UUID]*model.Question, error) {
	out := make(map[uuid.UUID]*model.Question, len(refs))
	for _, ref := range refs {
		for i, q := range c.questions[examID] {
			if q.ID == ref.QuestionID && q.Version == ref.Version {
				out[q.ID] = &c.questions[examID][i]
			}
		}
	}
	return out, nil
}

func (c *fakeCatalog) IsAssigned(_ context.Context, _ uuid.UUID, studentID int) (bool, error) {
	return c.assigned[studentID], nil
}

func (c *fakeCatalog) SystemGradeScale(context.Context) ([]model.GradeBand, error) {
	return c.scale, nil
}

// eventSink records enqueued security events.
type eventSink struct {
	mu     sync.Mutex
	events []model.SecurityEvent
}

func (s *eventSink) EnqueueSecurityEvent(_ context.Context, ev *model.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return nil
}

// heartbeatSink applies heartbeats straight to the store.
type heartbeatSink struct{ store *memStore }

func (h heartbeatSink) EnqueueHeartbeat(_ context.Context, attemptID uuid.UUID, at time.Time) error {
	h.store.touch(attemptID, at)
	return nil
}
