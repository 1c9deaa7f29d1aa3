package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
	ws "github.com/stemsi/exstem-engine/internal/websocket"
)

// streamStore holds a single attempt for the stream tests.
type streamStore struct {
	mu      sync.Mutex
	attempt *model.Attempt
}

func (s *streamStore) CreateAttempt(context.Context, *model.Attempt) (bool, error) {
	return false, nil
}

func (s *streamStore) GetAttempt(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt == nil || s.attempt.ID != id {
		return nil, repository.ErrNotFound
	}
	out := *s.attempt
	out.Answers = append([]model.Answer(nil), s.attempt.Answers...)
	return &out, nil
}

func (s *streamStore) FindInProgress(context.Context, uuid.UUID, int) (*model.Attempt, error) {
	return nil, repository.ErrNotFound
}

func (s *streamStore) History(context.Context, uuid.UUID, int) (model.AttemptHistory, error) {
	return model.AttemptHistory{}, nil
}

func (s *streamStore) SaveAnswer(_ context.Context, ans *model.Answer) (*model.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt.Status != model.AttemptStatusInProgress {
		return nil, repository.ErrAttemptNotOpen
	}
	s.attempt.Answers = append(s.attempt.Answers, *ans)
	s.attempt.Version++
	out := *ans
	return &out, nil
}

func (s *streamStore) UpdateAttempt(context.Context, *model.Attempt, int, []model.Answer) error {
	return repository.ErrVersionConflict
}

func (s *streamStore) BumpSecurityCounters(context.Context, uuid.UUID, model.SecurityEventType, time.Time) (model.SecurityCounters, error) {
	return model.SecurityCounters{}, repository.ErrAttemptNotOpen
}

func (s *streamStore) ListExpired(context.Context, time.Time, int) ([]uuid.UUID, error) {
	return nil, nil
}

func (s *streamStore) ExamStatistics(context.Context, uuid.UUID) (*model.AttemptStatistics, error) {
	return &model.AttemptStatistics{}, nil
}

func (s *streamStore) answers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempt.Answers)
}

// streamCatalog serves one pinned question.
type streamCatalog struct{ question model.Question }

func (c streamCatalog) GetExam(context.Context, uuid.UUID) (*model.Exam, error) {
	return nil, repository.ErrNotFound
}

func (c streamCatalog) ListQuestions(context.Context, uuid.UUID) ([]model.Question, error) {
	return []model.Question{c.question}, nil
}

func (c streamCatalog) GetQuestions(context.Context, uuid.UUID, []model.QuestionRef) (map[uuid.UUID]*model.Question, error) {
	q := c.question
	return map[uuid.UUID]*model.Question{q.ID: &q}, nil
}

func (c streamCatalog) IsAssigned(context.Context, uuid.UUID, int) (bool, error) { return true, nil }

func (c streamCatalog) SystemGradeScale(context.Context) ([]model.GradeBand, error) { return nil, nil }

type streamFixture struct {
	server   *httptest.Server
	store    *streamStore
	question model.Question
	attempt  uuid.UUID
}

func newStreamFixture(t *testing.T, perSecond float64) *streamFixture {
	t.Helper()

	q := model.Question{
		ID: uuid.New(), Version: 1, Type: model.QuestionTypeSingleChoice, Marks: 5,
		Options: []model.Option{{ID: "a", Text: "80"}, {ID: "b", Text: "443", IsCorrect: true}},
	}
	now := time.Now().UTC()
	store := &streamStore{attempt: &model.Attempt{
		ID:                uuid.New(),
		ExamID:            uuid.New(),
		StudentID:         42,
		AttemptNumber:     1,
		Status:            model.AttemptStatusInProgress,
		StartTime:         now,
		TimeBudgetSeconds: 1800,
		TotalMarks:        5,
		QuestionOrder:     []model.QuestionRef{q.Ref()},
		LastSeenAt:        now,
		Version:           1,
	}}

	svc := service.NewAttemptService(service.AttemptDeps{
		Store:   store,
		Catalog: streamCatalog{question: q},
	}, service.AttemptConfig{}, zerolog.Nop())
	h := NewWSHandler(svc, zerolog.Nop(), nil, perSecond)

	r := gin.New()
	r.GET("/attempts/:id/stream", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{TokenType: service.TokenTypeStudent, UserID: 42})
		h.AttemptStream(c)
	})
	r.GET("/other/attempts/:id/stream", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{TokenType: service.TokenTypeStudent, UserID: 7})
		h.AttemptStream(c)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &streamFixture{server: srv, store: store, question: q, attempt: store.attempt.ID}
}

func (f *streamFixture) url(prefix string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + prefix + "/attempts/" + f.attempt.String() + "/stream"
}

func (f *streamFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url(""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

type streamReply struct {
	Event ws.Event       `json:"event"`
	Ref   string         `json:"ref"`
	Code  string         `json:"code"`
	Data  map[string]any `json:"data"`
}

func (f *streamFixture) autosave(t *testing.T, conn *websocket.Conn, ref, option string) streamReply {
	t.Helper()
	msg := map[string]any{"action": ws.ActionAutosave, "ref": ref, "q_id": f.question.ID.String(), "value": option}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply streamReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	return reply
}

func TestAttemptStreamAutosave(t *testing.T) {
	f := newStreamFixture(t, 0)
	conn := f.dial(t)

	reply := f.autosave(t, conn, "r1", "b")
	if reply.Event != ws.EventSaved || reply.Ref != "r1" {
		t.Fatalf("reply = %+v, want saved r1", reply)
	}
	if reply.Data["question_id"] != f.question.ID.String() || reply.Data["is_correct"] != true {
		t.Errorf("data = %v", reply.Data)
	}
	if n := f.store.answers(); n != 1 {
		t.Errorf("stored answers = %d, want 1", n)
	}

	reply = f.autosave(t, conn, "r2", "z")
	if reply.Event != ws.EventError || reply.Code != string(response.ErrUnknownOption) {
		t.Errorf("unknown option reply = %+v", reply)
	}
}

func TestAttemptStreamRateLimit(t *testing.T) {
	// A burst of one leaves no room for a second message within the test.
	f := newStreamFixture(t, 0.001)
	conn := f.dial(t)

	if reply := f.autosave(t, conn, "r1", "a"); reply.Event != ws.EventSaved {
		t.Fatalf("first reply = %+v, want saved", reply)
	}
	reply := f.autosave(t, conn, "r2", "b")
	if reply.Event != ws.EventError || reply.Ref != "r2" || reply.Code != string(response.ErrRateLimitExceeded) {
		t.Errorf("second reply = %+v, want rate limit error", reply)
	}
	if n := f.store.answers(); n != 1 {
		t.Errorf("stored answers = %d, want 1", n)
	}
}

func TestAttemptStreamRejectsBeforeUpgrade(t *testing.T) {
	f := newStreamFixture(t, 0)

	_, resp, err := websocket.DefaultDialer.Dial(f.url("/other"), nil)
	if err == nil {
		t.Fatal("dial succeeded for a student who does not own the attempt")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}
