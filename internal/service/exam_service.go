package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

// Domain Errors
var (
	ErrExamNotDraft     = errors.New("exam status is not draft")
	ErrExamNotPublished = errors.New("exam status is not published")
)

const (
	examCacheTTL     = 10 * time.Minute
	questionCacheTTL = 24 * time.Hour
)

// ExamService handles exam lifecycle and serves exam and question snapshots
// from Redis, falling back to PostgreSQL.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	targetRepo   *repository.ExamTargetRuleRepository
	settings     *SettingService
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	targetRepo *repository.ExamTargetRuleRepository,
	settings *SettingService,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		targetRepo:   targetRepo,
		settings:     settings,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// ─── Catalog ────────────────────────────────────────────────────────

// GetExam retrieves an exam, from cache when possible.
func (s *ExamService) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	key := config.CacheKey.ExamSnapshotKey(id.String())
	var exam model.Exam
	if s.getCached(ctx, key, &exam) {
		return &exam, nil
	}

	e, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.setCached(ctx, key, e, examCacheTTL)
	return e, nil
}

// ListQuestions returns the latest version of every question of the exam.
func (s *ExamService) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	key := config.CacheKey.ExamQuestionsKey(examID.String())
	var questions []model.Question
	if s.getCached(ctx, key, &questions) {
		return questions, nil
	}

	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	s.setCached(ctx, key, questions, examCacheTTL)
	return questions, nil
}

// GetQuestions returns pinned question versions. Versions are immutable, so each
// one is cached under its own key and read with a single MGET.
func (s *ExamService) GetQuestions(ctx context.Context, examID uuid.UUID, refs []model.QuestionRef) (map[uuid.UUID]*model.Question, error) {
	out := make(map[uuid.UUID]*model.Question, len(refs))
	if len(refs) == 0 {
		return out, nil
	}

	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = config.CacheKey.QuestionVersionKey(ref.QuestionID.String(), ref.Version)
	}

	var missing []model.QuestionRef
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		s.log.Warn().Err(err).Msg("Question cache read failed, loading from database")
		missing = refs
	} else {
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				missing = append(missing, refs[i])
				continue
			}
			var q model.Question
			if err := json.Unmarshal([]byte(str), &q); err != nil || q.ExamID != examID {
				missing = append(missing, refs[i])
				continue
			}
			out[q.ID] = &q
		}
	}

	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := s.questionRepo.GetVersions(ctx, examID, missing)
	if err != nil {
		return nil, fmt.Errorf("load question versions: %w", err)
	}
	pipe := s.rdb.Pipeline()
	for id, q := range loaded {
		out[id] = q
		if data, err := json.Marshal(q); err == nil {
			pipe.Set(ctx, config.CacheKey.QuestionVersionKey(id.String(), q.Version), data, questionCacheTTL)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Question cache write failed")
	}
	return out, nil
}

// IsAssigned reports whether the exam targets the student.
func (s *ExamService) IsAssigned(ctx context.Context, examID uuid.UUID, studentID int) (bool, error) {
	return s.targetRepo.IsAssigned(ctx, examID, studentID)
}

// SystemGradeScale returns the grade scale used when an exam defines none.
func (s *ExamService) SystemGradeScale(ctx context.Context) ([]model.GradeBand, error) {
	return s.settings.GradeScale(ctx)
}

// ─── Lifecycle ──────────────────────────────────────────────────────

// Create validates and inserts a new exam as draft.
func (s *ExamService) Create(ctx context.Context, exam *model.Exam) error {
	if err := exam.Validate(); err != nil {
		return err
	}
	exam.Status = model.ExamStatusDraft
	return s.examRepo.Create(ctx, exam)
}

// AddQuestion validates and stores a question, or a new version of an existing one.
// Running attempts keep the versions they pinned.
func (s *ExamService) AddQuestion(ctx context.Context, q *model.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	if q.ID != uuid.Nil {
		existing, err := s.questionRepo.ListByExam(ctx, q.ExamID)
		if err != nil {
			return fmt.Errorf("list questions: %w", err)
		}
		found := false
		for i := range existing {
			found = found || existing[i].ID == q.ID
		}
		if !found {
			return repository.ErrNotFound
		}
	}
	if err := s.questionRepo.Create(ctx, q); err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	s.invalidate(ctx, q.ExamID)
	return nil
}

// AddTargetRule assigns an exam to a student or a group.
func (s *ExamService) AddTargetRule(ctx context.Context, rule *model.ExamTargetRule) error {
	return s.targetRepo.Create(ctx, rule)
}

// GetTargetRules retrieves target rules for an exam.
func (s *ExamService) GetTargetRules(ctx context.Context, examID uuid.UUID) ([]model.ExamTargetRule, error) {
	return s.targetRepo.ListByExam(ctx, examID)
}

// Publish validates a draft exam, warms its cache and makes it available.
func (s *ExamService) Publish(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	if err := exam.Validate(); err != nil {
		return err
	}

	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}
	for i := range questions {
		if err := questions[i].Validate(); err != nil {
			return fmt.Errorf("question %s: %w", questions[i].ID, err)
		}
	}
	if _, err := TimeBudget(exam, questions); err != nil {
		return err
	}

	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	exam.Status = model.ExamStatusPublished

	if err := s.warm(ctx, exam, questions); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Cache warm failed after publish")
	}

	s.log.Info().Str("exam_id", examID.String()).Int("questions", len(questions)).Msg("Exam published")
	return nil
}

// Archive closes a published exam to new attempts. Running attempts continue.
func (s *ExamService) Archive(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return ErrExamNotPublished
	}
	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusArchived); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	s.invalidate(ctx, examID)

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam archived")
	return nil
}

// RefreshCache re-caches a published exam and its questions.
// Called when questions are updated after publish.
func (s *ExamService) RefreshCache(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return ErrExamNotPublished
	}
	if err := s.WarmExamCache(ctx, exam); err != nil {
		return err
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Cache refreshed")
	return nil
}

// WarmExamCache loads an exam and its latest questions from PostgreSQL into Redis.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) error {
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}
	return s.warm(ctx, exam, questions)
}

func (s *ExamService) warm(ctx context.Context, exam *model.Exam, questions []model.Question) error {
	examJSON, err := json.Marshal(exam)
	if err != nil {
		return fmt.Errorf("marshal exam: %w", err)
	}
	questionsJSON, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamSnapshotKey(exam.ID.String()), examJSON, examCacheTTL)
	pipe.Set(ctx, config.CacheKey.ExamQuestionsKey(exam.ID.String()), questionsJSON, examCacheTTL)
	for i := range questions {
		data, err := json.Marshal(&questions[i])
		if err != nil {
			return fmt.Errorf("marshal question: %w", err)
		}
		pipe.Set(ctx, config.CacheKey.QuestionVersionKey(questions[i].ID.String(), questions[i].Version), data, questionCacheTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published exams into Redis on application startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(exams)).Msg("Prewarming published exams...")

	warmed := 0
	for i := range exams {
		if err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// ─── Cache helpers ──────────────────────────────────────────────────

func (s *ExamService) getCached(ctx context.Context, key string, dst interface{}) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		}
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *ExamService) setCached(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

func (s *ExamService) invalidate(ctx context.Context, examID uuid.UUID) {
	err := s.rdb.Del(ctx,
		config.CacheKey.ExamSnapshotKey(examID.String()),
		config.CacheKey.ExamQuestionsKey(examID.String()),
	).Err()
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Cache invalidation failed")
	}
}
