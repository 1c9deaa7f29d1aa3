package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/validator"
)

// ExamHandler handles exam management endpoints.
type ExamHandler struct {
	examService *service.ExamService
	log         zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		examService: examService,
		log:         log.With().Str("component", "exam_handler").Logger(),
	}
}

// CreateExam godoc
// POST /api/v1/admin/exams
// Creates a new draft exam.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam := &model.Exam{
		Title:           req.Title,
		AuthorID:        claims.UserID,
		IsPublic:        req.IsPublic,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		DurationMinutes: req.DurationMinutes,
		PassMark:        req.PassMark,
		Settings:        req.Settings,
		GradeScale:      req.GradeScale,
	}
	if err := h.examService.Create(c.Request.Context(), exam); err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// GetExam godoc
// GET /api/v1/admin/exams/:id
func (h *ExamHandler) GetExam(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	exam, err := h.examService.GetExam(c.Request.Context(), examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	questions, err := h.examService.ListQuestions(c.Request.Context(), examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam, "questions": questions})
}

// AddQuestion godoc
// POST /api/v1/admin/exams/:id/questions
func (h *ExamHandler) AddQuestion(c *gin.Context) {
	h.saveQuestion(c, false)
}

// UpdateQuestion godoc
// PUT /api/v1/admin/exams/:id/questions/:question_id
// Stores a new version; attempts already started keep the version they pinned.
func (h *ExamHandler) UpdateQuestion(c *gin.Context) {
	h.saveQuestion(c, true)
}

func (h *ExamHandler) saveQuestion(c *gin.Context, update bool) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q := &model.Question{
		ExamID:           examID,
		Type:             req.Type,
		Prompt:           req.Prompt,
		MediaURL:         req.MediaURL,
		Options:          req.Options,
		AcceptedAnswers:  req.AcceptedAnswers,
		Marks:            req.Marks,
		NegativeMarks:    req.NegativeMarks,
		TimeLimitSeconds: req.TimeLimitSeconds,
		Difficulty:       req.Difficulty,
		OrderNum:         req.OrderNum,
	}
	status := http.StatusCreated
	if update {
		if q.ID, ok = pathUUID(c, "question_id"); !ok {
			return
		}
		status = http.StatusOK
	}

	if err := h.examService.AddQuestion(c.Request.Context(), q); err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, status, gin.H{"question": q})
}

// AddTargetRule godoc
// POST /api/v1/admin/exams/:id/targets
func (h *ExamHandler) AddTargetRule(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req model.AddTargetRuleRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rule := &model.ExamTargetRule{ExamID: examID, StudentID: req.StudentID, GroupID: req.GroupID}
	if err := h.examService.AddTargetRule(c.Request.Context(), rule); err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"rule": rule})
}

// GetTargetRules godoc
// GET /api/v1/admin/exams/:id/targets
func (h *ExamHandler) GetTargetRules(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	rules, err := h.examService.GetTargetRules(c.Request.Context(), examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if rules == nil {
		rules = []model.ExamTargetRule{}
	}
	response.Success(c, http.StatusOK, gin.H{"rules": rules})
}

// PublishExam godoc
// POST /api/v1/admin/exams/:id/publish
func (h *ExamHandler) PublishExam(c *gin.Context) {
	h.transition(c, h.examService.Publish, model.ExamStatusPublished)
}

// ArchiveExam godoc
// POST /api/v1/admin/exams/:id/archive
func (h *ExamHandler) ArchiveExam(c *gin.Context) {
	h.transition(c, h.examService.Archive, model.ExamStatusArchived)
}

// RefreshCache godoc
// POST /api/v1/admin/exams/:id/refresh-cache
func (h *ExamHandler) RefreshCache(c *gin.Context) {
	h.transition(c, h.examService.RefreshCache, model.ExamStatusPublished)
}

func (h *ExamHandler) transition(c *gin.Context, fn func(ctx context.Context, id uuid.UUID) error, status model.ExamStatus) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), examID); err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam_id": examID, "status": status})
}
