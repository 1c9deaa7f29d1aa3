package handler

import (
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

// GradingHandler handles admin endpoints that act on attempts.
type GradingHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
}

// NewGradingHandler creates a new GradingHandler.
func NewGradingHandler(attemptService *service.AttemptService, log zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "grading_handler").Logger(),
	}
}

// GetAttempt godoc
// GET /api/v1/admin/attempts/:id
func (h *GradingHandler) GetAttempt(c *gin.Context) {
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	attempt, err := h.attemptService.GetAttempt(c.Request.Context(), attemptID, 0)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt, "result": attempt.Result()})
}

// GradeAnswer godoc
// PUT /api/v1/admin/attempts/:id/answers/:answer_id/grade
func (h *GradingHandler) GradeAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	answerID, ok := pathUUID(c, "answer_id")
	if !ok {
		return
	}

	var req model.ManualGradeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attemptService.ManualGrade(c.Request.Context(), service.ManualGradeInput{
		AttemptID: attemptID,
		AnswerID:  answerID,
		Marks:     *req.MarksAwarded,
		Feedback:  req.Feedback,
		GraderID:  claims.UserID,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// TerminateAttempt godoc
// POST /api/v1/admin/attempts/:id/terminate
func (h *GradingHandler) TerminateAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req model.TerminateAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	actor := claims.UserID
	res, err := h.attemptService.TerminateAttempt(c.Request.Context(), attemptID, req.Reason, &actor)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// ListSecurityEvents godoc
// GET /api/v1/admin/attempts/:id/security-events
func (h *GradingHandler) ListSecurityEvents(c *gin.Context) {
	attemptID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	events, err := h.attemptService.ListSecurityEvents(c.Request.Context(), attemptID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"events": events})
}

// Sweep godoc
// POST /api/v1/admin/attempts/sweep
// Runs the expiry sweep immediately instead of waiting for the next tick.
func (h *GradingHandler) Sweep(c *gin.Context) {
	n, err := h.attemptService.SweepExpiredAttempts(c.Request.Context(), timeNow())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"finalized": n})
}

// GetStatistics godoc
// GET /api/v1/admin/exams/:id/statistics
func (h *GradingHandler) GetStatistics(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	st, err := h.attemptService.GetAttemptStatistics(c.Request.Context(), examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"statistics": st})
}

func pathUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
