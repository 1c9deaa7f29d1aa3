package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/validator"
)

var timeNow = func() time.Time { return time.Now().UTC() }

// AttemptHandler handles student-facing attempt endpoints.
type AttemptHandler struct {
	attemptService *service.AttemptService
	fingerprinter  *Fingerprinter
	log            zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService, fingerprinter *Fingerprinter, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		fingerprinter:  fingerprinter,
		log:            log.With().Str("component", "attempt_handler").Logger(),
	}
}

// GetStartPolicy godoc
// GET /api/v1/student/exams/:exam_id/policy
// Tells the client whether a new attempt may be started and with how much time.
func (h *AttemptHandler) GetStartPolicy(c *gin.Context) {
	claims, examID, ok := studentAndID(c, "exam_id")
	if !ok {
		return
	}

	decision, err := h.attemptService.ResolveStartPolicy(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"policy": decision})
}

// StartAttempt godoc
// POST /api/v1/student/exams/:exam_id/attempts
// Starts an attempt, or returns the in-progress one (idempotent).
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	claims, examID, ok := studentAndID(c, "exam_id")
	if !ok {
		return
	}

	attempt, err := h.attemptService.StartAttempt(c.Request.Context(), claims.UserID, examID, h.fingerprinter.clientContext(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"attempt":           attempt.ForStudent(),
		"deadline":          attempt.Deadline(),
		"remaining_seconds": attempt.RemainingSeconds(timeNow()),
	})
}

// GetAttempt godoc
// GET /api/v1/student/attempts/:id
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	claims, attemptID, ok := studentAndID(c, "id")
	if !ok {
		return
	}

	attempt, err := h.attemptService.GetAttempt(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.NoStore(c, http.StatusOK, gin.H{"attempt": attempt.ForStudent()})
}

// GetPaper godoc
// GET /api/v1/student/attempts/:id/paper
// Returns the questions in attempt order without answer keys.
func (h *AttemptHandler) GetPaper(c *gin.Context) {
	claims, attemptID, ok := studentAndID(c, "id")
	if !ok {
		return
	}

	paper, err := h.attemptService.GetAttemptPaper(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"paper": paper})
}

// SaveAnswer godoc
// PUT /api/v1/student/attempts/:id/answers/:question_id
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	claims, attemptID, ok := studentAndID(c, "id")
	if !ok {
		return
	}
	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attemptService.SaveAnswer(c.Request.Context(), service.SaveAnswerInput{
		AttemptID:        attemptID,
		StudentID:        claims.UserID,
		QuestionID:       questionID,
		Value:            req.Value,
		TimeSpentSeconds: req.TimeSpentSeconds,
		MarkedForReview:  req.MarkedForReview,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.NoStore(c, http.StatusOK, gin.H{"answer": res})
}

// RecordSecurityEvent godoc
// POST /api/v1/student/attempts/:id/security-events
func (h *AttemptHandler) RecordSecurityEvent(c *gin.Context) {
	claims, attemptID, ok := studentAndID(c, "id")
	if !ok {
		return
	}

	var req model.RecordSecurityEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ev, err := h.attemptService.RecordSecurityEvent(c.Request.Context(), service.SecurityEventInput{
		AttemptID:  attemptID,
		StudentID:  claims.UserID,
		Type:       req.Type,
		Details:    req.Details,
		ClientTime: req.ClientTime,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"event": ev})
}

// Heartbeat godoc
// POST /api/v1/student/attempts/:id/heartbeat
func (h *AttemptHandler) Heartbeat(c *gin.Context) {
	claims, attemptID, ok := studentAndID(c, "id")
	if !ok {
		return
	}

	res, err := h.attemptService.Heartbeat(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.NoStore(c, http.StatusOK, res)
}

// Submit godoc
// POST /api/v1/student/attempts/:id/submit
// Submitting an already finalized attempt returns its stored result.
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims, attemptID, ok := studentAndID(c, "id")
	if !ok {
		return
	}

	var req model.SubmitAttemptRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	res, err := h.attemptService.SubmitAttempt(c.Request.Context(), attemptID, claims.UserID, req.ClientRemainingSeconds)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// studentAndID reads the student claims and a UUID path parameter,
// writing the failure response itself.
func studentAndID(c *gin.Context, param string) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, id, true
}
