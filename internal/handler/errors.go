package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
)

var kindStatus = map[service.ErrorKind]int{
	service.KindPolicy:     http.StatusForbidden,
	service.KindValidation: http.StatusUnprocessableEntity,
	service.KindExpired:    http.StatusGone,
	service.KindConflict:   http.StatusConflict,
	service.KindNotFound:   http.StatusNotFound,
	service.KindForbidden:  http.StatusForbidden,
}

// writeError maps service and repository errors to the API envelope.
// Anything unrecognised is logged and reported as an internal error.
func writeError(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", response.RequestID(c)).
			Msg("Request failed")
	}

	if ae, ok := service.AsAttemptError(err); ok && ae.AttemptID != nil {
		response.FailWithData(c, status, code, gin.H{"attempt_id": ae.AttemptID})
		return
	}
	response.Fail(c, status, code)
}

func classify(err error) (int, response.ErrCode) {
	if ae, ok := service.AsAttemptError(err); ok {
		status, found := kindStatus[ae.Kind]
		if !found {
			status = http.StatusBadRequest
		}
		return status, response.ErrCode(ae.Code)
	}

	switch {
	case errors.Is(err, service.ErrExamNotDraft):
		return http.StatusConflict, response.ErrExamNotDraft
	case errors.Is(err, service.ErrExamNotPublished):
		return http.StatusConflict, response.ErrExamNotPublished
	case errors.Is(err, model.ErrInvalidTimingConfig):
		return http.StatusUnprocessableEntity, response.ErrInvalidTiming
	case errors.Is(err, model.ErrInvalidQuestion),
		errors.Is(err, model.ErrInvalidExamSettings),
		errors.Is(err, model.ErrInvalidGradeScale):
		return http.StatusUnprocessableEntity, response.ErrValidation
	case errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict, response.ErrDuplicateTarget
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, repository.ErrVersionConflict):
		return http.StatusConflict, response.ErrConflict
	}
	return http.StatusInternalServerError, response.ErrInternal
}
