package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   response.ErrCode
	}{
		{"policy denial", service.ErrMaxAttempts, http.StatusForbidden, response.ErrMaxAttempts},
		{"not assigned", service.ErrNotAssigned, http.StatusForbidden, response.ErrNotAssigned},
		{"expired", service.ErrAttemptExpired, http.StatusGone, response.ErrAttemptExpired},
		{"window closed", service.ErrSubmissionWindowClosed, http.StatusGone, response.ErrSubmissionClosed},
		{"not in progress", service.ErrAttemptNotInProgress, http.StatusConflict, response.ErrAttemptNotInProgress},
		{"wrapped validation", fmt.Errorf("save: %w", service.ErrUnknownOption), http.StatusUnprocessableEntity, response.ErrUnknownOption},
		{"not owned", service.ErrAttemptNotOwned, http.StatusForbidden, response.ErrAttemptNotOwned},
		{"attempt missing", service.ErrAttemptNotFound, http.StatusNotFound, response.ErrAttemptNotFound},
		{"exam not draft", service.ErrExamNotDraft, http.StatusConflict, response.ErrExamNotDraft},
		{"bad timing", fmt.Errorf("x: %w", model.ErrInvalidTimingConfig), http.StatusUnprocessableEntity, response.ErrInvalidTiming},
		{"bad question", model.ErrInvalidQuestion, http.StatusUnprocessableEntity, response.ErrValidation},
		{"duplicate target", repository.ErrDuplicate, http.StatusConflict, response.ErrDuplicateTarget},
		{"row missing", fmt.Errorf("get: %w", repository.ErrNotFound), http.StatusNotFound, response.ErrNotFound},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, response.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := classify(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Errorf("classify = %d %s, want %d %s", status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestWriteErrorCarriesAttemptID(t *testing.T) {
	id := uuid.New()
	err := fmt.Errorf("start: %w", &service.AttemptError{Code: "ATTEMPT_IN_PROGRESS", Kind: service.KindPolicy, AttemptID: &id})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	writeError(c, zerolog.Nop(), err)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	var body struct {
		Data  map[string]string   `json:"data"`
		Error *response.ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == nil || body.Error.Code != response.ErrAttemptInProgress {
		t.Errorf("error = %+v", body.Error)
	}
	if body.Data["attempt_id"] != id.String() {
		t.Errorf("attempt_id = %q, want %s", body.Data["attempt_id"], id)
	}
}

func TestFingerprinter(t *testing.T) {
	a := NewFingerprinter("school-secret")
	b := NewFingerprinter("other-secret")
	long := NewFingerprinter(strings.Repeat("k", 100))

	if a.Digest("") != "" {
		t.Error("empty fingerprint must stay empty")
	}
	d := a.Digest("device-123")
	if len(d) != 64 || d != a.Digest("device-123") {
		t.Errorf("digest %q is not a stable 32-byte hex", d)
	}
	if d == b.Digest("device-123") {
		t.Error("different keys produced the same digest")
	}
	if long.Digest("device-123") == "" {
		t.Error("long key should still produce a digest")
	}
}

func TestAttemptRoutesRejectBadInput(t *testing.T) {
	h := NewAttemptHandler(nil, NewFingerprinter("k"), zerolog.Nop())

	withClaims := func(next gin.HandlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set(middleware.ContextKeyClaims, &service.Claims{TokenType: service.TokenTypeStudent, UserID: 42})
			next(c)
		}
	}

	r := gin.New()
	r.GET("/attempts/:id", withClaims(h.GetAttempt))
	r.POST("/attempts/:id/submit", withClaims(h.Submit))
	r.GET("/anon/attempts/:id", h.GetAttempt)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantCode   response.ErrCode
	}{
		{"malformed attempt id", http.MethodGet, "/attempts/not-a-uuid", http.StatusBadRequest, response.ErrInvalidID},
		{"malformed submit id", http.MethodPost, "/attempts/123/submit", http.StatusBadRequest, response.ErrInvalidID},
		{"missing claims", http.MethodGet, "/anon/attempts/" + uuid.NewString(), http.StatusUnauthorized, response.ErrTokenRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			var body response.Response
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error == nil || body.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want %s", body.Error, tt.wantCode)
			}
		})
	}
}
