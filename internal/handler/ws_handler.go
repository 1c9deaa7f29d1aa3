package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
	ws "github.com/stemsi/exstem-engine/internal/websocket"
	"golang.org/x/time/rate"
)

const wsActionTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams one attempt over a WebSocket: autosave, security
// events, heartbeat pings and submit share a single connection.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
	perSecond      float64
}

// NewWSHandler creates a new WSHandler. perSecond limits client messages per
// connection; 0 disables the limit.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string, perSecond float64) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
		perSecond:      perSecond,
	}
}

type wsSession struct {
	conn      *websocket.Conn
	attemptID uuid.UUID
	studentID int
	log       zerolog.Logger
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:id/stream
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims, attemptID, ok := studentAndID(c, "id")
	if !ok {
		return
	}

	// Reject before upgrading so the client gets a normal HTTP error.
	attempt, err := h.attemptService.GetAttempt(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if attempt.IsTerminal() {
		writeError(c, h.log, service.ErrAttemptNotInProgress)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(ws.MaxMessageBytes)

	s := &wsSession{
		conn:      conn,
		attemptID: attemptID,
		studentID: claims.UserID,
		log: h.log.With().
			Int("student_id", claims.UserID).
			Str("attempt_id", attemptID.String()).
			Logger(),
	}
	s.log.Info().Msg("Student connected")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if h.perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.perSecond), int(h.perSecond*2)+1)
	}

	for {
		data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				s.log.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			ws.WriteError(conn, "", string(response.ErrInvalidPayload), "malformed message")
			continue
		}
		if !limiter.Allow() {
			ws.WriteError(conn, env.Ref, string(response.ErrRateLimitExceeded), "too many messages")
			continue
		}

		if done := h.dispatch(c.Request.Context(), s, env, data); done {
			return
		}
	}
}

// dispatch handles one message and reports whether the stream should close.
func (h *WSHandler) dispatch(parent context.Context, s *wsSession, env ws.RequestEnvelope, data []byte) bool {
	ctx, cancel := context.WithTimeout(parent, wsActionTimeout)
	defer cancel()

	switch env.Action {
	case ws.ActionAutosave:
		var req ws.AutosaveRequest
		if err := json.Unmarshal(data, &req); err != nil {
			ws.WriteError(s.conn, env.Ref, string(response.ErrInvalidPayload), "invalid autosave payload")
			return false
		}
		qid, err := uuid.Parse(req.QID)
		if err != nil {
			ws.WriteError(s.conn, env.Ref, string(response.ErrInvalidID), "invalid q_id format")
			return false
		}
		res, err := h.attemptService.SaveAnswer(ctx, service.SaveAnswerInput{
			AttemptID:        s.attemptID,
			StudentID:        s.studentID,
			QuestionID:       qid,
			Value:            req.Value,
			TimeSpentSeconds: req.TimeSpentSeconds,
			MarkedForReview:  req.MarkedForReview,
		})
		if err != nil {
			return h.fail(s, env.Ref, err)
		}
		ws.WriteEvent(s.conn, ws.EventSaved, env.Ref, res)

	case ws.ActionSecurity:
		var req ws.SecurityRequest
		if err := json.Unmarshal(data, &req); err != nil {
			ws.WriteError(s.conn, env.Ref, string(response.ErrInvalidPayload), "invalid security payload")
			return false
		}
		ev, err := h.attemptService.RecordSecurityEvent(ctx, service.SecurityEventInput{
			AttemptID:  s.attemptID,
			StudentID:  s.studentID,
			Type:       req.Type,
			Details:    req.Details,
			ClientTime: req.ClientTime,
		})
		if err != nil {
			return h.fail(s, env.Ref, err)
		}
		ws.WriteEvent(s.conn, ws.EventRecorded, env.Ref, gin.H{"sequence": ev.Sequence, "severity": ev.Severity})

	case ws.ActionPing:
		hb, err := h.attemptService.Heartbeat(ctx, s.attemptID, s.studentID)
		if err != nil {
			return h.fail(s, env.Ref, err)
		}
		ws.WriteTyped(s.conn, ws.PongResponse{
			Event:            ws.EventPong,
			Ref:              env.Ref,
			RemainingSeconds: hb.RemainingSeconds,
			ServerTime:       hb.ServerTime,
		})
		// A ping past the deadline finalizes the attempt; tell the client and close.
		if hb.Status.IsTerminal() {
			return true
		}

	case ws.ActionSubmit:
		var req ws.SubmitRequest
		_ = json.Unmarshal(data, &req)
		res, err := h.attemptService.SubmitAttempt(ctx, s.attemptID, s.studentID, req.ClientRemainingSeconds)
		if err != nil {
			return h.fail(s, env.Ref, err)
		}
		s.log.Info().Str("status", string(res.Status)).Msg("Attempt submitted over WebSocket")
		ws.WriteEvent(s.conn, ws.EventSubmitted, env.Ref, res)
		return true

	default:
		s.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		ws.WriteError(s.conn, env.Ref, string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
	}
	return false
}

// fail reports err to the client. Errors that end the attempt close the stream.
func (h *WSHandler) fail(s *wsSession, ref string, err error) bool {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("WebSocket action failed")
	}
	ws.WriteError(s.conn, ref, string(code), response.GetMessage(code))

	ae, ok := service.AsAttemptError(err)
	return ok && (ae.Kind == service.KindExpired || ae.Code == service.ErrAttemptNotInProgress.Code)
}

