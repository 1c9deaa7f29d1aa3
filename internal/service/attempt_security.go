package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-engine/internal/metrics"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

// SecurityEventInput is one integrity signal reported by the exam client.
type SecurityEventInput struct {
	AttemptID  uuid.UUID
	StudentID  int
	Type       model.SecurityEventType
	Details    json.RawMessage
	ClientTime *time.Time
}

// RecordSecurityEvent appends an event to the attempt's log and terminates the
// attempt once a configured violation threshold is exceeded.
func (s *AttemptService) RecordSecurityEvent(ctx context.Context, in SecurityEventInput) (*model.SecurityEvent, error) {
	if !in.Type.Valid() {
		return nil, ErrInvalidEventType
	}
	if len(in.Details) > 0 && !json.Valid(in.Details) {
		return nil, ErrInvalidEventType.with(errors.New("details must be valid JSON"))
	}

	a, err := s.loadOwned(ctx, in.AttemptID, in.StudentID)
	if err != nil {
		return nil, err
	}
	if a.IsTerminal() {
		return nil, ErrAttemptNotInProgress
	}

	now := s.clock.Now()
	counters, err := s.store.BumpSecurityCounters(ctx, a.ID, in.Type, now)
	if errors.Is(err, repository.ErrAttemptNotOpen) {
		return nil, ErrAttemptNotInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("bump security counters: %w", err)
	}

	ev := &model.SecurityEvent{
		ID:         uuid.New(),
		AttemptID:  a.ID,
		ExamID:     a.ExamID,
		StudentID:  a.StudentID,
		Sequence:   counters.LastSequence,
		Type:       in.Type,
		Severity:   in.Type.Severity(),
		Details:    in.Details,
		ClientTime: in.ClientTime,
		RecordedAt: now,
	}
	if err := s.events.EnqueueSecurityEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("enqueue security event: %w", err)
	}

	metrics.SecurityEvents.WithLabelValues(string(ev.Type), string(ev.Severity)).Inc()
	s.monitor.Publish(ctx, a.ExamID, MonitorEvent{
		Type:       MonitorSecurityEvent,
		AttemptID:  a.ID,
		StudentID:  a.StudentID,
		EventType:  string(ev.Type),
		Severity:   string(ev.Severity),
		OccurredAt: now,
	})

	if reason := violationReason(a.Settings, counters); reason != "" {
		_, err := s.TerminateAttempt(ctx, a.ID, reason, nil)
		if err != nil && !errors.Is(err, ErrAttemptNotInProgress) {
			s.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Failed to terminate attempt on violation threshold")
		}
	}
	return ev, nil
}

// violationReason names the first exceeded threshold, or returns "".
// A threshold of 0 disables the check; each check also needs its feature or proctoring on.
func violationReason(st model.ExamSettings, c model.SecurityCounters) string {
	proctored := st.ProctoringEnabled
	switch {
	case st.MaxFullScreenExits > 0 && (st.FullScreenMode || proctored) && c.FullScreenExits > st.MaxFullScreenExits:
		return fmt.Sprintf("full-screen exits %d exceeded limit %d", c.FullScreenExits, st.MaxFullScreenExits)
	case st.MaxTabSwitches > 0 && (st.TabSwitchDetection || proctored) && c.TabSwitches > st.MaxTabSwitches:
		return fmt.Sprintf("tab switches %d exceeded limit %d", c.TabSwitches, st.MaxTabSwitches)
	case st.MaxCopyAttempts > 0 && (st.DisableCopyPaste || proctored) && c.CopyAttempts > st.MaxCopyAttempts:
		return fmt.Sprintf("copy attempts %d exceeded limit %d", c.CopyAttempts, st.MaxCopyAttempts)
	}
	return ""
}
