package webhook

import (
	"time"

	"github.com/dunamismax/shrinkit/internal/domain"
)

const (
	EventSessionReady  = "session.ready"
	EventSessionFailed = "session.failed"
)

type SessionEvent struct {
	SessionID     string                 `json:"session_id"`
	RunID         string                 `json:"run_id"`
	State         domain.State           `json:"state"`
	Processed     *domain.ProcessedImage `json:"processed,omitempty"`
	FailureKind   domain.ErrorKind       `json:"failure_kind,omitempty"`
	FailureReason string                 `json:"failure_reason,omitempty"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

// EventFor describes a session that just left processing. ok is false for
// any other state.
func EventFor(s domain.Session, runID string) (event string, payload SessionEvent, ok bool) {
	payload = SessionEvent{
		SessionID:  s.ID,
		RunID:      runID,
		State:      s.State,
		OccurredAt: s.UpdatedAt,
	}

	switch s.State {
	case domain.StateReady:
		payload.Processed = s.Processed
		return EventSessionReady, payload, true
	case domain.StateFailed:
		payload.FailureKind = s.FailureKind
		payload.FailureReason = s.FailureReason
		return EventSessionFailed, payload, true
	default:
		return "", SessionEvent{}, false
	}
}
