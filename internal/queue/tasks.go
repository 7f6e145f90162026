package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const TypeShrinkImage = "image:shrink"

// ShrinkImagePayload points a worker at one run of a session. Everything
// else is read from the session store when the task executes.
type ShrinkImagePayload struct {
	SessionID   string    `json:"session_id"`
	RunID       string    `json:"run_id"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewShrinkImageTask(payload ShrinkImagePayload) (*asynq.Task, error) {
	if strings.TrimSpace(payload.SessionID) == "" || strings.TrimSpace(payload.RunID) == "" {
		return nil, fmt.Errorf("session id and run id are required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal shrink payload: %w", err)
	}
	return asynq.NewTask(TypeShrinkImage, body), nil
}

func ParseShrinkImagePayload(task *asynq.Task) (ShrinkImagePayload, error) {
	var payload ShrinkImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ShrinkImagePayload{}, fmt.Errorf("unmarshal shrink payload: %w", err)
	}
	if payload.SessionID == "" || payload.RunID == "" {
		return ShrinkImagePayload{}, fmt.Errorf("shrink payload is missing session or run id")
	}
	return payload, nil
}
