package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShrinkImageTaskRoundTrip(t *testing.T) {
	payload := ShrinkImagePayload{
		SessionID:   "session-123",
		RunID:       "run-1",
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewShrinkImageTask(payload)
	require.NoError(t, err)
	assert.Equal(t, TypeShrinkImage, task.Type())

	parsed, err := ParseShrinkImagePayload(task)
	require.NoError(t, err)
	assert.Equal(t, payload.SessionID, parsed.SessionID)
	assert.Equal(t, payload.RunID, parsed.RunID)
}

func TestShrinkImageTaskRequiresIDs(t *testing.T) {
	_, err := NewShrinkImageTask(ShrinkImagePayload{SessionID: "s"})
	assert.Error(t, err)

	_, err = ParseShrinkImagePayload(asynq.NewTask(TypeShrinkImage, []byte(`{"session_id":"s"}`)))
	assert.Error(t, err)
}

func TestEnqueueShrinkImageOncePerRun(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()}, "shrinkit", 0)
	t.Cleanup(func() { _ = client.Close() })

	payload := ShrinkImagePayload{SessionID: "s1", RunID: "run-42", RequestedAt: time.Now().UTC()}
	info, err := client.EnqueueShrinkImage(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "run-42", info.ID)
	assert.Equal(t, "shrinkit", info.Queue)
	assert.Equal(t, 0, info.MaxRetry)
	assert.Equal(t, DefaultTaskTimeout, info.Timeout)

	_, err = client.EnqueueShrinkImage(context.Background(), payload)
	assert.True(t, errors.Is(err, asynq.ErrTaskIDConflict))
}
