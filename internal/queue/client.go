package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

const DefaultTaskTimeout = 3 * time.Minute

type Client struct {
	client  *asynq.Client
	queue   string
	timeout time.Duration
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &Client{
		client:  asynq.NewClient(redisOpt),
		queue:   queueName,
		timeout: timeout,
	}
}

// EnqueueShrinkImage schedules a run exactly once. Runs are never retried:
// a failed run is reported on the session and the user decides whether to
// process again.
func (c *Client) EnqueueShrinkImage(ctx context.Context, payload ShrinkImagePayload) (*asynq.TaskInfo, error) {
	task, err := NewShrinkImageTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.TaskID(payload.RunID),
		asynq.MaxRetry(0),
		asynq.Timeout(c.timeout),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
