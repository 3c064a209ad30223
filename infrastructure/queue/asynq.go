// Package queue adapts the notification queue port to a backend.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"campus-chat/contract"

	"github.com/hibiken/asynq"
)

// AsynqQueue implements contract.NotificationQueue on top of asynq and Redis.
type AsynqQueue struct {
	client *asynq.Client
	log    *slog.Logger
}

var _ contract.NotificationQueue = (*AsynqQueue)(nil)

// NewAsynqQueue connects to the Redis instance addressed by redisURL.
func NewAsynqQueue(redisURL string, log *slog.Logger) (*AsynqQueue, error) {
	if redisURL == "" {
		return nil, errors.New("asynq: redis url is required")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return &AsynqQueue{client: asynq.NewClient(opt), log: log}, nil
}

func (a *AsynqQueue) Enqueue(ctx context.Context, t contract.Task, opts ...contract.EnqueueOption) (string, error) {
	if t.Type == "" {
		return "", errors.New("asynq: task type is required")
	}
	info, err := a.client.EnqueueContext(ctx, asynq.NewTask(t.Type, t.Payload), toAsynqOptions(opts)...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		a.log.Debug("duplicate task skipped", "type", t.Type)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (a *AsynqQueue) Close() error {
	return a.client.Close()
}

// toAsynqOptions reads the first option only; callers pass one consolidated option.
func toAsynqOptions(opts []contract.EnqueueOption) []asynq.Option {
	if len(opts) == 0 {
		return nil
	}
	op := opts[0]
	var out []asynq.Option
	if !op.ProcessAt.IsZero() {
		out = append(out, asynq.ProcessAt(op.ProcessAt))
	} else if op.ProcessIn > 0 {
		out = append(out, asynq.ProcessIn(op.ProcessIn))
	}
	if op.Queue != "" {
		out = append(out, asynq.Queue(op.Queue))
	}
	if op.MaxRetry > 0 {
		out = append(out, asynq.MaxRetry(op.MaxRetry))
	}
	if op.UniqueTTL > 0 {
		out = append(out, asynq.Unique(op.UniqueTTL))
	}
	return out
}
