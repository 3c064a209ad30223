package queue

import (
	"context"
	"log/slog"
	"sync"

	"campus-chat/contract"

	"github.com/google/uuid"
)

// LogQueue logs every task instead of handing it to a broker. It is used
// when no Redis instance is configured and keeps the last tasks for inspection.
type LogQueue struct {
	mu    sync.Mutex
	log   *slog.Logger
	tasks []contract.Task
	keep  int
}

var _ contract.NotificationQueue = (*LogQueue)(nil)

func NewLogQueue(log *slog.Logger, keep int) *LogQueue {
	return &LogQueue{log: log, keep: keep}
}

func (q *LogQueue) Enqueue(_ context.Context, t contract.Task, opts ...contract.EnqueueOption) (string, error) {
	id := uuid.NewString()
	attrs := []any{"id", id, "type", t.Type, "bytes", len(t.Payload)}
	if len(opts) > 0 && !opts[0].ProcessAt.IsZero() {
		attrs = append(attrs, "process_at", opts[0].ProcessAt)
	}
	q.log.Info("notification task", attrs...)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	if q.keep > 0 && len(q.tasks) > q.keep {
		q.tasks = q.tasks[len(q.tasks)-q.keep:]
	}
	return id, nil
}

// Tasks returns a copy of the retained tasks.
func (q *LogQueue) Tasks() []contract.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]contract.Task(nil), q.tasks...)
}

func (q *LogQueue) Close() error { return nil }
