package workers

import (
	"context"
	"log/slog"
	"time"

	"campus-chat/contract"
	"campus-chat/domain/chat"
	"campus-chat/notification"
)

// NotificationRequest carries an accepted message with the roster as it was
// when the message was committed.
type NotificationRequest struct {
	Message      chat.Message
	SenderRole   chat.Role
	Participants []chat.Participant
}

// NotificationWorker routes accepted messages and enqueues the resulting deliveries.
type NotificationWorker struct {
	router   notification.Router
	presence contract.PresenceReader
	queue    contract.NotificationQueue
	requests <-chan NotificationRequest
	log      *slog.Logger
}

func NewNotificationWorker(router notification.Router, presence contract.PresenceReader,
	queue contract.NotificationQueue, requests <-chan NotificationRequest, log *slog.Logger) *NotificationWorker {
	return &NotificationWorker{router: router, presence: presence, queue: queue, requests: requests, log: log}
}

func (w *NotificationWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping notification worker")
			return nil
		case req, ok := <-w.requests:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			w.route(ctx, req)
		}
	}
}

func (w *NotificationWorker) route(ctx context.Context, req NotificationRequest) {
	recipients := make([]notification.Recipient, 0, len(req.Participants))
	for _, p := range req.Participants {
		recipients = append(recipients, notification.Recipient{
			Participant: p,
			Online:      w.presence.Status(p.UserID) != chat.PresenceOffline,
		})
	}
	for _, d := range w.router.Route(req.Message, req.SenderRole, recipients, time.Now().UTC()) {
		task, opt, err := notification.NewTask(d)
		if err != nil {
			w.log.Error("Delivery not encoded", "user_id", d.UserID, "error", err)
			continue
		}
		if _, err := w.queue.Enqueue(ctx, task, opt); err != nil {
			w.log.Warn("Delivery not enqueued", "user_id", d.UserID, "channel", d.Channel, "error", err)
		}
	}
}
