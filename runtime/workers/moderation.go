package workers

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"campus-chat/contract"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
)

// ScanRequest asks for the toxicity score of a message already delivered.
type ScanRequest struct {
	RoomID     chat.RoomID
	MessageID  string
	Text       string
	Threshold  float64
	AcceptedAt time.Time
}

// ModerationWorker scores accepted messages off the send path. A score at or
// above the room threshold retracts the message through its room worker.
// Several instances may consume the same channel.
type ModerationWorker struct {
	scorer        contract.ToxicityScorer
	dispatcher    contract.Dispatcher
	scans         <-chan ScanRequest
	telemetryChan chan event.Event
	sla           time.Duration
	log           *slog.Logger
}

func NewModerationWorker(scorer contract.ToxicityScorer, dispatcher contract.Dispatcher,
	scans <-chan ScanRequest, telemetryChan chan event.Event, sla time.Duration, log *slog.Logger) *ModerationWorker {
	return &ModerationWorker{
		scorer:        scorer,
		dispatcher:    dispatcher,
		scans:         scans,
		telemetryChan: telemetryChan,
		sla:           sla,
		log:           log,
	}
}

func (w *ModerationWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping moderation worker")
			return nil
		case req, ok := <-w.scans:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			w.scan(ctx, req)
		}
	}
}

func (w *ModerationWorker) scan(ctx context.Context, req ScanRequest) {
	scoreCtx, cancel := context.WithTimeout(ctx, w.sla)
	start := time.Now()
	score, err := w.scorer.Score(scoreCtx, req.Text)
	latency := time.Since(start)
	cancel()

	scanned := event.ToxicityScanned{
		RoomID:    req.RoomID,
		MessageID: req.MessageID,
		Score:     score,
		Flagged:   err == nil && score >= req.Threshold,
		TimedOut:  stderrors.Is(err, context.DeadlineExceeded),
		Latency:   latency,
	}
	select {
	case w.telemetryChan <- event.Event{Type: event.ToxicityScannedType, CreatedAt: time.Now().UTC(), Payload: scanned}:
	default:
		w.log.Debug("Observability telemetry event lost")
	}
	if err != nil {
		w.log.Warn("Toxicity scan failed, message kept", "message_id", req.MessageID, "error", err)
		return
	}
	if !scanned.Flagged {
		return
	}

	w.log.Warn("AI Detection", "room_id", req.RoomID, "message_id", req.MessageID,
		"score", score, "latency_us", latency.Microseconds())
	_, err = w.dispatcher.Ask(ctx, chat.RetractMessageCommand{RoomID: req.RoomID, MessageID: req.MessageID, Score: score})
	if err != nil {
		w.log.Error("Toxic message not retracted", "message_id", req.MessageID, "error", err)
	}
}
