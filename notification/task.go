package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"campus-chat/contract"
)

const (
	TaskDeliver = "notification:deliver"
	TaskDigest  = "notification:digest"

	queueName = "notifications"
	maxRetry  = 5
)

// NewTask serialises a delivery into a queue task. Digest deliveries are
// scheduled at their DeliverAt and deduplicated per user and message.
func NewTask(d Delivery) (contract.Task, contract.EnqueueOption, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return contract.Task{}, contract.EnqueueOption{}, fmt.Errorf("encoding delivery: %w", err)
	}
	opt := contract.EnqueueOption{Queue: queueName, MaxRetry: maxRetry}
	if d.Timing == Digest {
		opt.ProcessAt = d.DeliverAt
		opt.UniqueTTL = time.Until(d.DeliverAt) + time.Hour
		return contract.Task{Type: TaskDigest, Payload: payload}, opt, nil
	}
	return contract.Task{Type: TaskDeliver, Payload: payload}, opt, nil
}

// DecodeTask is the inverse of NewTask, used by queue consumers.
func DecodeTask(t contract.Task) (Delivery, error) {
	var d Delivery
	if err := json.Unmarshal(t.Payload, &d); err != nil {
		return Delivery{}, fmt.Errorf("decoding %s payload: %w", t.Type, err)
	}
	return d, nil
}
