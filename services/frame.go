package services

import (
	"encoding/json"
	"time"

	"campus-chat/auth"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"
)

// ResponseEvent names the frame answering a request.
const ResponseEvent = "response"

// Frame is the unit exchanged on every transport, in both directions.
type Frame struct {
	Event     string          `json:"event"`
	RequestID string          `json:"requestId,omitempty"`
	RoomID    chat.RoomID     `json:"roomId,omitempty"`
	At        *time.Time      `json:"at,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type ErrorBody struct {
	Code         errors.Kind `json:"code"`
	Reason       string      `json:"reason,omitempty"`
	RetryAfterMs int64       `json:"retryAfterMs,omitempty"`
}

type Pagination struct {
	NextCursor *string `json:"nextCursor,omitempty"`
	HasMore    bool    `json:"hasMore"`
	Count      int     `json:"count"`
}

// Response answers exactly one inbound frame.
type Response struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Error      *ErrorBody  `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	cause      error
}

func ok(data any) Response {
	return Response{Success: true, Data: data}
}

func page(p chat.MessagePage) Response {
	return Response{
		Success:    true,
		Data:       p.Messages,
		Pagination: &Pagination{NextCursor: p.NextCursor, HasMore: p.HasMore, Count: len(p.Messages)},
	}
}

func failure(err error) Response {
	appErr := errors.From(err)
	message := appErr.Message
	if appErr.Kind == errors.KindInternal {
		message = "internal error"
	}
	return Response{
		Success: false,
		Message: message,
		cause:   err,
		Error: &ErrorBody{
			Code:         appErr.Kind,
			Reason:       appErr.Reason,
			RetryAfterMs: appErr.RetryAfter.Milliseconds(),
		},
	}
}

// Failure answers a frame that never reached a handler.
func Failure(err error) Response {
	return failure(err)
}

// ResponseFrame wraps a response for the wire.
func ResponseFrame(requestID string, res Response) (Frame, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: ResponseEvent, RequestID: requestID, Data: data}, nil
}

// EventFrame turns a fanned out event into an outbound frame.
func EventFrame(e event.ChatEvent) (Frame, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return Frame{}, err
	}
	at := e.At
	return Frame{Event: string(e.Name), RoomID: e.RoomID, At: &at, Data: data}, nil
}

// decode reads the payload of a frame and validates it with the struct tags.
func decode[T any](f Frame) (T, error) {
	var v T
	if len(f.Data) == 0 {
		return v, errors.Validation("missing_data", "frame "+f.Event+" carries no data")
	}
	if err := json.Unmarshal(f.Data, &v); err != nil {
		return v, errors.Wrap(errors.KindValidation, "malformed_data", "frame "+f.Event+" data is malformed", err)
	}
	if err := auth.Validate(v); err != nil {
		return v, err
	}
	return v, nil
}
