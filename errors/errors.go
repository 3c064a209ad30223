package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies every failure returned to a caller.
type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindPermission      Kind = "PERMISSION"
	KindCapacity        Kind = "CAPACITY"
	KindRateLimit       Kind = "RATE_LIMIT"
	KindModerationBlock Kind = "MODERATION_BLOCK"
	KindConflict        Kind = "CONFLICT"
	KindNotFound        Kind = "NOT_FOUND"
	KindConnection      Kind = "CONNECTION"
	KindInternal        Kind = "INTERNAL"
)

// AppError carries a kind, a machine readable reason and an optional retry hint.
type AppError struct {
	Kind       Kind          `json:"code"`
	Reason     string        `json:"reason,omitempty"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"-"`
	Cause      error         `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches on kind only, so errors.Is(err, ErrPermission) holds for any permission failure.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

var (
	ErrValidation      = &AppError{Kind: KindValidation, Message: "validation failed"}
	ErrPermission      = &AppError{Kind: KindPermission, Message: "permission denied"}
	ErrCapacity        = &AppError{Kind: KindCapacity, Message: "room is full"}
	ErrRateLimit       = &AppError{Kind: KindRateLimit, Message: "rate limit exceeded"}
	ErrModerationBlock = &AppError{Kind: KindModerationBlock, Message: "message blocked by moderation"}
	ErrConflict        = &AppError{Kind: KindConflict, Message: "conflicting state"}
	ErrNotFound        = &AppError{Kind: KindNotFound, Message: "not found"}
	ErrConnection      = &AppError{Kind: KindConnection, Message: "connection lost"}
	ErrInternal        = &AppError{Kind: KindInternal, Message: "internal error"}
)

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrEmptyWords         = fmt.Errorf("no words have been found")
	ErrInvalidPayload     = fmt.Errorf("invalid payload")
	ErrCorruptedSequence  = fmt.Errorf("corrupted room sequence")
	ErrOnlyCensoredFiles  = fmt.Errorf("censored directory contains directories")
	ErrMailboxUnavailable = fmt.Errorf("room mailbox unavailable")
)

func New(kind Kind, reason, message string) error {
	return &AppError{Kind: kind, Reason: reason, Message: message}
}

func Wrap(kind Kind, reason, message string, cause error) error {
	return &AppError{Kind: kind, Reason: reason, Message: message, Cause: cause}
}

func Validation(reason, message string) error {
	return New(KindValidation, reason, message)
}

func Permission(reason, message string) error {
	return New(KindPermission, reason, message)
}

func Capacity(message string) error {
	return New(KindCapacity, "room_full", message)
}

func RateLimit(reason string, retryAfter time.Duration) error {
	return &AppError{
		Kind:       KindRateLimit,
		Reason:     reason,
		Message:    fmt.Sprintf("retry in %s", retryAfter.Round(time.Millisecond)),
		RetryAfter: retryAfter,
	}
}

func ModerationBlock(reason, message string) error {
	return New(KindModerationBlock, reason, message)
}

func Conflict(reason, message string) error {
	return New(KindConflict, reason, message)
}

func NotFound(reason, message string) error {
	return New(KindNotFound, reason, message)
}

func Connection(message string, cause error) error {
	return Wrap(KindConnection, "connection", message, cause)
}

func Internal(message string, cause error) error {
	return Wrap(KindInternal, "internal", message, cause)
}

// From returns the AppError carried by err, or an internal error wrapping it.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{Kind: KindInternal, Reason: "internal", Message: "internal error", Cause: err}
}

// KindOf is a shortcut used by logs and telemetry.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}
