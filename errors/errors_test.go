package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestAppError_IsMatchesOnKind(t *testing.T) {
	req := require.New(t)

	err := fmt.Errorf("join: %w", Permission("banned", "user is banned"))

	req.ErrorIs(err, ErrPermission)
	req.NotErrorIs(err, ErrCapacity)
	req.ErrorIs(err, &AppError{Kind: KindPermission, Reason: "banned"})
	req.NotErrorIs(err, &AppError{Kind: KindPermission, Reason: "insufficient_role"})
}

func TestRateLimit_CarriesRetryAfter(t *testing.T) {
	req := require.New(t)

	err := RateLimit("slow_mode", 1500*time.Millisecond)

	appErr := From(err)
	req.Equal(KindRateLimit, appErr.Kind)
	req.Equal(1500*time.Millisecond, appErr.RetryAfter)
	req.Equal("retry in 1.5s", appErr.Message)
}

func TestFrom_WrapsUnknownErrorsAsInternal(t *testing.T) {
	req := require.New(t)
	cause := errors.New("disk on fire")

	appErr := From(cause)

	req.Equal(KindInternal, appErr.Kind)
	req.ErrorIs(appErr, cause)
}

func TestMapToGRPCError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"validation", Validation("too_long", "content too long"), codes.InvalidArgument},
		{"permission", Permission("banned", "banned"), codes.PermissionDenied},
		{"capacity", Capacity("full"), codes.ResourceExhausted},
		{"rate limit", RateLimit("rate", time.Second), codes.ResourceExhausted},
		{"moderation", ModerationBlock("blacklist", "blocked"), codes.FailedPrecondition},
		{"conflict", Conflict("deleted", "deleted"), codes.Aborted},
		{"not found", NotFound("room", "room not found"), codes.NotFound},
		{"connection", Connection("lost", nil), codes.Unavailable},
		{"plain", errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ok := status.FromError(MapToGRPCError(tt.err))
			require.True(t, ok)
			require.Equal(t, tt.code, st.Code())
		})
	}
}
