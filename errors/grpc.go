package errors

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MapToGRPCError translates domain failures into gRPC status codes.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && !isAppError(err) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	appErr := From(err)
	return status.Error(grpcCode(appErr.Kind), appErr.Error())
}

func grpcCode(kind Kind) codes.Code {
	switch kind {
	case KindValidation:
		return codes.InvalidArgument
	case KindPermission:
		return codes.PermissionDenied
	case KindCapacity, KindRateLimit:
		return codes.ResourceExhausted
	case KindModerationBlock:
		return codes.FailedPrecondition
	case KindConflict:
		return codes.Aborted
	case KindNotFound:
		return codes.NotFound
	case KindConnection:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

func isAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}
