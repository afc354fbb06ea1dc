package grpcapi

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/artist-portfolio/services/comments/internal/engagement"
)

const errorDomain = "comments"

func withInfo(c codes.Code, reason, msg string) error {
	st := status.New(c, msg)
	info := &errdetails.ErrorInfo{Reason: reason, Domain: errorDomain}
	st2, err := st.WithDetails(info)
	if err != nil {
		return st.Err()
	}
	return st2.Err()
}

func errInvalidArgument(msg, field, desc string) error {
	st := status.New(codes.InvalidArgument, msg)
	info := &errdetails.ErrorInfo{Reason: "VALIDATION_ERROR", Domain: errorDomain}
	bad := &errdetails.BadRequest{
		FieldViolations: []*errdetails.BadRequest_FieldViolation{{Field: field, Description: desc}},
	}
	st2, err := st.WithDetails(info, bad)
	if err != nil {
		return st.Err()
	}
	return st2.Err()
}

func errUnauthenticated(msg string) error {
	return withInfo(codes.Unauthenticated, "UNAUTHORIZED", msg)
}

func errPermissionDenied(msg string) error {
	return withInfo(codes.PermissionDenied, "FORBIDDEN", msg)
}

// toStatus maps engagement errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var ve *engagement.ValidationError
	switch {
	case errors.As(err, &ve):
		return errInvalidArgument(ve.Error(), ve.Field, ve.Reason)
	case errors.Is(err, engagement.ErrNotFound):
		return withInfo(codes.NotFound, "NOT_FOUND", "comment not found")
	case errors.Is(err, engagement.ErrUnavailable):
		return withInfo(codes.Unavailable, "STORE_UNAVAILABLE", "comment store is temporarily unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return withInfo(codes.Internal, "INTERNAL", "internal error")
	}
}
