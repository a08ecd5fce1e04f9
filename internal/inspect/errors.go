package inspect

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/socleer/internal/sim"
	"github.com/signalsfoundry/socleer/routing"
)

// ErrInvalidRequest marks malformed requests.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps simulator and engine errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, sim.ErrNodeNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, routing.ErrTypeMismatch),
		errors.Is(err, routing.ErrProtocolViolation),
		errors.Is(err, routing.ErrConfiguration):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, routing.ErrBounds):
		return status.Error(codes.OutOfRange, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
