package server

import (
	"context"
	"errors"

	"RangeLedger/internal/core"
	"RangeLedger/internal/errs"
	"RangeLedger/internal/ingestion"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps ledger errors onto gRPC codes. The errs code is kept as the
// message prefix so HTTP callers see the same stable identifier.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ingestion.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, core.ErrRunnerStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, errs.ErrMarketNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, errs.ErrDuplicateCommand):
		return status.Error(codes.AlreadyExists, err.Error())
	}

	return status.Error(codeForKind(errs.KindOf(err)), err.Error())
}

func codeForKind(k errs.Kind) codes.Code {
	switch k {
	case errs.KindValidation:
		return codes.InvalidArgument
	case errs.KindState:
		return codes.FailedPrecondition
	case errs.KindAuthorization:
		return codes.PermissionDenied
	case errs.KindEconomic:
		return codes.Aborted
	case errs.KindArithmetic:
		return codes.OutOfRange
	default:
		return codes.Internal
	}
}
