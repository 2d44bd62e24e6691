package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"RangeLedger/internal/core"
	"RangeLedger/internal/errs"
	"RangeLedger/internal/ingestion"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		err      error
		want     codes.Code
		wantHTTP int
	}{
		{fmt.Errorf("bins: %w", errs.ErrArrayLengthMismatch), codes.InvalidArgument, http.StatusBadRequest},
		{errs.ErrMarketNotFound, codes.NotFound, http.StatusNotFound},
		{errs.ErrMarketClosed, codes.FailedPrecondition, http.StatusBadRequest},
		{errs.ErrDuplicateCommand, codes.AlreadyExists, http.StatusConflict},
		{errs.ErrOwnerOnly, codes.PermissionDenied, http.StatusForbidden},
		{errs.ErrSlippageExceeded, codes.Aborted, http.StatusConflict},
		{errs.ErrOverflow, codes.OutOfRange, http.StatusBadRequest},
		{ingestion.ErrRateLimited, codes.ResourceExhausted, http.StatusTooManyRequests},
		{core.ErrRunnerStopped, codes.Unavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("disk on fire"), codes.Internal, http.StatusInternalServerError},
		{status.Error(codes.Unavailable, "down"), codes.Unavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		got := status.Code(toStatus(tt.err))
		if got != tt.want {
			t.Errorf("%v: got %s, want %s", tt.err, got, tt.want)
		}
		if h := runtime.HTTPStatusFromCode(got); h != tt.wantHTTP {
			t.Errorf("%v: http %d, want %d", tt.err, h, tt.wantHTTP)
		}
	}
	if toStatus(nil) != nil {
		t.Error("nil error must stay nil")
	}
}

func TestToStatus_KeepsErrorCodeInMessage(t *testing.T) {
	st, _ := status.FromError(toStatus(fmt.Errorf("buy: %w", errs.ErrSlippageExceeded)))
	if want := "buy: SlippageExceeded: price moved beyond the caller's limit"; st.Message() != want {
		t.Errorf("message: got %q, want %q", st.Message(), want)
	}
}
