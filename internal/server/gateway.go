package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// maxBodyBytes bounds HTTP request bodies.
const maxBodyBytes = 1 << 20

// NewGatewayMux serves LedgerService as HTTP/JSON under /v1. Handlers call
// the LedgerServer directly; errors go through runtime.HTTPError so status
// codes follow runtime.HTTPStatusFromCode.
func NewGatewayMux(s *LedgerServer) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()

	var failed []error
	register := func(err error) {
		if err != nil {
			failed = append(failed, err)
		}
	}

	register(handle(mux, "POST", "/v1/commands/{event_type}", bindCommand, s.SubmitCommand))
	register(handle(mux, "GET", "/v1/registry", bindNothing[RegistryRequest], s.GetRegistry))
	register(handle(mux, "GET", "/v1/markets", bindListMarkets, s.ListMarkets))
	register(handle(mux, "GET", "/v1/markets/{market_id}", bindMarket, s.GetMarket))
	register(handle(mux, "GET", "/v1/markets/{market_id}/bins", bindBinRange, s.QueryBinRange))
	register(handle(mux, "GET", "/v1/markets/{market_id}/events", bindMarketEvents, s.ListMarketEvents))
	register(handle(mux, "POST", "/v1/markets/{market_id}/quote", bindQuote, s.Quote))
	register(handle(mux, "GET", "/v1/users/{user_id}/positions", bindListPositions, s.ListPositions))
	register(handle(mux, "GET", "/v1/users/{user_id}/markets/{market_id}/position", bindPosition, s.GetPosition))
	register(handle(mux, "GET", "/v1/users/{user_id}/journals", bindJournals, s.ListJournals))
	register(handle(mux, "GET", "/v1/admin/integrity", bindNothing[EmptyRequest], s.VerifyIntegrity))
	register(handle(mux, "GET", "/v1/admin/event-log", bindNothing[EmptyRequest], s.GetEventLogInfo))
	register(handle(mux, "POST", "/v1/admin/snapshots", bindNothing[EmptyRequest], s.TakeSnapshot))
	register(handle(mux, "POST", "/v1/admin/projections/rebuild", bindNothing[EmptyRequest], s.RebuildProjections))

	if err := errors.Join(failed...); err != nil {
		return nil, err
	}
	return mux, nil
}

func handle[Req, Resp any](
	mux *runtime.ServeMux,
	method, pattern string,
	bind func(r *http.Request, params map[string]string, req *Req) error,
	call func(context.Context, *Req) (*Resp, error),
) error {
	return mux.HandlePath(method, pattern, func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		ctx := r.Context()
		_, outbound := runtime.MarshalerForRequest(mux, r)

		req := new(Req)
		if err := bind(r, params, req); err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, status.Error(codes.InvalidArgument, err.Error()))
			return
		}
		resp, err := call(ctx, req)
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, toStatus(err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, status.Error(codes.Internal, err.Error()))
		}
	})
}

// ============================================================================
// Binders
// ============================================================================

func bindNothing[Req any](*http.Request, map[string]string, *Req) error { return nil }

func bindCommand(r *http.Request, params map[string]string, req *SubmitCommandRequest) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	req.EventType = params["event_type"]
	req.Payload = body
	return nil
}

func bindMarket(_ *http.Request, params map[string]string, req *MarketRequest) error {
	return pathUint(params, "market_id", &req.MarketID)
}

func bindListMarkets(r *http.Request, _ map[string]string, req *ListMarketsRequest) error {
	q := r.URL.Query()
	if err := queryInt(q.Get("page_size"), &req.PageSize); err != nil {
		return err
	}
	if v := q.Get("after_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("after_id: %w", err)
		}
		req.AfterID = &id
	}
	return nil
}

func bindBinRange(r *http.Request, params map[string]string, req *BinRangeRequest) error {
	if err := pathUint(params, "market_id", &req.MarketID); err != nil {
		return err
	}
	q := r.URL.Query()
	start, err := strconv.ParseUint(q.Get("start"), 10, 32)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end, err := strconv.ParseUint(q.Get("end"), 10, 32)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	req.Start, req.End = uint32(start), uint32(end)
	return nil
}

func bindMarketEvents(r *http.Request, params map[string]string, req *ListMarketEventsRequest) error {
	if err := pathUint(params, "market_id", &req.MarketID); err != nil {
		return err
	}
	return bindPage(r, &req.PageSize, &req.BeforeSequence)
}

func bindQuote(r *http.Request, params map[string]string, req *QuoteRequest) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(req); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return pathUint(params, "market_id", &req.MarketID)
}

func bindListPositions(r *http.Request, params map[string]string, req *ListPositionsRequest) error {
	req.UserID = params["user_id"]
	if v := r.URL.Query().Get("market_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("market_id: %w", err)
		}
		req.MarketID = &id
	}
	return nil
}

func bindPosition(_ *http.Request, params map[string]string, req *PositionRequest) error {
	req.UserID = params["user_id"]
	return pathUint(params, "market_id", &req.MarketID)
}

func bindJournals(r *http.Request, params map[string]string, req *ListJournalsRequest) error {
	req.UserID = params["user_id"]
	return bindPage(r, &req.PageSize, &req.BeforeSequence)
}

func bindPage(r *http.Request, pageSize *int, before **int64) error {
	q := r.URL.Query()
	if err := queryInt(q.Get("page_size"), pageSize); err != nil {
		return err
	}
	if v := q.Get("before_sequence"); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("before_sequence: %w", err)
		}
		*before = &seq
	}
	return nil
}

func pathUint(params map[string]string, name string, dst *uint64) error {
	v, err := strconv.ParseUint(params[name], 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = v
	return nil
}

func queryInt(v string, dst *int) error {
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("page_size: %w", err)
	}
	*dst = n
	return nil
}
