package server

import (
	"context"
	"encoding/hex"
	"fmt"

	"RangeLedger/internal/core"
	"RangeLedger/internal/ingestion"
	"RangeLedger/internal/persistence"
	"RangeLedger/internal/query"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rangeledger.v1.LedgerService"

// CoreViewer runs read-only functions on the core goroutine.
type CoreViewer interface {
	View(ctx context.Context, fn func(*core.DeterministicCore) error) error
}

// AdminHooks are operations owned by the process wiring: snapshots and
// projection rebuilds need the core, the database and the workers together.
type AdminHooks interface {
	TakeSnapshot(ctx context.Context) (seq int64, size int, err error)
	RebuildProjections(ctx context.Context) (seq int64, err error)
}

// ServerDeps holds all dependencies needed by LedgerService. Query,
// SnapshotMgr and Admin may be nil when Postgres is not configured; the
// methods that need them then return Unavailable.
type ServerDeps struct {
	Core        CoreViewer
	Ingest      *ingestion.GRPCIngestService
	Query       *query.QueryService
	SnapshotMgr *persistence.SnapshotManager
	Admin       AdminHooks
}

// LedgerServer implements LedgerService for both gRPC and the HTTP gateway.
type LedgerServer struct {
	deps *ServerDeps
}

func NewLedgerServer(deps *ServerDeps) *LedgerServer {
	return &LedgerServer{deps: deps}
}

// ============================================================================
// Commands
// ============================================================================

func (s *LedgerServer) SubmitCommand(ctx context.Context, req *SubmitCommandRequest) (*SubmitCommandResponse, error) {
	if req.EventType == "" {
		return nil, status.Error(codes.InvalidArgument, "event_type is required")
	}
	if len(req.Payload) == 0 {
		return nil, status.Error(codes.InvalidArgument, "payload is required")
	}

	receipt, err := s.deps.Ingest.Inject(ctx, req.EventType, req.Payload)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SubmitCommandResponse{
		Sequence:  receipt.Sequence,
		StateHash: hex.EncodeToString(receipt.StateHash[:]),
		Outcome:   receipt.Outcome.OutcomeName(),
		Event:     receipt.Outcome,
	}, nil
}

// ============================================================================
// Live views
// ============================================================================

func (s *LedgerServer) GetMarket(ctx context.Context, req *MarketRequest) (*MarketResponse, error) {
	var resp MarketResponse
	err := s.deps.Core.View(ctx, func(c *core.DeterministicCore) error {
		m, err := c.GetMarket(req.MarketID)
		if err != nil {
			return err
		}
		resp.Market = m
		resp.Status = m.Status().String()
		return nil
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &resp, nil
}

func (s *LedgerServer) GetPosition(ctx context.Context, req *PositionRequest) (*PositionResponse, error) {
	userID, err := parseUserID(req.UserID)
	if err != nil {
		return nil, err
	}

	var resp PositionResponse
	err = s.deps.Core.View(ctx, func(c *core.DeterministicCore) error {
		p, err := c.GetPosition(userID, req.MarketID)
		resp.Position = p
		return err
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &resp, nil
}

func (s *LedgerServer) QueryBinRange(ctx context.Context, req *BinRangeRequest) (*BinRangeResponse, error) {
	var resp BinRangeResponse
	err := s.deps.Core.View(ctx, func(c *core.DeterministicCore) error {
		bins, err := c.QueryBinRange(req.MarketID, req.Start, req.End)
		resp.Bins = bins
		return err
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &resp, nil
}

// Quote dispatches to the single-bin view for one bin and to the batch view
// otherwise.
func (s *LedgerServer) Quote(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error) {
	if len(req.Bins) == 0 {
		return nil, status.Error(codes.InvalidArgument, "bins are required")
	}

	var resp QuoteResponse
	err := s.deps.Core.View(ctx, func(c *core.DeterministicCore) error {
		var err error
		switch req.Kind {
		case QuoteBuy, QuoteSell:
			resp.Total, resp.Amounts, err = quoteTrade(c, req)
		case QuoteMaxBuy:
			if len(req.Bins) == 1 {
				resp.Quantity, err = c.CalculateXForBin(req.MarketID, req.Bins[0], req.Budget)
			} else {
				resp.Quantity, err = c.CalculateXForBins(req.MarketID, req.Bins, req.Budget)
			}
		default:
			err = status.Errorf(codes.InvalidArgument, "unknown quote kind %q", req.Kind)
		}
		return err
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &resp, nil
}

func quoteTrade(c *core.DeterministicCore, req *QuoteRequest) (uint64, []uint64, error) {
	buy := req.Kind == QuoteBuy
	if len(req.Bins) == 1 && len(req.Amounts) == 1 {
		var (
			total uint64
			err   error
		)
		if buy {
			total, err = c.CalculateBinCost(req.MarketID, req.Bins[0], req.Amounts[0])
		} else {
			total, err = c.CalculateBinSellCost(req.MarketID, req.Bins[0], req.Amounts[0])
		}
		return total, []uint64{total}, err
	}

	calc := c.CalculateBatchSellCost
	if buy {
		calc = c.CalculateBatchCost
	}
	q, err := calc(req.MarketID, req.Bins, req.Amounts)
	if err != nil {
		return 0, nil, err
	}
	return q.Total, q.Amounts, nil
}

func (s *LedgerServer) GetRegistry(ctx context.Context, _ *RegistryRequest) (*RegistryResponse, error) {
	var resp RegistryResponse
	err := s.deps.Core.View(ctx, func(c *core.DeterministicCore) error {
		hash := c.GetStateHash()
		resp.Registry = c.GetRegistry()
		resp.Sequence = c.GetSequence()
		resp.StateHash = hex.EncodeToString(hash[:])
		resp.PendingCloses = c.PendingCloses()
		return nil
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &resp, nil
}

// ============================================================================
// Projection reads
// ============================================================================

func (s *LedgerServer) queryService() (*query.QueryService, error) {
	if s.deps.Query == nil {
		return nil, status.Error(codes.Unavailable, "query service not configured")
	}
	return s.deps.Query, nil
}

func (s *LedgerServer) ListMarkets(ctx context.Context, req *ListMarketsRequest) (*ListMarketsResponse, error) {
	qs, err := s.queryService()
	if err != nil {
		return nil, err
	}
	markets, err := qs.ListMarkets(ctx, req.PageSize, req.AfterID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListMarketsResponse{Markets: markets}, nil
}

func (s *LedgerServer) ListPositions(ctx context.Context, req *ListPositionsRequest) (*ListPositionsResponse, error) {
	qs, err := s.queryService()
	if err != nil {
		return nil, err
	}
	userID, err := parseUserID(req.UserID)
	if err != nil {
		return nil, err
	}
	positions, err := qs.GetPositions(ctx, userID, req.MarketID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListPositionsResponse{Positions: positions}, nil
}

func (s *LedgerServer) ListJournals(ctx context.Context, req *ListJournalsRequest) (*ListJournalsResponse, error) {
	qs, err := s.queryService()
	if err != nil {
		return nil, err
	}
	userID, err := parseUserID(req.UserID)
	if err != nil {
		return nil, err
	}
	entries, err := qs.GetJournalHistory(ctx, userID, req.PageSize, req.BeforeSequence)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListJournalsResponse{Journals: entries}, nil
}

func (s *LedgerServer) ListMarketEvents(ctx context.Context, req *ListMarketEventsRequest) (*ListMarketEventsResponse, error) {
	qs, err := s.queryService()
	if err != nil {
		return nil, err
	}
	events, err := qs.GetMarketEvents(ctx, req.MarketID, req.PageSize, req.BeforeSequence)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListMarketEventsResponse{Events: events}, nil
}

// ============================================================================
// Admin
// ============================================================================

func (s *LedgerServer) VerifyIntegrity(ctx context.Context, _ *EmptyRequest) (*VerifyIntegrityResponse, error) {
	qs, err := s.queryService()
	if err != nil {
		return nil, err
	}
	report, err := qs.VerifyIntegrity(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &VerifyIntegrityResponse{Report: report}, nil
}

func (s *LedgerServer) GetEventLogInfo(ctx context.Context, _ *EmptyRequest) (*EventLogInfoResponse, error) {
	if s.deps.SnapshotMgr == nil {
		return nil, status.Error(codes.Unavailable, "event log not configured")
	}
	latest, err := s.deps.SnapshotMgr.GetLatestSequence(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &EventLogInfoResponse{LastSequence: latest}, nil
}

func (s *LedgerServer) TakeSnapshot(ctx context.Context, _ *EmptyRequest) (*TakeSnapshotResponse, error) {
	if s.deps.Admin == nil {
		return nil, status.Error(codes.Unavailable, "snapshots not configured")
	}
	seq, size, err := s.deps.Admin.TakeSnapshot(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &TakeSnapshotResponse{Sequence: seq, SizeBytes: size}, nil
}

func (s *LedgerServer) RebuildProjections(ctx context.Context, _ *EmptyRequest) (*RebuildProjectionsResponse, error) {
	if s.deps.Admin == nil {
		return nil, status.Error(codes.Unavailable, "projections not configured")
	}
	seq, err := s.deps.Admin.RebuildProjections(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RebuildProjectionsResponse{Sequence: seq}, nil
}

// ============================================================================
// Service descriptor
// ============================================================================

// LedgerService is the method set registered under ServiceName.
type LedgerService interface {
	SubmitCommand(context.Context, *SubmitCommandRequest) (*SubmitCommandResponse, error)
	GetMarket(context.Context, *MarketRequest) (*MarketResponse, error)
	GetPosition(context.Context, *PositionRequest) (*PositionResponse, error)
	QueryBinRange(context.Context, *BinRangeRequest) (*BinRangeResponse, error)
	Quote(context.Context, *QuoteRequest) (*QuoteResponse, error)
	GetRegistry(context.Context, *RegistryRequest) (*RegistryResponse, error)
	ListMarkets(context.Context, *ListMarketsRequest) (*ListMarketsResponse, error)
	ListPositions(context.Context, *ListPositionsRequest) (*ListPositionsResponse, error)
	ListJournals(context.Context, *ListJournalsRequest) (*ListJournalsResponse, error)
	ListMarketEvents(context.Context, *ListMarketEventsRequest) (*ListMarketEventsResponse, error)
	VerifyIntegrity(context.Context, *EmptyRequest) (*VerifyIntegrityResponse, error)
	GetEventLogInfo(context.Context, *EmptyRequest) (*EventLogInfoResponse, error)
	TakeSnapshot(context.Context, *EmptyRequest) (*TakeSnapshotResponse, error)
	RebuildProjections(context.Context, *EmptyRequest) (*RebuildProjectionsResponse, error)
}

var _ LedgerService = (*LedgerServer)(nil)

// unary adapts a typed method to grpc.MethodDesc, honouring interceptors the
// same way generated code does.
func unary[Req, Resp any](name string, call func(LedgerService, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "decode %s: %v", name, err)
			}
			svc := srv.(LedgerService)
			if interceptor == nil {
				return call(svc, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
				return call(svc, ctx, r.(*Req))
			})
		},
	}
}

// LedgerServiceDesc describes LedgerService for grpc.Server.RegisterService.
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerService)(nil),
	Methods: []grpc.MethodDesc{
		unary("SubmitCommand", LedgerService.SubmitCommand),
		unary("GetMarket", LedgerService.GetMarket),
		unary("GetPosition", LedgerService.GetPosition),
		unary("QueryBinRange", LedgerService.QueryBinRange),
		unary("Quote", LedgerService.Quote),
		unary("GetRegistry", LedgerService.GetRegistry),
		unary("ListMarkets", LedgerService.ListMarkets),
		unary("ListPositions", LedgerService.ListPositions),
		unary("ListJournals", LedgerService.ListJournals),
		unary("ListMarketEvents", LedgerService.ListMarketEvents),
		unary("VerifyIntegrity", LedgerService.VerifyIntegrity),
		unary("GetEventLogInfo", LedgerService.GetEventLogInfo),
		unary("TakeSnapshot", LedgerService.TakeSnapshot),
		unary("RebuildProjections", LedgerService.RebuildProjections),
	},
	Streams: []grpc.StreamDesc{},
}

// FullMethod returns the gRPC method path for name.
func FullMethod(name string) string {
	return fmt.Sprintf("/%s/%s", ServiceName, name)
}

func parseUserID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid user_id: %v", err)
	}
	return id, nil
}
