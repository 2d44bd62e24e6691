package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"RangeLedger/internal/core"
	"RangeLedger/internal/ingestion"
	"RangeLedger/internal/ledger"
	"RangeLedger/internal/observability"
	"RangeLedger/internal/server"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const unit = uint64(1_000_000_000)

type fixture struct {
	srv    *server.GRPCServer
	ledger *server.LedgerServer
	owner  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := core.NewDeterministicCore(0, ledger.AssetUSDC, nil, nil, nil, nil, zerolog.New(io.Discard))
	runner := core.NewRunner(c, 16, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	ls := server.NewLedgerServer(&server.ServerDeps{
		Core:   runner,
		Ingest: ingestion.NewGRPCIngestService(runner, 0, 0, nil),
	})
	hc := observability.NewHealthChecker()
	hc.SetReady(true)
	srv, err := server.NewGRPCServer("127.0.0.1:0", "127.0.0.1:0", ls, hc, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &fixture{srv: srv, ledger: ls, owner: uuid.New()}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

func (f *fixture) command(t *testing.T, eventType string, signer uuid.UUID, fields string) (int, map[string]any) {
	t.Helper()
	body := fmt.Sprintf(`{"command_id":%q,"signer":%q,"timestamp_us":1700000000000000%s}`, uuid.NewString(), signer, fields)
	return f.do(t, http.MethodPost, "/v1/commands/"+eventType, body)
}

func (f *fixture) seedMarket(t *testing.T) {
	t.Helper()
	if code, body := f.command(t, "initialize_program", f.owner, ""); code != http.StatusOK {
		t.Fatalf("init: %d %v", code, body)
	}
	if code, body := f.command(t, "create_market", f.owner, `,"tick_spacing":10,"min_tick":0,"max_tick":100`); code != http.StatusOK {
		t.Fatalf("create: %d %v", code, body)
	}
}

// ============================================================================
// Test: HTTP gateway
// ============================================================================

func TestGateway_CommandsAndViews(t *testing.T) {
	f := newFixture(t)
	f.seedMarket(t)

	alice := uuid.New()
	code, body := f.command(t, "BuyTokens", alice, fmt.Sprintf(`,"market_id":0,"bins":[3],"amounts":[%d],"max_collateral":%d`, 5*unit, 5*unit))
	if code != http.StatusOK {
		t.Fatalf("buy: %d %v", code, body)
	}
	if body["outcome"] != "TokensBought" || body["sequence"].(float64) != 2 {
		t.Errorf("buy response: %v", body)
	}

	code, body = f.do(t, http.MethodGet, "/v1/markets/0", "")
	if code != http.StatusOK || body["status"] != "Active" {
		t.Fatalf("market: %d %v", code, body)
	}
	market := body["market"].(map[string]any)
	if market["total_supply"].(float64) != float64(5*unit) {
		t.Errorf("total supply: %v", market["total_supply"])
	}

	code, body = f.do(t, http.MethodGet, fmt.Sprintf("/v1/users/%s/markets/0/position", alice), "")
	if code != http.StatusOK {
		t.Fatalf("position: %d %v", code, body)
	}

	code, body = f.do(t, http.MethodGet, "/v1/markets/0/bins?start=2&end=4", "")
	if code != http.StatusOK || len(body["bins"].([]any)) != 3 {
		t.Errorf("bin range: %d %v", code, body)
	}

	code, body = f.do(t, http.MethodPost, "/v1/markets/0/quote", fmt.Sprintf(`{"kind":"buy","bins":[3],"amounts":[%d]}`, unit))
	if code != http.StatusOK || body["total"].(float64) != float64(unit) {
		t.Errorf("quote: %d %v", code, body)
	}

	code, body = f.do(t, http.MethodGet, "/v1/registry", "")
	if code != http.StatusOK || body["sequence"].(float64) != 2 {
		t.Errorf("registry: %d %v", code, body)
	}
}

func TestGateway_ErrorStatus(t *testing.T) {
	f := newFixture(t)
	f.seedMarket(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown market", http.MethodGet, "/v1/markets/7", "", http.StatusNotFound},
		{"bad market id", http.MethodGet, "/v1/markets/abc", "", http.StatusBadRequest},
		{"range too large", http.MethodGet, "/v1/markets/0/bins?start=0&end=30", "", http.StatusBadRequest},
		{"unknown quote kind", http.MethodPost, "/v1/markets/0/quote", `{"kind":"swap","bins":[0]}`, http.StatusBadRequest},
		{"unknown command", http.MethodPost, "/v1/commands/trade_fill", `{}`, http.StatusBadRequest},
		{"projections not configured", http.MethodGet, "/v1/markets", "", http.StatusServiceUnavailable},
		{"snapshots not configured", http.MethodPost, "/v1/admin/snapshots", "", http.StatusServiceUnavailable},
		{"bad user id", http.MethodGet, "/v1/users/nobody/markets/0/position", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.do(t, tt.method, tt.path, tt.body)
			if code != tt.want {
				t.Errorf("got %d, want %d (%v)", code, tt.want, body)
			}
		})
	}
}

func TestGateway_LedgerRejections(t *testing.T) {
	f := newFixture(t)
	f.seedMarket(t)

	// Non-owner create
	code, _ := f.command(t, "create_market", uuid.New(), `,"tick_spacing":1,"min_tick":0,"max_tick":4`)
	if code != http.StatusForbidden {
		t.Errorf("owner only: got %d, want 403", code)
	}

	// Cost above the caller's limit
	code, _ = f.command(t, "buy_tokens", uuid.New(), fmt.Sprintf(`,"market_id":0,"bins":[1],"amounts":[%d],"max_collateral":1`, unit))
	if code != http.StatusConflict {
		t.Errorf("slippage: got %d, want 409", code)
	}

	// Replayed command id
	body := fmt.Sprintf(`{"command_id":%q,"signer":%q,"market_id":0,"bins":[1],"amounts":[%d],"max_collateral":%d}`,
		uuid.NewString(), uuid.NewString(), unit, unit)
	if code, _ := f.do(t, http.MethodPost, "/v1/commands/buy_tokens", body); code != http.StatusOK {
		t.Fatalf("first submit: %d", code)
	}
	if code, _ := f.do(t, http.MethodPost, "/v1/commands/buy_tokens", body); code != http.StatusConflict {
		t.Errorf("duplicate: got %d, want 409", code)
	}
}

func TestGateway_Health(t *testing.T) {
	f := newFixture(t)
	if code, _ := f.do(t, http.MethodGet, "/healthz", ""); code != http.StatusOK {
		t.Errorf("healthz: got %d", code)
	}
	if code, _ := f.do(t, http.MethodGet, "/readyz", ""); code != http.StatusOK {
		t.Errorf("readyz: got %d", code)
	}
}

// ============================================================================
// Test: gRPC with the JSON codec
// ============================================================================

func TestGRPC_JSONCodec(t *testing.T) {
	f := newFixture(t)
	f.seedMarket(t)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	gs.RegisterService(&server.LedgerServiceDesc, f.ledger)
	go gs.Serve(lis)
	defer gs.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(server.CodecName)),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()

	var reg server.RegistryResponse
	if err := conn.Invoke(ctx, server.FullMethod("GetRegistry"), &server.RegistryRequest{}, &reg); err != nil {
		t.Fatalf("GetRegistry: %v", err)
	}
	if reg.Sequence != 1 || reg.Registry.Owner != f.owner || len(reg.PendingCloses) != 1 {
		t.Errorf("registry: %+v", reg)
	}

	var quote server.QuoteResponse
	err = conn.Invoke(ctx, server.FullMethod("Quote"), &server.QuoteRequest{
		MarketID: 0, Kind: server.QuoteMaxBuy, Bins: []uint32{0}, Budget: 2 * unit,
	}, &quote)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.Quantity != 2*unit {
		t.Errorf("max quantity on an empty market: got %d, want %d", quote.Quantity, 2*unit)
	}

	var m server.MarketResponse
	err = conn.Invoke(ctx, server.FullMethod("GetMarket"), &server.MarketRequest{MarketID: 42}, &m)
	if status.Code(err) != codes.NotFound {
		t.Errorf("missing market: got %v, want NotFound", err)
	}
}
