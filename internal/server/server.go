package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"RangeLedger/internal/observability"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

const shutdownTimeout = 5 * time.Second

// GRPCServer runs LedgerService over gRPC and its HTTP/JSON gateway.
type GRPCServer struct {
	grpcServer    *grpc.Server
	healthServer  *health.Server
	httpHandler   http.Handler
	grpcAddr      string
	httpAddr      string
	healthChecker *observability.HealthChecker
	logger        zerolog.Logger
}

// NewGRPCServer registers LedgerService, gRPC health and reflection, and
// builds the HTTP handler: /healthz, /readyz and the /v1 gateway.
func NewGRPCServer(grpcAddr, httpAddr string, ledger *LedgerServer, hc *observability.HealthChecker, logger zerolog.Logger) (*GRPCServer, error) {
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))
	grpcServer.RegisterService(&LedgerServiceDesc, ledger)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	gateway, err := NewGatewayMux(ledger)
	if err != nil {
		return nil, fmt.Errorf("register gateway: %w", err)
	}

	httpMux := http.NewServeMux()
	if hc != nil {
		httpMux.HandleFunc("/healthz", hc.LivenessHandler)
		httpMux.HandleFunc("/readyz", hc.ReadinessHandler)
	}
	httpMux.Handle("/", gateway)

	return &GRPCServer{
		grpcServer:    grpcServer,
		healthServer:  healthServer,
		httpHandler:   httpMux,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		healthChecker: hc,
		logger:        logger,
	}, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *GRPCServer) Handler() http.Handler {
	return s.httpHandler
}

// SetServing flips the gRPC health status of LedgerService.
func (s *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus(ServiceName, st)
}

// Run serves gRPC and HTTP until ctx is cancelled or either listener fails.
func (s *GRPCServer) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	httpServer := &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
		return s.grpcServer.Serve(lis)
	})

	g.Go(func() error {
		s.logger.Info().Str("addr", s.httpAddr).Msg("HTTP gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http gateway: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info().Msg("API servers shutting down")
		s.healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		httpErr := httpServer.Shutdown(shutdownCtx)

		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			s.grpcServer.Stop()
		}
		return httpErr
	})

	return g.Wait()
}

// loggingInterceptor logs failed calls: ledger rejections at debug, internal
// failures at warn.
func loggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			code := status.Code(err)
			ev := logger.Debug()
			if code == codes.Internal || code == codes.Unknown {
				ev = logger.Warn()
			}
			ev.Err(err).
				Str("method", info.FullMethod).
				Str("code", code.String()).
				Dur("elapsed", time.Since(start)).
				Msg("rpc failed")
		}
		return resp, err
	}
}
