// Package api hosts the market watch HTTP and gRPC servers and defines the
// MarketWatch gRPC service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"marketwatch/internal/util"
)

// DefaultShutdownTimeout bounds the graceful shutdown of both servers.
const DefaultShutdownTimeout = 10 * time.Second

// Server runs the HTTP handler and the gRPC service side by side.
type Server struct {
	httpAddr string
	grpcAddr string
	http     *http.Server
	grpc     *grpc.Server
	health   *health.Server
	log      *slog.Logger
}

// NewServer creates a Server. grpcAddr may be empty to disable gRPC; svc may
// be nil in that case.
func NewServer(httpAddr, grpcAddr string, handler http.Handler, svc MarketWatchServer, log *slog.Logger) *Server {
	if log == nil {
		log = util.Discard()
	}
	s := &Server{
		httpAddr: httpAddr,
		grpcAddr: grpcAddr,
		http: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log.With("component", "server"),
	}
	if svc != nil {
		s.grpc = grpc.NewServer()
		RegisterMarketWatchServer(s.grpc, svc)
		s.health = health.NewServer()
		healthpb.RegisterHealthServer(s.grpc, s.health)
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	}
	return s
}

// ListenAndServe opens the listeners and serves until ctx is cancelled or a
// server fails, then shuts both down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", s.httpAddr, err)
	}
	var grpcLis net.Listener
	if s.grpc != nil && s.grpcAddr != "" {
		grpcLis, err = net.Listen("tcp", s.grpcAddr)
		if err != nil {
			httpLis.Close()
			return fmt.Errorf("listen grpc %s: %w", s.grpcAddr, err)
		}
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve serves on the given listeners. grpcLis may be nil.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("http server listening", "addr", httpLis.Addr().String())
		if err := s.http.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcLis != nil && s.grpc != nil {
		g.Go(func() error {
			s.log.Info("grpc server listening", "addr", grpcLis.Addr().String())
			if err := s.grpc.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down servers")
	if s.health != nil {
		s.health.Shutdown()
	}

	if s.grpc != nil {
		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.grpc.Stop()
		}
	}

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
