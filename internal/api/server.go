// Package api provides the gRPC and HTTP server for strategylab, exposing
// backtests over gRPC and Prometheus metrics over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Server hosts the BacktestService over gRPC and /metrics plus /healthz over
// HTTP.
type Server struct {
	grpcAddr string
	httpAddr string

	grpc   *grpc.Server
	http   *http.Server
	mux    *http.ServeMux
	health *health.Server
	log    *slog.Logger
}

// NewServer creates a Server for svc. Metrics are served from gatherer.
func NewServer(grpcAddr, httpAddr string, svc BacktestServer, gatherer prometheus.Gatherer) *Server {
	log := slog.Default().With("component", "server")

	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogger(log)))
	RegisterBacktestServer(gs, svc)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	return &Server{
		grpcAddr: grpcAddr,
		httpAddr: httpAddr,
		grpc:     gs,
		http:     &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		mux:      mux,
		health:   hs,
		log:      log,
	}
}

// Handle adds an HTTP route next to /metrics and /healthz. It must be called
// before Serve.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler returns the HTTP handler serving /metrics and /healthz.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe opens both listeners and serves until ctx is cancelled or a
// listener fails. On return both servers are stopped.
func (s *Server) ListenAndServe(ctx context.Context) error {
	grpcLis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.grpcAddr, err)
	}
	httpLis, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		grpcLis.Close()
		return fmt.Errorf("listening on %s: %w", s.httpAddr, err)
	}
	return s.Serve(ctx, grpcLis, httpLis)
}

// Serve is ListenAndServe on caller-provided listeners.
func (s *Server) Serve(ctx context.Context, grpcLis, httpLis net.Listener) error {
	errCh := make(chan error, 2)
	go func() {
		s.log.Info("grpc listening", "addr", grpcLis.Addr().String())
		errCh <- s.grpc.Serve(grpcLis)
	}()
	go func() {
		s.log.Info("http listening", "addr", httpLis.Addr().String())
		if err := s.http.Serve(httpLis); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := s.Shutdown(shutdownCtx); err == nil {
		err = serr
	}
	return err
}

// Shutdown marks the service as not serving, drains in-flight RPCs and stops
// the HTTP server. gRPC is stopped hard if ctx expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

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

	if err := s.http.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("stopping http: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

func unaryLogger(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		attrs := []any{
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed", time.Since(start).Round(time.Millisecond),
		}
		if err != nil {
			log.Warn("rpc failed", append(attrs, "err", err)...)
		} else {
			log.Info("rpc", attrs...)
		}
		return resp, err
	}
}
