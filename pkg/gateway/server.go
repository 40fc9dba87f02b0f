package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sameehj/vaultd/pkg/core"
	"github.com/sameehj/vaultd/pkg/mcp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	httpShutdownTimeout   = 5 * time.Second
	defaultHealthInterval = 15 * time.Second
	readHeaderTimeout     = 10 * time.Second
)

// Options configures the listeners.
type Options struct {
	// Addr is the HTTP listen address.
	Addr string
	// HealthAddr enables the gRPC health service when set.
	HealthAddr     string
	HealthInterval time.Duration
	Authorizer     Authorizer
}

// Server serves /health and the MCP transport on /messages.
type Server struct {
	opts      Options
	service   *core.Service
	transport *mcp.HTTPTransport
	health    *health.Server
	logger    *slog.Logger
}

func NewServer(service *core.Service, mcpServer *mcp.Server, opts Options) *Server {
	if opts.Authorizer == nil {
		opts.Authorizer = NoopAuthorizer{}
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = defaultHealthInterval
	}
	return &Server{
		opts:      opts,
		service:   service,
		transport: mcp.NewHTTPTransport(mcpServer),
		health:    health.NewServer(),
	}
}

func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Handler returns the HTTP routes wrapped in the auth check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/messages", s.transport)
	return s.requireAuth(mux)
}

// Start serves until ctx is cancelled, then shuts the listeners down.
func (s *Server) Start(ctx context.Context) error {
	var listener net.Listener
	if s.opts.HealthAddr != "" {
		var err error
		if listener, err = net.Listen("tcp", s.opts.HealthAddr); err != nil {
			return fmt.Errorf("health listener: %w", err)
		}
	}

	httpServer := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logInfo("gateway_listening", "addr", s.opts.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logInfo("gateway_stopping", "open_sessions", s.SessionCount())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logWarn("gateway_shutdown_failed", "error", err)
		}
		return nil
	})

	if listener != nil {
		grpcServer := grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, s.health)
		s.RefreshHealth()

		g.Go(func() error {
			s.logInfo("grpc_health_listening", "addr", listener.Addr().String())
			if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			ticker := time.NewTicker(s.opts.HealthInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					s.health.Shutdown()
					grpcServer.GracefulStop()
					return nil
				case <-ticker.C:
					s.RefreshHealth()
				}
			}
		})
	}

	return g.Wait()
}

// RefreshHealth probes the vaults and publishes the result to the gRPC health
// service: "" for the whole server and "vault/<name>" for each vault.
func (s *Server) RefreshHealth() core.HealthReport {
	report := s.service.Health()
	s.health.SetServingStatus("", servingStatus(report.Healthy()))
	for name, v := range report.Vaults {
		s.health.SetServingStatus("vault/"+name, servingStatus(v.Accessible))
	}
	return report
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.service.Health()
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
		s.logWarn("health_degraded", "remote", r.RemoteAddr)
	}
	writeJSON(w, status, report)
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		if err := s.opts.Authorizer.Authorize(r); err != nil {
			s.logWarn("request_unauthorized", "remote", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// SessionCount reports open SSE streams.
func (s *Server) SessionCount() int {
	return s.transport.SessionCount()
}

func (s *Server) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
