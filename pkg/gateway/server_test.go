package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sameehj/vaultd/pkg/core"
	"github.com/sameehj/vaultd/pkg/exec"
	"github.com/sameehj/vaultd/pkg/mcp"
	"github.com/sameehj/vaultd/pkg/tool"
	"github.com/sameehj/vaultd/pkg/vault"
	"github.com/sameehj/vaultd/pkg/whitelist"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func newTestServer(t *testing.T, authorizer Authorizer) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"personal", "work"} {
		if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	reg, err := vault.NewRegistry([]string{root}, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	executor := &exec.SafeExecutor{Roots: reg.Roots()}
	_, authEnabled := authorizer.(TokenAuthorizer)
	svc := core.NewService(reg, whitelist.New([]string{"ls"}, true), executor, authEnabled)
	mcpServer := mcp.NewServer(tool.NewRegistry(svc, tool.Limits{Timeout: time.Second, MaxOutput: 100}))
	return NewServer(svc, mcpServer, Options{Addr: "127.0.0.1:0", Authorizer: authorizer}), root
}

func TestHandleHealth(t *testing.T) {
	s, root := newTestServer(t, NoopAuthorizer{})
	handler := s.Handler()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var report core.HealthReport
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if report.Status != core.StatusHealthy || len(report.Vaults) != 2 || !report.WhitelistEnabled {
		t.Fatalf("unexpected report %+v", report)
	}

	if err := os.RemoveAll(filepath.Join(root, "work")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"unhealthy"`) {
		t.Fatalf("expected unhealthy status, got %s", rr.Body.String())
	}
}

func TestAuthMiddleware(t *testing.T) {
	s, _ := newTestServer(t, TokenAuthorizer{Token: "s3cret"})
	handler := s.Handler()
	ping := `{"jsonrpc":"2.0","id":1,"method":"ping"}`

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "health is open", path: "/health", want: http.StatusOK},
		{name: "missing token", path: "/messages", want: http.StatusUnauthorized},
		{name: "wrong token", path: "/messages", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/messages", header: "Basic s3cret", want: http.StatusUnauthorized},
		{name: "unknown path", path: "/admin", want: http.StatusUnauthorized},
		{name: "valid token", path: "/messages", header: "Bearer s3cret", want: http.StatusOK},
		{name: "valid token unknown path", path: "/admin", header: "Bearer s3cret", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if tt.path == "/health" {
				method = http.MethodGet
			}
			req := httptest.NewRequest(method, tt.path, strings.NewReader(ping))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d (%s)", tt.want, rr.Code, rr.Body.String())
			}
			if tt.want == http.StatusUnauthorized && strings.TrimSpace(rr.Body.String()) != `{"error":"Unauthorized"}` {
				t.Fatalf("unexpected body %q", rr.Body.String())
			}
		})
	}
}

func TestNewAuthorizer(t *testing.T) {
	if _, ok := NewAuthorizer(false, "x").(NoopAuthorizer); !ok {
		t.Fatalf("expected noop authorizer when disabled")
	}
	a := NewAuthorizer(true, "")
	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	req.Header.Set("Authorization", "Bearer ")
	if err := a.Authorize(req); err == nil {
		t.Fatalf("expected empty token to reject everything")
	}
}

func TestRefreshHealth(t *testing.T) {
	s, root := newTestServer(t, NoopAuthorizer{})
	ctx := context.Background()

	s.RefreshHealth()
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: "vault/work"})
	if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected serving vault, got %v (%v)", resp, err)
	}

	if err := os.RemoveAll(filepath.Join(root, "work")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if report := s.RefreshHealth(); report.Healthy() {
		t.Fatalf("expected unhealthy report")
	}
	resp, err = s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	if err != nil || resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected overall not serving, got %v (%v)", resp, err)
	}
	resp, err = s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: "vault/personal"})
	if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected personal still serving, got %v (%v)", resp, err)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t, NoopAuthorizer{})
	s.opts.HealthAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not stop")
	}
}
