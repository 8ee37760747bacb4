package httpserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/lending-liquidator/pkg/healthprobe"
	"github.com/mselser95/lending-liquidator/pkg/ledger"
	"github.com/mselser95/lending-liquidator/pkg/types"
	"go.uber.org/zap"
)

func wallet(b byte) string {
	raw := make([]byte, ledger.AddressLength)
	for i := range raw {
		raw[i] = b
	}
	addr, err := ledger.AddressFromBytes(raw)
	if err != nil {
		panic(err)
	}
	return addr.String()
}

type staticReporter struct {
	reports []types.BorrowerReport
}

func (s *staticReporter) Reports() []types.BorrowerReport {
	return s.reports
}

func (s *staticReporter) Report(w string) (types.BorrowerReport, bool) {
	for _, r := range s.reports {
		if r.Wallet == w {
			return r, true
		}
	}
	return types.BorrowerReport{}, false
}

func newReporter() *staticReporter {
	ratio := 1.125
	healthy := 0.5
	return &staticReporter{reports: []types.BorrowerReport{
		{Wallet: wallet(1), Loaded: true, HealthRatio: &ratio, Unsafe: true, BorrowLimitUSD: 800, BorrowTotalUSD: 900},
		{Wallet: wallet(2), Loaded: true, HealthRatio: &healthy, BorrowLimitUSD: 800, BorrowTotalUSD: 400},
		{Wallet: wallet(3)},
	}}
}

func do(t *testing.T, s *Server, method, target string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	resp := w.Result()
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func newServer(reporter BorrowerReporter, hc *healthprobe.HealthChecker) *Server {
	if hc == nil {
		hc = healthprobe.New()
	}
	return New(&Config{
		Port:          "0",
		Logger:        zap.NewNop(),
		HealthChecker: hc,
		Borrowers:     reporter,
	})
}

func TestNew(t *testing.T) {
	hc := healthprobe.New()
	logger := zap.NewNop()
	server := New(&Config{Port: "8080", Logger: logger, HealthChecker: hc})

	if server.server == nil {
		t.Fatal("New() server.server is nil")
	}
	if server.logger != logger {
		t.Error("New() logger not set correctly")
	}
	if server.healthChecker != hc {
		t.Error("New() healthChecker not set correctly")
	}
	if server.server.Addr != ":8080" {
		t.Errorf("Addr = %s, want :8080", server.server.Addr)
	}
	if server.server.ReadTimeout != 15*time.Second || server.server.WriteTimeout != 15*time.Second {
		t.Error("read/write timeouts not configured")
	}
	if server.server.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %v, want %v", server.server.IdleTimeout, 60*time.Second)
	}
}

func TestHealthAndReadyEndpoints(t *testing.T) {
	hc := healthprobe.New()
	server := newServer(nil, hc)

	if resp := do(t, server, http.MethodGet, "/health"); resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if resp := do(t, server, http.MethodGet, "/ready"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready status before SetReady = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}

	hc.SetReady(true)
	if resp := do(t, server, http.MethodGet, "/ready"); resp.StatusCode != http.StatusOK {
		t.Errorf("ready status after SetReady = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	resp := do(t, newServer(nil, nil), http.MethodGet, "/metrics")

	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if resp.Header.Get("Content-Type") == "" {
		t.Error("metrics endpoint missing Content-Type header")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read metrics body: %v", err)
	}
	if len(body) == 0 {
		t.Error("metrics endpoint returned empty body")
	}
}

func TestBorrowersEndpoint_List(t *testing.T) {
	server := newServer(newReporter(), nil)

	tests := []struct {
		name       string
		target     string
		wantCount  int
		wantUnsafe int
	}{
		{"all-borrowers", "/api/borrowers", 3, 1},
		{"only-unsafe", "/api/borrowers?unsafe=true", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, server, http.MethodGet, tt.target)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
			}

			var body BorrowersResponse
			err := json.NewDecoder(resp.Body).Decode(&body)
			if err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Count != tt.wantCount || len(body.Borrowers) != tt.wantCount {
				t.Errorf("count = %d (%d listed), want %d", body.Count, len(body.Borrowers), tt.wantCount)
			}
			if body.Unsafe != tt.wantUnsafe {
				t.Errorf("unsafe = %d, want %d", body.Unsafe, tt.wantUnsafe)
			}
		})
	}
}

func TestBorrowersEndpoint_Get(t *testing.T) {
	server := newServer(newReporter(), nil)

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"watched-borrower", "/api/borrowers/" + wallet(1), http.StatusOK},
		{"unknown-borrower", "/api/borrowers/" + wallet(7), http.StatusNotFound},
		{"invalid-address", "/api/borrowers/not-base58!", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, server, http.MethodGet, tt.target)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}

	resp := do(t, server, http.MethodGet, "/api/borrowers/"+wallet(1))
	var report types.BorrowerReport
	err := json.NewDecoder(resp.Body).Decode(&report)
	if err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if report.HealthRatio == nil || *report.HealthRatio != 1.125 {
		t.Errorf("health ratio = %v, want 1.125", report.HealthRatio)
	}
	if !report.Unsafe {
		t.Error("expected unsafe borrower")
	}
}

func TestBorrowersEndpoint_OnlyWithReporter(t *testing.T) {
	resp := do(t, newServer(nil, nil), http.MethodGet, "/api/borrowers")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestCircuitBreakerEndpoint(t *testing.T) {
	server := New(&Config{
		Port:          "0",
		Logger:        zap.NewNop(),
		HealthChecker: healthprobe.New(),
		CircuitBreaker: func() any {
			return map[string]any{"enabled": true, "last_balance": 1200.5}
		},
	})

	resp := do(t, server, http.MethodGet, "/api/circuit-breaker")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]any
	err := json.NewDecoder(resp.Body).Decode(&body)
	if err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["enabled"] != true {
		t.Errorf("enabled = %v, want true", body["enabled"])
	}
}

func TestServer_RouteNotFound(t *testing.T) {
	resp := do(t, newServer(nil, nil), http.MethodGet, "/nonexistent")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	server := newServer(nil, nil)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := server.Shutdown(ctx)
	if err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	select {
	case err := <-serverDone:
		if err != nil {
			t.Errorf("Start() returned error after shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after shutdown")
	}
}
