package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(ctx context.Context) error {
	return p.err
}

func TestHealthChecker_Healthy(t *testing.T) {
	hc := NewHealthChecker(fakePinger{}, nil, "1.2.3")

	rec := httptest.NewRecorder()
	hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected healthy, got %q", resp.Status)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("expected version in response, got %q", resp.Version)
	}
	if resp.Checks["store"] != "ok" {
		t.Errorf("expected store ok, got %q", resp.Checks["store"])
	}
}

func TestHealthChecker_StoreUnreachable(t *testing.T) {
	hc := NewHealthChecker(fakePinger{err: errors.New("disk gone")}, nil, "")

	rec := httptest.NewRecorder()
	hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("expected unhealthy, got %q", resp.Status)
	}
}

func TestHealthChecker_NoPingerIsInProcess(t *testing.T) {
	resp := NewHealthChecker(nil, nil, "").Check(context.Background())
	if resp.Status != "healthy" {
		t.Errorf("in-process store must be healthy, got %q", resp.Status)
	}
	if resp.Checks["store"] != "ok (in-process)" {
		t.Errorf("unexpected store check: %q", resp.Checks["store"])
	}
	if resp.Checks["reconciler"] != "not configured" {
		t.Errorf("unexpected reconciler check: %q", resp.Checks["reconciler"])
	}
}

func TestHealthHandler_Fallback(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
