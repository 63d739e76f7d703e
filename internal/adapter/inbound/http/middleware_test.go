package http

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nirmalnpatel111/new-discord-bot/internal/domain/auth"
)

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var seenID string
	handler := RequestIDMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID, _ = r.Context().Value(RequestIDKey).(string)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/messages", nil))

	if seenID == "" {
		t.Fatal("expected a generated request ID in context")
	}
	if rec.Header().Get("X-Request-ID") != seenID {
		t.Errorf("response header should echo the request ID")
	}
}

func TestRequestIDMiddleware_PreservesIncomingID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var seenID string
	handler := RequestIDMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID, _ = r.Context().Value(RequestIDKey).(string)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	req.Header.Set("X-Request-ID", "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seenID != "req-42" {
		t.Errorf("expected req-42, got %q", seenID)
	}
}

func TestTokenAuthMiddleware(t *testing.T) {
	verifier, err := auth.NewTokenVerifier([]string{auth.HashToken("good-token")})
	if err != nil {
		t.Fatalf("NewTokenVerifier failed: %v", err)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := TokenAuthMiddleware(verifier)(next)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer good-token", http.StatusNoContent},
		{"wrong token", "Bearer bad-token", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestTokenAuthMiddleware_DisabledPassesThrough(t *testing.T) {
	verifier, err := auth.NewTokenVerifier(nil)
	if err != nil {
		t.Fatalf("NewTokenVerifier failed: %v", err)
	}

	handler := TokenAuthMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/messages", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("disabled verifier must not block requests, got %d", rec.Code)
	}
}
