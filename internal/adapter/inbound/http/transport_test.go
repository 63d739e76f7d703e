package http

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

// freePort grabs an ephemeral port for the transport to bind.
func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func waitForServer(t *testing.T, base string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/health")
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not come up")
}

func TestTransport_ServesAllEndpoints(t *testing.T) {
	addr := freePort(t)
	transport := NewTransport(newTestCommandService(), WithAddr(addr))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- transport.Start(ctx)
	}()

	base := "http://" + addr
	waitForServer(t, base)

	t.Run("messages", func(t *testing.T) {
		body := strings.NewReader(`{
			"message_id": "m1",
			"user_id": "u1",
			"display_name": "kim",
			"content": "start home"
		}`)
		resp, err := http.Post(base+"/v1/messages", "application/json", body)
		if err != nil {
			t.Fatalf("post message: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header")
		}
	})

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(base + "/health")
		if err != nil {
			t.Fatalf("get health: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(base + "/metrics")
		if err != nil {
			t.Fatalf("get metrics: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned error after shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("transport did not shut down")
	}
}

func TestTransport_CloseBeforeStart(t *testing.T) {
	transport := NewTransport(newTestCommandService())
	if err := transport.Close(); err != nil {
		t.Fatalf("Close before Start must be a no-op, got %v", err)
	}
}

func TestTransport_StartFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	transport := NewTransport(newTestCommandService(), WithAddr(ln.Addr().String()))
	errCh := make(chan error, 1)
	go func() {
		errCh <- transport.Start(context.Background())
	}()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected bind error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not fail on busy port")
	}
}
