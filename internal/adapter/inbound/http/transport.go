package http

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nirmalnpatel111/new-discord-bot/internal/clock"
	"github.com/nirmalnpatel111/new-discord-bot/internal/domain/auth"
	"github.com/nirmalnpatel111/new-discord-bot/internal/metrics"
	"github.com/nirmalnpatel111/new-discord-bot/internal/port/inbound"
	"github.com/nirmalnpatel111/new-discord-bot/internal/service"
)

// Transport is the inbound adapter that receives webhook messages over HTTP
// and forwards them to the command service.
type Transport struct {
	commandService *service.CommandService
	server         *http.Server
	addr           string
	certFile       string
	keyFile        string
	verifier       *auth.TokenVerifier
	dedupTTL       time.Duration
	dedup          *dedupCache
	clock          clock.Clock
	registry       *prometheus.Registry
	metrics        *metrics.Metrics
	healthChecker  *HealthChecker
	logger         *slog.Logger
}

// Option is a functional option for configuring Transport.
type Option func(*Transport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8080" (localhost only).
func WithAddr(addr string) Option {
	return func(t *Transport) {
		t.addr = addr
	}
}

// WithTLS enables TLS with the provided certificate and key files.
// If not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) Option {
	return func(t *Transport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithTokenVerifier enables bearer-token authentication on /v1/messages.
func WithTokenVerifier(v *auth.TokenVerifier) Option {
	return func(t *Transport) {
		t.verifier = v
	}
}

// WithDedupTTL sets how long delivered message IDs are remembered.
func WithDedupTTL(ttl time.Duration) Option {
	return func(t *Transport) {
		t.dedupTTL = ttl
	}
}

// WithClock sets the clock used by the dedup cache. Used in tests.
func WithClock(clk clock.Clock) Option {
	return func(t *Transport) {
		t.clock = clk
	}
}

// WithRegistry sets the Prometheus registry. When provided, the caller owns
// registration of the Go and process collectors. Default is a fresh registry
// with both collectors attached.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(t *Transport) {
		t.registry = reg
	}
}

// WithMetrics shares an existing metrics instance instead of creating one
// in Start. Use together with WithRegistry when the reconciler records on
// the same instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Transport) {
		t.metrics = m
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *Transport) {
		t.healthChecker = hc
	}
}

// WithLogger sets the logger for the transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// NewTransport creates a webhook transport wrapping the given command service.
func NewTransport(commandService *service.CommandService, opts ...Option) *Transport {
	t := &Transport{
		commandService: commandService,
		addr:           "127.0.0.1:8080",
		dedupTTL:       defaultDedupTTL,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	t.dedup = newDedupCache(t.dedupTTL, t.clock)

	return t
}

// Metrics returns the transport's metrics instruments. Valid after Start.
func (t *Transport) Metrics() *metrics.Metrics {
	return t.metrics
}

// Start begins accepting webhook deliveries. It blocks until the context is
// cancelled or the server fails.
func (t *Transport) Start(ctx context.Context) error {
	if t.registry == nil {
		t.registry = prometheus.NewRegistry()
		t.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if t.metrics == nil {
		t.metrics = metrics.New(t.registry)
	}

	// Middleware order (outermost first):
	// 1. MetricsMiddleware - record duration and status for the full request
	// 2. RequestIDMiddleware - request ID and enriched logger in context
	// 3. TokenAuthMiddleware - reject unauthenticated deliveries
	// 4. messagesHandler - decode, dedup, dispatch
	handler := messagesHandler(t.commandService, t.dedup, t.metrics)
	handler = TokenAuthMiddleware(t.verifier)(handler)
	handler = RequestIDMiddleware(t.logger)(handler)
	handler = MetricsMiddleware(t.metrics)(handler)

	mux := http.NewServeMux()
	mux.Handle("/v1/messages", handler)
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	} else {
		mux.Handle("/health", healthHandler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		Registry: t.registry,
	}))
	// Favicon handler to prevent browser 500 errors
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	errCh := make(chan error, 1)

	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS server", "addr", t.addr)
			err = t.server.ListenAndServeTLS(t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", t.addr)
			err = t.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *Transport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}

// Compile-time check that Transport implements the inbound port.
var _ inbound.Transport = (*Transport)(nil)
