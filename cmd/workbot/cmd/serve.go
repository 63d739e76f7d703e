package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	httpadapter "github.com/nirmalnpatel111/new-discord-bot/internal/adapter/inbound/http"
	celadapter "github.com/nirmalnpatel111/new-discord-bot/internal/adapter/outbound/cel"
	"github.com/nirmalnpatel111/new-discord-bot/internal/adapter/outbound/file"
	"github.com/nirmalnpatel111/new-discord-bot/internal/adapter/outbound/gcal"
	"github.com/nirmalnpatel111/new-discord-bot/internal/adapter/outbound/memory"
	"github.com/nirmalnpatel111/new-discord-bot/internal/adapter/outbound/sqlite"
	"github.com/nirmalnpatel111/new-discord-bot/internal/clock"
	"github.com/nirmalnpatel111/new-discord-bot/internal/config"
	"github.com/nirmalnpatel111/new-discord-bot/internal/domain/auth"
	"github.com/nirmalnpatel111/new-discord-bot/internal/domain/session"
	"github.com/nirmalnpatel111/new-discord-bot/internal/metrics"
	"github.com/nirmalnpatel111/new-discord-bot/internal/port/outbound"
	"github.com/nirmalnpatel111/new-discord-bot/internal/service"
	"github.com/nirmalnpatel111/new-discord-bot/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server and reconciler",
	Long: `Start the workbot webhook server.

The server accepts chat messages on /v1/messages, tracks work sessions in
the configured store, mirrors each open session as a calendar event, and
runs a background reconciler that keeps event end times rolling forward.

Examples:
  # Start with config file settings
  workbot serve

  # Start with a specific config file
  workbot --config /path/to/workbot.yaml serve

  # Development mode: debug logging, calendar events logged instead of sent
  workbot serve --dev`,
	RunE: runServe,
}

var devMode bool

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, in-process calendar)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so CLI flags can override first)
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if !cfg.DevMode && cfg.Calendar.CalendarID == "" {
		return fmt.Errorf("calendar.calendar_id is required (or run with --dev to log events locally)")
	}

	// Signal context for graceful shutdown. stop() restores default signal
	// handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()
	go func() {
		<-ctx.Done()
		stop() // Restore default: next Ctrl+C = immediate exit.
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// PID file so "workbot stop" can find us.
	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer func() { _ = os.Remove(pidPath) }()
	}

	shutdownTelemetry, err := telemetry.Init(ctx, "workbot", Version, cfg.Telemetry.Enabled)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	clk := clock.System{}

	store, pinger, closeStore, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	calendar := buildCalendar(cfg, logger)

	var policy session.StartPolicy
	if expr := cfg.Session.StartPolicy; expr != "" {
		policy, err = celadapter.NewStartPolicy(expr, clk)
		if err != nil {
			return fmt.Errorf("invalid session.start_policy: %w", err)
		}
		logger.Info("start policy enabled", "expression", expr)
	}

	manager := session.NewManager(store, calendar, clk, session.Config{
		RollingHorizon: cfg.RollingHorizon(),
		Locations:      cfg.Session.Locations,
		Policy:         policy,
		Logger:         logger,
	})
	commandService := service.NewCommandService(manager, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	extender := service.NewExtender(store, calendar, clk, service.ExtenderConfig{
		RollingHorizon: cfg.RollingHorizon(),
		TopUpThreshold: cfg.TopUpThreshold(),
		Metrics:        m,
		Logger:         logger,
	})
	scheduler := service.NewScheduler(extender, cfg.ReconcileInterval(), logger)

	verifier, err := auth.NewTokenVerifier(cfg.Auth.TokenHashes)
	if err != nil {
		return fmt.Errorf("invalid auth.token_hashes: %w", err)
	}
	if !verifier.Enabled() && !cfg.DevMode {
		logger.Warn("webhook authentication disabled: no auth.token_hashes configured")
	}

	transport := httpadapter.NewTransport(commandService,
		httpadapter.WithAddr(cfg.Server.HTTPAddr),
		httpadapter.WithTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile),
		httpadapter.WithTokenVerifier(verifier),
		httpadapter.WithDedupTTL(cfg.DedupTTL()),
		httpadapter.WithRegistry(registry),
		httpadapter.WithMetrics(m),
		httpadapter.WithHealthChecker(httpadapter.NewHealthChecker(pinger, scheduler, Version)),
		httpadapter.WithLogger(logger),
	)

	scheduler.Start(ctx)
	defer scheduler.Stop()

	logger.Info("workbot starting",
		"addr", cfg.Server.HTTPAddr,
		"store", cfg.Store.Backend,
		"locations", strings.Join(cfg.Session.Locations, ","),
		"rolling_horizon", cfg.Session.RollingHorizon,
		"top_up_threshold", cfg.Session.TopUpThreshold,
		"reconcile_interval", cfg.Session.ReconcileInterval,
	)

	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("workbot stopped")
	return nil
}

// buildStore constructs the configured session store. The returned Pinger is
// nil for in-process backends; the close func is always safe to call.
func buildStore(cfg *config.Config, logger *slog.Logger) (session.Store, httpadapter.Pinger, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		return memory.NewSessionStore(), nil, func() {}, nil
	case "file":
		return file.NewSessionStore(cfg.Store.Path, logger), nil, func() {}, nil
	case "sqlite":
		store, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		closeStore := func() {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close sqlite store", "error", err)
			}
		}
		return store, store, closeStore, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
}

// buildCalendar constructs the calendar gateway. Dev mode without a
// calendar ID uses an in-process gateway that only logs, so the full
// start/stop/extend flow works offline.
func buildCalendar(cfg *config.Config, logger *slog.Logger) outbound.CalendarGateway {
	if cfg.DevMode && cfg.Calendar.CalendarID == "" {
		logger.Info("dev mode: calendar events are logged, not sent")
		return &loggingCalendar{logger: logger}
	}

	opts := []gcal.Option{gcal.WithTimeout(cfg.CalendarTimeout())}
	if cfg.Calendar.BearerToken != "" {
		opts = append(opts, gcal.WithBearerToken(cfg.Calendar.BearerToken))
	}
	return gcal.NewClient(cfg.Calendar.CalendarID, opts...)
}

// loggingCalendar is the dev-mode calendar gateway.
type loggingCalendar struct {
	logger *slog.Logger
}

func (c *loggingCalendar) InsertEvent(ctx context.Context, ev outbound.Event) (string, error) {
	id := uuid.New().String()
	c.logger.Info("calendar insert (dev)",
		"event_id", id, "summary", ev.Summary, "start", ev.Start, "end", ev.End)
	return id, nil
}

func (c *loggingCalendar) PatchEventEnd(ctx context.Context, eventID string, newEnd time.Time) error {
	c.logger.Info("calendar patch (dev)", "event_id", eventID, "new_end", newEnd)
	return nil
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// pidFilePath returns the standard location for the workbot PID file.
func pidFilePath() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".workbot", "server.pid")
	}
	return filepath.Join(os.TempDir(), "workbot-server.pid")
}

// writePIDFile writes the current process PID to the given path, creating
// parent directories as needed.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// readPIDFile reads a PID from the given file path. Returns 0 if unreadable.
func readPIDFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
