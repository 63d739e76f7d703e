package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nirmalnpatel111/new-discord-bot/internal/domain/session"
	"github.com/nirmalnpatel111/new-discord-bot/pkg/chatwire"
)

// CommandService turns chat messages into session operations and
// human-readable replies. Commands are case-insensitive and
// whitespace-trimmed; anything that is not a command gets an empty reply.
type CommandService struct {
	manager  *session.Manager
	logger   *slog.Logger
	commands metric.Int64Counter
}

// NewCommandService creates a CommandService over the session manager.
func NewCommandService(manager *session.Manager, logger *slog.Logger) *CommandService {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter("github.com/nirmalnpatel111/new-discord-bot/internal/service")
	commands, err := meter.Int64Counter("workbot.commands",
		metric.WithDescription("Chat commands handled, by kind and outcome"))
	if err != nil {
		logger.Warn("failed to create command counter", "error", err)
	}
	return &CommandService{manager: manager, logger: logger, commands: commands}
}

// Handle processes one inbound message and returns the reply to send back.
// A zero-valued Reply means the message was not addressed to the bot.
func (s *CommandService) Handle(ctx context.Context, msg chatwire.Message) chatwire.Reply {
	content := strings.ToLower(strings.TrimSpace(msg.Content))

	switch {
	case strings.HasPrefix(content, "start"):
		return s.handleStart(ctx, msg, content)
	case strings.HasPrefix(content, "stop"):
		return s.handleStop(ctx, msg)
	default:
		return chatwire.Reply{}
	}
}

func (s *CommandService) handleStart(ctx context.Context, msg chatwire.Message, content string) chatwire.Reply {
	permitted := s.manager.PermittedLocations()

	if len(strings.Fields(content)) == 1 {
		s.record(ctx, "start", "prompt")
		return chatwire.Reply{Text: fmt.Sprintf("%s Mention the location (choose one: %s).",
			msg.Mention(), strings.Join(permitted, ", "))}
	}

	location := scanLocation(content, permitted)
	if location == "" {
		s.record(ctx, "start", "invalid_location")
		return chatwire.Reply{Text: fmt.Sprintf("%s Invalid location! Options: %s",
			msg.Mention(), strings.Join(permitted, ", "))}
	}

	actor := session.Actor{ID: msg.UserID, DisplayName: msg.DisplayName}
	id, err := s.manager.Start(ctx, actor, location, msg.ScopeID)
	switch {
	case err == nil:
		s.record(ctx, "start", "ok")
		return chatwire.Reply{Text: fmt.Sprintf(
			"%s Starting a session at **%s**. Calendar event created and will keep extending. Session ID: `%s`",
			msg.Mention(), location, id)}
	case errors.Is(err, session.ErrAlreadyActive):
		s.record(ctx, "start", "already_active")
		return chatwire.Reply{Text: fmt.Sprintf(
			"%s You already have an active session. Send 'stop' first.", msg.Mention())}
	case errors.Is(err, session.ErrStartDenied):
		s.record(ctx, "start", "denied")
		return chatwire.Reply{Text: fmt.Sprintf(
			"%s You're not allowed to start a session right now.", msg.Mention())}
	case errors.Is(err, session.ErrCalendarUnavailable):
		s.record(ctx, "start", "calendar_unavailable")
		return chatwire.Reply{Text: fmt.Sprintf(
			"%s Couldn't create the calendar event. Try again.", msg.Mention())}
	default:
		s.record(ctx, "start", "error")
		s.logger.Error("start command failed", "user_id", msg.UserID, "error", err)
		return chatwire.Reply{Text: fmt.Sprintf(
			"%s Sorry, something went wrong starting your session.", msg.Mention())}
	}
}

func (s *CommandService) handleStop(ctx context.Context, msg chatwire.Message) chatwire.Reply {
	actor := session.Actor{ID: msg.UserID, DisplayName: msg.DisplayName}
	id, err := s.manager.Stop(ctx, actor, msg.ScopeID)
	switch {
	case err == nil:
		s.record(ctx, "stop", "ok")
		what := "your latest active session"
		if msg.ScopeID != "" {
			what = "this scope's session"
		}
		return chatwire.Reply{Text: fmt.Sprintf(
			"%s Stopped %s (`%s`). Final end time recorded on the calendar.",
			msg.Mention(), what, id)}
	case errors.Is(err, session.ErrNoActiveSession):
		s.record(ctx, "stop", "no_active")
		return chatwire.Reply{Text: fmt.Sprintf(
			"%s You have no active session to stop.", msg.Mention())}
	default:
		s.record(ctx, "stop", "error")
		s.logger.Error("stop command failed", "user_id", msg.UserID, "error", err)
		return chatwire.Reply{Text: fmt.Sprintf(
			"%s Sorry, something went wrong stopping your session.", msg.Mention())}
	}
}

// scanLocation finds the permitted location mentioned in the message. The
// earliest occurrence in the text wins; on a tie (one token is a prefix of
// another at the same offset) the longer token wins.
func scanLocation(content string, permitted []string) string {
	best := ""
	bestIdx := -1
	for _, loc := range permitted {
		idx := strings.Index(content, loc)
		if idx < 0 {
			continue
		}
		if bestIdx == -1 || idx < bestIdx || (idx == bestIdx && len(loc) > len(best)) {
			best = loc
			bestIdx = idx
		}
	}
	return best
}

func (s *CommandService) record(ctx context.Context, kind, outcome string) {
	if s.commands == nil {
		return
	}
	s.commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", kind),
			attribute.String("outcome", outcome),
		))
}
