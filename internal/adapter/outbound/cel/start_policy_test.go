package cel

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nirmalnpatel111/new-discord-bot/internal/clock"
)

func TestNewStartPolicy_InvalidExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"too long", "actor == \"" + strings.Repeat("a", 2000) + "\""},
		{"too deeply nested", strings.Repeat("(", 60) + "true" + strings.Repeat(")", 60)},
		{"syntax error", "location =="},
		{"unknown variable", "username == \"kim\""},
		{"non-boolean result", "hour + 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStartPolicy(tt.expr, nil); err == nil {
				t.Errorf("expected error for expression %q", tt.expr)
			}
		})
	}
}

func TestStartPolicy_Allow(t *testing.T) {
	// Monday 2026-03-02 09:30 UTC.
	fake := clock.NewFake(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))

	tests := []struct {
		name     string
		expr     string
		actor    string
		location string
		scope    string
		want     bool
	}{
		{"always allow", "true", "u1", "home", "g1", true},
		{"always deny", "false", "u1", "home", "g1", false},
		{"location match", `location == "home"`, "u1", "home", "g1", true},
		{"location mismatch", `location == "home"`, "u1", "ieee", "g1", false},
		{"hour window open", "hour >= 8 && hour < 22", "u1", "ev", "g1", true},
		{"actor allowlist", `actor in ["u1", "u2"]`, "u2", "home", "", true},
		{"actor not listed", `actor in ["u1", "u2"]`, "u3", "home", "", false},
		{"scoped only", `scope != ""`, "u1", "home", "", false},
		{"weekday gate", "weekday >= 1 && weekday <= 5", "u1", "mcgill", "g1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := NewStartPolicy(tt.expr, fake)
			if err != nil {
				t.Fatalf("NewStartPolicy(%q) failed: %v", tt.expr, err)
			}
			got, err := policy.Allow(context.Background(), tt.actor, tt.location, tt.scope)
			if err != nil {
				t.Fatalf("Allow failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Allow(%q, %q, %q) = %v, want %v", tt.actor, tt.location, tt.scope, got, tt.want)
			}
		})
	}
}

func TestStartPolicy_HourFollowsClock(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC))
	policy, err := NewStartPolicy("hour >= 8", fake)
	if err != nil {
		t.Fatalf("NewStartPolicy failed: %v", err)
	}

	got, err := policy.Allow(context.Background(), "u1", "home", "")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if got {
		t.Error("expected deny at 07:00")
	}

	fake.Advance(2 * time.Hour)
	got, err = policy.Allow(context.Background(), "u1", "home", "")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if !got {
		t.Error("expected allow at 09:00")
	}
}
