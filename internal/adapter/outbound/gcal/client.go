// Package gcal provides a Google Calendar adapter implementing the
// outbound.CalendarGateway interface over the Calendar v3 REST API.
package gcal

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nirmalnpatel111/new-discord-bot/internal/port/outbound"
)

const (
	// defaultBaseURL is the Calendar v3 API root.
	defaultBaseURL = "https://www.googleapis.com/calendar/v3"

	// maxResponseBodySize bounds response reads from the calendar API.
	// Prevents OOM from an unexpected unbounded response.
	maxResponseBodySize = 1 * 1024 * 1024 // 1MB
)

// Client talks to the Google Calendar v3 events API for a single calendar.
// It implements the outbound.CalendarGateway interface.
type Client struct {
	baseURL    string
	calendarID string
	token      string
	httpClient *http.Client
}

// Option is a functional option for configuring Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (used in tests and for custom
// auth transports such as oauth2.Transport).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithBaseURL overrides the API root. Used for tests and API proxies.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithBearerToken sets a static bearer token attached to every request.
// When the HTTP client already injects credentials (oauth2 transport),
// leave this unset.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout sets the request timeout for the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a calendar client for the given calendar ID.
func NewClient(calendarID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		calendarID: calendarID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// eventTime is the Calendar API dateTime object. The timeZone field is set
// explicitly so the API never falls back to the calendar default.
type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type eventBody struct {
	Summary     string     `json:"summary,omitempty"`
	Location    string     `json:"location,omitempty"`
	Description string     `json:"description,omitempty"`
	Start       *eventTime `json:"start,omitempty"`
	End         *eventTime `json:"end,omitempty"`
}

type eventResponse struct {
	ID string `json:"id"`
}

// InsertEvent creates a calendar event and returns its ID.
func (c *Client) InsertEvent(ctx context.Context, ev outbound.Event) (string, error) {
	body := eventBody{
		Summary:     ev.Summary,
		Location:    ev.Location,
		Description: ev.Description,
		Start:       toEventTime(ev.Start),
		End:         toEventTime(ev.End),
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(c.calendarID))
	respBody, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}

	var resp eventResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("parse event response: %w", err)
	}
	if resp.ID == "" {
		return "", errors.New("calendar returned event without ID")
	}
	return resp.ID, nil
}

// PatchEventEnd moves an existing event's end time. Only the end field is
// sent, so concurrent edits to other fields are never clobbered.
func (c *Client) PatchEventEnd(ctx context.Context, eventID string, newEnd time.Time) error {
	body := eventBody{End: toEventTime(newEnd)}

	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s",
		c.baseURL, url.PathEscape(c.calendarID), url.PathEscape(eventID))
	_, err := c.do(ctx, http.MethodPatch, endpoint, body)
	return err
}

// do sends one JSON request and returns the response body.
// Network errors and retryable statuses (429, 5xx) wrap
// outbound.ErrUnavailable so callers can classify the failure.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", outbound.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", outbound.ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: http status %d: %s",
			outbound.ErrUnavailable, resp.StatusCode, truncate(respBody, 256))
	default:
		return nil, fmt.Errorf("calendar request failed: http status %d: %s",
			resp.StatusCode, truncate(respBody, 256))
	}
}

func toEventTime(t time.Time) *eventTime {
	return &eventTime{
		DateTime: t.UTC().Format(time.RFC3339),
		TimeZone: "UTC",
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Compile-time check that Client implements the gateway interface.
var _ outbound.CalendarGateway = (*Client)(nil)
