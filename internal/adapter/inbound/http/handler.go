package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nirmalnpatel111/new-discord-bot/internal/metrics"
	"github.com/nirmalnpatel111/new-discord-bot/internal/service"
	"github.com/nirmalnpatel111/new-discord-bot/pkg/chatwire"
)

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// errorResponse is the JSON body for client errors.
type errorResponse struct {
	Error string `json:"error"`
}

// messagesHandler handles POST /v1/messages. Each request carries one chat
// message; the command service's reply goes back in the response body.
// Duplicate deliveries (webhook retries) are dropped before they reach the
// command service.
func messagesHandler(svc *service.CommandService, dedup *dedupCache, m *metrics.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		logger := LoggerFromContext(r.Context())

		body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer func() { _, _ = io.Copy(io.Discard, body) }()

		var msg chatwire.Message
		dec := json.NewDecoder(body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&msg); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "malformed JSON body")
			return
		}

		if err := msg.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if dedup.Seen(msg.MessageID) {
			logger.Debug("dropping duplicate delivery", "message_id", msg.MessageID)
			if m != nil {
				m.DuplicateDrops.Inc()
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		reply := svc.Handle(r.Context(), msg)
		if reply.Text == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(reply); err != nil {
			logger.Error("failed to write reply", "error", err)
		}
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
