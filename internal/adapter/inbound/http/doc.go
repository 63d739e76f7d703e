// Package http provides the inbound webhook transport. Chat platforms
// deliver messages as JSON POSTs to /v1/messages; replies go back in the
// response body. The same server exposes /health and /metrics.
package http
