// Package inbound defines the driving-side ports of the application.
package inbound

import "context"

// Transport accepts chat messages from the outside world and feeds them to
// the command service. Implementations block in Start until the context is
// cancelled or a fatal error occurs.
type Transport interface {
	Start(ctx context.Context) error
	Close() error
}
