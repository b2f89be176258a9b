// Package transport moves protocol lines between two devices. Every
// implementation delivers a line whole or not at all; none of them retries.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned when sending on a transport that has shut down.
var ErrClosed = errors.New("transport closed")

// LineTransport is a line-oriented connection to one peer.
type LineTransport interface {
	// SendLine writes one line. peer is informational for point-to-point
	// transports.
	SendLine(ctx context.Context, peer, line string) error
	// OnLine registers the callback invoked for every inbound line. The peer
	// argument is the remote address.
	OnLine(fn func(peer, line string))
	// Done is closed once the transport has shut down.
	Done() <-chan struct{}
	Close() error
}
