package session

import (
	"context"
	"errors"
)

var (
	// ErrClosed reports a clean close of the session's own connection.
	ErrClosed = errors.New("connection closed")

	ErrInvalidUsername = errors.New("invalid username")
	ErrUnreachable     = errors.New("recipient unreachable")
)

// Conn is what a session needs from the transport. Receive is the only
// place a session blocks waiting for its client.
type Conn interface {
	// Receive returns the next text frame, ErrClosed on a clean close, or a
	// transport error.
	Receive(ctx context.Context) (string, error)

	// Send writes one text frame to this client. It may block while the
	// transport applies backpressure.
	Send(ctx context.Context, text string) error

	Close(reason string) error
}
