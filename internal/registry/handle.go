package registry

import (
	"context"

	"github.com/google/uuid"
)

// Sink is the write capability of one connected client.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// Handle is one user's live session as seen by the registry.
// Identity is the pointer; two handles for the same username are never equal.
type Handle struct {
	id       string
	username string
	sink     Sink
}

func NewHandle(username string, sink Sink) *Handle {
	return &Handle{
		id:       uuid.NewString(),
		username: username,
		sink:     sink,
	}
}

func (h *Handle) ID() string       { return h.id }
func (h *Handle) Username() string { return h.username }

// Send writes text to the client behind this handle.
func (h *Handle) Send(ctx context.Context, text string) error {
	return h.sink.Send(ctx, text)
}
