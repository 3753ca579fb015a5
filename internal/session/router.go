package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/electr1fy0/relay/internal/protocol"
	"github.com/electr1fy0/relay/internal/registry"
)

// Remote reaches users connected to other relay nodes.
type Remote interface {
	Claim(ctx context.Context, h *registry.Handle) error
	Release(ctx context.Context, h *registry.Handle) error
	// Forward reports whether some node accepted the message.
	Forward(ctx context.Context, msg protocol.Message) (bool, error)
}

// Router decides where a frame goes. It is shared by every session.
type Router struct {
	registry *registry.Registry
	remote   Remote
	logger   *slog.Logger
}

// NewRouter builds a router over reg. remote may be nil for a single node.
func NewRouter(reg *registry.Registry, remote Remote, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: reg,
		remote:   remote,
		logger:   logger,
	}
}

// Attach makes h reachable on this node, replacing any earlier handle for
// the same username.
func (r *Router) Attach(h *registry.Handle) {
	r.registry.Register(h)
}

// Claim publishes h to the remote directory so other nodes route to it.
// Failures are logged; h stays reachable locally.
func (r *Router) Claim(ctx context.Context, h *registry.Handle) {
	if r.remote == nil {
		return
	}
	if err := r.remote.Claim(ctx, h); err != nil {
		r.logger.Warn("presence claim failed",
			"username", h.Username(),
			"session_id", h.ID(),
			"error", err,
		)
	}
}

// Detach removes h if it still owns its username. It is safe to call for a
// handle that was never attached, and more than once.
func (r *Router) Detach(ctx context.Context, h *registry.Handle) bool {
	if h == nil {
		return false
	}
	removed := r.registry.Unregister(h)
	if r.remote != nil {
		if err := r.remote.Release(ctx, h); err != nil {
			r.logger.Warn("presence release failed",
				"username", h.Username(),
				"session_id", h.ID(),
				"error", err,
			)
		}
	}
	return removed
}

// Route parses one frame from sender and forwards it. The returned message
// is zero when the frame is malformed.
func (r *Router) Route(ctx context.Context, sender, frame string) (protocol.Message, protocol.Outcome) {
	msg, err := protocol.Parse(sender, frame)
	if err != nil {
		r.logger.Debug("malformed frame", "username", sender)
		return msg, protocol.Malformed
	}

	if h, ok := r.registry.Lookup(msg.Recipient); ok {
		if err := h.Send(ctx, msg.Delivery()); err != nil {
			r.logger.Debug("recipient send failed",
				"username", sender,
				"recipient", msg.Recipient,
				"error", err,
			)
			return msg, protocol.Unreachable
		}
		return msg, protocol.Delivered
	}

	if r.remote != nil {
		ok, err := r.remote.Forward(ctx, msg)
		if err != nil {
			r.logger.Warn("remote forward failed",
				"username", sender,
				"recipient", msg.Recipient,
				"error", err,
			)
		}
		if ok {
			return msg, protocol.Delivered
		}
	}
	return msg, protocol.Unreachable
}

// Deliver hands a message that arrived from another node to a local recipient.
func (r *Router) Deliver(ctx context.Context, msg protocol.Message) error {
	h, ok := r.registry.Lookup(msg.Recipient)
	if !ok {
		return fmt.Errorf("deliver to %q: %w", msg.Recipient, ErrUnreachable)
	}
	if err := h.Send(ctx, msg.Delivery()); err != nil {
		return fmt.Errorf("deliver to %q: %w", msg.Recipient, err)
	}
	return nil
}
