package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/electr1fy0/relay/internal/protocol"
	"github.com/electr1fy0/relay/internal/registry"
)

const (
	DefaultMaxUsernameLength = 64
	claimTimeout             = 2 * time.Second
	cleanupTimeout           = 5 * time.Second
)

type State int32

const (
	Connecting State = iota
	Active
	Closing
	Terminated
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session drives one client connection from registration to cleanup.
type Session struct {
	username string
	conn     Conn
	router   *Router
	handle   *registry.Handle
	logger   *slog.Logger
	limiter  *rate.Limiter
	maxName  int

	// lifecycle serializes Run's local registration against close. It is
	// never held across a remote call.
	lifecycle sync.Mutex
	state     atomic.Int32
}

type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRateLimit paces inbound frames to perSecond with the given burst.
// A non-positive perSecond disables pacing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Session) {
		if perSecond <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

func WithMaxUsernameLength(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxName = n
		}
	}
}

// New validates username and prepares a session in the Connecting state.
func New(username string, conn Conn, router *Router, opts ...Option) (*Session, error) {
	s := &Session{
		username: username,
		conn:     conn,
		router:   router,
		logger:   slog.Default(),
		limiter:  rate.NewLimiter(rate.Inf, 0),
		maxName:  DefaultMaxUsernameLength,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := ValidateUsername(username, s.maxName); err != nil {
		return nil, err
	}

	s.handle = registry.NewHandle(username, conn)
	s.logger = s.logger.With("username", username, "session_id", s.handle.ID())
	return s, nil
}

// ValidateUsername rejects names that could not be addressed in a frame.
func ValidateUsername(name string, maxLen int) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidUsername)
	case strings.TrimSpace(name) != name:
		return fmt.Errorf("%w: surrounding whitespace", ErrInvalidUsername)
	case strings.Contains(name, protocol.Delimiter):
		return fmt.Errorf("%w: contains %q", ErrInvalidUsername, protocol.Delimiter)
	case maxLen > 0 && len(name) > maxLen:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidUsername, maxLen)
	}
	return nil
}

func (s *Session) Username() string         { return s.username }
func (s *Session) Handle() *registry.Handle { return s.handle }
func (s *Session) State() State             { return State(s.state.Load()) }

// Run registers the session and processes frames until the connection ends.
// A clean close returns nil. The registry entry is always cleaned up.
func (s *Session) Run(ctx context.Context) error {
	s.lifecycle.Lock()
	if s.State() != Connecting {
		s.lifecycle.Unlock()
		return ErrClosed
	}
	s.router.Attach(s.handle)
	s.state.Store(int32(Active))
	s.lifecycle.Unlock()

	defer s.close(ctx, "session ended")

	claimCtx, cancel := context.WithTimeout(ctx, claimTimeout)
	s.router.Claim(claimCtx, s.handle)
	cancel()

	if s.State() != Active {
		// Closed while the claim was in flight; the release in close may
		// have run first.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		s.router.Detach(cleanupCtx, s.handle)
		return nil
	}
	s.logger.Info("session active")

	for {
		frame, err := s.conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}

		msg, outcome := s.router.Route(ctx, s.username, frame)
		if err := s.conn.Send(ctx, protocol.Reply(outcome, msg.Recipient)); err != nil {
			return fmt.Errorf("send reply: %w", err)
		}
	}
}

// Close ends the session from outside Run. It is safe before Run, during
// Run and more than once.
func (s *Session) Close(reason string) {
	s.close(context.Background(), reason)
}

func (s *Session) close(ctx context.Context, reason string) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	switch s.State() {
	case Closing, Terminated:
		return
	}
	s.state.Store(int32(Closing))

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if s.router.Detach(cleanupCtx, s.handle) {
		s.logger.Info("session unregistered", "reason", reason)
	} else {
		s.logger.Debug("session closed without owning its username", "reason", reason)
	}

	if err := s.conn.Close(reason); err != nil {
		s.logger.Debug("close connection", "error", err)
	}
	s.state.Store(int32(Terminated))
}
