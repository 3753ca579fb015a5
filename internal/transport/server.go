package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/electr1fy0/relay/internal/session"
)

const (
	DefaultReadLimit     = 64 << 10
	DefaultSendBuffer    = 256
	DefaultWriteWait     = 5 * time.Second
	DefaultPingPeriod    = 15 * time.Second
	DefaultUsernameParam = "username"
)

type Config struct {
	ReadLimit     int64
	SendBuffer    int
	WriteWait     time.Duration
	PingPeriod    time.Duration
	UsernameParam string

	// OriginPatterns restricts cross-origin upgrades. Empty allows any origin.
	OriginPatterns []string
}

func (c *Config) applyDefaults() {
	if c.ReadLimit <= 0 {
		c.ReadLimit = DefaultReadLimit
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = DefaultPingPeriod
	}
	if c.UsernameParam == "" {
		c.UsernameParam = DefaultUsernameParam
	}
}

// Server upgrades HTTP requests to websockets and runs one session per
// connection. Mount it on "/ws/{username}" and "/ws".
type Server struct {
	cfg         Config
	router      *session.Router
	logger      *slog.Logger
	sessionOpts []session.Option

	mu       sync.Mutex
	sessions map[*session.Session]struct{}
	wg       sync.WaitGroup
	closing  bool
}

func NewServer(router *session.Router, cfg Config, logger *slog.Logger, opts ...session.Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &Server{
		cfg:         cfg,
		router:      router,
		logger:      logger,
		sessionOpts: append([]session.Option{session.WithLogger(logger)}, opts...),
		sessions:    make(map[*session.Session]struct{}),
	}
}

// ServeHTTP accepts the websocket and blocks for the life of the session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if username == "" {
		username = r.URL.Query().Get(s.cfg.UsernameParam)
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: len(s.cfg.OriginPatterns) == 0,
		OriginPatterns:     s.cfg.OriginPatterns,
	})
	if err != nil {
		s.logger.Debug("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(s.cfg.ReadLimit)

	conn := newConn(ws, s.cfg)
	sess, err := session.New(username, conn, s.router, s.sessionOpts...)
	if err != nil {
		s.logger.Info("rejected connection", "remote", r.RemoteAddr, "error", err)
		_ = ws.Close(websocket.StatusPolicyViolation, "invalid username")
		return
	}

	if !s.track(sess) {
		_ = ws.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.untrack(sess)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	go conn.writePump(ctx)

	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("session ended with error", "username", username, "error", err)
	}
}

func (s *Server) track(sess *session.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions[sess] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(sess *session.Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	s.wg.Done()
}

// Active reports the number of running sessions.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown closes every session and waits for them to finish cleanup.
// New connections are refused once it has been called.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	open := make([]*session.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		go sess.Close("server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
