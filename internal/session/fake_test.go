package session

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/electr1fy0/relay/internal/protocol"
	"github.com/electr1fy0/relay/internal/registry"
)

// fakeConn is an in-memory Conn. Frames pushed on in are received by the
// session; everything the session sends is recorded.
type fakeConn struct {
	in        chan string
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32

	mu      sync.Mutex
	out     []string
	sendErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan string, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Receive(ctx context.Context) (string, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return "", ErrClosed
		}
		return f, nil
	case <-c.closed:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *fakeConn) Send(_ context.Context, text string) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.out = append(c.out, text)
	return nil
}

func (c *fakeConn) Close(string) error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) failSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

func (c *fakeConn) outputs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.out)
}

func (c *fakeConn) countPrefix(prefixes ...string) int {
	n := 0
	for _, o := range c.outputs() {
		for _, p := range prefixes {
			if strings.HasPrefix(o, p) {
				n++
				break
			}
		}
	}
	return n
}

func waitForOutput(t *testing.T, c *fakeConn, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return slices.Contains(c.outputs(), want)
	}, time.Second, 5*time.Millisecond, "never received %q, got %v", want, c.outputs())
}

type running struct {
	conn    *fakeConn
	session *Session
	done    chan error
}

func startSession(t *testing.T, router *Router, username string, opts ...Option) *running {
	t.Helper()
	conn := newFakeConn()
	s, err := New(username, conn, router, opts...)
	require.NoError(t, err)

	r := &running{conn: conn, session: s, done: make(chan error, 1)}
	go func() { r.done <- s.Run(context.Background()) }()

	require.Eventually(t, func() bool { return s.State() == Active }, time.Second, 5*time.Millisecond)
	return r
}

func (r *running) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate")
		return nil
	}
}

// fakeRemote stands in for the cluster bridge.
type fakeRemote struct {
	mu        sync.Mutex
	reachable map[string]bool
	forwarded []protocol.Message
	claimed   []string
	released  []string
	ops       []string
	err       error

	// When set, Claim signals claimStarted and blocks until gate closes.
	claimStarted chan struct{}
	gate         chan struct{}
}

func (f *fakeRemote) Claim(ctx context.Context, h *registry.Handle) error {
	if f.gate != nil {
		close(f.claimStarted)
		select {
		case <-f.gate:
		case <-ctx.Done():
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed = append(f.claimed, h.ID())
	f.ops = append(f.ops, "claim")
	return f.err
}

func (f *fakeRemote) Release(_ context.Context, h *registry.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, h.ID())
	f.ops = append(f.ops, "release")
	return f.err
}

func (f *fakeRemote) lastOp() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ops) == 0 {
		return ""
	}
	return f.ops[len(f.ops)-1]
}

func (f *fakeRemote) Forward(_ context.Context, msg protocol.Message) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if !f.reachable[msg.Recipient] {
		return false, nil
	}
	f.forwarded = append(f.forwarded, msg)
	return true, nil
}

type failingSink struct{ err error }

func (s failingSink) Send(context.Context, string) error { return s.err }
