package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electr1fy0/relay/internal/session"
)

func TestConn_SendQueues(t *testing.T) {
	c := newConn(nil, Config{SendBuffer: 2, WriteWait: 20 * time.Millisecond})

	require.NoError(t, c.Send(context.Background(), "one"))
	require.NoError(t, c.Send(context.Background(), "two"))
	assert.Equal(t, "one", <-c.send)
	assert.Equal(t, "two", <-c.send)
}

func TestConn_SendQueueFull(t *testing.T) {
	c := newConn(nil, Config{SendBuffer: 1, WriteWait: 20 * time.Millisecond})

	require.NoError(t, c.Send(context.Background(), "one"))
	assert.ErrorIs(t, c.Send(context.Background(), "two"), ErrQueueFull)
}

func TestConn_SendCanceled(t *testing.T) {
	c := newConn(nil, Config{SendBuffer: 1, WriteWait: time.Minute})
	require.NoError(t, c.Send(context.Background(), "one"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Send(ctx, "two"), context.Canceled)
}

func TestConn_SendAfterClose(t *testing.T) {
	c := newConn(nil, Config{SendBuffer: 1, WriteWait: time.Second})

	require.NoError(t, c.Close("bye"))
	require.NoError(t, c.Close("bye again"))
	assert.ErrorIs(t, c.Send(context.Background(), "late"), session.ErrClosed)
}

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	assert.Equal(t, int64(DefaultReadLimit), cfg.ReadLimit)
	assert.Equal(t, DefaultSendBuffer, cfg.SendBuffer)
	assert.Equal(t, DefaultWriteWait, cfg.WriteWait)
	assert.Equal(t, DefaultPingPeriod, cfg.PingPeriod)
	assert.Equal(t, DefaultUsernameParam, cfg.UsernameParam)
}
