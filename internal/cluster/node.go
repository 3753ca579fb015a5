package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/electr1fy0/relay/internal/protocol"
	"github.com/electr1fy0/relay/internal/registry"
)

// releaseScript deletes a presence key only if this handle still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends a presence key we own, or restores it if it expired.
var refreshScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if not cur then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

// Node is this process's membership in the cluster.
type Node struct {
	id        string
	prefix    string
	ttl       time.Duration
	baseDelay time.Duration
	maxDelay  time.Duration
	rdb       redis.UniversalClient
	registry  *registry.Registry
	logger    *slog.Logger
}

func NewNode(rdb redis.UniversalClient, reg *registry.Registry, cfg Config, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.PresenceTTL <= 0 {
		cfg.PresenceTTL = DefaultPresenceTTL
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay < cfg.ReconnectBaseDelay {
		cfg.ReconnectMaxDelay = max(DefaultReconnectMaxDelay, cfg.ReconnectBaseDelay)
	}
	return &Node{
		id:        cfg.NodeID,
		prefix:    cfg.KeyPrefix,
		ttl:       cfg.PresenceTTL,
		baseDelay: cfg.ReconnectBaseDelay,
		maxDelay:  cfg.ReconnectMaxDelay,
		rdb:       rdb,
		registry:  reg,
		logger:    logger.With("node_id", cfg.NodeID),
	}
}

func (n *Node) ID() string { return n.id }

func (n *Node) presenceKey(username string) string {
	return n.prefix + ":presence:" + username
}

func (n *Node) channel(nodeID string) string {
	return n.prefix + ":node:" + nodeID
}

// Claim points username at h on this node. If another node held the name,
// that node is told to drop its handle so it stops routing to it locally.
func (n *Node) Claim(ctx context.Context, h *registry.Handle) error {
	prev, err := n.rdb.SetArgs(ctx, n.presenceKey(h.Username()), presenceValue(n.id, h.ID()), redis.SetArgs{
		TTL: n.ttl,
		Get: true,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("claim %q: %w", h.Username(), err)
	}
	if prev == "" {
		return nil
	}

	prevNode, prevHandle, err := parsePresence(prev)
	if err != nil || prevNode == n.id {
		return nil
	}
	if err := n.publish(ctx, prevNode, envelope{
		Kind:      kindEvict,
		Recipient: h.Username(),
		Handle:    prevHandle,
	}); err != nil {
		n.logger.Warn("eviction notice failed",
			"username", h.Username(),
			"previous_node", prevNode,
			"error", err,
		)
	}
	return nil
}

// Release drops the presence key if h still owns it.
func (n *Node) Release(ctx context.Context, h *registry.Handle) error {
	keys := []string{n.presenceKey(h.Username())}
	if err := releaseScript.Run(ctx, n.rdb, keys, presenceValue(n.id, h.ID())).Err(); err != nil {
		return fmt.Errorf("release %q: %w", h.Username(), err)
	}
	return nil
}

// Forward publishes msg to the node that holds the recipient. It reports
// false when no other node claims the recipient or nobody is listening.
func (n *Node) Forward(ctx context.Context, msg protocol.Message) (bool, error) {
	val, err := n.rdb.Get(ctx, n.presenceKey(msg.Recipient)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %q: %w", msg.Recipient, err)
	}

	nodeID, _, err := parsePresence(val)
	if err != nil {
		return false, fmt.Errorf("lookup %q: %w", msg.Recipient, err)
	}
	if nodeID == n.id {
		// Our own leftover claim; the local registry already missed.
		return false, nil
	}

	receivers, err := n.publishCount(ctx, nodeID, envelope{
		Kind:      kindMessage,
		Sender:    msg.Sender,
		Recipient: msg.Recipient,
		Body:      msg.Body,
	})
	if err != nil {
		return false, err
	}
	return receivers > 0, nil
}

func (n *Node) publish(ctx context.Context, nodeID string, env envelope) error {
	_, err := n.publishCount(ctx, nodeID, env)
	return err
}

func (n *Node) publishCount(ctx context.Context, nodeID string, env envelope) (int64, error) {
	env.ID = uuid.NewString()
	env.Origin = n.id
	data, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("encode envelope: %w", err)
	}

	receivers, err := n.rdb.Publish(ctx, n.channel(nodeID), data).Result()
	if err != nil {
		return 0, fmt.Errorf("publish to %s: %w", nodeID, err)
	}
	return receivers, nil
}

// Run listens for envelopes addressed to this node and keeps presence keys
// alive until ctx is done. Redis outages are logged and retried; they only
// cost cross-node reach, so Run returns nil once ctx ends.
func (n *Node) Run(ctx context.Context, d Deliverer) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.listen(ctx, d) })
	g.Go(func() error { return n.refreshLoop(ctx) })
	return g.Wait()
}

func (n *Node) listen(ctx context.Context, d Deliverer) error {
	delay := n.baseDelay
	for {
		err := n.subscribe(ctx, d, func() { delay = n.baseDelay })
		if ctx.Err() != nil {
			return nil
		}
		n.logger.Warn("node channel lost, resubscribing", "retry_in", delay, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, n.maxDelay)
	}
}

// subscribe runs one subscription until it fails. onReady fires once the
// subscription is confirmed.
func (n *Node) subscribe(ctx context.Context, d Deliverer, onReady func()) error {
	pubsub := n.rdb.Subscribe(ctx, n.channel(n.id))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	onReady()
	n.logger.Info("subscribed to node channel", "channel", n.channel(n.id))

	for {
		m, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		n.handle(ctx, d, []byte(m.Payload))
	}
}

func (n *Node) handle(ctx context.Context, d Deliverer, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		n.logger.Warn("dropping undecodable envelope", "error", err)
		return
	}

	if env.Kind == kindEvict {
		n.evict(env.Recipient, env.Handle, env.Origin)
		return
	}

	if err := d.Deliver(ctx, env.message()); err != nil {
		n.logger.Debug("remote delivery failed",
			"origin", env.Origin,
			"recipient", env.Recipient,
			"error", err,
		)
	}
}

// evict unregisters the local handle for username if it is handleID.
// The connection stays open; its own session still owns it.
func (n *Node) evict(username, handleID, byNode string) {
	h, ok := n.registry.Lookup(username)
	if !ok || h.ID() != handleID {
		return
	}
	if n.registry.Unregister(h) {
		n.logger.Info("dropped superseded session",
			"username", username,
			"session_id", handleID,
			"claimed_by", byNode,
		)
	}
}

func (n *Node) refreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(n.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := n.refresh(ctx); err != nil {
				n.logger.Warn("presence refresh failed", "error", err)
			}
		}
	}
}

// refresh re-asserts presence for every local user in one round trip.
func (n *Node) refresh(ctx context.Context) error {
	handles := n.registry.Snapshot()
	if len(handles) == 0 {
		return nil
	}

	ttl := n.ttl.Milliseconds()
	pipe := n.rdb.Pipeline()
	for _, h := range handles {
		refreshScript.Eval(ctx, pipe, []string{n.presenceKey(h.Username())}, presenceValue(n.id, h.ID()), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("refresh %d users: %w", len(handles), err)
	}
	return nil
}
