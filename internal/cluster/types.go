// Package cluster lets relay nodes that share a Redis reach each other's users.
//
// Each node records "username -> node/handle" presence keys and listens on its
// own pub/sub channel. A message for a user that is not connected locally is
// published on the channel of the node holding that user's presence key. When
// a user reconnects on another node, the node that held the old connection is
// told to drop it from its registry.
package cluster

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/electr1fy0/relay/internal/protocol"
)

const (
	DefaultKeyPrefix          = "relay"
	DefaultPresenceTTL        = 60 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
)

var errBadPresence = errors.New("malformed presence value")

type Config struct {
	NodeID      string
	KeyPrefix   string
	PresenceTTL time.Duration

	// Backoff between attempts to re-subscribe after the pub/sub
	// connection drops.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
}

// Deliverer hands a message from another node to a local user.
type Deliverer interface {
	Deliver(ctx context.Context, msg protocol.Message) error
}

const (
	kindMessage = "message"
	kindEvict   = "evict"
)

// envelope is what travels over a node channel. An evict envelope names the
// superseded handle of Recipient.
type envelope struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Origin    string `json:"origin"`
	Sender    string `json:"sender,omitempty"`
	Recipient string `json:"recipient"`
	Body      string `json:"body,omitempty"`
	Handle    string `json:"handle,omitempty"`
}

func (e envelope) message() protocol.Message {
	return protocol.Message{Sender: e.Sender, Recipient: e.Recipient, Body: e.Body}
}

func presenceValue(nodeID, handleID string) string {
	return nodeID + "/" + handleID
}

func parsePresence(v string) (nodeID, handleID string, err error) {
	nodeID, handleID, ok := strings.Cut(v, "/")
	if !ok || nodeID == "" || handleID == "" {
		return "", "", errBadPresence
	}
	return nodeID, handleID, nil
}
