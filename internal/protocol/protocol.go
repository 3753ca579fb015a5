// Package protocol defines the text framing spoken between clients and the relay.
//
// A client sends "<recipient>|<body>". The recipient receives "<sender>: <body>".
// The sender gets exactly one reply per frame, one of DeliveredNotice,
// UnreachableNotice or MalformedNotice.
package protocol

import (
	"errors"
	"strings"
)

// Delimiter separates the recipient from the body. Only the first one counts.
const Delimiter = "|"

var ErrMalformedFrame = errors.New("frame has no recipient delimiter")

// Message is one routed frame. It is never stored.
type Message struct {
	Sender    string
	Recipient string
	Body      string
}

// Parse splits an inbound frame on the first delimiter.
// An empty recipient is treated as malformed.
func Parse(sender, frame string) (Message, error) {
	recipient, body, ok := strings.Cut(frame, Delimiter)
	if !ok || recipient == "" {
		return Message{}, ErrMalformedFrame
	}
	return Message{Sender: sender, Recipient: recipient, Body: body}, nil
}

// Delivery is the text written to the recipient.
func (m Message) Delivery() string {
	return m.Sender + ": " + m.Body
}

// Outcome is the result of routing one frame.
type Outcome int

const (
	Delivered Outcome = iota
	Unreachable
	Malformed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Unreachable:
		return "unreachable"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

func DeliveredNotice(recipient string) string {
	return "Message sent to " + recipient
}

func UnreachableNotice(recipient string) string {
	return "User " + recipient + " not found"
}

func MalformedNotice() string {
	return "Malformed message: expected <recipient>" + Delimiter + "<message>"
}

// Reply renders the sender-facing text for an outcome.
func Reply(o Outcome, recipient string) string {
	switch o {
	case Delivered:
		return DeliveredNotice(recipient)
	case Unreachable:
		return UnreachableNotice(recipient)
	default:
		return MalformedNotice()
	}
}
