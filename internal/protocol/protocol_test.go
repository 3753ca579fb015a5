package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		recipient string
		body      string
		wantErr   bool
	}{
		{name: "simple", frame: "bob|hello", recipient: "bob", body: "hello"},
		{name: "first delimiter only", frame: "bob|a|b|c", recipient: "bob", body: "a|b|c"},
		{name: "empty body", frame: "bob|", recipient: "bob", body: ""},
		{name: "spaces kept", frame: "bob| hi there ", recipient: "bob", body: " hi there "},
		{name: "no delimiter", frame: "no-delimiter-here", wantErr: true},
		{name: "empty frame", frame: "", wantErr: true},
		{name: "empty recipient", frame: "|hello", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse("alice", tt.frame)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedFrame)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", msg.Sender)
			assert.Equal(t, tt.recipient, msg.Recipient)
			assert.Equal(t, tt.body, msg.Body)
		})
	}
}

func TestMessage_Delivery(t *testing.T) {
	msg, err := Parse("alice", "bob|hello")
	require.NoError(t, err)
	assert.Equal(t, "alice: hello", msg.Delivery())
}

func TestReply(t *testing.T) {
	assert.Equal(t, "Message sent to bob", Reply(Delivered, "bob"))
	assert.Equal(t, "User carol not found", Reply(Unreachable, "carol"))
	assert.Equal(t, "Malformed message: expected <recipient>|<message>", Reply(Malformed, ""))
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "delivered", Delivered.String())
	assert.Equal(t, "unreachable", Unreachable.String())
	assert.Equal(t, "malformed", Malformed.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
