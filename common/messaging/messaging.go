// Package messaging defines the broker types used to move envelopes off the
// device. Implementations live in subpackages.
package messaging

import (
	"context"
	"time"
)

// Message is a message received from or sent to a broker.
type Message struct {
	// Subject is the subject the message was published to.
	Subject string

	// Data is the raw payload, a serialized envelope for envelope subjects.
	Data []byte

	// Metadata carries message headers.
	Metadata map[string]string

	// Timestamp is when the message was published.
	Timestamp time.Time
}

// MessageHandler processes a received message.
// Returning an error leaves the message unacknowledged.
type MessageHandler func(ctx context.Context, msg *Message) error

// Conn is a live broker connection.
type Conn interface {
	IsConnected() bool

	// RTT measures a round trip to the server.
	RTT() (time.Duration, error)
}

// Header names set on envelope messages.
const (
	HeaderEventID     = "Beacon-Event-Id"
	HeaderHardCrashed = "Beacon-Hard-Crashed"
	HeaderSdk         = "Beacon-Sdk"
)
