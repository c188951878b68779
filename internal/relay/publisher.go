package relay

import (
	"context"

	"github.com/telhawk-systems/telhawk-beacon/common/messaging"
	"github.com/telhawk-systems/telhawk-beacon/common/messaging/nats"
)

// Publisher moves serialized envelopes onto the broker.
type Publisher interface {
	// EnsureStream creates or updates the stream envelopes are published to.
	EnsureStream(ctx context.Context) error

	// PublishEnvelope publishes msg and returns once the broker has stored it.
	PublishEnvelope(ctx context.Context, msg *messaging.Message) error
}

// JetStreamPublisher publishes envelopes to a JetStream stream.
type JetStreamPublisher struct {
	js     *nats.JetStreamClient
	stream nats.StreamConfig
}

// NewJetStreamPublisher returns a publisher writing to stream through js.
func NewJetStreamPublisher(js *nats.JetStreamClient, stream nats.StreamConfig) *JetStreamPublisher {
	return &JetStreamPublisher{js: js, stream: stream}
}

func (p *JetStreamPublisher) EnsureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, p.stream)
	return err
}

func (p *JetStreamPublisher) PublishEnvelope(ctx context.Context, msg *messaging.Message) error {
	_, err := p.js.PublishSync(ctx, msg)
	return err
}
