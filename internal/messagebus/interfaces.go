package messagebus

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/jordanhubbard/inanna/pkg/messages"
)

// EventPublisher abstracts event publishing for testability.
type EventPublisher interface {
	PublishEvent(event *messages.EventMessage) error
}

// ResponsePublisher abstracts response delivery for testability.
type ResponsePublisher interface {
	Deliver(ctx context.Context, resp messages.Response) error
}

// InboundSubscriber abstracts the inbound subscription for testability.
type InboundSubscriber interface {
	SubscribeInbound(handler nats.MsgHandler) error
}

// Submitter accepts envelopes for processing, e.g. the dispatcher.
type Submitter interface {
	Submit(env *messages.Envelope) error
}

// Verify NatsMessageBus implements all interfaces at compile time.
var (
	_ EventPublisher    = (*NatsMessageBus)(nil)
	_ ResponsePublisher = (*NatsMessageBus)(nil)
	_ InboundSubscriber = (*NatsMessageBus)(nil)
)
