package pubsub

import "context"

// Message is one payload received on a channel.
type Message struct {
	Channel string
	Payload string
}

// Publisher sends payloads to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message string) error
	Close() error
}

// Subscriber receives payloads from channels until its context ends or it is closed.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (<-chan Message, error)
	Close() error
}

// PubSub combines Publisher and Subscriber
type PubSub interface {
	Publisher
	Subscriber
}
