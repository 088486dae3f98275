package ports

import "context"

// MessageHandler receives raw payloads from a subscription. It must not
// block for long; the bus delivers messages sequentially.
type MessageHandler func(topic string, payload []byte)

type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error
}

type Bus interface {
	Publisher
	Subscriber
	Close() error
}
