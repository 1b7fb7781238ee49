package dds

import "context"

// Delivery is one raw payload received on a channel.
type Delivery struct {
	Channel string
	Payload []byte
}

// Transport is the publish-subscribe fabric the binding runs on.
//
// Publish must honour qos.MaxBlockingTime: with a zero bound it returns
// immediately, failing with ErrNotConnected or ErrWouldBlock when the
// message cannot be accepted, and reports later delivery failures as
// PublicationFailed events. Subscribe delivers payloads in transport order;
// a delivery channel that closes before Close is called means the
// subscription was lost.
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Publish(ctx context.Context, channel string, payload []byte, qos QoS) error
	Subscribe(ctx context.Context, channel string, qos QoS) (<-chan Delivery, error)
	Events() <-chan StatusEvent
	Close() error
}
