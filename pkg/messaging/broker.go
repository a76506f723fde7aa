package messaging

import (
	"context"
	"strings"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Close() error
}

// ChannelPrefix namespaces appointment events on the broker.
const ChannelPrefix = "appointments."

// ChannelFor returns the broker channel for an outbox event type such as
// "appointment.created".
func ChannelFor(eventType string) string {
	return ChannelPrefix + strings.TrimPrefix(eventType, "appointment.")
}
