// Package fabric is the topic-routed publish/subscribe transport that couples
// the order and ticket services. Two backends implement the same contract: a
// Kafka-backed bus for durable at-least-once delivery across processes, and an
// in-process bus for single-node operation and tests. The backend is chosen
// once at startup; nothing else in the system knows which one is running.
//
// Delivery is at-least-once on both backends. Handlers must tolerate duplicate
// and out-of-order messages. A handler that returns an error signals a
// transient failure and the message is redelivered; permanent domain failures
// should be logged by the handler and swallowed.
package fabric

import (
	"context"
	"fmt"

	"ticket-marketplace/internal/config"
	"ticket-marketplace/internal/logger"
)

// Handler processes one delivered message body.
type Handler func(ctx context.Context, routingKey string, body []byte) error

// QueueBinding attaches a named queue to a topic for the routing-key patterns
// it wants. Patterns use dot-separated segments with "*" matching one segment
// and "#" matching any tail.
type QueueBinding struct {
	Queue    string
	Topic    string
	Patterns []string
}

// Bus is the fabric contract shared by both backends.
type Bus interface {
	Publish(ctx context.Context, topic, routingKey string, body []byte) error
	Subscribe(binding QueueBinding, h Handler) error
	Close() error
}

// New builds the configured backend. Mode "kafka" is the durable broker-backed
// bus; anything else falls back to the in-process bus.
func New(cfg config.FabricConfig, log *logger.Logger) (Bus, error) {
	switch cfg.Mode {
	case config.FabricKafka:
		bus, err := NewKafkaBus(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("fabric: kafka backend: %w", err)
		}
		return bus, nil
	case config.FabricMemory:
		return NewMemoryBus(log), nil
	default:
		return nil, fmt.Errorf("fabric: unknown mode %q", cfg.Mode)
	}
}
