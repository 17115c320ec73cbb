// Package consumer holds the order service's fabric listeners: the ticket
// status feed (informational) and the scheduled-expiration queue.
package consumer

import (
	"context"
	"fmt"
	"time"

	"ticket-marketplace/internal/fabric"
	"ticket-marketplace/internal/logger"
	"ticket-marketplace/internal/messages"
)

// OrderExpirer drives one order past its TTL.
type OrderExpirer interface {
	ExpireOrder(orderID string) error
}

// TicketStatusConsumer logs reservation outcomes reported by the ticket
// service. Nothing in the order lifecycle blocks on these events; the order
// store is the source of truth.
type TicketStatusConsumer struct {
	Logger *logger.Logger
}

func (c *TicketStatusConsumer) Subscribe(bus fabric.Bus) error {
	return bus.Subscribe(fabric.TicketStatusBinding(), c.Handle)
}

func (c *TicketStatusConsumer) Handle(ctx context.Context, routingKey string, body []byte) error {
	msg, err := messages.DecodeTicketStatusUpdate(body)
	if err != nil {
		c.Logger.Error("consumer", fmt.Sprintf("dropping undecodable status update on %s: %v", routingKey, err))
		return nil
	}

	switch msg.EventType {
	case messages.TicketReserved:
		c.Logger.LogTicket("RESERVED", msg.TicketID, fmt.Sprintf("for order %s", msg.OrderID))
	case messages.TicketReleased:
		c.Logger.LogTicket("RELEASED", msg.TicketID, fmt.Sprintf("order %s", msg.OrderID))
	case messages.TicketSold:
		c.Logger.LogTicket("SOLD", msg.TicketID, fmt.Sprintf("for order %s", msg.OrderID))
	}
	return nil
}

// ExpirationConsumer reacts to scheduled TTL notices. A notice that arrives
// at or past its expiration time triggers an immediate (idempotent) expire;
// an early notice is dropped, because the sweeper is the authoritative
// reclaim path and will pick the order up once it is actually due.
type ExpirationConsumer struct {
	Expirer OrderExpirer
	Logger  *logger.Logger
	Now     func() time.Time
}

func NewExpirationConsumer(expirer OrderExpirer, log *logger.Logger) *ExpirationConsumer {
	return &ExpirationConsumer{Expirer: expirer, Logger: log, Now: time.Now}
}

func (c *ExpirationConsumer) Subscribe(bus fabric.Bus) error {
	return bus.Subscribe(fabric.OrderExpirationBinding(), c.Handle)
}

func (c *ExpirationConsumer) Handle(ctx context.Context, routingKey string, body []byte) error {
	msg, err := messages.DecodeOrderExpiration(body)
	if err != nil {
		c.Logger.Error("consumer", fmt.Sprintf("dropping undecodable expiration notice on %s: %v", routingKey, err))
		return nil
	}

	if c.Now().Before(msg.ExpirationTime) {
		c.Logger.Debug("consumer", fmt.Sprintf("order %s not due until %s; leaving to sweeper", msg.OrderID, msg.ExpirationTime.Format(time.RFC3339)))
		return nil
	}

	if err := c.Expirer.ExpireOrder(msg.OrderID); err != nil {
		c.Logger.Error("consumer", fmt.Sprintf("expire order %s from notice: %v", msg.OrderID, err))
		return err
	}
	return nil
}
