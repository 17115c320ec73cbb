// Package consumer processes reservation intents from the order service and
// reports transition outcomes. Delivery is at-least-once, so every branch is
// idempotent: duplicate reserves lose the version guard, duplicate releases
// are no-ops, duplicate mark-solds return the sold row.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticket-marketplace/internal/fabric"
	"ticket-marketplace/internal/logger"
	"ticket-marketplace/internal/messages"
	"ticket-marketplace/internal/models"
	"ticket-marketplace/internal/tickets/db"
	"ticket-marketplace/internal/tickets/service"
)

// Publisher is the slice of the fabric the consumer publishes on.
type Publisher interface {
	Publish(ctx context.Context, topic, routingKey string, body []byte) error
}

type ReservationConsumer struct {
	Tickets *service.TicketService
	Bus     Publisher
	Logger  *logger.Logger
}

func NewReservationConsumer(tickets *service.TicketService, bus Publisher, log *logger.Logger) *ReservationConsumer {
	return &ReservationConsumer{Tickets: tickets, Bus: bus, Logger: log}
}

// Subscribe binds the consumer to the reservation queue on the given bus.
func (c *ReservationConsumer) Subscribe(bus fabric.Bus) error {
	return bus.Subscribe(fabric.TicketReservationBinding(), c.Handle)
}

// Handle applies one reservation intent. Domain rejections (lost races,
// illegal transitions) are final: they are logged and not redelivered.
// Anything else is treated as transient and returned for redelivery.
func (c *ReservationConsumer) Handle(ctx context.Context, routingKey string, body []byte) error {
	msg, err := messages.DecodeTicketReservation(body)
	if err != nil {
		c.Logger.Error("consumer", fmt.Sprintf("dropping undecodable reservation message on %s: %v", routingKey, err))
		return nil
	}

	switch msg.EventType {
	case messages.ReserveTicket:
		return c.reserve(ctx, msg)
	case messages.ReleaseTicket:
		return c.release(ctx, msg)
	case messages.MarkSold:
		return c.markSold(ctx, msg)
	}
	// Decode already rejected anything outside the closed set.
	return nil
}

func (c *ReservationConsumer) reserve(ctx context.Context, msg messages.TicketReservationMessage) error {
	ticket, err := c.Tickets.Reserve(msg.TicketID, msg.Version)
	if err != nil {
		if isDomainErr(err) {
			c.Logger.Warn("consumer", fmt.Sprintf("reserve rejected for ticket %s (order %s): %v", msg.TicketID, msg.OrderID, err))
			return nil
		}
		return err
	}

	c.publishStatus(ctx, messages.TicketStatusUpdateMessage{
		TicketID:       ticket.ID,
		OrderID:        msg.OrderID,
		Status:         string(models.TicketReserved),
		PreviousStatus: string(models.TicketAvailable),
		UserID:         msg.UserID,
		Timestamp:      time.Now(),
		EventType:      messages.TicketReserved,
	})
	return nil
}

func (c *ReservationConsumer) release(ctx context.Context, msg messages.TicketReservationMessage) error {
	ticket, err := c.Tickets.Release(msg.TicketID)
	if err != nil {
		if isDomainErr(err) {
			c.Logger.Warn("consumer", fmt.Sprintf("release skipped for ticket %s: %v", msg.TicketID, err))
			return nil
		}
		return err
	}

	// A SOLD ticket stays SOLD; only report an actual return to AVAILABLE.
	if ticket.Status != models.TicketAvailable {
		c.Logger.Debug("consumer", fmt.Sprintf("release no-op for ticket %s in status %s", msg.TicketID, ticket.Status))
		return nil
	}

	c.publishStatus(ctx, messages.TicketStatusUpdateMessage{
		TicketID:       ticket.ID,
		OrderID:        msg.OrderID,
		Status:         string(models.TicketAvailable),
		PreviousStatus: string(models.TicketReserved),
		UserID:         msg.UserID,
		Timestamp:      time.Now(),
		EventType:      messages.TicketReleased,
	})
	return nil
}

func (c *ReservationConsumer) markSold(ctx context.Context, msg messages.TicketReservationMessage) error {
	ticket, err := c.Tickets.MarkSold(msg.TicketID)
	if err != nil {
		if isDomainErr(err) {
			c.Logger.Warn("consumer", fmt.Sprintf("mark-sold rejected for ticket %s (order %s): %v", msg.TicketID, msg.OrderID, err))
			return nil
		}
		return err
	}

	c.publishStatus(ctx, messages.TicketStatusUpdateMessage{
		TicketID:       ticket.ID,
		OrderID:        msg.OrderID,
		Status:         string(models.TicketSold),
		PreviousStatus: string(models.TicketReserved),
		UserID:         msg.UserID,
		Timestamp:      time.Now(),
		EventType:      messages.TicketSold,
	})
	return nil
}

func (c *ReservationConsumer) publishStatus(ctx context.Context, msg messages.TicketStatusUpdateMessage) {
	body, err := messages.Encode(msg)
	if err != nil {
		c.Logger.Error("consumer", fmt.Sprintf("encode status update for ticket %s: %v", msg.TicketID, err))
		return
	}
	if err := c.Bus.Publish(ctx, fabric.TicketTopic, fabric.TicketStatusUpdateKey, body); err != nil {
		// Status updates are informational; the saga does not depend on them.
		c.Logger.Error("consumer", fmt.Sprintf("publish status update for ticket %s: %v", msg.TicketID, err))
	}
}

func isDomainErr(err error) bool {
	return errors.Is(err, db.ErrTicketNotFound) ||
		errors.Is(err, db.ErrVersionConflict) ||
		errors.Is(err, db.ErrTicketState)
}
