// Package messages defines the wire contracts exchanged between the order and
// ticket services. Every event-type tag is a closed enum: Decode functions
// reject unknown tags so a malformed or out-of-contract message surfaces as an
// error instead of silently falling through a dispatch switch.
package messages

import (
	"encoding/json"
	"fmt"
	"time"
)

// ReservationEventType tags a TicketReservationMessage.
type ReservationEventType string

const (
	ReserveTicket ReservationEventType = "RESERVE_TICKET"
	ReleaseTicket ReservationEventType = "RELEASE_TICKET"
	MarkSold      ReservationEventType = "MARK_SOLD"
)

func (t ReservationEventType) valid() bool {
	switch t {
	case ReserveTicket, ReleaseTicket, MarkSold:
		return true
	}
	return false
}

// TicketStatusEventType tags a TicketStatusUpdateMessage.
type TicketStatusEventType string

const (
	TicketReserved TicketStatusEventType = "TICKET_RESERVED"
	TicketReleased TicketStatusEventType = "TICKET_RELEASED"
	TicketSold     TicketStatusEventType = "TICKET_SOLD"
)

func (t TicketStatusEventType) valid() bool {
	switch t {
	case TicketReserved, TicketReleased, TicketSold:
		return true
	}
	return false
}

// OrderStatusEventType tags an OrderStatusMessage.
type OrderStatusEventType string

const (
	OrderCreated   OrderStatusEventType = "ORDER_CREATED"
	OrderCompleted OrderStatusEventType = "ORDER_COMPLETED"
	OrderCancelled OrderStatusEventType = "ORDER_CANCELLED"
	OrderExpired   OrderStatusEventType = "ORDER_EXPIRED"
)

func (t OrderStatusEventType) valid() bool {
	switch t {
	case OrderCreated, OrderCompleted, OrderCancelled, OrderExpired:
		return true
	}
	return false
}

// OrderExpirationScheduled is the only event type carried on the expiration
// queue.
const OrderExpirationScheduled = "ORDER_EXPIRATION_SCHEDULED"

// UnknownEventTypeError is returned by the Decode functions when a message
// carries a tag outside the closed set for its kind.
type UnknownEventTypeError struct {
	Kind      string
	EventType string
}

func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("unknown %s event type %q", e.Kind, e.EventType)
}

// TicketReservationMessage asks the ticket service to apply one ticket state
// transition. Version is only meaningful for RESERVE_TICKET, where it carries
// the snapshot version the buyer saw. Delivery is at-least-once; the ticket
// state machine makes redelivery harmless.
type TicketReservationMessage struct {
	TicketID  string               `json:"ticketId"`
	OrderID   string               `json:"orderId"`
	UserID    string               `json:"userId"`
	Version   int64                `json:"version,omitempty"`
	EventType ReservationEventType `json:"eventType"`
	Timestamp time.Time            `json:"timestamp"`
	Reason    string               `json:"reason,omitempty"`
}

// TicketStatusUpdateMessage reports the outcome of a ticket transition back to
// interested consumers. Informational only; nothing blocks on it.
type TicketStatusUpdateMessage struct {
	TicketID       string                `json:"ticketId"`
	OrderID        string                `json:"orderId"`
	Status         string                `json:"status"`
	PreviousStatus string                `json:"previousStatus"`
	UserID         string                `json:"userId"`
	Timestamp      time.Time             `json:"timestamp"`
	EventType      TicketStatusEventType `json:"eventType"`
}

// OrderStatusMessage announces an order lifecycle transition.
type OrderStatusMessage struct {
	OrderID        string               `json:"orderId"`
	TicketID       string               `json:"ticketId"`
	UserID         string               `json:"userId"`
	Status         string               `json:"status"`
	PreviousStatus string               `json:"previousStatus"`
	TotalAmount    float64              `json:"totalAmount,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
	EventType      OrderStatusEventType `json:"eventType"`
	Reason         string               `json:"reason,omitempty"`
}

// OrderExpirationMessage schedules a TTL check for a pending order. The
// sweeper remains the authoritative reclaim path; this message lets an idle
// process act sooner.
type OrderExpirationMessage struct {
	OrderID        string    `json:"orderId"`
	TicketID       string    `json:"ticketId"`
	UserID         string    `json:"userId"`
	ExpirationTime time.Time `json:"expirationTime"`
	Timestamp      time.Time `json:"timestamp"`
	EventType      string    `json:"eventType"`
}

func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func DecodeTicketReservation(data []byte) (TicketReservationMessage, error) {
	var m TicketReservationMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode ticket reservation: %w", err)
	}
	if !m.EventType.valid() {
		return m, &UnknownEventTypeError{Kind: "ticket reservation", EventType: string(m.EventType)}
	}
	return m, nil
}

func DecodeTicketStatusUpdate(data []byte) (TicketStatusUpdateMessage, error) {
	var m TicketStatusUpdateMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode ticket status update: %w", err)
	}
	if !m.EventType.valid() {
		return m, &UnknownEventTypeError{Kind: "ticket status", EventType: string(m.EventType)}
	}
	return m, nil
}

func DecodeOrderStatus(data []byte) (OrderStatusMessage, error) {
	var m OrderStatusMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode order status: %w", err)
	}
	if !m.EventType.valid() {
		return m, &UnknownEventTypeError{Kind: "order status", EventType: string(m.EventType)}
	}
	return m, nil
}

func DecodeOrderExpiration(data []byte) (OrderExpirationMessage, error) {
	var m OrderExpirationMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode order expiration: %w", err)
	}
	if m.EventType != OrderExpirationScheduled {
		return m, &UnknownEventTypeError{Kind: "order expiration", EventType: m.EventType}
	}
	return m, nil
}
