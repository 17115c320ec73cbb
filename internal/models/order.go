package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderExpired   OrderStatus = "EXPIRED"
)

// Terminal reports whether no further transitions are permitted from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled || s == OrderExpired
}

// Order is a buyer's purchase attempt against a single ticket. Ticket details
// are denormalized at creation time so the order remains a usable audit record
// even if the listing changes later. Terminal orders are never mutated.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID          string      `bun:"id,pk" json:"id"`
	BuyerUserID string      `bun:"buyer_user_id,notnull" json:"buyerUserId"`
	TicketID    string      `bun:"ticket_id,notnull" json:"ticketId"`
	SellerID    string      `bun:"seller_id,notnull" json:"sellerId"`
	EventName   string      `bun:"event_name" json:"eventName"`
	EventDate   string      `bun:"event_date" json:"eventDate"`
	SeatInfo    string      `bun:"seat_info" json:"seatInfo"`
	Price       float64     `bun:"price,notnull" json:"price"`
	Quantity    int         `bun:"quantity,notnull" json:"quantity"`
	TotalAmount float64     `bun:"total_amount,notnull" json:"totalAmount"`
	Status      OrderStatus `bun:"status,notnull" json:"status"`
	CreatedAt   time.Time   `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt   time.Time   `bun:"updated_at,notnull" json:"updatedAt"`
	ExpiresAt   time.Time   `bun:"expires_at,notnull" json:"expiresAt"`
	PaymentID   string      `bun:"payment_id" json:"paymentId,omitempty"`

	CancellationReason string `bun:"cancellation_reason" json:"cancellationReason,omitempty"`
}

// ExpiredBy reports whether the order's TTL has elapsed at the given instant.
func (o *Order) ExpiredBy(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

type CreateOrderRequest struct {
	TicketID string `json:"ticketId"`
	Quantity int    `json:"quantity"`
}

type CompleteOrderRequest struct {
	PaymentID string `json:"paymentId"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}
