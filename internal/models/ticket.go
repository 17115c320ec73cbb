package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketAvailable TicketStatus = "AVAILABLE"
	TicketReserved  TicketStatus = "RESERVED"
	TicketSold      TicketStatus = "SOLD"
)

// Ticket is a listing put up for resale by a seller. Status transitions are
// AVAILABLE -> RESERVED -> SOLD, with RESERVED -> AVAILABLE on release. Every
// accepted mutation bumps Version by exactly one; reserve is the only
// version-guarded write.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID          string       `bun:"id,pk" json:"id"`
	EventName   string       `bun:"event_name,notnull" json:"eventName"`
	Category    string       `bun:"category,notnull" json:"category"`
	Location    string       `bun:"location,notnull" json:"location"`
	EventDate   time.Time    `bun:"event_date,notnull" json:"eventDate"`
	SeatInfo    string       `bun:"seat_info" json:"seatInfo"`
	Price       float64      `bun:"price,notnull" json:"price"`
	SellerID    string       `bun:"seller_id,notnull" json:"sellerId"`
	OwnerUserID string       `bun:"owner_user_id,notnull" json:"ownerUserId"`
	Status      TicketStatus `bun:"status,notnull" json:"status"`
	Version     int64        `bun:"version,notnull" json:"version"`
	CreatedAt   time.Time    `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt   time.Time    `bun:"updated_at,notnull" json:"updatedAt"`
}

type CreateTicketRequest struct {
	EventName string    `json:"eventName"`
	Category  string    `json:"category"`
	Location  string    `json:"location"`
	EventDate time.Time `json:"eventDate"`
	SeatInfo  string    `json:"seatInfo"`
	Price     float64   `json:"price"`
}

type UpdateTicketRequest struct {
	Location *string  `json:"location,omitempty"`
	SeatInfo *string  `json:"seatInfo,omitempty"`
	Price    *float64 `json:"price,omitempty"`
}
