package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ticket-marketplace/internal/fabric"
	"ticket-marketplace/internal/logger"
	"ticket-marketplace/internal/messages"
	"ticket-marketplace/internal/models"
	"ticket-marketplace/internal/order/db"
)

var (
	// ErrOwnTicket rejects buyers purchasing their own listing.
	ErrOwnTicket = errors.New("cannot buy a ticket you listed for sale")
	// ErrTicketHeld reports that another pending order already holds the
	// ticket. Surfaced to buyers as "no longer available".
	ErrTicketHeld = errors.New("ticket is held by another pending order")
)

// DBLayer is the slice of the order store the coordinator needs.
type DBLayer interface {
	CreateOrder(order models.Order) error
	GetOrderByID(id string) (*models.Order, error)
	ListByUser(userID string) ([]models.Order, error)
	ListBySeller(sellerID string) ([]models.Order, error)
	CountPendingForTicket(ticketID string) (int, error)
	FindByPaymentID(paymentID string) (*models.Order, error)
	Complete(id, paymentID string, now time.Time) (*models.Order, error)
	Cancel(id, reason string, now time.Time) (*models.Order, error)
	Expire(id string, now time.Time) (*models.Order, bool, error)
}

// TicketCatalog reads ticket snapshots from the inventory service.
type TicketCatalog interface {
	GetTicket(id string) (*models.Ticket, error)
}

// TicketHold is the per-ticket pending-order guard.
type TicketHold interface {
	HoldTicket(ticketID, orderID string) (bool, error)
	ReleaseHold(ticketID, orderID string) error
}

// Publisher is the slice of the fabric the coordinator publishes on.
type Publisher interface {
	Publish(ctx context.Context, topic, routingKey string, body []byte) error
}

// OrderService coordinates the reservation saga from the order side. Orders
// are committed locally before the reservation intent is confirmed; a lost
// intent is reclaimed by the expiration sweeper once the TTL elapses.
type OrderService struct {
	DB      DBLayer
	Catalog TicketCatalog
	Holds   TicketHold
	Bus     Publisher
	Logger  *logger.Logger

	TTL time.Duration
	Now func() time.Time
}

func NewOrderService(dbLayer DBLayer, catalog TicketCatalog, holds TicketHold, bus Publisher, log *logger.Logger, ttl time.Duration) *OrderService {
	return &OrderService{
		DB:      dbLayer,
		Catalog: catalog,
		Holds:   holds,
		Bus:     bus,
		Logger:  log,
		TTL:     ttl,
		Now:     time.Now,
	}
}

// CreateOrder validates the purchase against a ticket snapshot, commits the
// order as PENDING, and emits the reservation intent carrying the snapshot's
// version. Publish failures after the commit are logged, not surfaced: the
// order stands and the sweeper is the reconciliation path.
func (s *OrderService) CreateOrder(buyerID string, req models.CreateOrderRequest) (*models.Order, error) {
	ticket, err := s.Catalog.GetTicket(req.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != models.TicketAvailable {
		return nil, fmt.Errorf("ticket %s is %s: %w", ticket.ID, ticket.Status, db.ErrOrderState)
	}
	if buyerID == ticket.SellerID {
		s.Logger.Warn("ORDER", fmt.Sprintf("blocked purchase: %s tried to buy own ticket %s", buyerID, ticket.ID))
		return nil, ErrOwnTicket
	}

	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	orderID := uuid.NewString()

	held, err := s.Holds.HoldTicket(ticket.ID, orderID)
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, ErrTicketHeld
	}

	now := s.Now()
	order := models.Order{
		ID:          orderID,
		BuyerUserID: buyerID,
		TicketID:    ticket.ID,
		SellerID:    ticket.SellerID,
		EventName:   ticket.EventName,
		EventDate:   ticket.EventDate.Format(time.RFC3339),
		SeatInfo:    ticket.SeatInfo,
		Price:       ticket.Price,
		Quantity:    quantity,
		TotalAmount: ticket.Price * float64(quantity),
		Status:      models.OrderPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.TTL),
	}

	if err := s.DB.CreateOrder(order); err != nil {
		_ = s.Holds.ReleaseHold(ticket.ID, orderID)
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.Logger.LogOrder("CREATE", orderID, fmt.Sprintf("ticket %s, buyer %s, total %.2f", ticket.ID, buyerID, order.TotalAmount))

	s.publishReservation(messages.TicketReservationMessage{
		TicketID:  ticket.ID,
		OrderID:   orderID,
		UserID:    buyerID,
		Version:   ticket.Version,
		EventType: messages.ReserveTicket,
		Timestamp: now,
	}, fabric.TicketReserveKey)

	s.publishOrderStatus(messages.OrderStatusMessage{
		OrderID:        orderID,
		TicketID:       ticket.ID,
		UserID:         buyerID,
		Status:         string(models.OrderPending),
		PreviousStatus: "NONE",
		TotalAmount:    order.TotalAmount,
		Timestamp:      now,
		EventType:      messages.OrderCreated,
	}, fabric.OrderCreatedKey)

	s.publishExpiration(order)

	return &order, nil
}

// CompleteOrder finalizes a PENDING order that has not passed its TTL,
// recording the payment and asking the ticket service to mark the ticket
// sold.
func (s *OrderService) CompleteOrder(orderID, paymentID string) (*models.Order, error) {
	now := s.Now()
	order, err := s.DB.Complete(orderID, paymentID, now)
	if err != nil {
		return nil, err
	}

	s.Logger.LogOrder("COMPLETE", orderID, fmt.Sprintf("payment %s", paymentID))

	s.publishReservation(messages.TicketReservationMessage{
		TicketID:  order.TicketID,
		OrderID:   order.ID,
		UserID:    order.BuyerUserID,
		EventType: messages.MarkSold,
		Timestamp: now,
	}, fabric.TicketSoldKey)

	s.publishOrderStatus(messages.OrderStatusMessage{
		OrderID:        order.ID,
		TicketID:       order.TicketID,
		UserID:         order.BuyerUserID,
		Status:         string(models.OrderCompleted),
		PreviousStatus: string(models.OrderPending),
		TotalAmount:    order.TotalAmount,
		Timestamp:      now,
		EventType:      messages.OrderCompleted,
	}, fabric.OrderCompletedKey)

	if err := s.Holds.ReleaseHold(order.TicketID, order.ID); err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("release hold for completed order %s: %v", order.ID, err))
	}

	return order, nil
}

// CancelOrder aborts a PENDING order at the buyer's request and releases the
// ticket reservation.
func (s *OrderService) CancelOrder(orderID, reason string) (*models.Order, error) {
	now := s.Now()
	order, err := s.DB.Cancel(orderID, reason, now)
	if err != nil {
		return nil, err
	}

	s.Logger.LogOrder("CANCEL", orderID, reason)

	s.publishReservation(messages.TicketReservationMessage{
		TicketID:  order.TicketID,
		OrderID:   order.ID,
		UserID:    order.BuyerUserID,
		EventType: messages.ReleaseTicket,
		Timestamp: now,
		Reason:    reason,
	}, fabric.TicketReleaseKey)

	s.publishOrderStatus(messages.OrderStatusMessage{
		OrderID:        order.ID,
		TicketID:       order.TicketID,
		UserID:         order.BuyerUserID,
		Status:         string(models.OrderCancelled),
		PreviousStatus: string(models.OrderPending),
		Timestamp:      now,
		EventType:      messages.OrderCancelled,
		Reason:         reason,
	}, fabric.OrderCancelledKey)

	if err := s.Holds.ReleaseHold(order.TicketID, order.ID); err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("release hold for cancelled order %s: %v", order.ID, err))
	}

	return order, nil
}

// ExpireOrder reclaims a PENDING order past its TTL. It is idempotent: an
// order already terminal is left untouched and no messages are emitted, so
// the sweeper and a racing user action never double-fire.
func (s *OrderService) ExpireOrder(orderID string) error {
	now := s.Now()
	order, won, err := s.DB.Expire(orderID, now)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			return nil
		}
		return err
	}
	if !won {
		return nil
	}

	s.Logger.LogOrder("EXPIRE", orderID, fmt.Sprintf("ticket %s released", order.TicketID))

	s.publishReservation(messages.TicketReservationMessage{
		TicketID:  order.TicketID,
		OrderID:   order.ID,
		UserID:    order.BuyerUserID,
		EventType: messages.ReleaseTicket,
		Timestamp: now,
		Reason:    "expired",
	}, fabric.TicketReleaseKey)

	s.publishOrderStatus(messages.OrderStatusMessage{
		OrderID:        order.ID,
		TicketID:       order.TicketID,
		UserID:         order.BuyerUserID,
		Status:         string(models.OrderExpired),
		PreviousStatus: string(models.OrderPending),
		Timestamp:      now,
		EventType:      messages.OrderExpired,
	}, fabric.OrderExpiredKey)

	if err := s.Holds.ReleaseHold(order.TicketID, order.ID); err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("release hold for expired order %s: %v", order.ID, err))
	}

	return nil
}

func (s *OrderService) GetOrder(orderID string) (*models.Order, error) {
	return s.DB.GetOrderByID(orderID)
}

func (s *OrderService) ListByUser(userID string) ([]models.Order, error) {
	return s.DB.ListByUser(userID)
}

func (s *OrderService) ListBySeller(sellerID string) ([]models.Order, error) {
	return s.DB.ListBySeller(sellerID)
}

func (s *OrderService) CountPendingForTicket(ticketID string) (int, error) {
	return s.DB.CountPendingForTicket(ticketID)
}

func (s *OrderService) FindByPaymentID(paymentID string) (*models.Order, error) {
	return s.DB.FindByPaymentID(paymentID)
}

func (s *OrderService) publishReservation(msg messages.TicketReservationMessage, key string) {
	body, err := messages.Encode(msg)
	if err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("encode reservation intent for order %s: %v", msg.OrderID, err))
		return
	}
	if err := s.Bus.Publish(context.Background(), fabric.TicketTopic, key, body); err != nil {
		// The order is already committed; the sweeper closes this gap.
		s.Logger.Error("ORDER", fmt.Sprintf("publish %s for order %s: %v", key, msg.OrderID, err))
	}
}

func (s *OrderService) publishOrderStatus(msg messages.OrderStatusMessage, key string) {
	body, err := messages.Encode(msg)
	if err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("encode order status for order %s: %v", msg.OrderID, err))
		return
	}
	if err := s.Bus.Publish(context.Background(), fabric.OrderTopic, key, body); err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("publish %s for order %s: %v", key, msg.OrderID, err))
	}
}

func (s *OrderService) publishExpiration(order models.Order) {
	body, err := messages.Encode(messages.OrderExpirationMessage{
		OrderID:        order.ID,
		TicketID:       order.TicketID,
		UserID:         order.BuyerUserID,
		ExpirationTime: order.ExpiresAt,
		Timestamp:      order.CreatedAt,
		EventType:      messages.OrderExpirationScheduled,
	})
	if err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("encode expiration notice for order %s: %v", order.ID, err))
		return
	}
	if err := s.Bus.Publish(context.Background(), fabric.OrderTopic, fabric.OrderExpirationKey, body); err != nil {
		s.Logger.Error("ORDER", fmt.Sprintf("publish expiration notice for order %s: %v", order.ID, err))
	}
}
