package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ticket-marketplace/internal/fabric"
	"ticket-marketplace/internal/logger"
	"ticket-marketplace/internal/messages"
	"ticket-marketplace/internal/models"
	"ticket-marketplace/internal/order"
	"ticket-marketplace/internal/order/db"
)

// Mock implementations

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) CreateOrder(o models.Order) error {
	args := m.Called(o)
	return args.Error(0)
}

func (m *MockDBLayer) GetOrderByID(id string) (*models.Order, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockDBLayer) ListByUser(userID string) ([]models.Order, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockDBLayer) ListBySeller(sellerID string) ([]models.Order, error) {
	args := m.Called(sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockDBLayer) CountPendingForTicket(ticketID string) (int, error) {
	args := m.Called(ticketID)
	return args.Int(0), args.Error(1)
}

func (m *MockDBLayer) FindByPaymentID(paymentID string) (*models.Order, error) {
	args := m.Called(paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockDBLayer) Complete(id, paymentID string, now time.Time) (*models.Order, error) {
	args := m.Called(id, paymentID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockDBLayer) Cancel(id, reason string, now time.Time) (*models.Order, error) {
	args := m.Called(id, reason, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockDBLayer) Expire(id string, now time.Time) (*models.Order, bool, error) {
	args := m.Called(id, now)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Order), args.Bool(1), args.Error(2)
}

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetTicket(id string) (*models.Ticket, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

type MockHolds struct {
	mock.Mock
}

func (m *MockHolds) HoldTicket(ticketID, orderID string) (bool, error) {
	args := m.Called(ticketID, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *MockHolds) ReleaseHold(ticketID, orderID string) error {
	args := m.Called(ticketID, orderID)
	return args.Error(0)
}

// RecordingBus captures published messages so tests can assert on topology
// and payloads.
type RecordingBus struct {
	mu     sync.Mutex
	topics []string
	keys   []string
	bodies [][]byte
	fail   bool
}

func (b *RecordingBus) Publish(ctx context.Context, topic, routingKey string, body []byte) error {
	if b.fail {
		return errors.New("broker down")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.keys = append(b.keys, routingKey)
	b.bodies = append(b.bodies, body)
	return nil
}

func (b *RecordingBus) published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.keys))
	copy(out, b.keys)
	return out
}

func (b *RecordingBus) bodyFor(t *testing.T, key string) []byte {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, k := range b.keys {
		if k == key {
			return b.bodies[i]
		}
	}
	t.Fatalf("no message published with key %s", key)
	return nil
}

func availableTicket() *models.Ticket {
	return &models.Ticket{
		ID:        "ticket-1",
		EventName: "Jazz Night",
		EventDate: time.Now().Add(72 * time.Hour),
		SeatInfo:  "A12",
		Price:     80.0,
		SellerID:  "seller-1",
		Status:    models.TicketAvailable,
		Version:   4,
	}
}

func newService(dbl *MockDBLayer, catalog *MockCatalog, holds *MockHolds, bus *RecordingBus) *order.OrderService {
	return order.NewOrderService(dbl, catalog, holds, bus, logger.NewConsole(), 15*time.Minute)
}

func TestCreateOrderHappyPath(t *testing.T) {
	dbl := new(MockDBLayer)
	catalog := new(MockCatalog)
	holds := new(MockHolds)
	bus := &RecordingBus{}
	svc := newService(dbl, catalog, holds, bus)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return base }

	catalog.On("GetTicket", "ticket-1").Return(availableTicket(), nil)
	holds.On("HoldTicket", "ticket-1", mock.AnythingOfType("string")).Return(true, nil)
	dbl.On("CreateOrder", mock.AnythingOfType("models.Order")).Return(nil)

	created, err := svc.CreateOrder("buyer-1", models.CreateOrderRequest{TicketID: "ticket-1", Quantity: 2})
	require.NoError(t, err)

	assert.Equal(t, models.OrderPending, created.Status)
	assert.Equal(t, 160.0, created.TotalAmount)
	assert.Equal(t, base.Add(15*time.Minute), created.ExpiresAt)
	assert.Equal(t, "Jazz Night", created.EventName, "ticket details denormalized at creation")

	assert.ElementsMatch(t,
		[]string{fabric.TicketReserveKey, fabric.OrderCreatedKey, fabric.OrderExpirationKey},
		bus.published())

	// The reservation intent carries the snapshot version the buyer saw.
	intent, err := messages.DecodeTicketReservation(bus.bodyFor(t, fabric.TicketReserveKey))
	require.NoError(t, err)
	assert.Equal(t, int64(4), intent.Version)
	assert.Equal(t, messages.ReserveTicket, intent.EventType)
	assert.Equal(t, created.ID, intent.OrderID)

	notice, err := messages.DecodeOrderExpiration(bus.bodyFor(t, fabric.OrderExpirationKey))
	require.NoError(t, err)
	assert.True(t, notice.ExpirationTime.Equal(created.ExpiresAt))

	dbl.AssertExpectations(t)
	holds.AssertExpectations(t)
}

func TestCreateOrderDefaultsQuantityToOne(t *testing.T) {
	dbl := new(MockDBLayer)
	catalog := new(MockCatalog)
	holds := new(MockHolds)
	bus := &RecordingBus{}
	svc := newService(dbl, catalog, holds, bus)

	catalog.On("GetTicket", "ticket-1").Return(availableTicket(), nil)
	holds.On("HoldTicket", "ticket-1", mock.AnythingOfType("string")).Return(true, nil)
	dbl.On("CreateOrder", mock.AnythingOfType("models.Order")).Return(nil)

	created, err := svc.CreateOrder("buyer-1", models.CreateOrderRequest{TicketID: "ticket-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, created.Quantity)
	assert.Equal(t, 80.0, created.TotalAmount)
}

func TestCreateOrderRejectsOwnTicket(t *testing.T) {
	dbl := new(MockDBLayer)
	catalog := new(MockCatalog)
	holds := new(MockHolds)
	bus := &RecordingBus{}
	svc := newService(dbl, catalog, holds, bus)

	catalog.On("GetTicket", "ticket-1").Return(availableTicket(), nil)

	_, err := svc.CreateOrder("seller-1", models.CreateOrderRequest{TicketID: "ticket-1"})
	assert.ErrorIs(t, err, order.ErrOwnTicket)

	// Nothing was committed and nothing was published.
	dbl.AssertNotCalled(t, "CreateOrder", mock.Anything)
	holds.AssertNotCalled(t, "HoldTicket", mock.Anything, mock.Anything)
	assert.Empty(t, bus.published())
}

func TestCreateOrderRejectsUnavailableTicket(t *testing.T) {
	dbl := new(MockDBLayer)
	catalog := new(MockCatalog)
	holds := new(MockHolds)
	bus := &RecordingBus{}
	svc := newService(dbl, catalog, holds, bus)

	sold := availableTicket()
	sold.Status = models.TicketSold
	catalog.On("GetTicket", "ticket-1").Return(sold, nil)

	_, err := svc.CreateOrder("buyer-1", models.CreateOrderRequest{TicketID: "ticket-1"})
	assert.ErrorIs(t, err, db.ErrOrderState)
	assert.Empty(t, bus.published())
}

func TestCreateOrderRejectsHeldTicket(t *testing.T) {
	dbl := new(MockDBLayer)
	catalog := new(MockCatalog)
	holds := new(MockHolds)
	bus := &RecordingBus{}
	svc := newService(dbl, catalog, holds, bus)

	catalog.On("GetTicket", "ticket-1").Return(availableTicket(), nil)
	holds.On("HoldTicket", "ticket-1", mock.AnythingOfType("string")).Return(false, nil)

	_, err := svc.CreateOrder("buyer-1", models.CreateOrderRequest{TicketID: "ticket-1"})
	assert.ErrorIs(t, err, order.ErrTicketHeld)

	dbl.AssertNotCalled(t, "CreateOrder", mock.Anything)
	assert.Empty(t, bus.published())
}

func TestCreateOrderReleasesHoldOnInsertFailure(t *testing.T) {
	dbl := new(MockDBLayer)
	catalog := new(MockCatalog)
	holds := new(MockHolds)
	bus := &RecordingBus{}
	svc := newService(dbl, catalog, holds, bus)

	catalog.On("GetTicket", "ticket-1").Return(availableTicket(), nil)
	holds.On("HoldTicket", "ticket-1", mock.AnythingOfType("string")).Return(true, nil)
	holds.On("ReleaseHold", "ticket-1", mock.AnythingOfType("string")).Return(nil)
	dbl.On("CreateOrder", mock.AnythingOfType("models.Order")).Return(errors.New("db down"))

	_, err := svc.CreateOrder("buyer-1", models.CreateOrderRequest{TicketID: "ticket-1"})
	require.Error(t, err)

	holds.AssertCalled(t, "ReleaseHold", "ticket-1", mock.AnythingOfType("string"))
	assert.Empty(t, bus.published())
}

func TestCreateOrderSurvivesPublishFailure(t *testing.T) {
	dbl := new(MockDBLayer)
	catalog := new(MockCatalog)
	holds := new(MockHolds)
	bus := &RecordingBus{fail: true}
	svc := newService(dbl, catalog, holds, bus)

	catalog.On("GetTicket", "ticket-1").Return(availableTicket(), nil)
	holds.On("HoldTicket", "ticket-1", mock.AnythingOfType("string")).Return(true, nil)
	dbl.On("CreateOrder", mock.AnythingOfType("models.Order")).Return(nil)

	// The order commits regardless; the sweeper reclaims it if the intent was
	// lost and never completes.
	created, err := svc.CreateOrder("buyer-1", models.CreateOrderRequest{TicketID: "ticket-1"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, created.Status)
}

func TestCompleteOrder(t *testing.T) {
	dbl := new(MockDBLayer)
	catalog := new(MockCatalog)
	holds := new(MockHolds)
	bus := &RecordingBus{}
	svc := newService(dbl, catalog, holds, bus)

	completed := &models.Order{
		ID:          "order-1",
		BuyerUserID: "buyer-1",
		TicketID:    "ticket-1",
		Status:      models.OrderCompleted,
		TotalAmount: 80.0,
		PaymentID:   "pay-1",
	}
	dbl.On("Complete", "order-1", "pay-1", mock.AnythingOfType("time.Time")).Return(completed, nil)
	holds.On("ReleaseHold", "ticket-1", "order-1").Return(nil)

	got, err := svc.CompleteOrder("order-1", "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, got.Status)

	assert.ElementsMatch(t, []string{fabric.TicketSoldKey, fabric.OrderCompletedKey}, bus.published())

	intent, err := messages.DecodeTicketReservation(bus.bodyFor(t, fabric.TicketSoldKey))
	require.NoError(t, err)
	assert.Equal(t, messages.MarkSold, intent.EventType)

	holds.AssertExpectations(t)
}

func TestCompleteOrderAfterExpiry(t *testing.T) {
	dbl := new(MockDBLayer)
	catalog := new(MockCatalog)
	holds := new(MockHolds)
	bus := &RecordingBus{}
	svc := newService(dbl, catalog, holds, bus)

	// The store refuses completion past the TTL; no messages may leak out.
	dbl.On("Complete", "order-1", "pay-1", mock.AnythingOfType("time.Time")).Return(nil, db.ErrOrderState)

	_, err := svc.CompleteOrder("order-1", "pay-1")
	assert.ErrorIs(t, err, db.ErrOrderState)
	assert.Empty(t, bus.published())
	holds.AssertNotCalled(t, "ReleaseHold", mock.Anything, mock.Anything)
}

func TestCancelOrder(t *testing.T) {
	dbl := new(MockDBLayer)
	catalog := new(MockCatalog)
	holds := new(MockHolds)
	bus := &RecordingBus{}
	svc := newService(dbl, catalog, holds, bus)

	cancelled := &models.Order{
		ID:                 "order-1",
		BuyerUserID:        "buyer-1",
		TicketID:           "ticket-1",
		Status:             models.OrderCancelled,
		CancellationReason: "changed my mind",
	}
	dbl.On("Cancel", "order-1", "changed my mind", mock.AnythingOfType("time.Time")).Return(cancelled, nil)
	holds.On("ReleaseHold", "ticket-1", "order-1").Return(nil)

	got, err := svc.CancelOrder("order-1", "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, got.Status)

	assert.ElementsMatch(t, []string{fabric.TicketReleaseKey, fabric.OrderCancelledKey}, bus.published())

	intent, err := messages.DecodeTicketReservation(bus.bodyFor(t, fabric.TicketReleaseKey))
	require.NoError(t, err)
	assert.Equal(t, messages.ReleaseTicket, intent.EventType)
	assert.Equal(t, "changed my mind", intent.Reason)
}

func TestExpireOrderWinsTransition(t *testing.T) {
	dbl := new(MockDBLayer)
	catalog := new(MockCatalog)
	holds := new(MockHolds)
	bus := &RecordingBus{}
	svc := newService(dbl, catalog, holds, bus)

	expired := &models.Order{
		ID:          "order-1",
		BuyerUserID: "buyer-1",
		TicketID:    "ticket-1",
		Status:      models.OrderExpired,
	}
	dbl.On("Expire", "order-1", mock.AnythingOfType("time.Time")).Return(expired, true, nil)
	holds.On("ReleaseHold", "ticket-1", "order-1").Return(nil)

	require.NoError(t, svc.ExpireOrder("order-1"))

	assert.ElementsMatch(t, []string{fabric.TicketReleaseKey, fabric.OrderExpiredKey}, bus.published())

	intent, err := messages.DecodeTicketReservation(bus.bodyFor(t, fabric.TicketReleaseKey))
	require.NoError(t, err)
	assert.Equal(t, "expired", intent.Reason)
}

func TestExpireOrderAlreadyTerminalIsNoOp(t *testing.T) {
	dbl := new(MockDBLayer)
	catalog := new(MockCatalog)
	holds := new(MockHolds)
	bus := &RecordingBus{}
	svc := newService(dbl, catalog, holds, bus)

	completed := &models.Order{ID: "order-1", TicketID: "ticket-1", Status: models.OrderCompleted}
	dbl.On("Expire", "order-1", mock.AnythingOfType("time.Time")).Return(completed, false, nil)

	require.NoError(t, svc.ExpireOrder("order-1"))

	assert.Empty(t, bus.published(), "losing the transition race emits nothing")
	holds.AssertNotCalled(t, "ReleaseHold", mock.Anything, mock.Anything)
}

func TestExpireOrderMissingIsNoOp(t *testing.T) {
	dbl := new(MockDBLayer)
	catalog := new(MockCatalog)
	holds := new(MockHolds)
	bus := &RecordingBus{}
	svc := newService(dbl, catalog, holds, bus)

	dbl.On("Expire", "order-1", mock.AnythingOfType("time.Time")).Return(nil, false, db.ErrOrderNotFound)

	require.NoError(t, svc.ExpireOrder("order-1"))
	assert.Empty(t, bus.published())
}
