package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ticket-marketplace/internal/models"
)

// DB holds order aggregates. Lifecycle transitions are conditional UPDATEs
// guarded on status = PENDING, so when a user action and the sweeper race on
// one order, whichever commits first wins and the loser sees a zero-row
// update. Terminal orders are never touched again.
type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateOrder(order models.Order) error {
	_, err := d.Bun.NewInsert().Model(&order).Exec(context.Background())
	return err
}

func (d *DB) GetOrderByID(id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) ListByUser(userID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("buyer_user_id = ?", userID).
		Order("created_at DESC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (d *DB) ListBySeller(sellerID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (d *DB) CountPendingForTicket(ticketID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Where("ticket_id = ? AND status = ?", ticketID, models.OrderPending).
		Count(context.Background())
}

func (d *DB) FindByPaymentID(paymentID string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("payment_id = ?", paymentID).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListExpiredPending returns PENDING orders whose TTL elapsed before now.
// This is the sweeper's work queue.
func (d *DB) ListExpiredPending(now time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("status = ? AND expires_at < ?", models.OrderPending, now).
		Order("expires_at ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// Complete commits PENDING -> COMPLETED, refusing orders past their TTL even
// if the sweeper has not reclaimed them yet.
func (d *DB) Complete(id, paymentID string, now time.Time) (*models.Order, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderCompleted).
		Set("payment_id = ?", paymentID).
		Set("updated_at = ?", now).
		Where("id = ? AND status = ? AND expires_at > ?", id, models.OrderPending, now).
		Exec(context.Background())
	if err != nil {
		return nil, err
	}
	return d.afterTransition(res, id)
}

// Cancel commits PENDING -> CANCELLED with the buyer's reason.
func (d *DB) Cancel(id, reason string, now time.Time) (*models.Order, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderCancelled).
		Set("cancellation_reason = ?", reason).
		Set("updated_at = ?", now).
		Where("id = ? AND status = ?", id, models.OrderPending).
		Exec(context.Background())
	if err != nil {
		return nil, err
	}
	return d.afterTransition(res, id)
}

// Expire commits PENDING -> EXPIRED. The bool reports whether this call won
// the transition; false with a nil error means the order was already
// terminal, which callers treat as a no-op.
func (d *DB) Expire(id string, now time.Time) (*models.Order, bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderExpired).
		Set("updated_at = ?", now).
		Where("id = ? AND status = ?", id, models.OrderPending).
		Exec(context.Background())
	if err != nil {
		return nil, false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	order, err := d.GetOrderByID(id)
	if err != nil {
		return nil, false, err
	}
	return order, rows > 0, nil
}

func (d *DB) afterTransition(res sql.Result, id string) (*models.Order, error) {
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		if _, err := d.GetOrderByID(id); err != nil {
			return nil, err
		}
		return nil, ErrOrderState
	}
	return d.GetOrderByID(id)
}
