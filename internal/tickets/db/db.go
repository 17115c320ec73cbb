package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ticket-marketplace/internal/models"
)

// DB holds ticket aggregates. All transitions are single conditional UPDATEs
// so that concurrent callers race on the database row, not on process state:
// exactly one reserve can win per version value.
type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateTicket(ticket models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(&ticket).Exec(context.Background())
	return err
}

func (d *DB) GetTicketByID(id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) ListAvailable() ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("status = ?", models.TicketAvailable).
		Order("event_date ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) SearchByEvent(query string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("lower(event_name) LIKE lower(?)", "%"+query+"%").
		Order("event_date ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) HappeningBetween(from, to time.Time) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("event_date >= ? AND event_date < ?", from, to).
		Order("event_date ASC").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// Reserve is the compare-and-swap at the core of the reservation saga: the
// row is moved AVAILABLE -> RESERVED only if the stored version still equals
// expectedVersion. On a zero-row update the current row decides whether the
// caller lost the version race or hit an illegal state.
func (d *DB) Reserve(id string, expectedVersion int64) (*models.Ticket, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketReserved).
		Set("version = version + 1").
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND version = ? AND status = ?", id, expectedVersion, models.TicketAvailable).
		Exec(context.Background())
	if err != nil {
		return nil, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		ticket, err := d.GetTicketByID(id)
		if err != nil {
			return nil, err
		}
		if ticket.Status != models.TicketAvailable {
			return nil, ErrTicketState
		}
		return nil, ErrVersionConflict
	}
	return d.GetTicketByID(id)
}

// Release moves RESERVED -> AVAILABLE. A ticket that is not RESERVED is left
// untouched and returned as-is: duplicate release messages are a normal
// consequence of at-least-once delivery, not an error.
func (d *DB) Release(id string) (*models.Ticket, error) {
	_, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketAvailable).
		Set("version = version + 1").
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND status = ?", id, models.TicketReserved).
		Exec(context.Background())
	if err != nil {
		return nil, err
	}
	return d.GetTicketByID(id)
}

// MarkSold moves RESERVED -> SOLD. Calling it again on a SOLD ticket returns
// the current row without error, since redelivery can duplicate the call.
func (d *DB) MarkSold(id string) (*models.Ticket, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketSold).
		Set("version = version + 1").
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND status = ?", id, models.TicketReserved).
		Exec(context.Background())
	if err != nil {
		return nil, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		ticket, err := d.GetTicketByID(id)
		if err != nil {
			return nil, err
		}
		if ticket.Status == models.TicketSold {
			return ticket, nil
		}
		return nil, ErrTicketState
	}
	return d.GetTicketByID(id)
}

// UpdateListing edits seller-facing fields. Only AVAILABLE tickets may change;
// the edit counts as a mutation and bumps the version.
func (d *DB) UpdateListing(ticket models.Ticket) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("location = ?", ticket.Location).
		Set("seat_info = ?", ticket.SeatInfo).
		Set("price = ?", ticket.Price).
		Set("version = version + 1").
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND status = ?", ticket.ID, models.TicketAvailable).
		Exec(context.Background())
	if err != nil {
		return err
	}
	return d.classifyZeroRows(res, ticket.ID)
}

// DeleteTicket removes a listing. Tickets that have ever been RESERVED or
// SOLD stay forever; deletion is only allowed while AVAILABLE.
func (d *DB) DeleteTicket(id string) error {
	res, err := d.Bun.NewDelete().
		Model((*models.Ticket)(nil)).
		Where("id = ? AND status = ?", id, models.TicketAvailable).
		Exec(context.Background())
	if err != nil {
		return err
	}
	return d.classifyZeroRows(res, id)
}

func (d *DB) classifyZeroRows(res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	if _, err := d.GetTicketByID(id); err != nil {
		return err
	}
	return ErrTicketState
}
