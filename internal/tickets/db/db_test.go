package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ticket-marketplace/internal/models"
	"ticket-marketplace/internal/tickets/db"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = bunDB.NewCreateTable().Model((*models.Ticket)(nil)).Exec(context.Background())
	if err != nil {
		t.Fatalf("Failed to create tickets table: %v", err)
	}

	return &db.DB{Bun: bunDB}, bunDB
}

func newTicket(status models.TicketStatus, version int64) models.Ticket {
	now := time.Now()
	return models.Ticket{
		ID:          uuid.NewString(),
		EventName:   "Jazz Night",
		Category:    "concert",
		Location:    "Blue Note",
		EventDate:   now.Add(72 * time.Hour),
		SeatInfo:    "A12",
		Price:       80.0,
		SellerID:    "seller-1",
		OwnerUserID: "seller-1",
		Status:      status,
		Version:     version,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCreateAndGetTicket(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	ticket := newTicket(models.TicketAvailable, 0)
	require.NoError(t, ticketDB.CreateTicket(ticket))

	got, err := ticketDB.GetTicketByID(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, got.ID)
	assert.Equal(t, models.TicketAvailable, got.Status)
	assert.Equal(t, int64(0), got.Version)
}

func TestGetTicketNotFound(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	_, err := ticketDB.GetTicketByID("missing")
	assert.ErrorIs(t, err, db.ErrTicketNotFound)
}

func TestReserveBumpsVersion(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	ticket := newTicket(models.TicketAvailable, 0)
	require.NoError(t, ticketDB.CreateTicket(ticket))

	got, err := ticketDB.Reserve(ticket.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, models.TicketReserved, got.Status)
	assert.Equal(t, int64(1), got.Version)
}

func TestReserveStaleVersionLoses(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	// A release has already bumped the version past what this buyer saw.
	ticket := newTicket(models.TicketAvailable, 2)
	require.NoError(t, ticketDB.CreateTicket(ticket))

	_, err := ticketDB.Reserve(ticket.ID, 0)
	assert.ErrorIs(t, err, db.ErrVersionConflict)

	// The losing attempt must not have touched the row.
	got, err := ticketDB.GetTicketByID(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketAvailable, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestReserveOnlyOneBuyerWins(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	ticket := newTicket(models.TicketAvailable, 0)
	require.NoError(t, ticketDB.CreateTicket(ticket))

	// Two buyers saw the same snapshot. The first commit wins; the second hits
	// a row that is no longer AVAILABLE.
	_, err := ticketDB.Reserve(ticket.ID, 0)
	require.NoError(t, err)

	_, err = ticketDB.Reserve(ticket.ID, 0)
	assert.ErrorIs(t, err, db.ErrTicketState)
}

func TestReserveMissingTicket(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	_, err := ticketDB.Reserve("missing", 0)
	assert.ErrorIs(t, err, db.ErrTicketNotFound)
}

func TestReleaseReturnsTicketToAvailable(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	ticket := newTicket(models.TicketAvailable, 0)
	require.NoError(t, ticketDB.CreateTicket(ticket))

	_, err := ticketDB.Reserve(ticket.ID, 0)
	require.NoError(t, err)

	got, err := ticketDB.Release(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketAvailable, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestReleaseIsIdempotent(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	ticket := newTicket(models.TicketAvailable, 0)
	require.NoError(t, ticketDB.CreateTicket(ticket))

	// Duplicate release of a ticket that was never reserved: no transition, no
	// version bump, no error.
	got, err := ticketDB.Release(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketAvailable, got.Status)
	assert.Equal(t, int64(0), got.Version)
}

func TestReleaseDoesNotUndoSold(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	ticket := newTicket(models.TicketAvailable, 0)
	require.NoError(t, ticketDB.CreateTicket(ticket))

	_, err := ticketDB.Reserve(ticket.ID, 0)
	require.NoError(t, err)
	_, err = ticketDB.MarkSold(ticket.ID)
	require.NoError(t, err)

	got, err := ticketDB.Release(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketSold, got.Status)
}

func TestMarkSold(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	ticket := newTicket(models.TicketAvailable, 0)
	require.NoError(t, ticketDB.CreateTicket(ticket))

	_, err := ticketDB.Reserve(ticket.ID, 0)
	require.NoError(t, err)

	got, err := ticketDB.MarkSold(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketSold, got.Status)
	assert.Equal(t, int64(2), got.Version)

	// Redelivered mark-sold returns the sold row without another bump.
	again, err := ticketDB.MarkSold(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketSold, again.Status)
	assert.Equal(t, int64(2), again.Version)
}

func TestMarkSoldRequiresReserved(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	ticket := newTicket(models.TicketAvailable, 0)
	require.NoError(t, ticketDB.CreateTicket(ticket))

	_, err := ticketDB.MarkSold(ticket.ID)
	assert.ErrorIs(t, err, db.ErrTicketState)
}

func TestUpdateListingOnlyWhileAvailable(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	ticket := newTicket(models.TicketAvailable, 0)
	require.NoError(t, ticketDB.CreateTicket(ticket))

	ticket.Price = 95.0
	ticket.SeatInfo = "B4"
	require.NoError(t, ticketDB.UpdateListing(ticket))

	got, err := ticketDB.GetTicketByID(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 95.0, got.Price)
	assert.Equal(t, "B4", got.SeatInfo)
	assert.Equal(t, int64(1), got.Version, "listing edits count as mutations")

	_, err = ticketDB.Reserve(ticket.ID, 1)
	require.NoError(t, err)

	err = ticketDB.UpdateListing(ticket)
	assert.ErrorIs(t, err, db.ErrTicketState)
}

func TestDeleteTicketOnlyWhileAvailable(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	ticket := newTicket(models.TicketAvailable, 0)
	require.NoError(t, ticketDB.CreateTicket(ticket))

	reserved := newTicket(models.TicketAvailable, 0)
	require.NoError(t, ticketDB.CreateTicket(reserved))
	_, err := ticketDB.Reserve(reserved.ID, 0)
	require.NoError(t, err)

	require.NoError(t, ticketDB.DeleteTicket(ticket.ID))
	_, err = ticketDB.GetTicketByID(ticket.ID)
	assert.ErrorIs(t, err, db.ErrTicketNotFound)

	err = ticketDB.DeleteTicket(reserved.ID)
	assert.ErrorIs(t, err, db.ErrTicketState)

	err = ticketDB.DeleteTicket("missing")
	assert.ErrorIs(t, err, db.ErrTicketNotFound)
}

func TestListAvailableFiltersAndOrders(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	later := newTicket(models.TicketAvailable, 0)
	later.EventDate = time.Now().Add(96 * time.Hour)
	sooner := newTicket(models.TicketAvailable, 0)
	sooner.EventDate = time.Now().Add(24 * time.Hour)
	reserved := newTicket(models.TicketReserved, 1)

	for _, tk := range []models.Ticket{later, sooner, reserved} {
		require.NoError(t, ticketDB.CreateTicket(tk))
	}

	got, err := ticketDB.ListAvailable()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, sooner.ID, got[0].ID)
	assert.Equal(t, later.ID, got[1].ID)
}

func TestSearchByEvent(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	jazz := newTicket(models.TicketAvailable, 0)
	jazz.EventName = "Jazz Night"
	rock := newTicket(models.TicketAvailable, 0)
	rock.EventName = "Rock Festival"

	require.NoError(t, ticketDB.CreateTicket(jazz))
	require.NoError(t, ticketDB.CreateTicket(rock))

	got, err := ticketDB.SearchByEvent("jazz")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, jazz.ID, got[0].ID)
}

func TestHappeningBetween(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	now := time.Now()
	inWindow := newTicket(models.TicketAvailable, 0)
	inWindow.EventDate = now.Add(48 * time.Hour)
	outside := newTicket(models.TicketAvailable, 0)
	outside.EventDate = now.Add(30 * 24 * time.Hour)

	require.NoError(t, ticketDB.CreateTicket(inWindow))
	require.NoError(t, ticketDB.CreateTicket(outside))

	got, err := ticketDB.HappeningBetween(now, now.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inWindow.ID, got[0].ID)
}
