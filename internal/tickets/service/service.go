package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"ticket-marketplace/internal/logger"
	"ticket-marketplace/internal/models"
)

// DBLayer is the slice of the ticket store the service needs.
type DBLayer interface {
	CreateTicket(ticket models.Ticket) error
	GetTicketByID(id string) (*models.Ticket, error)
	ListAvailable() ([]models.Ticket, error)
	SearchByEvent(query string) ([]models.Ticket, error)
	HappeningBetween(from, to time.Time) ([]models.Ticket, error)
	Reserve(id string, expectedVersion int64) (*models.Ticket, error)
	Release(id string) (*models.Ticket, error)
	MarkSold(id string) (*models.Ticket, error)
	UpdateListing(ticket models.Ticket) error
	DeleteTicket(id string) error
}

type TicketService struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewTicketService(db DBLayer, log *logger.Logger) *TicketService {
	return &TicketService{DB: db, Logger: log}
}

// Create lists a new ticket for the given seller. New listings start
// AVAILABLE at version 0.
func (s *TicketService) Create(sellerID string, req models.CreateTicketRequest) (*models.Ticket, error) {
	now := time.Now()
	ticket := models.Ticket{
		ID:          uuid.NewString(),
		EventName:   req.EventName,
		Category:    req.Category,
		Location:    req.Location,
		EventDate:   req.EventDate,
		SeatInfo:    req.SeatInfo,
		Price:       req.Price,
		SellerID:    sellerID,
		OwnerUserID: sellerID,
		Status:      models.TicketAvailable,
		Version:     0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.DB.CreateTicket(ticket); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	s.Logger.LogTicket("CREATE", ticket.ID, fmt.Sprintf("listed by %s for %.2f", sellerID, ticket.Price))
	return &ticket, nil
}

func (s *TicketService) Get(id string) (*models.Ticket, error) {
	return s.DB.GetTicketByID(id)
}

func (s *TicketService) ListAvailable() ([]models.Ticket, error) {
	return s.DB.ListAvailable()
}

func (s *TicketService) SearchByEvent(query string) ([]models.Ticket, error) {
	return s.DB.SearchByEvent(query)
}

func (s *TicketService) HappeningBetween(from, to time.Time) ([]models.Ticket, error) {
	return s.DB.HappeningBetween(from, to)
}

// Reserve applies the version-guarded AVAILABLE -> RESERVED transition.
func (s *TicketService) Reserve(id string, expectedVersion int64) (*models.Ticket, error) {
	ticket, err := s.DB.Reserve(id, expectedVersion)
	if err != nil {
		return nil, err
	}
	s.Logger.LogTicket("RESERVE", id, fmt.Sprintf("version %d -> %d", expectedVersion, ticket.Version))
	return ticket, nil
}

// Release returns a RESERVED ticket to AVAILABLE. Releasing a ticket that is
// not RESERVED is a no-op and returns the current snapshot; this is a
// guarantee duplicate release messages rely on.
func (s *TicketService) Release(id string) (*models.Ticket, error) {
	ticket, err := s.DB.Release(id)
	if err != nil {
		return nil, err
	}
	s.Logger.LogTicket("RELEASE", id, string(ticket.Status))
	return ticket, nil
}

// MarkSold finalizes a RESERVED ticket. Already-SOLD tickets are returned
// unchanged.
func (s *TicketService) MarkSold(id string) (*models.Ticket, error) {
	ticket, err := s.DB.MarkSold(id)
	if err != nil {
		return nil, err
	}
	s.Logger.LogTicket("SOLD", id, fmt.Sprintf("version %d", ticket.Version))
	return ticket, nil
}

// Update edits listing fields on an AVAILABLE ticket.
func (s *TicketService) Update(id string, req models.UpdateTicketRequest) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByID(id)
	if err != nil {
		return nil, err
	}

	if req.Location != nil {
		ticket.Location = *req.Location
	}
	if req.SeatInfo != nil {
		ticket.SeatInfo = *req.SeatInfo
	}
	if req.Price != nil {
		ticket.Price = *req.Price
	}

	if err := s.DB.UpdateListing(*ticket); err != nil {
		return nil, err
	}
	return s.DB.GetTicketByID(id)
}

// Delete removes an AVAILABLE listing.
func (s *TicketService) Delete(id string) error {
	if err := s.DB.DeleteTicket(id); err != nil {
		return err
	}
	s.Logger.LogTicket("DELETE", id, "listing removed")
	return nil
}
