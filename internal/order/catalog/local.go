package catalog

import (
	"ticket-marketplace/internal/models"
	"ticket-marketplace/internal/tickets/service"
)

// Local serves snapshots straight from the ticket service in the same
// process. Used in single-node mode, where both services share one binary
// and the in-process fabric.
type Local struct {
	Tickets *service.TicketService
}

func (l *Local) GetTicket(id string) (*models.Ticket, error) {
	return l.Tickets.Get(id)
}
