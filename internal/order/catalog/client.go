// Package catalog is the order service's read-side client for the ticket
// inventory service. The coordinator only ever needs a point-in-time
// snapshot; reservations themselves travel over the fabric.
package catalog

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ticket-marketplace/internal/models"
	ticketdb "ticket-marketplace/internal/tickets/db"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{BaseURL: baseURL, HTTP: httpClient}
}

// GetTicket fetches a ticket snapshot, including the version the caller will
// later submit with its reservation intent.
func (c *Client) GetTicket(id string) (*models.Ticket, error) {
	url := fmt.Sprintf("%s/api/v1/tickets/%s", c.BaseURL, id)

	resp, err := c.HTTP.Get(url)
	if err != nil {
		return nil, fmt.Errorf("ticket service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ticketdb.ErrTicketNotFound
	default:
		return nil, fmt.Errorf("ticket service: unexpected status %d for ticket %s", resp.StatusCode, id)
	}

	var ticket models.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		return nil, fmt.Errorf("ticket service: decode ticket %s: %w", id, err)
	}
	return &ticket, nil
}
