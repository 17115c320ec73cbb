package ticket_api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ticket-marketplace/internal/models"
	"ticket-marketplace/internal/tickets/db"
	"ticket-marketplace/internal/tickets/qr"
	"ticket-marketplace/internal/tickets/service"
)

type Handler struct {
	TicketService *service.TicketService
	QR            *qr.QRGenerator
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.CreateTicket)
	r.Get("/", h.ListAvailable)
	r.Get("/search", h.SearchByEvent)
	r.Get("/between", h.HappeningBetween)
	r.Get("/{ticketId}", h.GetTicket)
	r.Put("/{ticketId}", h.UpdateTicket)
	r.Delete("/{ticketId}", h.DeleteTicket)
	r.Post("/{ticketId}/reserve", h.ReserveTicket)
	r.Post("/{ticketId}/release", h.ReleaseTicket)
	r.Post("/{ticketId}/sold", h.MarkTicketSold)
	r.Get("/{ticketId}/qr", h.TicketQR)
}

func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	sellerID := r.Header.Get("X-User-ID")
	if sellerID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}

	var req models.CreateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.EventName == "" || req.Price < 0 {
		http.Error(w, "eventName is required and price must be non-negative", http.StatusBadRequest)
		return
	}

	ticket, err := h.TicketService.Create(sellerID, req)
	if err != nil {
		writeTicketError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ticket)
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.Get(chi.URLParam(r, "ticketId"))
	if err != nil {
		writeTicketError(w, err)
		return
	}
	writeJSON(w, ticket)
}

func (h *Handler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.TicketService.ListAvailable()
	if err != nil {
		writeTicketError(w, err)
		return
	}
	writeJSON(w, tickets)
}

func (h *Handler) SearchByEvent(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "query parameter q is required", http.StatusBadRequest)
		return
	}

	tickets, err := h.TicketService.SearchByEvent(query)
	if err != nil {
		writeTicketError(w, err)
		return
	}
	writeJSON(w, tickets)
}

func (h *Handler) HappeningBetween(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "invalid from timestamp: "+err.Error(), http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "invalid to timestamp: "+err.Error(), http.StatusBadRequest)
		return
	}

	tickets, err := h.TicketService.HappeningBetween(from, to)
	if err != nil {
		writeTicketError(w, err)
		return
	}
	writeJSON(w, tickets)
}

func (h *Handler) UpdateTicket(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	ticket, err := h.TicketService.Update(chi.URLParam(r, "ticketId"), req)
	if err != nil {
		writeTicketError(w, err)
		return
	}
	writeJSON(w, ticket)
}

func (h *Handler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	if err := h.TicketService.Delete(chi.URLParam(r, "ticketId")); err != nil {
		writeTicketError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReserveTicket is the synchronous CAS endpoint. The expected version comes
// from the snapshot the caller last read.
func (h *Handler) ReserveTicket(w http.ResponseWriter, r *http.Request) {
	versionStr := r.URL.Query().Get("version")
	version, err := strconv.ParseInt(versionStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid version: "+versionStr, http.StatusBadRequest)
		return
	}

	ticket, err := h.TicketService.Reserve(chi.URLParam(r, "ticketId"), version)
	if err != nil {
		writeTicketError(w, err)
		return
	}
	writeJSON(w, ticket)
}

func (h *Handler) ReleaseTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.Release(chi.URLParam(r, "ticketId"))
	if err != nil {
		writeTicketError(w, err)
		return
	}
	writeJSON(w, ticket)
}

func (h *Handler) MarkTicketSold(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.MarkSold(chi.URLParam(r, "ticketId"))
	if err != nil {
		writeTicketError(w, err)
		return
	}
	writeJSON(w, ticket)
}

// TicketQR returns the encrypted entry pass for a sold ticket.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.Get(chi.URLParam(r, "ticketId"))
	if err != nil {
		writeTicketError(w, err)
		return
	}
	if ticket.Status != models.TicketSold {
		http.Error(w, "QR codes are only issued for sold tickets", http.StatusConflict)
		return
	}

	png, err := h.QR.GenerateEncryptedQR(*ticket)
	if err != nil {
		http.Error(w, "Could not generate QR: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeTicketError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrTicketNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, db.ErrVersionConflict):
		http.Error(w, "ticket is no longer available", http.StatusConflict)
	case errors.Is(err, db.ErrTicketState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
