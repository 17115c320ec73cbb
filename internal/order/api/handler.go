package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ticket-marketplace/internal/models"
	"ticket-marketplace/internal/order"
	"ticket-marketplace/internal/order/db"
	ticketdb "ticket-marketplace/internal/tickets/db"
)

// Handler exposes the coordinator over HTTP. The gateway authenticates
// requests; the buyer identity arrives as the trusted X-User-ID header.
type Handler struct {
	OrderService *order.OrderService
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.CreateOrder)
	r.Get("/{orderId}", h.GetOrder)
	r.Post("/{orderId}/complete", h.CompleteOrder)
	r.Post("/{orderId}/cancel", h.CancelOrder)
	r.Get("/user/{userId}", h.ListByUser)
	r.Get("/seller/{sellerId}", h.ListBySeller)
	r.Get("/ticket/{ticketId}/pending/count", h.CountPendingForTicket)
	r.Get("/payment/{paymentId}", h.FindByPaymentID)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	buyerID := r.Header.Get("X-User-ID")
	if buyerID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}

	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.TicketID == "" {
		http.Error(w, "ticketId is required", http.StatusBadRequest)
		return
	}

	created, err := h.OrderService.CreateOrder(buyerID, req)
	if err != nil {
		writeOrderError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.OrderService.GetOrder(chi.URLParam(r, "orderId"))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, o)
}

func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CompleteOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.PaymentID == "" {
		http.Error(w, "paymentId is required", http.StatusBadRequest)
		return
	}

	o, err := h.OrderService.CompleteOrder(chi.URLParam(r, "orderId"), req.PaymentID)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, o)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	o, err := h.OrderService.CancelOrder(chi.URLParam(r, "orderId"), req.Reason)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, o)
}

func (h *Handler) ListByUser(w http.ResponseWriter, r *http.Request) {
	orders, err := h.OrderService.ListByUser(chi.URLParam(r, "userId"))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, orders)
}

func (h *Handler) ListBySeller(w http.ResponseWriter, r *http.Request) {
	orders, err := h.OrderService.ListBySeller(chi.URLParam(r, "sellerId"))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, orders)
}

func (h *Handler) CountPendingForTicket(w http.ResponseWriter, r *http.Request) {
	count, err := h.OrderService.CountPendingForTicket(chi.URLParam(r, "ticketId"))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, map[string]int{"pendingOrders": count})
}

func (h *Handler) FindByPaymentID(w http.ResponseWriter, r *http.Request) {
	o, err := h.OrderService.FindByPaymentID(chi.URLParam(r, "paymentId"))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, o)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrOrderNotFound), errors.Is(err, ticketdb.ErrTicketNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, order.ErrOwnTicket):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, order.ErrTicketHeld), errors.Is(err, ticketdb.ErrVersionConflict):
		http.Error(w, "ticket is no longer available", http.StatusConflict)
	case errors.Is(err, db.ErrOrderState), errors.Is(err, ticketdb.ErrTicketState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
