package api

import (
	"context"
	"net/http"
	"trade_desk/internal/domain"
	"trade_desk/internal/processor"
	"trade_desk/pkg/crypto"
)

const (
	kindTicket  = "ticket"
	kindAccount = "account"

	actionMarkSold        = "mark_sold"
	actionMarkCompleted   = "mark_completed"
	actionClose           = "close"
	actionMarkFinished    = "mark_finished"
	actionRecomputeStatus = "recompute_status"
	actionBan             = "ban"
	actionDelete          = "delete"
)

// Control is one interactive action the presentation layer may render. Handle
// is sent back verbatim to /api/v1/interactions.
type Control struct {
	Action string `json:"action"`
	Handle string `json:"handle"`
}

type OpenTicketRequest struct {
	Category  string `json:"category"`
	Payload   string `json:"payload"`
	Notes     string `json:"notes,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

type MarkSoldRequest struct {
	Buyer string     `json:"buyer"`
	Price flexString `json:"price"`
}

type TicketResponse struct {
	Ticket   *domain.Ticket `json:"ticket"`
	Controls []Control      `json:"controls"`
}

var ticketActions = map[domain.TicketStatus]string{
	domain.TicketSold:      actionMarkSold,
	domain.TicketCompleted: actionMarkCompleted,
	domain.TicketClosed:    actionClose,
}

func (h *APIHandler) ticketResponse(t *domain.Ticket) TicketResponse {
	controls := []Control{}
	for _, next := range t.Status.NextStatuses() {
		action := ticketActions[next]
		controls = append(controls, Control{
			Action: action,
			Handle: h.signer.SignHandle(crypto.Handle{Kind: kindTicket, EntityID: t.ID, Action: action}),
		})
	}
	return TicketResponse{Ticket: t, Controls: controls}
}

func (h *APIHandler) OpenTicketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req OpenTicketRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	ticket, err := h.tickets.OpenTicket(ctx, processor.TicketRequest{
		Requester: actorFrom(r),
		Category:  req.Category,
		Payload:   req.Payload,
		Notes:     req.Notes,
		ChannelID: req.ChannelID,
	})
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	h.sendJSON(w, h.ticketResponse(ticket), http.StatusCreated)
}

func (h *APIHandler) ListTicketsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	tickets, err := h.tickets.ListTickets(ctx, domain.TicketStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, tickets, http.StatusOK)
}

func (h *APIHandler) GetTicketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	ticket, err := h.tickets.GetTicket(ctx, r.PathValue("id"))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, h.ticketResponse(ticket), http.StatusOK)
}

func (h *APIHandler) UpdateTicketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var update domain.TicketUpdate
	if err := decodeBody(r, &update); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	ticket, err := h.tickets.UpdateTicket(ctx, r.PathValue("id"), update)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, h.ticketResponse(ticket), http.StatusOK)
}

func (h *APIHandler) MarkSoldHandler(w http.ResponseWriter, r *http.Request) {
	var req MarkSoldRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	h.markSold(w, r, r.PathValue("id"), req)
}

func (h *APIHandler) markSold(w http.ResponseWriter, r *http.Request, id string, req MarkSoldRequest) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	ticket, err := h.tickets.MarkSold(ctx, id, processor.SaleRequest{
		Buyer:  req.Buyer,
		Price:  string(req.Price),
		Seller: actorFrom(r),
	})
	if err != nil && ticket != nil {
		h.sendErrorDetails(w, err.Error(), http.StatusInternalServerError, "PARTIAL_COMPLETION",
			"ticket is sold but the sale was not recorded; run reconciliation")
		return
	}
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, h.ticketResponse(ticket), http.StatusOK)
}

func (h *APIHandler) MarkCompletedHandler(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, r.PathValue("id"), h.tickets.MarkCompleted)
}

func (h *APIHandler) CloseTicketHandler(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, r.PathValue("id"), h.tickets.CloseTicket)
}

type ticketActionFunc func(ctx context.Context, id string, actor domain.Actor) (*domain.Ticket, error)

func (h *APIHandler) ticketAction(w http.ResponseWriter, r *http.Request, id string, fn ticketActionFunc) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	ticket, err := fn(ctx, id, actorFrom(r))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, h.ticketResponse(ticket), http.StatusOK)
}
