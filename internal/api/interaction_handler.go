package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"trade_desk/pkg/crypto"
)

// InteractionRequest is a control activation coming back from the
// presentation layer. Fields beyond Handle are the modal inputs some actions
// need.
type InteractionRequest struct {
	Handle string     `json:"handle"`
	Buyer  string     `json:"buyer,omitempty"`
	Price  flexString `json:"price,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

// InteractionHandler dispatches a signed control handle. The entity id comes
// from the handle, never from rendered message text.
func (h *APIHandler) InteractionHandler(w http.ResponseWriter, r *http.Request) {
	var req InteractionRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	handle, err := h.signer.ParseHandle(req.Handle)
	if err != nil {
		h.sendError(w, "Invalid control handle", http.StatusUnauthorized, "INVALID_HANDLE")
		return
	}

	h.logger.InfoContext(r.Context(), "Interaction received",
		slog.String("kind", handle.Kind),
		slog.String("entity_id", handle.EntityID),
		slog.String("action", handle.Action),
		slog.String("actor", actorFrom(r).String()))

	switch handle.Kind {
	case kindTicket:
		h.dispatchTicket(w, r, handle, req)
	case kindAccount:
		h.dispatchAccount(w, r, handle, req)
	default:
		h.unknownAction(w, handle)
	}
}

func (h *APIHandler) dispatchTicket(w http.ResponseWriter, r *http.Request, handle crypto.Handle, req InteractionRequest) {
	switch handle.Action {
	case actionMarkSold:
		h.markSold(w, r, handle.EntityID, MarkSoldRequest{Buyer: req.Buyer, Price: req.Price})
	case actionMarkCompleted:
		h.ticketAction(w, r, handle.EntityID, h.tickets.MarkCompleted)
	case actionClose:
		h.ticketAction(w, r, handle.EntityID, h.tickets.CloseTicket)
	default:
		h.unknownAction(w, handle)
	}
}

func (h *APIHandler) dispatchAccount(w http.ResponseWriter, r *http.Request, handle crypto.Handle, req InteractionRequest) {
	switch handle.Action {
	case actionRecomputeStatus:
		h.accountAction(w, r, handle.EntityID, h.accounts.RecomputeStatus)
	case actionMarkFinished:
		h.accountAction(w, r, handle.EntityID, h.accounts.MarkFinished)
	case actionBan:
		h.ban(w, r, handle.EntityID, req.Reason)
	case actionDelete:
		h.deleteAccount(w, r, handle.EntityID)
	default:
		h.unknownAction(w, handle)
	}
}

func (h *APIHandler) unknownAction(w http.ResponseWriter, handle crypto.Handle) {
	h.sendError(w, fmt.Sprintf("unknown action %s for %s", handle.Action, handle.Kind),
		http.StatusBadRequest, "UNKNOWN_ACTION")
}
