package api

import (
	"net/http"
	"trade_desk/internal/processor"
	"trade_desk/pkg/validator"
)

type RecordPurchaseRequest struct {
	Quantity flexString `json:"quantity"`
	Cost     flexString `json:"cost"`
	Source   string     `json:"source"`
}

type ConfirmResetRequest struct {
	Token string `json:"token"`
}

type SetConfigRequest struct {
	Value string `json:"value"`
}

func (h *APIHandler) RecordPurchaseHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req RecordPurchaseRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	quantity, err := validator.ParseQuantity(string(req.Quantity))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	cost, err := validator.ParseCost(string(req.Cost))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	entry, err := h.stats.RecordPurchase(ctx, processor.PurchaseRequest{
		Quantity: quantity,
		Cost:     cost,
		Source:   req.Source,
		Actor:    actorFrom(r),
	})
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, entry, http.StatusCreated)
}

func (h *APIHandler) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	summary, err := h.stats.ComputeSummary(ctx)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, summary, http.StatusOK)
}

func (h *APIHandler) SplitProfitHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	people, err := validator.ParsePeople(r.URL.Query().Get("people"))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	split, err := h.stats.SplitProfit(ctx, people)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, split, http.StatusOK)
}

// RequestResetHandler starts the two-step reset. Nothing is cleared until the
// returned token is confirmed.
func (h *APIHandler) RequestResetHandler(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.stats.RequestReset(r.Context(), actorFrom(r))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, challenge, http.StatusAccepted)
}

func (h *APIHandler) ConfirmResetHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req ConfirmResetRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	if err := h.stats.ConfirmReset(ctx, req.Token, actorFrom(r)); err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, map[string]string{"status": "reset"}, http.StatusOK)
}

func (h *APIHandler) AuditHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	report, err := h.reconciler.Audit(ctx)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, report, http.StatusOK)
}

func (h *APIHandler) RepairHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	report, err := h.reconciler.Repair(ctx)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, report, http.StatusOK)
}

func (h *APIHandler) ListConfigHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	values, err := h.registry.All(ctx)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, values, http.StatusOK)
}

func (h *APIHandler) GetConfigHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	key := r.PathValue("key")
	value, err := h.registry.Get(ctx, key)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, map[string]string{"key": key, "value": value}, http.StatusOK)
}

func (h *APIHandler) SetConfigHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req SetConfigRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	key := r.PathValue("key")
	if err := h.registry.Set(ctx, key, req.Value); err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, map[string]string{"key": key, "value": req.Value}, http.StatusOK)
}

func (h *APIHandler) DeleteConfigHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	if err := h.registry.Delete(ctx, r.PathValue("key")); err != nil {
		h.sendDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
