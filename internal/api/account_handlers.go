package api

import (
	"context"
	"net/http"
	"trade_desk/internal/domain"
	"trade_desk/internal/processor"
	"trade_desk/pkg/crypto"
	"trade_desk/pkg/validator"
)

type AddAccountRequest struct {
	Payload  string     `json:"payload"`
	Level    flexString `json:"level"`
	OpenedBy string     `json:"opened_by"`
	Notes    string     `json:"notes,omitempty"`
}

type BanRequest struct {
	Reason string `json:"reason"`
}

type AccountResponse struct {
	Account  *domain.Account `json:"account"`
	Controls []Control       `json:"controls"`
}

func (h *APIHandler) accountResponse(a *domain.Account) AccountResponse {
	actions := []string{}
	if a.Status != domain.AccountBanned {
		actions = append(actions, actionRecomputeStatus)
	}
	if a.Status != domain.AccountFinished {
		actions = append(actions, actionMarkFinished)
	}
	if a.Status != domain.AccountBanned {
		actions = append(actions, actionBan)
	}
	actions = append(actions, actionDelete)

	controls := make([]Control, 0, len(actions))
	for _, action := range actions {
		controls = append(controls, Control{
			Action: action,
			Handle: h.signer.SignHandle(crypto.Handle{Kind: kindAccount, EntityID: a.ID, Action: action}),
		})
	}
	return AccountResponse{Account: a, Controls: controls}
}

func (h *APIHandler) AddAccountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req AddAccountRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	level, err := validator.ParseLevel(string(req.Level))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	account, err := h.accounts.AddAccount(ctx, processor.AccountRequest{
		Payload:  req.Payload,
		Level:    level,
		OpenedBy: req.OpenedBy,
		Notes:    req.Notes,
		AddedBy:  actorFrom(r),
	})
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, h.accountResponse(account), http.StatusCreated)
}

func (h *APIHandler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	accounts, err := h.accounts.ListAccounts(ctx, domain.AccountStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, accounts, http.StatusOK)
}

func (h *APIHandler) ListBackupHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	backup, err := h.accounts.ListBackup(ctx)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, backup, http.StatusOK)
}

func (h *APIHandler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	account, err := h.accounts.GetAccount(ctx, r.PathValue("id"))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, h.accountResponse(account), http.StatusOK)
}

func (h *APIHandler) UpdateAccountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var update domain.AccountUpdate
	if err := decodeBody(r, &update); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	account, err := h.accounts.UpdateAccount(ctx, r.PathValue("id"), update)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, h.accountResponse(account), http.StatusOK)
}

func (h *APIHandler) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	h.deleteAccount(w, r, r.PathValue("id"))
}

func (h *APIHandler) deleteAccount(w http.ResponseWriter, r *http.Request, id string) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	if err := h.accounts.DeleteAccount(ctx, id, actorFrom(r)); err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, map[string]string{"deleted": id}, http.StatusOK)
}

func (h *APIHandler) RecomputeStatusHandler(w http.ResponseWriter, r *http.Request) {
	h.accountAction(w, r, r.PathValue("id"), h.accounts.RecomputeStatus)
}

func (h *APIHandler) MarkFinishedHandler(w http.ResponseWriter, r *http.Request) {
	h.accountAction(w, r, r.PathValue("id"), h.accounts.MarkFinished)
}

func (h *APIHandler) BanAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req BanRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	h.ban(w, r, r.PathValue("id"), req.Reason)
}

func (h *APIHandler) ban(w http.ResponseWriter, r *http.Request, id, reason string) {
	h.accountAction(w, r, id, func(ctx context.Context, id string, actor domain.Actor) (*domain.Account, error) {
		return h.accounts.Ban(ctx, id, reason, actor)
	})
}

type accountActionFunc func(ctx context.Context, id string, actor domain.Actor) (*domain.Account, error)

func (h *APIHandler) accountAction(w http.ResponseWriter, r *http.Request, id string, fn accountActionFunc) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	account, err := fn(ctx, id, actorFrom(r))
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, h.accountResponse(account), http.StatusOK)
}
