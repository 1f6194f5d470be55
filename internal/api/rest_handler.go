package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"trade_desk/internal/domain"
	"trade_desk/internal/processor"
	"trade_desk/internal/service"
	"trade_desk/pkg/crypto"
	"trade_desk/pkg/metrics"
)

const (
	headerActorID   = "X-Actor-ID"
	headerActorName = "X-Actor-Name"
)

// Services bundles the engine components the adapter drives.
type Services struct {
	Tickets    *processor.TicketProcessor
	Accounts   *processor.AccountProcessor
	Stats      *processor.StatsLedger
	Reconciler *processor.Reconciler
	Config     *processor.ConfigRegistry
	Events     *service.RecentEvents
}

type APIHandler struct {
	tickets        *processor.TicketProcessor
	accounts       *processor.AccountProcessor
	stats          *processor.StatsLedger
	reconciler     *processor.Reconciler
	registry       *processor.ConfigRegistry
	events         *service.RecentEvents
	metrics        *metrics.MetricsCollector
	signer         *crypto.Signer
	logger         *slog.Logger
	requestTimeout time.Duration
}

func NewAPIHandler(
	services Services,
	metrics *metrics.MetricsCollector,
	signer *crypto.Signer,
	logger *slog.Logger,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		tickets:        services.Tickets,
		accounts:       services.Accounts,
		stats:          services.Stats,
		reconciler:     services.Reconciler,
		registry:       services.Config,
		events:         services.Events,
		metrics:        metrics,
		signer:         signer,
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

// SetRequestTimeout bounds how long one request may spend in the engine.
func (h *APIHandler) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		h.requestTimeout = d
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// flexString accepts either a JSON string or a JSON number so raw user input
// reaches the validator unchanged.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	*f = flexString(data)
	return nil
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.sendError(w, "limit must be a non-negative integer", http.StatusBadRequest, "VALIDATION_ERROR")
			return
		}
		limit = n
	}
	h.sendJSON(w, h.events.List(limit), http.StatusOK)
}

func (h *APIHandler) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.requestTimeout)
}

func actorFrom(r *http.Request) domain.Actor {
	return domain.Actor{
		ID:   strings.TrimSpace(r.Header.Get(headerActorID)),
		Name: strings.TrimSpace(r.Header.Get(headerActorName)),
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	h.sendErrorDetails(w, message, statusCode, code, "")
}

func (h *APIHandler) sendErrorDetails(w http.ResponseWriter, message string, statusCode int, code, details string) {
	errorResponse := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponse)

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}

// sendDomainError maps engine errors to HTTP statuses. Invalid transitions
// carry the current state in details.
func (h *APIHandler) sendDomainError(w http.ResponseWriter, err error) {
	var transition *domain.TransitionError
	switch {
	case errors.As(err, &transition):
		h.sendErrorDetails(w, err.Error(), http.StatusConflict, "INVALID_TRANSITION", transition.Current)
	case errors.Is(err, domain.ErrValidation):
		h.sendError(w, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
	case errors.Is(err, domain.ErrNotFound):
		h.sendError(w, err.Error(), http.StatusNotFound, "NOT_FOUND")
	case errors.Is(err, domain.ErrIO):
		h.sendError(w, "Storage failure", http.StatusInternalServerError, "STORAGE_ERROR")
	case errors.Is(err, context.DeadlineExceeded):
		h.sendError(w, "Request timed out", http.StatusGatewayTimeout, "TIMEOUT")
	default:
		h.logger.Error("Unhandled error", slog.String("error", err.Error()))
		h.sendError(w, "Internal error", http.StatusInternalServerError, "SERVER_ERROR")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument records the outcome and latency of one action.
func (h *APIHandler) instrument(action string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		outcome := metrics.OutcomeOK
		switch {
		case rec.status >= 500:
			outcome = metrics.OutcomeError
		case rec.status >= 400:
			outcome = metrics.OutcomeRejected
		}
		if h.metrics != nil {
			h.metrics.RecordAction(action, outcome, time.Since(startTime))
		}
	}
}

func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	route := func(pattern, action string, fn http.HandlerFunc) {
		mux.HandleFunc(pattern, h.instrument(action, fn))
	}

	route("POST /api/v1/tickets", "open_ticket", h.OpenTicketHandler)
	route("GET /api/v1/tickets", "list_tickets", h.ListTicketsHandler)
	route("GET /api/v1/tickets/{id}", "get_ticket", h.GetTicketHandler)
	route("PATCH /api/v1/tickets/{id}", "update_ticket", h.UpdateTicketHandler)
	route("POST /api/v1/tickets/{id}/sold", "mark_sold", h.MarkSoldHandler)
	route("POST /api/v1/tickets/{id}/completed", "mark_completed", h.MarkCompletedHandler)
	route("POST /api/v1/tickets/{id}/close", "close_ticket", h.CloseTicketHandler)

	route("POST /api/v1/accounts", "add_account", h.AddAccountHandler)
	route("GET /api/v1/accounts", "list_accounts", h.ListAccountsHandler)
	route("GET /api/v1/accounts/backup", "list_backup", h.ListBackupHandler)
	route("GET /api/v1/accounts/{id}", "get_account", h.GetAccountHandler)
	route("PATCH /api/v1/accounts/{id}", "update_account", h.UpdateAccountHandler)
	route("DELETE /api/v1/accounts/{id}", "delete_account", h.DeleteAccountHandler)
	route("POST /api/v1/accounts/{id}/recompute", "recompute_status", h.RecomputeStatusHandler)
	route("POST /api/v1/accounts/{id}/finished", "mark_finished", h.MarkFinishedHandler)
	route("POST /api/v1/accounts/{id}/ban", "ban_account", h.BanAccountHandler)

	route("POST /api/v1/purchases", "record_purchase", h.RecordPurchaseHandler)
	route("GET /api/v1/stats/summary", "compute_summary", h.SummaryHandler)
	route("GET /api/v1/stats/split", "split_profit", h.SplitProfitHandler)
	route("POST /api/v1/stats/reset", "request_reset", h.RequestResetHandler)
	route("POST /api/v1/stats/reset/confirm", "confirm_reset", h.ConfirmResetHandler)
	route("GET /api/v1/reconcile", "reconcile_audit", h.AuditHandler)
	route("POST /api/v1/reconcile/repair", "reconcile_repair", h.RepairHandler)

	route("GET /api/v1/config", "list_config", h.ListConfigHandler)
	route("GET /api/v1/config/{key}", "get_config", h.GetConfigHandler)
	route("PUT /api/v1/config/{key}", "set_config", h.SetConfigHandler)
	route("DELETE /api/v1/config/{key}", "delete_config", h.DeleteConfigHandler)

	route("GET /api/v1/events", "list_events", h.EventsHandler)
	route("POST /api/v1/interactions", "interaction", h.InteractionHandler)
	mux.HandleFunc("GET /api/health", h.HealthCheckHandler)
}
