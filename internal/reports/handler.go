package reports

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-commerce/atlas-ledger/internal/platform/httpx"
)

// Handler exposes read-only reporting endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the reports HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes attaches report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance/{year}/{month}", h.TrialBalance)
	r.Get("/trial-balance/{year}/{month}/comparison", h.TrialBalanceComparison)
	r.Get("/account-ledger/{accountId}", h.AccountLedger)
	r.Post("/cash-flow", h.CashFlow)
}

func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid fiscal year")
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid fiscal month")
		return
	}
	tb, err := h.service.GetTrialBalance(r.Context(), year, month)
	if err != nil {
		h.logger.Error("trial balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) TrialBalanceComparison(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid fiscal year")
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid fiscal month")
		return
	}
	out, err := h.service.GetTrialBalanceComparison(r.Context(), year, month)
	if err != nil {
		h.logger.Error("trial balance comparison", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) AccountLedger(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountId"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	query := r.URL.Query()
	from, err := parseDate(query.Get("from"), time.Time{})
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
		return
	}
	to, err := parseDate(query.Get("to"), time.Now())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
		return
	}
	lines, err := h.service.AccountLedger(r.Context(), accountID, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lines)
}

type cashFlowRequest struct {
	CashFlowInput
	ActualEndingCash *int64 `json:"actualEndingCash"`
}

func (h *Handler) CashFlow(w http.ResponseWriter, r *http.Request) {
	var req cashFlowRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	statement := BuildCashFlowStatement(req.CashFlowInput)
	resp := struct {
		Statement CashFlowStatement    `json:"statement"`
		Check     *ReconciliationCheck `json:"check,omitempty"`
	}{Statement: statement}
	if req.ActualEndingCash != nil {
		check := ValidateReconciliation(statement, *req.ActualEndingCash)
		resp.Check = &check
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func parseDate(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	return time.Parse("2006-01-02", raw)
}
