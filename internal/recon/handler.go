package recon

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-commerce/atlas-ledger/internal/platform/httpx"
)

// Handler exposes bank reconciliation endpoints.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the reconciliation HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

// MountRoutes attaches reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/start", h.Start)
	r.Post("/{id}/match", h.Match)
	r.Post("/{id}/unmatch", h.Unmatch)
	r.Post("/{id}/items", h.AddItem)
	r.Post("/{id}/items/{itemId}/clear", h.ClearItem)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/approve", h.Approve)
	r.Post("/bank-accounts/{accountId}/import", h.Import)
	r.Get("/bank-accounts/{accountId}/unmatched", h.Unmatched)
	r.Get("/bank-accounts/stale", h.Stale)
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

type importRow struct {
	TxnDate     string `json:"txnDate" validate:"required"`
	Amount      int64  `json:"amount" validate:"required"`
	Description string `json:"description"`
}

type importRequest struct {
	ImportedBy int64       `json:"importedBy"`
	Rows       []importRow `json:"rows" validate:"required,min=1,dive"`
}

func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	accountID, ok := idParam(r, "accountId")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid bank account id")
		return
	}
	var req importRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rows := make([]ImportRow, 0, len(req.Rows))
	for _, row := range req.Rows {
		date, err := time.Parse("2006-01-02", row.TxnDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "txnDate must be YYYY-MM-DD")
			return
		}
		rows = append(rows, ImportRow{TxnDate: date, Amount: row.Amount, Description: row.Description})
	}
	result, err := h.service.ImportStatement(r.Context(), accountID, rows, req.ImportedBy)
	if err != nil {
		h.logger.Error("import statement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type createRequest struct {
	BankAccountID          int64 `json:"bankAccountId" validate:"required"`
	FiscalYear             int   `json:"fiscalYear" validate:"required,min=2000,max=9999"`
	FiscalMonth            int   `json:"fiscalMonth" validate:"required,min=1,max=12"`
	StatementEndingBalance int64 `json:"statementEndingBalance"`
	CreatedBy              int64 `json:"createdBy"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rec, err := h.service.Create(r.Context(), req.BankAccountID, req.FiscalYear, req.FiscalMonth, req.StatementEndingBalance, req.CreatedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid reconciliation id")
		return
	}
	rec, items, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reconciliation": rec, "items": items})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid reconciliation id")
		return
	}
	var req struct {
		StartedBy int64 `json:"startedBy"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	rec, err := h.service.Start(r.Context(), id, req.StartedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid reconciliation id")
		return
	}
	var req struct {
		BankTransactionID int64 `json:"bankTransactionId"`
		JournalLineID     int64 `json:"journalLineId"`
		MatchedBy         int64 `json:"matchedBy"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.service.MatchTransaction(r.Context(), id, req.BankTransactionID, req.JournalLineID, req.MatchedBy); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "matched"})
}

func (h *Handler) Unmatch(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid reconciliation id")
		return
	}
	var req struct {
		BankTransactionID int64 `json:"bankTransactionId"`
		UnmatchedBy       int64 `json:"unmatchedBy"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.service.UnmatchTransaction(r.Context(), id, req.BankTransactionID, req.UnmatchedBy); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "unmatched"})
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid reconciliation id")
		return
	}
	var req struct {
		Kind        string `json:"kind"`
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
		CreatedBy   int64  `json:"createdBy"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	item, err := h.service.AddItem(r.Context(), id, ItemKind(req.Kind), req.Amount, req.Description, req.CreatedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) ClearItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	itemID, ok2 := idParam(r, "itemId")
	if !ok || !ok2 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	var req struct {
		ClearedBy int64 `json:"clearedBy"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.service.ClearItem(r.Context(), id, itemID, req.ClearedBy); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid reconciliation id")
		return
	}
	var req struct {
		CompletedBy int64 `json:"completedBy"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	rec, err := h.service.Complete(r.Context(), id, req.CompletedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid reconciliation id")
		return
	}
	var req struct {
		ApprovedBy int64 `json:"approvedBy"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	rec, err := h.service.Approve(r.Context(), id, req.ApprovedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) Unmatched(w http.ResponseWriter, r *http.Request) {
	accountID, ok := idParam(r, "accountId")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid bank account id")
		return
	}
	out, err := h.service.UnmatchedTransactions(r.Context(), accountID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Stale(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.StaleAccounts(r.Context())
	if err != nil {
		h.logger.Error("stale accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
