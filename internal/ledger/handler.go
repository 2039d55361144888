package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-commerce/atlas-ledger/internal/platform/httpx"
)

// Handler exposes journal entry endpoints.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the ledger HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

// MountRoutes attaches journal entry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/post", h.Post)
	r.Post("/{id}/void", h.Void)
	r.Get("/by-account/{accountId}", h.ByAccount)
}

type lineRequest struct {
	AccountID  int64   `json:"accountId" validate:"required"`
	Direction  string  `json:"direction" validate:"required,oneof=DEBIT CREDIT"`
	Amount     int64   `json:"amount" validate:"required,gt=0"`
	CostCenter *string `json:"costCenter"`
	Warehouse  *string `json:"warehouse"`
	Channel    *string `json:"channel"`
	CustomerID *int64  `json:"customerId"`
	VendorID   *int64  `json:"vendorId"`
	ProductID  *int64  `json:"productId"`
}

type createEntryRequest struct {
	FiscalYear  int           `json:"fiscalYear" validate:"required"`
	FiscalMonth int           `json:"fiscalMonth" validate:"required,min=1,max=12"`
	EntryDate   time.Time     `json:"entryDate" validate:"required"`
	Type        string        `json:"entryType" validate:"omitempty,oneof=MANUAL SYSTEM RECURRING ADJUSTING CLOSING"`
	Description string        `json:"description"`
	CreatedBy   int64         `json:"createdBy" validate:"required"`
	Lines       []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := DraftInput{
		FiscalYear:  req.FiscalYear,
		FiscalMonth: req.FiscalMonth,
		EntryDate:   req.EntryDate,
		Type:        EntryType(req.Type),
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{
			AccountID:  line.AccountID,
			Direction:  Direction(line.Direction),
			Amount:     line.Amount,
			CostCenter: line.CostCenter,
			Warehouse:  line.Warehouse,
			Channel:    line.Channel,
			CustomerID: line.CustomerID,
			VendorID:   line.VendorID,
			ProductID:  line.ProductID,
		})
	}
	entry, err := h.service.CreateEntry(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	var req struct {
		PostedBy int64 `json:"postedBy"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	entry, err := h.service.PostEntry(r.Context(), id, req.PostedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	var req struct {
		Reason   string `json:"reason"`
		VoidedBy int64  `json:"voidedBy"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	entry, err := h.service.VoidEntry(r.Context(), id, req.Reason, req.VoidedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) ByAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountId"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entries, err := h.service.FindByAccount(r.Context(), accountID, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func dateRange(r *http.Request) (time.Time, time.Time, error) {
	parse := func(key string, fallback time.Time) (time.Time, error) {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			return fallback, nil
		}
		return time.Parse("2006-01-02", raw)
	}
	from, err := parse("from", time.Time{})
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parse("to", time.Now())
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}
