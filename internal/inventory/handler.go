package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/saman-erp/saman-erp/internal/platform/httpx"
	"github.com/saman-erp/saman-erp/internal/shared"
)

// Handler wires HTTP endpoints for inventory transactions.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/transactions", h.listTransactions)
	r.Post("/transactions", h.createTransaction)
	r.Get("/transactions/{id}", h.getTransaction)
	r.Post("/transactions/{id}/void", h.voidTransaction)
}

type itemRequest struct {
	VariantID int64   `json:"variant_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required"`
	UnitCost  float64 `json:"unit_cost" validate:"gte=0"`
	Source    string  `json:"source" validate:"omitempty,oneof=fresh damaged"`
}

type createTransactionRequest struct {
	Type        string        `json:"type" validate:"required,oneof=purchase purchase_return damage adjustment"`
	VendorID    int64         `json:"vendor_id" validate:"gte=0"`
	ReferenceID int64         `json:"reference_transaction_id" validate:"gte=0"`
	Note        string        `json:"note"`
	Items       []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := CreateInput{
		Type:        TransactionType(req.Type),
		VendorID:    req.VendorID,
		ReferenceID: req.ReferenceID,
		Note:        req.Note,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, ItemInput{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitCost:  item.UnitCost,
			Source:    SourceType(item.Source),
		})
	}

	created, err := h.service.Create(r.Context(), input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transaction id")
		return
	}
	tx, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tx)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.ParsePagination(q)
	filter := Filter{
		Type:   TransactionType(q.Get("type")),
		Status: TransactionStatus(q.Get("status")),
		Search: q.Get("q"),
		Limit:  page.Limit(),
		Offset: page.Offset(),
	}
	if raw := q.Get("vendor_id"); raw != "" {
		filter.VendorID, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.From = t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.To = t.Add(24*time.Hour - time.Nanosecond)
		}
	}

	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": list, "page": page.Page, "per_page": page.PerPage})
}

func (h *Handler) voidTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transaction id")
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	voided, err := h.service.Void(r.Context(), id, req.Reason, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, voided)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var returnErr *ReturnQuantityExceededError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrDuplicateInvoice):
		httpx.Problem(w, http.StatusConflict, "Duplicate Invoice", err.Error())
	case errors.Is(err, ErrAlreadyVoided), errors.Is(err, ErrVoidNotAllowed):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrNoValidItems),
		errors.Is(err, ErrVendorRequired),
		errors.Is(err, ErrReferenceRequired),
		errors.Is(err, ErrInvalidReference):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &returnErr):
		httpx.Problem(w, http.StatusBadRequest, "Return Quantity Exceeded", err.Error())
	default:
		h.logger.Error("inventory handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
