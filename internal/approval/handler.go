package approval

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/saman-erp/saman-erp/internal/inventory"
	"github.com/saman-erp/saman-erp/internal/platform/httpx"
	"github.com/saman-erp/saman-erp/internal/shared"
)

// Handler exposes the approval queue over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	stat     singleflight.Group
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers approval routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/approvals/pending", h.listPending)
	r.Get("/approvals/stats", h.stats)
	r.Post("/approvals/{id}/approve", h.approve)
	r.Post("/approvals/{id}/reject", h.reject)
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.ListPending(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"pending": pending})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if !actor.Privileged() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "only admin or manager can approve transactions")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transaction id")
		return
	}
	approved, err := h.service.Approve(r.Context(), id, actor.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, approved)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if !actor.Privileged() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "only admin or manager can reject transactions")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transaction id")
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "reason is required")
		return
	}
	rejected, err := h.service.Reject(r.Context(), id, req.Reason, actor.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rejected)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sinceDays := 0
	if raw := q.Get("since_days"); raw != "" {
		sinceDays, _ = strconv.Atoi(raw)
	}
	var userID int64
	if raw := q.Get("user_id"); raw != "" {
		userID, _ = strconv.ParseInt(raw, 10, 64)
	}
	// Dashboards poll this endpoint; concurrent identical queries collapse
	// into a single store round trip.
	key := fmt.Sprintf("%d:%d", sinceDays, userID)
	result, err, _ := h.stat.Do(key, func() (any, error) {
		return h.service.Stats(r.Context(), sinceDays, userID)
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, inventory.ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrNotPending):
		httpx.Problem(w, http.StatusConflict, "Not Pending", err.Error())
	case errors.Is(err, ErrReasonRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrVendorBalanceUpdateFailed):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Vendor Balance Update Failed", err.Error())
	default:
		h.logger.Error("approval handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
