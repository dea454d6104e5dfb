package vendors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/saman-erp/saman-erp/internal/platform/httpx"
	"github.com/saman-erp/saman-erp/internal/shared"
)

// Handler wires HTTP endpoints for vendor balances and ledgers.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the vendor handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers vendor routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/vendors", h.listVendors)
	r.Get("/vendors/{id}", h.getVendor)
	r.Get("/vendors/{id}/ledger", h.listLedger)
	r.Get("/vendors/{id}/statement.csv", h.exportStatement)
}

func (h *Handler) listVendors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.ParsePagination(q)
	list, err := h.service.List(r.Context(), q.Get("q"), page)
	if err != nil {
		h.logger.Error("list vendors", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vendors": list, "page": page.Page, "per_page": page.PerPage})
}

func (h *Handler) getVendor(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid vendor id")
		return
	}
	vendor, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrVendorNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("get vendor", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

func (h *Handler) listLedger(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid vendor id")
		return
	}
	from, to, perr := parseWindow(r)
	if perr != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", perr.Error())
		return
	}
	entries, err := h.service.Ledger(r.Context(), id, from, to)
	if err != nil {
		h.logger.Error("list vendor ledger", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) exportStatement(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid vendor id")
		return
	}
	vendor, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrVendorNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	from, to, perr := parseWindow(r)
	if perr != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", perr.Error())
		return
	}
	entries, err := h.service.Ledger(r.Context(), id, from, to)
	if err != nil {
		h.logger.Error("export vendor statement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=vendor-%d-statement.csv", id))
	if err := WriteStatementCSV(w, vendor, entries); err != nil {
		h.logger.Error("write vendor statement", slog.Any("error", err))
	}
}

func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse("2006-01-02", raw); err != nil {
			return from, to, errors.New("invalid from date")
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse("2006-01-02", raw); err != nil {
			return from, to, errors.New("invalid to date")
		}
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	return from, to, nil
}
