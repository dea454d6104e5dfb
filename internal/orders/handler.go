package orders

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/saman-erp/saman-erp/internal/platform/httpx"
	"github.com/saman-erp/saman-erp/internal/shared"
	"github.com/saman-erp/saman-erp/internal/status"
)

// Handler wires HTTP endpoints for order fulfillment.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	validate *validator.Validate
}

// NewHandler constructs the orders handler.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine, validate: validator.New()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.listOrders)
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/status", h.transition)
	r.Post("/orders/{id}/courier-status", h.courierStatus)
	r.Post("/orders/{id}/verify-rto", h.verifyRTO)
	r.Post("/orders/{id}/mark-lost", h.markLost)
}

type orderItemRequest struct {
	VariantID int64   `json:"variant_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

type createOrderRequest struct {
	Code            string             `json:"code" validate:"required"`
	CustomerName    string             `json:"customer_name" validate:"required"`
	CustomerPhone   string             `json:"customer_phone"`
	FulfillmentType string             `json:"fulfillment_type" validate:"required,oneof=inside_valley outside_valley store"`
	Location        string             `json:"location"`
	PaymentMethod   string             `json:"payment_method"`
	Items           []orderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

type courierStatusRequest struct {
	Courier string `json:"courier" validate:"required,oneof=ncm gaau_besi"`
	Code    string `json:"code" validate:"required"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := CreateInput{
		Code:            req.Code,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		FulfillmentType: status.FulfillmentType(req.FulfillmentType),
		Location:        req.Location,
		PaymentMethod:   req.PaymentMethod,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, OrderItem{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	created, err := h.engine.Create(r.Context(), input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	order, err := h.engine.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.ParsePagination(q)
	filter := Filter{
		Statuses:        status.NormalizeMany(q.Get("status")),
		FulfillmentType: status.FulfillmentType(q.Get("fulfillment_type")),
		Search:          q.Get("q"),
		Limit:           page.Limit(),
		Offset:          page.Offset(),
	}

	list, err := h.engine.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": list, "page": page.Page, "per_page": page.PerPage})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	order, err := h.engine.Transition(r.Context(), id, req.Status, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) courierStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	var req courierStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	order, err := h.engine.ApplyCourierStatus(r.Context(), id, Courier(req.Courier), req.Code, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) verifyRTO(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	order, err := h.engine.VerifyRTO(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) markLost(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if !actor.Privileged() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "only admin or manager can mark an order lost")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	order, err := h.engine.MarkLost(r.Context(), id, actor)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrUnknownCourierStatus):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Status", err.Error())
	case errors.Is(err, ErrTerminalState):
		httpx.Problem(w, http.StatusConflict, "Terminal State", err.Error())
	case errors.Is(err, ErrFulfillmentMismatch):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Fulfillment Mismatch", err.Error())
	case errors.Is(err, ErrNotAwaitingVerification):
		httpx.Problem(w, http.StatusConflict, "Not Awaiting Verification", err.Error())
	case errors.Is(err, ErrStatusChanged):
		httpx.Problem(w, http.StatusConflict, "Status Changed", err.Error())
	default:
		h.logger.Error("orders handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
