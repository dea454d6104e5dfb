package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saman-erp/saman-erp/internal/shared"
	"github.com/saman-erp/saman-erp/internal/status"
)

// StockLedger adjusts a variant's on-hand count by a signed quantity.
type StockLedger interface {
	ApplyStockDelta(ctx context.Context, variantID int64, qty float64) error
}

// TxRepository exposes the transactional operations the engine needs. The
// status write and any stock restoration commit together. UpdateStatus is
// conditional on the expected current status; ClaimStockReversal reports
// whether this caller won the stock_reversed flip.
type TxRepository interface {
	StockLedger
	InsertOrder(ctx context.Context, order Order) (int64, error)
	InsertItems(ctx context.Context, orderID int64, items []OrderItem) error
	UpdateStatus(ctx context.Context, id int64, target, expected status.Status, at time.Time) error
	ClaimStockReversal(ctx context.Context, id int64) (bool, error)
}

// RepositoryPort abstracts order persistence for the engine.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter Filter) ([]Order, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts stock reversals.
type MetricsPort interface {
	StockReversed()
}

// Filter narrows order listings.
type Filter struct {
	Statuses        []status.Status
	FulfillmentType status.FulfillmentType
	Search          string
	Limit           int
	Offset          int
}

// CreateInput is the order-entry payload.
type CreateInput struct {
	Code            string
	CustomerName    string
	CustomerPhone   string
	FulfillmentType status.FulfillmentType
	Location        string
	PaymentMethod   string
	Items           []OrderItem
}

// Engine validates and applies order status transitions.
type Engine struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
	logger  *slog.Logger
}

// NewEngine builds Engine.
func NewEngine(repo RepositoryPort, audit AuditPort, metrics MetricsPort, logger *slog.Logger) *Engine {
	return &Engine{repo: repo, audit: audit, metrics: metrics, logger: logger}
}

// Create registers a new order in intake.
func (e *Engine) Create(ctx context.Context, input CreateInput, actor shared.Actor) (Order, error) {
	if input.FulfillmentType != status.FulfillmentInsideValley &&
		input.FulfillmentType != status.FulfillmentOutsideValley &&
		input.FulfillmentType != status.FulfillmentStore {
		return Order{}, fmt.Errorf("orders: unknown fulfillment type %q", input.FulfillmentType)
	}

	code := input.Code
	if code == "" {
		code = "ORD-" + strings.ToUpper(uuid.NewString()[:8])
	}

	order := Order{
		Code:            code,
		CustomerName:    input.CustomerName,
		CustomerPhone:   input.CustomerPhone,
		Status:          status.StatusIntake,
		FulfillmentType: input.FulfillmentType,
		Location:        input.Location,
		PaymentMethod:   input.PaymentMethod,
	}
	for _, item := range input.Items {
		if item.VariantID == 0 || item.Quantity <= 0 {
			continue
		}
		order.TotalAmount += item.Quantity * item.UnitPrice
		order.Items = append(order.Items, item)
	}

	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		for i := range order.Items {
			order.Items[i].OrderID = id
		}
		return tx.InsertItems(ctx, id, order.Items)
	})
	if err != nil {
		return Order{}, err
	}

	e.recordAudit(ctx, actor.ID, "orders:create", order.ID, map[string]any{"code": order.Code})
	return e.repo.GetOrder(ctx, order.ID)
}

// Transition moves an order to the requested status. The target is
// normalized first, so callers can pass frontend and legacy spellings.
func (e *Engine) Transition(ctx context.Context, orderID int64, rawTarget string, actor shared.Actor) (Order, error) {
	target, ok := status.Normalize(rawTarget)
	if !ok {
		return Order{}, invalidStatusError(rawTarget)
	}
	order, err := e.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	return e.apply(ctx, order, target, actor)
}

// ApplyCourierStatus maps a delivery partner's status code and runs the
// resulting transition. Unmapped codes are logged and skipped so unfamiliar
// partner vocabulary never corrupts order state.
func (e *Engine) ApplyCourierStatus(ctx context.Context, orderID int64, courier Courier, code string, actor shared.Actor) (Order, error) {
	target, ok := MapCourierStatus(courier, code)
	if !ok {
		e.logger.Warn("unmapped courier status",
			slog.String("courier", string(courier)),
			slog.String("code", code),
			slog.Int64("order_id", orderID))
		return Order{}, fmt.Errorf("%w: %s %q", ErrUnknownCourierStatus, courier, code)
	}
	order, err := e.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	return e.apply(ctx, order, target, actor)
}

// VerifyRTO is the explicit warehouse action that completes the RTO flow.
// Only this transition, never the courier's return signal, restores stock.
func (e *Engine) VerifyRTO(ctx context.Context, orderID int64, actor shared.Actor) (Order, error) {
	order, err := e.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status.IsTerminal() {
		return Order{}, terminalStateError(order.Status)
	}
	if order.Status != status.StatusRTOVerificationPending {
		return Order{}, fmt.Errorf("%w: current status %s", ErrNotAwaitingVerification, order.Status)
	}
	return e.apply(ctx, order, status.StatusReturned, actor)
}

// MarkLost records a disputed shipment. Lost orders keep their stock
// committed until the dispute resolves out of band.
func (e *Engine) MarkLost(ctx context.Context, orderID int64, actor shared.Actor) (Order, error) {
	order, err := e.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	return e.apply(ctx, order, status.StatusLostInTransit, actor)
}

// Get returns one order with items.
func (e *Engine) Get(ctx context.Context, id int64) (Order, error) {
	return e.repo.GetOrder(ctx, id)
}

// List returns orders matching the filter.
func (e *Engine) List(ctx context.Context, filter Filter) ([]Order, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return e.repo.ListOrders(ctx, filter)
}

func (e *Engine) apply(ctx context.Context, order Order, target status.Status, actor shared.Actor) (Order, error) {
	if order.Status.IsTerminal() {
		return Order{}, terminalStateError(order.Status)
	}
	if !status.ValidForFulfillment(target, order.FulfillmentType) {
		return Order{}, fulfillmentMismatchError(target, order.FulfillmentType)
	}

	eligible := status.StockRestoring[target] &&
		status.StockCommitting[order.Status] &&
		!order.StockReversed

	// Both guards re-check inside the transaction: the status write only
	// lands while the row still holds the snapshot's status, and the deltas
	// only run for the caller that wins the stock_reversed flip. A raced
	// transition or a retried commit cannot restore stock twice.
	restored := false
	now := time.Now().UTC()
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		restored = false
		if err := tx.UpdateStatus(ctx, order.ID, target, order.Status, now); err != nil {
			return err
		}
		if !eligible {
			return nil
		}
		claimed, err := tx.ClaimStockReversal(ctx, order.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
		for _, item := range order.Items {
			if err := tx.ApplyStockDelta(ctx, item.VariantID, item.Quantity); err != nil {
				return err
			}
		}
		restored = true
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if restored && e.metrics != nil {
		e.metrics.StockReversed()
	}

	e.recordAudit(ctx, actor.ID, "orders:transition", order.ID, map[string]any{
		"from":           string(order.Status),
		"to":             string(target),
		"stock_restored": restored,
	})
	return e.repo.GetOrder(ctx, order.ID)
}

func (e *Engine) recordAudit(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "order",
		EntityID: fmt.Sprintf("%d", orderID),
		Meta:     meta,
	}); err != nil {
		e.logger.Warn("record audit", slog.Any("error", err))
	}
}
