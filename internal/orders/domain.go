// Package orders drives the order fulfillment state machine: it validates
// status transitions, maps courier vocabularies onto the canonical status
// set, and restores committed stock when an order comes back.
package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/saman-erp/saman-erp/internal/status"
)

// Order is a merchandise order moving through fulfillment.
type Order struct {
	ID              int64                  `json:"id"`
	Code            string                 `json:"code"`
	CustomerName    string                 `json:"customer_name"`
	CustomerPhone   string                 `json:"customer_phone"`
	Status          status.Status          `json:"status"`
	FulfillmentType status.FulfillmentType `json:"fulfillment_type"`
	Location        string                 `json:"location"`
	PaymentMethod   string                 `json:"payment_method"`
	PaymentStatus   string                 `json:"payment_status"`
	TotalAmount     float64                `json:"total_amount"`
	StockReversed   bool                   `json:"stock_reversed"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	Items           []OrderItem            `json:"items,omitempty"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID        int64   `json:"id"`
	OrderID   int64   `json:"order_id"`
	VariantID int64   `json:"variant_id"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

var (
	// ErrNotFound indicates an unknown order id.
	ErrNotFound = errors.New("orders: order not found")
	// ErrInvalidStatus indicates an unrecognized target status string.
	ErrInvalidStatus = errors.New("orders: invalid status")
	// ErrTerminalState indicates a transition out of a terminal status.
	ErrTerminalState = errors.New("orders: order is in a terminal status")
	// ErrFulfillmentMismatch indicates a status the order's fulfillment
	// type cannot reach.
	ErrFulfillmentMismatch = errors.New("orders: status not valid for fulfillment type")
	// ErrNotAwaitingVerification indicates an RTO verification on an order
	// that is not in the holding state.
	ErrNotAwaitingVerification = errors.New("orders: order is not awaiting RTO verification")
	// ErrUnknownCourierStatus indicates a courier code missing from the
	// vocabulary table; the transition is skipped, never guessed.
	ErrUnknownCourierStatus = errors.New("orders: unknown courier status")
	// ErrStatusChanged indicates the order moved between the caller's read
	// and the status write; the caller must re-read and retry.
	ErrStatusChanged = errors.New("orders: status changed concurrently")
)

func invalidStatusError(raw string) error {
	return fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

func terminalStateError(current status.Status) error {
	return fmt.Errorf("%w: %s", ErrTerminalState, current)
}

func fulfillmentMismatchError(target status.Status, ft status.FulfillmentType) error {
	return fmt.Errorf("%w: %s for %s", ErrFulfillmentMismatch, target, ft)
}
