package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saman-erp/saman-erp/internal/inventory"
	"github.com/saman-erp/saman-erp/internal/platform/db"
	"github.com/saman-erp/saman-erp/internal/status"
)

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (t *txRepo) InsertOrder(ctx context.Context, order Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO orders
(code, customer_name, customer_phone, status, fulfillment_type, location,
 payment_method, payment_status, total_amount, stock_reversed, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, NOW(), NOW())
RETURNING id`,
		order.Code, order.CustomerName, order.CustomerPhone,
		string(order.Status), string(order.FulfillmentType), order.Location,
		order.PaymentMethod, order.PaymentStatus, order.TotalAmount).
		Scan(&id)
	return id, err
}

func (t *txRepo) InsertItems(ctx context.Context, orderID int64, items []OrderItem) error {
	for _, item := range items {
		_, err := t.tx.Exec(ctx, `INSERT INTO order_items (order_id, variant_id, quantity, unit_price)
VALUES ($1, $2, $3, $4)`,
			orderID, item.VariantID, item.Quantity, item.UnitPrice)
		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateStatus writes the target status only while the row still holds the
// status the caller read. A raced transition surfaces as ErrStatusChanged.
func (t *txRepo) UpdateStatus(ctx context.Context, id int64, target, expected status.Status, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
		id, string(target), at, string(expected))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStatusChanged
	}
	return nil
}

// ClaimStockReversal flips stock_reversed and reports whether this caller won
// the flip. A false return means the reversal already happened.
func (t *txRepo) ClaimStockReversal(ctx context.Context, id int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE orders SET stock_reversed = TRUE WHERE id = $1 AND stock_reversed = FALSE`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) ApplyStockDelta(ctx context.Context, variantID int64, qty float64) error {
	return inventory.NewPGStockLedger(t.tx).ApplyDelta(ctx, variantID, qty)
}

const orderColumns = `id, code, customer_name, customer_phone, status, fulfillment_type,
location, payment_method, payment_status, total_amount, stock_reversed, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var st, ft string
	err := row.Scan(&o.ID, &o.Code, &o.CustomerName, &o.CustomerPhone, &st, &ft,
		&o.Location, &o.PaymentMethod, &o.PaymentStatus, &o.TotalAmount,
		&o.StockReversed, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	o.Status = status.Status(st)
	o.FulfillmentType = status.FulfillmentType(ft)
	return o, nil
}

// GetOrder loads one order with its items.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, order_id, variant_id, quantity, unit_price
FROM order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.VariantID, &item.Quantity, &item.UnitPrice); err != nil {
			return Order{}, err
		}
		order.Items = append(order.Items, item)
	}
	return order, rows.Err()
}

// ListOrders returns order headers matching the filter, newest first.
func (r *Repository) ListOrders(ctx context.Context, filter Filter) ([]Order, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + orderColumns + ` FROM orders WHERE 1=1`)
	args := []any{}

	if len(filter.Statuses) > 0 {
		values := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			values[i] = string(s)
		}
		args = append(args, values)
		fmt.Fprintf(&sb, " AND status = ANY($%d)", len(args))
	}
	if filter.FulfillmentType != "" {
		args = append(args, string(filter.FulfillmentType))
		fmt.Fprintf(&sb, " AND fulfillment_type = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		fmt.Fprintf(&sb, " AND (code ILIKE $%d OR customer_name ILIKE $%d OR customer_phone ILIKE $%d)",
			len(args), len(args), len(args))
	}
	args = append(args, filter.Limit, filter.Offset)
	fmt.Fprintf(&sb, " ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, rows.Err()
}
