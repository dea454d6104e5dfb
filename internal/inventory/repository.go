package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saman-erp/saman-erp/internal/platform/db"
)

// Repository persists inventory transactions in PostgreSQL.
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

var invoicePrefixes = map[TransactionType]string{
	TransactionPurchase:       "PUR",
	TransactionPurchaseReturn: "PRT",
	TransactionDamage:         "DMG",
	TransactionAdjustment:     "ADJ",
}

// NextInvoiceNumber advances the type-scoped sequence. Numbers are handed out
// inside the creating transaction but the sequence row itself serializes on
// the type key, so a number is never reused.
func (t *txRepo) NextInvoiceNumber(ctx context.Context, txType TransactionType) (string, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `INSERT INTO invoice_sequences (transaction_type, next_value)
VALUES ($1, 1)
ON CONFLICT (transaction_type) DO UPDATE SET next_value = invoice_sequences.next_value + 1
RETURNING next_value`, string(txType)).Scan(&n)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%06d", invoicePrefixes[txType], n), nil
}

func (t *txRepo) InsertTransaction(ctx context.Context, header Transaction) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO inventory_transactions
(type, status, invoice_no, vendor_id, reference_transaction_id, total_cost, note, performed_by, created_at)
VALUES ($1, $2, $3, NULLIF($4, 0), NULLIF($5, 0), $6, $7, $8, NOW())
RETURNING id`,
		string(header.Type), string(header.Status), header.InvoiceNo,
		header.VendorID, header.ReferenceTransactionID, header.TotalCost, header.Note, header.PerformedBy).
		Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateInvoice
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) InsertItems(ctx context.Context, txID int64, items []TransactionItem) error {
	for _, item := range items {
		_, err := t.tx.Exec(ctx, `INSERT INTO inventory_transaction_items
(transaction_id, variant_id, quantity, unit_cost, source_type)
VALUES ($1, $2, $3, $4, $5)`,
			txID, item.VariantID, item.Quantity, item.UnitCost, string(item.Source))
		if err != nil {
			return err
		}
	}
	return nil
}

// ClaimVoid flips a pending or approved transaction to voided, returning the
// prior status so the caller knows whether stock must be reversed.
func (t *txRepo) ClaimVoid(ctx context.Context, id int64, reason string, actorID int64, at time.Time) (TransactionStatus, error) {
	var prior string
	err := t.tx.QueryRow(ctx, `UPDATE inventory_transactions tx
SET status = 'voided', voided_by = $2, voided_at = $3, void_reason = $4
FROM (SELECT id, status FROM inventory_transactions WHERE id = $1 FOR UPDATE) prior
WHERE tx.id = prior.id AND prior.status IN ('pending', 'approved')
RETURNING prior.status`, id, actorID, at, reason).Scan(&prior)
	if err == nil {
		return TransactionStatus(prior), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	var current string
	err = t.tx.QueryRow(ctx, `SELECT status FROM inventory_transactions WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if TransactionStatus(current) == StatusVoided {
		return "", ErrAlreadyVoided
	}
	return "", ErrVoidNotAllowed
}

func (t *txRepo) ApplyStockDelta(ctx context.Context, variantID int64, qty float64) error {
	return NewPGStockLedger(t.tx).ApplyDelta(ctx, variantID, qty)
}

const transactionColumns = `id, type, status, invoice_no,
COALESCE(vendor_id, 0), COALESCE(reference_transaction_id, 0), total_cost, note, performed_by,
COALESCE(approved_by, 0), approved_at, COALESCE(rejected_by, 0), rejected_at, COALESCE(rejection_reason, ''),
COALESCE(voided_by, 0), voided_at, COALESCE(void_reason, ''), created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var txType, txStatus string
	var approvedAt, rejectedAt, voidedAt *time.Time
	err := row.Scan(&t.ID, &txType, &txStatus, &t.InvoiceNo,
		&t.VendorID, &t.ReferenceTransactionID, &t.TotalCost, &t.Note, &t.PerformedBy,
		&t.ApprovedBy, &approvedAt, &t.RejectedBy, &rejectedAt, &t.RejectionReason,
		&t.VoidedBy, &voidedAt, &t.VoidReason, &t.CreatedAt)
	if err != nil {
		return Transaction{}, err
	}
	t.Type = TransactionType(txType)
	t.Status = TransactionStatus(txStatus)
	if approvedAt != nil {
		t.ApprovedAt = *approvedAt
	}
	if rejectedAt != nil {
		t.RejectedAt = *rejectedAt
	}
	if voidedAt != nil {
		t.VoidedAt = *voidedAt
	}
	return t, nil
}

// GetTransaction returns the header and items.
func (r *Repository) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM inventory_transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, transaction_id, variant_id, quantity, unit_cost, source_type
FROM inventory_transaction_items WHERE transaction_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return Transaction{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item TransactionItem
		var source string
		if err := rows.Scan(&item.ID, &item.TransactionID, &item.VariantID, &item.Quantity, &item.UnitCost, &source); err != nil {
			return Transaction{}, err
		}
		item.Source = SourceType(source)
		t.Items = append(t.Items, item)
	}
	return t, rows.Err()
}

// ListTransactions returns headers matching the filter, newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter Filter) ([]Transaction, error) {
	if filter.Search != "" {
		return r.listWithSearch(ctx, filter)
	}
	var sb strings.Builder
	sb.WriteString(`SELECT ` + transactionColumns + ` FROM inventory_transactions WHERE 1=1`)
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		fmt.Fprintf(&sb, clause, len(args))
	}
	if filter.Type != "" {
		add(" AND type = $%d", string(filter.Type))
	}
	if filter.Status != "" {
		add(" AND status = $%d", string(filter.Status))
	}
	if filter.VendorID != 0 {
		add(" AND vendor_id = $%d", filter.VendorID)
	}
	if !filter.From.IsZero() {
		add(" AND created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add(" AND created_at <= $%d", filter.To)
	}
	fmt.Fprintf(&sb, " ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) listWithSearch(ctx context.Context, filter Filter) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM inventory_transactions
WHERE (invoice_no ILIKE '%' || $1 || '%' OR note ILIKE '%' || $1 || '%')
  AND ($2 = '' OR type = $2)
  AND ($3 = '' OR status = $3)
  AND ($4::bigint = 0 OR vendor_id = $4)
  AND ($5::timestamptz IS NULL OR created_at >= $5)
  AND ($6::timestamptz IS NULL OR created_at <= $6)
ORDER BY created_at DESC, id DESC
LIMIT $7 OFFSET $8`
	var from, to *time.Time
	if !filter.From.IsZero() {
		from = &filter.From
	}
	if !filter.To.IsZero() {
		to = &filter.To
	}
	rows, err := r.pool.Query(ctx, query, filter.Search, string(filter.Type), string(filter.Status), filter.VendorID, from, to, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetReturnableQuantities computes, per variant, how much of the referenced
// purchase remains returnable: purchased minus everything already requested
// or approved on returns pointing at it.
func (r *Repository) GetReturnableQuantities(ctx context.Context, referenceID int64) (map[int64]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.variant_id,
       SUM(i.quantity) - COALESCE(MAX(returned.qty), 0)
FROM inventory_transaction_items i
LEFT JOIN (
    SELECT ri.variant_id, SUM(ABS(ri.quantity)) AS qty
    FROM inventory_transactions rt
    JOIN inventory_transaction_items ri ON ri.transaction_id = rt.id
    WHERE rt.reference_transaction_id = $1
      AND rt.type = 'purchase_return'
      AND rt.status IN ('pending', 'approved')
    GROUP BY ri.variant_id
) returned ON returned.variant_id = i.variant_id
WHERE i.transaction_id = $1
GROUP BY i.variant_id`, referenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]float64)
	for rows.Next() {
		var variantID int64
		var remaining float64
		if err := rows.Scan(&variantID, &remaining); err != nil {
			return nil, err
		}
		out[variantID] = remaining
	}
	return out, rows.Err()
}
