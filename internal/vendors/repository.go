package vendors

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saman-erp/saman-erp/internal/platform/db"
)

// Repository persists vendor data in PostgreSQL.
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

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (t *txRepo) GetVendorForUpdate(ctx context.Context, id int64) (Vendor, error) {
	var v Vendor
	err := t.tx.QueryRow(ctx, `SELECT id, name, phone, balance, total_purchases, total_payments, created_at, updated_at
FROM vendors WHERE id = $1 FOR UPDATE`, id).
		Scan(&v.ID, &v.Name, &v.Phone, &v.Balance, &v.TotalPurchases, &v.TotalPayments, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vendor{}, ErrVendorNotFound
		}
		return Vendor{}, err
	}
	return v, nil
}

func (t *txRepo) UpdateVendorBalance(ctx context.Context, id int64, balance, totalPurchases, totalPayments float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE vendors SET balance = $2, total_purchases = $3, total_payments = $4, updated_at = NOW()
WHERE id = $1`, id, balance, totalPurchases, totalPayments)
	return err
}

// GetVendor returns a vendor by id.
func (r *Repository) GetVendor(ctx context.Context, id int64) (Vendor, error) {
	var v Vendor
	err := r.pool.QueryRow(ctx, `SELECT id, name, phone, balance, total_purchases, total_payments, created_at, updated_at
FROM vendors WHERE id = $1`, id).
		Scan(&v.ID, &v.Name, &v.Phone, &v.Balance, &v.TotalPurchases, &v.TotalPayments, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vendor{}, ErrVendorNotFound
		}
		return Vendor{}, err
	}
	return v, nil
}

// ListVendors returns vendors, optionally filtered by a name search.
func (r *Repository) ListVendors(ctx context.Context, search string, limit, offset int) ([]Vendor, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, phone, balance, total_purchases, total_payments, created_at, updated_at
FROM vendors
WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
ORDER BY name ASC
LIMIT $2 OFFSET $3`, search, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Vendor
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.Phone, &v.Balance, &v.TotalPurchases, &v.TotalPayments, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// InsertLedgerEntry appends a ledger row. Ledger rows are never updated or
// deleted afterwards.
func (r *Repository) InsertLedgerEntry(ctx context.Context, entry LedgerEntry) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO vendor_ledger_entries
(vendor_id, entry_type, debit, credit, running_balance, reference_id, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
RETURNING id`,
		entry.VendorID, string(entry.EntryType), entry.Debit, entry.Credit, entry.RunningBalance, entry.ReferenceID, entry.Note).
		Scan(&id)
	return id, err
}

// ListLedger returns ledger entries for a vendor within the window, oldest first.
func (r *Repository) ListLedger(ctx context.Context, vendorID int64, from, to time.Time) ([]LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, vendor_id, entry_type, debit, credit, running_balance, reference_id, note, created_at
FROM vendor_ledger_entries
WHERE vendor_id = $1
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at <= $3)
ORDER BY created_at ASC, id ASC`, vendorID, nullableTime(from), nullableTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var entryType string
		if err := rows.Scan(&e.ID, &e.VendorID, &entryType, &e.Debit, &e.Credit, &e.RunningBalance, &e.ReferenceID, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EntryType = LedgerEntryType(entryType)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
