package approval

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saman-erp/saman-erp/internal/inventory"
	"github.com/saman-erp/saman-erp/internal/platform/db"
)

// Repository implements TransactionStore on PostgreSQL. Reads go through the
// inventory repository; the claim/release/reject writes carry their own SQL
// because they pair the status flip with stock mutation in one transaction.
type Repository struct {
	pool *pgxpool.Pool
	inv  *inventory.Repository
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, inv *inventory.Repository) *Repository {
	return &Repository{pool: pool, inv: inv}
}

// GetTransaction proxies to the inventory repository.
func (r *Repository) GetTransaction(ctx context.Context, id int64) (inventory.Transaction, error) {
	return r.inv.GetTransaction(ctx, id)
}

// ListPending returns pending transactions oldest first.
func (r *Repository) ListPending(ctx context.Context) ([]inventory.Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, type, status, invoice_no,
COALESCE(vendor_id, 0), COALESCE(reference_transaction_id, 0), total_cost, note, performed_by, created_at
FROM inventory_transactions
WHERE status = 'pending'
ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Transaction
	for rows.Next() {
		var t inventory.Transaction
		var txType, txStatus string
		if err := rows.Scan(&t.ID, &txType, &txStatus, &t.InvoiceNo,
			&t.VendorID, &t.ReferenceTransactionID, &t.TotalCost, &t.Note, &t.PerformedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = inventory.TransactionType(txType)
		t.Status = inventory.TransactionStatus(txStatus)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClaimPending flips pending to approved and applies the stock deltas of
// every item in the same commit.
func (r *Repository) ClaimPending(ctx context.Context, id, approverID int64, at time.Time) (inventory.Transaction, error) {
	var claimed inventory.Transaction
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		claimed = inventory.Transaction{}
		var txType string
		err := tx.QueryRow(ctx, `UPDATE inventory_transactions
SET status = 'approved', approved_by = $2, approved_at = $3
WHERE id = $1 AND status = 'pending'
RETURNING id, type, invoice_no, COALESCE(vendor_id, 0), COALESCE(reference_transaction_id, 0), total_cost, note, performed_by, created_at`,
			id, approverID, at).
			Scan(&claimed.ID, &txType, &claimed.InvoiceNo, &claimed.VendorID,
				&claimed.ReferenceTransactionID, &claimed.TotalCost, &claimed.Note, &claimed.PerformedBy, &claimed.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.notPendingError(ctx, id)
			}
			return err
		}
		claimed.Type = inventory.TransactionType(txType)
		claimed.Status = inventory.StatusApproved
		claimed.ApprovedBy = approverID
		claimed.ApprovedAt = at

		items, err := r.applyItemDeltas(ctx, tx, id, 1)
		if err != nil {
			return err
		}
		claimed.Items = items
		return nil
	})
	if err != nil {
		return inventory.Transaction{}, err
	}
	return claimed, nil
}

// ReleaseClaim reverts an approval whose vendor-side effects failed: the
// transaction returns to pending and its stock deltas are backed out.
func (r *Repository) ReleaseClaim(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE inventory_transactions
SET status = 'pending', approved_by = NULL, approved_at = NULL
WHERE id = $1 AND status = 'approved'`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotPending
		}
		_, err = r.applyItemDeltas(ctx, tx, id, -1)
		return err
	})
}

// MarkRejected resolves a pending transaction as rejected.
func (r *Repository) MarkRejected(ctx context.Context, id int64, reason string, rejectorID int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE inventory_transactions
SET status = 'rejected', rejected_by = $2, rejected_at = $3, rejection_reason = $4
WHERE id = $1 AND status = 'pending'`, id, rejectorID, at, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.notPendingError(ctx, id)
	}
	return nil
}

// Stats aggregates counts by status since the cutoff.
func (r *Repository) Stats(ctx context.Context, since time.Time, userID int64) (Stats, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*)
FROM inventory_transactions
WHERE created_at >= $1 AND ($2::bigint = 0 OR performed_by = $2)
GROUP BY status`, since, userID)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		switch inventory.TransactionStatus(status) {
		case inventory.StatusPending:
			stats.Pending = count
		case inventory.StatusApproved:
			stats.Approved = count
		case inventory.StatusRejected:
			stats.Rejected = count
		case inventory.StatusVoided:
			stats.Voided = count
		}
		stats.Total += count
	}
	return stats, rows.Err()
}

func (r *Repository) applyItemDeltas(ctx context.Context, tx pgx.Tx, transactionID int64, sign float64) ([]inventory.TransactionItem, error) {
	rows, err := tx.Query(ctx, `SELECT id, transaction_id, variant_id, quantity, unit_cost, source_type
FROM inventory_transaction_items WHERE transaction_id = $1 ORDER BY id ASC`, transactionID)
	if err != nil {
		return nil, err
	}
	var items []inventory.TransactionItem
	for rows.Next() {
		var item inventory.TransactionItem
		var source string
		if err := rows.Scan(&item.ID, &item.TransactionID, &item.VariantID, &item.Quantity, &item.UnitCost, &source); err != nil {
			rows.Close()
			return nil, err
		}
		item.Source = inventory.SourceType(source)
		items = append(items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ledger := inventory.NewPGStockLedger(tx)
	for _, item := range items {
		if err := ledger.ApplyDelta(ctx, item.VariantID, sign*item.Quantity); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (r *Repository) notPendingError(ctx context.Context, id int64) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT true FROM inventory_transactions WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrNotPending
}
