package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerGap is one approved vendor-affecting transaction without a matching
// ledger entry.
type LedgerGap struct {
	TransactionID int64
	InvoiceNo     string
	VendorID      int64
	TotalCost     float64
}

// Reconciler finds the gaps the approval flow tolerates: a ledger insert can
// fail after the vendor balance already moved, and that is logged rather than
// rolled back. This scan makes those gaps visible for manual reconciliation.
type Reconciler struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewReconciler constructs Reconciler.
func NewReconciler(pool *pgxpool.Pool, logger *slog.Logger) *Reconciler {
	return &Reconciler{pool: pool, logger: logger}
}

// Scan returns every approved purchase/purchase_return with a vendor but no
// ledger entry referencing it.
func (r *Reconciler) Scan(ctx context.Context) ([]LedgerGap, error) {
	rows, err := r.pool.Query(ctx, `SELECT t.id, t.invoice_no, t.vendor_id, t.total_cost
FROM inventory_transactions t
LEFT JOIN vendor_ledger_entries l ON l.reference_id = t.id
WHERE t.status = 'approved'
  AND t.type IN ('purchase', 'purchase_return')
  AND t.vendor_id IS NOT NULL
  AND l.id IS NULL
ORDER BY t.approved_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gaps []LedgerGap
	for rows.Next() {
		var gap LedgerGap
		if err := rows.Scan(&gap.TransactionID, &gap.InvoiceNo, &gap.VendorID, &gap.TotalCost); err != nil {
			return nil, err
		}
		gaps = append(gaps, gap)
	}
	return gaps, rows.Err()
}

// Handle runs the scan as an asynq task.
func (r *Reconciler) Handle(ctx context.Context, _ *asynq.Task) error {
	gaps, err := r.Scan(ctx)
	if err != nil {
		return err
	}
	for _, gap := range gaps {
		r.logger.Warn("ledger reconciliation gap",
			slog.Int64("transaction_id", gap.TransactionID),
			slog.String("invoice_no", gap.InvoiceNo),
			slog.Int64("vendor_id", gap.VendorID),
			slog.Float64("total_cost", gap.TotalCost))
	}
	r.logger.Info("ledger reconcile scan complete", slog.Int("gaps", len(gaps)))
	return nil
}
