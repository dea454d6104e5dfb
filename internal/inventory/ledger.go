package inventory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// StockLedger applies signed quantity deltas to a variant's on-hand count.
// The production implementation writes the variant row directly; tests use an
// in-memory fake so the stock contract stays observable without a database.
type StockLedger interface {
	ApplyDelta(ctx context.Context, variantID int64, qty float64) error
}

// stockExecer is satisfied by pgxpool.Pool and pgx.Tx, so the ledger can run
// standalone or inside a repository's transaction.
type stockExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGStockLedger mutates product_variants.stock_on_hand. It owns the stock
// SQL for every repository: approvals, voids and order reversals all route
// their deltas through it.
type PGStockLedger struct {
	db stockExecer
}

var _ StockLedger = (*PGStockLedger)(nil)

// NewPGStockLedger constructs PGStockLedger over the given executor.
func NewPGStockLedger(db stockExecer) *PGStockLedger {
	return &PGStockLedger{db: db}
}

// ApplyDelta adjusts the variant's on-hand count by qty. The check constraint
// on stock_on_hand keeps the count from going negative.
func (l *PGStockLedger) ApplyDelta(ctx context.Context, variantID int64, qty float64) error {
	tag, err := l.db.Exec(ctx, `UPDATE product_variants SET stock_on_hand = stock_on_hand + $2, updated_at = NOW()
WHERE id = $1`, variantID, qty)
	if err != nil {
		return fmt.Errorf("inventory: apply stock delta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory: variant %d not found", variantID)
	}
	return nil
}
