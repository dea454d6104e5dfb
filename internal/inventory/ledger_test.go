package inventory

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	sql  string
	args []any
	rows int64
}

func (r *recordingExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = sql
	r.args = args
	if r.rows == 1 {
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	return pgconn.NewCommandTag("UPDATE 0"), nil
}

func TestStockLedgerApplyDelta(t *testing.T) {
	exec := &recordingExecer{rows: 1}
	ledger := NewPGStockLedger(exec)

	require.NoError(t, ledger.ApplyDelta(context.Background(), 101, -3))
	require.Contains(t, exec.sql, "stock_on_hand = stock_on_hand + $2")
	require.Equal(t, []any{int64(101), float64(-3)}, exec.args)
}

func TestStockLedgerApplyDeltaUnknownVariant(t *testing.T) {
	ledger := NewPGStockLedger(&recordingExecer{rows: 0})

	err := ledger.ApplyDelta(context.Background(), 999, 5)
	require.ErrorContains(t, err, "variant 999 not found")
}
