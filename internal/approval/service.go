// Package approval implements the maker-checker workflow over inventory
// transactions: pending transactions are approved or rejected by a
// privileged checker, and approval drives the vendor balance and ledger
// side effects.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/saman-erp/saman-erp/internal/inventory"
	"github.com/saman-erp/saman-erp/internal/shared"
	"github.com/saman-erp/saman-erp/internal/vendors"
)

var (
	// ErrNotPending indicates an approve/reject on a non-pending transaction.
	ErrNotPending = errors.New("approval: transaction is not pending")
	// ErrReasonRequired indicates a reject without a reason.
	ErrReasonRequired = errors.New("approval: rejection reason required")
	// ErrVendorBalanceUpdateFailed indicates the atomic balance update could
	// not be applied; the transaction stays pending.
	ErrVendorBalanceUpdateFailed = errors.New("approval: vendor balance update failed")
)

// Stats aggregates transaction counts over a sliding window.
type Stats struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
	Voided   int64 `json:"voided"`
	Total    int64 `json:"total"`
}

// TransactionStore is the persistence surface the workflow needs. Claiming a
// pending transaction flips it to approved and applies its stock deltas in
// one commit; releasing undoes both when a later step fails.
type TransactionStore interface {
	GetTransaction(ctx context.Context, id int64) (inventory.Transaction, error)
	ListPending(ctx context.Context) ([]inventory.Transaction, error)
	ClaimPending(ctx context.Context, id, approverID int64, at time.Time) (inventory.Transaction, error)
	ReleaseClaim(ctx context.Context, id int64) error
	MarkRejected(ctx context.Context, id int64, reason string, rejectorID int64, at time.Time) error
	Stats(ctx context.Context, since time.Time, userID int64) (Stats, error)
}

// BalancePort exposes the vendor-side operations approval depends on.
type BalancePort interface {
	UpdateBalance(ctx context.Context, vendorID int64, amount float64, kind vendors.BalanceUpdateKind) (vendors.BalanceUpdateResult, error)
	RecordLedgerEntry(ctx context.Context, entry vendors.LedgerEntry) (int64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts approval outcomes.
type MetricsPort interface {
	ApprovalResolved(outcome string)
}

// Service is the approval workflow.
type Service struct {
	store    TransactionStore
	balances BalancePort
	audit    AuditPort
	metrics  MetricsPort
	logger   *slog.Logger
}

// NewService constructs Service.
func NewService(store TransactionStore, balances BalancePort, audit AuditPort, metrics MetricsPort, logger *slog.Logger) *Service {
	return &Service{store: store, balances: balances, audit: audit, metrics: metrics, logger: logger}
}

// ListPending returns pending transactions oldest first, so approvers work
// the queue fairly.
func (s *Service) ListPending(ctx context.Context) ([]inventory.Transaction, error) {
	return s.store.ListPending(ctx)
}

// Approve resolves a pending transaction. The pending check is optimistic: of
// two concurrent approvals exactly one claims the row, the other observes
// ErrNotPending. When the transaction moves a vendor payable, the balance is
// updated through the atomic vendor primitive and the ledger entry records
// the balance that primitive returned.
func (s *Service) Approve(ctx context.Context, id int64, approverID int64) (inventory.Transaction, error) {
	now := time.Now().UTC()
	claimed, err := s.store.ClaimPending(ctx, id, approverID, now)
	if err != nil {
		return inventory.Transaction{}, err
	}

	if claimed.Type.AffectsVendorBalance() && claimed.VendorID != 0 {
		kind := vendors.BalanceUpdatePurchase
		if claimed.Type == inventory.TransactionPurchaseReturn {
			kind = vendors.BalanceUpdatePurchaseReturn
		}
		result, err := s.balances.UpdateBalance(ctx, claimed.VendorID, claimed.TotalCost, kind)
		if err != nil || !result.Success {
			// The claim and the balance update are separate transactions on
			// purpose: holding a row lock across the vendor call would
			// serialize every approval behind it. If this release also
			// fails, the row stays approved with stock applied and no
			// vendor-side effects. The ledger reconciliation scan flags it
			// against the vendor ledger for manual repair.
			if rerr := s.store.ReleaseClaim(ctx, id); rerr != nil {
				s.logger.Error("release claim after failed balance update",
					slog.Int64("transaction_id", id), slog.Any("error", rerr))
			}
			if err != nil {
				return inventory.Transaction{}, fmt.Errorf("%w: %v", ErrVendorBalanceUpdateFailed, err)
			}
			return inventory.Transaction{}, fmt.Errorf("%w: %s", ErrVendorBalanceUpdateFailed, result.Error)
		}

		entry := vendors.LedgerEntry{
			VendorID:       claimed.VendorID,
			ReferenceID:    claimed.ID,
			RunningBalance: result.NewBalance,
			Note:           claimed.InvoiceNo,
		}
		if kind == vendors.BalanceUpdatePurchase {
			entry.EntryType = vendors.LedgerEntryPurchase
			entry.Credit = claimed.TotalCost
		} else {
			entry.EntryType = vendors.LedgerEntryPurchaseReturn
			entry.Debit = claimed.TotalCost
		}
		if _, err := s.balances.RecordLedgerEntry(ctx, entry); err != nil {
			// The balance already moved and may have been observed, so the
			// approval stands. The reconciliation job picks this gap up.
			s.logger.Warn("ledger entry insert failed after balance update",
				slog.Int64("transaction_id", claimed.ID),
				slog.Int64("vendor_id", claimed.VendorID),
				slog.Float64("running_balance", result.NewBalance),
				slog.Any("error", err))
		}
	}

	if s.metrics != nil {
		s.metrics.ApprovalResolved("approved")
	}
	s.recordAudit(ctx, approverID, "approval:approve", claimed.ID, map[string]any{
		"invoice_no": claimed.InvoiceNo,
		"type":       string(claimed.Type),
	})
	return s.store.GetTransaction(ctx, id)
}

// Reject resolves a pending transaction without side effects.
func (s *Service) Reject(ctx context.Context, id int64, reason string, rejectorID int64) (inventory.Transaction, error) {
	if reason == "" {
		return inventory.Transaction{}, ErrReasonRequired
	}
	if err := s.store.MarkRejected(ctx, id, reason, rejectorID, time.Now().UTC()); err != nil {
		return inventory.Transaction{}, err
	}
	if s.metrics != nil {
		s.metrics.ApprovalResolved("rejected")
	}
	s.recordAudit(ctx, rejectorID, "approval:reject", id, map[string]any{"reason": reason})
	return s.store.GetTransaction(ctx, id)
}

// Stats aggregates counts over the past sinceDays, optionally scoped to the
// transactions a single user performed.
func (s *Service) Stats(ctx context.Context, sinceDays int, userID int64) (Stats, error) {
	if sinceDays <= 0 {
		sinceDays = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -sinceDays)
	return s.store.Stats(ctx, since, userID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, txID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory_transaction",
		EntityID: fmt.Sprintf("%d", txID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("record audit", slog.Any("error", err))
	}
}
