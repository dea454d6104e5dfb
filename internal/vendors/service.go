package vendors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/saman-erp/saman-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetVendor(ctx context.Context, id int64) (Vendor, error)
	ListVendors(ctx context.Context, search string, limit, offset int) ([]Vendor, error)
	InsertLedgerEntry(ctx context.Context, entry LedgerEntry) (int64, error)
	ListLedger(ctx context.Context, vendorID int64, from, to time.Time) ([]LedgerEntry, error)
}

// TxRepository exposes the operations available inside a balance transaction.
type TxRepository interface {
	GetVendorForUpdate(ctx context.Context, id int64) (Vendor, error)
	UpdateVendorBalance(ctx context.Context, id int64, balance, totalPurchases, totalPayments float64) error
}

// errBalanceConstraint aborts the balance transaction without surfacing a
// caller-visible error; the result carries the violation instead.
var errBalanceConstraint = errors.New("vendors: balance constraint violated")

// Service exposes the single atomic payable mutation plus read operations.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService constructs Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// UpdateBalance applies amount to the vendor's payable inside one transaction
// holding an exclusive row lock, so concurrent approvals against the same
// vendor serialize instead of losing updates. PURCHASE increases the payable,
// PURCHASE_RETURN decreases it.
func (s *Service) UpdateBalance(ctx context.Context, vendorID int64, amount float64, kind BalanceUpdateKind) (BalanceUpdateResult, error) {
	if amount <= 0 {
		return BalanceUpdateResult{}, ErrInvalidAmount
	}
	if kind != BalanceUpdatePurchase && kind != BalanceUpdatePurchaseReturn {
		return BalanceUpdateResult{}, fmt.Errorf("vendors: unknown balance update kind %q", kind)
	}

	var result BalanceUpdateResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		vendor, err := tx.GetVendorForUpdate(ctx, vendorID)
		if err != nil {
			return err
		}
		result.PreviousBalance = vendor.Balance

		newBalance := vendor.Balance
		totalPurchases := vendor.TotalPurchases
		totalPayments := vendor.TotalPayments
		switch kind {
		case BalanceUpdatePurchase:
			newBalance += amount
			totalPurchases += amount
		case BalanceUpdatePurchaseReturn:
			newBalance -= amount
		}
		if newBalance < 0 {
			result.Error = fmt.Sprintf("balance would become negative (%.2f)", newBalance)
			return errBalanceConstraint
		}
		if err := tx.UpdateVendorBalance(ctx, vendorID, newBalance, totalPurchases, totalPayments); err != nil {
			return err
		}
		result.NewBalance = newBalance
		result.Success = true
		return nil
	})
	if err != nil {
		if errors.Is(err, errBalanceConstraint) {
			s.logger.Warn("vendor balance constraint violation",
				slog.Int64("vendor_id", vendorID),
				slog.Float64("amount", amount),
				slog.String("kind", string(kind)))
			return result, nil
		}
		return BalanceUpdateResult{}, err
	}
	return result, nil
}

// RecordLedgerEntry appends one ledger row. The running balance must come
// from the UpdateBalance result of the same approval, never recomputed.
func (s *Service) RecordLedgerEntry(ctx context.Context, entry LedgerEntry) (int64, error) {
	if entry.VendorID == 0 {
		return 0, ErrVendorNotFound
	}
	if entry.EntryType == "" {
		return 0, errors.New("vendors: ledger entry type required")
	}
	return s.repo.InsertLedgerEntry(ctx, entry)
}

// Get returns a vendor by id.
func (s *Service) Get(ctx context.Context, id int64) (Vendor, error) {
	return s.repo.GetVendor(ctx, id)
}

// List returns vendors matching an optional search term.
func (s *Service) List(ctx context.Context, search string, page shared.Pagination) ([]Vendor, error) {
	limit := page.Limit()
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListVendors(ctx, search, limit, page.Offset())
}

// Ledger lists a vendor's ledger entries within the given window.
func (s *Service) Ledger(ctx context.Context, vendorID int64, from, to time.Time) ([]LedgerEntry, error) {
	if vendorID == 0 {
		return nil, ErrVendorNotFound
	}
	return s.repo.ListLedger(ctx, vendorID, from, to)
}
