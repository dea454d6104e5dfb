package vendors

import (
	"errors"
	"time"
)

// BalanceUpdateKind selects the direction of a payable mutation.
type BalanceUpdateKind string

const (
	// BalanceUpdatePurchase increases the payable owed to the vendor.
	BalanceUpdatePurchase BalanceUpdateKind = "PURCHASE"
	// BalanceUpdatePurchaseReturn decreases the payable.
	BalanceUpdatePurchaseReturn BalanceUpdateKind = "PURCHASE_RETURN"
)

// Vendor models a supplier with a running payable balance.
type Vendor struct {
	ID             int64
	Name           string
	Phone          string
	Balance        float64
	TotalPurchases float64
	TotalPayments  float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LedgerEntryType enumerates ledger entry kinds.
type LedgerEntryType string

const (
	LedgerEntryPurchase       LedgerEntryType = "purchase"
	LedgerEntryPurchaseReturn LedgerEntryType = "purchase_return"
)

// LedgerEntry is one append-only row of a vendor's ledger. RunningBalance is
// the snapshot returned by the atomic balance update that produced the entry,
// never recomputed independently.
type LedgerEntry struct {
	ID             int64
	VendorID       int64
	EntryType      LedgerEntryType
	Debit          float64
	Credit         float64
	RunningBalance float64
	ReferenceID    int64
	Note           string
	CreatedAt      time.Time
}

// BalanceUpdateResult reports the outcome of the atomic balance update.
// Constraint violations surface as Success=false with Error set rather than
// as a Go error, so callers can map them to a domain failure.
type BalanceUpdateResult struct {
	Success         bool
	PreviousBalance float64
	NewBalance      float64
	Error           string
}

var (
	// ErrVendorNotFound indicates an unknown vendor id.
	ErrVendorNotFound = errors.New("vendors: vendor not found")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("vendors: amount must be positive")
)
