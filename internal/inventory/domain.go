package inventory

import (
	"errors"
	"fmt"
	"time"
)

// TransactionType enumerates supported inventory transaction types.
type TransactionType string

const (
	// TransactionPurchase is an inbound purchase from a vendor.
	TransactionPurchase TransactionType = "purchase"
	// TransactionPurchaseReturn sends previously purchased goods back.
	TransactionPurchaseReturn TransactionType = "purchase_return"
	// TransactionDamage writes off damaged stock.
	TransactionDamage TransactionType = "damage"
	// TransactionAdjustment corrects stock counts in either direction.
	TransactionAdjustment TransactionType = "adjustment"
)

// IsValid reports membership in the type enumeration.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionPurchase, TransactionPurchaseReturn, TransactionDamage, TransactionAdjustment:
		return true
	default:
		return false
	}
}

// AffectsVendorBalance reports whether approval moves a vendor payable.
func (t TransactionType) AffectsVendorBalance() bool {
	return t == TransactionPurchase || t == TransactionPurchaseReturn
}

// TransactionStatus is the maker-checker lifecycle of a transaction.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusApproved TransactionStatus = "approved"
	StatusRejected TransactionStatus = "rejected"
	StatusVoided   TransactionStatus = "voided"
)

// SourceType distinguishes fresh from damaged stock on an item line.
type SourceType string

const (
	SourceFresh   SourceType = "fresh"
	SourceDamaged SourceType = "damaged"
)

// Transaction models the header of an inventory transaction. Once approved it
// is immutable except for the void transition.
type Transaction struct {
	ID                     int64
	Type                   TransactionType
	Status                 TransactionStatus
	InvoiceNo              string
	VendorID               int64
	ReferenceTransactionID int64
	TotalCost              float64
	Note                   string
	PerformedBy            int64
	ApprovedBy             int64
	ApprovedAt             time.Time
	RejectedBy             int64
	RejectedAt             time.Time
	RejectionReason        string
	VoidedBy               int64
	VoidedAt               time.Time
	VoidReason             string
	CreatedAt              time.Time
	Items                  []TransactionItem
}

// TransactionItem is one variant line. Quantity is signed: positive for
// stock-in (purchase), negative for returns, damage and adjustment-out.
type TransactionItem struct {
	ID            int64
	TransactionID int64
	VariantID     int64
	Quantity      float64
	UnitCost      float64
	Source        SourceType
}

// CreateInput describes a transaction creation request.
type CreateInput struct {
	Type        TransactionType
	VendorID    int64
	ReferenceID int64
	Note        string
	Items       []ItemInput
}

// ItemInput is one raw item line before parsing.
type ItemInput struct {
	VariantID int64
	Quantity  float64
	UnitCost  float64
	Source    SourceType
}

// Filter narrows transaction listings.
type Filter struct {
	Type     TransactionType
	Status   TransactionStatus
	VendorID int64
	From     time.Time
	To       time.Time
	Search   string
	Limit    int
	Offset   int
}

var (
	// ErrNotFound indicates a missing transaction.
	ErrNotFound = errors.New("inventory: transaction not found")
	// ErrNoValidItems indicates the parsed item set was empty.
	ErrNoValidItems = errors.New("inventory: no valid items")
	// ErrForbidden indicates the actor lacks permission for this type.
	ErrForbidden = errors.New("inventory: transaction type requires approval rights")
	// ErrVendorRequired indicates a purchase_return without a vendor.
	ErrVendorRequired = errors.New("inventory: vendor required")
	// ErrReferenceRequired indicates a purchase_return without a source purchase.
	ErrReferenceRequired = errors.New("inventory: reference purchase required")
	// ErrInvalidReference indicates the reference is not an approved purchase.
	ErrInvalidReference = errors.New("inventory: reference must be an approved purchase")
	// ErrDuplicateInvoice indicates an invoice number collision.
	ErrDuplicateInvoice = errors.New("inventory: duplicate invoice number")
	// ErrAlreadyVoided indicates a repeated void.
	ErrAlreadyVoided = errors.New("inventory: transaction already voided")
	// ErrVoidNotAllowed indicates a void on a rejected transaction.
	ErrVoidNotAllowed = errors.New("inventory: only pending or approved transactions can be voided")
)

// ReturnQuantityExceededError names the variant whose requested return
// quantity exceeds what remains returnable on the referenced purchase.
type ReturnQuantityExceededError struct {
	VariantID int64
	Requested float64
	Remaining float64
}

func (e *ReturnQuantityExceededError) Error() string {
	return fmt.Sprintf("inventory: return quantity %.2f exceeds remaining %.2f for variant %d",
		e.Requested, e.Remaining, e.VariantID)
}
