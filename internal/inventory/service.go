package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/saman-erp/saman-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	ListTransactions(ctx context.Context, filter Filter) ([]Transaction, error)
	GetReturnableQuantities(ctx context.Context, referenceID int64) (map[int64]float64, error)
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	NextInvoiceNumber(ctx context.Context, t TransactionType) (string, error)
	InsertTransaction(ctx context.Context, tx Transaction) (int64, error)
	InsertItems(ctx context.Context, txID int64, items []TransactionItem) error
	ClaimVoid(ctx context.Context, id int64, reason string, actorID int64, at time.Time) (TransactionStatus, error)
	ApplyStockDelta(ctx context.Context, variantID int64, qty float64) error
}

// ApprovalPort runs the approval path synchronously for privileged makers.
// The approval package implements it; the indirection keeps this package free
// of a dependency cycle.
type ApprovalPort interface {
	Approve(ctx context.Context, txID int64, approverID int64) (Transaction, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory transaction creation and voiding.
type Service struct {
	repo     RepositoryPort
	approver ApprovalPort
	audit    AuditPort
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// SetApprover injects the approval workflow used for privileged auto-approval.
func (s *Service) SetApprover(approver ApprovalPort) {
	s.approver = approver
}

// Create validates and persists a transaction. Privileged actors get their
// transaction approved immediately through the normal approval path; everyone
// else lands in pending for a checker to resolve.
func (s *Service) Create(ctx context.Context, input CreateInput, actor shared.Actor) (Transaction, error) {
	if !input.Type.IsValid() {
		return Transaction{}, fmt.Errorf("inventory: unknown transaction type %q", input.Type)
	}
	if input.Type != TransactionPurchase && !actor.Privileged() {
		return Transaction{}, ErrForbidden
	}

	items := parseItems(input.Type, input.Items)
	if len(items) == 0 {
		return Transaction{}, ErrNoValidItems
	}

	if input.Type == TransactionPurchaseReturn {
		if input.VendorID == 0 {
			return Transaction{}, ErrVendorRequired
		}
		if input.ReferenceID == 0 {
			return Transaction{}, ErrReferenceRequired
		}
		if err := s.validateReturnQuantities(ctx, input.ReferenceID, items); err != nil {
			return Transaction{}, err
		}
	}

	var total float64
	for _, item := range items {
		total += math.Abs(item.Quantity) * item.UnitCost
	}

	header := Transaction{
		Type:                   input.Type,
		Status:                 StatusPending,
		VendorID:               input.VendorID,
		ReferenceTransactionID: input.ReferenceID,
		TotalCost:              total,
		Note:                   input.Note,
		PerformedBy:            actor.ID,
	}

	// Header and items commit together; a failed item insert rolls the
	// header back so a partial transaction is never observable.
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoiceNo, err := tx.NextInvoiceNumber(ctx, input.Type)
		if err != nil {
			return err
		}
		header.InvoiceNo = invoiceNo
		id, err := tx.InsertTransaction(ctx, header)
		if err != nil {
			return err
		}
		header.ID = id
		for i := range items {
			items[i].TransactionID = id
		}
		return tx.InsertItems(ctx, id, items)
	})
	if err != nil {
		return Transaction{}, err
	}
	header.Items = items

	s.recordAudit(ctx, actor.ID, "inventory:create", header.ID, map[string]any{
		"type":       string(input.Type),
		"invoice_no": header.InvoiceNo,
		"total_cost": total,
	})

	if actor.Privileged() && s.approver != nil {
		approved, err := s.approver.Approve(ctx, header.ID, actor.ID)
		if err != nil {
			return Transaction{}, fmt.Errorf("inventory: auto-approve %s: %w", header.InvoiceNo, err)
		}
		approved.Items = items
		return approved, nil
	}
	return header, nil
}

// Void cancels a transaction. A pending transaction has no side effects to
// unwind; an approved one gets its stock deltas reversed in the same commit.
func (s *Service) Void(ctx context.Context, id int64, reason string, actor shared.Actor) (Transaction, error) {
	if reason == "" {
		return Transaction{}, errors.New("inventory: void reason required")
	}
	if !actor.Privileged() {
		return Transaction{}, ErrForbidden
	}

	current, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}

	now := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prior, err := tx.ClaimVoid(ctx, id, reason, actor.ID, now)
		if err != nil {
			return err
		}
		if prior != StatusApproved {
			return nil
		}
		for _, item := range current.Items {
			if err := tx.ApplyStockDelta(ctx, item.VariantID, -item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}

	s.recordAudit(ctx, actor.ID, "inventory:void", id, map[string]any{
		"reason":       reason,
		"prior_status": string(current.Status),
	})
	return s.repo.GetTransaction(ctx, id)
}

// Get returns a transaction with its items.
func (s *Service) Get(ctx context.Context, id int64) (Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

// List returns transactions matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Transaction, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.repo.ListTransactions(ctx, filter)
}

// parseItems drops unusable lines and normalizes quantity signs: purchases
// go in positive, returns and damage go out negative, adjustments keep the
// caller's sign.
func parseItems(t TransactionType, inputs []ItemInput) []TransactionItem {
	var items []TransactionItem
	for _, in := range inputs {
		if in.VariantID == 0 || in.Quantity == 0 || in.UnitCost < 0 {
			continue
		}
		qty := in.Quantity
		switch t {
		case TransactionPurchase:
			qty = math.Abs(qty)
		case TransactionPurchaseReturn, TransactionDamage:
			qty = -math.Abs(qty)
		}
		source := in.Source
		if source == "" {
			source = SourceFresh
		}
		items = append(items, TransactionItem{
			VariantID: in.VariantID,
			Quantity:  qty,
			UnitCost:  in.UnitCost,
			Source:    source,
		})
	}
	return items
}

func (s *Service) validateReturnQuantities(ctx context.Context, referenceID int64, items []TransactionItem) error {
	reference, err := s.repo.GetTransaction(ctx, referenceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidReference
		}
		return err
	}
	if reference.Type != TransactionPurchase || reference.Status != StatusApproved {
		return ErrInvalidReference
	}

	remaining, err := s.repo.GetReturnableQuantities(ctx, referenceID)
	if err != nil {
		return err
	}
	requested := make(map[int64]float64, len(items))
	for _, item := range items {
		requested[item.VariantID] += math.Abs(item.Quantity)
	}
	for variantID, qty := range requested {
		if qty > remaining[variantID] {
			return &ReturnQuantityExceededError{
				VariantID: variantID,
				Requested: qty,
				Remaining: remaining[variantID],
			}
		}
	}
	return nil
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
