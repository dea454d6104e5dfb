package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saman-erp/saman-erp/internal/inventory"
	"github.com/saman-erp/saman-erp/internal/vendors"
)

type memoryStore struct {
	mu           sync.Mutex
	transactions map[int64]inventory.Transaction
	stock        map[int64]float64
	releases     int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		transactions: map[int64]inventory.Transaction{},
		stock:        map[int64]float64{},
	}
}

func (m *memoryStore) put(tx inventory.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[tx.ID] = tx
}

func (m *memoryStore) GetTransaction(_ context.Context, id int64) (inventory.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return inventory.Transaction{}, inventory.ErrNotFound
	}
	return tx, nil
}

func (m *memoryStore) ListPending(_ context.Context) ([]inventory.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []inventory.Transaction
	for _, tx := range m.transactions {
		if tx.Status == inventory.StatusPending {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *memoryStore) ClaimPending(_ context.Context, id, approverID int64, at time.Time) (inventory.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return inventory.Transaction{}, inventory.ErrNotFound
	}
	if tx.Status != inventory.StatusPending {
		return inventory.Transaction{}, ErrNotPending
	}
	tx.Status = inventory.StatusApproved
	tx.ApprovedBy = approverID
	tx.ApprovedAt = at
	for _, item := range tx.Items {
		m.stock[item.VariantID] += item.Quantity
	}
	m.transactions[id] = tx
	return tx, nil
}

func (m *memoryStore) ReleaseClaim(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return inventory.ErrNotFound
	}
	tx.Status = inventory.StatusPending
	tx.ApprovedBy = 0
	tx.ApprovedAt = time.Time{}
	for _, item := range tx.Items {
		m.stock[item.VariantID] -= item.Quantity
	}
	m.transactions[id] = tx
	m.releases++
	return nil
}

func (m *memoryStore) MarkRejected(_ context.Context, id int64, reason string, rejectorID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return inventory.ErrNotFound
	}
	if tx.Status != inventory.StatusPending {
		return ErrNotPending
	}
	tx.Status = inventory.StatusRejected
	tx.RejectedBy = rejectorID
	tx.RejectedAt = at
	tx.RejectionReason = reason
	m.transactions[id] = tx
	return nil
}

func (m *memoryStore) Stats(_ context.Context, since time.Time, userID int64) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats Stats
	for _, tx := range m.transactions {
		if tx.CreatedAt.Before(since) {
			continue
		}
		if userID != 0 && tx.PerformedBy != userID {
			continue
		}
		switch tx.Status {
		case inventory.StatusPending:
			stats.Pending++
		case inventory.StatusApproved:
			stats.Approved++
		case inventory.StatusRejected:
			stats.Rejected++
		case inventory.StatusVoided:
			stats.Voided++
		}
		stats.Total++
	}
	return stats, nil
}

type fakeBalances struct {
	mu         sync.Mutex
	balance    float64
	updates    int
	entries    []vendors.LedgerEntry
	failUpdate bool
	failLedger bool
}

func (f *fakeBalances) UpdateBalance(_ context.Context, vendorID int64, amount float64, kind vendors.BalanceUpdateKind) (vendors.BalanceUpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate {
		return vendors.BalanceUpdateResult{Success: false, Error: "vendor credit limit exceeded"}, nil
	}
	prev := f.balance
	if kind == vendors.BalanceUpdatePurchase {
		f.balance += amount
	} else {
		f.balance -= amount
	}
	f.updates++
	return vendors.BalanceUpdateResult{Success: true, PreviousBalance: prev, NewBalance: f.balance}, nil
}

func (f *fakeBalances) RecordLedgerEntry(_ context.Context, entry vendors.LedgerEntry) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLedger {
		return 0, errors.New("ledger insert failed")
	}
	f.entries = append(f.entries, entry)
	return int64(len(f.entries)), nil
}

func pendingPurchase(id int64, total float64) inventory.Transaction {
	return inventory.Transaction{
		ID:        id,
		Type:      inventory.TransactionPurchase,
		Status:    inventory.StatusPending,
		InvoiceNo: fmt.Sprintf("PUR-%06d", id),
		VendorID:  7,
		TotalCost: total,
		CreatedAt: time.Now().UTC(),
		Items: []inventory.TransactionItem{
			{VariantID: 101, Quantity: 10, UnitCost: total / 10},
		},
	}
}

func newTestService(store TransactionStore, balances BalancePort) *Service {
	return NewService(store, balances, nil, nil, slog.Default())
}

func TestApprovePurchaseCreditsVendorAndStock(t *testing.T) {
	store := newMemoryStore()
	store.put(pendingPurchase(1, 10000))
	balances := &fakeBalances{}
	svc := newTestService(store, balances)

	approved, err := svc.Approve(context.Background(), 1, 42)
	require.NoError(t, err)
	require.Equal(t, inventory.StatusApproved, approved.Status)
	require.EqualValues(t, 42, approved.ApprovedBy)
	require.InDelta(t, 10000, balances.balance, 0.001)
	require.InDelta(t, 10, store.stock[101], 0.001)

	require.Len(t, balances.entries, 1)
	entry := balances.entries[0]
	require.Equal(t, vendors.LedgerEntryPurchase, entry.EntryType)
	require.InDelta(t, 10000, entry.Credit, 0.001)
	require.InDelta(t, 10000, entry.RunningBalance, 0.001)
	require.Equal(t, "PUR-000001", entry.Note)
	require.EqualValues(t, 1, entry.ReferenceID)
}

func TestApproveReturnDebitsVendor(t *testing.T) {
	store := newMemoryStore()
	store.put(pendingPurchase(1, 10000))
	ret := inventory.Transaction{
		ID:                     2,
		Type:                   inventory.TransactionPurchaseReturn,
		Status:                 inventory.StatusPending,
		InvoiceNo:              "PRT-000001",
		VendorID:               7,
		ReferenceTransactionID: 1,
		TotalCost:              2000,
		CreatedAt:              time.Now().UTC(),
		Items: []inventory.TransactionItem{
			{VariantID: 101, Quantity: -2, UnitCost: 1000},
		},
	}
	store.put(ret)
	balances := &fakeBalances{}
	svc := newTestService(store, balances)

	_, err := svc.Approve(context.Background(), 1, 42)
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), 2, 42)
	require.NoError(t, err)

	require.InDelta(t, 8000, balances.balance, 0.001)
	require.InDelta(t, 8, store.stock[101], 0.001)

	require.Len(t, balances.entries, 2)
	entry := balances.entries[1]
	require.Equal(t, vendors.LedgerEntryPurchaseReturn, entry.EntryType)
	require.InDelta(t, 2000, entry.Debit, 0.001)
	require.InDelta(t, 8000, entry.RunningBalance, 0.001)
}

func TestApproveConcurrentOnlyOneWins(t *testing.T) {
	store := newMemoryStore()
	store.put(pendingPurchase(1, 5000))
	balances := &fakeBalances{}
	svc := newTestService(store, balances)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Approve(context.Background(), 1, 42)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, notPending int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrNotPending):
			notPending++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, attempts-1, notPending)
	require.Equal(t, 1, balances.updates)
	require.InDelta(t, 5000, balances.balance, 0.001)
}

func TestApproveBalanceFailureReleasesClaim(t *testing.T) {
	store := newMemoryStore()
	store.put(pendingPurchase(1, 5000))
	balances := &fakeBalances{failUpdate: true}
	svc := newTestService(store, balances)

	_, err := svc.Approve(context.Background(), 1, 42)
	require.ErrorIs(t, err, ErrVendorBalanceUpdateFailed)
	require.Contains(t, err.Error(), "credit limit")

	tx, getErr := store.GetTransaction(context.Background(), 1)
	require.NoError(t, getErr)
	require.Equal(t, inventory.StatusPending, tx.Status)
	require.Zero(t, store.stock[101])
	require.Equal(t, 1, store.releases)
	require.Empty(t, balances.entries)
}

func TestApproveLedgerFailureKeepsApproval(t *testing.T) {
	store := newMemoryStore()
	store.put(pendingPurchase(1, 5000))
	balances := &fakeBalances{failLedger: true}
	svc := newTestService(store, balances)

	approved, err := svc.Approve(context.Background(), 1, 42)
	require.NoError(t, err)
	require.Equal(t, inventory.StatusApproved, approved.Status)
	require.InDelta(t, 5000, balances.balance, 0.001)
	require.Empty(t, balances.entries)
}

func TestApproveNonVendorTypeSkipsBalance(t *testing.T) {
	store := newMemoryStore()
	store.put(inventory.Transaction{
		ID:        3,
		Type:      inventory.TransactionDamage,
		Status:    inventory.StatusPending,
		InvoiceNo: "DMG-000001",
		TotalCost: 300,
		CreatedAt: time.Now().UTC(),
		Items: []inventory.TransactionItem{
			{VariantID: 55, Quantity: -3, UnitCost: 100},
		},
	})
	balances := &fakeBalances{}
	svc := newTestService(store, balances)

	_, err := svc.Approve(context.Background(), 3, 42)
	require.NoError(t, err)
	require.Zero(t, balances.updates)
	require.InDelta(t, -3, store.stock[55], 0.001)
}

func TestRejectRequiresReason(t *testing.T) {
	store := newMemoryStore()
	store.put(pendingPurchase(1, 5000))
	svc := newTestService(store, &fakeBalances{})

	_, err := svc.Reject(context.Background(), 1, "", 42)
	require.ErrorIs(t, err, ErrReasonRequired)

	rejected, err := svc.Reject(context.Background(), 1, "price mismatch", 42)
	require.NoError(t, err)
	require.Equal(t, inventory.StatusRejected, rejected.Status)
	require.Equal(t, "price mismatch", rejected.RejectionReason)

	_, err = svc.Reject(context.Background(), 1, "again", 42)
	require.ErrorIs(t, err, ErrNotPending)
}

func TestStatsDefaultsWindow(t *testing.T) {
	store := newMemoryStore()
	store.put(pendingPurchase(1, 100))
	old := pendingPurchase(2, 100)
	old.CreatedAt = time.Now().UTC().AddDate(0, 0, -60)
	store.put(old)
	svc := newTestService(store, &fakeBalances{})

	stats, err := svc.Stats(context.Background(), 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Pending)
	require.EqualValues(t, 1, stats.Total)
}
