package orders

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saman-erp/saman-erp/internal/shared"
	"github.com/saman-erp/saman-erp/internal/status"
)

type memoryOrderRepo struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]Order
	stock  map[int64]float64
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{orders: map[int64]Order{}, stock: map[int64]float64{}}
}

func (m *memoryOrderRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, m)
}

func (m *memoryOrderRepo) GetOrder(_ context.Context, id int64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return order, nil
}

func (m *memoryOrderRepo) ListOrders(_ context.Context, filter Filter) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out, nil
}

func (m *memoryOrderRepo) InsertOrder(_ context.Context, order Order) (int64, error) {
	m.nextID++
	order.ID = m.nextID
	order.CreatedAt = time.Now().UTC()
	m.orders[order.ID] = order
	return order.ID, nil
}

func (m *memoryOrderRepo) InsertItems(_ context.Context, orderID int64, items []OrderItem) error {
	order := m.orders[orderID]
	order.Items = items
	m.orders[orderID] = order
	return nil
}

func (m *memoryOrderRepo) UpdateStatus(_ context.Context, id int64, target, expected status.Status, at time.Time) error {
	order, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	if order.Status != expected {
		return ErrStatusChanged
	}
	order.Status = target
	order.UpdatedAt = at
	m.orders[id] = order
	return nil
}

func (m *memoryOrderRepo) ClaimStockReversal(_ context.Context, id int64) (bool, error) {
	order := m.orders[id]
	if order.StockReversed {
		return false, nil
	}
	order.StockReversed = true
	m.orders[id] = order
	return true, nil
}

func (m *memoryOrderRepo) ApplyStockDelta(_ context.Context, variantID int64, qty float64) error {
	m.stock[variantID] += qty
	return nil
}

// seed places an order directly in the given status, as if it had moved
// through fulfillment already.
func (m *memoryOrderRepo) seed(s status.Status, ft status.FulfillmentType, reversed bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.orders[m.nextID] = Order{
		ID:              m.nextID,
		Code:            "ORD-1001",
		Status:          s,
		FulfillmentType: ft,
		StockReversed:   reversed,
		Items: []OrderItem{
			{VariantID: 101, Quantity: 2, UnitPrice: 1500},
		},
	}
	return m.nextID
}

type countingMetrics struct {
	reversals int
}

func (c *countingMetrics) StockReversed() { c.reversals++ }

var dispatcher = shared.Actor{ID: 5, Name: "Hari", Role: shared.RoleManager}

func newTestEngine(repo *memoryOrderRepo) (*Engine, *countingMetrics) {
	metrics := &countingMetrics{}
	return NewEngine(repo, nil, metrics, slog.Default()), metrics
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	repo := newMemoryOrderRepo()
	id := repo.seed(status.StatusConfirmed, status.FulfillmentInsideValley, false)
	engine, _ := newTestEngine(repo)

	_, err := engine.Transition(context.Background(), id, "definitely_not_a_status", dispatcher)
	require.ErrorIs(t, err, ErrInvalidStatus)
	require.Contains(t, err.Error(), "definitely_not_a_status")
}

func TestTransitionAcceptsLegacyAlias(t *testing.T) {
	repo := newMemoryOrderRepo()
	id := repo.seed(status.StatusAssigned, status.FulfillmentInsideValley, false)
	engine, _ := newTestEngine(repo)

	order, err := engine.Transition(context.Background(), id, "SENT_FOR_DELIVERY", dispatcher)
	require.NoError(t, err)
	require.Equal(t, status.StatusOutForDelivery, order.Status)
}

func TestTransitionTerminalStates(t *testing.T) {
	repo := newMemoryOrderRepo()
	engine, _ := newTestEngine(repo)

	for terminal := range status.Terminal {
		id := repo.seed(terminal, status.FulfillmentInsideValley, false)
		_, err := engine.Transition(context.Background(), id, "confirmed", dispatcher)
		require.ErrorIs(t, err, ErrTerminalState, "from %s", terminal)
	}
}

func TestTransitionFulfillmentMismatch(t *testing.T) {
	repo := newMemoryOrderRepo()
	engine, _ := newTestEngine(repo)

	inside := repo.seed(status.StatusConfirmed, status.FulfillmentInsideValley, false)
	_, err := engine.Transition(context.Background(), inside, "handover_to_courier", dispatcher)
	require.ErrorIs(t, err, ErrFulfillmentMismatch)

	outside := repo.seed(status.StatusConfirmed, status.FulfillmentOutsideValley, false)
	_, err = engine.Transition(context.Background(), outside, "out_for_delivery", dispatcher)
	require.ErrorIs(t, err, ErrFulfillmentMismatch)

	store := repo.seed(status.StatusConfirmed, status.FulfillmentStore, false)
	_, err = engine.Transition(context.Background(), store, "assigned", dispatcher)
	require.ErrorIs(t, err, ErrFulfillmentMismatch)
}

func TestCancelRestoresCommittedStock(t *testing.T) {
	repo := newMemoryOrderRepo()
	id := repo.seed(status.StatusPacked, status.FulfillmentInsideValley, false)
	engine, metrics := newTestEngine(repo)

	order, err := engine.Transition(context.Background(), id, "cancelled", dispatcher)
	require.NoError(t, err)
	require.Equal(t, status.StatusCancelled, order.Status)
	require.True(t, order.StockReversed)
	require.InDelta(t, 2, repo.stock[101], 0.001)
	require.Equal(t, 1, metrics.reversals)
}

func TestCancelBeforeCommitLeavesStockAlone(t *testing.T) {
	repo := newMemoryOrderRepo()
	id := repo.seed(status.StatusConfirmed, status.FulfillmentInsideValley, false)
	engine, metrics := newTestEngine(repo)

	order, err := engine.Transition(context.Background(), id, "cancelled", dispatcher)
	require.NoError(t, err)
	require.Equal(t, status.StatusCancelled, order.Status)
	require.False(t, order.StockReversed)
	require.Zero(t, repo.stock[101])
	require.Zero(t, metrics.reversals)
}

func TestRacedTransitionsRestoreStockOnce(t *testing.T) {
	repo := newMemoryOrderRepo()
	id := repo.seed(status.StatusPacked, status.FulfillmentInsideValley, false)
	engine, metrics := newTestEngine(repo)

	// Two callers read the packed order before either writes, as when a
	// courier-webhook retry races a manual cancel.
	stale, err := repo.GetOrder(context.Background(), id)
	require.NoError(t, err)

	_, err = engine.Transition(context.Background(), id, "cancelled", dispatcher)
	require.NoError(t, err)

	_, err = engine.apply(context.Background(), stale, status.StatusCancelled, dispatcher)
	require.ErrorIs(t, err, ErrStatusChanged)

	require.InDelta(t, 2, repo.stock[101], 0.001, "stock must be restored exactly once")
	require.Equal(t, 1, metrics.reversals)
}

func TestRacedTransitionsConcurrent(t *testing.T) {
	repo := newMemoryOrderRepo()
	id := repo.seed(status.StatusPacked, status.FulfillmentInsideValley, false)
	engine, metrics := newTestEngine(repo)

	stale, err := repo.GetOrder(context.Background(), id)
	require.NoError(t, err)

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.apply(context.Background(), stale, status.StatusCancelled, dispatcher)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, ErrStatusChanged)
			conflicts++
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, callers-1, conflicts)
	require.InDelta(t, 2, repo.stock[101], 0.001)
	require.Equal(t, 1, metrics.reversals)
}

func TestStockReversalIsIdempotent(t *testing.T) {
	repo := newMemoryOrderRepo()
	id := repo.seed(status.StatusRTOVerificationPending, status.FulfillmentOutsideValley, true)
	engine, metrics := newTestEngine(repo)

	order, err := engine.VerifyRTO(context.Background(), id, dispatcher)
	require.NoError(t, err)
	require.Equal(t, status.StatusReturned, order.Status)
	require.Zero(t, repo.stock[101], "already reversed stock must not move again")
	require.Zero(t, metrics.reversals)
}

func TestRTOHoldingStateDoesNotRestoreStock(t *testing.T) {
	repo := newMemoryOrderRepo()
	id := repo.seed(status.StatusRTOInitiated, status.FulfillmentOutsideValley, false)
	engine, _ := newTestEngine(repo)

	order, err := engine.ApplyCourierStatus(context.Background(), id, CourierNCM, "Return Completed", dispatcher)
	require.NoError(t, err)
	require.Equal(t, status.StatusRTOVerificationPending, order.Status)
	require.Zero(t, repo.stock[101], "holding state must not restore stock")
	require.False(t, order.StockReversed)
}

func TestVerifyRTORestoresStockOnce(t *testing.T) {
	repo := newMemoryOrderRepo()
	id := repo.seed(status.StatusRTOVerificationPending, status.FulfillmentOutsideValley, false)
	engine, metrics := newTestEngine(repo)

	order, err := engine.VerifyRTO(context.Background(), id, dispatcher)
	require.NoError(t, err)
	require.Equal(t, status.StatusReturned, order.Status)
	require.True(t, order.StockReversed)
	require.InDelta(t, 2, repo.stock[101], 0.001)
	require.Equal(t, 1, metrics.reversals)

	// returned is terminal, so re-verifying is rejected outright.
	_, err = engine.VerifyRTO(context.Background(), id, dispatcher)
	require.ErrorIs(t, err, ErrTerminalState)
	require.InDelta(t, 2, repo.stock[101], 0.001)
}

func TestVerifyRTORequiresHoldingState(t *testing.T) {
	repo := newMemoryOrderRepo()
	id := repo.seed(status.StatusRTOInitiated, status.FulfillmentOutsideValley, false)
	engine, _ := newTestEngine(repo)

	_, err := engine.VerifyRTO(context.Background(), id, dispatcher)
	require.ErrorIs(t, err, ErrNotAwaitingVerification)
}

func TestCourierStatusUnmappedCodeSkipsTransition(t *testing.T) {
	repo := newMemoryOrderRepo()
	id := repo.seed(status.StatusInTransit, status.FulfillmentOutsideValley, false)
	engine, _ := newTestEngine(repo)

	_, err := engine.ApplyCourierStatus(context.Background(), id, CourierNCM, "Package Teleported", dispatcher)
	require.ErrorIs(t, err, ErrUnknownCourierStatus)

	order, err := repo.GetOrder(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, status.StatusInTransit, order.Status, "unmapped code must not move the order")
}

func TestCourierCannotMarkLost(t *testing.T) {
	for _, table := range courierTables {
		for code, mapped := range table {
			require.NotEqual(t, status.StatusLostInTransit, mapped, "courier code %q", code)
			require.NotEqual(t, status.StatusReturned, mapped,
				"courier code %q must not bypass RTO verification", code)
		}
	}
}

func TestMarkLostIsExplicit(t *testing.T) {
	repo := newMemoryOrderRepo()
	id := repo.seed(status.StatusInTransit, status.FulfillmentOutsideValley, false)
	engine, _ := newTestEngine(repo)

	order, err := engine.MarkLost(context.Background(), id, dispatcher)
	require.NoError(t, err)
	require.Equal(t, status.StatusLostInTransit, order.Status)
	require.Zero(t, repo.stock[101], "lost orders keep stock committed until the dispute resolves")

	_, err = engine.MarkLost(context.Background(), id, dispatcher)
	require.ErrorIs(t, err, ErrTerminalState)
}

func TestCreateOrder(t *testing.T) {
	repo := newMemoryOrderRepo()
	engine, _ := newTestEngine(repo)

	order, err := engine.Create(context.Background(), CreateInput{
		Code:            "ORD-2001",
		CustomerName:    "Gita Shrestha",
		FulfillmentType: status.FulfillmentOutsideValley,
		Location:        "Pokhara",
		Items: []OrderItem{
			{VariantID: 101, Quantity: 2, UnitPrice: 1500},
			{VariantID: 0, Quantity: 1, UnitPrice: 100},
		},
	}, dispatcher)
	require.NoError(t, err)
	require.Equal(t, status.StatusIntake, order.Status)
	require.Len(t, order.Items, 1)
	require.InDelta(t, 3000, order.TotalAmount, 0.001)

	generated, err := engine.Create(context.Background(), CreateInput{
		CustomerName:    "Hari Tamang",
		FulfillmentType: status.FulfillmentStore,
	}, dispatcher)
	require.NoError(t, err)
	require.Regexp(t, `^ORD-[0-9A-F]{8}$`, generated.Code)

	_, err = engine.Create(context.Background(), CreateInput{
		Code:            "ORD-2002",
		FulfillmentType: "drone",
	}, dispatcher)
	require.Error(t, err)
}
