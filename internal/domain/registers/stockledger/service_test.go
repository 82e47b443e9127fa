package stockledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"godown/internal/core/apperror"
	"godown/internal/core/id"
	"godown/internal/core/types"
)

// fakeRepo is an in-memory Repository with version-conditioned writes.
type fakeRepo struct {
	units  map[id.ID]StockUnit
	events []StockEvent

	// beforeUpdate runs just before UpdateUnit, to simulate a concurrent
	// writer sneaking in between the read and the conditional write.
	beforeUpdate func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{units: make(map[id.ID]StockUnit)}
}

func (r *fakeRepo) GetUnit(_ context.Context, unitID id.ID) (StockUnit, error) {
	if u, ok := r.units[unitID]; ok {
		return u, nil
	}
	return StockUnit{UnitID: unitID}, nil
}

func (r *fakeRepo) GetUnits(_ context.Context, unitIDs []id.ID) (map[id.ID]StockUnit, error) {
	out := make(map[id.ID]StockUnit, len(unitIDs))
	for _, unitID := range unitIDs {
		if u, ok := r.units[unitID]; ok {
			out[unitID] = u
		} else {
			out[unitID] = StockUnit{UnitID: unitID}
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateUnit(_ context.Context, unit StockUnit, expectedVersion int) error {
	if r.beforeUpdate != nil {
		r.beforeUpdate()
		r.beforeUpdate = nil
	}
	current := r.units[unit.UnitID]
	if current.Version != expectedVersion {
		return apperror.NewConcurrentModification("stock unit", unit.UnitID.String())
	}
	r.units[unit.UnitID] = unit
	return nil
}

func (r *fakeRepo) AppendEvent(_ context.Context, event StockEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *fakeRepo) GetEventsByUnit(_ context.Context, unitID id.ID, _ EventFilter) ([]StockEvent, error) {
	var out []StockEvent
	for _, e := range r.events {
		if e.UnitID == unitID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetEventsByRecorder(_ context.Context, recorderID id.ID) ([]StockEvent, error) {
	var out []StockEvent
	for _, e := range r.events {
		if e.RecorderID == recorderID {
			out = append(out, e)
		}
	}
	return out, nil
}

// noopTxManager runs fn directly; atomicity is the real manager's concern.
type noopTxManager struct{}

func (noopTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService() (*Service, *fakeRepo) {
	repo := newFakeRepo()
	return NewService(repo, noopTxManager{}), repo
}

func TestService_ApplyEvent_BalanceEqualsEventSum(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	unitID := id.New()

	steps := []struct {
		eventType EventType
		qty       types.Quantity
		opts      ApplyOptions
	}{
		{EventReceived, 20, ApplyOptions{}},
		{EventSold, 7, ApplyOptions{}},
		{EventReturned, 2, ApplyOptions{}},
		{EventOutDispatched, 5, ApplyOptions{}},
		{EventOutReturned, 3, ApplyOptions{}},
		{EventSold, 4, ApplyOptions{}},
		{EventDelivered, 6, ApplyOptions{}},
	}
	for _, step := range steps {
		_, err := svc.ApplyEvent(ctx, unitID, step.eventType, step.qty, step.opts)
		require.NoError(t, err)
	}

	events, err := repo.GetEventsByUnit(ctx, unitID, EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, len(steps))

	var sum types.Quantity
	for _, e := range events {
		sum += e.BalanceDelta()
	}

	unit, err := svc.GetUnit(ctx, unitID)
	require.NoError(t, err)
	assert.Equal(t, sum, unit.Balance())
	assert.Equal(t, types.Quantity(20-7+2-5+3-4), unit.Balance())
	assert.Equal(t, types.Quantity(20+2+3-6-5), unit.InStore())
}

func TestService_ApplyEvent_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	unitID := id.New()

	_, err := svc.ApplyEvent(ctx, unitID, EventReceived, 3, ApplyOptions{})
	require.NoError(t, err)

	_, err = svc.ApplyEvent(ctx, unitID, EventSold, 5, ApplyOptions{})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))

	// Ledger unchanged: only the received event exists.
	unit, err := svc.GetUnit(ctx, unitID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(3), unit.Balance())
	assert.Len(t, repo.events, 1)
}

func TestService_ApplyEvent_OnOrder(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	unitID := id.New()

	_, err := svc.ApplyEvent(ctx, unitID, EventReceived, 3, ApplyOptions{})
	require.NoError(t, err)

	// Sell 5 against a balance of 3: 3 booked sold, 2 on order.
	res, err := svc.ApplyEvent(ctx, unitID, EventSold, 5, ApplyOptions{AllowOnOrder: true})
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(2), res.OnOrderBooked)
	assert.Equal(t, types.Quantity(0), res.NewBalance)

	unit, err := svc.GetUnit(ctx, unitID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(3), unit.Sold)
	assert.Equal(t, types.Quantity(2), unit.OnOrder)

	// New stock settles the on-order demand first.
	res, err = svc.ApplyEvent(ctx, unitID, EventReceived, 6, ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(2), res.OnOrderConverted)
	assert.Equal(t, types.Quantity(4), res.NewBalance)

	unit, err = svc.GetUnit(ctx, unitID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(5), unit.Sold)
	assert.Equal(t, types.Quantity(0), unit.OnOrder)
}

func TestService_ApplyEvent_ConcurrentModification(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	unitID := id.New()

	_, err := svc.ApplyEvent(ctx, unitID, EventReceived, 10, ApplyOptions{})
	require.NoError(t, err)

	// Another writer bumps the version between our read and write.
	repo.beforeUpdate = func() {
		u := repo.units[unitID]
		u.Version++
		repo.units[unitID] = u
	}

	_, err = svc.ApplyEvent(ctx, unitID, EventSold, 1, ApplyOptions{})
	require.Error(t, err)
	assert.True(t, apperror.IsConcurrentModification(err))

	// Retry with fresh state succeeds.
	_, err = svc.ApplyEvent(ctx, unitID, EventSold, 1, ApplyOptions{})
	require.NoError(t, err)
}

func TestService_ApplyEvent_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.ApplyEvent(ctx, id.New(), EventReceived, 0, ApplyOptions{})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = svc.ApplyEvent(ctx, id.New(), EventType("melted"), 1, ApplyOptions{})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = svc.ApplyEvent(ctx, id.Nil(), EventReceived, 1, ApplyOptions{})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestService_ApplyEvent_DeliveredAffectsInStoreOnly(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	unitID := id.New()

	_, err := svc.ApplyEvent(ctx, unitID, EventReceived, 10, ApplyOptions{})
	require.NoError(t, err)
	_, err = svc.ApplyEvent(ctx, unitID, EventSold, 4, ApplyOptions{})
	require.NoError(t, err)

	res, err := svc.ApplyEvent(ctx, unitID, EventDelivered, 4, ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(6), res.NewBalance)
	assert.Equal(t, types.Quantity(6), res.NewInStore)

	// Cannot deliver more than is physically in store.
	_, err = svc.ApplyEvent(ctx, unitID, EventDelivered, 7, ApplyOptions{})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))
}

func TestService_ApplyEvent_OutReturnBounded(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	unitID := id.New()

	_, err := svc.ApplyEvent(ctx, unitID, EventReceived, 10, ApplyOptions{})
	require.NoError(t, err)
	_, err = svc.ApplyEvent(ctx, unitID, EventOutDispatched, 2, ApplyOptions{})
	require.NoError(t, err)

	_, err = svc.ApplyEvent(ctx, unitID, EventOutReturned, 3, ApplyOptions{})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = svc.ApplyEvent(ctx, unitID, EventOutReturned, 2, ApplyOptions{})
	require.NoError(t, err)
}

func TestService_ReverseSale(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()
	unitID := id.New()
	saleID := id.New()

	_, err := svc.ApplyEvent(ctx, unitID, EventReceived, 3, ApplyOptions{})
	require.NoError(t, err)
	_, err = svc.ApplyEvent(ctx, unitID, EventSold, 5, ApplyOptions{AllowOnOrder: true, RecorderID: saleID})
	require.NoError(t, err)

	err = svc.ReverseSale(ctx, unitID, 3, 2, saleID)
	require.NoError(t, err)

	unit, err := svc.GetUnit(ctx, unitID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(0), unit.Sold)
	assert.Equal(t, types.Quantity(0), unit.OnOrder)
	assert.Equal(t, types.Quantity(3), unit.Balance())

	// Reversal is recorded as an event, traceable to the sale.
	events, err := repo.GetEventsByRecorder(ctx, saleID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventSaleReversed, events[1].Type)

	// Cannot reverse more than was recorded.
	err = svc.ReverseSale(ctx, unitID, 1, 0, saleID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestService_GetBalances(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	a, b := id.New(), id.New()

	_, err := svc.ApplyEvent(ctx, a, EventReceived, 10, ApplyOptions{})
	require.NoError(t, err)

	balances, err := svc.GetBalances(ctx, []id.ID{a, b})
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(10), balances[a])
	assert.Equal(t, types.Quantity(0), balances[b])
}
