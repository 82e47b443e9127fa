package delivery

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"godown/internal/core/apperror"
	"godown/internal/core/id"
	"godown/internal/core/types"
	"godown/internal/domain/catalogs/product"
	"godown/internal/domain/registers/stockledger"
	"godown/pkg/challan"
)

type fakeRepo struct {
	states   map[id.ID]State
	challans map[id.ID]*Challan
	numbers  map[string]bool

	failCreateChallan error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		states:   make(map[id.ID]State),
		challans: make(map[id.ID]*Challan),
		numbers:  make(map[string]bool),
	}
}

func (r *fakeRepo) CreateState(_ context.Context, state State) error {
	r.states[state.LineItemID] = state
	return nil
}

func (r *fakeRepo) GetState(_ context.Context, lineItemID id.ID) (State, error) {
	if st, ok := r.states[lineItemID]; ok {
		return st, nil
	}
	return State{}, apperror.NewNotFound("delivery state", lineItemID.String())
}

func (r *fakeRepo) GetStatesBySale(_ context.Context, saleID id.ID) ([]State, error) {
	var out []State
	for _, st := range r.states {
		if st.SaleID == saleID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateState(_ context.Context, state State, expectedVersion int) error {
	current, ok := r.states[state.LineItemID]
	if !ok {
		return apperror.NewNotFound("delivery state", state.LineItemID.String())
	}
	if current.Version != expectedVersion {
		return apperror.NewConcurrentModification("delivery state", state.LineItemID.String())
	}
	r.states[state.LineItemID] = state
	return nil
}

func (r *fakeRepo) DeleteStatesBySale(_ context.Context, saleID id.ID) error {
	for lineID, st := range r.states {
		if st.SaleID == saleID {
			delete(r.states, lineID)
		}
	}
	return nil
}

func (r *fakeRepo) CreateChallan(_ context.Context, ch *Challan) error {
	if r.failCreateChallan != nil {
		return r.failCreateChallan
	}
	if r.numbers[ch.Number] {
		return apperror.NewDuplicate("challan", "number", ch.Number)
	}
	r.numbers[ch.Number] = true
	r.challans[ch.ID] = ch
	return nil
}

func (r *fakeRepo) GetChallan(_ context.Context, challanID id.ID) (*Challan, error) {
	if ch, ok := r.challans[challanID]; ok {
		return ch, nil
	}
	return nil, apperror.NewNotFound("challan", challanID.String())
}

func (r *fakeRepo) GetChallanByNumber(_ context.Context, number string) (*Challan, error) {
	for _, ch := range r.challans {
		if ch.Number == number {
			return ch, nil
		}
	}
	return nil, apperror.NewNotFound("challan", number)
}

func (r *fakeRepo) ChallanNumberExists(_ context.Context, number string) (bool, error) {
	return r.numbers[number], nil
}

func (r *fakeRepo) ListChallans(_ context.Context, _ ChallanFilter) ([]*Challan, error) {
	out := make([]*Challan, 0, len(r.challans))
	for _, ch := range r.challans {
		out = append(out, ch)
	}
	return out, nil
}

type ledgerCall struct {
	unitID    id.ID
	eventType stockledger.EventType
	qty       types.Quantity
}

type fakeLedger struct {
	calls []ledgerCall
	fail  error
}

func (l *fakeLedger) ApplyEvent(_ context.Context, unitID id.ID, eventType stockledger.EventType, qty types.Quantity, _ stockledger.ApplyOptions) (stockledger.ApplyResult, error) {
	if l.fail != nil {
		return stockledger.ApplyResult{}, l.fail
	}
	l.calls = append(l.calls, ledgerCall{unitID, eventType, qty})
	return stockledger.ApplyResult{}, nil
}

type fakeSales map[id.ID]SaleInfo

func (s fakeSales) GetDeliveryInfo(_ context.Context, saleID id.ID) (SaleInfo, error) {
	if info, ok := s[saleID]; ok {
		return info, nil
	}
	return SaleInfo{}, apperror.NewNotFound("sale", saleID.String())
}

type fakeUnits map[id.ID]product.UnitInfo

func (u fakeUnits) ResolveUnit(_ context.Context, unitID id.ID) (product.UnitInfo, error) {
	if info, ok := u[unitID]; ok {
		return info, nil
	}
	return product.UnitInfo{}, apperror.NewNotFound("stock unit", unitID.String())
}

type noopTx struct{}

func (noopTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	svc    *Service
	repo   *fakeRepo
	ledger *fakeLedger
	saleID id.ID
	lineID id.ID
	unitID id.ID
}

func newFixture(t *testing.T, ordered types.Quantity) *fixture {
	t.Helper()
	repo := newFakeRepo()
	ledger := &fakeLedger{}
	saleID, lineID, unitID := id.New(), id.New(), id.New()

	sales := fakeSales{saleID: {
		CustomerName:    "R. Das",
		CustomerPhone:   "+91 98765 44170",
		DeliveryAddress: "12 Lake Road",
	}}
	units := fakeUnits{unitID: {
		UnitID:      unitID,
		ProductID:   id.New(),
		ProductName: "Oak Wardrobe",
		UnitName:    "Oak Wardrobe",
	}}

	labels := challan.NewWithSource(rand.NewSource(42), func() time.Time {
		return time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	})
	svc := NewService(repo, ledger, sales, units, labels, noopTx{})

	require.NoError(t, svc.RegisterLine(context.Background(), lineID, saleID, unitID, ordered))
	return &fixture{svc: svc, repo: repo, ledger: ledger, saleID: saleID, lineID: lineID, unitID: unitID}
}

func TestService_Confirm_PartialsThenOverdelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	res, err := f.svc.Confirm(ctx, f.saleID, ConfirmRequest{
		Selections: []Selection{{LineItemID: f.lineID, Mode: ModePartial, Quantity: 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, SalePartiallyDelivered, res.SaleStatus)

	res, err = f.svc.Confirm(ctx, f.saleID, ConfirmRequest{
		Selections: []Selection{{LineItemID: f.lineID, Mode: ModePartial, Quantity: 6}},
	})
	require.NoError(t, err)
	assert.Equal(t, SaleFullyDelivered, res.SaleStatus)

	state, err := f.svc.GetState(ctx, f.lineID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(10), state.DeliveredCumulative)
	assert.True(t, state.IsFullyDelivered())

	// The line is exhausted; nothing more can be delivered.
	_, err = f.svc.Confirm(ctx, f.saleID, ConfirmRequest{
		Selections: []Selection{{LineItemID: f.lineID, Mode: ModePartial, Quantity: 1}},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidDeliveryQuantity))
}

func TestService_Confirm_FullMode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 7)

	res, err := f.svc.Confirm(ctx, f.saleID, ConfirmRequest{
		Selections: []Selection{{LineItemID: f.lineID, Mode: ModeFull}},
	})
	require.NoError(t, err)
	assert.Equal(t, SaleFullyDelivered, res.SaleStatus)

	// Re-confirming a fully delivered line fails, never silently succeeds.
	_, err = f.svc.Confirm(ctx, f.saleID, ConfirmRequest{
		Selections: []Selection{{LineItemID: f.lineID, Mode: ModeFull}},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidDeliveryQuantity))
}

func TestService_Confirm_NoItemsSelected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)

	_, err := f.svc.Confirm(ctx, f.saleID, ConfirmRequest{})
	assert.True(t, apperror.IsCode(err, apperror.CodeNoItemsSelected))

	_, err = f.svc.Confirm(ctx, f.saleID, ConfirmRequest{
		Selections: []Selection{{LineItemID: f.lineID, Mode: ModeNone}},
	})
	assert.True(t, apperror.IsCode(err, apperror.CodeNoItemsSelected))
}

func TestService_Confirm_InvalidQuantities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)

	for _, qty := range []types.Quantity{0, -1, 6} {
		_, err := f.svc.Confirm(ctx, f.saleID, ConfirmRequest{
			Selections: []Selection{{LineItemID: f.lineID, Mode: ModePartial, Quantity: qty}},
		})
		require.Error(t, err, "qty=%d", qty)
		assert.True(t, apperror.IsCode(err, apperror.CodeInvalidDeliveryQuantity))
	}
}

func TestService_Confirm_ProducesChallan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)

	res, err := f.svc.Confirm(ctx, f.saleID, ConfirmRequest{
		Selections:      []Selection{{LineItemID: f.lineID, Mode: ModePartial, Quantity: 3}},
		TransportCharge: types.MustMoney("350.00"),
		DeliveryStaff:   []string{"Anil", "Bapi"},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^20260831-4170_\d{3}$`, res.ChallanNumber)

	ch, err := f.svc.GetChallan(ctx, res.ChallanID)
	require.NoError(t, err)
	assert.Equal(t, "R. Das", ch.CustomerName)
	assert.Equal(t, "12 Lake Road", ch.DeliveryAddress)
	require.Len(t, ch.Items, 1)
	assert.Equal(t, types.Quantity(3), ch.Items[0].Quantity)
	assert.Equal(t, "Oak Wardrobe", ch.Items[0].ProductName)

	// Re-reading the challan returns identical content.
	again, err := f.svc.GetChallanByNumber(ctx, res.ChallanNumber)
	require.NoError(t, err)
	assert.Equal(t, ch, again)

	// The physical hand-off is on the ledger as a delivered event.
	require.Len(t, f.ledger.calls, 1)
	assert.Equal(t, stockledger.EventDelivered, f.ledger.calls[0].eventType)
	assert.Equal(t, types.Quantity(3), f.ledger.calls[0].qty)
}

func TestService_Confirm_NumberCollisionRegenerates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)

	// Occupy the label the generator would produce first.
	probe := challan.NewWithSource(rand.NewSource(42), func() time.Time {
		return time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	})
	taken := probe.Next("+91 98765 44170")
	f.repo.numbers[taken] = true

	res, err := f.svc.Confirm(ctx, f.saleID, ConfirmRequest{
		Selections: []Selection{{LineItemID: f.lineID, Mode: ModePartial, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.NotEqual(t, taken, res.ChallanNumber)
}

func TestService_Confirm_LedgerFailureAborts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	f.ledger.fail = apperror.NewInsufficientStock(f.unitID.String(), 5, 0)

	_, err := f.svc.Confirm(ctx, f.saleID, ConfirmRequest{
		Selections: []Selection{{LineItemID: f.lineID, Mode: ModeFull}},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))
	assert.Empty(t, f.repo.challans)
}

func TestService_Propose_IsPure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 8)

	proposal, err := f.svc.Propose(ctx, f.saleID)
	require.NoError(t, err)
	require.Len(t, proposal.Lines, 1)
	assert.Equal(t, types.Quantity(8), proposal.Lines[0].Remaining)
	assert.Equal(t, SaleNoDelivery, proposal.SaleStatus)

	// Proposing changed nothing.
	state, err := f.svc.GetState(ctx, f.lineID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(0), state.DeliveredCumulative)
	assert.Empty(t, f.ledger.calls)
}

func TestService_ReverseForSaleDeletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)

	_, err := f.svc.Confirm(ctx, f.saleID, ConfirmRequest{
		Selections: []Selection{{LineItemID: f.lineID, Mode: ModePartial, Quantity: 4}},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.ReverseForSaleDeletion(ctx, f.saleID))

	require.Len(t, f.ledger.calls, 2)
	assert.Equal(t, stockledger.EventDeliveryReversed, f.ledger.calls[1].eventType)
	assert.Equal(t, types.Quantity(4), f.ledger.calls[1].qty)

	_, err = f.svc.GetState(ctx, f.lineID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestDeriveSaleStatus(t *testing.T) {
	mk := func(ordered, delivered types.Quantity) State {
		return State{QuantityOrdered: ordered, DeliveredCumulative: delivered}
	}
	tests := []struct {
		name   string
		states []State
		want   SaleStatus
	}{
		{"no lines", nil, SaleNoDelivery},
		{"all undelivered", []State{mk(5, 0), mk(3, 0)}, SaleNoDelivery},
		{"all full", []State{mk(5, 5), mk(3, 3)}, SaleFullyDelivered},
		{"mixed", []State{mk(5, 5), mk(3, 0)}, SalePartiallyDelivered},
		{"one partial", []State{mk(5, 2)}, SalePartiallyDelivered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveSaleStatus(tt.states))
		})
	}
}

func TestService_Confirm_DuplicateSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)

	_, err := f.svc.Confirm(ctx, f.saleID, ConfirmRequest{
		Selections: []Selection{
			{LineItemID: f.lineID, Mode: ModePartial, Quantity: 1},
			{LineItemID: f.lineID, Mode: ModePartial, Quantity: 1},
		},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	assert.Empty(t, f.repo.challans, fmt.Sprintf("challans: %v", f.repo.challans))
}
