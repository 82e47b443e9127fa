package movements

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"godown/internal/core/apperror"
	"godown/internal/core/id"
	"godown/internal/core/types"
	"godown/internal/domain/catalogs/product"
	"godown/internal/domain/delivery"
	"godown/internal/domain/registers/stockledger"
	"godown/pkg/challan"
)

type fakeRepo struct {
	movements map[id.ID]*Movement
	requests  map[id.ID]PhysicalItemRequest
	numbers   map[string]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		movements: make(map[id.ID]*Movement),
		requests:  make(map[id.ID]PhysicalItemRequest),
		numbers:   make(map[string]bool),
	}
}

func (r *fakeRepo) CreateMovement(_ context.Context, m *Movement) error {
	if r.numbers[m.Number] {
		return apperror.NewDuplicate("outgoing movement", "number", m.Number)
	}
	r.numbers[m.Number] = true
	r.movements[m.ID] = m
	return nil
}

func (r *fakeRepo) GetMovement(_ context.Context, movementID id.ID) (*Movement, error) {
	if m, ok := r.movements[movementID]; ok {
		return m, nil
	}
	return nil, apperror.NewNotFound("outgoing movement", movementID.String())
}

func (r *fakeRepo) GetMovementByNumber(_ context.Context, number string) (*Movement, error) {
	for _, m := range r.movements {
		if m.Number == number {
			return m, nil
		}
	}
	return nil, apperror.NewNotFound("outgoing movement", number)
}

func (r *fakeRepo) NumberExists(_ context.Context, number string) (bool, error) {
	return r.numbers[number], nil
}

func (r *fakeRepo) ListMovements(_ context.Context, _ Filter) ([]*Movement, error) {
	out := make([]*Movement, 0, len(r.movements))
	for _, m := range r.movements {
		out = append(out, m)
	}
	return out, nil
}

func (r *fakeRepo) CountByAssociatedChallan(_ context.Context, challanNo string) (int, error) {
	count := 0
	for _, m := range r.movements {
		if m.AssociatedChallanNo == challanNo {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) SumDispatchedByChallan(_ context.Context, challanNo string) (map[id.ID]types.Quantity, error) {
	out := make(map[id.ID]types.Quantity)
	for _, m := range r.movements {
		if m.AssociatedChallanNo != challanNo {
			continue
		}
		for _, item := range m.Items {
			out[item.UnitID] += item.Quantity
		}
	}
	return out, nil
}

func (r *fakeRepo) GetItem(_ context.Context, itemID id.ID) (Item, Type, error) {
	for _, m := range r.movements {
		for _, item := range m.Items {
			if item.ID == itemID {
				return item, m.MovementType, nil
			}
		}
	}
	return Item{}, "", apperror.NewNotFound("movement item", itemID.String())
}

func (r *fakeRepo) MarkItemReturned(_ context.Context, itemID id.ID, returnedAt time.Time) error {
	for _, m := range r.movements {
		for i, item := range m.Items {
			if item.ID == itemID {
				if item.ReturnedAt != nil {
					return apperror.NewAlreadyReturned(itemID.String())
				}
				at := returnedAt
				m.Items[i].ReturnedAt = &at
				return nil
			}
		}
	}
	return apperror.NewNotFound("movement item", itemID.String())
}

func (r *fakeRepo) CreateRequests(_ context.Context, requests []PhysicalItemRequest) error {
	for _, req := range requests {
		r.requests[req.ID] = req
	}
	return nil
}

func (r *fakeRepo) GetRequest(_ context.Context, requestID id.ID) (PhysicalItemRequest, error) {
	if req, ok := r.requests[requestID]; ok {
		return req, nil
	}
	return PhysicalItemRequest{}, apperror.NewNotFound("physical item request", requestID.String())
}

func (r *fakeRepo) UpdateRequest(_ context.Context, request PhysicalItemRequest, expectedVersion int) error {
	current, ok := r.requests[request.ID]
	if !ok {
		return apperror.NewNotFound("physical item request", request.ID.String())
	}
	if current.Version != expectedVersion {
		return apperror.NewConcurrentModification("physical item request", request.ID.String())
	}
	r.requests[request.ID] = request
	return nil
}

func (r *fakeRepo) ListRequestsByLocation(_ context.Context, location string, includeClosed bool) ([]PhysicalItemRequest, error) {
	var out []PhysicalItemRequest
	for _, req := range r.requests {
		if req.ReceivingLocation != location {
			continue
		}
		if !includeClosed && req.Status == RequestReceived {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

type ledgerCall struct {
	unitID    id.ID
	eventType stockledger.EventType
	qty       types.Quantity
}

type fakeLedger struct {
	calls    []ledgerCall
	balances map[id.ID]types.Quantity
}

func (l *fakeLedger) ApplyEvent(_ context.Context, unitID id.ID, eventType stockledger.EventType, qty types.Quantity, _ stockledger.ApplyOptions) (stockledger.ApplyResult, error) {
	if eventType == stockledger.EventOutDispatched {
		if available := l.balances[unitID]; qty > available {
			return stockledger.ApplyResult{}, apperror.NewInsufficientStock(unitID.String(), qty, available)
		}
		l.balances[unitID] -= qty
	}
	l.calls = append(l.calls, ledgerCall{unitID, eventType, qty})
	return stockledger.ApplyResult{}, nil
}

type fakeChallans map[string]*delivery.Challan

func (c fakeChallans) GetChallanByNumber(_ context.Context, number string) (*delivery.Challan, error) {
	if ch, ok := c[number]; ok {
		return ch, nil
	}
	return nil, apperror.NewNotFound("challan", number)
}

type fakeUnits struct{}

func (fakeUnits) ResolveUnit(_ context.Context, unitID id.ID) (product.UnitInfo, error) {
	return product.UnitInfo{UnitID: unitID, ProductID: unitID, UnitName: "Unit " + unitID.String()[:8]}, nil
}

type noopTx struct{}

func (noopTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService(balances map[id.ID]types.Quantity, challans fakeChallans) (*Service, *fakeRepo, *fakeLedger) {
	repo := newFakeRepo()
	ledger := &fakeLedger{balances: balances}
	labels := challan.NewWithSource(rand.NewSource(7), func() time.Time {
		return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	})
	svc := NewService(repo, ledger, challans, fakeUnits{}, labels, noopTx{})
	return svc, repo, ledger
}

func repairsRequest(unitID id.ID, qty types.Quantity) CreateRequest {
	return CreateRequest{
		MovementType: TypeRepairs,
		DriverName:   "Gopal",
		Origin:       "Main Store",
		Destination:  "Workshop",
		Items:        []ItemRequest{{UnitID: unitID, Quantity: qty, Reason: "broken leg"}},
	}
}

func TestService_Create_Repairs(t *testing.T) {
	ctx := context.Background()
	unitID := id.New()
	svc, repo, ledger := newTestService(map[id.ID]types.Quantity{unitID: 10}, nil)

	res, err := svc.Create(ctx, repairsRequest(unitID, 3))
	require.NoError(t, err)
	assert.False(t, res.RequiresConfirmation)
	assert.Regexp(t, `^20260831-0000_\d{3}$`, res.OutgoingChallanNo)

	require.Len(t, ledger.calls, 1)
	assert.Equal(t, stockledger.EventOutDispatched, ledger.calls[0].eventType)
	assert.Equal(t, types.Quantity(7), ledger.balances[unitID])

	m, err := svc.GetMovement(ctx, res.MovementID)
	require.NoError(t, err)
	assert.Equal(t, TypeRepairs, m.MovementType)
	assert.Empty(t, repo.requests, "repairs do not cross custody")
}

func TestService_Create_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	unitID := id.New()
	svc, repo, _ := newTestService(map[id.ID]types.Quantity{unitID: 2}, nil)

	_, err := svc.Create(ctx, repairsRequest(unitID, 3))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))
	assert.Empty(t, repo.movements)
}

func TestService_Create_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	unitID := id.New()
	svc, _, _ := newTestService(map[id.ID]types.Quantity{unitID: 10}, nil)

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"missing driver", func(r *CreateRequest) { r.DriverName = "" }},
		{"missing reason", func(r *CreateRequest) { r.Items[0].Reason = "" }},
		{"zero quantity", func(r *CreateRequest) { r.Items[0].Quantity = 0 }},
		{"no items", func(r *CreateRequest) { r.Items = nil }},
		{"interstore without direction", func(r *CreateRequest) { r.MovementType = TypeInterStore }},
		{"part-of-delivery without challan", func(r *CreateRequest) { r.MovementType = TypePartOfDelivery }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := repairsRequest(unitID, 1)
			tt.mutate(&req)
			_, err := svc.Create(ctx, req)
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
		})
	}
}

func TestService_Create_InterStoreGeneratesRequests(t *testing.T) {
	ctx := context.Background()
	unitID := id.New()
	svc, repo, _ := newTestService(map[id.ID]types.Quantity{unitID: 10}, nil)

	res, err := svc.Create(ctx, CreateRequest{
		MovementType:      TypeInterStore,
		DriverName:        "Gopal",
		Origin:            "Main Store",
		Destination:       "Branch Store",
		Direction:         DirectionSend,
		SendingLocation:   "Main Store",
		ReceivingLocation: "Branch Store",
		Items:             []ItemRequest{{UnitID: unitID, Quantity: 4, Reason: "restock"}},
	})
	require.NoError(t, err)

	require.Len(t, repo.requests, 1)
	for _, pr := range repo.requests {
		assert.Equal(t, res.MovementID, pr.MovementID)
		assert.Equal(t, "Branch Store", pr.ReceivingLocation)
		assert.Equal(t, types.Quantity(4), pr.QuantityRequested)
		assert.Equal(t, RequestPending, pr.Status)
	}
}

func deliveredChallan(number string, unitID id.ID, qty types.Quantity) *delivery.Challan {
	return &delivery.Challan{
		Items: []delivery.ChallanItem{{UnitID: unitID, Quantity: qty}},
	}
}

func partOfDeliveryRequest(challanNo string, unitID id.ID, qty types.Quantity) CreateRequest {
	return CreateRequest{
		MovementType:        TypePartOfDelivery,
		DriverName:          "Gopal",
		Origin:              "Main Store",
		Destination:         "12 Lake Road",
		AssociatedChallanNo: challanNo,
		CustomerName:        "R. Das",
		DeliveryAddress:     "12 Lake Road",
		CustomerPhone:       "98765 44170",
		Items:               []ItemRequest{{UnitID: unitID, Quantity: qty}},
	}
}

func TestService_Create_DuplicateGuard(t *testing.T) {
	ctx := context.Background()
	unitID := id.New()
	challans := fakeChallans{"20260830-4170_011": deliveredChallan("20260830-4170_011", unitID, 10)}
	svc, repo, ledger := newTestService(map[id.ID]types.Quantity{}, challans)

	// Two prior movements against the same challan.
	for range 2 {
		res, err := svc.Create(ctx, partOfDeliveryRequest("20260830-4170_011", unitID, 2))
		require.NoError(t, err)
		if res.RequiresConfirmation {
			req := partOfDeliveryRequest("20260830-4170_011", unitID, 2)
			req.AcknowledgeDuplicate = true
			_, err = svc.Create(ctx, req)
			require.NoError(t, err)
		}
	}
	require.Len(t, repo.movements, 2)

	// Third attempt: advisory with the prior count, nothing created yet.
	res, err := svc.Create(ctx, partOfDeliveryRequest("20260830-4170_011", unitID, 2))
	require.NoError(t, err)
	require.NotNil(t, res.DuplicateWarning)
	assert.Equal(t, 2, res.DuplicateWarning.Count)
	assert.True(t, res.RequiresConfirmation)
	assert.Len(t, repo.movements, 2)

	// Acknowledged: created, warning still reported.
	req := partOfDeliveryRequest("20260830-4170_011", unitID, 2)
	req.AcknowledgeDuplicate = true
	res, err = svc.Create(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, res.DuplicateWarning)
	assert.Equal(t, 2, res.DuplicateWarning.Count)
	assert.NotEmpty(t, res.OutgoingChallanNo)
	assert.Len(t, repo.movements, 3)

	// Part-of-delivery trips never touch the stock register again.
	assert.Empty(t, ledger.calls)
}

func TestService_Create_PartOfDeliveryBoundedByChallan(t *testing.T) {
	ctx := context.Background()
	unitID := id.New()
	challans := fakeChallans{"20260830-4170_011": deliveredChallan("20260830-4170_011", unitID, 5)}
	svc, _, _ := newTestService(map[id.ID]types.Quantity{}, challans)

	_, err := svc.Create(ctx, partOfDeliveryRequest("20260830-4170_011", unitID, 4))
	require.NoError(t, err)

	// Only 1 of the delivered 5 is still undispatched.
	req := partOfDeliveryRequest("20260830-4170_011", unitID, 2)
	req.AcknowledgeDuplicate = true
	_, err = svc.Create(ctx, req)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))
}

func TestService_MarkRepairReturned_ExactlyOnce(t *testing.T) {
	ctx := context.Background()
	unitID := id.New()
	svc, repo, ledger := newTestService(map[id.ID]types.Quantity{unitID: 10}, nil)

	res, err := svc.Create(ctx, repairsRequest(unitID, 3))
	require.NoError(t, err)
	itemID := repo.movements[res.MovementID].Items[0].ID

	require.NoError(t, svc.MarkRepairReturned(ctx, itemID))

	err = svc.MarkRepairReturned(ctx, itemID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeAlreadyReturned))

	// Exactly one outgoing_returned event on the ledger.
	returns := 0
	for _, call := range ledger.calls {
		if call.eventType == stockledger.EventOutReturned {
			returns++
		}
	}
	assert.Equal(t, 1, returns)
}

func TestService_MarkRepairReturned_OnlyRepairs(t *testing.T) {
	ctx := context.Background()
	unitID := id.New()
	svc, repo, _ := newTestService(map[id.ID]types.Quantity{unitID: 10}, nil)

	res, err := svc.Create(ctx, CreateRequest{
		MovementType:      TypeInterStore,
		DriverName:        "Gopal",
		Origin:            "Main Store",
		Destination:       "Branch Store",
		Direction:         DirectionSend,
		SendingLocation:   "Main Store",
		ReceivingLocation: "Branch Store",
		Items:             []ItemRequest{{UnitID: unitID, Quantity: 1, Reason: "restock"}},
	})
	require.NoError(t, err)

	itemID := repo.movements[res.MovementID].Items[0].ID
	err = svc.MarkRepairReturned(ctx, itemID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestService_ReceivePhysicalItem(t *testing.T) {
	ctx := context.Background()
	unitID := id.New()
	svc, repo, _ := newTestService(map[id.ID]types.Quantity{unitID: 10}, nil)

	_, err := svc.Create(ctx, CreateRequest{
		MovementType:      TypeInterStore,
		DriverName:        "Gopal",
		Origin:            "Main Store",
		Destination:       "Branch Store",
		Direction:         DirectionSend,
		SendingLocation:   "Main Store",
		ReceivingLocation: "Branch Store",
		Items:             []ItemRequest{{UnitID: unitID, Quantity: 6, Reason: "restock"}},
	})
	require.NoError(t, err)

	var requestID id.ID
	for _, pr := range repo.requests {
		requestID = pr.ID
	}

	// Partial receipt: goods can be short-shipped in transit.
	got, err := svc.ReceivePhysicalItem(ctx, requestID, 4)
	require.NoError(t, err)
	assert.Equal(t, RequestPartiallyReceived, got.Status)
	assert.Equal(t, types.Quantity(2), got.Outstanding())

	// Receiving more than outstanding is rejected, not truncated.
	_, err = svc.ReceivePhysicalItem(ctx, requestID, 3)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeOverReceipt))

	got, err = svc.ReceivePhysicalItem(ctx, requestID, 2)
	require.NoError(t, err)
	assert.Equal(t, RequestReceived, got.Status)

	open, err := svc.ListRequests(ctx, "Branch Store", false)
	require.NoError(t, err)
	assert.Empty(t, open)
}
