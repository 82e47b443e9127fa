package sets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"godown/internal/core/apperror"
	"godown/internal/core/id"
	"godown/internal/core/types"
	"godown/internal/domain"
	"godown/internal/domain/catalogs/product"
)

type fakeProductRepo struct {
	byID map[id.ID]*product.Product
}

func (r *fakeProductRepo) Create(_ context.Context, p *product.Product) error {
	r.byID[p.ID] = p
	return nil
}

func (r *fakeProductRepo) GetByID(_ context.Context, productID id.ID) (*product.Product, error) {
	if p, ok := r.byID[productID]; ok {
		return p, nil
	}
	return nil, apperror.NewNotFound("product", productID.String())
}

func (r *fakeProductRepo) GetByCode(_ context.Context, code string) (*product.Product, error) {
	for _, p := range r.byID {
		if p.Code == code {
			return p, nil
		}
	}
	return nil, apperror.NewNotFound("product", code)
}

func (r *fakeProductRepo) Update(_ context.Context, p *product.Product) error {
	r.byID[p.ID] = p
	return nil
}

func (r *fakeProductRepo) SetDeletionMark(_ context.Context, productID id.ID, marked bool) error {
	if p, ok := r.byID[productID]; ok {
		p.DeletionMark = marked
	}
	return nil
}

func (r *fakeProductRepo) List(_ context.Context, _ domain.ListFilter) (domain.ListResult[*product.Product], error) {
	items := make([]*product.Product, 0, len(r.byID))
	for _, p := range r.byID {
		items = append(items, p)
	}
	return domain.ListResult[*product.Product]{Items: items, TotalCount: int64(len(items))}, nil
}

func (r *fakeProductRepo) Exists(_ context.Context, productID id.ID) (bool, error) {
	_, ok := r.byID[productID]
	return ok, nil
}

func (r *fakeProductRepo) GetBySubProductID(_ context.Context, subProductID id.ID) (*product.Product, error) {
	for _, p := range r.byID {
		for _, sp := range p.SubProducts {
			if sp.SubProductID == subProductID {
				return p, nil
			}
		}
	}
	return nil, apperror.NewNotFound("product", subProductID.String())
}

func (r *fakeProductRepo) ListSets(_ context.Context) ([]*product.Product, error) {
	var out []*product.Product
	for _, p := range r.byID {
		if p.IsSet() && !p.DeletionMark {
			out = append(out, p)
		}
	}
	return out, nil
}

type staticBalances map[id.ID]types.Quantity

func (b staticBalances) GetBalances(_ context.Context, unitIDs []id.ID) (map[id.ID]types.Quantity, error) {
	out := make(map[id.ID]types.Quantity, len(unitIDs))
	for _, unitID := range unitIDs {
		out[unitID] = b[unitID]
	}
	return out, nil
}

type noopTx struct{}

func (noopTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestService_BrokenSet(t *testing.T) {
	ctx := context.Background()
	repo := &fakeProductRepo{byID: make(map[id.ID]*product.Product)}
	products := product.NewService(repo, noopTx{})

	set := product.NewSet("DIN-01", "Dining Set")
	set.AddSubProduct("Table", 2)
	set.AddSubProduct("Chair", 1)
	set.AddSubProduct("Bench", 4)
	require.NoError(t, repo.Create(ctx, set))

	balances := staticBalances{
		set.SubProducts[0].SubProductID: 10,
		set.SubProducts[1].SubProductID: 5,
		set.SubProducts[2].SubProductID: 8,
	}
	svc := NewService(products, balances)

	report, err := svc.BrokenSet(ctx, set.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(2), report.MaxCompleteSets)
	assert.Equal(t, types.Quantity(3), report.TargetSets)
	require.Len(t, report.ToOrder, 1)
	assert.Equal(t, "Bench", report.ToOrder[0].Name)
	assert.Equal(t, types.Quantity(4), report.ToOrder[0].Shortfall)
}

func TestService_BrokenSet_NotASet(t *testing.T) {
	ctx := context.Background()
	repo := &fakeProductRepo{byID: make(map[id.ID]*product.Product)}
	products := product.NewService(repo, noopTx{})

	chair := product.NewIndividual("CHAIR-01", "Chair")
	require.NoError(t, repo.Create(ctx, chair))

	svc := NewService(products, staticBalances{})
	_, err := svc.BrokenSet(ctx, chair.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestService_OutOfStock(t *testing.T) {
	ctx := context.Background()
	repo := &fakeProductRepo{byID: make(map[id.ID]*product.Product)}
	products := product.NewService(repo, noopTx{})

	chair := product.NewIndividual("CHAIR-01", "Chair")
	table := product.NewIndividual("TBL-01", "Table")
	set := product.NewSet("BED-01", "Bedroom Set")
	set.AddSubProduct("Frame", 1)
	set.AddSubProduct("Mattress", 1)
	for _, p := range []*product.Product{chair, table, set} {
		require.NoError(t, repo.Create(ctx, p))
	}

	balances := staticBalances{
		table.ID:                        7,
		set.SubProducts[1].SubProductID: 0,
	}
	svc := NewService(products, balances)

	report, err := svc.OutOfStock(ctx)
	require.NoError(t, err)
	require.Len(t, report.Individuals, 1)
	assert.Equal(t, chair.ID, report.Individuals[0].ProductID)
	require.Len(t, report.Sets, 1)
	assert.Equal(t, set.ID, report.Sets[0].ProductID)
}
