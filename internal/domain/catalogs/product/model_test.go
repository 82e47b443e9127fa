package product

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"godown/internal/core/apperror"
)

func TestProduct_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid individual", func(t *testing.T) {
		p := NewIndividual("CHAIR-01", "Oak Chair")
		assert.NoError(t, p.Validate(ctx))
	})

	t.Run("valid set", func(t *testing.T) {
		p := NewSet("BED-01", "Bedroom Set")
		p.AddSubProduct("Bed Frame", 1)
		p.AddSubProduct("Side Table", 2)
		assert.NoError(t, p.Validate(ctx))
	})

	t.Run("set without sub-products", func(t *testing.T) {
		p := NewSet("BED-02", "Empty Set")
		err := p.Validate(ctx)
		require.Error(t, err)
		assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	})

	t.Run("individual with sub-products", func(t *testing.T) {
		p := NewIndividual("CHAIR-02", "Chair")
		p.SubProducts = []SubProduct{{Name: "Leg", RequiredPerSet: 1}}
		assert.Error(t, p.Validate(ctx))
	})

	t.Run("zero required per set", func(t *testing.T) {
		p := NewSet("SOFA-01", "Sofa Set")
		p.AddSubProduct("Sofa", 0)
		err := p.Validate(ctx)
		require.Error(t, err)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, 1, appErr.Details["lineNo"])
	})

	t.Run("missing name", func(t *testing.T) {
		p := NewIndividual("X", "")
		assert.Error(t, p.Validate(ctx))
	})

	t.Run("invalid kind", func(t *testing.T) {
		p := NewIndividual("Y", "Thing")
		p.Kind = Kind("bundle")
		assert.Error(t, p.Validate(ctx))
	})
}

func TestProduct_StockUnitIDs(t *testing.T) {
	individual := NewIndividual("TBL-01", "Dining Table")
	units := individual.StockUnitIDs()
	require.Len(t, units, 1)
	assert.Equal(t, individual.ID, units[0])

	set := NewSet("DIN-01", "Dining Set")
	set.AddSubProduct("Table", 1)
	set.AddSubProduct("Chair", 4)
	units = set.StockUnitIDs()
	require.Len(t, units, 2)
	assert.Equal(t, set.SubProducts[0].SubProductID, units[0])
	assert.Equal(t, set.SubProducts[1].SubProductID, units[1])
}

func TestProduct_AddSubProduct_LineNumbers(t *testing.T) {
	set := NewSet("WRD-01", "Wardrobe Set")
	set.AddSubProduct("Wardrobe", 1)
	set.AddSubProduct("Mirror", 2)
	set.AddSubProduct("Drawer", 3)

	for i, sp := range set.SubProducts {
		assert.Equal(t, i+1, sp.LineNo)
		assert.False(t, sp.SubProductID == set.ID)
	}
}
