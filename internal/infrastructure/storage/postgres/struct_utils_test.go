package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"godown/internal/core/id"
	"godown/internal/domain/catalogs/product"
	"godown/internal/domain/registers/stockledger"
)

func TestExtractDBColumns_Product(t *testing.T) {
	cols := ExtractDBColumns[product.Product]()

	// Embedded entity.Catalog fields come first
	assert.Contains(t, cols, "id")
	assert.Contains(t, cols, "deletion_mark")
	assert.Contains(t, cols, "version")
	assert.Contains(t, cols, "code")
	assert.Contains(t, cols, "name")
	assert.Contains(t, cols, "kind")
	assert.Contains(t, cols, "sku")

	// db:"-" fields are excluded
	assert.NotContains(t, cols, "-")
	for _, c := range cols {
		assert.NotEmpty(t, c)
	}
}

func TestExtractDBColumns_PointerType(t *testing.T) {
	assert.Equal(t, ExtractDBColumns[product.Product](), ExtractDBColumns[*product.Product]())
}

func TestStructToMap_StockEvent(t *testing.T) {
	ev := stockledger.StockEvent{
		ID:       id.New(),
		UnitID:   id.New(),
		Type:     stockledger.EventSold,
		Quantity: 3,
	}

	m := StructToMap(ev)
	require.NotNil(t, m)

	assert.Equal(t, ev.ID, m["id"])
	assert.Equal(t, ev.UnitID, m["unit_id"])
	assert.Equal(t, stockledger.EventSold, m["event_type"])
	assert.Equal(t, ev.Quantity, m["quantity"])
}

func TestStructToMap_EmbeddedCatalog(t *testing.T) {
	p := product.NewIndividual("CHAIR-01", "Dining Chair")

	m := StructToMap(p)
	require.NotNil(t, m)

	// Fields from the embedded entity.Catalog are flattened
	assert.Equal(t, p.ID, m["id"])
	assert.Equal(t, "CHAIR-01", m["code"])
	assert.Equal(t, "Dining Chair", m["name"])
	assert.Equal(t, product.KindIndividual, m["kind"])

	// SubProducts is tagged db:"-" and stays out
	_, ok := m["sub_products"]
	assert.False(t, ok)
}

func TestStructToMap_NonStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
	assert.Nil(t, StructToMap("nope"))
}
