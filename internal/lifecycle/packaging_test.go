package lifecycle

import (
	"context"
	"testing"

	"ordersync/internal/models"
	"ordersync/internal/store"
	"ordersync/internal/warehouse"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// splitResolver expands every line into a carton variant and a single-unit
// variant sharing the input's group key.
type splitResolver struct{}

func (splitResolver) Resolve(_ context.Context, line models.OrderLine) ([]models.OrderLine, error) {
	carton := line
	carton.Description = line.Description + " (carton)"

	single := line
	single.ID = ""
	single.Description = line.Description + " (single)"
	single.WarehouseQuantity = 0
	single.WarehouseItemID = ""

	return []models.OrderLine{carton, single}, nil
}

func TestTransferGroupHolds(t *testing.T) {
	oldLines := []models.OrderLine{
		{GroupKey: "g-1", Quantity: 6, WarehouseQuantity: 4, WarehouseItemID: "w-1", HoldsReservation: true},
		{GroupKey: "g-1", Quantity: 2},
	}

	t.Run("promotes surviving sibling", func(t *testing.T) {
		newLines := []models.OrderLine{
			{GroupKey: "g-1", Quantity: 3},
		}
		transferGroupHolds(oldLines, newLines)

		assert.True(t, newLines[0].HoldsReservation)
		assert.Equal(t, "w-1", newLines[0].WarehouseItemID)
		// Inherited quantity is capped at the line's own quantity.
		assert.Equal(t, 3, newLines[0].WarehouseQuantity)
	})

	t.Run("existing holder untouched", func(t *testing.T) {
		newLines := []models.OrderLine{
			{GroupKey: "g-1", Quantity: 6, WarehouseQuantity: 2, WarehouseItemID: "w-2", HoldsReservation: true},
			{GroupKey: "g-1", Quantity: 1},
		}
		transferGroupHolds(oldLines, newLines)

		assert.Equal(t, "w-2", newLines[0].WarehouseItemID)
		assert.Equal(t, 2, newLines[0].WarehouseQuantity)
		assert.False(t, newLines[1].HoldsReservation)
	})

	t.Run("foreign groups ignored", func(t *testing.T) {
		newLines := []models.OrderLine{
			{GroupKey: "g-2", Quantity: 5},
		}
		transferGroupHolds(oldLines, newLines)

		assert.False(t, newLines[0].HoldsReservation)
		assert.Zero(t, newLines[0].WarehouseQuantity)
	})
}

func TestResolverVariantsShareGroup(t *testing.T) {
	st, err := store.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.ReplaceWarehouseItems(context.Background(), []models.WarehouseItem{
		{ID: "w-1", ArticleID: "art-1", TotalQuantity: 10},
	}))

	wm := warehouse.NewManager(st)
	svc := NewService(st, wm, splitResolver{}, "dev-test")
	ctx := context.Background()

	order, res, err := svc.Create(ctx, &CreateOrderRequest{
		CustomerID: "cust-1",
		Lines: []LineRequest{
			{ArticleID: "art-1", Quantity: 6, UnitPrice: price("1"), WarehouseQuantity: 4, WarehouseItemID: "w-1"},
		},
	})
	require.NoError(t, err)
	require.True(t, res.AllReserved())

	got, err := st.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)

	// Both variants carry the group key, exactly one holds the reservation.
	assert.Equal(t, got.Lines[0].GroupKey, got.Lines[1].GroupKey)
	holders := 0
	for _, l := range got.Lines {
		if l.HoldsReservation {
			holders++
			assert.Equal(t, 4, l.WarehouseQuantity)
		}
	}
	assert.Equal(t, 1, holders)

	holds, err := st.ReservationsByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, got.Lines[0].GroupKey, holds[0].GroupKey)
}
