package authority

import (
	"context"
	"testing"
	"time"

	"ordersync/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testOrder(id, customerID, deviceID string, updatedAt time.Time) *models.Order {
	return &models.Order{
		ID:         id,
		CustomerID: customerID,
		Status:     models.StatusSyncing,
		CreatedAt:  updatedAt,
		Lines: []models.OrderLine{
			{ID: id + "-l1", OrderID: id, ArticleID: "art-1", Quantity: 1},
		},
		SyncMeta: models.SyncMeta{UpdatedAt: updatedAt, DeviceID: deviceID},
	}
}

func TestUpsertOrderLastWriteWins(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	applied, msg, err := st.UpsertOrder(ctx, testOrder("o-1", "cust-1", "dev-a", base))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Empty(t, msg)

	// A newer version from another device replaces the stored one.
	applied, _, err = st.UpsertOrder(ctx, testOrder("o-1", "cust-2", "dev-b", base.Add(time.Second)))
	require.NoError(t, err)
	assert.True(t, applied)

	// An older version is skipped without a rejection reason.
	applied, msg, err = st.UpsertOrder(ctx, testOrder("o-1", "cust-stale", "dev-a", base))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, msg)

	orders, err := st.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "cust-2", orders[0].CustomerID)
	assert.Equal(t, "dev-b", orders[0].DeviceID)
}

// Replaying the same version (a retried batch) applies as a no-op instead of
// being reported as a conflict.
func TestUpsertOrderReplayIsApplied(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	order := testOrder("o-1", "cust-1", "dev-a", now)
	applied, _, err := st.UpsertOrder(ctx, order)
	require.NoError(t, err)
	require.True(t, applied)

	applied, msg, err := st.UpsertOrder(ctx, order)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Empty(t, msg)
}

func TestUpsertOrderValidation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	cases := []struct {
		name  string
		order *models.Order
	}{
		{"missing id", &models.Order{CustomerID: "c"}},
		{"missing customer", &models.Order{ID: "o-1"}},
		{"no lines", &models.Order{ID: "o-1", CustomerID: "c", Status: models.StatusSyncing}},
		{"bad quantity", &models.Order{ID: "o-1", CustomerID: "c", Status: models.StatusSyncing,
			Lines: []models.OrderLine{{ID: "l-1", Quantity: 0}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.order.UpdatedAt = now
			applied, msg, err := st.UpsertOrder(ctx, tc.order)
			require.NoError(t, err)
			assert.False(t, applied)
			assert.NotEmpty(t, msg)
		})
	}

	// Drafts replicate without lines.
	draft := &models.Order{ID: "o-d", CustomerID: "c", Status: models.StatusDraft,
		SyncMeta: models.SyncMeta{UpdatedAt: now}}
	applied, msg, err := st.UpsertOrder(ctx, draft)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Empty(t, msg)
}

func TestDeleteOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, _, err := st.UpsertOrder(ctx, testOrder("o-1", "cust-1", "dev-a", time.Now()))
	require.NoError(t, err)

	found, deviceID, err := st.DeleteOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "dev-a", deviceID)

	found, _, err = st.DeleteOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReplaceWarehouseItems(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, st.ReplaceWarehouseItems(ctx, []models.WarehouseItem{
		{ID: "w-1", ArticleID: "art-1", TotalQuantity: 10, UpdatedAt: now},
	}))
	require.NoError(t, st.ReplaceWarehouseItems(ctx, []models.WarehouseItem{
		{ID: "w-2", ArticleID: "art-2", TotalQuantity: 4, Container: "PAL-1", UpdatedAt: now},
	}))

	items, err := st.ListWarehouseItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "w-2", items[0].ID)
	assert.Equal(t, "PAL-1", items[0].Container)
}
