package sync

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"ordersync/internal/authority"
	"ordersync/internal/lifecycle"
	"ordersync/internal/models"
	"ordersync/internal/remote"
	"ordersync/internal/store"
	"ordersync/internal/warehouse"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newAuthority spins up a real authority server over an in-memory database.
func newAuthority(t *testing.T) (*authority.Store, *httptest.Server) {
	t.Helper()
	as, err := authority.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { as.Close() })

	router := gin.New()
	authority.NewServer(as, nil, nil, "").SetupRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return as, srv
}

// device bundles one simulated field device: its own local store, lifecycle
// and engine, all pointed at the shared authority.
type device struct {
	store     *store.Store
	lifecycle *lifecycle.Service
	engine    *Engine
}

func newDevice(t *testing.T, baseURL, deviceID string) *device {
	t.Helper()
	st, err := store.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	lc := lifecycle.NewService(st, warehouse.NewManager(st), nil, deviceID)
	rc := remote.NewClient(baseURL, remote.StaticToken(""), 5*time.Second)
	return &device{store: st, lifecycle: lc, engine: NewEngine(st, lc, rc)}
}

func (d *device) createOrder(t *testing.T, customerID string) *models.Order {
	t.Helper()
	order, _, err := d.lifecycle.Create(context.Background(), &lifecycle.CreateOrderRequest{
		CustomerID: customerID,
		Lines: []lifecycle.LineRequest{
			{ArticleID: "art-1", Quantity: 2, UnitPrice: decimal.RequireFromString("9.90")},
		},
	})
	require.NoError(t, err)
	return order
}

func TestPassPushesDirtyOrder(t *testing.T) {
	as, srv := newAuthority(t)
	dev := newDevice(t, srv.URL, "dev-a")
	ctx := context.Background()

	order := dev.createOrder(t, "cust-1")
	require.NoError(t, dev.engine.RunPass(ctx))

	got, err := dev.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.False(t, got.NeedsSync)

	stored, err := as.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, order.ID, stored[0].ID)
	assert.Equal(t, "cust-1", stored[0].CustomerID)
	assert.Equal(t, "dev-a", stored[0].DeviceID)
}

// Re-running a pass with nothing dirty must not touch the authority and must
// not regress the local copy.
func TestPassIsIdempotent(t *testing.T) {
	as, srv := newAuthority(t)
	dev := newDevice(t, srv.URL, "dev-a")
	ctx := context.Background()

	order := dev.createOrder(t, "cust-1")
	require.NoError(t, dev.engine.RunPass(ctx))
	require.NoError(t, dev.engine.RunPass(ctx))
	require.NoError(t, dev.engine.RunPass(ctx))

	got, err := dev.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.False(t, got.NeedsSync)

	stored, err := as.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

// Two devices writing the same order id converge to the newest version.
func TestTwoDevicesConverge(t *testing.T) {
	_, srv := newAuthority(t)
	devA := newDevice(t, srv.URL, "dev-a")
	devB := newDevice(t, srv.URL, "dev-b")
	ctx := context.Background()

	order := devA.createOrder(t, "cust-1")
	require.NoError(t, devA.engine.RunPass(ctx))

	// B pulls A's order.
	require.NoError(t, devB.engine.RunPass(ctx))
	pulled, err := devB.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", pulled.CustomerID)
	assert.False(t, pulled.NeedsSync)

	// B edits the order and pushes a newer version.
	pulled.CustomerID = "cust-2"
	pulled.Status = models.StatusPending
	pulled.NeedsSync = true
	pulled.UpdatedAt = pulled.UpdatedAt.Add(time.Second)
	require.NoError(t, devB.store.SaveOrder(ctx, pulled))
	require.NoError(t, devB.engine.RunPass(ctx))

	// A converges to B's version.
	require.NoError(t, devA.engine.RunPass(ctx))
	merged, err := devA.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "cust-2", merged.CustomerID)
	assert.False(t, merged.NeedsSync)
}

// A dirty local copy is never clobbered by pull, even by a newer remote
// version, and an outdated push is skipped without an error state.
func TestDirtyLocalProtected(t *testing.T) {
	as, srv := newAuthority(t)
	dev := newDevice(t, srv.URL, "dev-a")
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)

	newer := &models.Order{
		ID: "o-1", CustomerID: "remote-cust", Status: models.StatusCompleted,
		CreatedAt: base,
		Lines:     []models.OrderLine{{ID: "l-1", OrderID: "o-1", ArticleID: "a", Quantity: 1}},
		SyncMeta:  models.SyncMeta{UpdatedAt: base.Add(time.Hour), DeviceID: "dev-b"},
	}
	applied, _, err := as.UpsertOrder(ctx, newer)
	require.NoError(t, err)
	require.True(t, applied)

	local := &models.Order{
		ID: "o-1", CustomerID: "local-cust", Status: models.StatusPending,
		CreatedAt: base,
		Lines:     []models.OrderLine{{ID: "l-2", OrderID: "o-1", ArticleID: "a", Quantity: 1}},
		SyncMeta:  models.SyncMeta{UpdatedAt: base, NeedsSync: true, DeviceID: "dev-a"},
	}
	require.NoError(t, dev.store.SaveOrder(ctx, local))

	require.NoError(t, dev.engine.RunPass(ctx))

	// Push was skipped (stored copy strictly newer, no rejection reason) and
	// pull must not overwrite the dirty local copy.
	got, err := dev.store.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "local-cust", got.CustomerID)
	assert.True(t, got.NeedsSync)
	assert.NotEqual(t, models.StatusError, got.Status)

	stored, err := as.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "remote-cust", stored[0].CustomerID)
}

func TestTombstonePushRemovesBothSides(t *testing.T) {
	as, srv := newAuthority(t)
	dev := newDevice(t, srv.URL, "dev-a")
	ctx := context.Background()

	order := dev.createOrder(t, "cust-1")
	require.NoError(t, dev.engine.RunPass(ctx))

	require.NoError(t, dev.store.TombstoneOrder(ctx, order.ID, time.Now()))
	require.NoError(t, dev.engine.RunPass(ctx))

	_, err := dev.store.GetOrder(ctx, order.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	stored, err := as.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

// Deleting an order the authority never saw still resolves: the remote 404
// counts as acknowledgement and the local tombstone is dropped.
func TestTombstoneForUnknownRemoteOrder(t *testing.T) {
	_, srv := newAuthority(t)
	dev := newDevice(t, srv.URL, "dev-a")
	ctx := context.Background()

	order := dev.createOrder(t, "cust-1")
	require.NoError(t, dev.lifecycle.Delete(ctx, order.ID))
	require.NoError(t, dev.engine.RunPass(ctx))

	_, err := dev.store.GetOrder(ctx, order.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// An upsert the authority rejects with a reason parks the order in ERROR;
// later passes leave it alone until a manual retry.
func TestRejectedUpsertParksOrderInError(t *testing.T) {
	as, srv := newAuthority(t)
	dev := newDevice(t, srv.URL, "dev-a")
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	invalid := &models.Order{
		ID: "o-1", CustomerID: "cust-1", Status: models.StatusPending,
		CreatedAt: now,
		SyncMeta:  models.SyncMeta{UpdatedAt: now, NeedsSync: true, DeviceID: "dev-a"},
	}
	require.NoError(t, dev.store.SaveOrder(ctx, invalid))

	require.NoError(t, dev.engine.RunPass(ctx))

	got, err := dev.store.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
	assert.True(t, got.NeedsSync)

	// The next pass excludes it from push.
	require.NoError(t, dev.engine.RunPass(ctx))
	stored, err := as.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	got, err = dev.store.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
}

// A record present locally but absent remotely is left alone; the remote
// list is not authoritative for absence.
func TestRemoteAbsenceNeverDeletesLocally(t *testing.T) {
	_, srv := newAuthority(t)
	dev := newDevice(t, srv.URL, "dev-a")
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	synced := &models.Order{
		ID: "o-1", CustomerID: "cust-1", Status: models.StatusCompleted,
		CreatedAt: now,
		Lines:     []models.OrderLine{{ID: "l-1", OrderID: "o-1", ArticleID: "a", Quantity: 1}},
		SyncMeta:  models.SyncMeta{UpdatedAt: now, DeviceID: "dev-a"},
	}
	require.NoError(t, dev.store.SaveOrder(ctx, synced))

	require.NoError(t, dev.engine.RunPass(ctx))

	got, err := dev.store.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", got.CustomerID)
}

func TestWarehouseReplicaReplacedOnPull(t *testing.T) {
	as, srv := newAuthority(t)
	dev := newDevice(t, srv.URL, "dev-a")
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, as.ReplaceWarehouseItems(ctx, []models.WarehouseItem{
		{ID: "w-1", ArticleID: "art-1", TotalQuantity: 10, UpdatedAt: now},
		{ID: "w-2", ArticleID: "art-2", TotalQuantity: 5, UpdatedAt: now},
	}))
	require.NoError(t, dev.engine.RunPass(ctx))

	items, err := dev.store.ListWarehouseItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	// A new snapshot fully replaces the replica, including removals.
	require.NoError(t, as.ReplaceWarehouseItems(ctx, []models.WarehouseItem{
		{ID: "w-3", ArticleID: "art-3", TotalQuantity: 7, UpdatedAt: now},
	}))
	require.NoError(t, dev.engine.RunPass(ctx))

	items, err = dev.store.ListWarehouseItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "w-3", items[0].ID)
}

func TestPassFailsWithBadCredentials(t *testing.T) {
	as, err := authority.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { as.Close() })

	router := gin.New()
	authority.NewServer(as, nil, nil, "server-secret").SetupRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	st, err := store.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	lc := lifecycle.NewService(st, warehouse.NewManager(st), nil, "dev-a")
	rc := remote.NewClient(srv.URL, remote.StaticToken("wrong"), 5*time.Second)
	engine := NewEngine(st, lc, rc)

	assert.Error(t, engine.RunPass(context.Background()))
}
