package authority

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, token string) (*Store, *httptest.Server) {
	t.Helper()
	st := newTestStore(t)

	router := gin.New()
	NewServer(st, nil, nil, token).SetupRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return st, srv
}

func TestBearerAuth(t *testing.T) {
	_, srv := newTestServer(t, "secret")

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/sync/pending-orders", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health stays open without a token.
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestImportWarehouseItemsEndpoint(t *testing.T) {
	st, srv := newTestServer(t, "")

	csv := strings.Join([]string{
		"id,article_id,total_quantity,container",
		"w-1,art-1,25,PAL-3",
		"w-2,art-2,8,",
	}, "\n")

	resp, err := http.Post(srv.URL+"/api/admin/warehouse-items", "text/csv", strings.NewReader(csv))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	items, err := st.ListWarehouseItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 25, items[0].TotalQuantity)
}

func TestImportRejectsBadFile(t *testing.T) {
	st, srv := newTestServer(t, "")

	resp, err := http.Post(srv.URL+"/api/admin/warehouse-items", "text/csv",
		strings.NewReader("id,article_id\nw-1,art-1\n"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	items, err := st.ListWarehouseItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDeleteOrderEndpointNotFound(t *testing.T) {
	_, srv := newTestServer(t, "")

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/sync/pending-orders/ghost", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
