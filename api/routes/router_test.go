package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/procurement-backend/api/middleware"
	"github.com/angelmondragon/procurement-backend/internal/fundingaccounts"
	"github.com/angelmondragon/procurement-backend/internal/purchaseorders"
	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/metrics"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type memoryCache struct {
	stubPinger
	mu   sync.Mutex
	data map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]string{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryCache) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

// stubOrders embeds the interface so only exercised methods need bodies.
type stubOrders struct {
	purchaseorders.Service
	creates int
}

func (s *stubOrders) Create(ctx context.Context, actor string, input purchaseorders.CreateInput) (*purchaseorders.OrderSummary, error) {
	s.creates++
	return &purchaseorders.OrderSummary{ID: uuid.New(), CreatedBy: actor}, nil
}

func (s *stubOrders) Get(ctx context.Context, id uuid.UUID) (*purchaseorders.OrderSummary, error) {
	return &purchaseorders.OrderSummary{ID: id}, nil
}

type stubAccounts struct {
	fundingaccounts.Service
}

func (stubAccounts) Get(ctx context.Context, id uuid.UUID) (*models.FundingAccount, error) {
	return &models.FundingAccount{ID: id}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Env:         "test",
			CORSOrigins: []string{"http://localhost:3000"},
		},
	}
}

type testRouter struct {
	handler http.Handler
	orders  *stubOrders
	reg     *prometheus.Registry
}

func newTestRouter(t *testing.T, cache cacheStore) testRouter {
	t.Helper()
	reg := prometheus.NewRegistry()
	orders := &stubOrders{}
	h := NewRouter(
		testConfig(),
		logger.New(logger.Options{ServiceName: "routes-test", Output: io.Discard}),
		stubPinger{},
		cache,
		metrics.NewHTTPMetrics(reg),
		reg,
		orders,
		stubAccounts{},
	)
	return testRouter{handler: h, orders: orders, reg: reg}
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createRequest(key string) *http.Request {
	body := `{"supplier_id":"` + uuid.NewString() + `","lines":[{"catalog_item_id":"SKU","ordered_quantity":1,"unit_cost":"1.00"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchase-orders", strings.NewReader(body))
	req.Header.Set(middleware.ActorHeader, "buyer-1")
	req.Header.Set(middleware.IdempotencyHeader, key)
	return req
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(t, newMemoryCache())

	assert.Equal(t, http.StatusOK, serve(router.handler, httptest.NewRequest(http.MethodGet, "/health/live", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(router.handler, httptest.NewRequest(http.MethodGet, "/health/ready", nil)).Code)
}

func TestReadyFailsWhenRedisDown(t *testing.T) {
	cache := newMemoryCache()
	cache.err = fmt.Errorf("dial tcp: refused")
	router := newTestRouter(t, cache)

	rec := serve(router.handler, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMutationRequiresActor(t *testing.T) {
	router := newTestRouter(t, newMemoryCache())
	req := createRequest("k1")
	req.Header.Del(middleware.ActorHeader)

	rec := serve(router.handler, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, router.orders.creates)
}

func TestCreateIsIdempotentEndToEnd(t *testing.T) {
	router := newTestRouter(t, newMemoryCache())

	first := serve(router.handler, createRequest("order-1"))
	require.Equal(t, http.StatusCreated, first.Code)

	// a different supplier id changes the body hash
	second := serve(router.handler, createRequest("order-1"))
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, "IDEMPOTENCY_CONFLICT", second.Header().Get("X-Error-Code"))
	assert.Equal(t, 1, router.orders.creates)
}

func TestReadsAreAnonymous(t *testing.T) {
	router := newTestRouter(t, newMemoryCache())
	id := uuid.New()

	rec := serve(router.handler, httptest.NewRequest(http.MethodGet, "/api/v1/purchase-orders/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id.String())

	rec = serve(router.handler, httptest.NewRequest(http.MethodGet, "/api/v1/funding-accounts/"+id.String(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointExposesRouteCounters(t *testing.T) {
	router := newTestRouter(t, newMemoryCache())
	serve(router.handler, httptest.NewRequest(http.MethodGet, "/api/v1/purchase-orders/"+uuid.NewString(), nil))

	rec := serve(router.handler, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/v1/purchase-orders/{orderID}`)
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, newMemoryCache())
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/purchase-orders", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", middleware.ActorHeader)

	rec := serve(router.handler, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	router := newTestRouter(t, newMemoryCache())
	rec := serve(router.handler, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
