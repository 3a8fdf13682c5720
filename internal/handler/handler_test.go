package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bibliosphere/bookstore/internal/domain/order"
	"github.com/bibliosphere/bookstore/internal/domain/product"
	"github.com/bibliosphere/bookstore/internal/domain/stock"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byISBN map[string]product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	var out []product.Product
	for _, p := range m.byISBN {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockProductRepo) GetByISBN(_ context.Context, isbn string) (*product.Product, error) {
	p, ok := m.byISBN[isbn]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByISBNs(_ context.Context, isbns []string) ([]product.Product, error) {
	var out []product.Product
	for _, isbn := range isbns {
		if p, ok := m.byISBN[isbn]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) UpdatePrice(_ context.Context, isbn string, price decimal.Decimal) (*product.Product, error) {
	p, ok := m.byISBN[isbn]
	if !ok {
		return nil, product.ErrNotFound
	}
	p.Price = price
	m.byISBN[isbn] = p
	return &p, nil
}

func (m *mockProductRepo) UpdateDiscount(_ context.Context, isbn string, pct decimal.Decimal) (*product.Product, error) {
	p, ok := m.byISBN[isbn]
	if !ok {
		return nil, product.ErrNotFound
	}
	p.DiscountPercentage = pct
	m.byISBN[isbn] = p
	return &p, nil
}

type mockOrderRepo struct {
	orders map[string]*order.Order
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, email string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.orders {
		if o.UserEmail == email {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) ListByStatus(_ context.Context, status order.Status) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.orders {
		if o.Status == status {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) ListCreatedBetween(_ context.Context, from, to time.Time) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.orders {
		if !o.CreatedAt.Before(from) && o.CreatedAt.Before(to) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, from, to, origin order.Status) error {
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return order.ErrStatusConflict
	}
	o.Status = to
	o.RefundOrigin = origin
	return nil
}

type noopUserOrders struct{}

func (noopUserOrders) AppendOrder(context.Context, string, string) error { return nil }

type memStatusEntry struct {
	owner  string
	status order.Status
}

type memStatusCache struct {
	mu      sync.Mutex
	entries map[string]memStatusEntry
}

func newMemStatusCache() *memStatusCache {
	return &memStatusCache{entries: make(map[string]memStatusEntry)}
}

func (c *memStatusCache) Get(_ context.Context, orderID string) (string, order.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[orderID]
	return e.owner, e.status
}

func (c *memStatusCache) Set(_ context.Context, orderID, owner string, status order.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[orderID] = memStatusEntry{owner: owner, status: status}
}

type noopNotifier struct{}

func (noopNotifier) SendOrderReceipt(context.Context, *order.Order) error    { return nil }
func (noopNotifier) SendPlainEmail(context.Context, string, string, string) error { return nil }

// --- Helpers ---

type testServer struct {
	router      http.Handler
	orderRepo   *mockOrderRepo
	ledger      *stock.MemoryLedger
	productMap  map[string]product.Product
	statusCache *memStatusCache
}

func newTestServer(books ...product.Product) *testServer {
	byISBN := make(map[string]product.Product, len(books))
	counts := make(map[string]int, len(books))
	for _, b := range books {
		byISBN[b.ISBN] = b
		counts[b.ISBN] = b.Stock
	}

	productRepo := &mockProductRepo{byISBN: byISBN}
	orderRepo := &mockOrderRepo{orders: make(map[string]*order.Order)}
	ledger := stock.NewMemoryLedger(counts)

	lg := zap.NewNop()
	catalog := product.NewService(productRepo, staticSubscribers(nil), noopMailer{}, lg)
	orders := order.NewService(productRepo, orderRepo, ledger, noopUserOrders{}, noopNotifier{}, lg)

	statusCache := newMemStatusCache()
	h := NewHandler(productRepo, catalog, orders, statusCache)
	return &testServer{
		router:      h.Routes(),
		orderRepo:   orderRepo,
		ledger:      ledger,
		productMap:  byISBN,
		statusCache: statusCache,
	}
}

type staticSubscribers []string

func (s staticSubscribers) SubscribersFor(context.Context, string) ([]string, error) {
	return s, nil
}

type noopMailer struct{}

func (noopMailer) SendPlainEmail(context.Context, string, string, string) error { return nil }

func (ts *testServer) do(t *testing.T, method, path, email, role string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if email != "" {
		req.Header.Set("X-User-Email", email)
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func testBook(isbn, title, price string, stock int) product.Product {
	return product.Product{
		ISBN:   isbn,
		Title:  title,
		Author: "Test Author",
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
	}
}

func placementBody(items ...lineItemRequest) placeOrderRequest {
	return placeOrderRequest{
		Items:          items,
		ShippingMethod: "standard",
		ShippingInfo: order.ShippingInfo{
			FirstName: "Ada",
			LastName:  "Reader",
			Email:     "reader@example.com",
			Address:   "1 Library Way",
			City:      "Booktown",
			ZipCode:   "12345",
		},
	}
}

const buyerEmail = "reader@example.com"

// --- Catalog ---

func TestListProductsEndpoint(t *testing.T) {
	ts := newTestServer(testBook("b1", "Dune", "10.00", 5))

	rec := ts.do(t, http.MethodGet, "/products", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decodeBody[[]productResponse](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "b1", list[0].ISBN)
	assert.Equal(t, 10.0, list[0].Price)
	assert.Equal(t, 10.0, list[0].DiscountedPrice)
	assert.Equal(t, 5, list[0].Stock)
}

func TestGetProductEndpoint_NotFound(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodGet, "/products/ghost", "", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProductEndpoint_DiscountedPrice(t *testing.T) {
	book := testBook("b1", "Dune", "20.00", 5)
	book.DiscountPercentage = decimal.RequireFromString("25")
	ts := newTestServer(book)

	rec := ts.do(t, http.MethodGet, "/products/b1", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	p := decodeBody[productResponse](t, rec)
	assert.Equal(t, 20.0, p.Price)
	assert.Equal(t, 25.0, p.DiscountPercentage)
	assert.Equal(t, 15.0, p.DiscountedPrice)
}

// --- Identity ---

func TestOrdersRequireIdentity(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodGet, "/orders", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/orders", "", "", placementBody())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// --- Placement ---

func TestPlaceOrderEndpoint(t *testing.T) {
	ts := newTestServer(testBook("b1", "Dune", "10.00", 5))

	rec := ts.do(t, http.MethodPost, "/orders", buyerEmail, "", placementBody(
		lineItemRequest{ISBN: "b1", Quantity: 2},
	))
	require.Equal(t, http.StatusCreated, rec.Code)

	o := decodeBody[orderResponse](t, rec)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, buyerEmail, o.UserEmail)
	assert.Equal(t, "PROCESSED", o.Status)
	assert.Equal(t, 20.0, o.Subtotal)
	assert.Equal(t, 5.0, o.ShippingCost)
	assert.Equal(t, 25.0, o.Total)
	assert.Equal(t, 3, ts.ledger.Stock("b1"))
}

func TestPlaceOrderEndpoint_OutOfStock(t *testing.T) {
	ts := newTestServer(testBook("b1", "Dune", "10.00", 1))

	rec := ts.do(t, http.MethodPost, "/orders", buyerEmail, "", placementBody(
		lineItemRequest{ISBN: "b1", Quantity: 2},
	))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Dune")
}

func TestPlaceOrderEndpoint_EmptyItems(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/orders", buyerEmail, "", placementBody())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrderEndpoint_UnknownProduct(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/orders", buyerEmail, "", placementBody(
		lineItemRequest{ISBN: "ghost", Quantity: 1},
	))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlaceOrderEndpoint_BadJSON(t *testing.T) {
	ts := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString("{"))
	req.Header.Set("X-User-Email", buyerEmail)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Lifecycle ---

func (ts *testServer) seedOrder(o order.Order) {
	cp := o
	ts.orderRepo.orders[o.ID] = &cp
}

func seededOrder(id, email string, status order.Status) order.Order {
	return order.Order{
		ID:        id,
		UserEmail: email,
		Items:     []order.Item{{ISBN: "b1", Title: "Dune", Price: decimal.RequireFromString("10.00"), Quantity: 1}},
		Subtotal:  decimal.RequireFromString("10.00"),
		Total:     decimal.RequireFromString("15.00"),
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCancelEndpoint(t *testing.T) {
	ts := newTestServer(testBook("b1", "Dune", "10.00", 3))
	ts.seedOrder(seededOrder("o1", buyerEmail, order.StatusProcessed))

	rec := ts.do(t, http.MethodPatch, "/orders/o1/cancel", buyerEmail, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	o := decodeBody[orderResponse](t, rec)
	assert.Equal(t, "REFUND_PENDING", o.Status)
}

func TestCancelEndpoint_NotOwner(t *testing.T) {
	ts := newTestServer()
	ts.seedOrder(seededOrder("o1", buyerEmail, order.StatusProcessed))

	rec := ts.do(t, http.MethodPatch, "/orders/o1/cancel", "stranger@example.com", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRefundEndpoint_WindowExpired(t *testing.T) {
	ts := newTestServer()
	o := seededOrder("o1", buyerEmail, order.StatusDelivered)
	o.CreatedAt = time.Now().UTC().Add(-40 * 24 * time.Hour)
	ts.seedOrder(o)

	rec := ts.do(t, http.MethodPatch, "/orders/o1/refund", buyerEmail, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "30 days")
}

func TestSetStatusEndpoint(t *testing.T) {
	ts := newTestServer()
	ts.seedOrder(seededOrder("o1", buyerEmail, order.StatusProcessed))

	rec := ts.do(t, http.MethodPatch, "/orders/o1/status", buyerEmail, "", map[string]string{"status": "TRANSFER"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TRANSFER", decodeBody[orderResponse](t, rec).Status)

	rec = ts.do(t, http.MethodPatch, "/orders/o1/status", buyerEmail, "", map[string]string{"status": "SHIPPED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/orders/o1/status", buyerEmail, "", map[string]string{"status": "REFUND_PENDING"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrderStatusEndpoint(t *testing.T) {
	ts := newTestServer()
	ts.seedOrder(seededOrder("o1", buyerEmail, order.StatusTransfer))

	rec := ts.do(t, http.MethodGet, "/orders/o1/status", buyerEmail, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "TRANSFER"}, decodeBody[map[string]string](t, rec))
}

func TestGetOrderStatusEndpoint_CachedHitStillAuthorized(t *testing.T) {
	ts := newTestServer()
	ts.seedOrder(seededOrder("o1", buyerEmail, order.StatusProcessed))
	ts.statusCache.Set(context.Background(), "o1", buyerEmail, order.StatusProcessed)

	rec := ts.do(t, http.MethodGet, "/orders/o1/status", "stranger@example.com", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/orders/o1/status", buyerEmail, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PROCESSED", decodeBody[map[string]string](t, rec)["status"])

	rec = ts.do(t, http.MethodGet, "/orders/o1/status", "boss@example.com", "manager", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetOrderStatusEndpoint_CachedEntryOutlivesOrder(t *testing.T) {
	ts := newTestServer()
	ts.statusCache.Set(context.Background(), "ghost", buyerEmail, order.StatusDelivered)

	rec := ts.do(t, http.MethodGet, "/orders/ghost/status", "stranger@example.com", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- Refund workflow ---

func TestPendingRefundsEndpoint_ManagerOnly(t *testing.T) {
	ts := newTestServer()
	o := seededOrder("o1", buyerEmail, order.StatusRefundPending)
	o.RefundOrigin = order.StatusProcessed
	ts.seedOrder(o)

	rec := ts.do(t, http.MethodGet, "/orders/refunds/pending", buyerEmail, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/orders/refunds/pending", "boss@example.com", "manager", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]orderResponse](t, rec), 1)
}

func TestResolveRefundEndpoint(t *testing.T) {
	ts := newTestServer(testBook("b1", "Dune", "10.00", 3))
	o := seededOrder("o1", buyerEmail, order.StatusRefundPending)
	o.RefundOrigin = order.StatusProcessed
	ts.seedOrder(o)

	rec := ts.do(t, http.MethodPatch, "/orders/refunds/o1?action=accept", "boss@example.com", "manager", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", decodeBody[orderResponse](t, rec).Status)
	assert.Equal(t, 4, ts.ledger.Stock("b1"))
}

func TestResolveRefundEndpoint_BadAction(t *testing.T) {
	ts := newTestServer()
	ts.seedOrder(seededOrder("o1", buyerEmail, order.StatusRefundPending))

	rec := ts.do(t, http.MethodPatch, "/orders/refunds/o1?action=maybe", "boss@example.com", "manager", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Sales manager ---

func TestUpdatePriceEndpoint(t *testing.T) {
	ts := newTestServer(testBook("b1", "Dune", "10.00", 5))

	rec := ts.do(t, http.MethodPut, "/sales-manager/products/b1/price", buyerEmail, "", map[string]float64{"price": 12.5})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPut, "/sales-manager/products/b1/price", "boss@example.com", "manager", map[string]float64{"price": 12.5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 12.5, decodeBody[productResponse](t, rec).Price)

	rec = ts.do(t, http.MethodPut, "/sales-manager/products/b1/price", "boss@example.com", "manager", map[string]float64{"price": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateDiscountEndpoint(t *testing.T) {
	ts := newTestServer(testBook("b1", "Dune", "20.00", 5))

	rec := ts.do(t, http.MethodPut, "/sales-manager/products/b1/discount", "boss@example.com", "manager", map[string]float64{"discount": 25})
	require.Equal(t, http.StatusOK, rec.Code)

	p := decodeBody[productResponse](t, rec)
	assert.Equal(t, 25.0, p.DiscountPercentage)
	assert.Equal(t, 15.0, p.DiscountedPrice)

	rec = ts.do(t, http.MethodPut, "/sales-manager/products/b1/discount", "boss@example.com", "manager", map[string]float64{"discount": 120})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrdersInRangeEndpoint(t *testing.T) {
	ts := newTestServer()
	o := seededOrder("o1", buyerEmail, order.StatusDelivered)
	o.CreatedAt = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ts.seedOrder(o)

	rec := ts.do(t, http.MethodGet, "/sales-manager/orders?start=2026-03-01&end=2026-04-01", buyerEmail, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/sales-manager/orders?start=2026-03-01&end=2026-04-01", "boss@example.com", "manager", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Orders  []orderResponse `json:"orders"`
		Revenue float64         `json:"revenue"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Orders, 1)
	assert.Equal(t, 15.0, body.Revenue)

	rec = ts.do(t, http.MethodGet, "/sales-manager/orders?start=March&end=2026-04-01", "boss@example.com", "manager", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
