package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/go_storefront/internal/checkout"
	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCartService struct {
	cart        *domain.Cart
	getErr      error
	addErr      error
	removeErr   error
	updateErr   error
	violations  []repository.InventoryViolation
	available   int
	lastAdd     AddItemRequestDTO
	removedProd int64
	removedQty  int
}

func (m *mockCartService) GetCart(_ context.Context, userID int64) (*domain.Cart, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.cart != nil {
		return m.cart, nil
	}
	return &domain.Cart{UserID: userID}, nil
}

func (m *mockCartService) AddToCart(_ context.Context, _, productID, variantID int64, quantity int) error {
	m.lastAdd = AddItemRequestDTO{ProductID: productID, VariantID: variantID, Quantity: quantity}
	return m.addErr
}

func (m *mockCartService) RemoveFromCart(_ context.Context, _, productID, _ int64, quantity int) error {
	m.removedProd = productID
	m.removedQty = quantity
	return m.removeErr
}

func (m *mockCartService) UpdateQuantities(_ context.Context, _ int64, _ []repository.QuantityUpdate) error {
	return m.updateErr
}

func (m *mockCartService) ValidateInventory(_ context.Context, _ int64) ([]repository.InventoryViolation, error) {
	return m.violations, nil
}

func (m *mockCartService) Availability(_ context.Context, _, _ int64) (int, error) {
	return m.available, nil
}

type mockCheckoutService struct {
	summary *checkout.Summary
	order   *domain.Order
	initErr error
	payErr  error
}

func (m *mockCheckoutService) InitializeCheckout(_ context.Context, _ int64) (*checkout.Summary, error) {
	if m.initErr != nil {
		return nil, m.initErr
	}
	return m.summary, nil
}

func (m *mockCheckoutService) ProcessPayment(_ context.Context, _ int64, _, _ string, _ map[string]string) (*domain.Order, error) {
	if m.payErr != nil {
		return nil, m.payErr
	}
	return m.order, nil
}

type mockOrderReader struct {
	order *domain.Order
	list  []*domain.Order
	err   error
}

func (m *mockOrderReader) GetOrderByID(_ context.Context, _ uuid.UUID) (*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

func (m *mockOrderReader) ListOrdersByUserID(_ context.Context, _ int64) ([]*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.list, nil
}

func newTestRouter(carts *mockCartService, checkouts *mockCheckoutService, orders *mockOrderReader) http.Handler {
	if carts == nil {
		carts = &mockCartService{}
	}
	if checkouts == nil {
		checkouts = &mockCheckoutService{}
	}
	if orders == nil {
		orders = &mockOrderReader{}
	}
	return NewRouter(carts, checkouts, orders, 5*time.Second)
}

func doRequest(t *testing.T, h http.Handler, method, target, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetCart_Unauthorized(t *testing.T) {
	rec := doRequest(t, newTestRouter(nil, nil, nil), http.MethodGet, "/api/v1/cart/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetCart_Success(t *testing.T) {
	svc := &mockCartService{cart: &domain.Cart{
		UserID: 7,
		Items:  []domain.CartItem{{ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(10)}},
	}}
	rec := doRequest(t, newTestRouter(svc, nil, nil), http.MethodGet, "/api/v1/cart/", "7", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var cart domain.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cart))
	assert.Equal(t, int64(7), cart.UserID)
	assert.Len(t, cart.Items, 1)
}

func TestAddItem_Success(t *testing.T) {
	svc := &mockCartService{}
	rec := doRequest(t, newTestRouter(svc, nil, nil), http.MethodPost, "/api/v1/cart/items", "7",
		AddItemRequestDTO{ProductID: 42, VariantID: 3, Quantity: 2})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(42), svc.lastAdd.ProductID)
	assert.Equal(t, int64(3), svc.lastAdd.VariantID)
	assert.Equal(t, 2, svc.lastAdd.Quantity)
}

func TestAddItem_RejectsBadQuantity(t *testing.T) {
	tests := []struct {
		name string
		req  AddItemRequestDTO
	}{
		{"zero quantity", AddItemRequestDTO{ProductID: 1, Quantity: 0}},
		{"negative quantity", AddItemRequestDTO{ProductID: 1, Quantity: -2}},
		{"missing product", AddItemRequestDTO{Quantity: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, newTestRouter(nil, nil, nil), http.MethodPost, "/api/v1/cart/items", "7", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAddItem_LargeQuantityReachesService(t *testing.T) {
	// Inventory is the only quantity ceiling; the handler must not impose its own.
	svc := &mockCartService{}
	rec := doRequest(t, newTestRouter(svc, nil, nil), http.MethodPost, "/api/v1/cart/items", "7",
		AddItemRequestDTO{ProductID: 42, Quantity: 500})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 500, svc.lastAdd.Quantity)
}

func TestAddItem_InsufficientInventoryMapsToConflict(t *testing.T) {
	svc := &mockCartService{addErr: repository.ErrInsufficientInventory}
	rec := doRequest(t, newTestRouter(svc, nil, nil), http.MethodPost, "/api/v1/cart/items", "7",
		AddItemRequestDTO{ProductID: 1, Quantity: 5})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRemoveItem_Success(t *testing.T) {
	svc := &mockCartService{}
	rec := doRequest(t, newTestRouter(svc, nil, nil), http.MethodDelete, "/api/v1/cart/items/42?quantity=3", "7", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(42), svc.removedProd)
	assert.Equal(t, 3, svc.removedQty)
}

func TestRemoveItem_DefaultsQuantityToOne(t *testing.T) {
	svc := &mockCartService{}
	rec := doRequest(t, newTestRouter(svc, nil, nil), http.MethodDelete, "/api/v1/cart/items/42", "7", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, svc.removedQty)
}

func TestRemoveItem_NotFoundMapsTo404(t *testing.T) {
	svc := &mockCartService{removeErr: repository.ErrItemNotFound}
	rec := doRequest(t, newTestRouter(svc, nil, nil), http.MethodDelete, "/api/v1/cart/items/42", "7", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateQuantities_EmptyBodyRejected(t *testing.T) {
	rec := doRequest(t, newTestRouter(nil, nil, nil), http.MethodPut, "/api/v1/cart/items", "7",
		UpdateQuantitiesRequestDTO{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateQuantities_InvalidQuantityMapsTo400(t *testing.T) {
	svc := &mockCartService{updateErr: repository.ErrInvalidQuantity}
	rec := doRequest(t, newTestRouter(svc, nil, nil), http.MethodPut, "/api/v1/cart/items", "7",
		UpdateQuantitiesRequestDTO{Updates: []QuantityUpdateDTO{{ItemID: "abc", Quantity: 0}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvailability_Success(t *testing.T) {
	svc := &mockCartService{available: 7}
	rec := doRequest(t, newTestRouter(svc, nil, nil), http.MethodGet, "/api/v1/products/42/availability?variant_id=3", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AvailabilityResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.ProductID)
	assert.Equal(t, int64(3), resp.VariantID)
	assert.Equal(t, 7, resp.Available)
}

func TestCheckoutInitialize_Success(t *testing.T) {
	svc := &mockCheckoutService{summary: &checkout.Summary{
		Subtotal: decimal.NewFromInt(200),
		Shipping: decimal.NewFromInt(50),
		Tax:      decimal.NewFromInt(20),
		Total:    decimal.NewFromInt(270),
	}}
	rec := doRequest(t, newTestRouter(nil, svc, nil), http.MethodPost, "/api/v1/checkout/", "7", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var summary checkout.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.True(t, summary.Total.Equal(decimal.NewFromInt(270)))
}

func TestCheckoutInitialize_EmptyCartMapsTo400(t *testing.T) {
	svc := &mockCheckoutService{initErr: checkout.ErrEmptyCart}
	rec := doRequest(t, newTestRouter(nil, svc, nil), http.MethodPost, "/api/v1/checkout/", "7", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessPayment_RequiresMethodAndAddress(t *testing.T) {
	router := newTestRouter(nil, nil, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/checkout/payment", "7",
		ProcessPaymentRequestDTO{ShippingAddress: "1 Main St"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/checkout/payment", "7",
		ProcessPaymentRequestDTO{Method: "credit_card"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessPayment_Success(t *testing.T) {
	orderID := uuid.New()
	svc := &mockCheckoutService{
		summary: &checkout.Summary{Total: decimal.NewFromInt(270)},
		order:   &domain.Order{ID: orderID, UserID: 7, Status: domain.OrderStatusPaid},
	}
	router := newTestRouter(nil, svc, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/checkout/", "7", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/checkout/payment", "7",
		ProcessPaymentRequestDTO{ShippingAddress: "1 Main St", Method: "credit_card"})

	require.Equal(t, http.StatusCreated, rec.Code)
	var order domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, orderID, order.ID)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
}

func TestProcessPayment_DeclinedMapsTo402(t *testing.T) {
	svc := &mockCheckoutService{
		summary: &checkout.Summary{Total: decimal.NewFromInt(270)},
		payErr:  checkout.ErrCheckoutFailed,
	}
	router := newTestRouter(nil, svc, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/checkout/", "7", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/checkout/payment", "7",
		ProcessPaymentRequestDTO{ShippingAddress: "1 Main St", Method: "credit_card"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestProcessPayment_WithoutInitializeRejected(t *testing.T) {
	svc := &mockCheckoutService{
		order: &domain.Order{ID: uuid.New(), UserID: 7, Status: domain.OrderStatusPaid},
	}
	rec := doRequest(t, newTestRouter(nil, svc, nil), http.MethodPost, "/api/v1/checkout/payment", "7",
		ProcessPaymentRequestDTO{ShippingAddress: "1 Main St", Method: "credit_card"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_checkout_stage", resp.Code)
}

func TestProcessPayment_CompletedFlowRequiresReinitialize(t *testing.T) {
	svc := &mockCheckoutService{
		summary: &checkout.Summary{Total: decimal.NewFromInt(270)},
		order:   &domain.Order{ID: uuid.New(), UserID: 7, Status: domain.OrderStatusPaid},
	}
	router := newTestRouter(nil, svc, nil)
	pay := ProcessPaymentRequestDTO{ShippingAddress: "1 Main St", Method: "credit_card"}

	rec := doRequest(t, router, http.MethodPost, "/api/v1/checkout/", "7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, router, http.MethodPost, "/api/v1/checkout/payment", "7", pay)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/checkout/payment", "7", pay)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/checkout/", "7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, router, http.MethodPost, "/api/v1/checkout/payment", "7", pay)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestProcessPayment_FailedAttemptAllowsRetry(t *testing.T) {
	svc := &mockCheckoutService{
		summary: &checkout.Summary{Total: decimal.NewFromInt(270)},
		payErr:  checkout.ErrCheckoutFailed,
	}
	router := newTestRouter(nil, svc, nil)
	pay := ProcessPaymentRequestDTO{ShippingAddress: "1 Main St", Method: "credit_card"}

	rec := doRequest(t, router, http.MethodPost, "/api/v1/checkout/", "7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, router, http.MethodPost, "/api/v1/checkout/payment", "7", pay)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	svc.payErr = nil
	svc.order = &domain.Order{ID: uuid.New(), UserID: 7, Status: domain.OrderStatusPaid}
	rec = doRequest(t, router, http.MethodPost, "/api/v1/checkout/payment", "7", pay)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestGetOrder_HidesOtherUsersOrders(t *testing.T) {
	orderID := uuid.New()
	reader := &mockOrderReader{order: &domain.Order{ID: orderID, UserID: 99}}
	rec := doRequest(t, newTestRouter(nil, nil, reader), http.MethodGet, "/api/v1/orders/"+orderID.String(), "7", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrder_Success(t *testing.T) {
	orderID := uuid.New()
	reader := &mockOrderReader{order: &domain.Order{ID: orderID, UserID: 7}}
	rec := doRequest(t, newTestRouter(nil, nil, reader), http.MethodGet, "/api/v1/orders/"+orderID.String(), "7", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var order domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, orderID, order.ID)
}

func TestGetOrder_BadUUID(t *testing.T) {
	rec := doRequest(t, newTestRouter(nil, nil, nil), http.MethodGet, "/api/v1/orders/not-a-uuid", "7", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	rec := doRequest(t, newTestRouter(nil, nil, nil), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
