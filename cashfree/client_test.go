package cashfree

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ray-remotestate/restro-qr/models"
)

func useTestEndpoint(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	original := Endpoints[models.EnvironmentSandbox]
	Endpoints[models.EnvironmentSandbox] = srv.URL
	t.Cleanup(func() {
		Endpoints[models.EnvironmentSandbox] = original
		srv.Close()
	})
}

func TestCreateOrder(t *testing.T) {
	var got map[string]any
	useTestEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "app-id", r.Header.Get("x-client-id"))
		assert.Equal(t, "secret", r.Header.Get("x-client-secret"))
		assert.Equal(t, APIVersion, r.Header.Get("x-api-version"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"cf_order_id": 2149460581, "order_id": "rq_1", "order_amount": 394.8,
			"order_currency": "INR", "order_status": "ACTIVE", "payment_session_id": "session_abc"}`)
	})

	client := NewClient("app-id", "secret", models.EnvironmentSandbox)
	order, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		OrderID:       "rq_1",
		OrderAmount:   Amount(decimal.RequireFromString("394.8")),
		OrderCurrency: "INR",
		CustomerDetails: CustomerDetails{
			CustomerID:    "cust_1",
			CustomerPhone: "9800000000",
		},
		OrderMeta: OrderMeta{ReturnURL: "https://example.com/return"},
	})
	require.NoError(t, err)
	assert.Equal(t, "session_abc", order.PaymentSessionID)
	assert.Equal(t, "ACTIVE", order.OrderStatus)
	assert.Equal(t, "2149460581", order.CFOrderID.String())

	assert.Equal(t, 394.8, got["order_amount"])
	assert.Equal(t, "rq_1", got["order_id"])
	customer := got["customer_details"].(map[string]any)
	assert.Equal(t, "9800000000", customer["customer_phone"])
}

func TestGetOrderAPIError(t *testing.T) {
	useTestEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/rq_missing", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"message": "order not found", "code": "order_not_found", "type": "invalid_request_error"}`)
	})

	client := NewClient("app-id", "secret", models.EnvironmentSandbox)
	_, err := client.GetOrder(context.Background(), "rq_missing")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "order_not_found", apiErr.Code)
	assert.Equal(t, "order not found", apiErr.Message)
}

func TestUnknownEnvironment(t *testing.T) {
	client := NewClient("app-id", "secret", models.PaymentEnvironment("staging"))
	_, err := client.GetOrder(context.Background(), "rq_1")
	assert.EqualError(t, err, "cashfree: unknown environment")
}

func TestOrderStatusResult(t *testing.T) {
	status, ok := OrderStatusResult("PAID")
	assert.True(t, ok)
	assert.Equal(t, models.PaymentStatusCompleted, status)

	status, ok = OrderStatusResult("EXPIRED")
	assert.True(t, ok)
	assert.Equal(t, models.PaymentStatusFailed, status)

	_, ok = OrderStatusResult("ACTIVE")
	assert.False(t, ok)
}
