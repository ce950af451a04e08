package handlers

import (
	"bytes"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ray-remotestate/restro-qr/cashfree"
	"github.com/ray-remotestate/restro-qr/middlewares"
	"github.com/ray-remotestate/restro-qr/models"
)

var (
	settingsCols = []string{"restaurant_id", "provider", "app_id", "secret_key", "environment", "is_enabled", "updated_at"}
	txnCols      = []string{"id", "order_id", "restaurant_id", "gateway_order_id", "payment_session_id", "cf_payment_id",
		"amount", "currency", "status", "gateway_status", "failure_reason", "created_at", "updated_at"}
)

func (e *testEnv) onlineOrderRow(payment models.PaymentStatus, phone string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(orderCols).AddRow(e.orderID.String(), e.restaurantID.String(), "20261017-004", "online", "",
		"Asha", phone, "", []byte(`[]`), "240.00", "5.00", "12.00", "252.00", "pending", string(payment), "online", "", now, now)
}

func (e *testEnv) txnRow(id uuid.UUID, status models.PaymentStatus, reason string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(txnCols).AddRow(id.String(), e.orderID.String(), e.restaurantID.String(),
		models.GatewayOrderIDFor(id), "session_abc", "", "252.00", "INR", string(status), "", reason, now, now)
}

// expectFallbackLookup covers the order and restaurant reads behind the
// restaurant_phone in a fallback response.
func (e *testEnv) expectFallbackLookup() {
	e.mock.ExpectQuery("FROM orders WHERE id").WithArgs(e.orderID).
		WillReturnRows(e.onlineOrderRow(models.PaymentStatusPending, "9811111111"))
	e.mock.ExpectQuery("FROM restaurants WHERE id").WithArgs(e.restaurantID).WillReturnRows(e.restaurantRow())
}

func TestCreatePaymentHandler(t *testing.T) {
	const pattern = "/api/create-payment"

	t.Run("requires an order id", func(t *testing.T) {
		setupEnv(t)
		rec := serve(t, http.MethodPost, pattern, pattern, CreatePayment, map[string]string{}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown order", func(t *testing.T) {
		env := setupEnv(t)
		env.mock.ExpectQuery("FROM orders WHERE id").WithArgs(env.orderID).WillReturnError(sql.ErrNoRows)

		rec := serve(t, http.MethodPost, pattern, pattern, CreatePayment, map[string]any{"order_id": env.orderID}, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("already paid", func(t *testing.T) {
		env := setupEnv(t)
		env.mock.ExpectQuery("FROM orders WHERE id").
			WillReturnRows(env.onlineOrderRow(models.PaymentStatusCompleted, "9811111111"))

		rec := serve(t, http.MethodPost, pattern, pattern, CreatePayment, map[string]any{"order_id": env.orderID}, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("cancelled orders cannot be paid", func(t *testing.T) {
		env := setupEnv(t)
		env.mock.ExpectQuery("FROM orders WHERE id").
			WillReturnRows(env.orderRow(models.OrderStatusCancelled, models.PaymentStatusPending, ""))

		rec := serve(t, http.MethodPost, pattern, pattern, CreatePayment, map[string]any{"order_id": env.orderID}, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "cancelled")
	})

	t.Run("payments disabled falls back to the counter", func(t *testing.T) {
		env := setupEnv(t)
		env.mock.ExpectQuery("FROM orders WHERE id").
			WillReturnRows(env.onlineOrderRow(models.PaymentStatusPending, "9811111111"))
		env.mock.ExpectQuery("FROM payment_settings").WithArgs(env.restaurantID).WillReturnError(sql.ErrNoRows)
		env.expectFallbackLookup()

		rec := serve(t, http.MethodPost, pattern, pattern, CreatePayment, map[string]any{"order_id": env.orderID}, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp map[string]string
		decode(t, rec, &resp)
		assert.Equal(t, FallbackContactRestaurant, resp["fallback"])
		assert.Equal(t, "9800000000", resp["restaurant_phone"])
	})

	t.Run("gateway errors become 502 with fallback", func(t *testing.T) {
		env := setupEnv(t)
		gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"order_amount is invalid","code":"order_amount_invalid","type":"invalid_request_error"}`))
		}))
		original := cashfree.Endpoints[models.EnvironmentSandbox]
		cashfree.Endpoints[models.EnvironmentSandbox] = gateway.URL
		t.Cleanup(func() {
			cashfree.Endpoints[models.EnvironmentSandbox] = original
			gateway.Close()
		})

		env.mock.ExpectQuery("FROM orders WHERE id").
			WillReturnRows(env.onlineOrderRow(models.PaymentStatusPending, "9811111111"))
		env.mock.ExpectQuery("FROM payment_settings").WillReturnRows(sqlmock.NewRows(settingsCols).
			AddRow(env.restaurantID.String(), "cashfree", "app-id", "secret", "sandbox", true, time.Now()))
		env.mock.ExpectQuery("FROM restaurants WHERE id").WillReturnRows(env.restaurantRow())
		env.mock.ExpectQuery("INSERT INTO transactions").
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
		env.mock.ExpectExec("UPDATE transactions").WillReturnResult(sqlmock.NewResult(0, 1))
		env.expectFallbackLookup()

		rec := serve(t, http.MethodPost, pattern, pattern, CreatePayment, map[string]any{"order_id": env.orderID}, nil)

		require.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())
		var resp map[string]string
		decode(t, rec, &resp)
		assert.Equal(t, "order_amount is invalid", resp["error"])
		assert.Equal(t, FallbackContactRestaurant, resp["fallback"])
	})
}

func TestVerifyPaymentHandler(t *testing.T) {
	const pattern = "/api/payments/{transaction_id}/verify"

	t.Run("settled payments are returned as stored", func(t *testing.T) {
		env := setupEnv(t)
		txnID := uuid.New()
		env.mock.ExpectQuery("FROM transactions WHERE id").WithArgs(txnID).
			WillReturnRows(env.txnRow(txnID, models.PaymentStatusCompleted, ""))

		rec := serve(t, http.MethodPost, pattern, "/api/payments/"+txnID.String()+"/verify", VerifyPayment, nil, nil)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp transactionStatusResponse
		decode(t, rec, &resp)
		assert.Equal(t, models.PaymentStatusCompleted, resp.Status)
		assert.Empty(t, resp.Fallback)
	})

	t.Run("failed payments carry the fallback", func(t *testing.T) {
		env := setupEnv(t)
		txnID := uuid.New()
		env.mock.ExpectQuery("FROM transactions WHERE id").
			WillReturnRows(env.txnRow(txnID, models.PaymentStatusFailed, "gateway order expired"))
		env.expectFallbackLookup()

		rec := serve(t, http.MethodPost, pattern, "/api/payments/"+txnID.String()+"/verify", VerifyPayment, nil, nil)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp transactionStatusResponse
		decode(t, rec, &resp)
		assert.Equal(t, models.PaymentStatusFailed, resp.Status)
		assert.Equal(t, "gateway order expired", resp.FailureReason)
		assert.Equal(t, FallbackContactRestaurant, resp.Fallback)
		assert.Equal(t, "9800000000", resp.RestaurantPhone)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		env := setupEnv(t)
		env.mock.ExpectQuery("FROM transactions WHERE id").WillReturnError(sql.ErrNoRows)

		rec := serve(t, http.MethodPost, pattern, "/api/payments/"+uuid.NewString()+"/verify", VerifyPayment, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func postWebhook(body, timestamp, signature string) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	router.HandleFunc("/api/webhook", PaymentWebhook).Methods(http.MethodPost)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader([]byte(body)))
	req.Header.Set(cashfree.TimestampHeader, timestamp)
	req.Header.Set(cashfree.SignatureHeader, signature)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPaymentWebhook(t *testing.T) {
	stamp := strconv.FormatInt(time.Now().Unix(), 10)
	webhook := func(orderID string) string {
		return `{"type":"PAYMENT_SUCCESS_WEBHOOK","data":{"order":{"order_id":"` + orderID +
			`"},"payment":{"cf_payment_id":1,"payment_status":"SUCCESS"}}}`
	}

	t.Run("malformed payloads are rejected", func(t *testing.T) {
		setupEnv(t)
		rec := postWebhook("{garbage", stamp, "sig")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown gateway orders are acknowledged", func(t *testing.T) {
		env := setupEnv(t)
		env.mock.ExpectQuery("FROM transactions WHERE gateway_order_id").WithArgs("rq_missing").
			WillReturnError(sql.ErrNoRows)

		rec := postWebhook(webhook("rq_missing"), stamp, "sig")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ignored"}`, rec.Body.String())
	})

	t.Run("bad signatures are refused", func(t *testing.T) {
		env := setupEnv(t)
		txnID := uuid.New()
		body := webhook(models.GatewayOrderIDFor(txnID))
		env.mock.ExpectQuery("FROM transactions WHERE gateway_order_id").
			WillReturnRows(env.txnRow(txnID, models.PaymentStatusPending, ""))
		env.mock.ExpectQuery("FROM payment_settings").WillReturnRows(sqlmock.NewRows(settingsCols).
			AddRow(env.restaurantID.String(), "cashfree", "app-id", "real-secret", "sandbox", true, time.Now()))

		rec := postWebhook(body, stamp, cashfree.Sign("wrong-secret", stamp, []byte(body)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("replays of settled payments are no-ops", func(t *testing.T) {
		env := setupEnv(t)
		txnID := uuid.New()
		body := webhook(models.GatewayOrderIDFor(txnID))
		env.mock.ExpectQuery("FROM transactions WHERE gateway_order_id").
			WillReturnRows(env.txnRow(txnID, models.PaymentStatusCompleted, ""))
		env.mock.ExpectQuery("FROM payment_settings").WillReturnRows(sqlmock.NewRows(settingsCols).
			AddRow(env.restaurantID.String(), "cashfree", "app-id", "real-secret", "sandbox", true, time.Now()))
		env.mock.ExpectBegin()
		env.mock.ExpectQuery("FOR UPDATE").WithArgs(txnID).
			WillReturnRows(env.txnRow(txnID, models.PaymentStatusCompleted, ""))
		env.mock.ExpectCommit()

		rec := postWebhook(body, stamp, cashfree.Sign("real-secret", stamp, []byte(body)))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, env.events.events)
	})

	t.Run("old deliveries are refused", func(t *testing.T) {
		env := setupEnv(t)
		txnID := uuid.New()
		body := webhook(models.GatewayOrderIDFor(txnID))
		old := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
		env.mock.ExpectQuery("FROM transactions WHERE gateway_order_id").
			WillReturnRows(env.txnRow(txnID, models.PaymentStatusPending, ""))
		env.mock.ExpectQuery("FROM payment_settings").WillReturnRows(sqlmock.NewRows(settingsCols).
			AddRow(env.restaurantID.String(), "cashfree", "app-id", "real-secret", "sandbox", true, time.Now()))

		rec := postWebhook(body, old, cashfree.Sign("real-secret", old, []byte(body)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, env.events.events)
	})
}

func TestPaymentSettingsHandlers(t *testing.T) {
	const pattern = "/api/restaurants/{id}/payment-settings"

	t.Run("unconfigured restaurants get a disabled default", func(t *testing.T) {
		env := setupEnv(t)
		env.mock.ExpectQuery("FROM restaurants WHERE id").WillReturnRows(env.restaurantRow())
		env.mock.ExpectQuery("FROM payment_settings").WillReturnError(sql.ErrNoRows)

		rec := serve(t, http.MethodGet, pattern, "/api/restaurants/"+env.restaurantID.String()+"/payment-settings",
			GetPaymentSettings, nil, env.owner())

		require.Equal(t, http.StatusOK, rec.Code)
		var resp paymentSettingsResponse
		decode(t, rec, &resp)
		assert.False(t, resp.IsEnabled)
		assert.False(t, resp.Configured)
		assert.Equal(t, models.EnvironmentSandbox, resp.Environment)
	})

	t.Run("the secret is masked", func(t *testing.T) {
		env := setupEnv(t)
		env.mock.ExpectQuery("FROM restaurants WHERE id").WillReturnRows(env.restaurantRow())
		env.mock.ExpectQuery("INSERT INTO payment_settings").
			WithArgs(env.restaurantID, "cashfree", "app-id", "cfsk_live_abcd1234", "production", true).
			WillReturnRows(sqlmock.NewRows([]string{"secret_key", "updated_at"}).AddRow("cfsk_live_abcd1234", time.Now()))

		rec := serve(t, http.MethodPut, pattern, "/api/restaurants/"+env.restaurantID.String()+"/payment-settings",
			UpdatePaymentSettings, map[string]any{
				"app_id":      "app-id",
				"secret_key":  "cfsk_live_abcd1234",
				"environment": "production",
				"is_enabled":  true,
			}, env.owner())

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "cfsk_live")
		var resp paymentSettingsResponse
		decode(t, rec, &resp)
		assert.Equal(t, strings.Repeat("*", 14)+"1234", resp.SecretKey)
		assert.True(t, resp.Configured)
	})

	t.Run("enabling needs credentials", func(t *testing.T) {
		env := setupEnv(t)
		env.mock.ExpectQuery("FROM restaurants WHERE id").WillReturnRows(env.restaurantRow())
		env.mock.ExpectQuery("FROM payment_settings").WillReturnError(sql.ErrNoRows)

		rec := serve(t, http.MethodPut, pattern, "/api/restaurants/"+env.restaurantID.String()+"/payment-settings",
			UpdatePaymentSettings, map[string]any{"app_id": "app-id", "is_enabled": true}, env.owner())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "secret_key")
	})

	t.Run("environment is validated", func(t *testing.T) {
		env := setupEnv(t)
		env.mock.ExpectQuery("FROM restaurants WHERE id").WillReturnRows(env.restaurantRow())

		rec := serve(t, http.MethodPut, pattern, "/api/restaurants/"+env.restaurantID.String()+"/payment-settings",
			UpdatePaymentSettings, map[string]any{"environment": "staging"}, env.owner())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("managers cannot touch gateway credentials", func(t *testing.T) {
		env := setupEnv(t)
		env.mock.ExpectQuery("FROM restaurants WHERE id").WillReturnRows(env.restaurantRow())

		manager := &middlewares.Claims{UserID: uuid.New(), Roles: []string{"manager"}}
		rec := serve(t, http.MethodGet, pattern, "/api/restaurants/"+env.restaurantID.String()+"/payment-settings",
			GetPaymentSettings, nil, manager)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
