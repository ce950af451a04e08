package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ray-remotestate/restro-qr/cashfree"
	"github.com/ray-remotestate/restro-qr/database"
	"github.com/ray-remotestate/restro-qr/database/dbhelper"
	"github.com/ray-remotestate/restro-qr/models"
	"github.com/ray-remotestate/restro-qr/service"
	"github.com/ray-remotestate/restro-qr/utils"
)

// FallbackContactRestaurant tells the client to offer the manual payment flow.
const FallbackContactRestaurant = "contact_restaurant"

var publicBaseURL = "http://localhost:8080"

// SetPublicBaseURL sets the root used for gateway return and notify URLs.
func SetPublicBaseURL(u string) {
	publicBaseURL = strings.TrimRight(u, "/")
}

type paymentSettingsResponse struct {
	RestaurantID uuid.UUID                 `json:"restaurant_id"`
	Provider     string                    `json:"provider"`
	AppID        string                    `json:"app_id"`
	SecretKey    string                    `json:"secret_key"`
	Environment  models.PaymentEnvironment `json:"environment"`
	IsEnabled    bool                      `json:"is_enabled"`
	Configured   bool                      `json:"configured"`
	UpdatedAt    *time.Time                `json:"updated_at,omitempty"`
}

func newPaymentSettingsResponse(s models.PaymentSettings) paymentSettingsResponse {
	updatedAt := s.UpdatedAt
	return paymentSettingsResponse{
		RestaurantID: s.RestaurantID,
		Provider:     s.Provider,
		AppID:        s.AppID,
		SecretKey:    s.MaskedSecret(),
		Environment:  s.Environment,
		IsEnabled:    s.IsEnabled,
		Configured:   true,
		UpdatedAt:    &updatedAt,
	}
}

func GetPaymentSettings(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if _, ok := ownerOrAdmin(w, r, restaurantID); !ok {
		return
	}

	settings, err := dbhelper.GetPaymentSettings(r.Context(), restaurantID)
	if errors.Is(err, dbhelper.ErrNotFound) {
		utils.RespondJSON(w, http.StatusOK, paymentSettingsResponse{
			RestaurantID: restaurantID,
			Provider:     "cashfree",
			Environment:  models.EnvironmentSandbox,
		})
		return
	}
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to load payment settings")
		return
	}
	utils.RespondJSON(w, http.StatusOK, newPaymentSettingsResponse(settings))
}

// UpdatePaymentSettings stores the gateway credentials. An empty secret_key
// keeps the stored one so the masked value never has to round-trip.
func UpdatePaymentSettings(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if _, ok := ownerOrAdmin(w, r, restaurantID); !ok {
		return
	}

	var req struct {
		AppID       string                    `json:"app_id"`
		SecretKey   string                    `json:"secret_key"`
		Environment models.PaymentEnvironment `json:"environment"`
		IsEnabled   bool                      `json:"is_enabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	req.AppID = strings.TrimSpace(req.AppID)
	req.SecretKey = strings.TrimSpace(req.SecretKey)
	if req.Environment == "" {
		req.Environment = models.EnvironmentSandbox
	}
	if !req.Environment.IsValid() {
		utils.RespondError(w, http.StatusBadRequest, "environment must be sandbox or production")
		return
	}
	if req.IsEnabled && req.AppID == "" {
		utils.RespondError(w, http.StatusBadRequest, "app_id is required to enable payments")
		return
	}
	if req.IsEnabled && req.SecretKey == "" {
		existing, err := dbhelper.GetPaymentSettings(r.Context(), restaurantID)
		if err != nil && !errors.Is(err, dbhelper.ErrNotFound) {
			utils.RespondServerError(w, r, err, "failed to load payment settings")
			return
		}
		if existing.SecretKey == "" {
			utils.RespondError(w, http.StatusBadRequest, "secret_key is required to enable payments")
			return
		}
	}

	settings := models.PaymentSettings{
		RestaurantID: restaurantID,
		Provider:     "cashfree",
		AppID:        req.AppID,
		SecretKey:    req.SecretKey,
		Environment:  req.Environment,
		IsEnabled:    req.IsEnabled,
	}
	if err := dbhelper.UpsertPaymentSettings(r.Context(), &settings); err != nil {
		utils.RespondServerError(w, r, err, "failed to save payment settings")
		return
	}

	logrus.WithFields(logrus.Fields{
		"restaurant_id": restaurantID,
		"environment":   settings.Environment,
		"enabled":       settings.IsEnabled,
	}).Info("payment settings updated")
	utils.RespondJSON(w, http.StatusOK, newPaymentSettingsResponse(settings))
}

// respondPaymentFailure adds the manual fallback and the restaurant's phone
// so the client can ask the customer to pay at the counter.
func respondPaymentFailure(w http.ResponseWriter, r *http.Request, status int, msg string, orderID uuid.UUID) {
	body := map[string]any{
		"error":    msg,
		"fallback": FallbackContactRestaurant,
	}
	if phone := restaurantPhoneForOrder(r.Context(), orderID); phone != "" {
		body["restaurant_phone"] = phone
	}
	utils.RespondJSON(w, status, body)
}

func restaurantPhoneForOrder(ctx context.Context, orderID uuid.UUID) string {
	order, err := dbhelper.GetOrder(ctx, database.Restro, orderID)
	if err != nil {
		return ""
	}
	restaurant, err := dbhelper.GetRestaurantByID(ctx, order.RestaurantID)
	if err != nil {
		return ""
	}
	return restaurant.Phone
}

// CreatePayment opens a gateway checkout session for an order.
func CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID uuid.UUID `json:"order_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrderID == uuid.Nil {
		utils.RespondError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	session, err := service.CreatePayment(r.Context(), req.OrderID, publicBaseURL)
	var gwErr *service.GatewayError
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusCreated, session)
	case errors.Is(err, dbhelper.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, service.ErrAlreadyPaid), errors.Is(err, service.ErrOrderCancelled):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrPaymentsDisabled), errors.Is(err, service.ErrPhoneRequired):
		respondPaymentFailure(w, r, http.StatusBadRequest, err.Error(), req.OrderID)
	case errors.As(err, &gwErr):
		respondPaymentFailure(w, r, http.StatusBadGateway, gwErr.Message(), req.OrderID)
	default:
		utils.RespondServerError(w, r, err, "failed to create payment")
	}
}

type transactionStatusResponse struct {
	TransactionID   uuid.UUID            `json:"transaction_id"`
	OrderID         uuid.UUID            `json:"order_id"`
	Status          models.PaymentStatus `json:"status"`
	GatewayStatus   string               `json:"gateway_status,omitempty"`
	FailureReason   string               `json:"failure_reason,omitempty"`
	Fallback        string               `json:"fallback,omitempty"`
	RestaurantPhone string               `json:"restaurant_phone,omitempty"`
}

// VerifyPayment is called by the client after the gateway redirects back.
func VerifyPayment(w http.ResponseWriter, r *http.Request) {
	txnID, ok := pathUUID(w, r, "transaction_id")
	if !ok {
		return
	}

	txn, err := service.VerifyPayment(r.Context(), txnID)
	var gwErr *service.GatewayError
	if errors.As(err, &gwErr) {
		logrus.WithError(err).WithField("transaction_id", txnID).Warn("gateway status check failed")
		stored, lookupErr := dbhelper.GetTransaction(r.Context(), txnID)
		if lookupErr != nil {
			respondStoreError(w, r, lookupErr, "failed to load transaction")
			return
		}
		respondPaymentFailure(w, r, http.StatusBadGateway, gwErr.Message(), stored.OrderID)
		return
	}
	if err != nil {
		respondStoreError(w, r, err, "failed to verify payment")
		return
	}

	resp := transactionStatusResponse{
		TransactionID: txn.ID,
		OrderID:       txn.OrderID,
		Status:        txn.Status,
		GatewayStatus: txn.GatewayStatus,
		FailureReason: txn.FailureReason,
	}
	if txn.Status == models.PaymentStatusFailed {
		resp.Fallback = FallbackContactRestaurant
		resp.RestaurantPhone = restaurantPhoneForOrder(r.Context(), txn.OrderID)
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// PaymentWebhook receives gateway notifications. Unknown orders are
// acknowledged so the gateway stops retrying them.
func PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err = service.HandleWebhook(r.Context(), body,
		r.Header.Get(cashfree.TimestampHeader), r.Header.Get(cashfree.SignatureHeader))
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, dbhelper.ErrNotFound):
		logrus.Warn("webhook for unknown payment order")
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	case errors.Is(err, service.ErrInvalidSignature):
		logrus.Warn("webhook signature mismatch")
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrStaleWebhook):
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
	case models.IsValidation(err):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		utils.RespondServerError(w, r, err, "failed to process webhook")
	}
}
