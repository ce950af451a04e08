// Package service holds the payment flow shared by the HTTP handlers, the
// gateway webhook and the reconciler.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ray-remotestate/restro-qr/cashfree"
	"github.com/ray-remotestate/restro-qr/database"
	"github.com/ray-remotestate/restro-qr/database/dbhelper"
	"github.com/ray-remotestate/restro-qr/models"
	"github.com/ray-remotestate/restro-qr/notifier"
	"github.com/ray-remotestate/restro-qr/realtime"
)

var (
	ErrAlreadyPaid      = errors.New("order is already paid")
	ErrPaymentsDisabled = errors.New("online payments are not enabled for this restaurant")
	ErrPhoneRequired    = errors.New("customer phone is required for online payment")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleWebhook     = errors.New("webhook timestamp is outside the accepted window")
	ErrOrderCancelled   = errors.New("order has been cancelled")
)

// GatewayError wraps a failure reported by, or while talking to, the gateway.
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string { return e.Err.Error() }
func (e *GatewayError) Unwrap() error { return e.Err }

// Message is the text safe to show to a customer.
func (e *GatewayError) Message() string {
	var apiErr *cashfree.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.Message
	}
	return "payment gateway unavailable"
}

type PaymentSession struct {
	TransactionID    uuid.UUID                 `json:"transaction_id"`
	GatewayOrderID   string                    `json:"gateway_order_id"`
	PaymentSessionID string                    `json:"payment_session_id"`
	Environment      models.PaymentEnvironment `json:"environment"`
	Amount           string                    `json:"amount"`
	Currency         string                    `json:"currency"`
}

// CreatePayment opens a gateway order for an unpaid order. baseURL is the
// public root used for the return and notify URLs.
func CreatePayment(ctx context.Context, orderID uuid.UUID, baseURL string) (PaymentSession, error) {
	order, err := dbhelper.GetOrder(ctx, database.Restro, orderID)
	if err != nil {
		return PaymentSession{}, err
	}
	if order.PaymentStatus == models.PaymentStatusCompleted {
		return PaymentSession{}, ErrAlreadyPaid
	}
	if order.Status == models.OrderStatusCancelled {
		return PaymentSession{}, ErrOrderCancelled
	}
	if order.CustomerPhone == "" {
		return PaymentSession{}, ErrPhoneRequired
	}

	settings, err := dbhelper.GetPaymentSettings(ctx, order.RestaurantID)
	if errors.Is(err, dbhelper.ErrNotFound) || (err == nil && !settings.IsEnabled) {
		return PaymentSession{}, ErrPaymentsDisabled
	}
	if err != nil {
		return PaymentSession{}, err
	}
	restaurant, err := dbhelper.GetRestaurantByID(ctx, order.RestaurantID)
	if err != nil {
		return PaymentSession{}, err
	}

	txn := models.Transaction{
		ID:           uuid.New(),
		OrderID:      order.ID,
		RestaurantID: order.RestaurantID,
		Amount:       order.Total,
		Currency:     restaurant.Currency,
		Status:       models.PaymentStatusPending,
	}
	txn.GatewayOrderID = models.GatewayOrderIDFor(txn.ID)
	if err := dbhelper.CreateTransaction(ctx, &txn); err != nil {
		return PaymentSession{}, err
	}

	logger := logrus.WithFields(logrus.Fields{
		"order_id":       order.ID,
		"transaction_id": txn.ID,
	})

	client := cashfree.NewClientFromSettings(settings)
	gwOrder, err := client.CreateOrder(ctx, cashfree.CreateOrderRequest{
		OrderID:       txn.GatewayOrderID,
		OrderAmount:   cashfree.Amount(txn.Amount),
		OrderCurrency: txn.Currency,
		CustomerDetails: cashfree.CustomerDetails{
			CustomerID:    "cust_" + strings.ReplaceAll(order.ID.String(), "-", "")[:16],
			CustomerName:  order.CustomerName,
			CustomerEmail: order.CustomerEmail,
			CustomerPhone: order.CustomerPhone,
		},
		OrderMeta: cashfree.OrderMeta{
			ReturnURL: fmt.Sprintf("%s/payment/return?transaction_id=%s", baseURL, txn.ID),
			NotifyURL: baseURL + "/api/webhook",
		},
		OrderNote: fmt.Sprintf("%s order %s", restaurant.Name, order.OrderNumber),
	})
	if err != nil {
		logger.WithError(err).Warn("gateway rejected payment order")
		failed := models.PaymentResult{Status: models.PaymentStatusFailed, FailureReason: err.Error()}
		if updateErr := dbhelper.UpdateTransactionStatus(ctx, database.Restro, txn.ID, failed); updateErr != nil {
			logger.WithError(updateErr).Error("failed to mark transaction as failed")
		}
		return PaymentSession{}, &GatewayError{Err: err}
	}

	if err := dbhelper.SetTransactionSession(ctx, txn.ID, gwOrder.PaymentSessionID, gwOrder.OrderStatus); err != nil {
		return PaymentSession{}, err
	}
	logger.Info("payment session created")

	return PaymentSession{
		TransactionID:    txn.ID,
		GatewayOrderID:   txn.GatewayOrderID,
		PaymentSessionID: gwOrder.PaymentSessionID,
		Environment:      settings.Environment,
		Amount:           txn.Amount.StringFixed(2),
		Currency:         txn.Currency,
	}, nil
}

// ApplyPaymentResult moves a transaction to result.Status if the payment state
// machine allows it and mirrors the status onto the order. It reports whether
// anything changed; replays and stale results are no-ops.
func ApplyPaymentResult(ctx context.Context, txnID uuid.UUID, result models.PaymentResult) (models.Transaction, bool, error) {
	var txn models.Transaction
	applied := false
	err := database.Tx(func(tx *sql.Tx) error {
		var err error
		txn, err = dbhelper.LockTransaction(ctx, tx, txnID)
		if err != nil {
			return err
		}
		if !txn.Status.CanTransitionTo(result.Status) {
			if txn.Status == result.Status && !txn.Status.IsTerminal() {
				return dbhelper.TouchTransaction(ctx, tx, txn.ID, result.GatewayStatus, result.FailureReason)
			}
			return nil
		}
		if err := dbhelper.UpdateTransactionStatus(ctx, tx, txn.ID, result); err != nil {
			return err
		}
		if err := dbhelper.SetOrderPaymentStatus(ctx, tx, txn.OrderID, result.Status); err != nil {
			return err
		}
		txn.Status = result.Status
		if result.GatewayStatus != "" {
			txn.GatewayStatus = result.GatewayStatus
		}
		if result.CFPaymentID != "" {
			txn.CFPaymentID = result.CFPaymentID
		}
		txn.FailureReason = result.FailureReason
		applied = true
		return nil
	})
	if err != nil {
		return models.Transaction{}, false, err
	}

	if applied && txn.Status.IsTerminal() {
		announceSettlement(ctx, txn)
	}
	return txn, applied, nil
}

// announceSettlement publishes the payment outcome and mails a receipt.
// Failures here are logged only; the payment itself is already stored.
func announceSettlement(ctx context.Context, txn models.Transaction) {
	logger := logrus.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"order_id":       txn.OrderID,
		"status":         txn.Status,
	})
	logger.Info("payment settled")

	order, err := dbhelper.GetOrder(ctx, database.Restro, txn.OrderID)
	if err != nil {
		logger.WithError(err).Error("failed to load order after settlement")
		return
	}

	eventType := realtime.EventPaymentFailed
	if txn.Status == models.PaymentStatusCompleted {
		eventType = realtime.EventPaymentCompleted
	}
	realtime.Publish(ctx, realtime.OrderEvent(eventType, order))

	if txn.Status != models.PaymentStatusCompleted || order.CustomerEmail == "" {
		return
	}
	restaurant, err := dbhelper.GetRestaurantByID(ctx, order.RestaurantID)
	if err != nil {
		logger.WithError(err).Error("failed to load restaurant for receipt")
		return
	}
	notifier.SendAsync(notifier.PaymentReceipt(order, restaurant, txn))
}

// PollTransaction asks the gateway for the order status and applies it.
func PollTransaction(ctx context.Context, txn models.Transaction) (models.Transaction, bool, error) {
	settings, err := dbhelper.GetPaymentSettings(ctx, txn.RestaurantID)
	if err != nil {
		return txn, false, fmt.Errorf("failed to load payment settings: %w", err)
	}

	gwOrder, err := cashfree.NewClientFromSettings(settings).GetOrder(ctx, txn.GatewayOrderID)
	if err != nil {
		return txn, false, &GatewayError{Err: err}
	}

	status, _ := cashfree.OrderStatusResult(gwOrder.OrderStatus)
	raw, err := json.Marshal(gwOrder)
	if err != nil {
		return txn, false, fmt.Errorf("failed to encode gateway order: %w", err)
	}
	result := models.PaymentResult{
		Status:        status,
		GatewayStatus: gwOrder.OrderStatus,
		RawPayload:    raw,
	}
	if status == models.PaymentStatusFailed {
		result.FailureReason = "gateway order " + strings.ToLower(gwOrder.OrderStatus)
	}
	return ApplyPaymentResult(ctx, txn.ID, result)
}

// VerifyPayment marks a transaction as being verified and then polls the
// gateway. Settled transactions are returned unchanged.
func VerifyPayment(ctx context.Context, txnID uuid.UUID) (models.Transaction, error) {
	txn, err := dbhelper.GetTransaction(ctx, txnID)
	if err != nil {
		return models.Transaction{}, err
	}
	if txn.Status.IsTerminal() {
		return txn, nil
	}

	if txn.Status == models.PaymentStatusPending {
		txn, _, err = ApplyPaymentResult(ctx, txn.ID, models.PaymentResult{Status: models.PaymentStatusVerifying})
		if err != nil {
			return models.Transaction{}, err
		}
		if txn.Status.IsTerminal() {
			return txn, nil
		}
	}

	txn, _, err = PollTransaction(ctx, txn)
	return txn, err
}

// HandleWebhook authenticates a gateway notification against the secret of
// the restaurant that owns the transaction and applies it. Events without a
// payment outcome are ignored.
func HandleWebhook(ctx context.Context, body []byte, timestamp, signature string) error {
	event, err := cashfree.ParseWebhook(body)
	if err != nil {
		return models.NewValidationError(err.Error())
	}
	txn, err := dbhelper.GetTransactionByGatewayOrderID(ctx, event.Data.Order.OrderID)
	if err != nil {
		return err
	}
	settings, err := dbhelper.GetPaymentSettings(ctx, txn.RestaurantID)
	if err != nil {
		return fmt.Errorf("failed to load payment settings: %w", err)
	}
	if !cashfree.VerifySignature(settings.SecretKey, timestamp, body, signature) {
		return ErrInvalidSignature
	}
	if err := cashfree.CheckTimestamp(timestamp, time.Now()); err != nil {
		logrus.WithError(err).Warn("rejecting stale webhook")
		return ErrStaleWebhook
	}

	result, ok := event.Result(body)
	if !ok {
		logrus.WithField("type", event.Type).Debug("ignoring webhook event")
		return nil
	}
	_, applied, err := ApplyPaymentResult(ctx, txn.ID, result)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"type":           event.Type,
		"applied":        applied,
	}).Info("webhook processed")
	return nil
}
