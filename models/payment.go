package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentEnvironment string

const (
	EnvironmentSandbox    PaymentEnvironment = "sandbox"
	EnvironmentProduction PaymentEnvironment = "production"
)

func (e PaymentEnvironment) IsValid() bool {
	return e == EnvironmentSandbox || e == EnvironmentProduction
}

type PaymentSettings struct {
	RestaurantID uuid.UUID          `db:"restaurant_id" json:"restaurant_id"`
	Provider     string             `db:"provider" json:"provider"`
	AppID        string             `db:"app_id" json:"app_id"`
	SecretKey    string             `db:"secret_key" json:"-"`
	Environment  PaymentEnvironment `db:"environment" json:"environment"`
	IsEnabled    bool               `db:"is_enabled" json:"is_enabled"`
	UpdatedAt    time.Time          `db:"updated_at" json:"updated_at"`
}

// MaskedSecret shows only the last four characters of the gateway secret.
func (s PaymentSettings) MaskedSecret() string {
	if len(s.SecretKey) <= 4 {
		return strings.Repeat("*", len(s.SecretKey))
	}
	return strings.Repeat("*", len(s.SecretKey)-4) + s.SecretKey[len(s.SecretKey)-4:]
}

type Transaction struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	OrderID          uuid.UUID       `db:"order_id" json:"order_id"`
	RestaurantID     uuid.UUID       `db:"restaurant_id" json:"restaurant_id"`
	GatewayOrderID   string          `db:"gateway_order_id" json:"gateway_order_id"`
	PaymentSessionID string          `db:"payment_session_id" json:"payment_session_id,omitempty"`
	CFPaymentID      string          `db:"cf_payment_id" json:"cf_payment_id,omitempty"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Currency         string          `db:"currency" json:"currency"`
	Status           PaymentStatus   `db:"status" json:"status"`
	GatewayStatus    string          `db:"gateway_status" json:"gateway_status,omitempty"`
	FailureReason    string          `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// GatewayOrderIDFor derives the gateway order id from a transaction id.
// Cashfree accepts alphanumerics, '-' and '_' up to 50 chars.
func GatewayOrderIDFor(txnID uuid.UUID) string {
	return "rq_" + strings.ReplaceAll(txnID.String(), "-", "")
}

// PaymentResult is what a webhook or a status poll says about a transaction.
type PaymentResult struct {
	Status        PaymentStatus
	GatewayStatus string
	CFPaymentID   string
	FailureReason string
	RawPayload    []byte
}
