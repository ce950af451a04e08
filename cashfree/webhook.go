package cashfree

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ray-remotestate/restro-qr/models"
)

const (
	SignatureHeader = "x-webhook-signature"
	TimestampHeader = "x-webhook-timestamp"

	EventPaymentSuccess     = "PAYMENT_SUCCESS_WEBHOOK"
	EventPaymentFailed      = "PAYMENT_FAILED_WEBHOOK"
	EventPaymentUserDropped = "PAYMENT_USER_DROPPED_WEBHOOK"
)

// Sign computes base64(HMAC-SHA256(timestamp + body)).
func Sign(secretKey, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func VerifySignature(secretKey, timestamp string, body []byte, signature string) bool {
	if signature == "" || timestamp == "" {
		return false
	}
	expected := Sign(secretKey, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookTolerance bounds how far a signed webhook timestamp may drift from
// the local clock.
var WebhookTolerance = 5 * time.Minute

// CheckTimestamp rejects webhook timestamps further than WebhookTolerance from
// now. Epoch seconds and milliseconds are both accepted.
func CheckTimestamp(timestamp string, now time.Time) error {
	n, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid webhook timestamp %q", timestamp)
	}
	at := time.Unix(n, 0)
	if n > 1e12 {
		at = time.UnixMilli(n)
	}
	if drift := now.Sub(at); drift > WebhookTolerance || drift < -WebhookTolerance {
		return fmt.Errorf("webhook timestamp %s is outside the accepted window", at.UTC().Format(time.RFC3339))
	}
	return nil
}

type WebhookEvent struct {
	Type      string `json:"type"`
	EventTime string `json:"event_time"`
	Data      struct {
		Order struct {
			OrderID       string      `json:"order_id"`
			OrderAmount   json.Number `json:"order_amount"`
			OrderCurrency string      `json:"order_currency"`
		} `json:"order"`
		Payment struct {
			CFPaymentID    json.Number `json:"cf_payment_id"`
			PaymentStatus  string      `json:"payment_status"`
			PaymentAmount  json.Number `json:"payment_amount"`
			PaymentMessage string      `json:"payment_message"`
			PaymentTime    string      `json:"payment_time"`
		} `json:"payment"`
	} `json:"data"`
}

func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook: %w", err)
	}
	if event.Data.Order.OrderID == "" {
		return nil, fmt.Errorf("webhook has no order id")
	}
	return &event, nil
}

// Result translates the webhook into a payment result. ok is false for
// event types that carry no payment outcome. A failed or dropped attempt leaves
// the gateway order open for another try, so it only moves the transaction to
// verifying; the order-level status decides when a payment has failed.
func (e *WebhookEvent) Result(raw []byte) (models.PaymentResult, bool) {
	result := models.PaymentResult{
		GatewayStatus: e.Data.Payment.PaymentStatus,
		CFPaymentID:   e.Data.Payment.CFPaymentID.String(),
		RawPayload:    raw,
	}
	switch e.Type {
	case EventPaymentSuccess:
		result.Status = models.PaymentStatusCompleted
	case EventPaymentFailed, EventPaymentUserDropped:
		result.Status = models.PaymentStatusVerifying
		result.FailureReason = e.Data.Payment.PaymentMessage
		if result.FailureReason == "" {
			result.FailureReason = e.Data.Payment.PaymentStatus
		}
	default:
		return result, false
	}
	return result, true
}
