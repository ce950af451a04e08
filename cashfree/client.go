package cashfree

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/ray-remotestate/restro-qr/models"
)

const APIVersion = "2023-08-01"

// Endpoints maps a payment environment to the PG API root.
var Endpoints = map[models.PaymentEnvironment]string{
	models.EnvironmentSandbox:    "https://sandbox.cashfree.com/pg",
	models.EnvironmentProduction: "https://api.cashfree.com/pg",
}

type Client struct {
	appID      string
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

func NewClient(appID, secretKey string, env models.PaymentEnvironment) *Client {
	return &Client{
		appID:      appID,
		secretKey:  secretKey,
		baseURL:    Endpoints[env],
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewClientFromSettings builds a client from a restaurant's stored credentials.
func NewClientFromSettings(s models.PaymentSettings) *Client {
	return NewClient(s.AppID, s.SecretKey, s.Environment)
}

type CustomerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone"`
}

type OrderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
	NotifyURL string `json:"notify_url,omitempty"`
}

type CreateOrderRequest struct {
	OrderID         string          `json:"order_id"`
	OrderAmount     json.Number     `json:"order_amount"`
	OrderCurrency   string          `json:"order_currency"`
	CustomerDetails CustomerDetails `json:"customer_details"`
	OrderMeta       OrderMeta       `json:"order_meta"`
	OrderNote       string          `json:"order_note,omitempty"`
}

// Amount renders a decimal as the JSON number the API expects.
func Amount(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

type Order struct {
	CFOrderID        json.Number `json:"cf_order_id"`
	OrderID          string      `json:"order_id"`
	OrderAmount      json.Number `json:"order_amount"`
	OrderCurrency    string      `json:"order_currency"`
	OrderStatus      string      `json:"order_status"`
	PaymentSessionID string      `json:"payment_session_id"`
	OrderExpiryTime  string      `json:"order_expiry_time"`
}

type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	Type       string `json:"type"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cashfree: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodPost, "/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("cashfree: unknown environment")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode cashfree request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create cashfree request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-version", APIVersion)
	req.Header.Set("x-client-id", c.appID)
	req.Header.Set("x-client-secret", c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cashfree request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read cashfree response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr := json.Unmarshal(raw, apiErr); decodeErr != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode cashfree response: %w", err)
	}
	return nil
}

// OrderStatusResult maps a PG order status onto the local payment status.
// ok is false while the order is still open for payment.
func OrderStatusResult(orderStatus string) (status models.PaymentStatus, ok bool) {
	switch orderStatus {
	case "PAID":
		return models.PaymentStatusCompleted, true
	case "EXPIRED", "TERMINATED", "TERMINATION_REQUESTED":
		return models.PaymentStatusFailed, true
	default:
		return models.PaymentStatusVerifying, false
	}
}
