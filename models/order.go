package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderType string

const (
	OrderTypeDineIn OrderType = "dine_in"
	OrderTypeOnline OrderType = "online"
)

func (t OrderType) IsValid() bool {
	return t == OrderTypeDineIn || t == OrderTypeOnline
}

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusServed     OrderStatus = "served"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusInProgress, OrderStatusCancelled},
	OrderStatusInProgress: {OrderStatusCompleted, OrderStatusServed, OrderStatusCancelled},
	OrderStatusCompleted:  {OrderStatusServed},
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusInProgress, OrderStatusCompleted, OrderStatusServed, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether staff may move an order from s to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodOnline PaymentMethod = "online"
)

func (m PaymentMethod) IsValid() bool {
	return m == PaymentMethodCash || m == PaymentMethodOnline
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusVerifying PaymentStatus = "verifying"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// CanTransitionTo never lets a completed payment change again. A failed
// payment may still complete when the gateway later confirms a capture.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s == PaymentStatusFailed {
		return next == PaymentStatusCompleted
	}
	if s.IsTerminal() || s == next {
		return false
	}
	if next == PaymentStatusPending {
		return false
	}
	return true
}

type OrderItem struct {
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	LineTotal  decimal.Decimal `json:"line_total"`
	Notes      string          `json:"notes,omitempty"`
}

// OrderItems is stored as a jsonb column on orders.
type OrderItems []OrderItem

func (items OrderItems) Value() (driver.Value, error) {
	if items == nil {
		return "[]", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (items *OrderItems) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		*items = OrderItems{}
		return nil
	default:
		return fmt.Errorf("unsupported order items type %T", src)
	}
	return json.Unmarshal(raw, items)
}

type Order struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	RestaurantID  uuid.UUID       `db:"restaurant_id" json:"restaurant_id"`
	OrderNumber   string          `db:"order_number" json:"order_number"`
	OrderType     OrderType       `db:"order_type" json:"order_type"`
	TableNumber   string          `db:"table_number" json:"table_number,omitempty"`
	CustomerName  string          `db:"customer_name" json:"customer_name"`
	CustomerPhone string          `db:"customer_phone" json:"customer_phone,omitempty"`
	CustomerEmail string          `db:"customer_email" json:"customer_email,omitempty"`
	Items         OrderItems      `db:"items" json:"items"`
	Subtotal      decimal.Decimal `db:"subtotal" json:"subtotal"`
	TaxRate       decimal.Decimal `db:"tax_rate" json:"tax_rate"`
	Tax           decimal.Decimal `db:"tax" json:"tax"`
	Total         decimal.Decimal `db:"total" json:"total"`
	Status        OrderStatus     `db:"status" json:"status"`
	PaymentStatus PaymentStatus   `db:"payment_status" json:"payment_status"`
	PaymentMethod PaymentMethod   `db:"payment_method" json:"payment_method"`
	Notes         string          `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

var hundred = decimal.NewFromInt(100)

// PriceItems fills line totals and returns subtotal, tax and total.
// taxRate is a percentage; tax is rounded to two places.
func PriceItems(items OrderItems, taxRate decimal.Decimal) (subtotal, tax, total decimal.Decimal) {
	subtotal = decimal.Zero
	for i := range items {
		items[i].LineTotal = items[i].UnitPrice.Mul(decimal.NewFromInt(int64(items[i].Quantity))).Round(2)
		subtotal = subtotal.Add(items[i].LineTotal)
	}
	tax = subtotal.Mul(taxRate).Div(hundred).Round(2)
	total = subtotal.Add(tax)
	return subtotal, tax, total
}

// FormatOrderNumber renders the per-restaurant daily sequence, e.g. 20261017-007.
func FormatOrderNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%03d", day.Format("20060102"), seq)
}
