package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceLine struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

type InvoiceParty struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

type Invoice struct {
	InvoiceNumber string          `json:"invoice_number"`
	IssuedAt      time.Time       `json:"issued_at"`
	OrderID       uuid.UUID       `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	OrderType     OrderType       `json:"order_type"`
	TableNumber   string          `json:"table_number,omitempty"`
	Restaurant    InvoiceParty    `json:"restaurant"`
	Customer      InvoiceParty    `json:"customer"`
	Lines         []InvoiceLine   `json:"lines"`
	Currency      string          `json:"currency"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
}

// NewInvoiceNumber returns INV-<YYYYMM>-<6 hex>.
func NewInvoiceNumber(at time.Time) (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%s-%s", at.Format("200601"), hex.EncodeToString(buf)), nil
}

// BuildInvoice assembles the invoice document from an order and its restaurant.
func BuildInvoice(number string, issuedAt time.Time, order Order, restaurant Restaurant) Invoice {
	lines := make([]InvoiceLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, InvoiceLine{
			Description: item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      item.LineTotal,
		})
	}
	return Invoice{
		InvoiceNumber: number,
		IssuedAt:      issuedAt,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		OrderType:     order.OrderType,
		TableNumber:   order.TableNumber,
		Restaurant: InvoiceParty{
			Name:    restaurant.Name,
			Address: restaurant.Address,
			Phone:   restaurant.Phone,
			Email:   restaurant.Email,
		},
		Customer: InvoiceParty{
			Name:  order.CustomerName,
			Phone: order.CustomerPhone,
			Email: order.CustomerEmail,
		},
		Lines:         lines,
		Currency:      restaurant.Currency,
		Subtotal:      order.Subtotal,
		TaxRate:       order.TaxRate,
		Tax:           order.Tax,
		Total:         order.Total,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
	}
}
