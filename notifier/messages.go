package notifier

import (
	"fmt"
	"html"
	"strings"

	"github.com/ray-remotestate/restro-qr/models"
)

func OrderConfirmation(order models.Order, restaurant models.Restaurant) Message {
	subject := fmt.Sprintf("%s: order %s received", restaurant.Name, order.OrderNumber)

	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\nThanks for ordering at %s. Your order number is %s.\n\n",
		order.CustomerName, restaurant.Name, order.OrderNumber)
	writeItems(&text, order.Items, restaurant.Currency)
	fmt.Fprintf(&text, "\nTotal: %s %s\n", restaurant.Currency, order.Total.StringFixed(2))
	if order.OrderType == models.OrderTypeDineIn && order.TableNumber != "" {
		fmt.Fprintf(&text, "Table: %s\n", order.TableNumber)
	}

	return Message{
		To:      order.CustomerEmail,
		Subject: subject,
		Text:    text.String(),
		HTML:    simpleHTML(text.String()),
	}
}

func PaymentReceipt(order models.Order, restaurant models.Restaurant, txn models.Transaction) Message {
	subject := fmt.Sprintf("%s: payment received for order %s", restaurant.Name, order.OrderNumber)

	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\nWe received your payment of %s %s for order %s.\n",
		order.CustomerName, txn.Currency, txn.Amount.StringFixed(2), order.OrderNumber)
	if txn.CFPaymentID != "" {
		fmt.Fprintf(&text, "Payment reference: %s\n", txn.CFPaymentID)
	}
	fmt.Fprintf(&text, "\nThank you for dining with %s.\n", restaurant.Name)

	return Message{
		To:      order.CustomerEmail,
		Subject: subject,
		Text:    text.String(),
		HTML:    simpleHTML(text.String()),
	}
}

func InvoiceEmail(invoice models.Invoice) Message {
	subject := fmt.Sprintf("Invoice %s from %s", invoice.InvoiceNumber, invoice.Restaurant.Name)

	var text strings.Builder
	fmt.Fprintf(&text, "Invoice: %s\nDate: %s\nOrder: %s\n\n",
		invoice.InvoiceNumber, invoice.IssuedAt.Format("02 Jan 2006"), invoice.OrderNumber)
	fmt.Fprintf(&text, "%s\n", invoice.Restaurant.Name)
	if invoice.Restaurant.Address != "" {
		fmt.Fprintf(&text, "%s\n", invoice.Restaurant.Address)
	}
	fmt.Fprintf(&text, "\nBilled to: %s\n\n", invoice.Customer.Name)
	for _, line := range invoice.Lines {
		fmt.Fprintf(&text, "%d x %s @ %s = %s\n", line.Quantity, line.Description,
			line.UnitPrice.StringFixed(2), line.Amount.StringFixed(2))
	}
	fmt.Fprintf(&text, "\nSubtotal: %s %s\n", invoice.Currency, invoice.Subtotal.StringFixed(2))
	fmt.Fprintf(&text, "Tax (%s%%): %s %s\n", invoice.TaxRate.String(), invoice.Currency, invoice.Tax.StringFixed(2))
	fmt.Fprintf(&text, "Total: %s %s\n", invoice.Currency, invoice.Total.StringFixed(2))
	fmt.Fprintf(&text, "Payment: %s (%s)\n", invoice.PaymentStatus, invoice.PaymentMethod)

	return Message{
		To:      invoice.Customer.Email,
		Subject: subject,
		Text:    text.String(),
		HTML:    simpleHTML(text.String()),
	}
}

func writeItems(b *strings.Builder, items models.OrderItems, currency string) {
	for _, item := range items {
		fmt.Fprintf(b, "- %d x %s: %s %s\n", item.Quantity, item.Name, currency, item.LineTotal.StringFixed(2))
	}
}

func simpleHTML(text string) string {
	paragraphs := strings.Split(strings.TrimSpace(text), "\n\n")
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, p := range paragraphs {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(p), "\n", "<br>"))
		b.WriteString("</p>")
	}
	b.WriteString("</body></html>")
	return b.String()
}
