package dbhelper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ray-remotestate/restro-qr/database"
)

// EnsureInvoice returns the order's invoice number, allocating candidate when
// the order has none yet.
func EnsureInvoice(ctx context.Context, orderID uuid.UUID, candidate string) (string, time.Time, error) {
	var number string
	var issuedAt time.Time
	err := database.Restro.QueryRowContext(ctx, `
		INSERT INTO invoices (order_id, invoice_number)
		VALUES ($1, $2)
		ON CONFLICT (order_id) DO UPDATE SET order_id = EXCLUDED.order_id
		RETURNING invoice_number, issued_at`, orderID, candidate).Scan(&number, &issuedAt)
	if isUniqueViolation(err) {
		return "", time.Time{}, ErrConflict
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to allocate invoice: %w", err)
	}
	return number, issuedAt, nil
}
