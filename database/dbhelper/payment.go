package dbhelper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ray-remotestate/restro-qr/database"
	"github.com/ray-remotestate/restro-qr/models"
)

func GetPaymentSettings(ctx context.Context, restaurantID uuid.UUID) (models.PaymentSettings, error) {
	var s models.PaymentSettings
	err := database.Restro.QueryRowContext(ctx, `
		SELECT restaurant_id, provider, app_id, secret_key, environment, is_enabled, updated_at
		FROM payment_settings
		WHERE restaurant_id = $1`, restaurantID).
		Scan(&s.RestaurantID, &s.Provider, &s.AppID, &s.SecretKey, &s.Environment, &s.IsEnabled, &s.UpdatedAt)
	if err != nil {
		return models.PaymentSettings{}, notFound(err)
	}
	return s, nil
}

// UpsertPaymentSettings keeps the stored secret when s.SecretKey is empty.
func UpsertPaymentSettings(ctx context.Context, s *models.PaymentSettings) error {
	err := database.Restro.QueryRowContext(ctx, `
		INSERT INTO payment_settings (restaurant_id, provider, app_id, secret_key, environment, is_enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (restaurant_id) DO UPDATE
		SET provider = EXCLUDED.provider,
			app_id = EXCLUDED.app_id,
			secret_key = COALESCE(NULLIF(EXCLUDED.secret_key, ''), payment_settings.secret_key),
			environment = EXCLUDED.environment,
			is_enabled = EXCLUDED.is_enabled,
			updated_at = NOW()
		RETURNING secret_key, updated_at`,
		s.RestaurantID, s.Provider, s.AppID, s.SecretKey, s.Environment, s.IsEnabled).
		Scan(&s.SecretKey, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save payment settings: %w", err)
	}
	return nil
}

const transactionColumns = `id, order_id, restaurant_id, gateway_order_id, payment_session_id, cf_payment_id,
	amount, currency, status, gateway_status, failure_reason, created_at, updated_at`

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.OrderID, &t.RestaurantID, &t.GatewayOrderID, &t.PaymentSessionID, &t.CFPaymentID,
		&t.Amount, &t.Currency, &t.Status, &t.GatewayStatus, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// CreateTransaction inserts a pending transaction; t.ID must already be set
// because the gateway order id is derived from it.
func CreateTransaction(ctx context.Context, t *models.Transaction) error {
	err := database.Restro.QueryRowContext(ctx, `
		INSERT INTO transactions (id, order_id, restaurant_id, gateway_order_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		t.ID, t.OrderID, t.RestaurantID, t.GatewayOrderID, t.Amount, t.Currency, t.Status).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func SetTransactionSession(ctx context.Context, id uuid.UUID, sessionID, gatewayStatus string) error {
	_, err := database.Restro.ExecContext(ctx, `
		UPDATE transactions
		SET payment_session_id = $2, gateway_status = $3, updated_at = NOW()
		WHERE id = $1`, id, sessionID, gatewayStatus)
	if err != nil {
		return fmt.Errorf("failed to store payment session: %w", err)
	}
	return nil
}

func GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	row := database.Restro.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return models.Transaction{}, notFound(err)
	}
	return t, nil
}

func GetTransactionByGatewayOrderID(ctx context.Context, gatewayOrderID string) (models.Transaction, error) {
	row := database.Restro.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE gateway_order_id = $1`, gatewayOrderID)
	t, err := scanTransaction(row)
	if err != nil {
		return models.Transaction{}, notFound(err)
	}
	return t, nil
}

// LockTransaction reads a transaction with a row lock held until q commits.
func LockTransaction(ctx context.Context, q Queryer, id uuid.UUID) (models.Transaction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return models.Transaction{}, notFound(err)
	}
	return t, nil
}

func UpdateTransactionStatus(ctx context.Context, q Queryer, id uuid.UUID, result models.PaymentResult) error {
	var raw any
	if len(result.RawPayload) > 0 {
		raw = string(result.RawPayload)
	}
	_, err := q.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2,
			gateway_status = COALESCE(NULLIF($3, ''), gateway_status),
			cf_payment_id = COALESCE(NULLIF($4, ''), cf_payment_id),
			failure_reason = $5,
			raw_payload = COALESCE($6::jsonb, raw_payload),
			updated_at = NOW()
		WHERE id = $1`,
		id, result.Status, result.GatewayStatus, result.CFPaymentID, result.FailureReason, raw)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

// TouchTransaction records the latest gateway status and attempt failure
// without changing the local status, which pushes the row back in the
// reconciler queue.
func TouchTransaction(ctx context.Context, q Queryer, id uuid.UUID, gatewayStatus, failureReason string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE transactions
		SET gateway_status = COALESCE(NULLIF($2, ''), gateway_status),
			failure_reason = COALESCE(NULLIF($3, ''), failure_reason),
			updated_at = NOW()
		WHERE id = $1`, id, gatewayStatus, failureReason)
	if err != nil {
		return fmt.Errorf("failed to touch transaction: %w", err)
	}
	return nil
}

// ListStaleTransactions returns unsettled transactions untouched since before.
func ListStaleTransactions(ctx context.Context, before time.Time, limit int) ([]models.Transaction, error) {
	rows, err := database.Restro.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status IN ('pending', 'verifying') AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale transactions: %w", err)
	}
	defer rows.Close()

	txns := make([]models.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}
