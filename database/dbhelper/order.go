package dbhelper

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ray-remotestate/restro-qr/database"
	"github.com/ray-remotestate/restro-qr/models"
)

const orderColumns = `id, restaurant_id, order_number, order_type, table_number, customer_name, customer_phone,
	customer_email, items, subtotal, tax_rate, tax, total, status, payment_status, payment_method, notes, created_at, updated_at`

func scanOrder(row rowScanner) (models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.RestaurantID, &o.OrderNumber, &o.OrderType, &o.TableNumber, &o.CustomerName,
		&o.CustomerPhone, &o.CustomerEmail, &o.Items, &o.Subtotal, &o.TaxRate, &o.Tax, &o.Total, &o.Status,
		&o.PaymentStatus, &o.PaymentMethod, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

type OrderFilter struct {
	Status    models.OrderStatus
	OrderType models.OrderType
	Limit     int
}

// NextOrderSequence serialises order numbering per restaurant for the rest of
// the transaction and returns the database's current day with the next daily
// sequence number. The day comes from the transaction's NOW(), which is also
// the created_at of the order inserted in it.
func NextOrderSequence(ctx context.Context, q Queryer, restaurantID uuid.UUID) (time.Time, int, error) {
	if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, restaurantID.String()); err != nil {
		return time.Time{}, 0, fmt.Errorf("failed to lock order sequence: %w", err)
	}

	var (
		day   string
		count int
	)
	err := q.QueryRowContext(ctx, `
		SELECT to_char(NOW(), 'YYYYMMDD'), COUNT(*) FROM orders
		WHERE restaurant_id = $1
			AND created_at >= date_trunc('day', NOW())
			AND created_at < date_trunc('day', NOW()) + INTERVAL '1 day'`,
		restaurantID).Scan(&day, &count)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("failed to count orders: %w", err)
	}
	date, err := time.Parse("20060102", day)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("unexpected order day %q: %w", day, err)
	}
	return date, count + 1, nil
}

func CreateOrder(ctx context.Context, q Queryer, o *models.Order) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO orders (restaurant_id, order_number, order_type, table_number, customer_name, customer_phone,
			customer_email, items, subtotal, tax_rate, tax, total, status, payment_status, payment_method, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at`,
		o.RestaurantID, o.OrderNumber, o.OrderType, o.TableNumber, o.CustomerName, o.CustomerPhone,
		o.CustomerEmail, o.Items, o.Subtotal, o.TaxRate, o.Tax, o.Total, o.Status, o.PaymentStatus, o.PaymentMethod, o.Notes).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func GetOrder(ctx context.Context, q Queryer, id uuid.UUID) (models.Order, error) {
	row := q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		return models.Order{}, notFound(err)
	}
	return o, nil
}

func ListOrders(ctx context.Context, restaurantID uuid.UUID, filter OrderFilter) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE restaurant_id = $1`
	args := []any{restaurantID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.OrderType != "" {
		args = append(args, filter.OrderType)
		query += ` AND order_type = $` + strconv.Itoa(len(args))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := database.Restro.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateOrderStatus only succeeds when the stored status still equals from.
func UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (models.Order, error) {
	row := database.Restro.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+orderColumns, id, from, to)
	o, err := scanOrder(row)
	if err != nil {
		return models.Order{}, notFound(err)
	}
	return o, nil
}

// SetOrderPaymentStatus mirrors a transaction status onto its order. A paid
// order is never downgraded by a later attempt.
func SetOrderPaymentStatus(ctx context.Context, q Queryer, orderID uuid.UUID, status models.PaymentStatus) error {
	_, err := q.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $2, updated_at = NOW()
		WHERE id = $1 AND payment_status <> 'completed'`, orderID, status)
	if err != nil {
		return fmt.Errorf("failed to update order payment status: %w", err)
	}
	return nil
}
