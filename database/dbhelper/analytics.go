package dbhelper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ray-remotestate/restro-qr/database"
	"github.com/ray-remotestate/restro-qr/models"
)

// GetAnalytics aggregates the orders created in [from, to).
func GetAnalytics(ctx context.Context, restaurantID uuid.UUID, from, to time.Time) (models.Analytics, error) {
	a := models.Analytics{
		RestaurantID: restaurantID,
		From:         from,
		To:           to,
		ByStatus:     map[string]int64{},
		ByOrderType:  map[string]int64{},
		TopItems:     []models.ItemSales{},
		Daily:        []models.DailyRevenue{},
	}

	err := database.Restro.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE payment_status = 'completed'),
			COALESCE(SUM(total) FILTER (WHERE payment_status = 'completed'), 0)
		FROM orders
		WHERE restaurant_id = $1 AND created_at >= $2 AND created_at < $3`,
		restaurantID, from, to).Scan(&a.TotalOrders, &a.PaidOrders, &a.Revenue)
	if err != nil {
		return a, fmt.Errorf("failed to query order totals: %w", err)
	}
	if a.PaidOrders > 0 {
		a.AverageOrderValue = a.Revenue.Div(decimal.NewFromInt(a.PaidOrders)).Round(2)
	}

	if err := countBy(ctx, "status", restaurantID, from, to, a.ByStatus); err != nil {
		return a, err
	}
	if err := countBy(ctx, "order_type", restaurantID, from, to, a.ByOrderType); err != nil {
		return a, err
	}

	rows, err := database.Restro.QueryContext(ctx, `
		SELECT (item->>'menu_item_id')::uuid, item->>'name',
			SUM((item->>'quantity')::int), SUM((item->>'line_total')::numeric)
		FROM orders, jsonb_array_elements(items) AS item
		WHERE restaurant_id = $1 AND created_at >= $2 AND created_at < $3 AND status <> 'cancelled'
		GROUP BY 1, 2
		ORDER BY 3 DESC
		LIMIT 5`, restaurantID, from, to)
	if err != nil {
		return a, fmt.Errorf("failed to query top items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s models.ItemSales
		if err := rows.Scan(&s.MenuItemID, &s.Name, &s.Quantity, &s.Revenue); err != nil {
			return a, fmt.Errorf("failed to scan top item: %w", err)
		}
		a.TopItems = append(a.TopItems, s)
	}
	if err := rows.Err(); err != nil {
		return a, err
	}

	daily, err := database.Restro.QueryContext(ctx, `
		SELECT date_trunc('day', created_at), COUNT(*),
			COALESCE(SUM(total) FILTER (WHERE payment_status = 'completed'), 0)
		FROM orders
		WHERE restaurant_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY 1
		ORDER BY 1`, restaurantID, from, to)
	if err != nil {
		return a, fmt.Errorf("failed to query daily revenue: %w", err)
	}
	defer daily.Close()
	for daily.Next() {
		var d models.DailyRevenue
		if err := daily.Scan(&d.Day, &d.Orders, &d.Revenue); err != nil {
			return a, fmt.Errorf("failed to scan daily revenue: %w", err)
		}
		a.Daily = append(a.Daily, d)
	}
	return a, daily.Err()
}

func countBy(ctx context.Context, column string, restaurantID uuid.UUID, from, to time.Time, into map[string]int64) error {
	rows, err := database.Restro.QueryContext(ctx, `
		SELECT `+column+`, COUNT(*)
		FROM orders
		WHERE restaurant_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY 1`, restaurantID, from, to)
	if err != nil {
		return fmt.Errorf("failed to count orders by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		into[key] = n
	}
	return rows.Err()
}
