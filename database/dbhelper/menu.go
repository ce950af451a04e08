package dbhelper

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ray-remotestate/restro-qr/database"
	"github.com/ray-remotestate/restro-qr/models"
)

const menuItemColumns = `id, restaurant_id, name, description, category, price, is_veg, is_available, created_at`

func scanMenuItem(row rowScanner) (models.MenuItem, error) {
	var m models.MenuItem
	err := row.Scan(&m.ID, &m.RestaurantID, &m.Name, &m.Description, &m.Category, &m.Price,
		&m.IsVeg, &m.IsAvailable, &m.CreatedAt)
	return m, err
}

func CreateMenuItem(ctx context.Context, item *models.MenuItem, createdBy uuid.UUID) error {
	err := database.Restro.QueryRowContext(ctx, `
		INSERT INTO menu_items (restaurant_id, name, description, category, price, is_veg, is_available, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		item.RestaurantID, item.Name, item.Description, item.Category, item.Price, item.IsVeg, item.IsAvailable, createdBy).
		Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert menu item: %w", err)
	}
	return nil
}

func ListMenuItems(ctx context.Context, restaurantID uuid.UUID, onlyAvailable bool) ([]models.MenuItem, error) {
	query := `
		SELECT ` + menuItemColumns + `
		FROM menu_items
		WHERE restaurant_id = $1 AND archived_at IS NULL`
	if onlyAvailable {
		query += ` AND is_available`
	}
	query += ` ORDER BY category, name`

	rows, err := database.Restro.QueryContext(ctx, query, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query menu items: %w", err)
	}
	defer rows.Close()

	items := make([]models.MenuItem, 0)
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan menu item: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// GetMenuItemsByIDs returns the live items of one restaurant keyed by id.
func GetMenuItemsByIDs(ctx context.Context, q Queryer, restaurantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error) {
	strIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		strIDs = append(strIDs, id.String())
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+menuItemColumns+`
		FROM menu_items
		WHERE restaurant_id = $1 AND id = ANY($2::uuid[]) AND archived_at IS NULL`,
		restaurantID, pq.Array(strIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query menu items: %w", err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID]models.MenuItem, len(ids))
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan menu item: %w", err)
		}
		items[m.ID] = m
	}
	return items, rows.Err()
}

func UpdateMenuItem(ctx context.Context, item models.MenuItem) error {
	res, err := database.Restro.ExecContext(ctx, `
		UPDATE menu_items
		SET name = $3, description = $4, category = $5, price = $6, is_veg = $7, is_available = $8
		WHERE id = $1 AND restaurant_id = $2 AND archived_at IS NULL`,
		item.ID, item.RestaurantID, item.Name, item.Description, item.Category, item.Price, item.IsVeg, item.IsAvailable)
	if err != nil {
		return fmt.Errorf("failed to update menu item: %w", err)
	}
	return requireAffected(res)
}

func SetMenuItemAvailability(ctx context.Context, restaurantID, id uuid.UUID, available bool) error {
	res, err := database.Restro.ExecContext(ctx, `
		UPDATE menu_items
		SET is_available = $3
		WHERE id = $1 AND restaurant_id = $2 AND archived_at IS NULL`, id, restaurantID, available)
	if err != nil {
		return fmt.Errorf("failed to update menu item availability: %w", err)
	}
	return requireAffected(res)
}

func ArchiveMenuItem(ctx context.Context, restaurantID, id uuid.UUID) error {
	res, err := database.Restro.ExecContext(ctx, `
		UPDATE menu_items
		SET archived_at = NOW()
		WHERE id = $1 AND restaurant_id = $2 AND archived_at IS NULL`, id, restaurantID)
	if err != nil {
		return fmt.Errorf("failed to archive menu item: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
