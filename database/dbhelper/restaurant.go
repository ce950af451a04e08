package dbhelper

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ray-remotestate/restro-qr/database"
	"github.com/ray-remotestate/restro-qr/models"
)

const restaurantColumns = `id, name, slug, description, address, phone, email, currency, tax_rate, owner_id, created_at`

func scanRestaurant(row rowScanner) (models.Restaurant, error) {
	var r models.Restaurant
	err := row.Scan(&r.ID, &r.Name, &r.Slug, &r.Description, &r.Address, &r.Phone, &r.Email,
		&r.Currency, &r.TaxRate, &r.OwnerID, &r.CreatedAt)
	return r, err
}

func CreateRestaurant(ctx context.Context, r *models.Restaurant, createdBy uuid.UUID) error {
	err := database.Restro.QueryRowContext(ctx, `
		INSERT INTO restaurants (name, slug, description, address, phone, email, currency, tax_rate, owner_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		r.Name, r.Slug, r.Description, r.Address, r.Phone, r.Email, r.Currency, r.TaxRate, r.OwnerID, createdBy).
		Scan(&r.ID, &r.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert restaurant: %w", err)
	}
	return nil
}

func GetRestaurantByID(ctx context.Context, id uuid.UUID) (models.Restaurant, error) {
	row := database.Restro.QueryRowContext(ctx, `
		SELECT `+restaurantColumns+`
		FROM restaurants
		WHERE id = $1 AND archived_at IS NULL`, id)
	r, err := scanRestaurant(row)
	if err != nil {
		return models.Restaurant{}, notFound(err)
	}
	return r, nil
}

func GetRestaurantBySlug(ctx context.Context, slug string) (models.Restaurant, error) {
	row := database.Restro.QueryRowContext(ctx, `
		SELECT `+restaurantColumns+`
		FROM restaurants
		WHERE slug = $1 AND archived_at IS NULL`, slug)
	r, err := scanRestaurant(row)
	if err != nil {
		return models.Restaurant{}, notFound(err)
	}
	return r, nil
}

// ListRestaurantsForUser returns every restaurant for admins, otherwise the
// ones the user owns or manages.
func ListRestaurantsForUser(ctx context.Context, userID uuid.UUID, isAdmin bool) ([]models.Restaurant, error) {
	query := `
		SELECT ` + restaurantColumns + `
		FROM restaurants
		WHERE archived_at IS NULL`
	args := []any{}
	if !isAdmin {
		query += ` AND (owner_id = $1 OR id IN (SELECT restaurant_id FROM restaurant_managers WHERE user_id = $1))`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := database.Restro.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query restaurants: %w", err)
	}
	defer rows.Close()

	restaurants := make([]models.Restaurant, 0)
	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan restaurant: %w", err)
		}
		restaurants = append(restaurants, r)
	}
	return restaurants, rows.Err()
}

func UpdateRestaurant(ctx context.Context, r models.Restaurant) error {
	res, err := database.Restro.ExecContext(ctx, `
		UPDATE restaurants
		SET name = $2, description = $3, address = $4, phone = $5, email = $6, currency = $7, tax_rate = $8
		WHERE id = $1 AND archived_at IS NULL`,
		r.ID, r.Name, r.Description, r.Address, r.Phone, r.Email, r.Currency, r.TaxRate)
	if err != nil {
		return fmt.Errorf("failed to update restaurant: %w", err)
	}
	return requireAffected(res)
}

// CanManageRestaurant reports whether userID owns or manages the restaurant.
func CanManageRestaurant(ctx context.Context, userID, restaurantID uuid.UUID) (bool, error) {
	var allowed bool
	err := database.Restro.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM restaurants
			WHERE id = $1 AND owner_id = $2 AND archived_at IS NULL
		) OR EXISTS (
			SELECT 1 FROM restaurant_managers
			WHERE restaurant_id = $1 AND user_id = $2
		)`, restaurantID, userID).Scan(&allowed)
	if err != nil {
		return false, fmt.Errorf("failed to check restaurant access: %w", err)
	}
	return allowed, nil
}

func AssignManager(ctx context.Context, restaurantID, userID uuid.UUID) error {
	_, err := database.Restro.ExecContext(ctx, `
		INSERT INTO restaurant_managers (restaurant_id, user_id)
		VALUES ($1, $2)`, restaurantID, userID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to assign manager: %w", err)
	}
	return nil
}

func ListManagers(ctx context.Context, restaurantID uuid.UUID) ([]models.User, error) {
	rows, err := database.Restro.QueryContext(ctx, `
		SELECT u.id, u.name, u.email, u.created_at
		FROM users u
		JOIN restaurant_managers rm ON rm.user_id = u.id
		WHERE rm.restaurant_id = $1 AND u.archived_at IS NULL
		ORDER BY rm.created_at`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query managers: %w", err)
	}
	defer rows.Close()

	managers := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan manager: %w", err)
		}
		managers = append(managers, u)
	}
	return managers, rows.Err()
}
