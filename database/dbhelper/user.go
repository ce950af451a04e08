package dbhelper

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ray-remotestate/restro-qr/database"
	"github.com/ray-remotestate/restro-qr/models"
)

func CreateUser(tx *sql.Tx, name, email, hashedPassword string, createdBy uuid.NullUUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(`INSERT INTO users (name, email, password, created_by) VALUES ($1, $2, $3, $4) RETURNING id`,
		name, email, hashedPassword, createdBy).Scan(&id)
	if isUniqueViolation(err) {
		return uuid.Nil, ErrConflict
	}
	return id, err
}

func IsUserExists(email string) (bool, error) {
	var count int
	err := database.Restro.QueryRow(`SELECT COUNT(*) FROM users WHERE LOWER(email) = LOWER($1) AND archived_at IS NULL`, email).Scan(&count)
	return count > 0, err
}

func AssignRole(tx *sql.Tx, userID uuid.UUID, role models.Role) error {
	_, err := tx.Exec(`INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`, userID, role)
	return err
}

func GetUserByEmail(email string) (models.User, error) {
	var user models.User
	err := database.Restro.QueryRow(`
		SELECT id, name, email, created_at FROM users
		WHERE LOWER(email) = LOWER($1) AND archived_at IS NULL`, email).
		Scan(&user.ID, &user.Name, &user.Email, &user.CreatedAt)
	if err != nil {
		return models.User{}, notFound(err)
	}
	return user, nil
}

func GetUserByPassword(email, password string) (uuid.UUID, string, error) {
	var id uuid.UUID
	var hashedPassword string
	var name string

	err := database.Restro.QueryRow(`
		SELECT id, name, password FROM users
		WHERE LOWER(email) = LOWER($1) AND archived_at IS NULL`, email).
		Scan(&id, &name, &hashedPassword)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("failed to look up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) != nil {
		return uuid.Nil, "", ErrInvalidCredentials
	}

	return id, name, nil
}

func GetUserRoles(userID uuid.UUID) ([]string, error) {
	rows, err := database.Restro.Query(`
		SELECT role FROM user_roles
		WHERE user_id = $1 AND archived_at IS NULL`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func HasRole(id uuid.UUID, role models.Role) (bool, error) {
	var roleExists bool
	err := database.Restro.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM user_roles
			WHERE user_id = $1 AND role = $2 AND archived_at IS NULL
		)`, id, role).Scan(&roleExists)
	if err != nil {
		return false, err
	}

	return roleExists, nil
}

func GrantRole(id uuid.UUID, role models.Role) error {
	_, err := database.Restro.Exec(`
		INSERT INTO user_roles (user_id, role)
		VALUES ($1, $2)`, id, role)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func ListUsersByRole(role models.Role) ([]models.User, error) {
	rows, err := database.Restro.Query(`
		SELECT u.id, u.name, u.email, u.created_at
		FROM users u
		JOIN user_roles ur ON u.id = ur.user_id
		WHERE ur.role = $1 AND u.archived_at IS NULL AND ur.archived_at IS NULL
		ORDER BY u.created_at`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
