package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ray-remotestate/restro-qr/database"
	"github.com/ray-remotestate/restro-qr/database/dbhelper"
	"github.com/ray-remotestate/restro-qr/middlewares"
	"github.com/ray-remotestate/restro-qr/models"
	"github.com/ray-remotestate/restro-qr/utils"
)

func Register(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	var req request
	if !decodeBody(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)

	if req.Name == "" || req.Email == "" || req.Password == "" {
		utils.RespondError(w, http.StatusBadRequest, "all fields are required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid email")
		return
	}
	if len(req.Password) < 6 {
		utils.RespondError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	exists, err := dbhelper.IsUserExists(req.Email)
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to check user existence")
		return
	}
	if exists {
		utils.RespondError(w, http.StatusConflict, "user already exists")
		return
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to hash password")
		return
	}

	var userID uuid.UUID
	txErr := database.Tx(func(tx *sql.Tx) error {
		userID, err = dbhelper.CreateUser(tx, req.Name, req.Email, hashedPassword, uuid.NullUUID{})
		if err != nil {
			return err
		}
		return dbhelper.AssignRole(tx, userID, models.RoleUser)
	})
	if errors.Is(txErr, dbhelper.ErrConflict) {
		utils.RespondError(w, http.StatusConflict, "user already exists")
		return
	}
	if txErr != nil {
		utils.RespondServerError(w, r, txErr, "failed to register user")
		return
	}

	roles := []string{string(models.RoleUser)}
	accessToken, refreshToken, err := utils.GenerateTokens(userID, roles)
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to generate tokens")
		return
	}
	setRefreshCookie(w, refreshToken)

	logrus.WithField("user_id", userID).Info("user registered")
	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"user_id":      userID,
		"email":        req.Email,
		"name":         req.Name,
		"roles":        roles,
		"access_token": accessToken,
	})
}

func Login(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	var req request
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		utils.RespondError(w, http.StatusBadRequest, "email and password required")
		return
	}

	userID, name, err := dbhelper.GetUserByPassword(strings.TrimSpace(req.Email), req.Password)
	if errors.Is(err, dbhelper.ErrInvalidCredentials) {
		utils.RespondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to log in")
		return
	}

	roles, err := dbhelper.GetUserRoles(userID)
	if err != nil {
		utils.RespondServerError(w, r, err, "could not fetch roles")
		return
	}
	if len(roles) == 0 {
		utils.RespondError(w, http.StatusForbidden, "no roles assigned")
		return
	}

	accessToken, refreshToken, err := utils.GenerateTokens(userID, roles)
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to generate tokens")
		return
	}
	setRefreshCookie(w, refreshToken)

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"user_id":      userID,
		"name":         name,
		"email":        req.Email,
		"access_token": accessToken,
		"roles":        roles,
		"message":      "Successfully logged in",
	})
}

// RefreshToken rotates the refresh cookie. Roles are re-read so grants made
// since the last login take effect.
func RefreshToken(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("refresh_token")
	if err != nil || cookie.Value == "" {
		utils.RespondError(w, http.StatusUnauthorized, "refresh token missing")
		return
	}

	claims, err := middlewares.ParseToken(cookie.Value)
	if err != nil || claims.TokenType != middlewares.TokenTypeRefresh {
		utils.RespondError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	roles, err := dbhelper.GetUserRoles(claims.UserID)
	if err != nil {
		utils.RespondServerError(w, r, err, "could not fetch roles")
		return
	}
	if len(roles) == 0 {
		utils.RespondError(w, http.StatusUnauthorized, "user no longer active")
		return
	}

	accessToken, refreshToken, err := utils.GenerateTokens(claims.UserID, roles)
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to generate tokens")
		return
	}
	setRefreshCookie(w, refreshToken)

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"access_token": accessToken,
		"roles":        roles,
	})
}

func Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    "",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"message": "Successfully logged out",
	})
}

// GrantOwner lets an admin promote an existing user to restaurant owner.
func GrantOwner(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Email string `json:"email"`
	}

	var req request
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" {
		utils.RespondError(w, http.StatusBadRequest, "email is required")
		return
	}

	user, err := dbhelper.GetUserByEmail(req.Email)
	if errors.Is(err, dbhelper.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "user does not exist")
		return
	}
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to look up user")
		return
	}

	err = dbhelper.GrantRole(user.ID, models.RoleOwner)
	if errors.Is(err, dbhelper.ErrConflict) {
		utils.RespondError(w, http.StatusConflict, "user is already an owner")
		return
	}
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to assign owner role")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]string{
		"message": "Owner role granted",
		"user_id": user.ID.String(),
	})
}

func ListOwners(w http.ResponseWriter, r *http.Request) {
	owners, err := dbhelper.ListUsersByRole(models.RoleOwner)
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to query owners")
		return
	}
	utils.RespondJSON(w, http.StatusOK, owners)
}

// AssignManager attaches an existing user to a restaurant as manager.
func AssignManager(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if _, ok := ownerOrAdmin(w, r, restaurantID); !ok {
		return
	}

	type request struct {
		Email string `json:"email"`
	}
	var req request
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" {
		utils.RespondError(w, http.StatusBadRequest, "email is required")
		return
	}

	user, err := dbhelper.GetUserByEmail(req.Email)
	if errors.Is(err, dbhelper.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "user does not exist")
		return
	}
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to look up user")
		return
	}

	if err := dbhelper.AssignManager(r.Context(), restaurantID, user.ID); err != nil {
		if errors.Is(err, dbhelper.ErrConflict) {
			utils.RespondError(w, http.StatusConflict, "user already manages this restaurant")
			return
		}
		utils.RespondServerError(w, r, err, "failed to assign manager")
		return
	}
	if err := dbhelper.GrantRole(user.ID, models.RoleManager); err != nil && !errors.Is(err, dbhelper.ErrConflict) {
		utils.RespondServerError(w, r, err, "failed to assign manager role")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]string{
		"message": "Manager assigned",
		"user_id": user.ID.String(),
	})
}

func ListManagers(w http.ResponseWriter, r *http.Request) {
	restaurantID, _, ok := restaurantFromPath(w, r)
	if !ok {
		return
	}
	managers, err := dbhelper.ListManagers(r.Context(), restaurantID)
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to query managers")
		return
	}
	utils.RespondJSON(w, http.StatusOK, managers)
}
