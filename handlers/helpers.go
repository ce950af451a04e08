package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ray-remotestate/restro-qr/database/dbhelper"
	"github.com/ray-remotestate/restro-qr/middlewares"
	"github.com/ray-remotestate/restro-qr/models"
	"github.com/ray-remotestate/restro-qr/utils"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func muxVar(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}

func pathUUID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(muxVar(r, key))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid "+key)
		return uuid.Nil, false
	}
	return id, true
}

// respondStoreError maps dbhelper and validation errors onto HTTP statuses.
func respondStoreError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, dbhelper.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, dbhelper.ErrConflict):
		utils.RespondError(w, http.StatusConflict, "already exists")
	case models.IsValidation(err):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		utils.RespondServerError(w, r, err, msg)
	}
}

// authorizeRestaurant lets admins, the owner and assigned managers through.
func authorizeRestaurant(w http.ResponseWriter, r *http.Request, restaurantID uuid.UUID) (*middlewares.Claims, bool) {
	claims, err := middlewares.GetAuthenticatedUser(r)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	if claims.IsAdmin() {
		return claims, true
	}
	allowed, err := dbhelper.CanManageRestaurant(r.Context(), claims.UserID, restaurantID)
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to check restaurant access")
		return nil, false
	}
	if !allowed {
		utils.RespondError(w, http.StatusForbidden, "forbidden: no access to this restaurant")
		return nil, false
	}
	return claims, true
}

// restaurantFromPath parses {id} and authorizes the caller for it.
func restaurantFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, *middlewares.Claims, bool) {
	restaurantID, ok := pathUUID(w, r, "id")
	if !ok {
		return uuid.Nil, nil, false
	}
	claims, ok := authorizeRestaurant(w, r, restaurantID)
	if !ok {
		return uuid.Nil, nil, false
	}
	return restaurantID, claims, true
}

// ownerOrAdmin loads the restaurant and requires the caller to own it.
func ownerOrAdmin(w http.ResponseWriter, r *http.Request, restaurantID uuid.UUID) (models.Restaurant, bool) {
	claims, err := middlewares.GetAuthenticatedUser(r)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return models.Restaurant{}, false
	}
	restaurant, err := dbhelper.GetRestaurantByID(r.Context(), restaurantID)
	if err != nil {
		respondStoreError(w, r, err, "failed to load restaurant")
		return models.Restaurant{}, false
	}
	if !claims.IsAdmin() && restaurant.OwnerID != claims.UserID {
		utils.RespondError(w, http.StatusForbidden, "forbidden: owner access required")
		return models.Restaurant{}, false
	}
	return restaurant, true
}

func setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    token,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		Expires:  time.Now().Add(utils.RefreshTokenTTL),
	})
}
