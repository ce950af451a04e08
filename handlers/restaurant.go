package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ray-remotestate/restro-qr/database/dbhelper"
	"github.com/ray-remotestate/restro-qr/middlewares"
	"github.com/ray-remotestate/restro-qr/models"
	"github.com/ray-remotestate/restro-qr/utils"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

var maxTaxRate = decimal.NewFromInt(100)

type restaurantRequest struct {
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Address     string          `json:"address"`
	Phone       string          `json:"phone"`
	Email       string          `json:"email"`
	Currency    string          `json:"currency"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

func (req *restaurantRequest) validate() error {
	req.Name = strings.TrimSpace(req.Name)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Name == "" {
		return models.NewValidationError("name is required")
	}
	if req.Currency == "" {
		req.Currency = "INR"
	}
	if len(req.Currency) != 3 {
		return models.NewValidationError("currency must be a 3 letter code")
	}
	if req.TaxRate.IsNegative() || req.TaxRate.GreaterThan(maxTaxRate) {
		return models.NewValidationError("tax_rate must be between 0 and 100")
	}
	return nil
}

func CreateRestaurant(w http.ResponseWriter, r *http.Request) {
	claims, err := middlewares.GetAuthenticatedUser(r)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req restaurantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	if !slugPattern.MatchString(req.Slug) {
		utils.RespondError(w, http.StatusBadRequest, "slug must be lowercase letters, digits and dashes")
		return
	}

	restaurant := models.Restaurant{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Address:     req.Address,
		Phone:       req.Phone,
		Email:       req.Email,
		Currency:    req.Currency,
		TaxRate:     req.TaxRate,
		OwnerID:     claims.UserID,
	}
	err = dbhelper.CreateRestaurant(r.Context(), &restaurant, claims.UserID)
	if errors.Is(err, dbhelper.ErrConflict) {
		utils.RespondError(w, http.StatusConflict, "slug is already taken")
		return
	}
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to create restaurant")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, restaurant)
}

func ListRestaurants(w http.ResponseWriter, r *http.Request) {
	claims, err := middlewares.GetAuthenticatedUser(r)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	restaurants, err := dbhelper.ListRestaurantsForUser(r.Context(), claims.UserID, claims.IsAdmin())
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to query restaurants")
		return
	}
	utils.RespondJSON(w, http.StatusOK, restaurants)
}

func GetRestaurant(w http.ResponseWriter, r *http.Request) {
	restaurantID, _, ok := restaurantFromPath(w, r)
	if !ok {
		return
	}
	restaurant, err := dbhelper.GetRestaurantByID(r.Context(), restaurantID)
	if err != nil {
		respondStoreError(w, r, err, "failed to load restaurant")
		return
	}
	utils.RespondJSON(w, http.StatusOK, restaurant)
}

// UpdateRestaurant changes contact details, currency and tax rate. The slug is
// printed on QR codes and never changes.
func UpdateRestaurant(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	restaurant, ok := ownerOrAdmin(w, r, restaurantID)
	if !ok {
		return
	}

	var req restaurantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	restaurant.Name = req.Name
	restaurant.Description = req.Description
	restaurant.Address = req.Address
	restaurant.Phone = req.Phone
	restaurant.Email = req.Email
	restaurant.Currency = req.Currency
	restaurant.TaxRate = req.TaxRate
	if err := dbhelper.UpdateRestaurant(r.Context(), restaurant); err != nil {
		respondStoreError(w, r, err, "failed to update restaurant")
		return
	}
	utils.RespondJSON(w, http.StatusOK, restaurant)
}

type menuItemRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	IsVeg       bool            `json:"is_veg"`
	IsAvailable *bool           `json:"is_available"`
}

func (req *menuItemRequest) toMenuItem() (models.MenuItem, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return models.MenuItem{}, models.NewValidationError("name is required")
	}
	if !req.Price.IsPositive() {
		return models.MenuItem{}, models.NewValidationError("price must be greater than zero")
	}
	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}
	return models.MenuItem{
		Name:        name,
		Description: req.Description,
		Category:    strings.TrimSpace(req.Category),
		Price:       req.Price.Round(2),
		IsVeg:       req.IsVeg,
		IsAvailable: available,
	}, nil
}

// ListMenuItems returns the full menu, unavailable items included, for staff.
func ListMenuItems(w http.ResponseWriter, r *http.Request) {
	restaurantID, _, ok := restaurantFromPath(w, r)
	if !ok {
		return
	}
	items, err := dbhelper.ListMenuItems(r.Context(), restaurantID, false)
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to fetch menu")
		return
	}
	utils.RespondJSON(w, http.StatusOK, items)
}

func CreateMenuItem(w http.ResponseWriter, r *http.Request) {
	restaurantID, claims, ok := restaurantFromPath(w, r)
	if !ok {
		return
	}

	var req menuItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := req.toMenuItem()
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	item.RestaurantID = restaurantID

	if err := dbhelper.CreateMenuItem(r.Context(), &item, claims.UserID); err != nil {
		utils.RespondServerError(w, r, err, "failed to create menu item")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, item)
}

func UpdateMenuItem(w http.ResponseWriter, r *http.Request) {
	restaurantID, _, ok := restaurantFromPath(w, r)
	if !ok {
		return
	}
	itemID, ok := pathUUID(w, r, "itemId")
	if !ok {
		return
	}

	var req menuItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := req.toMenuItem()
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	item.ID = itemID
	item.RestaurantID = restaurantID

	if err := dbhelper.UpdateMenuItem(r.Context(), item); err != nil {
		respondStoreError(w, r, err, "failed to update menu item")
		return
	}
	utils.RespondJSON(w, http.StatusOK, item)
}

func SetMenuItemAvailability(w http.ResponseWriter, r *http.Request) {
	restaurantID, _, ok := restaurantFromPath(w, r)
	if !ok {
		return
	}
	itemID, ok := pathUUID(w, r, "itemId")
	if !ok {
		return
	}

	var req struct {
		IsAvailable *bool `json:"is_available"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.IsAvailable == nil {
		utils.RespondError(w, http.StatusBadRequest, "is_available is required")
		return
	}

	if err := dbhelper.SetMenuItemAvailability(r.Context(), restaurantID, itemID, *req.IsAvailable); err != nil {
		respondStoreError(w, r, err, "failed to update availability")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"id":           itemID,
		"is_available": *req.IsAvailable,
	})
}

func ArchiveMenuItem(w http.ResponseWriter, r *http.Request) {
	restaurantID, _, ok := restaurantFromPath(w, r)
	if !ok {
		return
	}
	itemID, ok := pathUUID(w, r, "itemId")
	if !ok {
		return
	}

	if err := dbhelper.ArchiveMenuItem(r.Context(), restaurantID, itemID); err != nil {
		respondStoreError(w, r, err, "failed to archive menu item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPublicMenu serves the QR menu: the restaurant and its available items
// grouped by category.
func GetPublicMenu(w http.ResponseWriter, r *http.Request) {
	slug := strings.ToLower(muxVar(r, "slug"))
	restaurant, err := dbhelper.GetRestaurantBySlug(r.Context(), slug)
	if err != nil {
		respondStoreError(w, r, err, "failed to load restaurant")
		return
	}

	items, err := dbhelper.ListMenuItems(r.Context(), restaurant.ID, true)
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to fetch menu")
		return
	}

	type publicRestaurant struct {
		Name        string          `json:"name"`
		Slug        string          `json:"slug"`
		Description string          `json:"description"`
		Address     string          `json:"address"`
		Phone       string          `json:"phone"`
		Currency    string          `json:"currency"`
		TaxRate     decimal.Decimal `json:"tax_rate"`
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"restaurant": publicRestaurant{
			Name:        restaurant.Name,
			Slug:        restaurant.Slug,
			Description: restaurant.Description,
			Address:     restaurant.Address,
			Phone:       restaurant.Phone,
			Currency:    restaurant.Currency,
			TaxRate:     restaurant.TaxRate,
		},
		"sections": models.GroupMenu(items),
	})
}
