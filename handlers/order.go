package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ray-remotestate/restro-qr/database"
	"github.com/ray-remotestate/restro-qr/database/dbhelper"
	"github.com/ray-remotestate/restro-qr/models"
	"github.com/ray-remotestate/restro-qr/notifier"
	"github.com/ray-remotestate/restro-qr/realtime"
	"github.com/ray-remotestate/restro-qr/utils"
)

const (
	maxOrderLines    = 50
	maxLineQuantity  = 99
	defaultGuestName = "Guest"
)

type orderLineRequest struct {
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Quantity   int       `json:"quantity"`
	Notes      string    `json:"notes"`
}

type placeOrderRequest struct {
	RestaurantSlug string               `json:"restaurant_slug"`
	OrderType      models.OrderType     `json:"order_type"`
	TableNumber    string               `json:"table_number"`
	CustomerName   string               `json:"customer_name"`
	CustomerPhone  string               `json:"customer_phone"`
	CustomerEmail  string               `json:"customer_email"`
	Items          []orderLineRequest   `json:"items"`
	PaymentMethod  models.PaymentMethod `json:"payment_method"`
	Notes          string               `json:"notes"`
}

func (req *placeOrderRequest) validate() error {
	req.TableNumber = strings.TrimSpace(req.TableNumber)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)

	if req.RestaurantSlug == "" {
		return models.NewValidationError("restaurant_slug is required")
	}
	if !req.OrderType.IsValid() {
		return models.NewValidationError("order_type must be dine_in or online")
	}
	if req.OrderType == models.OrderTypeDineIn && req.TableNumber == "" {
		return models.NewValidationError("table_number is required for dine-in orders")
	}
	if req.OrderType == models.OrderTypeOnline && req.CustomerPhone == "" {
		return models.NewValidationError("customer_phone is required for online orders")
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentMethodCash
	}
	if !req.PaymentMethod.IsValid() {
		return models.NewValidationError("payment_method must be cash or online")
	}
	if req.CustomerName == "" {
		req.CustomerName = defaultGuestName
	}
	if len(req.Items) == 0 {
		return models.NewValidationError("order has no items")
	}
	if len(req.Items) > maxOrderLines {
		return models.NewValidationError(fmt.Sprintf("an order can have at most %d lines", maxOrderLines))
	}
	for _, line := range req.Items {
		if line.MenuItemID == uuid.Nil {
			return models.NewValidationError("menu_item_id is required")
		}
		if line.Quantity < 1 || line.Quantity > maxLineQuantity {
			return models.NewValidationError(fmt.Sprintf("quantity must be between 1 and %d", maxLineQuantity))
		}
	}
	return nil
}

// priceLines resolves every line against the menu. Prices always come from the
// database, never from the client.
func priceLines(lines []orderLineRequest, menu map[uuid.UUID]models.MenuItem) (models.OrderItems, error) {
	items := make(models.OrderItems, 0, len(lines))
	for _, line := range lines {
		menuItem, ok := menu[line.MenuItemID]
		if !ok {
			return nil, models.NewValidationError(fmt.Sprintf("menu item %s does not exist", line.MenuItemID))
		}
		if !menuItem.IsAvailable {
			return nil, models.NewValidationError(fmt.Sprintf("%s is not available right now", menuItem.Name))
		}
		items = append(items, models.OrderItem{
			MenuItemID: menuItem.ID,
			Name:       menuItem.Name,
			Quantity:   line.Quantity,
			UnitPrice:  menuItem.Price,
			Notes:      strings.TrimSpace(line.Notes),
		})
	}
	return items, nil
}

// PlaceOrder is the public checkout used by the QR menu.
func PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	restaurant, err := dbhelper.GetRestaurantBySlug(r.Context(), strings.ToLower(req.RestaurantSlug))
	if errors.Is(err, dbhelper.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "restaurant not found")
		return
	}
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to load restaurant")
		return
	}

	ids := make([]uuid.UUID, 0, len(req.Items))
	for _, line := range req.Items {
		ids = append(ids, line.MenuItemID)
	}

	order := models.Order{
		RestaurantID:  restaurant.ID,
		OrderType:     req.OrderType,
		TableNumber:   req.TableNumber,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		PaymentMethod: req.PaymentMethod,
		Notes:         strings.TrimSpace(req.Notes),
	}
	if order.OrderType == models.OrderTypeOnline {
		order.TableNumber = ""
	}

	ctx := r.Context()
	txErr := database.Tx(func(tx *sql.Tx) error {
		menu, err := dbhelper.GetMenuItemsByIDs(ctx, tx, restaurant.ID, ids)
		if err != nil {
			return err
		}
		order.Items, err = priceLines(req.Items, menu)
		if err != nil {
			return err
		}
		order.TaxRate = restaurant.TaxRate
		order.Subtotal, order.Tax, order.Total = models.PriceItems(order.Items, order.TaxRate)

		day, seq, err := dbhelper.NextOrderSequence(ctx, tx, restaurant.ID)
		if err != nil {
			return err
		}
		order.OrderNumber = models.FormatOrderNumber(day, seq)
		return dbhelper.CreateOrder(ctx, tx, &order)
	})
	if txErr != nil {
		respondStoreError(w, r, txErr, "failed to place order")
		return
	}

	logrus.WithFields(logrus.Fields{
		"order_id":      order.ID,
		"order_number":  order.OrderNumber,
		"restaurant_id": restaurant.ID,
		"total":         order.Total.String(),
	}).Info("order placed")

	realtime.Publish(ctx, realtime.OrderEvent(realtime.EventOrderCreated, order))
	if order.CustomerEmail != "" {
		notifier.SendAsync(notifier.OrderConfirmation(order, restaurant))
	}

	utils.RespondJSON(w, http.StatusCreated, order)
}

// orderTracking is the public view of an order. Anyone holding the id can
// read it, so it carries no customer contact details.
type orderTracking struct {
	ID            uuid.UUID            `json:"id"`
	RestaurantID  uuid.UUID            `json:"restaurant_id"`
	OrderNumber   string               `json:"order_number"`
	OrderType     models.OrderType     `json:"order_type"`
	TableNumber   string               `json:"table_number,omitempty"`
	Items         models.OrderItems    `json:"items"`
	Subtotal      decimal.Decimal      `json:"subtotal"`
	Tax           decimal.Decimal      `json:"tax"`
	Total         decimal.Decimal      `json:"total"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func newOrderTracking(o models.Order) orderTracking {
	return orderTracking{
		ID:            o.ID,
		RestaurantID:  o.RestaurantID,
		OrderNumber:   o.OrderNumber,
		OrderType:     o.OrderType,
		TableNumber:   o.TableNumber,
		Items:         o.Items,
		Subtotal:      o.Subtotal,
		Tax:           o.Tax,
		Total:         o.Total,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// GetOrderStatus lets a customer track an order by id.
func GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	order, err := dbhelper.GetOrder(r.Context(), database.Restro, orderID)
	if err != nil {
		respondStoreError(w, r, err, "failed to load order")
		return
	}
	utils.RespondJSON(w, http.StatusOK, newOrderTracking(order))
}

func ListOrders(w http.ResponseWriter, r *http.Request) {
	restaurantID, _, ok := restaurantFromPath(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := dbhelper.OrderFilter{
		Status:    models.OrderStatus(query.Get("status")),
		OrderType: models.OrderType(query.Get("type")),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		utils.RespondError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	if filter.OrderType != "" && !filter.OrderType.IsValid() {
		utils.RespondError(w, http.StatusBadRequest, "invalid type filter")
		return
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	orders, err := dbhelper.ListOrders(r.Context(), restaurantID, filter)
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to query orders")
		return
	}
	utils.RespondJSON(w, http.StatusOK, orders)
}

// UpdateOrderStatus moves an order along the kitchen workflow.
func UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Status models.OrderStatus `json:"status"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Status.IsValid() {
		utils.RespondError(w, http.StatusBadRequest, "invalid status")
		return
	}

	order, err := dbhelper.GetOrder(r.Context(), database.Restro, orderID)
	if err != nil {
		respondStoreError(w, r, err, "failed to load order")
		return
	}
	if _, ok := authorizeRestaurant(w, r, order.RestaurantID); !ok {
		return
	}

	if !order.Status.CanTransitionTo(req.Status) {
		utils.RespondError(w, http.StatusConflict, fmt.Sprintf("cannot move order from %s to %s", order.Status, req.Status))
		return
	}

	updated, err := dbhelper.UpdateOrderStatus(r.Context(), order.ID, order.Status, req.Status)
	if errors.Is(err, dbhelper.ErrNotFound) {
		utils.RespondError(w, http.StatusConflict, "order was changed by someone else, reload and retry")
		return
	}
	if err != nil {
		utils.RespondServerError(w, r, err, "failed to update order status")
		return
	}

	logrus.WithFields(logrus.Fields{
		"order_id": updated.ID,
		"from":     order.Status,
		"to":       updated.Status,
	}).Info("order status changed")
	realtime.Publish(r.Context(), realtime.OrderEvent(realtime.EventOrderStatusChanged, updated))

	utils.RespondJSON(w, http.StatusOK, updated)
}
