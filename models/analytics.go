package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ItemSales struct {
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Name       string          `json:"name"`
	Quantity   int64           `json:"quantity"`
	Revenue    decimal.Decimal `json:"revenue"`
}

type DailyRevenue struct {
	Day     time.Time       `json:"day"`
	Orders  int64           `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

type Analytics struct {
	RestaurantID      uuid.UUID        `json:"restaurant_id"`
	From              time.Time        `json:"from"`
	To                time.Time        `json:"to"`
	TotalOrders       int64            `json:"total_orders"`
	PaidOrders        int64            `json:"paid_orders"`
	Revenue           decimal.Decimal  `json:"revenue"`
	AverageOrderValue decimal.Decimal  `json:"average_order_value"`
	ByStatus          map[string]int64 `json:"by_status"`
	ByOrderType       map[string]int64 `json:"by_order_type"`
	TopItems          []ItemSales      `json:"top_items"`
	Daily             []DailyRevenue   `json:"daily"`
}
