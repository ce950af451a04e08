package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Restaurant struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Slug        string          `db:"slug" json:"slug"`
	Description string          `db:"description" json:"description"`
	Address     string          `db:"address" json:"address"`
	Phone       string          `db:"phone" json:"phone"`
	Email       string          `db:"email" json:"email"`
	Currency    string          `db:"currency" json:"currency"`
	TaxRate     decimal.Decimal `db:"tax_rate" json:"tax_rate"`
	OwnerID     uuid.UUID       `db:"owner_id" json:"owner_id"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

type MenuItem struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	RestaurantID uuid.UUID       `db:"restaurant_id" json:"restaurant_id"`
	Name         string          `db:"name" json:"name"`
	Description  string          `db:"description" json:"description"`
	Category     string          `db:"category" json:"category"`
	Price        decimal.Decimal `db:"price" json:"price"`
	IsVeg        bool            `db:"is_veg" json:"is_veg"`
	IsAvailable  bool            `db:"is_available" json:"is_available"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// MenuSection is one category of the public QR menu.
type MenuSection struct {
	Category string     `json:"category"`
	Items    []MenuItem `json:"items"`
}

// GroupMenu keeps categories in first-seen order.
func GroupMenu(items []MenuItem) []MenuSection {
	sections := make([]MenuSection, 0)
	index := make(map[string]int)
	for _, item := range items {
		category := item.Category
		if category == "" {
			category = "Other"
		}
		i, ok := index[category]
		if !ok {
			i = len(sections)
			index[category] = i
			sections = append(sections, MenuSection{Category: category})
		}
		sections[i].Items = append(sections[i].Items, item)
	}
	return sections
}
