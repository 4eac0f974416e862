package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category represents a product category. Inactive categories keep their row
// and associations but are hidden from default queries.
type Category struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   *string   `json:"description,omitempty"` // Pointer for nullable columns
	IsActive      bool      `json:"is_active"`
	ProductsCount *int      `json:"products_count,omitempty"` // Active-product count, set by list queries only
	Products      []Product `json:"products,omitempty"`       // Active products, set by the show query only
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Product represents a product in the catalog.
// Image holds a storage-relative path, never a URL; ImageURL is derived from
// the media store's public base path and is not persisted.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Image       *string         `json:"image,omitempty"`
	ImageURL    *string         `json:"image_url,omitempty"`
	IsActive    bool            `json:"is_active"`
	Categories  []Category      `json:"categories,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Price domain bounds enforced on create and update.
var (
	MinPrice = decimal.NewFromInt(1000)
	MaxPrice = decimal.NewFromInt(10000000)
)

// PriceInRange reports whether p lies within [MinPrice, MaxPrice].
func PriceInRange(p decimal.Decimal) bool {
	return p.Cmp(MinPrice) >= 0 && p.Cmp(MaxPrice) <= 0
}
