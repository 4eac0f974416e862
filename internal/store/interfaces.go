package store

import (
	"context"

	"github.com/shopspring/decimal"

	"catalog-backend/internal/domain"
)

// ListProductsParams holds the optional filters, sorting and pagination for
// the public product listing. Only active products with their active
// categories are ever returned.
type ListProductsParams struct {
	Page    int
	PerPage int

	// CategoryNames requires an association with an active category for
	// every name (AND semantics), matched case-insensitively after trimming.
	CategoryNames []string
	// StrictCategoryNames is the alternate AND filter: a single condition
	// requiring at least one active-category match per distinct name.
	StrictCategoryNames []string

	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Search   *string
	InStock  bool

	SortBy    string // allow-listed; anything else falls back to created_at
	SortOrder string // "asc" or "desc"; anything else falls back to desc
}

// ProductChanges describes a partial product update. Nil fields are left
// untouched; a nil CategoryIDs leaves the association set as is, while a
// non-nil one replaces it entirely.
type ProductChanges struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
	Image       *string
	IsActive    *bool
	CategoryIDs *[]int64
}

// ProductStorer defines the database operations for products.
type ProductStorer interface {
	ListActiveFiltered(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error)
	FindActiveWithActiveCategories(ctx context.Context, id int64) (*domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product *domain.Product, categoryIDs []int64) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id int64, changes ProductChanges) (*domain.Product, error)
	SoftDeleteProduct(ctx context.Context, id int64) error
	ReactivateProduct(ctx context.Context, id int64) error
	HardDeleteProduct(ctx context.Context, id int64) (imagePath *string, err error)
}

// CategoryChanges describes a partial category update.
type CategoryChanges struct {
	Name        *string
	Description *string
}

// CategoryStorer defines the database operations for categories.
type CategoryStorer interface {
	ListActiveWithProductCounts(ctx context.Context) ([]domain.Category, error)
	ListInactiveCategories(ctx context.Context) ([]domain.Category, error)
	GetActiveCategoryWithProducts(ctx context.Context, id int64) (*domain.Category, error)
	CreateOrReactivateCategory(ctx context.Context, name string, description *string) (category *domain.Category, reactivated bool, err error)
	UpdateCategory(ctx context.Context, id int64, changes CategoryChanges) (*domain.Category, error)
	SoftDeleteCategory(ctx context.Context, id int64) error
	ReactivateCategory(ctx context.Context, id int64) error
	BulkActivateCategories(ctx context.Context, ids []int64) (int64, error)
	ResolveActiveCategoryNames(ctx context.Context, names []string) ([]int64, error)
}

// UserStorer defines the database operations for principals.
type UserStorer interface {
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
}

// ProductRequestStorer defines the database operations for product requests.
type ProductRequestStorer interface {
	CreateProductRequest(ctx context.Context, request *domain.ProductRequest) (*domain.ProductRequest, error)
	ListProductRequests(ctx context.Context) ([]domain.ProductRequest, error)
	UpdateProductRequestStatus(ctx context.Context, id int64, status string, notes *string) (*domain.ProductRequest, error)
}
