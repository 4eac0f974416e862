package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"catalog-backend/internal/domain"
)

const categoryColumns = "id, name, description, is_active, created_at, updated_at"

func scanCategory(row interface{ Scan(...interface{}) error }) (*domain.Category, error) {
	var c domain.Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListActiveWithProductCounts returns every active category together with the
// number of active products associated with it.
func (s *PostgresStore) ListActiveWithProductCounts(ctx context.Context) ([]domain.Category, error) {
	query := `
		SELECT c.id, c.name, c.description, c.is_active, c.created_at, c.updated_at,
			COUNT(p.id) FILTER (WHERE p.is_active = TRUE) AS products_count
		FROM product_categories c
		LEFT JOIN product_category_pivot pcp ON pcp.product_category_id = c.id
		LEFT JOIN products p ON p.id = pcp.product_id
		WHERE c.is_active = TRUE
		GROUP BY c.id
		ORDER BY c.name ASC;
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: ListActiveWithProductCounts failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		var count int
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt, &c.UpdatedAt, &count); err != nil {
			return nil, fmt.Errorf("store: ListActiveWithProductCounts failed to scan row: %w", err)
		}
		c.ProductsCount = &count
		categories = append(categories, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListActiveWithProductCounts iteration error: %w", err)
	}
	return categories, nil
}

// ListInactiveCategories returns every soft-deleted category.
func (s *PostgresStore) ListInactiveCategories(ctx context.Context) ([]domain.Category, error) {
	query := fmt.Sprintf(`SELECT %s FROM product_categories WHERE is_active = FALSE ORDER BY name ASC;`, categoryColumns)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: ListInactiveCategories failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []domain.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("store: ListInactiveCategories failed to scan row: %w", err)
		}
		categories = append(categories, *c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListInactiveCategories iteration error: %w", err)
	}
	return categories, nil
}

// GetActiveCategoryWithProducts returns the active category and its active
// products, or ErrCategoryNotFound when missing or inactive.
func (s *PostgresStore) GetActiveCategoryWithProducts(ctx context.Context, id int64) (*domain.Category, error) {
	query := fmt.Sprintf(`SELECT %s FROM product_categories WHERE id = $1 AND is_active = TRUE;`, categoryColumns)
	category, err := scanCategory(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("store: GetActiveCategoryWithProducts failed to scan row: %w", err)
	}

	productsQuery := `
		SELECT p.id, p.name, p.description, p.price, p.stock, p.image, p.is_active, p.created_at, p.updated_at
		FROM products p
		JOIN product_category_pivot pcp ON pcp.product_id = p.id
		WHERE pcp.product_category_id = $1 AND p.is_active = TRUE
		ORDER BY p.name ASC;
	`
	rows, err := s.db.QueryContext(ctx, productsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("store: GetActiveCategoryWithProducts failed to query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock,
			&p.Image, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: GetActiveCategoryWithProducts failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: GetActiveCategoryWithProducts iteration error: %w", err)
	}
	category.Products = products
	return category, nil
}

// CreateOrReactivateCategory inserts a category, or reactivates the existing
// row when the name collides with an inactive one. Name uniqueness spans
// active and inactive rows; the unique index on LOWER(name) closes the
// check-then-act race, and the 23505 branch decides between conflict and
// reactivation.
func (s *PostgresStore) CreateOrReactivateCategory(ctx context.Context, name string, description *string) (*domain.Category, bool, error) {
	insertQuery := fmt.Sprintf(`
		INSERT INTO product_categories (name, description)
		VALUES ($1, $2)
		RETURNING %s;`, categoryColumns)
	created, err := scanCategory(s.db.QueryRowContext(ctx, insertQuery, name, description))
	if err == nil {
		return created, false, nil
	}
	if !isUniqueViolation(err, "product_categories_name_key") {
		return nil, false, fmt.Errorf("store: CreateOrReactivateCategory failed to insert: %w", err)
	}

	selectQuery := fmt.Sprintf(`SELECT %s FROM product_categories WHERE LOWER(name) = LOWER($1);`, categoryColumns)
	existing, err := scanCategory(s.db.QueryRowContext(ctx, selectQuery, name))
	if err != nil {
		return nil, false, fmt.Errorf("store: CreateOrReactivateCategory failed to load existing row: %w", err)
	}
	if existing.IsActive {
		return nil, false, ErrCategoryNameExists
	}

	reactivateQuery := fmt.Sprintf(`
		UPDATE product_categories
		SET is_active = TRUE, description = COALESCE($2, description), updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING %s;`, categoryColumns)
	reactivated, err := scanCategory(s.db.QueryRowContext(ctx, reactivateQuery, existing.ID, description))
	if err != nil {
		return nil, false, fmt.Errorf("store: CreateOrReactivateCategory failed to reactivate: %w", err)
	}
	return reactivated, true, nil
}

// UpdateCategory applies a partial update. It will also find inactive rows so
// admins can rename a soft-deleted category.
func (s *PostgresStore) UpdateCategory(ctx context.Context, id int64, changes CategoryChanges) (*domain.Category, error) {
	var setClauses []string
	var queryArgs []interface{}
	argID := 1
	if changes.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argID))
		queryArgs = append(queryArgs, *changes.Name)
		argID++
	}
	if changes.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argID))
		queryArgs = append(queryArgs, *changes.Description)
		argID++
	}
	setClauses = append(setClauses, "updated_at = CURRENT_TIMESTAMP")

	query := fmt.Sprintf(`UPDATE product_categories SET %s WHERE id = $%d RETURNING %s;`,
		strings.Join(setClauses, ", "), argID, categoryColumns)
	queryArgs = append(queryArgs, id)

	updated, err := scanCategory(s.db.QueryRowContext(ctx, query, queryArgs...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		if isUniqueViolation(err, "product_categories_name_key") {
			return nil, ErrCategoryNameExists
		}
		return nil, fmt.Errorf("store: UpdateCategory failed to scan row: %w", err)
	}
	return updated, nil
}

// SoftDeleteCategory transitions an active category to inactive. Its products
// stay active but drop out of default listings for this category.
func (s *PostgresStore) SoftDeleteCategory(ctx context.Context, id int64) error {
	return s.softTransition(ctx, "product_categories", id, false, ErrCategoryNotFound)
}

// ReactivateCategory transitions an inactive category back to active and
// fails with ErrAlreadyActive when it is not inactive.
func (s *PostgresStore) ReactivateCategory(ctx context.Context, id int64) error {
	return s.softTransition(ctx, "product_categories", id, true, ErrCategoryNotFound)
}

// BulkActivateCategories activates every listed inactive category and reports
// how many rows changed.
func (s *PostgresStore) BulkActivateCategories(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE product_categories
		SET is_active = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE id = ANY($1) AND is_active = FALSE;
	`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("store: BulkActivateCategories failed: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: BulkActivateCategories failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// ResolveActiveCategoryNames maps category names to active category ids,
// case-insensitively. When any name does not resolve, the whole call fails
// with an InvalidCategoriesError listing every unresolved name.
func (s *PostgresStore) ResolveActiveCategoryNames(ctx context.Context, names []string) ([]int64, error) {
	normalized := normalizeNames(names)
	if len(normalized) == 0 {
		return []int64{}, nil
	}

	query := `
		SELECT LOWER(name), id FROM product_categories
		WHERE LOWER(name) = ANY($1) AND is_active = TRUE;
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(normalized))
	if err != nil {
		return nil, fmt.Errorf("store: ResolveActiveCategoryNames failed to query: %w", err)
	}
	defer rows.Close()

	resolved := make(map[string]int64, len(normalized))
	for rows.Next() {
		var name string
		var id int64
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("store: ResolveActiveCategoryNames failed to scan row: %w", err)
		}
		resolved[name] = id
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ResolveActiveCategoryNames iteration error: %w", err)
	}

	ids := make([]int64, 0, len(normalized))
	var invalid []string
	for _, name := range normalized {
		id, ok := resolved[name]
		if !ok {
			invalid = append(invalid, name)
			continue
		}
		ids = append(ids, id)
	}
	if len(invalid) > 0 {
		return nil, &InvalidCategoriesError{Names: invalid}
	}
	return ids, nil
}
