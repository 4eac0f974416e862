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

const productColumns = "id, name, description, price, stock, image, is_active, created_at, updated_at"

func scanProduct(row interface{ Scan(...interface{}) error }) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock,
		&p.Image, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// categoryExistsCondition is the per-name AND filter: the product must have a
// pivot row to an active category with exactly this (lowercased) name.
const categoryExistsCondition = `EXISTS (
		SELECT 1 FROM product_category_pivot pcp
		JOIN product_categories pc ON pc.id = pcp.product_category_id
		WHERE pcp.product_id = p.id AND pc.is_active = TRUE AND LOWER(pc.name) = $%d
	)`

// ListActiveFiltered returns one page of active products matching every
// supplied filter, each with only its active categories attached.
func (s *PostgresStore) ListActiveFiltered(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) {
	var queryArgs []interface{}
	whereClauses := []string{"p.is_active = TRUE"}
	argID := 1

	for _, name := range normalizeNames(params.CategoryNames) {
		whereClauses = append(whereClauses, fmt.Sprintf(categoryExistsCondition, argID))
		queryArgs = append(queryArgs, name)
		argID++
	}
	if strict := normalizeNames(params.StrictCategoryNames); len(strict) > 0 {
		whereClauses = append(whereClauses, fmt.Sprintf(`(
		SELECT COUNT(DISTINCT pc.id) FROM product_category_pivot pcp
		JOIN product_categories pc ON pc.id = pcp.product_category_id
		WHERE pcp.product_id = p.id AND pc.is_active = TRUE AND LOWER(pc.name) = ANY($%d)
	) >= $%d`, argID, argID+1))
		queryArgs = append(queryArgs, pq.Array(strict), len(strict))
		argID += 2
	}
	if params.MinPrice != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("p.price >= $%d", argID))
		queryArgs = append(queryArgs, *params.MinPrice)
		argID++
	}
	if params.MaxPrice != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("p.price <= $%d", argID))
		queryArgs = append(queryArgs, *params.MaxPrice)
		argID++
	}
	if params.Search != nil && *params.Search != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("(p.name ILIKE $%d OR p.description ILIKE $%d)", argID, argID+1))
		searchTerm := "%" + *params.Search + "%"
		queryArgs = append(queryArgs, searchTerm, searchTerm)
		argID += 2
	}
	if params.InStock {
		whereClauses = append(whereClauses, "p.stock > 0")
	}

	whereCondition := " WHERE " + strings.Join(whereClauses, " AND ")

	countQuery := "SELECT COUNT(*) FROM products p" + whereCondition
	var totalCount int
	if err := s.db.QueryRowContext(ctx, countQuery, queryArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListActiveFiltered failed to count products: %w", err)
	}

	if totalCount == 0 {
		return []domain.Product{}, 0, nil
	}

	// The allow-list is the only SQL-injection defense for these
	// client-controlled identifiers; unknown values fall back silently.
	sortColumn := "created_at"
	allowedSortColumns := map[string]string{
		"name":       "name",
		"price":      "price",
		"created_at": "created_at",
		"updated_at": "updated_at",
	}
	if col, ok := allowedSortColumns[strings.ToLower(params.SortBy)]; ok {
		sortColumn = col
	}
	sortOrder := "DESC"
	if strings.ToLower(params.SortOrder) == "asc" {
		sortOrder = "ASC"
	}

	perPage := params.PerPage
	if perPage <= 0 {
		perPage = 15
	}
	page := params.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * perPage

	dataQuery := fmt.Sprintf(`
		SELECT p.id, p.name, p.description, p.price, p.stock, p.image, p.is_active, p.created_at, p.updated_at
		FROM products p%s ORDER BY p.%s %s LIMIT $%d OFFSET $%d`,
		whereCondition, sortColumn, sortOrder, argID, argID+1)
	finalQueryArgs := append(queryArgs, perPage, offset)

	rows, err := s.db.QueryContext(ctx, dataQuery, finalQueryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: ListActiveFiltered failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, perPage)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock,
			&p.Image, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("store: ListActiveFiltered failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("store: ListActiveFiltered iteration error: %w", err)
	}

	if err := loadActiveCategories(ctx, s.db, products); err != nil {
		return nil, 0, err
	}
	return products, totalCount, nil
}

// FindActiveWithActiveCategories returns the active product with the given id
// and its active categories, or ErrProductNotFound if missing or inactive.
func (s *PostgresStore) FindActiveWithActiveCategories(ctx context.Context, id int64) (*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1 AND is_active = TRUE;`, productColumns)
	product, err := scanProduct(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: FindActiveWithActiveCategories failed to scan row: %w", err)
	}

	page := []domain.Product{*product}
	if err := loadActiveCategories(ctx, s.db, page); err != nil {
		return nil, err
	}
	return &page[0], nil
}

// GetProductByID returns the product regardless of its active state. Used by
// admin flows that need to see soft-deleted rows.
func (s *PostgresStore) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1;`, productColumns)
	product, err := scanProduct(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: GetProductByID failed to scan row: %w", err)
	}
	return product, nil
}

// CreateProduct inserts the product and attaches the given category ids in a
// single transaction.
func (s *PostgresStore) CreateProduct(ctx context.Context, product *domain.Product, categoryIDs []int64) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: CreateProduct failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO products (name, description, price, stock, image, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING %s;`, productColumns)
	created, err := scanProduct(tx.QueryRowContext(ctx, query,
		product.Name, product.Description, product.Price, product.Stock, product.Image, product.IsActive,
	))
	if err != nil {
		return nil, fmt.Errorf("store: CreateProduct failed to scan row: %w", err)
	}

	if err := syncProductCategories(ctx, tx, created.ID, categoryIDs); err != nil {
		return nil, err
	}

	page := []domain.Product{*created}
	if err := loadActiveCategories(ctx, tx, page); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: CreateProduct failed to commit: %w", err)
	}
	return &page[0], nil
}

// UpdateProduct applies a partial update and, when a category set is
// supplied, replaces the association set, all in one transaction.
func (s *PostgresStore) UpdateProduct(ctx context.Context, id int64, changes ProductChanges) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: UpdateProduct failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var setClauses []string
	var queryArgs []interface{}
	argID := 1
	appendSet := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argID))
		queryArgs = append(queryArgs, value)
		argID++
	}
	if changes.Name != nil {
		appendSet("name", *changes.Name)
	}
	if changes.Description != nil {
		appendSet("description", *changes.Description)
	}
	if changes.Price != nil {
		appendSet("price", *changes.Price)
	}
	if changes.Stock != nil {
		appendSet("stock", *changes.Stock)
	}
	if changes.Image != nil {
		appendSet("image", *changes.Image)
	}
	if changes.IsActive != nil {
		appendSet("is_active", *changes.IsActive)
	}
	setClauses = append(setClauses, "updated_at = CURRENT_TIMESTAMP")

	query := fmt.Sprintf(`UPDATE products SET %s WHERE id = $%d RETURNING %s;`,
		strings.Join(setClauses, ", "), argID, productColumns)
	queryArgs = append(queryArgs, id)

	updated, err := scanProduct(tx.QueryRowContext(ctx, query, queryArgs...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: UpdateProduct failed to scan row: %w", err)
	}

	if changes.CategoryIDs != nil {
		if err := syncProductCategories(ctx, tx, id, *changes.CategoryIDs); err != nil {
			return nil, err
		}
	}

	page := []domain.Product{*updated}
	if err := loadActiveCategories(ctx, tx, page); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: UpdateProduct failed to commit: %w", err)
	}
	return &page[0], nil
}

// SoftDeleteProduct transitions an active product to inactive. The row and
// its associations are kept.
func (s *PostgresStore) SoftDeleteProduct(ctx context.Context, id int64) error {
	return s.softTransition(ctx, "products", id, false, ErrProductNotFound)
}

// ReactivateProduct transitions an inactive product back to active.
func (s *PostgresStore) ReactivateProduct(ctx context.Context, id int64) error {
	return s.softTransition(ctx, "products", id, true, ErrProductNotFound)
}

// softTransition flips is_active for the row, failing with ErrAlreadyActive /
// ErrAlreadyInactive when the row is already in the target state and the
// not-found sentinel when it does not exist. Shared by products and
// categories.
func (s *PostgresStore) softTransition(ctx context.Context, table string, id int64, target bool, notFound error) error {
	query := fmt.Sprintf(`
		UPDATE %s SET is_active = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND is_active = $3;`, table)
	result, err := s.db.ExecContext(ctx, query, target, id, !target)
	if err != nil {
		return fmt.Errorf("store: softTransition on %s failed: %w", table, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: softTransition failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	existsQuery := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)", table)
	if err := s.db.QueryRowContext(ctx, existsQuery, id).Scan(&exists); err != nil {
		return fmt.Errorf("store: softTransition existence check failed: %w", err)
	}
	if !exists {
		return notFound
	}
	if target {
		return ErrAlreadyActive
	}
	return ErrAlreadyInactive
}

// HardDeleteProduct physically removes the product after detaching all
// category associations, and returns the stored image path (if any) so the
// caller can remove the file once the transaction has committed.
func (s *PostgresStore) HardDeleteProduct(ctx context.Context, id int64) (*string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: HardDeleteProduct failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var imagePath *string
	err = tx.QueryRowContext(ctx,
		`SELECT image FROM products WHERE id = $1 FOR UPDATE;`, id).Scan(&imagePath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: HardDeleteProduct failed to lock row: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM product_category_pivot WHERE product_id = $1;`, id); err != nil {
		return nil, fmt.Errorf("store: HardDeleteProduct failed to detach categories: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1;`, id); err != nil {
		return nil, fmt.Errorf("store: HardDeleteProduct failed to delete row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: HardDeleteProduct failed to commit: %w", err)
	}
	return imagePath, nil
}
