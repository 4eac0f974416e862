package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"catalog-backend/internal/domain"
)

// Predefined errors for store operations
var (
	ErrProductNotFound    = errors.New("store: product not found")
	ErrCategoryNotFound   = errors.New("store: category not found")
	ErrCategoryNameExists = errors.New("store: category name already exists")
	ErrAlreadyActive      = errors.New("store: entity is already active")
	ErrAlreadyInactive    = errors.New("store: entity is already inactive")
	ErrUserNotFound       = errors.New("store: user not found")
	ErrRequestNotFound    = errors.New("store: product request not found")
)

// InvalidCategoriesError reports every requested category name that did not
// resolve to an active category, not just the first.
type InvalidCategoriesError struct {
	Names []string
}

func (e *InvalidCategoriesError) Error() string {
	return "store: invalid or inactive categories: " + strings.Join(e.Names, ", ")
}

// PostgresStore implements the storer interfaces using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx so shared loaders can run
// inside or outside a transaction.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// isUniqueViolation reports whether err is a Postgres unique violation on the
// given constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return strings.Contains(pqErr.Constraint, constraint) || constraint == ""
	}
	return false
}

// normalizeNames trims, lowercases and deduplicates category names while
// preserving input order of first occurrence.
func normalizeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// loadActiveCategories attaches each product's active categories in one query.
func loadActiveCategories(ctx context.Context, q queryer, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]int64, len(products))
	index := make(map[int64]int, len(products))
	for i := range products {
		ids[i] = products[i].ID
		index[products[i].ID] = i
		products[i].Categories = []domain.Category{}
	}

	query := `
		SELECT pcp.product_id, pc.id, pc.name, pc.description, pc.is_active, pc.created_at, pc.updated_at
		FROM product_category_pivot pcp
		JOIN product_categories pc ON pc.id = pcp.product_category_id
		WHERE pcp.product_id = ANY($1) AND pc.is_active = TRUE
		ORDER BY pc.name ASC;
	`
	rows, err := q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("store: loadActiveCategories query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID int64
		var c domain.Category
		if err := rows.Scan(&productID, &c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return fmt.Errorf("store: loadActiveCategories failed to scan row: %w", err)
		}
		i, ok := index[productID]
		if !ok {
			continue
		}
		products[i].Categories = append(products[i].Categories, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: loadActiveCategories iteration error: %w", err)
	}
	return nil
}

// syncProductCategories replaces the product's full association set with
// exactly the given ids. Runs inside the caller's transaction.
func syncProductCategories(ctx context.Context, tx *sql.Tx, productID int64, categoryIDs []int64) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM product_category_pivot WHERE product_id = $1;`, productID); err != nil {
		return fmt.Errorf("store: syncProductCategories failed to detach: %w", err)
	}
	if len(categoryIDs) == 0 {
		return nil
	}
	// Deduplicate so the unique (product_id, product_category_id) pair holds.
	dedup := make([]int64, 0, len(categoryIDs))
	seen := make(map[int64]struct{}, len(categoryIDs))
	for _, id := range categoryIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		dedup = append(dedup, id)
	}
	sort.Slice(dedup, func(i, j int) bool { return dedup[i] < dedup[j] })

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO product_category_pivot (product_id, product_category_id)
		SELECT $1, unnest($2::bigint[]);
	`, productID, pq.Array(dedup)); err != nil {
		return fmt.Errorf("store: syncProductCategories failed to attach: %w", err)
	}
	return nil
}
