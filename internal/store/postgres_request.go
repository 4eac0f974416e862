package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"catalog-backend/internal/domain"
)

const requestColumns = "id, user_id, product_id, quantity, notes, status, created_at, updated_at"

func scanProductRequest(row interface{ Scan(...interface{}) error }) (*domain.ProductRequest, error) {
	var r domain.ProductRequest
	err := row.Scan(&r.ID, &r.UserID, &r.ProductID, &r.Quantity, &r.Notes, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateProductRequest inserts a pending request. Product availability and
// stock are checked by the caller against the active product row.
func (s *PostgresStore) CreateProductRequest(ctx context.Context, request *domain.ProductRequest) (*domain.ProductRequest, error) {
	query := fmt.Sprintf(`
		INSERT INTO product_requests (user_id, product_id, quantity, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING %s;`, requestColumns)
	created, err := scanProductRequest(s.db.QueryRowContext(ctx, query,
		request.UserID, request.ProductID, request.Quantity, request.Notes))
	if err != nil {
		return nil, fmt.Errorf("store: CreateProductRequest failed to scan row: %w", err)
	}
	return created, nil
}

// ListProductRequests returns every request with its requester and product
// attached, newest first.
func (s *PostgresStore) ListProductRequests(ctx context.Context) ([]domain.ProductRequest, error) {
	query := `
		SELECT r.id, r.user_id, r.product_id, r.quantity, r.notes, r.status, r.created_at, r.updated_at,
			u.id, u.name, u.email, u.is_admin, u.created_at, u.updated_at,
			p.id, p.name, p.description, p.price, p.stock, p.image, p.is_active, p.created_at, p.updated_at
		FROM product_requests r
		JOIN users u ON u.id = r.user_id
		JOIN products p ON p.id = r.product_id
		ORDER BY r.created_at DESC;
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: ListProductRequests failed to query: %w", err)
	}
	defer rows.Close()

	requests := []domain.ProductRequest{}
	for rows.Next() {
		var r domain.ProductRequest
		var u domain.User
		var p domain.Product
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.ProductID, &r.Quantity, &r.Notes, &r.Status, &r.CreatedAt, &r.UpdatedAt,
			&u.ID, &u.Name, &u.Email, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt,
			&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.Image, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: ListProductRequests failed to scan row: %w", err)
		}
		r.User = &u
		r.Product = &p
		requests = append(requests, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListProductRequests iteration error: %w", err)
	}
	return requests, nil
}

// UpdateProductRequestStatus transitions a request to the given status. The
// status must already be validated against the known set.
func (s *PostgresStore) UpdateProductRequestStatus(ctx context.Context, id int64, status string, notes *string) (*domain.ProductRequest, error) {
	setClauses := []string{"status = $1", "updated_at = CURRENT_TIMESTAMP"}
	queryArgs := []interface{}{status}
	argID := 2
	if notes != nil {
		setClauses = append(setClauses, fmt.Sprintf("notes = $%d", argID))
		queryArgs = append(queryArgs, *notes)
		argID++
	}
	query := fmt.Sprintf(`UPDATE product_requests SET %s WHERE id = $%d RETURNING %s;`,
		strings.Join(setClauses, ", "), argID, requestColumns)
	queryArgs = append(queryArgs, id)

	updated, err := scanProductRequest(s.db.QueryRowContext(ctx, query, queryArgs...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("store: UpdateProductRequestStatus failed to scan row: %w", err)
	}
	return updated, nil
}
