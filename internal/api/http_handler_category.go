package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"catalog-backend/internal/store"
)

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categoryStore.ListActiveWithProductCounts(r.Context())
	if err != nil {
		h.logger.Error("category listing failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve categories")
		return
	}
	h.respondJSON(w, http.StatusOK, Response{Success: true, Data: categories})
}

func (h *HTTPHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, err := parseIDParam(r, "categoryId")
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Category not found")
		return
	}

	category, err := h.categoryStore.GetActiveCategoryWithProducts(r.Context(), categoryID)
	if err != nil {
		if errors.Is(err, store.ErrCategoryNotFound) {
			h.respondError(w, http.StatusNotFound, "Category not found")
			return
		}
		h.logger.Error("category lookup failed", slog.Int64("id", categoryID), slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve category")
		return
	}
	for i := range category.Products {
		h.mediaStore.Decorate(&category.Products[i])
	}

	h.respondJSON(w, http.StatusOK, Response{Success: true, Data: category})
}

// CategoryCreateInput defines the expected input for creating a category.
type CategoryCreateInput struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Description *string `json:"description" validate:"omitempty"`
}

func (h *HTTPHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	var input CategoryCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		h.respondValidationErrors(w, validationErrorMap(err))
		return
	}

	category, reactivated, err := h.categoryStore.CreateOrReactivateCategory(r.Context(), input.Name, input.Description)
	if err != nil {
		if errors.Is(err, store.ErrCategoryNameExists) {
			h.respondValidationErrors(w, map[string][]string{"name": {"has already been taken"}})
			return
		}
		h.logger.Error("category creation failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to create category")
		return
	}

	if reactivated {
		h.respondJSON(w, http.StatusOK, Response{
			Success: true,
			Data:    category,
			Message: "Category reactivated successfully",
		})
		return
	}
	h.respondJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    category,
		Message: "Category created successfully",
	})
}

// CategoryUpdateInput defines the expected input for a partial category
// update.
type CategoryUpdateInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty"`
}

func (h *HTTPHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	categoryID, err := parseIDParam(r, "categoryId")
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Category not found")
		return
	}

	var input CategoryUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		h.respondValidationErrors(w, validationErrorMap(err))
		return
	}

	updated, err := h.categoryStore.UpdateCategory(r.Context(), categoryID, store.CategoryChanges{
		Name:        input.Name,
		Description: input.Description,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrCategoryNotFound):
			h.respondError(w, http.StatusNotFound, "Category not found")
		case errors.Is(err, store.ErrCategoryNameExists):
			h.respondValidationErrors(w, map[string][]string{"name": {"has already been taken"}})
		default:
			h.logger.Error("category update failed", slog.Int64("id", categoryID), slog.Any("error", err))
			h.respondError(w, http.StatusInternalServerError, "Failed to update category")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    updated,
		Message: "Category updated successfully",
	})
}

func (h *HTTPHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	categoryID, err := parseIDParam(r, "categoryId")
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Category not found")
		return
	}

	if err := h.categoryStore.SoftDeleteCategory(r.Context(), categoryID); err != nil {
		switch {
		case errors.Is(err, store.ErrCategoryNotFound):
			h.respondError(w, http.StatusNotFound, "Category not found")
		case errors.Is(err, store.ErrAlreadyInactive):
			h.respondError(w, http.StatusBadRequest, "Category is already inactive")
		default:
			h.logger.Error("category delete failed", slog.Int64("id", categoryID), slog.Any("error", err))
			h.respondError(w, http.StatusInternalServerError, "Failed to delete category")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, Response{Success: true, Message: "Category deleted successfully"})
}

func (h *HTTPHandler) ReactivateCategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	categoryID, err := parseIDParam(r, "categoryId")
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Category not found")
		return
	}

	if err := h.categoryStore.ReactivateCategory(r.Context(), categoryID); err != nil {
		switch {
		case errors.Is(err, store.ErrCategoryNotFound):
			h.respondError(w, http.StatusNotFound, "Category not found")
		case errors.Is(err, store.ErrAlreadyActive):
			h.respondError(w, http.StatusBadRequest, "Category is already active")
		default:
			h.logger.Error("category reactivate failed", slog.Int64("id", categoryID), slog.Any("error", err))
			h.respondError(w, http.StatusInternalServerError, "Failed to reactivate category")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, Response{Success: true, Message: "Category reactivated successfully"})
}

// BulkActivateInput lists the inactive categories to activate at once.
type BulkActivateInput struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

func (h *HTTPHandler) BulkActivateCategories(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	var input BulkActivateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		h.respondValidationErrors(w, validationErrorMap(err))
		return
	}

	activated, err := h.categoryStore.BulkActivateCategories(r.Context(), input.IDs)
	if err != nil {
		h.logger.Error("category bulk activation failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to activate categories")
		return
	}

	h.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: fmt.Sprintf("%d categories activated", activated),
	})
}

func (h *HTTPHandler) ListInactiveCategories(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	categories, err := h.categoryStore.ListInactiveCategories(r.Context())
	if err != nil {
		h.logger.Error("inactive category listing failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve categories")
		return
	}
	h.respondJSON(w, http.StatusOK, Response{Success: true, Data: categories})
}
