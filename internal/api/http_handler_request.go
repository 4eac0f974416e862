package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"catalog-backend/internal/domain"
	"catalog-backend/internal/store"
)

// ProductRequestInput defines the payload for submitting a product request.
type ProductRequestInput struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  int     `json:"quantity" validate:"required,gte=1"`
	Notes     *string `json:"notes" validate:"omitempty"`
}

func (h *HTTPHandler) CreateProductRequest(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	if principal == nil {
		h.respondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var input ProductRequestInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		h.respondValidationErrors(w, validationErrorMap(err))
		return
	}

	product, err := h.productStore.FindActiveWithActiveCategories(r.Context(), input.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			h.respondError(w, http.StatusNotFound, "Product not available")
			return
		}
		h.logger.Error("product lookup failed", slog.Int64("id", input.ProductID), slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to submit product request")
		return
	}
	if product.Stock < input.Quantity {
		h.respondError(w, http.StatusBadRequest, "Insufficient stock")
		return
	}

	created, err := h.requestStore.CreateProductRequest(r.Context(), &domain.ProductRequest{
		UserID:    principal.ID,
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		Notes:     input.Notes,
	})
	if err != nil {
		h.logger.Error("product request creation failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to submit product request")
		return
	}

	h.respondJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    created,
		Message: "Product request submitted successfully",
	})
}

func (h *HTTPHandler) ListProductRequests(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	requests, err := h.requestStore.ListProductRequests(r.Context())
	if err != nil {
		h.logger.Error("product request listing failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve product requests")
		return
	}
	for i := range requests {
		h.mediaStore.Decorate(requests[i].Product)
	}
	h.respondJSON(w, http.StatusOK, Response{Success: true, Data: requests})
}

// RequestStatusInput carries a status transition for a product request.
type RequestStatusInput struct {
	Status string  `json:"status" validate:"required"`
	Notes  *string `json:"notes" validate:"omitempty"`
}

func (h *HTTPHandler) UpdateProductRequestStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	requestID, err := parseIDParam(r, "requestId")
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Product request not found")
		return
	}

	var input RequestStatusInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		h.respondValidationErrors(w, validationErrorMap(err))
		return
	}
	if !domain.ValidRequestStatus(input.Status) {
		h.respondValidationErrors(w, map[string][]string{
			"status": {"must be one of pending, approved, rejected"},
		})
		return
	}

	updated, err := h.requestStore.UpdateProductRequestStatus(r.Context(), requestID, input.Status, input.Notes)
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			h.respondError(w, http.StatusNotFound, "Product request not found")
			return
		}
		h.logger.Error("product request status update failed", slog.Int64("id", requestID), slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to update product request")
		return
	}

	h.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    updated,
		Message: "Product request status updated successfully",
	})
}
