package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"catalog-backend/internal/auth"
	"catalog-backend/internal/media"
	"catalog-backend/internal/store"
)

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	logger         *slog.Logger
	productStore   store.ProductStorer
	categoryStore  store.CategoryStorer
	requestStore   store.ProductRequestStorer
	authService    *auth.Service
	mediaStore     *media.Store
	validate       *validator.Validate
	extendedRoutes bool
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(
	logger *slog.Logger,
	ps store.ProductStorer,
	cs store.CategoryStorer,
	rs store.ProductRequestStorer,
	authService *auth.Service,
	mediaStore *media.Store,
	extendedRoutes bool,
) *HTTPHandler {
	return &HTTPHandler{
		logger:         logger,
		productStore:   ps,
		categoryStore:  cs,
		requestStore:   rs,
		authService:    authService,
		mediaStore:     mediaStore,
		validate:       validator.New(),
		extendedRoutes: extendedRoutes,
	}
}

// --- Response envelope ---

// Response is the uniform JSON envelope used on every endpoint.
type Response struct {
	Success    bool                `json:"success"`
	Data       interface{}         `json:"data,omitempty"`
	Message    string              `json:"message,omitempty"`
	Pagination *Pagination         `json:"pagination,omitempty"`
	Filters    map[string]string   `json:"filters,omitempty"`
	Errors     map[string][]string `json:"errors,omitempty"`
}

// Pagination carries the listing bookkeeping. From/To are nil on empty pages.
type Pagination struct {
	CurrentPage int  `json:"current_page"`
	LastPage    int  `json:"last_page"`
	PerPage     int  `json:"per_page"`
	Total       int  `json:"total"`
	From        *int `json:"from"`
	To          *int `json:"to"`
}

func (h *HTTPHandler) respondJSON(w http.ResponseWriter, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, code int, message string) {
	h.respondJSON(w, code, Response{Success: false, Message: message})
}

func (h *HTTPHandler) respondValidationErrors(w http.ResponseWriter, errs map[string][]string) {
	h.respondJSON(w, http.StatusUnprocessableEntity, Response{
		Success: false,
		Message: "Validation failed",
		Errors:  errs,
	})
}

// validationErrorMap flattens validator errors into the envelope's errors
// key, one entry per offending field.
func validationErrorMap(err error) map[string][]string {
	out := map[string][]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			field := strings.ToLower(fe.Field())
			out[field] = append(out[field], fmt.Sprintf("failed the %s rule", fe.Tag()))
		}
		return out
	}
	out["request"] = []string{err.Error()}
	return out
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service. Routes outside the
// default surface mount only when extended routes are enabled.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		// Public surface
		r.Post("/login", h.Login)
		r.Get("/products", h.ListProducts)
		r.Get("/products/{productId}", h.GetProduct)
		r.Get("/categories", h.ListCategories)
		if h.extendedRoutes {
			r.Get("/categories/{categoryId}", h.GetCategory)
		}

		// Authenticated surface; admin checks happen inside the handlers,
		// before any input validation.
		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)

			r.Post("/logout", h.Logout)

			r.Post("/products", h.CreateProduct)
			r.Put("/products/{productId}", h.UpdateProduct)
			r.Delete("/products/{productId}", h.DeleteProduct)

			r.Post("/categories", h.CreateCategory)
			r.Delete("/categories/{categoryId}", h.DeleteCategory)

			if h.extendedRoutes {
				r.Get("/categories/inactive/list", h.ListInactiveCategories)
				r.Put("/categories/{categoryId}", h.UpdateCategory)
				r.Post("/categories/{categoryId}/reactivate", h.ReactivateCategory)
				r.Post("/categories/bulk-activate", h.BulkActivateCategories)

				r.Post("/products/{productId}/reactivate", h.ReactivateProduct)
				r.Delete("/products/{productId}/purge", h.HardDeleteProduct)

				r.Post("/product-requests", h.CreateProductRequest)
				r.Get("/product-requests", h.ListProductRequests)
				r.Put("/product-requests/{requestId}/status", h.UpdateProductRequestStatus)
			}
		})
	})
}
