package api

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"catalog-backend/internal/domain"
	"catalog-backend/internal/media"
	"catalog-backend/internal/store"
)

const (
	defaultPerPage = 15
	maxPerPage     = 50
)

func parseIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// splitNameList flattens repeated and comma-separated values into one list of
// trimmed names.
func splitNameList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// listFilterKeys is the recognized-parameter set echoed back to clients.
var listFilterKeys = []string{
	"categories", "category_name", "strict_categories",
	"search", "min_price", "max_price", "in_stock",
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := store.ListProductsParams{Page: 1, PerPage: defaultPerPage}
	errs := map[string][]string{}

	if values, ok := q["categories"]; ok {
		params.CategoryNames = splitNameList(values)
	}
	if name := strings.TrimSpace(q.Get("category_name")); name != "" {
		params.CategoryNames = append(params.CategoryNames, name)
	}
	if values, ok := q["strict_categories"]; ok {
		params.StrictCategoryNames = splitNameList(values)
	}
	if priceStr := q.Get("min_price"); priceStr != "" {
		if price, err := decimal.NewFromString(priceStr); err == nil {
			params.MinPrice = &price
		} else {
			errs["min_price"] = append(errs["min_price"], "must be numeric")
		}
	}
	if priceStr := q.Get("max_price"); priceStr != "" {
		if price, err := decimal.NewFromString(priceStr); err == nil {
			params.MaxPrice = &price
		} else {
			errs["max_price"] = append(errs["max_price"], "must be numeric")
		}
	}
	if params.MinPrice != nil && params.MaxPrice != nil && params.MinPrice.Cmp(*params.MaxPrice) > 0 {
		errs["min_price"] = append(errs["min_price"], "cannot exceed max_price")
	}
	if search := q.Get("search"); search != "" {
		params.Search = &search
	}
	if stockStr := q.Get("in_stock"); stockStr != "" {
		if b, err := strconv.ParseBool(stockStr); err == nil && b {
			params.InStock = true
		}
	}

	// Unknown sort values fall back silently in the store.
	params.SortBy = q.Get("sort_by")
	params.SortOrder = q.Get("sort_order")

	if pageStr := q.Get("page"); pageStr != "" {
		if page, err := strconv.Atoi(pageStr); err == nil && page > 0 {
			params.Page = page
		}
	}
	if perPageStr := q.Get("per_page"); perPageStr != "" {
		if perPage, err := strconv.Atoi(perPageStr); err == nil && perPage > 0 {
			params.PerPage = perPage
		}
	}
	if params.PerPage > maxPerPage {
		params.PerPage = maxPerPage
	}

	if len(errs) > 0 {
		h.respondValidationErrors(w, errs)
		return
	}

	products, totalCount, err := h.productStore.ListActiveFiltered(r.Context(), params)
	if err != nil {
		h.logger.Error("product listing failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve products")
		return
	}
	for i := range products {
		h.mediaStore.Decorate(&products[i])
	}

	filters := map[string]string{}
	for _, key := range listFilterKeys {
		if _, ok := q[key]; ok {
			filters[key] = q.Get(key)
		}
	}

	h.respondJSON(w, http.StatusOK, Response{
		Success:    true,
		Data:       products,
		Pagination: buildPagination(params.Page, params.PerPage, totalCount, len(products)),
		Filters:    filters,
	})
}

func buildPagination(page, perPage, total, itemCount int) *Pagination {
	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}
	p := &Pagination{
		CurrentPage: page,
		LastPage:    lastPage,
		PerPage:     perPage,
		Total:       total,
	}
	if itemCount > 0 {
		from := (page-1)*perPage + 1
		to := from + itemCount - 1
		p.From = &from
		p.To = &to
	}
	return p
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := parseIDParam(r, "productId")
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Product not found")
		return
	}

	product, err := h.productStore.FindActiveWithActiveCategories(r.Context(), productID)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			h.respondError(w, http.StatusNotFound, "Product not found")
			return
		}
		h.logger.Error("product lookup failed", slog.Int64("id", productID), slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve product")
		return
	}
	h.mediaStore.Decorate(product)

	h.respondJSON(w, http.StatusOK, Response{Success: true, Data: product})
}

// productForm is one parsed multipart product payload. Presence is tracked
// per field so updates stay partial.
type productForm struct {
	values     map[string][]string
	file       multipart.File
	fileHeader *multipart.FileHeader
}

func (h *HTTPHandler) parseProductForm(w http.ResponseWriter, r *http.Request) (*productForm, bool) {
	maxUpload := h.mediaStore.MaxBytes()
	// Headroom beyond the image ceiling for the text fields.
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+1<<20)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		h.respondValidationErrors(w, map[string][]string{
			"request": {"could not parse multipart form: " + err.Error()},
		})
		return nil, false
	}

	form := &productForm{values: r.MultipartForm.Value}
	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		form.file = file
		form.fileHeader = header
	case errors.Is(err, http.ErrMissingFile):
		// image omitted; create requires it, update treats it as unchanged
	default:
		h.respondValidationErrors(w, map[string][]string{"image": {"invalid file upload"}})
		return nil, false
	}
	return form, true
}

func (f *productForm) get(key string) (string, bool) {
	vals, ok := f.values[key]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

func (f *productForm) close() {
	if f.file != nil {
		f.file.Close()
	}
}

func parsePriceField(value string, errs map[string][]string) *decimal.Decimal {
	price, err := decimal.NewFromString(value)
	if err != nil {
		errs["price"] = append(errs["price"], "must be numeric")
		return nil
	}
	if !domain.PriceInRange(price) {
		errs["price"] = append(errs["price"],
			fmt.Sprintf("must be between %s and %s", domain.MinPrice, domain.MaxPrice))
		return nil
	}
	return &price
}

func parseStockField(value string, errs map[string][]string) *int {
	stock, err := strconv.Atoi(value)
	if err != nil || stock < 0 {
		errs["stock"] = append(errs["stock"], "must be an integer greater than or equal to 0")
		return nil
	}
	return &stock
}

func invalidCategoriesErrs(e *store.InvalidCategoriesError) map[string][]string {
	errs := map[string][]string{}
	for _, name := range e.Names {
		errs["categories"] = append(errs["categories"],
			fmt.Sprintf("category %q does not exist or is inactive", name))
	}
	return errs
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	form, ok := h.parseProductForm(w, r)
	if !ok {
		return
	}
	defer form.close()

	errs := map[string][]string{}

	name, _ := form.get("name")
	if name == "" {
		errs["name"] = append(errs["name"], "is required")
	} else if len(name) > 255 {
		errs["name"] = append(errs["name"], "must not exceed 255 characters")
	}

	var description *string
	if v, ok := form.get("description"); ok {
		description = &v
	}

	var price *decimal.Decimal
	if v, ok := form.get("price"); ok {
		price = parsePriceField(v, errs)
	} else {
		errs["price"] = append(errs["price"], "is required")
	}

	var stock *int
	if v, ok := form.get("stock"); ok {
		stock = parseStockField(v, errs)
	} else {
		errs["stock"] = append(errs["stock"], "is required")
	}

	categoryNames := splitNameList(form.values["categories"])
	if len(categoryNames) == 0 {
		errs["categories"] = append(errs["categories"], "is required")
	}

	if form.file == nil {
		errs["image"] = append(errs["image"], "is required")
	}

	if len(errs) > 0 {
		h.respondValidationErrors(w, errs)
		return
	}

	categoryIDs, err := h.categoryStore.ResolveActiveCategoryNames(r.Context(), categoryNames)
	if err != nil {
		var invalid *store.InvalidCategoriesError
		if errors.As(err, &invalid) {
			h.respondValidationErrors(w, invalidCategoriesErrs(invalid))
			return
		}
		h.logger.Error("category resolution failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to create product")
		return
	}

	imagePath, err := h.mediaStore.SaveImage(form.file, form.fileHeader)
	if err != nil {
		h.respondMediaError(w, err, "Failed to store image")
		return
	}

	product := &domain.Product{
		Name:        name,
		Description: description,
		Price:       *price,
		Stock:       *stock,
		Image:       &imagePath,
		IsActive:    true,
	}
	created, err := h.productStore.CreateProduct(r.Context(), product, categoryIDs)
	if err != nil {
		// The row never committed; remove the freshly uploaded file.
		if cleanupErr := h.mediaStore.Delete(imagePath); cleanupErr != nil {
			h.logger.Error("orphan image cleanup failed", slog.Any("error", cleanupErr))
		}
		h.logger.Error("product creation failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to create product")
		return
	}
	h.mediaStore.Decorate(created)

	h.respondJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    created,
		Message: "Product created successfully",
	})
}

func (h *HTTPHandler) respondMediaError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, media.ErrNotAnImage):
		h.respondValidationErrors(w, map[string][]string{"image": {"must be an image file"}})
	case errors.Is(err, media.ErrTooLarge):
		h.respondValidationErrors(w, map[string][]string{"image": {"must not exceed the upload size limit"}})
	default:
		h.logger.Error("media operation failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	productID, err := parseIDParam(r, "productId")
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Product not found")
		return
	}
	prior, err := h.productStore.GetProductByID(r.Context(), productID)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			h.respondError(w, http.StatusNotFound, "Product not found")
			return
		}
		h.logger.Error("product lookup failed", slog.Int64("id", productID), slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to update product")
		return
	}

	form, ok := h.parseProductForm(w, r)
	if !ok {
		return
	}
	defer form.close()

	errs := map[string][]string{}
	changes := store.ProductChanges{}

	if v, ok := form.get("name"); ok {
		if v == "" {
			errs["name"] = append(errs["name"], "must not be empty")
		} else if len(v) > 255 {
			errs["name"] = append(errs["name"], "must not exceed 255 characters")
		} else {
			changes.Name = &v
		}
	}
	if v, ok := form.get("description"); ok {
		changes.Description = &v
	}
	if v, ok := form.get("price"); ok {
		changes.Price = parsePriceField(v, errs)
	}
	if v, ok := form.get("stock"); ok {
		changes.Stock = parseStockField(v, errs)
	}
	if v, ok := form.get("is_active"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			changes.IsActive = &b
		} else {
			errs["is_active"] = append(errs["is_active"], "must be a boolean")
		}
	}

	var categoryIDs []int64
	if _, supplied := form.values["categories"]; supplied {
		categoryIDs, err = h.categoryStore.ResolveActiveCategoryNames(r.Context(), splitNameList(form.values["categories"]))
		if err != nil {
			var invalid *store.InvalidCategoriesError
			if errors.As(err, &invalid) {
				for field, msgs := range invalidCategoriesErrs(invalid) {
					errs[field] = append(errs[field], msgs...)
				}
			} else {
				h.logger.Error("category resolution failed", slog.Any("error", err))
				h.respondError(w, http.StatusInternalServerError, "Failed to update product")
				return
			}
		} else {
			changes.CategoryIDs = &categoryIDs
		}
	}

	if len(errs) > 0 {
		h.respondValidationErrors(w, errs)
		return
	}

	var newImage *string
	if form.file != nil {
		imagePath, err := h.mediaStore.SaveImage(form.file, form.fileHeader)
		if err != nil {
			h.respondMediaError(w, err, "Failed to store image")
			return
		}
		newImage = &imagePath
		changes.Image = newImage
	}

	updated, err := h.productStore.UpdateProduct(r.Context(), productID, changes)
	if err != nil {
		// Nothing committed; the just-uploaded replacement must not orphan.
		if newImage != nil {
			if cleanupErr := h.mediaStore.Delete(*newImage); cleanupErr != nil {
				h.logger.Error("orphan image cleanup failed", slog.Any("error", cleanupErr))
			}
		}
		if errors.Is(err, store.ErrProductNotFound) {
			h.respondError(w, http.StatusNotFound, "Product not found")
			return
		}
		h.logger.Error("product update failed", slog.Int64("id", productID), slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to update product")
		return
	}

	// The replacement is durably referenced; drop the old file now.
	if newImage != nil && prior.Image != nil && *prior.Image != *newImage {
		if err := h.mediaStore.Delete(*prior.Image); err != nil {
			h.logger.Error("stale image cleanup failed", slog.Any("error", err))
		}
	}
	h.mediaStore.Decorate(updated)

	h.respondJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    updated,
		Message: "Product updated successfully",
	})
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	productID, err := parseIDParam(r, "productId")
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Product not found")
		return
	}

	if err := h.productStore.SoftDeleteProduct(r.Context(), productID); err != nil {
		switch {
		case errors.Is(err, store.ErrProductNotFound):
			h.respondError(w, http.StatusNotFound, "Product not found")
		case errors.Is(err, store.ErrAlreadyInactive):
			h.respondError(w, http.StatusBadRequest, "Product is already inactive")
		default:
			h.logger.Error("product delete failed", slog.Int64("id", productID), slog.Any("error", err))
			h.respondError(w, http.StatusInternalServerError, "Failed to delete product")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, Response{Success: true, Message: "Product deleted successfully"})
}

func (h *HTTPHandler) ReactivateProduct(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	productID, err := parseIDParam(r, "productId")
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Product not found")
		return
	}

	if err := h.productStore.ReactivateProduct(r.Context(), productID); err != nil {
		switch {
		case errors.Is(err, store.ErrProductNotFound):
			h.respondError(w, http.StatusNotFound, "Product not found")
		case errors.Is(err, store.ErrAlreadyActive):
			h.respondError(w, http.StatusBadRequest, "Product is already active")
		default:
			h.logger.Error("product reactivate failed", slog.Int64("id", productID), slog.Any("error", err))
			h.respondError(w, http.StatusInternalServerError, "Failed to reactivate product")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, Response{Success: true, Message: "Product reactivated successfully"})
}

// HardDeleteProduct physically removes the row, its associations, and the
// stored image. Deliberately off the default surface.
func (h *HTTPHandler) HardDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	productID, err := parseIDParam(r, "productId")
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Product not found")
		return
	}

	imagePath, err := h.productStore.HardDeleteProduct(r.Context(), productID)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			h.respondError(w, http.StatusNotFound, "Product not found")
			return
		}
		h.logger.Error("product purge failed", slog.Int64("id", productID), slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Failed to delete product")
		return
	}
	if imagePath != nil {
		if err := h.mediaStore.Delete(*imagePath); err != nil {
			h.logger.Error("image cleanup failed", slog.Any("error", err))
		}
	}

	h.respondJSON(w, http.StatusOK, Response{Success: true, Message: "Product permanently deleted"})
}
