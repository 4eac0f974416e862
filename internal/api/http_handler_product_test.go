package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"catalog-backend/internal/domain"
	"catalog-backend/internal/store"
)

// pngBytes carries the PNG magic so content sniffing accepts it.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x42}, 64)...)

type envelope struct {
	Success    bool                `json:"success"`
	Data       json.RawMessage     `json:"data"`
	Message    string              `json:"message"`
	Pagination *Pagination         `json:"pagination"`
	Filters    map[string]string   `json:"filters"`
	Errors     map[string][]string `json:"errors"`
}

func doRequest(t *testing.T, env *testEnv, method, path, token string, contentType string, body io.Reader) (int, envelope) {
	t.Helper()

	req, err := http.NewRequest(method, env.server.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// multipartBody builds a product form; imageName "" omits the file part.
func multipartBody(t *testing.T, fields map[string]string, imageName string, imageContent []byte) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if imageName != "" {
		part, err := writer.CreateFormFile("image", imageName)
		require.NoError(t, err)
		_, err = part.Write(imageContent)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func countMediaFiles(t *testing.T, dir string) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}

func sampleProduct(id int64, name string) domain.Product {
	now := time.Now()
	return domain.Product{
		ID:        id,
		Name:      name,
		Price:     decimal.NewFromInt(120000),
		Stock:     3,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestListProducts_EnvelopeAndPagination(t *testing.T) {
	env := newTestEnv(t)

	env.products.On("ListActiveFiltered", mock.Anything, mock.MatchedBy(func(p store.ListProductsParams) bool {
		return p.Page == 1 && p.PerPage == 15
	})).Return([]domain.Product{sampleProduct(1, "Phone")}, 16, nil)

	status, resp := doRequest(t, env, http.MethodGet, "/api/products", "", "", nil)

	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, 1, resp.Pagination.CurrentPage)
	assert.Equal(t, 2, resp.Pagination.LastPage)
	assert.Equal(t, 15, resp.Pagination.PerPage)
	assert.Equal(t, 16, resp.Pagination.Total)
	require.NotNil(t, resp.Pagination.From)
	assert.Equal(t, 1, *resp.Pagination.From)
	require.NotNil(t, resp.Pagination.To)
	assert.Equal(t, 1, *resp.Pagination.To)

	env.products.AssertExpectations(t)
}

func TestListProducts_ClampsPerPage(t *testing.T) {
	env := newTestEnv(t)

	env.products.On("ListActiveFiltered", mock.Anything, mock.MatchedBy(func(p store.ListProductsParams) bool {
		return p.PerPage == 50 && p.Page == 3
	})).Return([]domain.Product{}, 0, nil)

	status, resp := doRequest(t, env, http.MethodGet, "/api/products?per_page=500&page=3", "", "", nil)

	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)

	env.products.AssertExpectations(t)
}

func TestListProducts_ForwardsFiltersAndEchoesThem(t *testing.T) {
	env := newTestEnv(t)

	env.products.On("ListActiveFiltered", mock.Anything, mock.MatchedBy(func(p store.ListProductsParams) bool {
		return len(p.CategoryNames) == 2 &&
			p.CategoryNames[0] == "Electronics" && p.CategoryNames[1] == "Books" &&
			p.MinPrice != nil && p.MinPrice.Equal(decimal.NewFromInt(2000)) &&
			p.Search != nil && *p.Search == "phone" &&
			p.InStock &&
			p.SortBy == "price" && p.SortOrder == "asc"
	})).Return([]domain.Product{}, 0, nil)

	query := "/api/products?categories=Electronics,Books&min_price=2000&search=phone&in_stock=1&sort_by=price&sort_order=asc"
	status, resp := doRequest(t, env, http.MethodGet, query, "", "", nil)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Electronics,Books", resp.Filters["categories"])
	assert.Equal(t, "2000", resp.Filters["min_price"])
	assert.Equal(t, "phone", resp.Filters["search"])
	assert.Equal(t, "1", resp.Filters["in_stock"])
	assert.NotContains(t, resp.Filters, "max_price")

	env.products.AssertExpectations(t)
}

func TestListProducts_UnknownSortIsNotAnError(t *testing.T) {
	env := newTestEnv(t)

	env.products.On("ListActiveFiltered", mock.Anything, mock.MatchedBy(func(p store.ListProductsParams) bool {
		return p.SortBy == "willpower"
	})).Return([]domain.Product{}, 0, nil)

	status, resp := doRequest(t, env, http.MethodGet, "/api/products?sort_by=willpower", "", "", nil)

	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)

	env.products.AssertExpectations(t)
}

func TestListProducts_RejectsMalformedPrices(t *testing.T) {
	env := newTestEnv(t)

	status, resp := doRequest(t, env, http.MethodGet, "/api/products?min_price=cheap", "", "", nil)

	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Errors["min_price"], "must be numeric")

	env.products.AssertNotCalled(t, "ListActiveFiltered", mock.Anything, mock.Anything)
}

func TestListProducts_RejectsInvertedPriceRange(t *testing.T) {
	env := newTestEnv(t)

	status, resp := doRequest(t, env, http.MethodGet, "/api/products?min_price=5000&max_price=2000", "", "", nil)

	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, resp.Errors["min_price"], "cannot exceed max_price")

	env.products.AssertNotCalled(t, "ListActiveFiltered", mock.Anything, mock.Anything)
}

func TestGetProduct_NotFound(t *testing.T) {
	env := newTestEnv(t)

	env.products.On("FindActiveWithActiveCategories", mock.Anything, int64(99)).
		Return(nil, store.ErrProductNotFound)

	status, resp := doRequest(t, env, http.MethodGet, "/api/products/99", "", "", nil)

	require.Equal(t, http.StatusNotFound, status)
	assert.False(t, resp.Success)
	assert.Equal(t, "Product not found", resp.Message)
}

func TestGetProduct_DecoratesImageURL(t *testing.T) {
	env := newTestEnv(t)

	product := sampleProduct(7, "Camera")
	product.Image = PtrTo("products/cam.png")
	env.products.On("FindActiveWithActiveCategories", mock.Anything, int64(7)).
		Return(&product, nil)

	status, resp := doRequest(t, env, http.MethodGet, "/api/products/7", "", "", nil)

	require.Equal(t, http.StatusOK, status)
	var data domain.Product
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.NotNil(t, data.ImageURL)
	assert.Equal(t, "/storage/products/cam.png", *data.ImageURL)
}

func TestCreateProduct_RejectsAnonymous(t *testing.T) {
	env := newTestEnv(t)

	status, resp := doRequest(t, env, http.MethodPost, "/api/products", "", "", nil)

	require.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, resp.Success)

	env.products.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateProduct_AdminGateRunsBeforeValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, regularUser())

	// The body is empty and would fail validation, but the admin check
	// must answer first.
	status, resp := doRequest(t, env, http.MethodPost, "/api/products", token, "", nil)

	require.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Unauthorized", resp.Message)
	assert.Empty(t, resp.Errors)

	env.products.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateProduct_MissingFields(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, adminUser())

	body, contentType := multipartBody(t, map[string]string{"name": "Phone"}, "", nil)
	status, resp := doRequest(t, env, http.MethodPost, "/api/products", token, contentType, body)

	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, resp.Errors["price"], "is required")
	assert.Contains(t, resp.Errors["stock"], "is required")
	assert.Contains(t, resp.Errors["categories"], "is required")
	assert.Contains(t, resp.Errors["image"], "is required")

	env.products.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateProduct_ListsEveryInvalidCategory(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, adminUser())

	env.categories.On("ResolveActiveCategoryNames", mock.Anything, []string{"Ghost", "Phantom"}).
		Return(nil, &store.InvalidCategoriesError{Names: []string{"ghost", "phantom"}})

	fields := map[string]string{
		"name":       "Phone",
		"price":      "120000",
		"stock":      "3",
		"categories": "Ghost,Phantom",
	}
	body, contentType := multipartBody(t, fields, "phone.png", pngBytes)
	status, resp := doRequest(t, env, http.MethodPost, "/api/products", token, contentType, body)

	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Len(t, resp.Errors["categories"], 2)
	assert.Contains(t, resp.Errors["categories"][0], "ghost")
	assert.Contains(t, resp.Errors["categories"][1], "phantom")

	// Category resolution precedes the upload, so nothing was written.
	assert.Zero(t, countMediaFiles(t, env.mediaDir))
	env.products.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateProduct_PriceOutOfRange(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, adminUser())

	fields := map[string]string{
		"name":       "Trinket",
		"price":      "999",
		"stock":      "3",
		"categories": "Electronics",
	}
	body, contentType := multipartBody(t, fields, "trinket.png", pngBytes)
	status, resp := doRequest(t, env, http.MethodPost, "/api/products", token, contentType, body)

	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Len(t, resp.Errors["price"], 1)
	assert.Contains(t, resp.Errors["price"][0], "between 1000 and 10000000")
}

func TestCreateProduct_Success(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, adminUser())

	env.categories.On("ResolveActiveCategoryNames", mock.Anything, []string{"Electronics"}).
		Return([]int64{1}, nil)
	created := sampleProduct(10, "Phone")
	created.Image = PtrTo("products/generated.png")
	env.products.On("CreateProduct", mock.Anything, mock.MatchedBy(func(p *domain.Product) bool {
		return p.Name == "Phone" && p.Stock == 3 && p.IsActive &&
			p.Price.Equal(decimal.NewFromInt(120000)) && p.Image != nil
	}), []int64{1}).Return(&created, nil)

	fields := map[string]string{
		"name":       "Phone",
		"price":      "120000",
		"stock":      "3",
		"categories": "Electronics",
	}
	body, contentType := multipartBody(t, fields, "phone.png", pngBytes)
	status, resp := doRequest(t, env, http.MethodPost, "/api/products", token, contentType, body)

	require.Equal(t, http.StatusCreated, status)
	assert.True(t, resp.Success)
	assert.Equal(t, "Product created successfully", resp.Message)
	assert.Equal(t, 1, countMediaFiles(t, env.mediaDir), "The upload must stay on disk after a committed create")

	env.products.AssertExpectations(t)
	env.categories.AssertExpectations(t)
}

func TestCreateProduct_RejectsNonImageUpload(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, adminUser())

	env.categories.On("ResolveActiveCategoryNames", mock.Anything, []string{"Electronics"}).
		Return([]int64{1}, nil)

	fields := map[string]string{
		"name":       "Phone",
		"price":      "120000",
		"stock":      "3",
		"categories": "Electronics",
	}
	body, contentType := multipartBody(t, fields, "notes.txt", []byte("plain text, not an image"))
	status, resp := doRequest(t, env, http.MethodPost, "/api/products", token, contentType, body)

	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, resp.Errors["image"], "must be an image file")
	assert.Zero(t, countMediaFiles(t, env.mediaDir))

	env.products.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateProduct_StoreFailureRemovesUpload(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, adminUser())

	env.categories.On("ResolveActiveCategoryNames", mock.Anything, []string{"Electronics"}).
		Return([]int64{1}, nil)
	env.products.On("CreateProduct", mock.Anything, mock.Anything, []int64{1}).
		Return(nil, errors.New("insert failed"))

	fields := map[string]string{
		"name":       "Phone",
		"price":      "120000",
		"stock":      "3",
		"categories": "Electronics",
	}
	body, contentType := multipartBody(t, fields, "phone.png", pngBytes)
	status, resp := doRequest(t, env, http.MethodPost, "/api/products", token, contentType, body)

	require.Equal(t, http.StatusInternalServerError, status)
	assert.False(t, resp.Success)
	assert.Zero(t, countMediaFiles(t, env.mediaDir), "A failed create must not leave its upload behind")
}

func TestUpdateProduct_PartialChange(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, adminUser())

	prior := sampleProduct(5, "Phone")
	env.products.On("GetProductByID", mock.Anything, int64(5)).Return(&prior, nil)
	updated := sampleProduct(5, "Phone Pro")
	env.products.On("UpdateProduct", mock.Anything, int64(5), mock.MatchedBy(func(c store.ProductChanges) bool {
		return c.Name != nil && *c.Name == "Phone Pro" &&
			c.Price == nil && c.Image == nil && c.CategoryIDs == nil
	})).Return(&updated, nil)

	body, contentType := multipartBody(t, map[string]string{"name": "Phone Pro"}, "", nil)
	status, resp := doRequest(t, env, http.MethodPut, "/api/products/5", token, contentType, body)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Product updated successfully", resp.Message)

	env.products.AssertExpectations(t)
	env.categories.AssertNotCalled(t, "ResolveActiveCategoryNames", mock.Anything, mock.Anything)
}

func TestUpdateProduct_ReplacingImageDeletesOldFile(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, adminUser())

	oldPath := filepath.Join(env.mediaDir, "products", "old.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(oldPath), 0o755))
	require.NoError(t, os.WriteFile(oldPath, pngBytes, 0o644))

	prior := sampleProduct(5, "Phone")
	prior.Image = PtrTo("products/old.png")
	env.products.On("GetProductByID", mock.Anything, int64(5)).Return(&prior, nil)

	updated := sampleProduct(5, "Phone")
	env.products.On("UpdateProduct", mock.Anything, int64(5), mock.MatchedBy(func(c store.ProductChanges) bool {
		return c.Image != nil && strings.HasPrefix(*c.Image, "products/")
	})).Return(&updated, nil)

	body, contentType := multipartBody(t, nil, "new.png", pngBytes)
	status, _ := doRequest(t, env, http.MethodPut, "/api/products/5", token, contentType, body)

	require.Equal(t, http.StatusOK, status)
	_, err := os.Stat(oldPath)
	assert.True(t, errors.Is(err, os.ErrNotExist), "The replaced image must be removed after the update commits")
	assert.Equal(t, 1, countMediaFiles(t, env.mediaDir))
}

func TestUpdateProduct_StoreFailureRemovesNewUpload(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, adminUser())

	oldPath := filepath.Join(env.mediaDir, "products", "old.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(oldPath), 0o755))
	require.NoError(t, os.WriteFile(oldPath, pngBytes, 0o644))

	prior := sampleProduct(5, "Phone")
	prior.Image = PtrTo("products/old.png")
	env.products.On("GetProductByID", mock.Anything, int64(5)).Return(&prior, nil)
	env.products.On("UpdateProduct", mock.Anything, int64(5), mock.Anything).
		Return(nil, errors.New("update failed"))

	body, contentType := multipartBody(t, nil, "new.png", pngBytes)
	status, _ := doRequest(t, env, http.MethodPut, "/api/products/5", token, contentType, body)

	require.Equal(t, http.StatusInternalServerError, status)
	_, err := os.Stat(oldPath)
	assert.NoError(t, err, "The previous image must survive a failed update")
	assert.Equal(t, 1, countMediaFiles(t, env.mediaDir), "The replacement upload must be cleaned up")
}

func TestDeleteProduct_Soft(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, adminUser())

	env.products.On("SoftDeleteProduct", mock.Anything, int64(4)).Return(nil)

	status, resp := doRequest(t, env, http.MethodDelete, "/api/products/4", token, "", nil)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Product deleted successfully", resp.Message)
}

func TestDeleteProduct_AlreadyInactive(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, adminUser())

	env.products.On("SoftDeleteProduct", mock.Anything, int64(4)).Return(store.ErrAlreadyInactive)

	status, resp := doRequest(t, env, http.MethodDelete, "/api/products/4", token, "", nil)

	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Product is already inactive", resp.Message)
}

func TestReactivateProduct_AlreadyActive(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, adminUser())

	env.products.On("ReactivateProduct", mock.Anything, int64(4)).Return(store.ErrAlreadyActive)

	status, resp := doRequest(t, env, http.MethodPost, "/api/products/4/reactivate", token, "", nil)

	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Product is already active", resp.Message)
}

func TestHardDeleteProduct_RemovesImageFile(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, adminUser())

	imagePath := filepath.Join(env.mediaDir, "products", "gone.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(imagePath), 0o755))
	require.NoError(t, os.WriteFile(imagePath, pngBytes, 0o644))

	env.products.On("HardDeleteProduct", mock.Anything, int64(8)).
		Return(PtrTo("products/gone.png"), nil)

	status, resp := doRequest(t, env, http.MethodDelete, "/api/products/8/purge", token, "", nil)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Product permanently deleted", resp.Message)
	_, err := os.Stat(imagePath)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
