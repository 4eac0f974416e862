package api

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"catalog-backend/internal/auth"
	"catalog-backend/internal/domain"
	"catalog-backend/internal/media"
	"catalog-backend/internal/store"
)

// Helper function to get a pointer (useful for optional fields in domain structs)
func PtrTo[T any](v T) *T {
	return &v
}

// MockProductStorer is a mock implementation of store.ProductStorer
type MockProductStorer struct {
	mock.Mock
}

func (m *MockProductStorer) ListActiveFiltered(ctx context.Context, params store.ListProductsParams) ([]domain.Product, int, error) {
	args := m.Called(ctx, params)
	var products []domain.Product
	if arg0 := args.Get(0); arg0 != nil {
		products = arg0.([]domain.Product)
	}
	return products, args.Int(1), args.Error(2)
}

func (m *MockProductStorer) FindActiveWithActiveCategories(ctx context.Context, id int64) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) CreateProduct(ctx context.Context, product *domain.Product, categoryIDs []int64) (*domain.Product, error) {
	args := m.Called(ctx, product, categoryIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) UpdateProduct(ctx context.Context, id int64, changes store.ProductChanges) (*domain.Product, error) {
	args := m.Called(ctx, id, changes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *MockProductStorer) SoftDeleteProduct(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockProductStorer) ReactivateProduct(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockProductStorer) HardDeleteProduct(ctx context.Context, id int64) (*string, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*string), args.Error(1)
}

// MockCategoryStorer is a mock implementation of store.CategoryStorer
type MockCategoryStorer struct {
	mock.Mock
}

func (m *MockCategoryStorer) ListActiveWithProductCounts(ctx context.Context) ([]domain.Category, error) {
	args := m.Called(ctx)
	var categories []domain.Category
	if arg0 := args.Get(0); arg0 != nil {
		categories = arg0.([]domain.Category)
	}
	return categories, args.Error(1)
}

func (m *MockCategoryStorer) ListInactiveCategories(ctx context.Context) ([]domain.Category, error) {
	args := m.Called(ctx)
	var categories []domain.Category
	if arg0 := args.Get(0); arg0 != nil {
		categories = arg0.([]domain.Category)
	}
	return categories, args.Error(1)
}

func (m *MockCategoryStorer) GetActiveCategoryWithProducts(ctx context.Context, id int64) (*domain.Category, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Category), args.Error(1)
}

func (m *MockCategoryStorer) CreateOrReactivateCategory(ctx context.Context, name string, description *string) (*domain.Category, bool, error) {
	args := m.Called(ctx, name, description)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Category), args.Bool(1), args.Error(2)
}

func (m *MockCategoryStorer) UpdateCategory(ctx context.Context, id int64, changes store.CategoryChanges) (*domain.Category, error) {
	args := m.Called(ctx, id, changes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Category), args.Error(1)
}

func (m *MockCategoryStorer) SoftDeleteCategory(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCategoryStorer) ReactivateCategory(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCategoryStorer) BulkActivateCategories(ctx context.Context, ids []int64) (int64, error) {
	args := m.Called(ctx, ids)
	return int64(args.Int(0)), args.Error(1)
}

func (m *MockCategoryStorer) ResolveActiveCategoryNames(ctx context.Context, names []string) ([]int64, error) {
	args := m.Called(ctx, names)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

// MockRequestStorer is a mock implementation of store.ProductRequestStorer
type MockRequestStorer struct {
	mock.Mock
}

func (m *MockRequestStorer) CreateProductRequest(ctx context.Context, request *domain.ProductRequest) (*domain.ProductRequest, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProductRequest), args.Error(1)
}

func (m *MockRequestStorer) ListProductRequests(ctx context.Context) ([]domain.ProductRequest, error) {
	args := m.Called(ctx)
	var requests []domain.ProductRequest
	if arg0 := args.Get(0); arg0 != nil {
		requests = arg0.([]domain.ProductRequest)
	}
	return requests, args.Error(1)
}

func (m *MockRequestStorer) UpdateProductRequestStatus(ctx context.Context, id int64, status string, notes *string) (*domain.ProductRequest, error) {
	args := m.Called(ctx, id, status, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProductRequest), args.Error(1)
}

// MockUserStorer is a mock implementation of store.UserStorer
type MockUserStorer struct {
	mock.Mock
}

func (m *MockUserStorer) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserStorer) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// testEnv bundles the full handler wiring used across handler tests: mock
// stores, a miniredis-backed auth service, and a temp-dir media store.
type testEnv struct {
	products   *MockProductStorer
	categories *MockCategoryStorer
	requests   *MockRequestStorer
	users      *MockUserStorer
	issuer     *auth.TokenIssuer
	mediaDir   string
	server     *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	env := &testEnv{
		products:   new(MockProductStorer),
		categories: new(MockCategoryStorer),
		requests:   new(MockRequestStorer),
		users:      new(MockUserStorer),
		issuer:     auth.NewTokenIssuer("test-secret", time.Hour),
		mediaDir:   t.TempDir(),
	}

	authService := auth.NewService(env.users, env.issuer, auth.NewRevocationList(rdb))
	mediaStore := media.NewStore(env.mediaDir, "/storage", 2<<20)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := NewHTTPHandler(logger,
		env.products, env.categories, env.requests,
		authService, mediaStore, true)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	env.server = httptest.NewServer(router)
	t.Cleanup(env.server.Close)

	return env
}

// tokenFor issues a bearer token for the user and primes the user lookup the
// auth middleware performs on every request.
func (env *testEnv) tokenFor(t *testing.T, user *domain.User) string {
	t.Helper()
	token, _, err := env.issuer.Issue(user)
	require.NoError(t, err)
	env.users.On("GetUserByID", mock.Anything, user.ID).Return(user, nil)
	return token
}

func adminUser() *domain.User {
	return &domain.User{ID: 1, Name: "Admin", Email: "admin@example.com", IsAdmin: true}
}

func regularUser() *domain.User {
	return &domain.User{ID: 2, Name: "Guest", Email: "guest@example.com", IsAdmin: false}
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}
