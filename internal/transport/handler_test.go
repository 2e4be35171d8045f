package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"catalog-admin/internal/catalog"
	"catalog-admin/internal/domain"
	"catalog-admin/internal/events"
	"catalog-admin/internal/form"
	"catalog-admin/internal/middleware"
	"catalog-admin/internal/repository"
	"catalog-admin/internal/service"
	"catalog-admin/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type memoryBlobStore struct {
	mu      sync.Mutex
	objects map[string]int
}

func (m *memoryBlobStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = int(size)
	return key, nil
}

func (m *memoryBlobStore) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryBlobStore) PublicURL(key string) string {
	return storage.JoinURL("http://blobs.test/catalog", key)
}

type testAPI struct {
	router http.Handler
	repo   repository.ProductRepository
	broker *events.Broker
}

func newTestAPI(t *testing.T, seed ...*domain.Product) *testAPI {
	t.Helper()
	logger := zap.NewNop()
	repo := repository.NewMemoryProductRepository(seed...)
	broker := events.NewBroker(8)
	blobs := &memoryBlobStore{objects: make(map[string]int)}

	svc := service.NewCatalogService(repo, catalog.Default(), service.Options{
		Publisher: broker,
		Images:    storage.NewImageUploader(blobs, 2, 1<<20, logger),
		ImageBase: "http://blobs.test/catalog",
		PageSize:  5,
	}, logger)

	auth := middleware.AuthMiddleware(testSecret, logger)
	writer := middleware.RequireRole([]string{"admin", "editor"}, logger)

	r := chi.NewRouter()
	NewCatalogHandler(svc.Schema()).RegisterRoutes(r)
	NewEventsHandler(broker, logger).RegisterRoutes(r, auth)
	NewProductHandler(svc, 1<<20, 4, logger).RegisterRoutes(r, auth, writer)
	NewDashboardHandler(svc, 10, logger).RegisterRoutes(r, auth)
	NewFormHandler(svc, logger).RegisterRoutes(r, auth)

	return &testAPI{router: r, repo: repo, broker: broker}
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	claims := jwt.MapClaims{"user_id": userID, "exp": time.Now().Add(time.Hour).Unix()}
	if role != "" {
		claims["role"] = role
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, role string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "-" {
		req.Header.Set("Authorization", bearer(t, "user-1", role))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func headphonesPayload() map[string]interface{} {
	return map[string]interface{}{
		"name":     "Wireless Bluetooth Headphones",
		"sku":      "WBH-001",
		"category": "Electronics",
		"price":    79.99,
		"stock":    45,
		"images":   []string{"https://cdn.test/a.jpg"},
		"variations": []map[string]interface{}{
			{"sku": "WBH-001-BLK-64", "price": 79.99, "stock": 45, "attributes": map[string]string{"color": "Black", "storage": "64GB"}},
			{"sku": "WBH-001-WHT-64", "price": 79.99, "stock": 50, "attributes": map[string]string{"color": "White", "storage": "64GB"}},
			{"sku": "WBH-001-BLK-128", "price": 89.99, "stock": 50, "attributes": map[string]string{"color": "Black", "storage": "128GB"}},
		},
	}
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type summaryBody struct {
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id"`
	SKU        string `json:"sku"`
	Stock      int    `json:"stock"`
	TotalStock int    `json:"total_stock"`
	PriceLabel string `json:"price_label"`
	Variations []struct {
		SKU string `json:"sku"`
	} `json:"variations"`
}

func TestCreateProductReturnsAggregates(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, "POST", "/api/products", headphonesPayload(), "editor")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	got := decodeBody[summaryBody](t, w)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "user-1", got.OwnerID)
	assert.Equal(t, 145, got.TotalStock)
	assert.Equal(t, "79.99 - 89.99", got.PriceLabel)
	require.Len(t, got.Variations, 3)

	detail := api.do(t, "GET", "/api/products/"+got.ID, nil, "")
	require.Equal(t, http.StatusOK, detail.Code)
	assert.Equal(t, 145, decodeBody[summaryBody](t, detail).TotalStock)
}

func TestWritesRequireAuthAndRole(t *testing.T) {
	api := newTestAPI(t)

	assert.Equal(t, http.StatusUnauthorized, api.do(t, "POST", "/api/products", headphonesPayload(), "-").Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, "POST", "/api/products", headphonesPayload(), "viewer").Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, "GET", "/api/products", nil, "-").Code)
	assert.Equal(t, http.StatusOK, api.do(t, "GET", "/api/catalog/categories", nil, "-").Code)
}

func TestCreateValidationErrors(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(p map[string]interface{})
		field string
	}{
		{"missing images", func(p map[string]interface{}) { delete(p, "images") }, "images"},
		{"unknown category", func(p map[string]interface{}) { p["category"] = "Vehicles"; delete(p, "variations") }, "category"},
		{"negative price", func(p map[string]interface{}) { p["price"] = -5 }, "price"},
		{"foreign attribute", func(p map[string]interface{}) {
			p["variations"] = []map[string]interface{}{{"sku": "V", "price": 1, "attributes": map[string]string{"size": "M"}}}
		}, "variations[0].attributes"},
		{"bad status", func(p map[string]interface{}) { p["status"] = "archived" }, "status"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newTestAPI(t)
			payload := headphonesPayload()
			tc.edit(payload)

			w := api.do(t, "POST", "/api/products", payload, "admin")
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			resp := decodeBody[middleware.ErrorResponse](t, w)
			errs, ok := resp.Error.Details["validation_errors"].([]interface{})
			require.True(t, ok)
			require.NotEmpty(t, errs)
			assert.Equal(t, tc.field, errs[0].(map[string]interface{})["field"])

			products, err := api.repo.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, products)
		})
	}
}

func TestUpdateReplacesAndDeleteCascades(t *testing.T) {
	api := newTestAPI(t)

	created := decodeBody[summaryBody](t, api.do(t, "POST", "/api/products", headphonesPayload(), "admin"))

	edit := headphonesPayload()
	edit["variations"] = []map[string]interface{}{}
	edit["stock"] = 7
	edit["images"] = []string{}
	w := api.do(t, "PUT", "/api/products/"+created.ID, edit, "admin")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	updated := decodeBody[summaryBody](t, api.do(t, "GET", "/api/products/"+created.ID, nil, ""))
	assert.Empty(t, updated.Variations)
	assert.Equal(t, 7, updated.TotalStock)
	assert.Equal(t, "user-1", updated.OwnerID)

	assert.Equal(t, http.StatusNoContent, api.do(t, "DELETE", "/api/products/"+created.ID, nil, "admin").Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, "GET", "/api/products/"+created.ID, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, "DELETE", "/api/products/"+created.ID, nil, "admin").Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, "PUT", "/api/products/"+created.ID, edit, "admin").Code)
}

func seedProducts(n int) []*domain.Product {
	out := make([]*domain.Product, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &domain.Product{
			Name:     "Product",
			SKU:      "SKU",
			Category: "Books",
			Status:   domain.StatusActive,
		})
	}
	return out
}

// Pages never exceed page_size and always report a page inside range
func TestProperty_ListPagination(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("list pages stay in range", prop.ForAll(
		func(n int, page int) bool {
			api := newTestAPI(t, seedProducts(n)...)
			w := api.do(t, "GET", "/api/products?page="+itoa(page), nil, "")
			if w.Code != http.StatusOK {
				return false
			}
			resp := decodeBody[ProductListResponse](t, w)
			return len(resp.Items) <= 5 &&
				resp.TotalItems == n &&
				resp.Page >= 1 && resp.Page <= max(resp.TotalPages, 1)
		},
		gen.IntRange(0, 13),
		gen.IntRange(-3, 6),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestListFiltersBySearchAndCategory(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusCreated, api.do(t, "POST", "/api/products", headphonesPayload(), "admin").Code)

	tee := headphonesPayload()
	tee["name"] = "Organic Cotton T-Shirt"
	tee["sku"] = "OCT-002"
	tee["category"] = "Clothing"
	delete(tee, "variations")
	require.Equal(t, http.StatusCreated, api.do(t, "POST", "/api/products", tee, "admin").Code)

	bySearch := decodeBody[ProductListResponse](t, api.do(t, "GET", "/api/products?search=oct-0", nil, ""))
	require.Len(t, bySearch.Items, 1)
	assert.Equal(t, "OCT-002", bySearch.Items[0].SKU)

	byCategory := decodeBody[ProductListResponse](t, api.do(t, "GET", "/api/products?category=Electronics", nil, ""))
	require.Len(t, byCategory.Items, 1)
	assert.Equal(t, "WBH-001", byCategory.Items[0].SKU)

	all := decodeBody[ProductListResponse](t, api.do(t, "GET", "/api/products?category=all", nil, ""))
	assert.Equal(t, 2, all.TotalItems)
}

func TestCatalogSchemaRoutes(t *testing.T) {
	api := newTestAPI(t)

	cats := decodeBody[[]catalog.Category](t, api.do(t, "GET", "/api/catalog/categories", nil, "-"))
	require.Len(t, cats, 10)
	assert.Equal(t, "Electronics", cats[0].Name)

	opts := decodeBody[AttributeOptionsResponse](t, api.do(t, "GET", "/api/catalog/attributes/size/options", nil, "-"))
	assert.Equal(t, []string{"XS", "S", "M", "L", "XL", "XXL"}, opts.Options)

	unknown := decodeBody[AttributeOptionsResponse](t, api.do(t, "GET", "/api/catalog/attributes/weight/options", nil, "-"))
	assert.Empty(t, unknown.Options)
}

func TestDashboardNotifications(t *testing.T) {
	api := newTestAPI(t)
	lamp := headphonesPayload()
	lamp["name"] = "LED Desk Lamp"
	lamp["sku"] = "LDL-001"
	lamp["category"] = "Home & Garden"
	lamp["stock"] = 0
	delete(lamp, "variations")
	require.Equal(t, http.StatusCreated, api.do(t, "POST", "/api/products", lamp, "admin").Code)
	require.Equal(t, http.StatusCreated, api.do(t, "POST", "/api/products", headphonesPayload(), "admin").Code)

	resp := decodeBody[NotificationsResponse](t, api.do(t, "GET", "/api/dashboard/notifications", nil, ""))
	assert.Equal(t, 10, resp.Threshold)
	require.Len(t, resp.Alerts, 1)
	assert.Equal(t, service.AlertOutOfStock, resp.Alerts[0].Level)

	assert.Equal(t, http.StatusBadRequest, api.do(t, "GET", "/api/dashboard/notifications?threshold=-1", nil, "").Code)

	counts := decodeBody[[]service.CategoryCount](t, api.do(t, "GET", "/api/dashboard/categories", nil, ""))
	for _, c := range counts {
		switch c.Name {
		case "Electronics", "Home & Garden":
			assert.Equal(t, 1, c.Products, c.Name)
		default:
			assert.Zero(t, c.Products, c.Name)
		}
	}
}

func TestFormVariationSteps(t *testing.T) {
	api := newTestAPI(t)
	draft := form.Draft{Name: "Headphones", SKU: "WBH-001", Category: "Electronics", Price: "79.99", Stock: "45"}

	step := func(req FormStepRequest) form.Draft {
		w := api.do(t, "POST", "/api/forms/variations", req, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decodeBody[form.Draft](t, w)
	}

	draft = step(FormStepRequest{Draft: draft, Step: StepAdd})
	draft = step(FormStepRequest{Draft: draft, Step: StepAdd})
	draft = step(FormStepRequest{Draft: draft, Step: StepUpdate, Index: 1, Field: "color", Value: "Black"})
	require.Len(t, draft.Variations, 2)
	assert.Equal(t, "WBH-001-VAR-2", draft.Variations[1].SKU)
	assert.Equal(t, "Black", draft.Variations[1].Attributes["color"])

	draft = step(FormStepRequest{Draft: draft, Step: StepRemove, Index: 0})
	require.Len(t, draft.Variations, 1)
	assert.Equal(t, "WBH-001-VAR-2", draft.Variations[0].SKU)

	draft = step(FormStepRequest{Draft: draft, Step: StepCategory, Value: "Books"})
	assert.Empty(t, draft.Variations)

	assert.Equal(t, http.StatusBadRequest, api.do(t, "POST", "/api/forms/variations", FormStepRequest{Draft: draft, Step: StepRemove, Index: 4}, "").Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, "POST", "/api/forms/variations", FormStepRequest{Draft: draft, Step: "explode"}, "").Code)
}

func TestEditFormPrefillsDraft(t *testing.T) {
	api := newTestAPI(t)
	created := decodeBody[summaryBody](t, api.do(t, "POST", "/api/products", headphonesPayload(), "admin"))

	w := api.do(t, "GET", "/api/forms/products/"+created.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	draft := decodeBody[form.Draft](t, w)
	assert.Equal(t, "WBH-001", draft.SKU)
	assert.Equal(t, "79.99", draft.Price)
	assert.Equal(t, "45", draft.Stock)
	assert.Equal(t, []string{"https://cdn.test/a.jpg"}, draft.Images)
	require.Len(t, draft.Variations, 3)
	assert.Equal(t, "89.99", draft.Variations[2].Price)
	assert.Equal(t, "128GB", draft.Variations[2].Attributes["storage"])

	assert.Equal(t, http.StatusNotFound, api.do(t, "GET", "/api/forms/products/missing", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, "GET", "/api/forms/products/"+created.ID, nil, "-").Code)
}

func TestUploadImages(t *testing.T) {
	api := newTestAPI(t)

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 2, 2))))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range []string{"front.png", "back.png"} {
		part, err := mw.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = part.Write(img.Bytes())
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/products/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", bearer(t, "user-1", "admin"))
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeBody[ImageUploadResponse](t, w)
	require.Len(t, resp.URLs, 2)
	for _, u := range resp.URLs {
		assert.True(t, strings.HasPrefix(u, "http://blobs.test/catalog/products/"), u)
		assert.True(t, strings.HasSuffix(u, ".png"), u)
	}
}

func TestEventStreamDeliversChanges(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/products/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", bearer(t, "user-1", ""))

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	created := decodeBody[summaryBody](t, api.do(t, "POST", "/api/products", headphonesPayload(), "admin"))

	var eventLine, dataLine string
	for dataLine == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimPrefix(line, "data: ")
		}
	}

	assert.Equal(t, string(events.ProductCreated), eventLine)
	var ev events.Event
	require.NoError(t, json.Unmarshal([]byte(dataLine), &ev))
	assert.Equal(t, created.ID, ev.ProductID)
}
