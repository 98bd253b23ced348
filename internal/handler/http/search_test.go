package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/health"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/pkg/logger"

	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/engine/memory"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/mapping"
	"github.com/Crown-Commercial-Service/digitalmarketplace-search-api/internal/service"
)

func newTestRouter(t *testing.T, authTokens []string) http.Handler {
	t.Helper()

	definition := map[string]any{
		"mappings": map[string]any{
			"_meta": map[string]any{
				"doc_type": "services",
				"version":  "9.0.0",
			},
			"properties": map[string]any{
				"text_serviceName": map[string]any{"type": "text"},
				"filter_lot":       map[string]any{"type": "keyword"},
				"agg_lot":          map[string]any{"type": "keyword"},
				"sortonly_idHash":  map[string]any{"type": "keyword"},
			},
		},
	}
	dir := t.TempDir()
	raw, err := json.Marshal(definition)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "services.json"), raw, 0o600))

	eng := memory.New()
	cache, err := mapping.NewCache(eng, 0)
	require.NoError(t, err)

	log := logger.New("search-api-test", "error")
	svc := service.NewSearchService(eng, cache, service.Config{
		PageSize:         100,
		IDOnlyMultiplier: 10,
		DefinitionsDir:   dir,
	}, log)

	return NewRouter(svc, health.NewHandler(), authTokens, log)
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func seedIndex(t *testing.T, router http.Handler) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPut, "/g-cloud-9", `{"definition":"services"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	docs := []string{
		`{"document":{"id":"1","serviceName":"Cloud email hosting","lot":"SaaS"}}`,
		`{"document":{"id":"2","serviceName":"Accounting platform","lot":"SaaS"}}`,
	}
	for i, doc := range docs {
		path := "/g-cloud-9/services/" + string(rune('1'+i))
		rec := doJSON(t, router, http.MethodPut, path, doc)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestRouter_RootListsLinks(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	links := decodeBody(t, rec)["links"].(map[string]any)
	assert.Contains(t, links, "query.keyword-search")
}

func TestRouter_SearchEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)
	seedIndex(t, router)

	rec := doJSON(t, router, http.MethodGet, "/g-cloud-9/services/search?q=email", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(1), meta["total"])

	docs := body["documents"].([]any)
	require.Len(t, docs, 1)
	doc := docs[0].(map[string]any)
	assert.Equal(t, "1", doc["id"])
	assert.Equal(t, "Cloud email hosting", doc["serviceName"])
}

func TestRouter_SearchUnknownIndexIs404(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/missing/services/search", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_SearchInvalidPageIs400(t *testing.T) {
	router := newTestRouter(t, nil)
	seedIndex(t, router)

	rec := doJSON(t, router, http.MethodGet, "/g-cloud-9/services/search?page=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_PagePastEndIs404(t *testing.T) {
	router := newTestRouter(t, nil)
	seedIndex(t, router)

	rec := doJSON(t, router, http.MethodGet, "/g-cloud-9/services/search?page=2", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeBody(t, rec)
	errBody := body["error"].(map[string]any)
	assert.Contains(t, errBody["message"], "Page 2 does not exist for this search")
}

func TestRouter_AggregationsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)
	seedIndex(t, router)

	rec := doJSON(t, router, http.MethodGet, "/g-cloud-9/services/aggregations?aggregations=lot", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	aggs := body["aggregations"].(map[string]any)
	lot := aggs["lot"].(map[string]any)
	assert.Equal(t, float64(2), lot["SaaS"])

	rec = doJSON(t, router, http.MethodGet, "/g-cloud-9/services/aggregations", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_DocumentLifecycle(t *testing.T) {
	router := newTestRouter(t, nil)
	seedIndex(t, router)

	rec := doJSON(t, router, http.MethodGet, "/g-cloud-9/services/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	doc := body["document"].(map[string]any)
	assert.Equal(t, "Cloud email hosting", doc["text_serviceName"])
	assert.Equal(t, "saas", doc["filter_lot"])

	rec = doJSON(t, router, http.MethodDelete, "/g-cloud-9/services/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/g-cloud-9/services/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_IndexDocumentValidation(t *testing.T) {
	router := newTestRouter(t, nil)
	seedIndex(t, router)

	rec := doJSON(t, router, http.MethodPut, "/g-cloud-9/services/9", `{"document":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/g-cloud-9/services/9", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_IndexAdministration(t *testing.T) {
	router := newTestRouter(t, nil)
	seedIndex(t, router)

	rec := doJSON(t, router, http.MethodPut, "/aliases/g-cloud", `{"target":"g-cloud-9"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/g-cloud/services/search?q=email", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/g-cloud-9/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/g-cloud-9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody(t, rec)["status"].(map[string]any)
	assert.Equal(t, float64(2), status["num_docs"])
	assert.Equal(t, "9.0.0", status["mapping_version"])

	rec = doJSON(t, router, http.MethodGet, "/_status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	statuses := decodeBody(t, rec)["status"].(map[string]any)
	assert.Contains(t, statuses, "g-cloud-9")

	rec = doJSON(t, router, http.MethodDelete, "/g-cloud-9", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/g-cloud-9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_CreateIndexRequiresDefinition(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := doJSON(t, router, http.MethodPut, "/g-cloud-9", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPut, "/g-cloud-9", `{"definition":"briefs"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_BearerAuth(t *testing.T) {
	router := newTestRouter(t, []string{"secret-token"})

	req := httptest.NewRequest(http.MethodGet, "/_status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/_status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/_status", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open.
	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_ContentTypeEnforced(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPut, "/g-cloud-9", strings.NewReader(`{"definition":"services"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t, []string{"secret-token"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_HealthReady(t *testing.T) {
	h := health.NewHandler()
	h.Register("engine", func(ctx context.Context) error { return nil })

	eng := memory.New()
	cache, err := mapping.NewCache(eng, 0)
	require.NoError(t, err)
	log := logger.New("search-api-test", "error")
	svc := service.NewSearchService(eng, cache, service.Config{PageSize: 100}, log)
	router := NewRouter(svc, h, nil, log)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
