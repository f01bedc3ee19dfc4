package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commesse/internal/core/apperror"
	"commesse/internal/core/numerator"
	"commesse/internal/domain/generator"
	"commesse/internal/infrastructure/storage/postgres"
	"commesse/pkg/logger"
)

type fakeIssuer struct {
	res    *generator.Result
	err    error
	folder string
	class  numerator.Class
}

func (f *fakeIssuer) Issue(_ context.Context, folder string, class numerator.Class) (*generator.Result, error) {
	f.folder, f.class = folder, class
	return f.res, f.err
}

type fakeCounter struct {
	next     int
	preview  *generator.Result
	err      error
	requests []generator.Request
}

func (f *fakeCounter) Generate(_ context.Context, req generator.Request) (*generator.Result, error) {
	f.requests = append(f.requests, req)
	return f.preview, f.err
}

func (f *fakeCounter) Peek(context.Context, numerator.Class) (int, error) { return f.next, f.err }

func (f *fakeCounter) Advance(context.Context, numerator.Class) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n := f.next
	f.next++
	return n, nil
}

type fakeTrigger struct{ folders []string }

func (f *fakeTrigger) Archived(folder string) bool {
	f.folders = append(f.folders, folder)
	return true
}

type fakeRegistry struct {
	entries []postgres.Entry
	filter  postgres.RegistryFilter
}

func (f *fakeRegistry) List(_ context.Context, filter postgres.RegistryFilter) ([]postgres.Entry, error) {
	f.filter = filter
	return f.entries, nil
}

type testAPI struct {
	handler http.Handler
	issuer  *fakeIssuer
	counter *fakeCounter
	trigger *fakeTrigger
}

func newTestAPI(t *testing.T, mutate func(*RouterConfig)) *testAPI {
	t.Helper()
	api := &testAPI{
		issuer:  &fakeIssuer{},
		counter: &fakeCounter{next: 7},
		trigger: &fakeTrigger{},
	}
	cfg := RouterConfig{
		Logger:  logger.Nop(),
		Issuer:  api.issuer,
		Counter: api.counter,
		Trigger: api.trigger,
		DataDir: t.TempDir(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	api.handler = NewHandler(cfg)
	return api
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealth_ReadyFailsOnMissingDataDir(t *testing.T) {
	api := newTestAPI(t, func(c *RouterConfig) { c.DataDir = "/nonexistent/commesse-data" })

	rec := api.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNext_GlobalPeek(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodGet, "/api/v1/ddt/entrata/next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(7), body["number"])
	assert.Equal(t, "0007W", body["documentNumber"])
	assert.Empty(t, api.counter.requests)
}

func TestNext_FolderPreview(t *testing.T) {
	api := newTestAPI(t, nil)
	api.counter.preview = &generator.Result{OK: true, Number: 7, DocumentNumber: "0007W",
		FileName: "DDT_0007W_C9999_05-03-2025.pdf", Preview: true, Note: generator.NotePreview}

	rec := api.do(t, http.MethodGet, "/api/v1/ddt/W/next?folder=/orders/ACME", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, api.counter.requests, 1)
	assert.Equal(t, generator.Request{Folder: "/orders/ACME", Class: numerator.Entrata}, api.counter.requests[0])

	body := decode(t, rec)
	assert.Equal(t, true, body["preview"])
	assert.Equal(t, false, body["created"])
	assert.Equal(t, "DDT_0007W_C9999_05-03-2025.pdf", body["fileName"])
}

func TestNext_UnknownClass(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodGet, "/api/v1/ddt/fattura/next", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeInvalidInput, decode(t, rec)["code"])
}

func TestAdvance(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/v1/ddt/uscita/advance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0007T", decode(t, rec)["documentNumber"])

	rec = api.do(t, http.MethodPost, "/api/v1/ddt/uscita/advance", nil)
	assert.Equal(t, "0008T", decode(t, rec)["documentNumber"])
}

func TestGenerate_CreatedAndNoop(t *testing.T) {
	api := newTestAPI(t, nil)
	api.issuer.res = &generator.Result{OK: true, Number: 7, DocumentNumber: "0007W", Created: true}

	rec := api.do(t, http.MethodPost, "/api/v1/ddt/entrata/generate", map[string]string{"folder": "/orders/ACME"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/orders/ACME", api.issuer.folder)
	assert.Equal(t, numerator.Entrata, api.issuer.class)

	api.issuer.res = &generator.Result{OK: true, DocumentNumber: "0007W", Note: generator.NoteAlreadyIssued}
	rec = api.do(t, http.MethodPost, "/api/v1/ddt/entrata/generate", map[string]string{"folder": "/orders/ACME"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, generator.NoteAlreadyIssued, decode(t, rec)["note"])
}

func TestGenerate_MissingFolder(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/v1/ddt/entrata/generate", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeValidation, decode(t, rec)["code"])
}

func TestGenerate_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"busy", apperror.NewBusy("ddt-counter-entrata"), http.StatusLocked, apperror.CodeBusy},
		{"duplicate", apperror.NewDuplicateDetected("entrata", "C9999"), http.StatusConflict, apperror.CodeDuplicateDetected},
		{"exhausted", apperror.NewSequenceExhausted("entrata", 10000), http.StatusUnprocessableEntity, apperror.CodeSequenceExhausted},
		{"config", apperror.NewConfigurationMissing("TEMPLATE_ENTRATA"), http.StatusInternalServerError, apperror.CodeConfigurationMissing},
		{"raw", errors.New("disk on fire"), http.StatusInternalServerError, apperror.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newTestAPI(t, nil)
			api.issuer.err = tc.err

			rec := api.do(t, http.MethodPost, "/api/v1/ddt/entrata/generate", map[string]string{"folder": "/x"})
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decode(t, rec)["code"])
		})
	}
}

func TestGenerate_BusySetsRetryAfter(t *testing.T) {
	api := newTestAPI(t, nil)
	api.issuer.err = apperror.NewBusy("ddt-counter-entrata")

	rec := api.do(t, http.MethodPost, "/api/v1/ddt/entrata/generate", map[string]string{"folder": "/x"})
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, true, decode(t, rec)["retryable"])
}

func TestArchive_FiresOnTransitionOnly(t *testing.T) {
	api := newTestAPI(t, nil)
	folder := t.TempDir()

	rec := api.do(t, http.MethodPost, "/api/v1/commesse/archive", map[string]any{"folder": folder, "archived": true, "previous": false})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, decode(t, rec)["accepted"])

	rec = api.do(t, http.MethodPost, "/api/v1/commesse/archive", map[string]any{"folder": folder, "archived": true, "previous": true})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, false, decode(t, rec)["accepted"])

	api.do(t, http.MethodPost, "/api/v1/commesse/archive", map[string]any{"folder": folder, "archived": false, "previous": true})

	assert.Equal(t, []string{folder}, api.trigger.folders)
}

func TestArchive_MissingFolder(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/v1/commesse/archive", map[string]any{"folder": "/nonexistent/order", "archived": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, api.trigger.folders)
}

func TestRegistry_NotConfigured(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodGet, "/api/v1/ddt/registry", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperror.CodeConfigurationMissing, decode(t, rec)["code"])
}

func TestRegistry_List(t *testing.T) {
	reg := &fakeRegistry{entries: []postgres.Entry{{Class: "entrata", Number: 7, DocumentNumber: "0007W", OrderCode: "C9999"}}}
	api := newTestAPI(t, func(c *RouterConfig) { c.Registry = reg })

	rec := api.do(t, http.MethodGet, "/api/v1/ddt/registry?order=C9999&class=W&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "C9999", reg.filter.OrderCode)
	assert.Equal(t, numerator.Entrata, reg.filter.Class)
	assert.Equal(t, uint64(5), reg.filter.Limit)

	body := decode(t, rec)
	assert.Equal(t, float64(1), body["totalCount"])
}

func TestCORS(t *testing.T) {
	api := newTestAPI(t, func(c *RouterConfig) { c.CORSOrigins = []string{"http://ufficio.local"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/ddt/entrata/next", nil)
	req.Header.Set("Origin", "http://ufficio.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://ufficio.local", rec.Header().Get("Access-Control-Allow-Origin"))
}
