package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/cache"
	"gastos/internal/core"
	"gastos/internal/middleware/ratelimit"
	"gastos/internal/middleware/trace"
	"gastos/internal/services"
)

type fakeFetcher struct {
	mu      sync.Mutex
	records []core.MonthlyRecord
	err     error
	calls   int
}

func (f *fakeFetcher) FetchExpenses(context.Context) ([]core.MonthlyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *fakeFetcher) set(records []core.MonthlyRecord, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records, f.err = records, err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePublisher struct {
	err      error
	requests []string
}

func (p *fakePublisher) PublishRefreshRequest(_ context.Context, reason, requestID string) error {
	if p.err != nil {
		return p.err
	}
	p.requests = append(p.requests, reason+":"+requestID)
	return nil
}

func month(year, m int, notes string, cats ...string) core.MonthlyRecord {
	r := core.MonthlyRecord{Year: year, Month: m, Categories: core.Categories{}, Notes: notes}
	for i := 0; i+1 < len(cats); i += 2 {
		r.Categories.Set(cats[i], core.NewAmount(decimal.RequireFromString(cats[i+1])))
	}
	return r
}

func sampleDataset() []core.MonthlyRecord {
	march := month(2024, 3, "**Viaje** a Madrid", "Affitto", "700", "Spesa", "250.5", "Svago", "0")
	march.Total = core.NewAmount(decimal.RequireFromString("950.5")).Ptr()
	return []core.MonthlyRecord{
		march,
		month(2024, 1, "", "Affitto", "700", "Spesa", "180"),
		month(2023, 12, "", "Affitto", "650", "Spesa", "410"),
	}
}

func newTestServer(t *testing.T, fetcher *fakeFetcher, opts ...ServerOption) *Server {
	t.Helper()
	svc := services.NewDatasetService(fetcher, cache.NewStore(cache.NewMemoryBackend()))
	srv := NewServer(":0", svc, opts...)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func TestIndexRendersLatestMonth(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{records: sampleDataset()})

	rr := do(t, srv, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Marzo 2024")
	assert.Contains(t, body, "$950.50")
	assert.Contains(t, body, "Affitto")
	assert.Contains(t, body, "<strong>Viaje</strong>")
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
}

func TestIndexShowsFetchError(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{err: errors.New("failed to fetch Google Sheets data: Forbidden")})

	rr := do(t, srv, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Forbidden")
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{records: sampleDataset()})

	rr := do(t, srv, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode(t, rr)["status"])

	rr = do(t, srv, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rr.Code)
	checks := decode(t, rr)["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["templates"])
	assert.Equal(t, "not_loaded", checks["dataset"])
}

func TestReadyFailsOnDependencyAndDatasetError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("boom")}
	srv := newTestServer(t, fetcher, WithHealthCheck("sqlite", func(context.Context) error {
		return errors.New("database is locked")
	}))

	do(t, srv, http.MethodGet, "/api/expenses")
	rr := do(t, srv, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	checks := decode(t, rr)["checks"].(map[string]any)
	assert.Equal(t, "failed: database is locked", checks["sqlite"])
	assert.Equal(t, "failed: boom", checks["dataset"])
}

func TestExpensesEndpoint(t *testing.T) {
	fetcher := &fakeFetcher{records: sampleDataset()}
	srv := newTestServer(t, fetcher)

	rr := do(t, srv, http.MethodGet, "/api/expenses")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Len(t, body["records"], 3)
	assert.Equal(t, "network", body["source"])
	assert.NotContains(t, body, "error")
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	first := body["records"].([]any)[0].(map[string]any)
	assert.Equal(t, map[string]any{"Affitto": 700.0, "Spesa": 250.5, "Svago": 0.0}, first["categories"])

	do(t, srv, http.MethodGet, "/api/expenses")
	assert.Equal(t, 1, fetcher.Calls(), "second request is served from state")
}

func TestExpensesEndpointError(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{err: errors.New("failed to fetch Google Sheets data: Not Found")})

	rr := do(t, srv, http.MethodGet, "/api/expenses")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Nil(t, body["records"])
	assert.Equal(t, "failed to fetch Google Sheets data: Not Found", body["error"])

	rr = do(t, srv, http.MethodGet, "/api/summary")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestSummaryEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{records: sampleDataset()})

	rr := do(t, srv, http.MethodGet, "/api/summary")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.EqualValues(t, 2024, body["year"])
	assert.EqualValues(t, 3, body["month"])
	assert.Equal(t, "Marzo", body["monthName"])
	assert.Equal(t, 950.5, body["selectedTotal"])
	assert.Equal(t, 950.5, body["sheetTotal"])
	assert.Equal(t, "Affitto", body["topExpense"].(map[string]any)["name"])

	q := url.Values{"year": {"2024"}, "month": {"3"}, "disabled": {"Affitto, Svago"}}
	rr = do(t, srv, http.MethodGet, "/api/summary?"+q.Encode())
	require.Equal(t, http.StatusOK, rr.Code)
	body = decode(t, rr)
	assert.Equal(t, 250.5, body["selectedTotal"])
	assert.Equal(t, "Spesa", body["topExpense"].(map[string]any)["name"])

	rr = do(t, srv, http.MethodGet, "/api/summary?year=2024")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.NotEmpty(t, decode(t, rr)["requestId"])

	rr = do(t, srv, http.MethodGet, "/api/summary?year=2022&month=5")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPeriodsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{records: sampleDataset()})

	rr := do(t, srv, http.MethodGet, "/api/periods")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, []any{2024.0, 2023.0}, body["years"])
	assert.Len(t, body["months"], 3)
	assert.Equal(t, map[string]any{"year": 2024.0, "month": 3.0}, body["latest"])
}

func TestCategoryStatsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{records: sampleDataset()})

	rr := do(t, srv, http.MethodGet, "/api/categories/Spesa/stats")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.EqualValues(t, 3, body["months"])
	assert.Equal(t, 410.0, body["max"])

	rr = do(t, srv, http.MethodGet, "/api/categories/Viaggi/stats")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRefreshInlineFlushesSummaries(t *testing.T) {
	fetcher := &fakeFetcher{records: sampleDataset()}
	srv := newTestServer(t, fetcher)

	rr := do(t, srv, http.MethodGet, "/api/summary")
	require.Equal(t, 950.5, decode(t, rr)["selectedTotal"])
	require.Equal(t, 1, srv.summaries.Size())

	fetcher.set([]core.MonthlyRecord{month(2024, 4, "", "Affitto", "720")}, nil)
	rr = do(t, srv, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["records"], 1)
	assert.Zero(t, srv.summaries.Size())

	rr = do(t, srv, http.MethodGet, "/api/summary")
	body := decode(t, rr)
	assert.EqualValues(t, 4, body["month"])
	assert.Equal(t, 720.0, body["selectedTotal"])
	assert.Equal(t, 2, fetcher.Calls())
}

func TestRefreshInlineFailure(t *testing.T) {
	fetcher := &fakeFetcher{records: sampleDataset()}
	srv := newTestServer(t, fetcher)
	do(t, srv, http.MethodGet, "/api/expenses")

	fetcher.set(nil, errors.New("failed to fetch Google Sheets data: Forbidden"))
	rr := do(t, srv, http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, decode(t, rr)["error"], "Forbidden")
}

func TestRefreshQueued(t *testing.T) {
	pub := &fakePublisher{}
	fetcher := &fakeFetcher{records: sampleDataset()}
	srv := newTestServer(t, fetcher, WithRefreshPublisher(pub))

	rr := do(t, srv, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusAccepted, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "queued", body["status"])
	require.Len(t, pub.requests, 1)
	assert.Equal(t, "api:"+body["requestId"].(string), pub.requests[0])
	assert.Zero(t, fetcher.Calls())

	form := httptest.NewRequest(http.MethodPost, "/api/refresh", strings.NewReader(""))
	form.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, form)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/?queued=1", rr.Header().Get("Location"))

	pub.err = errors.New("circuit breaker is open")
	rr = do(t, srv, http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMiddlewareChain(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{records: sampleDataset()},
		WithRateLimit(ratelimit.Config{RequestsPerMinute: 2}))

	rr := do(t, srv, http.MethodGet, "/healthz")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
	assert.Len(t, rr.Header().Get(trace.HeaderRequestID), 36)

	rr = do(t, srv, http.MethodGet, "/.env")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/periods").Code)
	}
	rr = do(t, srv, http.MethodGet, "/api/periods")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	// Non-API routes are not limited.
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz").Code)

	rr = do(t, srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.EqualValues(t, 1, body["rateLimit"].(map[string]any)["totalHits"])
	assert.EqualValues(t, 1, body["security"].(map[string]any)["suspiciousRequests"])
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, &fakeFetcher{})

	rr := do(t, srv, http.MethodGet, "/static/app.css")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
}

func TestFailedLoadIsRetriedAfterBackoff(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("failed to fetch Google Sheets data: Forbidden")}
	srv := newTestServer(t, fetcher)

	rr := do(t, srv, http.MethodGet, "/api/expenses")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	do(t, srv, http.MethodGet, "/api/expenses")
	assert.Equal(t, 1, fetcher.Calls(), "error is served within the back-off")

	srv.errorRetry = 0
	fetcher.set(sampleDataset(), nil)
	rr = do(t, srv, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Marzo 2024")
	assert.Equal(t, 2, fetcher.Calls())
}

func TestDatasetRefreshedReloadsNewerData(t *testing.T) {
	fetcher := &fakeFetcher{records: sampleDataset()}
	srv := newTestServer(t, fetcher)
	ctx := context.Background()

	do(t, srv, http.MethodGet, "/")
	require.Equal(t, 1, srv.summaries.Size())
	loadedAt := srv.dataset.State().LoadedAt

	reloaded, err := srv.DatasetRefreshed(ctx, loadedAt.Add(-time.Second))
	require.NoError(t, err)
	assert.False(t, reloaded, "event older than the loaded data")
	assert.Equal(t, 1, srv.summaries.Size())

	// Another process rewrote the shared cache.
	april := []core.MonthlyRecord{month(2024, 4, "", "Affitto", "720")}
	srv.dataset.Store().Write(ctx, april)

	reloaded, err = srv.DatasetRefreshed(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.Zero(t, srv.summaries.Size())
	assert.Equal(t, 1, fetcher.Calls(), "reload is served from the shared cache")

	st := srv.dataset.State()
	assert.Equal(t, services.SourceCache, st.Source)
	require.Len(t, st.Records, 1)
	assert.Equal(t, "2024-04", st.Records[0].Key())
}
