package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/core"
	"gastos/internal/sheets"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.Endpoint = srv.URL
	cfg.HTTPClient = srv.Client()
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return c
}

func TestReadValues_Success(t *testing.T) {
	var gotPath, gotKey string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"range": "Hoja 1!A1:Z100",
			"majorDimension": "ROWS",
			"values": [
				["Year", "Month", "Rent", "Food", "Total", "Notes"],
				["2024", "3", "1.200,50", "", "", "comment"],
				["2024", "4", "1.200,50", "300"]
			]
		}`))
	}, Config{APIKey: "secret", SpreadsheetID: "sheet-123", Range: "Hoja 1!A1:Z100"})

	values, err := c.ReadValues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/v4/spreadsheets/sheet-123/values/Hoja 1!A1:Z100", gotPath)
	assert.Equal(t, "secret", gotKey)
	require.Len(t, values, 3)
	assert.Equal(t, []string{"2024", "4", "1.200,50", "300"}, values[2])
	assert.Equal(t, "sheets:sheet-123/Hoja 1!A1:Z100", c.Describe())
}

func TestReadValues_EmptyRange(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"range":"Sheet1!A1:Z100","majorDimension":"ROWS"}`))
	}, Config{APIKey: "k", SpreadsheetID: "s"})

	values, err := c.ReadValues(context.Background())
	require.NoError(t, err)
	assert.Empty(t, values)
	assert.Equal(t, DefaultRange, c.Range())
}

func TestReadValues_APIErrorMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`))
	}, Config{APIKey: "bad", SpreadsheetID: "s"})

	_, err := c.ReadValues(context.Background())
	var te *core.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadRequest, te.StatusCode)
	assert.Equal(t, "API key not valid. Please pass a valid API key.", te.Message)
	assert.ErrorIs(t, err, core.ErrTransport)
}

func TestReadValues_FallsBackToStatusText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html>denied</html>"))
	}, Config{APIKey: "k", SpreadsheetID: "s"})

	_, err := c.ReadValues(context.Background())
	var te *core.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "Forbidden", te.Message)
}

func TestReadValues_MissingConfiguration(t *testing.T) {
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) { calls++ }

	c := newTestClient(t, handler, Config{SpreadsheetID: "s"})
	_, err := c.ReadValues(context.Background())
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.Contains(t, err.Error(), EnvAPIKey)

	c = newTestClient(t, handler, Config{APIKey: "k"})
	_, err = c.ReadValues(context.Background())
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.Contains(t, err.Error(), EnvSpreadsheetID)

	assert.Zero(t, calls, "no request is sent without configuration")
}

func TestReadValues_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(context.Background(), Config{APIKey: "k", SpreadsheetID: "s", Endpoint: url})
	require.NoError(t, err)
	_, err = c.ReadValues(context.Background())
	var te *core.TransportError
	require.True(t, errors.As(err, &te))
	assert.Zero(t, te.StatusCode)
}

func TestFetcherEndToEnd(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"values":[["Year","Month","Rent"],["2024","1","700"],["bad","2","700"]]}`))
	}, Config{APIKey: "k", SpreadsheetID: "s"})

	recs, err := sheets.NewFetcher(c, 0).FetchExpenses(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 2024, recs[0].Year)
}

func TestFetcherWrapsAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found."}}`))
	}, Config{APIKey: "k", SpreadsheetID: "missing"})

	_, err := sheets.NewFetcher(c, 0).FetchExpenses(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to fetch Google Sheets data: failed to fetch sheet: Requested entity was not found."))
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, " key ")
	t.Setenv(EnvSpreadsheetID, "sheet")
	t.Setenv(EnvRange, "")
	t.Setenv(EnvEndpoint, "")

	c, err := NewFromEnv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key", c.apiKey)
	assert.Equal(t, "sheet", c.spreadsheetID)
	assert.Equal(t, DefaultRange, c.Range())
}
