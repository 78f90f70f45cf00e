package sheets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/core"
)

type fakeReader struct {
	values [][]string
	err    error
	calls  int
}

func (f *fakeReader) ReadValues(ctx context.Context) ([][]string, error) {
	f.calls++
	return f.values, f.err
}

func (f *fakeReader) Describe() string { return "fake" }

type blockingReader struct{}

func (blockingReader) ReadValues(ctx context.Context) ([][]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestFetchExpenses(t *testing.T) {
	r := &fakeReader{values: [][]string{
		header,
		{"2024", "1", "500", "90"},
		{"2024", "2", "500", "110"},
	}}
	f := NewFetcher(r, time.Second)
	recs, err := f.FetchExpenses(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 2, recs[0].Month)
	assert.Equal(t, 1, r.calls)
}

func TestFetchExpenses_WrapsTransportError(t *testing.T) {
	r := &fakeReader{err: &core.TransportError{StatusCode: 404, Message: "Requested entity was not found."}}
	_, err := NewFetcher(r, 0).FetchExpenses(context.Background())
	require.Error(t, err)
	assert.Equal(t, "failed to fetch Google Sheets data: failed to fetch sheet: Requested entity was not found.", err.Error())

	var te *core.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 404, te.StatusCode)
	assert.Equal(t, 1, r.calls, "no retry")
}

func TestFetchExpenses_ConfigErrorPassesThrough(t *testing.T) {
	r := &fakeReader{err: &core.ConfigError{Setting: "Google Sheets API key", Env: "GOOGLE_SHEETS_API_KEY"}}
	_, err := NewFetcher(r, 0).FetchExpenses(context.Background())
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = (*Fetcher)(nil).FetchExpenses(context.Background())
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestFetchExpenses_Timeout(t *testing.T) {
	_, err := NewFetcher(blockingReader{}, 20*time.Millisecond).FetchExpenses(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchExpenses_SchemaErrorIsNoData(t *testing.T) {
	r := &fakeReader{values: [][]string{{"Year", "Rent"}, {"2024", "1"}}}
	recs, err := NewFetcher(r, 0).FetchExpenses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "fake", Describe(&fakeReader{}))
	assert.Equal(t, "unknown", Describe(blockingReader{}))
}
