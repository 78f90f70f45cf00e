package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/cache"
	"gastos/internal/core"
	"gastos/internal/sheets"
	"gastos/internal/sheets/memory"
)

type countingFetcher struct {
	mu      sync.Mutex
	calls   int
	records []core.MonthlyRecord
	err     error
}

func (f *countingFetcher) FetchExpenses(context.Context) ([]core.MonthlyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *countingFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	events []int
	err    error
}

func (n *recordingNotifier) PublishDatasetRefreshed(_ context.Context, records int, _ string) error {
	n.events = append(n.events, records)
	return n.err
}

type memoryRecorder struct {
	outcomes []error
}

func (r *memoryRecorder) RecordRefresh(_ context.Context, _ string, _ int, err error) error {
	r.outcomes = append(r.outcomes, err)
	return nil
}

func records(keys ...[2]int) []core.MonthlyRecord {
	out := make([]core.MonthlyRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, core.MonthlyRecord{Year: k[0], Month: k[1], Categories: core.Categories{}})
	}
	return out
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newStore(c *clock) *cache.Store {
	return cache.NewStore(cache.NewMemoryBackend(), cache.WithClock(c.Now))
}

func TestLoad_FetchesThenServesFromCache(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	f := &countingFetcher{records: records([2]int{2024, 1})}
	n := &recordingNotifier{}
	svc := NewDatasetService(f, newStore(c), WithNotifier(n), WithClock(c.Now))
	ctx := context.Background()

	got, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, SourceNetwork, svc.State().Source)
	assert.Equal(t, []int{1}, n.events)

	got, err = svc.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, f.Calls(), "second load is served by the cache")
	assert.Equal(t, SourceCache, svc.State().Source)
	assert.Len(t, n.events, 1)
}

func TestLoad_RefetchesAfterExpiry(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	f := &countingFetcher{records: records([2]int{2024, 1})}
	svc := NewDatasetService(f, newStore(c))
	ctx := context.Background()

	_, err := svc.Load(ctx)
	require.NoError(t, err)
	c.t = c.t.Add(cache.DefaultTTL + time.Second)
	_, err = svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Calls())
}

func TestRefresh_BypassesCache(t *testing.T) {
	c := &clock{t: time.Now()}
	f := &countingFetcher{records: records([2]int{2024, 1})}
	svc := NewDatasetService(f, newStore(c))
	ctx := context.Background()

	_, err := svc.Load(ctx)
	require.NoError(t, err)

	f.records = records([2]int{2024, 2}, [2]int{2024, 1})
	got, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, f.Calls())

	cached, ok := svc.Store().Read(ctx)
	require.True(t, ok)
	assert.Len(t, cached, 2)
}

func TestRefresh_FailureKeepsCacheAndClearsRecords(t *testing.T) {
	c := &clock{t: time.Now()}
	f := &countingFetcher{records: records([2]int{2024, 1})}
	rec := &memoryRecorder{}
	svc := NewDatasetService(f, newStore(c), WithRecorder(rec))
	ctx := context.Background()

	_, err := svc.Load(ctx)
	require.NoError(t, err)

	f.err = &core.TransportError{StatusCode: 403, Message: "Forbidden"}
	_, err = svc.Refresh(ctx)
	require.ErrorIs(t, err, core.ErrTransport)

	st := svc.State()
	assert.Error(t, st.Err)
	assert.Nil(t, st.Records)
	assert.False(t, st.Loading)
	assert.True(t, svc.Store().IsValid(ctx))
	require.Len(t, rec.outcomes, 2)
	assert.NoError(t, rec.outcomes[0])
	assert.Error(t, rec.outcomes[1])
}

func TestLoad_NoCacheAlwaysFetches(t *testing.T) {
	f := &countingFetcher{records: records([2]int{2024, 1})}
	svc := NewDatasetService(f, nil)
	for i := 0; i < 3; i++ {
		_, err := svc.Load(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, f.Calls())
}

func TestLoad_EmptyDatasetIsCachedAndNotAnError(t *testing.T) {
	src := memory.New([][]string{{"Year", "Rent"}, {"2024", "1"}})
	svc := NewDatasetService(sheets.NewFetcher(src, 0), cache.NewStore(cache.NewMemoryBackend()))

	got, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)

	_, err = svc.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.Reads())
}

func TestNotifierFailureDoesNotFailLoad(t *testing.T) {
	f := &countingFetcher{records: records([2]int{2024, 1})}
	svc := NewDatasetService(f, nil, WithNotifier(&recordingNotifier{err: errors.New("broker down")}))
	_, err := svc.Load(context.Background())
	assert.NoError(t, err)
}

func TestOnChangeAndConcurrentLoads(t *testing.T) {
	f := &countingFetcher{records: records([2]int{2024, 1})}
	svc := NewDatasetService(f, nil)

	var mu sync.Mutex
	changes := 0
	svc.OnChange(func(State) {
		mu.Lock()
		changes++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Load(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, f.Calls(), "loads are not coalesced")
	assert.Equal(t, 5, changes)
	assert.False(t, svc.State().Loading)
}
