package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/sheets"
)

func TestStoreReturnsCopies(t *testing.T) {
	s := New([][]string{{"Year", "Month"}, {"2024", "1"}})
	got, err := s.ReadValues(context.Background())
	require.NoError(t, err)
	got[1][0] = "1999"

	again, err := s.ReadValues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024", again[1][0])
	assert.Equal(t, 2, s.Reads())
}

func TestStoreReplace(t *testing.T) {
	s := New(nil)
	got, err := s.ReadValues(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)

	s.Replace([][]string{{"Year", "Month", "Rent"}, {"2024", "5", "700"}})
	recs, err := sheets.NewFetcher(s, 0).FetchExpenses(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 5, recs[0].Month)
}

func TestDemoTableAssembles(t *testing.T) {
	recs := sheets.Assemble(context.Background(), DemoTable())
	require.Len(t, recs, 4)
	assert.Equal(t, "2024-03", recs[0].Key())
	assert.Equal(t, "2023-12", recs[3].Key())
	assert.Equal(t, []string{"Affitto", "Spesa", "Trasporti", "Svago"}, recs[0].Categories.Names())
	assert.Equal(t, "memory", sheets.Describe(NewDemo()))
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDemo().ReadValues(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
