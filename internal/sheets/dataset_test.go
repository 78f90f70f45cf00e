package sheets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/core"
)

var header = []string{"Year", "Month", "Rent", "Food", "Total", "Notes"}

func TestInferSchema(t *testing.T) {
	s, err := InferSchema(header)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Year)
	assert.Equal(t, 1, s.Month)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 5, s.Notes)
	assert.Equal(t, []string{"Rent", "Food"}, s.CategoryNames())
}

func TestInferSchema_CaseAndWhitespace(t *testing.T) {
	s, err := InferSchema([]string{" MONTH ", "", "year", " Utilities ", "year"})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Year)
	assert.Equal(t, 0, s.Month)
	assert.False(t, s.HasNotes())
	assert.False(t, s.HasTotal())
	assert.Equal(t, []Column{{Index: 3, Name: "Utilities"}}, s.Categories)
}

func TestInferSchema_MissingMonth(t *testing.T) {
	_, err := InferSchema([]string{"Year", "Rent"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrSchema))
	assert.Contains(t, err.Error(), "Month")
}

func TestParseRow(t *testing.T) {
	s, err := InferSchema(header)
	require.NoError(t, err)

	rec, ok := ParseRow([]string{"2024", "3", "1.200,50", "", "", "comment"}, s)
	require.True(t, ok)
	assert.Equal(t, 2024, rec.Year)
	assert.Equal(t, 3, rec.Month)
	assert.Equal(t, []string{"Rent", "Food"}, rec.Categories.Names())
	rent, _ := rec.Categories.Get("Rent")
	food, _ := rec.Categories.Get("Food")
	assert.Equal(t, "1200.5", rent.String())
	assert.True(t, food.IsZero())
	assert.Nil(t, rec.Total)
	assert.Equal(t, "comment", rec.Notes)
}

func TestParseRow_ShortRowAndTotal(t *testing.T) {
	s, err := InferSchema(header)
	require.NoError(t, err)

	rec, ok := ParseRow([]string{"2024", "4", "10"}, s)
	require.True(t, ok)
	assert.Len(t, rec.Categories, 2)
	assert.Nil(t, rec.Total)
	assert.Empty(t, rec.Notes)

	rec, ok = ParseRow([]string{"2024", "5", "10", "x", "1.010", "   "}, s)
	require.True(t, ok)
	require.NotNil(t, rec.Total)
	assert.Equal(t, "1010", rec.Total.String())
	assert.Empty(t, rec.Notes)
}

func TestParseRow_Rejects(t *testing.T) {
	s, err := InferSchema(header)
	require.NoError(t, err)

	for _, row := range [][]string{
		nil,
		{},
		{"", "3"},
		{"2024", "march"},
		{"x4", "1"},
	} {
		_, ok := ParseRow(row, s)
		assert.False(t, ok, "row %v", row)
	}
}

func TestAssemble_SortsStable(t *testing.T) {
	values := [][]string{
		{"Year", "Month", "Rent", "Notes"},
		{"2023", "12", "1", "a"},
		{"2024", "1", "2", "first"},
		{"2024", "1", "3", "second"},
		{"2024", "6", "4", "b"},
	}
	got := Assemble(context.Background(), values)
	require.Len(t, got, 4)
	keys := make([]string, len(got))
	for i, r := range got {
		keys[i] = r.Key()
	}
	assert.Equal(t, []string{"2024-06", "2024-01", "2024-01", "2023-12"}, keys)
	assert.Equal(t, "first", got[1].Notes)
	assert.Equal(t, "second", got[2].Notes)
}

func TestAssemble_EmptyCases(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Assemble(ctx, nil))
	assert.Empty(t, Assemble(ctx, [][]string{header}))

	recs, rep := AssembleWithReport(ctx, [][]string{
		{"Year", "Rent"},
		{"2024", "1"},
	})
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
	assert.ErrorIs(t, rep.SchemaErr, core.ErrSchema)
}

func TestAssemble_SkipsMalformedRows(t *testing.T) {
	recs, rep := AssembleWithReport(context.Background(), [][]string{
		header,
		{"2024", "2", "700", "150,25"},
		{"twenty", "3", "700"},
	})
	require.Len(t, recs, 1)
	assert.Equal(t, 2, rep.Rows)
	assert.Equal(t, 1, rep.Parsed)
	assert.Equal(t, []int{3}, rep.Skipped)
	food, _ := recs[0].Categories.Get("Food")
	assert.Equal(t, "150.25", food.String())
}

func TestToTable(t *testing.T) {
	got := ToTable([][]interface{}{
		{"Year", " Month ", nil},
		{2024.0, "3"},
	})
	assert.Equal(t, [][]string{{"Year", "Month", ""}, {"2024", "3"}}, got)
	assert.Nil(t, ToTable(nil))
}
