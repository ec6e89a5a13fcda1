package main

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aboproducts/internal/csvtable"
)

func numberedRows(n int) []map[string]string {
	rows := make([]map[string]string, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, map[string]string{"product_id": fmt.Sprintf("B%03d", i)})
	}
	return rows
}

func TestSampleRowsSeeded_Deterministic(t *testing.T) {
	rows := numberedRows(20)
	a := sampleRowsSeeded(rows, 7, 0)
	b := sampleRowsSeeded(rows, 7, 0)
	assert.Equal(t, a, b)
	assert.ElementsMatch(t, rows, a)
	assert.Equal(t, "B000", rows[0]["product_id"], "input must not be reordered")
}

func TestSampleRowsSeeded_Limit(t *testing.T) {
	rows := numberedRows(20)
	assert.Len(t, sampleRowsSeeded(rows, 1, 5), 5)
	assert.Len(t, sampleRowsSeeded(rows, 1, 50), 20)
	assert.Empty(t, sampleRowsSeeded(nil, 1, 5))
}

func TestSampleRoundTripKeepsHeader(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	headers := []string{"product_id", "title", "description", "image_path"}
	require.NoError(t, csvtable.Save(in, headers, []map[string]string{
		{"product_id": "B1", "title": "a, b", "description": "line\nbreak", "image_path": "x.jpg"},
		{"product_id": "B2", "title": "c", "description": "", "image_path": "y.jpg"},
	}))

	tbl, err := csvtable.Load(in)
	require.NoError(t, err)
	out := filepath.Join(dir, "nested", "out.csv")
	require.NoError(t, csvtable.Save(out, tbl.Headers, sampleRowsSeeded(tbl.Rows, defaultSeed, 1)))

	got, err := csvtable.Load(out)
	require.NoError(t, err)
	assert.Equal(t, headers, got.Headers)
	require.Len(t, got.Rows, 1)
	assert.Contains(t, []string{"B1", "B2"}, got.Rows[0]["product_id"])
}
