package report_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/shouni/go-index-watch/pkg/checker"
	"github.com/shouni/go-index-watch/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultsFixture() []checker.Result {
	checkedAt := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	return []checker.Result{
		{URL: "https://example.com/a/", Status: checker.StatusIndexed, Method: "Search Console Data", CheckedAt: checkedAt},
		{URL: "https://example.com/b/", Status: checker.StatusNotInSourceData, Method: "Search Console Data", CheckedAt: checkedAt},
		{URL: "https://example.com/c/", Status: checker.ErrorStatus("HTTP 500"), Method: "Google Search", CheckedAt: checkedAt},
	}
}

func TestSafeFileName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Example", "example"},
		{"spaces_to_underscore", "My Cool Site", "my_cool_site"},
		{"ampersand_to_and", "Austin Fence & Deck", "austin_fence_and_deck"},
		{"surrounding_whitespace", "  Padded Name  ", "padded_name"},
		{"consecutive_spaces", "Double  Space", "double_space"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, report.SafeFileName(tt.in))
		})
	}
}

func TestCSVWriterWrite(t *testing.T) {
	t.Run("writes_header_and_rows", func(t *testing.T) {
		dir := t.TempDir()
		writer := report.NewCSVWriter(dir)

		path, err := writer.Write("Austin Fence & Deck", resultsFixture())
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "austin_fence_and_deck_indexation_results.csv"), path)

		file, err := os.Open(path)
		require.NoError(t, err)
		defer file.Close()

		records, err := csv.NewReader(file).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 4)

		assert.Equal(t, []string{"URL", "Status", "Method", "Check_Date"}, records[0])
		assert.Equal(t, []string{"https://example.com/a/", "INDEXED", "Search Console Data", "2026-08-25 09:30:00"}, records[1])
		assert.Equal(t, "ERROR: HTTP 500", records[3][1])
	})

	t.Run("empty_results_create_no_file", func(t *testing.T) {
		dir := t.TempDir()
		writer := report.NewCSVWriter(dir)

		path, err := writer.Write("Example", nil)
		require.NoError(t, err)
		assert.Empty(t, path)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("overwrites_previous_run", func(t *testing.T) {
		dir := t.TempDir()
		writer := report.NewCSVWriter(dir)

		_, err := writer.Write("Example", resultsFixture())
		require.NoError(t, err)

		path, err := writer.Write("Example", resultsFixture()[:1])
		require.NoError(t, err)

		file, err := os.Open(path)
		require.NoError(t, err)
		defer file.Close()

		records, err := csv.NewReader(file).ReadAll()
		require.NoError(t, err)
		// ヘッダー + 1行のみ（前回の3行は残らない）
		assert.Len(t, records, 2)
	})
}

func TestXLSXWriterWrite(t *testing.T) {
	t.Run("writes_formatted_sheet", func(t *testing.T) {
		dir := t.TempDir()
		writer := report.NewXLSXWriter(dir)

		path, err := writer.Write("My Cool Site", resultsFixture())
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "my_cool_site_indexation_results.xlsx"), path)

		f, err := excelize.OpenFile(path)
		require.NoError(t, err)
		defer f.Close()

		rows, err := f.GetRows("Results")
		require.NoError(t, err)
		require.Len(t, rows, 4)

		assert.Equal(t, []string{"URL", "Status", "Method", "Check_Date"}, rows[0])
		assert.Equal(t, "https://example.com/a/", rows[1][0])
		assert.Equal(t, "INDEXED", rows[1][1])
		assert.Equal(t, "2026-08-25 09:30:00", rows[1][3])
	})

	t.Run("empty_results_create_no_file", func(t *testing.T) {
		dir := t.TempDir()
		writer := report.NewXLSXWriter(dir)

		path, err := writer.Write("Example", nil)
		require.NoError(t, err)
		assert.Empty(t, path)
	})
}
