// Package adapters provides table sources backed by local spreadsheet exports.
package adapters

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"

	"gastos/internal/core"
	"gastos/internal/sheets"
)

// EnvDataFile names the file read by the file data backend.
const EnvDataFile = "DATA_FILE"

// maxXLSRows bounds how many rows are read from a legacy workbook.
const maxXLSRows = 5000

// FileSource reads the expense table from a .csv or .xls export of the sheet.
// The file is re-read on every call so edits show up on refresh.
type FileSource struct {
	path string
}

var (
	_ sheets.ValuesReader = (*FileSource)(nil)
	_ sheets.Describer    = (*FileSource)(nil)
)

// NewFileSource validates the extension; the file itself is opened lazily.
func NewFileSource(path string) (*FileSource, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, &core.ConfigError{Setting: "Data file", Env: EnvDataFile}
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".xls":
	default:
		return nil, fmt.Errorf("unsupported data file type %q", ext)
	}
	return &FileSource{path: path}, nil
}

func (f *FileSource) Describe() string { return "file:" + f.path }

// ReadValues implements sheets.ValuesReader.
func (f *FileSource) ReadValues(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, &core.TransportError{Message: fmt.Sprintf("read %s: %v", f.path, err), Err: err}
	}
	switch strings.ToLower(filepath.Ext(f.path)) {
	case ".xls":
		return ReadXLS(bytes.NewReader(data))
	default:
		return ReadCSV(bytes.NewReader(data))
	}
}

// ReadCSV reads a comma or semicolon separated export. Rows may have
// different lengths.
func ReadCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = detectDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var out [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadXLS reads the first worksheet of a legacy Excel workbook.
func ReadXLS(r io.ReadSeeker) ([][]string, error) {
	workbook, err := xls.OpenReader(r, "cp1252")
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	rows := workbook.ReadAllCells(maxXLSRows)
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, trimTrailingEmpty(row))
	}
	return out, nil
}

// detectDelimiter picks ';' when the header line has more semicolons than
// commas, as produced by spreadsheet exports in comma-decimal locales.
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

func trimTrailingEmpty(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}
