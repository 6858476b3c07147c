package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Header names seen in older spreadsheet exports
var headerAliases = map[string]string{
	"categories": "category",
	"keyword":    "keywords",
	"author":     "writer",
	"content":    "text",
}

// CSVTable keeps the lessons sheet in a CSV file with a header row
type CSVTable struct {
	path string
}

func NewCSV(path string) *CSVTable {
	return &CSVTable{path: path}
}

// Read parses the file. A missing file is an empty sheet. Columns are matched
// by header name, so reordered or missing columns are tolerated.
func (c *CSVTable) Read(ctx context.Context) ([]Row, error) {
	f, err := os.Open(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open sheet: %w", err)
	}
	defer f.Close()

	return ReadCSV(ctx, f)
}

// ReadCSV parses rows from any CSV stream with a header row
func ReadCSV(ctx context.Context, r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if alias, ok := headerAliases[name]; ok {
			name = alias
		}
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	var rows []Row
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		if blank(record) {
			continue
		}

		cells := make(map[string]string, len(Columns))
		for _, col := range Columns {
			if i, ok := index[col]; ok && i < len(record) {
				cells[col] = record[i]
			}
		}
		rows = append(rows, rowFromCells(cells))
	}

	return rows, nil
}

// Write replaces the file through a temp file and rename
func (c *CSVTable) Write(ctx context.Context, rows []Row) error {
	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".lessons-*.csv")
	if err != nil {
		return fmt.Errorf("create temp sheet: %w", err)
	}
	defer os.Remove(tmp.Name())

	// CreateTemp makes 0600 files; keep the sheet's existing mode
	mode := os.FileMode(0o644)
	if info, err := os.Stat(c.path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp sheet: %w", err)
	}

	if err := WriteCSV(ctx, tmp, rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp sheet: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replace sheet: %w", err)
	}
	return nil
}

// WriteCSV writes a header row and the rows to w
func WriteCSV(ctx context.Context, w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writer.Write(r.Values()); err != nil {
			return fmt.Errorf("write record %s: %w", r.ID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	return nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
