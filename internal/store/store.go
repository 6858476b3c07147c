// Package store persists the lessons table. Every backend reads and writes
// the whole table at once, the way the spreadsheet it replaces did.
package store

import (
	"context"
	"fmt"
	"strings"
)

// Columns is the fixed column set, in sheet order
var Columns = []string{"id", "date", "writer", "text", "keywords", "category"}

// Row holds the raw cells of one lesson. Missing cells are empty strings.
type Row struct {
	ID       string
	Date     string
	Writer   string
	Text     string
	Keywords string
	Category string
}

// Values returns the cells in Columns order
func (r Row) Values() []string {
	return []string{r.ID, r.Date, r.Writer, r.Text, r.Keywords, r.Category}
}

// rowFromCells builds a Row from cells keyed by column name
func rowFromCells(cells map[string]string) Row {
	return Row{
		ID:       cells["id"],
		Date:     cells["date"],
		Writer:   cells["writer"],
		Text:     cells["text"],
		Keywords: cells["keywords"],
		Category: cells["category"],
	}
}

// Table is the persistence contract: whole-table read and write
type Table interface {
	Read(ctx context.Context) ([]Row, error)
	Write(ctx context.Context, rows []Row) error
}

// Driver names accepted by Open
const (
	DriverSQLite3 = "sqlite3"
	DriverSQLite  = "sqlite"
	DriverCSV     = "csv"
)

// Open returns the table for a driver and path
func Open(driver, path string) (Table, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite3, "", DriverSQLite:
		if driver == "" {
			driver = DriverSQLite3
		}
		t, err := NewSQLite(strings.ToLower(driver), path)
		if err != nil {
			return nil, err
		}
		return t, nil
	case DriverCSV:
		return NewCSV(path), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// Close releases the table's resources if it holds any
func Close(t Table) error {
	if c, ok := t.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
