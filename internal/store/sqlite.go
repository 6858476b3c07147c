package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// SQLiteTable keeps the lessons sheet in a SQLite database
type SQLiteTable struct {
	db *sql.DB
}

// NewSQLite opens the database with the given driver ("sqlite3" for
// mattn/go-sqlite3, "sqlite" for the pure-Go modernc driver)
func NewSQLite(driver, dbPath string) (*SQLiteTable, error) {
	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteTable{db: db}, nil
}

// migrate adds columns that tables created by older versions lack
func migrate(db *sql.DB) error {
	for _, col := range Columns {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM pragma_table_info('lessons') WHERE name = ?",
			col,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("inspect column %s: %w", col, err)
		}
		if count > 0 {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf("ALTER TABLE lessons ADD COLUMN %s TEXT", col)); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteTable) Close() error {
	return s.db.Close()
}

// Read returns every row in insertion order; NULL cells read as ""
func (s *SQLiteTable) Read(ctx context.Context) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, date, writer, text, keywords, category FROM lessons ORDER BY rowid",
	)
	if err != nil {
		return nil, fmt.Errorf("read lessons: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var id, date, writer, text, keywords, category sql.NullString
		if err := rows.Scan(&id, &date, &writer, &text, &keywords, &category); err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		out = append(out, Row{
			ID:       id.String,
			Date:     date.String,
			Writer:   writer.String,
			Text:     text.String,
			Keywords: keywords.String,
			Category: category.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read lessons: %w", err)
	}

	return out, nil
}

// Write replaces the whole table in one transaction
func (s *SQLiteTable) Write(ctx context.Context, rows []Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM lessons"); err != nil {
		return fmt.Errorf("clear lessons: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO lessons (id, date, writer, text, keywords, category) VALUES (?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Date, r.Writer, r.Text, r.Keywords, r.Category); err != nil {
			return fmt.Errorf("insert lesson %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
