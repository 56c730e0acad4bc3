package store

import (
	"context"
	"database/sql"
)

// RowScanner is the part of *sql.Rows the Postgres stores read.
type RowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Row is the part of *sql.Row the Postgres stores read.
type Row interface {
	Scan(dest ...any) error
}

// DB is the seam between the Postgres stores and database/sql.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (RowScanner, error)
	QueryRowContext(ctx context.Context, query string, args ...any) Row
}

type sqlDB struct {
	db *sql.DB
}

// NewSQLDB adapts a *sql.DB to DB.
func NewSQLDB(db *sql.DB) DB {
	return &sqlDB{db: db}
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (RowScanner, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...any) Row {
	return s.db.QueryRowContext(ctx, query, args...)
}
