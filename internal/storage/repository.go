package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gastos/internal/cache"
	applog "gastos/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists cache envelopes and the refresh history in a
// local SQLite database.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ cache.Backend = (*SQLiteRepository)(nil)

// RefreshEntry is one row of the refresh history.
type RefreshEntry struct {
	ID          int64
	Source      string
	Records     int
	Error       string
	RefreshedAt time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; serialise through one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := Migrate(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	slog.Debug("SQLite repository ready",
		applog.FieldComponent, applog.ComponentStorage,
		"path", dbPath,
		"schema_version", version)

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Get implements cache.Backend.
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	return value, nil
}

// Put implements cache.Backend. Last writer wins.
func (r *SQLiteRepository) Put(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// Delete implements cache.Backend.
func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return cache.ErrNotFound
	}
	return nil
}

// RecordRefresh appends a refresh outcome to the history.
func (r *SQLiteRepository) RecordRefresh(ctx context.Context, source string, records int, refreshErr error) error {
	msg := ""
	if refreshErr != nil {
		msg = refreshErr.Error()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_log (source, records, error, refreshed_at) VALUES (?, ?, ?, ?)`,
		source, records, msg, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record refresh: %w", err)
	}
	return nil
}

// RecentRefreshes returns up to limit history entries, newest first.
func (r *SQLiteRepository) RecentRefreshes(ctx context.Context, limit int) ([]RefreshEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source, records, error, refreshed_at
		FROM refresh_log
		ORDER BY refreshed_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list refreshes: %w", err)
	}
	defer rows.Close()

	var out []RefreshEntry
	for rows.Next() {
		var (
			e  RefreshEntry
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.Source, &e.Records, &e.Error, &ts); err != nil {
			return nil, fmt.Errorf("scan refresh: %w", err)
		}
		e.RefreshedAt = time.UnixMilli(ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refreshes: %w", err)
	}
	return out, nil
}
