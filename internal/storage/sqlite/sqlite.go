package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"watchtower/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

var migrateMu sync.Mutex

func init() {
	storage.RegisterFactory("sqlite", func(opts storage.Options) (storage.SeenStore, error) {
		return New(opts.Path)
	})
}

type SQLiteStorage struct {
	conn *sql.DB
}

func New(dbPath string) (*SQLiteStorage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	slog.Info("Initializing SQLite storage", "path", dbPath)

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	slog.Info("Storage initialized successfully")

	return &SQLiteStorage{conn: conn}, nil
}

func runMigrations(conn *sql.DB) error {
	slog.Debug("Running database migrations")

	// goose keeps its dialect and filesystem in package globals
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(conn, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("Migrations completed successfully")
	return nil
}

func (s *SQLiteStorage) Load(ctx context.Context) (map[string]float64, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT item_id, first_seen_at FROM seen_items`)
	if err != nil {
		return nil, fmt.Errorf("failed to query seen items: %w", err)
	}
	defer rows.Close()

	entries := map[string]float64{}
	for rows.Next() {
		var (
			id string
			ts float64
		)
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan seen item: %w", err)
		}
		entries[id] = ts
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate seen items: %w", err)
	}

	return entries, nil
}

// Save replaces the table contents with entries in one transaction.
func (s *SQLiteStorage) Save(ctx context.Context, entries map[string]float64) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM seen_items`); err != nil {
		return fmt.Errorf("failed to clear seen items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO seen_items (item_id, first_seen_at) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for id, ts := range entries {
		if _, err := stmt.ExecContext(ctx, id, ts); err != nil {
			return fmt.Errorf("failed to insert seen item %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seen items: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Delete(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM seen_items`); err != nil {
		return fmt.Errorf("failed to delete seen items: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
