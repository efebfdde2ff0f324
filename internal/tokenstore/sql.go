package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/florianilch/reyrey-auth/internal/tokenstore/migrations"
)

const (
	selectLatestTokenQuery = `SELECT token_value FROM token_storage WHERE token_name = ? ORDER BY updated_at DESC, id DESC LIMIT 1`
	updateTokenQuery       = `UPDATE token_storage SET token_value = ?, updated_at = ? WHERE token_name = ? AND domain = ?`
	insertTokenQuery       = `INSERT INTO token_storage (token_name, token_value, domain, updated_at) VALUES (?, ?, ?, ?)`
)

// SQLStore keeps tokens in the token_storage table. The schema has no unique
// constraint on (name, domain); reads pick the row with the most recent updated_at.
type SQLStore struct {
	db *sql.DB
}

// Compile-time check to ensure SQLStore implements TokenStore
var _ TokenStore = (*SQLStore)(nil)

// OpenSQLStore opens (or creates) the SQLite database at path and applies pending migrations.
func OpenSQLStore(path string) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	s := NewSQLStore(db)
	if err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating database %s: %w", path, err)
	}

	slog.Debug("database initialized", "path", path)
	return s, nil
}

// NewSQLStore wraps an existing database handle. The schema must already exist.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// ApplyMigrations applies any pending migrations from the embedded schema files.
func (s *SQLStore) ApplyMigrations() error {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", source, "", driver)
	if err != nil {
		return err
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error { return s.db.Close() }

// Name implements TokenStore.
func (s *SQLStore) Name() string { return "database" }

// Read returns the most recently updated token stored under name.
func (s *SQLStore) Read(ctx context.Context, name string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, selectLatestTokenQuery, name).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading token from database: %w", err)
	}

	slog.InfoContext(ctx, "found token in database", "token_name", name)
	return token, nil
}

// Write updates the row for (name, domain) or inserts one if none exists.
func (s *SQLStore) Write(ctx context.Context, token Token) error {
	updatedAt := token.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	updatedAt = updatedAt.UTC()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, updateTokenQuery, token.Value, updatedAt, token.Name, token.Domain)
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected > 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, insertTokenQuery, token.Name, token.Value, token.Domain, updatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("saving token to database: %w", err)
	}

	slog.InfoContext(ctx, "saved token to database", "token_name", token.Name)
	return nil
}

// withTx executes fn within a transaction, committing on success and rolling back otherwise.
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	// Safe to call even after commit
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}
