package sharing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLiteStore is a durable Store backed by a local sqlite file, for
// deployments where share links must survive a process restart.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open share db: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	// WAL keeps concurrent lookups from blocking on inserts.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS shares (
		token TEXT PRIMARY KEY,
		target_path TEXT NOT NULL,
		original_name TEXT NOT NULL,
		password_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		expires_at DATETIME
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create shares table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Insert stores e under a freshly generated token. A primary-key conflict
// (token collision) triggers regeneration.
func (s *SQLiteStore) Insert(ctx context.Context, e *Entry) (string, error) {
	var expiresAt sql.NullTime
	if e.Expires() {
		expiresAt = sql.NullTime{Time: e.ExpiresAt, Valid: true}
	}

	for {
		token, err := generateToken()
		if err != nil {
			return "", err
		}

		_, err = s.db.ExecContext(ctx,
			`INSERT INTO shares (token, target_path, original_name, password_hash, created_at, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			token, e.TargetPath, e.OriginalName, e.PasswordHash, e.CreatedAt, expiresAt)
		if err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
				continue
			}
			return "", fmt.Errorf("insert share: %w", err)
		}
		return token, nil
	}
}

// Lookup returns the entry for token.
func (s *SQLiteStore) Lookup(ctx context.Context, token string) (*Entry, error) {
	var e Entry
	var expiresAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT token, target_path, original_name, password_hash, created_at, expires_at
		 FROM shares WHERE token = ?`, token).
		Scan(&e.Token, &e.TargetPath, &e.OriginalName, &e.PasswordHash, &e.CreatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query share: %w", err)
	}

	if expiresAt.Valid {
		e.ExpiresAt = expiresAt.Time
	}
	return &e, nil
}

// Remove revokes a token.
func (s *SQLiteStore) Remove(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM shares WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("remove share: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove share: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all stored entries, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token, target_path, original_name, password_hash, created_at, expires_at
		 FROM shares ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var expiresAt sql.NullTime
		if err := rows.Scan(&e.Token, &e.TargetPath, &e.OriginalName, &e.PasswordHash,
			&e.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		if expiresAt.Valid {
			e.ExpiresAt = expiresAt.Time
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// SweepExpired removes all entries expired as of now.
func (s *SQLiteStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM shares WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep shares: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep shares: %w", err)
	}
	return int(n), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
