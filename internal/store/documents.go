/*
Package store
File: documents.go
Description:
    DocumentStore is the remote per-user 'users' document store, kept in SQLite
    through sqlx. Game writes upsert and leave the profile columns alone.
*/

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by update-only writes when the document is absent.
var ErrNotFound = errors.New("document not found")

// Document is one user's record in the remote store.
type Document struct {
	UserID      string         `db:"user_id"`
	GameState   sql.NullString `db:"game_state"`
	Email       sql.NullString `db:"email"`
	DisplayName sql.NullString `db:"display_name"`
	UpdatedAt   int64          `db:"updated_at"` // Unix milliseconds, assigned by the store
}

// DocumentStore is the remote per-user document store, backed by SQLite.
type DocumentStore struct {
	conn *sqlx.DB
	now  func() time.Time
}

// OpenDocuments opens or creates a SQLite database at the given path.
func OpenDocuments(path string) (*DocumentStore, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &DocumentStore{conn: conn, now: time.Now}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *DocumentStore) Close() error {
	return s.conn.Close()
}

func (s *DocumentStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		game_state TEXT,
		email TEXT,
		display_name TEXT,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// SaveGame upserts the game state of uid. Other columns of an existing
// document are left as they are.
func (s *DocumentStore) SaveGame(ctx context.Context, uid string, state []byte) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO users (user_id, game_state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			game_state = excluded.game_state,
			updated_at = excluded.updated_at`,
		uid, string(state), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save game %s: %w", uid, err)
	}
	return nil
}

// UpdateGame replaces the game state of an existing document.
// It returns ErrNotFound when uid has no document yet.
func (s *DocumentStore) UpdateGame(ctx context.Context, uid string, state []byte) error {
	res, err := s.conn.ExecContext(ctx,
		"UPDATE users SET game_state = ?, updated_at = ? WHERE user_id = ?",
		string(state), s.now().UnixMilli(), uid,
	)
	if err != nil {
		return fmt.Errorf("update game %s: %w", uid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update game %s: %w", uid, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadGame returns the saved game state of uid, or nil when the document
// or its game state does not exist.
func (s *DocumentStore) LoadGame(ctx context.Context, uid string) ([]byte, error) {
	doc, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	if doc == nil || !doc.GameState.Valid {
		return nil, nil
	}
	return []byte(doc.GameState.String), nil
}

// SaveProfile upserts the profile columns of uid without touching its game state.
func (s *DocumentStore) SaveProfile(ctx context.Context, uid, email, displayName string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO users (user_id, email, display_name, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name,
			updated_at = excluded.updated_at`,
		uid, email, displayName, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", uid, err)
	}
	return nil
}

// Get returns the whole document of uid, or nil when there is none.
func (s *DocumentStore) Get(ctx context.Context, uid string) (*Document, error) {
	var doc Document
	err := s.conn.GetContext(ctx, &doc,
		"SELECT user_id, game_state, email, display_name, updated_at FROM users WHERE user_id = ?",
		uid,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get document %s: %w", uid, err)
	}
	return &doc, nil
}
