/*
Package store
File: local.go
Description:
    LocalStore keeps one serialized game state per user in LevelDB, under the
    'gameState/<uid>' key.
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
)

// StateKey is the fixed key the serialized GameState lives under.
const StateKey = "gameState"

// LocalStore keeps one serialized GameState per user in LevelDB.
type LocalStore struct {
	db *leveldb.DB
}

// OpenLocal opens (or creates) a LevelDB database at the provided path.
func OpenLocal(path string) (*LocalStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("local store path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve local store path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return &LocalStore{db: db}, nil
}

// Close releases the underlying LevelDB resources.
func (s *LocalStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns the raw payload saved for uid, or nil when there is none.
func (s *LocalStore) Load(ctx context.Context, uid string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.db.Get(localKey(uid), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load local state: %w", err)
	}
	return data, nil
}

// Save replaces the payload saved for uid.
func (s *LocalStore) Save(ctx context.Context, uid string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Put(localKey(uid), data, nil); err != nil {
		return fmt.Errorf("save local state: %w", err)
	}
	return nil
}

// Delete removes the payload saved for uid.
func (s *LocalStore) Delete(ctx context.Context, uid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Delete(localKey(uid), nil); err != nil {
		return fmt.Errorf("delete local state: %w", err)
	}
	return nil
}

func localKey(uid string) []byte {
	return []byte(StateKey + "/" + uid)
}
