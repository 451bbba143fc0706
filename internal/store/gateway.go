/*
Package store
File: gateway.go
Description:
    The persistence gateway used by game sessions.
    It serializes snapshots and routes them to the local and remote stores.
    Local failures fall back to a fresh state; remote failures are logged and
    returned to the caller.
*/

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/everforgeworks/idle-tycoon/internal/game"
)

// Gateway is the persistence gateway used by game sessions. It serializes
// snapshots and routes them to the local and remote stores.
type Gateway struct {
	local  *LocalStore
	remote *DocumentStore
	logger *zap.Logger
	now    func() time.Time
}

// NewGateway wires the two stores together.
func NewGateway(local *LocalStore, remote *DocumentStore, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{local: local, remote: remote, logger: logger, now: time.Now}
}

// LoadLocal returns the locally saved state of uid reconciled against c.
// Absent or malformed payloads yield a fresh default state; the second
// result reports whether a saved state was found.
func (g *Gateway) LoadLocal(ctx context.Context, uid string, c game.Catalog) (game.GameState, bool) {
	now := g.now()

	data, err := g.local.Load(ctx, uid)
	if err != nil {
		g.logger.Warn("local load failed, starting fresh", zap.String("user_id", uid), zap.Error(err))
		return game.NewState(c, now), false
	}
	if data == nil {
		return game.NewState(c, now), false
	}

	st, err := game.DecodeSnapshot(data, c, now)
	if err != nil {
		g.logger.Debug("local payload malformed, starting fresh", zap.String("user_id", uid), zap.Error(err))
		return game.NewState(c, now), false
	}
	return st, true
}

// SaveLocal writes st as the local payload of uid.
func (g *Gateway) SaveLocal(ctx context.Context, uid string, st game.GameState) error {
	data, err := game.EncodeSnapshot(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return g.local.Save(ctx, uid, data)
}

// ClearLocal removes the local payload of uid.
func (g *Gateway) ClearLocal(ctx context.Context, uid string) error {
	return g.local.Delete(ctx, uid)
}

// SaveRemote upserts st into the remote document of uid with LastSaveTime
// set to now. It returns the stamped state that was written.
func (g *Gateway) SaveRemote(ctx context.Context, uid string, st game.GameState) (game.GameState, error) {
	st = st.Clone()
	st.LastSaveTime = game.Millis(g.now())

	data, err := game.EncodeSnapshot(st)
	if err != nil {
		return st, fmt.Errorf("encode state: %w", err)
	}
	if err := g.remote.SaveGame(ctx, uid, data); err != nil {
		g.logger.Error("error saving game to remote store", zap.String("user_id", uid), zap.Error(err))
		return st, fmt.Errorf("remote save: %w", err)
	}
	return st, nil
}

// UpdateRemote is SaveRemote for documents that must already exist.
// It returns ErrNotFound (wrapped) when uid has never saved.
func (g *Gateway) UpdateRemote(ctx context.Context, uid string, st game.GameState) (game.GameState, error) {
	st = st.Clone()
	st.LastSaveTime = game.Millis(g.now())

	data, err := game.EncodeSnapshot(st)
	if err != nil {
		return st, fmt.Errorf("encode state: %w", err)
	}
	if err := g.remote.UpdateGame(ctx, uid, data); err != nil {
		if !errors.Is(err, ErrNotFound) {
			g.logger.Error("error updating game in remote store", zap.String("user_id", uid), zap.Error(err))
		}
		return st, fmt.Errorf("remote update: %w", err)
	}
	return st, nil
}

// LoadRemote returns the remotely saved state of uid, or nil when there is
// no prior save. The caller reconciles it.
func (g *Gateway) LoadRemote(ctx context.Context, uid string) (*game.SavedState, error) {
	data, err := g.remote.LoadGame(ctx, uid)
	if err != nil {
		g.logger.Error("error loading game from remote store", zap.String("user_id", uid), zap.Error(err))
		return nil, fmt.Errorf("remote load: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var saved game.SavedState
	if err := json.Unmarshal(data, &saved); err != nil {
		g.logger.Error("remote game payload malformed", zap.String("user_id", uid), zap.Error(err))
		return nil, fmt.Errorf("remote load: %w", err)
	}
	return &saved, nil
}

// SaveProfile records the signed-in user's profile on their document.
func (g *Gateway) SaveProfile(ctx context.Context, uid, email, displayName string) error {
	if err := g.remote.SaveProfile(ctx, uid, email, displayName); err != nil {
		g.logger.Error("error saving profile", zap.String("user_id", uid), zap.Error(err))
		return err
	}
	return nil
}
