/*
Package session
File: session.go
Description:
    A Session owns one player's game state. It is the only writer of that
    state: the passive ticker, HTTP handlers, websocket intents and savers all
    go through it.

    Every transition runs read-modify-write under the session lock against the
    latest committed snapshot, so a click and a tick arriving together never
    lose each other's update.
*/

package session

import (
	"sync"
	"time"

	"github.com/everforgeworks/idle-tycoon/internal/game"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Session is the single writer of one user's GameState.
type Session struct {
	uid   string
	clock Clock

	mu      sync.Mutex
	state   game.GameState
	catalog game.Catalog
	dirty   bool // changed since the last pulse
	remote  bool // a remote document exists

	autosave *AutoSaver
}

func newSession(uid string, st game.GameState, c game.Catalog, clock Clock) *Session {
	return &Session{uid: uid, clock: clock, state: st, catalog: c, dirty: true}
}

// UID returns the owning user id.
func (s *Session) UID() string { return s.uid }

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() game.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// View returns the current state with its derived figures.
func (s *Session) View() game.View {
	return game.Describe(s.Snapshot(), game.IncomePerSecond)
}

// commit must be called with mu held.
func (s *Session) commit(next game.GameState) game.GameState {
	s.state = next
	s.dirty = true
	return next.Clone()
}

// Click applies one manual click.
func (s *Session) Click() game.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(game.Click(s.state))
}

// BuyBusiness buys one unit of business id.
func (s *Session) BuyBusiness(id string) (game.GameState, game.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, outcome := game.BuyBusiness(s.state, id)
	if outcome != game.Applied {
		return s.state.Clone(), outcome
	}
	return s.commit(next), outcome
}

// BuyUpgrade buys upgrade id.
func (s *Session) BuyUpgrade(id string) (game.GameState, game.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, outcome := game.BuyUpgrade(s.state, id)
	if outcome != game.Applied {
		return s.state.Clone(), outcome
	}
	return s.commit(next), outcome
}

// Tick accrues one tick of passive income and reports whether money moved.
func (s *Session) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	income := game.TickIncome(s.state)
	if income == 0 {
		return false
	}
	s.state = game.Tick(s.state)
	s.dirty = true
	return true
}

// Load replaces the state with saved, reconciled against the catalog.
func (s *Session) Load(saved game.SavedState) game.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(game.Reconcile(saved, s.catalog, s.clock.Now()))
}

// Reset discards all progress.
func (s *Session) Reset() game.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(game.Reset(s.catalog, s.clock.Now()))
}

// MarkSaved records the time of a completed remote save.
func (s *Session) MarkSaved(lastSaveTime int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	next.LastSaveTime = lastSaveTime
	s.commit(next)
}

func (s *Session) setRemote() {
	s.mu.Lock()
	s.remote = true
	s.mu.Unlock()
}

func (s *Session) hasRemote() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// SetCatalog re-reconciles the state against c. Progress on items that
// survive is kept; new items appear with their defaults.
func (s *Session) SetCatalog(c game.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.catalog = c
	s.commit(game.Reconcile(s.state.Saved(), c, s.clock.Now()))
}

// takeDirty reports whether the state changed since the previous call.
func (s *Session) takeDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirty := s.dirty
	s.dirty = false
	return dirty
}

// AutoSaveEnabled reports whether recurring saves are running.
func (s *Session) AutoSaveEnabled() bool {
	if s.autosave == nil {
		return false
	}
	return s.autosave.Enabled()
}
