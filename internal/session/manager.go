/*
Package session
File: manager.go
Description:
    The Manager keeps one Session per signed-in user and runs the economy's
    background loops:
    - the passive income ticker (every game.TickInterval),
    - the state pulse pushed to connected clients every PulseEvery ticks,
    - one AutoSaver per session.

    Persistence goes through the Store, normally the store.Gateway.
*/

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/everforgeworks/idle-tycoon/internal/game"
	"github.com/everforgeworks/idle-tycoon/internal/metrics"
	"github.com/everforgeworks/idle-tycoon/internal/store"
)

// PulseType is the message type of the periodic state push.
const PulseType = "state_pulse"

var (
	// ErrNoSession is returned for users without an open session.
	ErrNoSession = errors.New("no open session")
	// ErrNoSave is returned when a remote load finds nothing saved.
	ErrNoSave = errors.New("no saved game")
)

// Store is the persistence the manager needs.
type Store interface {
	LoadLocal(ctx context.Context, uid string, c game.Catalog) (game.GameState, bool)
	SaveLocal(ctx context.Context, uid string, st game.GameState) error
	ClearLocal(ctx context.Context, uid string) error
	SaveRemote(ctx context.Context, uid string, st game.GameState) (game.GameState, error)
	UpdateRemote(ctx context.Context, uid string, st game.GameState) (game.GameState, error)
	LoadRemote(ctx context.Context, uid string) (*game.SavedState, error)
}

// Publisher pushes a message to every connection of a user.
type Publisher interface {
	Publish(uid, msgType string, payload any)
}

// Options tunes the manager loops.
type Options struct {
	PulseEvery       int           // Ticks between state pulses
	AutoSaveInterval time.Duration // Period of each session's auto-save
	AutoSaveDefault  bool          // Start new sessions with auto-save on
}

// Manager is the registry of live sessions.
type Manager struct {
	store     Store
	publisher Publisher
	metrics   *metrics.Economy
	logger    *zap.Logger
	clock     Clock
	opts      Options

	// base outlives requests; autosavers hang off it.
	base     context.Context
	shutdown context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session
	catalog  game.Catalog
}

// NewManager builds a manager. publisher and m may be nil.
func NewManager(c game.Catalog, st Store, publisher Publisher, m *metrics.Economy, logger *zap.Logger, opts Options) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	if opts.PulseEvery <= 0 {
		opts.PulseEvery = game.TicksPerSecond
	}
	if opts.AutoSaveInterval <= 0 {
		opts.AutoSaveInterval = 30 * time.Second
	}
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:     st,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		clock:     RealClock,
		opts:      opts,
		base:      base,
		shutdown:  cancel,
		sessions:  make(map[string]*Session),
		catalog:   c,
	}
}

// SetPublisher attaches the hub once it exists.
func (m *Manager) SetPublisher(p Publisher) {
	m.mu.Lock()
	m.publisher = p
	m.mu.Unlock()
}

// Catalog returns the catalog new sessions are built from.
func (m *Manager) Catalog() game.Catalog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.catalog
}

// Get returns the open session of uid, or nil.
func (m *Manager) Get(uid string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[uid]
}

// Open returns the session of uid, building it on first use: the local
// payload (or a default state), then the remote document when one exists.
// A failed remote load keeps the local state.
func (m *Manager) Open(ctx context.Context, uid string) (*Session, error) {
	if uid == "" {
		return nil, errors.New("open session: empty user id")
	}
	if s := m.Get(uid); s != nil {
		return s, nil
	}

	c := m.Catalog()

	// 1. Local payload
	st, found := m.store.LoadLocal(ctx, uid, c)
	s := newSession(uid, st, c, m.clock)

	// 2. Remote document
	saved, err := m.store.LoadRemote(ctx, uid)
	switch {
	case err != nil:
		m.logger.Warn("remote load failed, keeping local state", zap.String("user_id", uid), zap.Error(err))
	case saved != nil:
		s.setRemote()
		merged := s.Load(*saved)
		if err := m.store.SaveLocal(ctx, uid, merged); err != nil {
			m.logger.Warn("local write after remote load failed", zap.String("user_id", uid), zap.Error(err))
		}
	}

	// 3. Register, unless a concurrent Open won
	m.mu.Lock()
	if existing, ok := m.sessions[uid]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	s.autosave = NewAutoSaver(m.opts.AutoSaveInterval, func(ctx context.Context) error {
		_, err := m.save(ctx, s, "auto")
		return err
	}, m.logger.With(zap.String("user_id", uid)))
	m.sessions[uid] = s
	active := len(m.sessions)
	m.mu.Unlock()

	if m.opts.AutoSaveDefault {
		s.autosave.SetEnabled(m.base, true)
	}
	m.metrics.ActiveSessions.Set(float64(active))
	m.logger.Info("session opened", zap.String("user_id", uid), zap.Bool("local_found", found), zap.Bool("remote_found", saved != nil))
	return s, nil
}

// Close tears down the session of uid: auto-save stops and the final state
// is written locally. Closing an unknown user is a no-op.
func (m *Manager) Close(ctx context.Context, uid string) {
	m.mu.Lock()
	s, ok := m.sessions[uid]
	delete(m.sessions, uid)
	active := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return
	}

	m.teardown(ctx, s)
	m.metrics.ActiveSessions.Set(float64(active))
	m.logger.Info("session closed", zap.String("user_id", uid))
}

func (m *Manager) teardown(ctx context.Context, s *Session) {
	s.autosave.Stop()
	if err := m.store.SaveLocal(ctx, s.uid, s.Snapshot()); err != nil {
		m.logger.Warn("local write on close failed", zap.String("user_id", s.uid), zap.Error(err))
	}
}

// Shutdown closes every session concurrently and stops all auto-savers.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdown()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		g.Go(func() error {
			m.teardown(ctx, s)
			return nil
		})
	}
	err := g.Wait()
	m.metrics.ActiveSessions.Set(0)
	return err
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Run drives the passive income ticker until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(game.TickInterval)
	defer ticker.Stop()

	m.logger.Info("economy ticker started", zap.Duration("interval", game.TickInterval), zap.Int("pulse_every", m.opts.PulseEvery))
	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ticks++
			m.TickAll(ticks%m.opts.PulseEvery == 0)
		}
	}
}

// TickAll applies one tick to every session and, when pulse is set, pushes
// the view of every session that changed since the last pulse.
func (m *Manager) TickAll(pulse bool) {
	sessions := m.snapshot()
	for _, s := range sessions {
		if s.Tick() {
			m.metrics.Ticks.Inc()
		}
	}
	if !pulse {
		return
	}

	m.mu.RLock()
	publisher := m.publisher
	m.mu.RUnlock()
	if publisher == nil {
		return
	}
	for _, s := range sessions {
		if s.takeDirty() {
			publisher.Publish(s.uid, PulseType, s.View())
		}
	}
}

// Click applies a click for uid.
func (m *Manager) Click(uid string) (game.GameState, error) {
	s := m.Get(uid)
	if s == nil {
		return game.GameState{}, ErrNoSession
	}
	st := s.Click()
	m.metrics.Clicks.Inc()
	return st, nil
}

// BuyBusiness buys one unit of business id for uid.
func (m *Manager) BuyBusiness(uid, id string) (game.GameState, game.Outcome, error) {
	s := m.Get(uid)
	if s == nil {
		return game.GameState{}, "", ErrNoSession
	}
	st, outcome := s.BuyBusiness(id)
	m.recordPurchase(uid, "business", id, outcome)
	return st, outcome, nil
}

// BuyUpgrade buys upgrade id for uid.
func (m *Manager) BuyUpgrade(uid, id string) (game.GameState, game.Outcome, error) {
	s := m.Get(uid)
	if s == nil {
		return game.GameState{}, "", ErrNoSession
	}
	st, outcome := s.BuyUpgrade(id)
	m.recordPurchase(uid, "upgrade", id, outcome)
	return st, outcome, nil
}

func (m *Manager) recordPurchase(uid, kind, id string, outcome game.Outcome) {
	m.metrics.Purchases.WithLabelValues(kind, string(outcome)).Inc()
	m.logger.Debug("purchase", zap.String("user_id", uid), zap.String("kind", kind), zap.String("id", id), zap.String("outcome", string(outcome)))
}

// Reset discards the progress of uid.
func (m *Manager) Reset(ctx context.Context, uid string) (game.GameState, error) {
	s := m.Get(uid)
	if s == nil {
		return game.GameState{}, ErrNoSession
	}
	st := s.Reset()
	if err := m.store.ClearLocal(ctx, uid); err != nil {
		m.logger.Warn("local clear on reset failed", zap.String("user_id", uid), zap.Error(err))
	}
	m.logger.Info("game reset", zap.String("user_id", uid))
	return st, nil
}

// Save writes the current state of uid locally and remotely. The snapshot
// is taken when the save starts; there is no guard against a concurrent
// auto-save, so the last write to finish wins.
func (m *Manager) Save(ctx context.Context, uid string) (game.GameState, error) {
	s := m.Get(uid)
	if s == nil {
		return game.GameState{}, ErrNoSession
	}
	return m.save(ctx, s, "manual")
}

func (m *Manager) save(ctx context.Context, s *Session, trigger string) (game.GameState, error) {
	snap := s.Snapshot()
	if err := m.store.SaveLocal(ctx, s.uid, snap); err != nil {
		m.logger.Warn("local save failed", zap.String("user_id", s.uid), zap.Error(err))
	}

	saved, err := m.writeRemote(ctx, s, trigger, snap)
	m.metrics.Saves.WithLabelValues(trigger, metrics.Result(err)).Inc()
	if err != nil {
		return snap, fmt.Errorf("%s save: %w", trigger, err)
	}

	s.setRemote()
	s.MarkSaved(saved.LastSaveTime)
	m.logger.Debug("game saved", zap.String("user_id", s.uid), zap.String("trigger", trigger))
	return s.Snapshot(), nil
}

// writeRemote upserts snap, except that auto-saves to a known document only
// update it. An update that finds the document gone falls back to the upsert.
func (m *Manager) writeRemote(ctx context.Context, s *Session, trigger string, snap game.GameState) (game.GameState, error) {
	if trigger != "auto" || !s.hasRemote() {
		return m.store.SaveRemote(ctx, s.uid, snap)
	}
	saved, err := m.store.UpdateRemote(ctx, s.uid, snap)
	if errors.Is(err, store.ErrNotFound) {
		return m.store.SaveRemote(ctx, s.uid, snap)
	}
	return saved, err
}

// Load replaces the state of uid with saved. A nil saved reads the remote
// document instead; ErrNoSave means there was none.
func (m *Manager) Load(ctx context.Context, uid string, saved *game.SavedState) (game.GameState, error) {
	s := m.Get(uid)
	if s == nil {
		return game.GameState{}, ErrNoSession
	}

	if saved == nil {
		remote, err := m.store.LoadRemote(ctx, uid)
		if err != nil {
			return game.GameState{}, err
		}
		if remote == nil {
			return game.GameState{}, ErrNoSave
		}
		s.setRemote()
		saved = remote
	}

	st := s.Load(*saved)
	if err := m.store.SaveLocal(ctx, uid, st); err != nil {
		m.logger.Warn("local write after load failed", zap.String("user_id", uid), zap.Error(err))
	}
	return st, nil
}

// SetAutoSave toggles the recurring save of uid and returns the state of
// the session it was applied to.
func (m *Manager) SetAutoSave(uid string, enabled bool) (game.GameState, error) {
	s := m.Get(uid)
	if s == nil {
		return game.GameState{}, ErrNoSession
	}
	s.autosave.SetEnabled(m.base, enabled)
	m.logger.Info("auto-save toggled", zap.String("user_id", uid), zap.Bool("enabled", enabled))
	return s.Snapshot(), nil
}

// ReloadCatalog swaps the catalog and re-reconciles every live session.
func (m *Manager) ReloadCatalog(c game.Catalog) {
	m.mu.Lock()
	m.catalog = c
	m.mu.Unlock()

	sessions := m.snapshot()
	for _, s := range sessions {
		s.SetCatalog(c)
	}
	m.logger.Info("catalog reloaded",
		zap.Int("businesses", len(c.Businesses)),
		zap.Int("upgrades", len(c.Upgrades)),
		zap.Int("sessions", len(sessions)))
}
