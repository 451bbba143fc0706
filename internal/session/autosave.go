/*
Package session
File: autosave.go
Description:
    The AutoSaver: a per-session recurring save that can be toggled on and off.
*/

package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AutoSaver runs a save on a fixed interval while enabled. Failures are
// logged and dropped; the next interval simply tries again.
type AutoSaver struct {
	interval time.Duration
	save     func(ctx context.Context) error
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAutoSaver returns a stopped AutoSaver.
func NewAutoSaver(interval time.Duration, save func(ctx context.Context) error, logger *zap.Logger) *AutoSaver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoSaver{interval: interval, save: save, logger: logger}
}

// SetEnabled starts or stops the recurring save. The loop lives until it is
// disabled, Stop is called, or parent is cancelled.
func (a *AutoSaver) SetEnabled(parent context.Context, enabled bool) {
	if !enabled {
		a.Stop()
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	a.cancel = cancel
	a.done = done
	go a.loop(ctx, done)
}

// Enabled reports whether the loop is running.
func (a *AutoSaver) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// Stop cancels the loop and waits for an in-progress save to return.
func (a *AutoSaver) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (a *AutoSaver) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.save(ctx); err != nil {
				a.logger.Warn("auto-save failed", zap.Error(err))
			}
		}
	}
}
