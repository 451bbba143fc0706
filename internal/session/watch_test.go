package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogV1 = `
upgrades: []
businesses:
  - id: stand
    name: Stand
    base_cost: 10
    base_income: 1
    income_per_second: 10
    level: 1
`

const catalogV2 = catalogV1 + `  - id: studio
    name: Studio
    base_cost: 1000
    base_income: 100
    income_per_second: 50
    level: 1
`

func TestReloadCatalogFileRejectsInvalid(t *testing.T) {
	m, _ := newTestManager(t, newMemStore(), Options{})
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("businesses: [{id: ''}]"), 0o644))

	assert.Error(t, m.ReloadCatalogFile(path))
	assert.Len(t, m.Catalog().Businesses, 2, "the old catalog stays")
}

func TestWatchCatalogReloadsOnChange(t *testing.T) {
	m, _ := newTestManager(t, newMemStore(), Options{})
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogV1), 0o644))

	s, err := m.Open(context.Background(), "alice")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.WatchCatalog(ctx, path, 10*time.Millisecond) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// The watch may not be registered yet; keep rewriting until it lands.
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(catalogV2), 0o644)
		return len(m.Catalog().Businesses) == 2 && m.Catalog().Businesses[1].ID == "studio"
	}, 2*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		return len(s.Snapshot().Businesses) == 2 && s.Snapshot().Businesses[1].ID == "studio"
	}, time.Second, 5*time.Millisecond)
}
