/*
Package game
File: state.go
Description:
    Builds game states and reconciles persisted ones.
    It handles loading the catalog from YAML (embedded default or a file),
    constructing the fresh default state, and merging a saved snapshot against
    the current catalog so that items added since the save appear with their
    defaults while the player's progress is kept.
*/

package game

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads a catalog file. An empty path selects the embedded default.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}

	f, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(f)
}

// ParseCatalog unmarshals and validates catalog YAML.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate checks id uniqueness and upgrade references.
func (c Catalog) Validate() error {
	businesses := make(map[string]bool, len(c.Businesses))
	for _, b := range c.Businesses {
		if b.ID == "" {
			return fmt.Errorf("catalog: business %q has no id", b.Name)
		}
		if businesses[b.ID] {
			return fmt.Errorf("catalog: duplicate business id %q", b.ID)
		}
		if b.BaseCost < 0 || b.BaseIncome < 0 || b.IncomePerSecond < 0 {
			return fmt.Errorf("catalog: business %q has a negative figure", b.ID)
		}
		businesses[b.ID] = true
	}

	upgrades := make(map[string]bool, len(c.Upgrades))
	for _, u := range c.Upgrades {
		if u.ID == "" {
			return fmt.Errorf("catalog: upgrade %q has no id", u.Name)
		}
		if upgrades[u.ID] {
			return fmt.Errorf("catalog: duplicate upgrade id %q", u.ID)
		}
		if !u.Kind.Valid() {
			return fmt.Errorf("catalog: upgrade %q has unknown type %q", u.ID, u.Kind)
		}
		if u.Cost < 0 || u.Multiplier < 0 {
			return fmt.Errorf("catalog: upgrade %q has a negative figure", u.ID)
		}
		if u.Kind == KindIncomeMultiplier && !businesses[u.BusinessID] {
			return fmt.Errorf("catalog: upgrade %q targets unknown business %q", u.ID, u.BusinessID)
		}
		upgrades[u.ID] = true
	}
	return nil
}

// DanglingManagers lists manager upgrades whose business is not in the catalog.
// Buying one still commits, but hires nobody.
func (c Catalog) DanglingManagers() []string {
	var out []string
	for _, u := range c.Upgrades {
		if u.Kind != KindManager || u.BusinessID == "" {
			continue
		}
		found := false
		for _, b := range c.Businesses {
			if b.ID == u.BusinessID {
				found = true
				break
			}
		}
		if !found {
			out = append(out, u.ID)
		}
	}
	return out
}

// NewState returns a zeroed state holding a copy of the catalog.
func NewState(c Catalog, now time.Time) GameState {
	st := GameState{
		Businesses:   make([]Business, len(c.Businesses)),
		Upgrades:     make([]Upgrade, len(c.Upgrades)),
		LastSaveTime: Millis(now),
	}
	copy(st.Businesses, c.Businesses)
	copy(st.Upgrades, c.Upgrades)

	// Catalog entries never carry progress.
	for i := range st.Businesses {
		st.Businesses[i].Owned = 0
		st.Businesses[i].ManagerHired = false
	}
	for i := range st.Upgrades {
		st.Upgrades[i].Purchased = false
	}
	return st
}

// Reconcile merges a saved snapshot against the catalog.
// The catalog is the basis: new items appear with defaults, saved items no
// longer in the catalog are dropped, and for known ids only the mutable
// fields are taken from the save.
func Reconcile(saved SavedState, c Catalog, now time.Time) GameState {
	st := NewState(c, now)

	// 1. Scalars (absent or zero falls back to defaults)
	st.Money = saved.Money
	st.TotalMoneyEarned = saved.TotalMoneyEarned
	st.Clicks = saved.Clicks
	if saved.LastSaveTime != 0 {
		st.LastSaveTime = saved.LastSaveTime
	}

	// 2. Businesses
	savedBusinesses := make(map[string]SavedBusiness, len(saved.Businesses))
	for _, b := range saved.Businesses {
		savedBusinesses[b.ID] = b
	}
	for i, b := range st.Businesses {
		sb, ok := savedBusinesses[b.ID]
		if !ok {
			continue
		}
		st.Businesses[i].Owned = sb.Owned
		st.Businesses[i].ManagerHired = sb.ManagerHired
		if sb.Level != 0 {
			st.Businesses[i].Level = sb.Level
		}
	}

	// 3. Upgrades
	savedUpgrades := make(map[string]SavedUpgrade, len(saved.Upgrades))
	for _, u := range saved.Upgrades {
		savedUpgrades[u.ID] = u
	}
	for i, u := range st.Upgrades {
		su, ok := savedUpgrades[u.ID]
		if !ok {
			continue
		}
		st.Upgrades[i].Purchased = su.Purchased
		// A negative saved cost keeps the catalog price.
		if su.Cost != nil && *su.Cost >= 0 {
			st.Upgrades[i].Cost = *su.Cost
		}
	}

	clampState(&st)
	return st
}

// Saved projects st onto its persisted shape.
func (st GameState) Saved() SavedState {
	out := SavedState{
		Money:            st.Money,
		TotalMoneyEarned: st.TotalMoneyEarned,
		Businesses:       make([]SavedBusiness, 0, len(st.Businesses)),
		Upgrades:         make([]SavedUpgrade, 0, len(st.Upgrades)),
		LastSaveTime:     st.LastSaveTime,
		Clicks:           st.Clicks,
	}
	for _, b := range st.Businesses {
		out.Businesses = append(out.Businesses, SavedBusiness{
			ID:           b.ID,
			Owned:        b.Owned,
			ManagerHired: b.ManagerHired,
			Level:        b.Level,
		})
	}
	for _, u := range st.Upgrades {
		cost := u.Cost
		out.Upgrades = append(out.Upgrades, SavedUpgrade{
			ID:        u.ID,
			Purchased: u.Purchased,
			Cost:      &cost,
		})
	}
	return out
}

// DecodeSnapshot parses a persisted payload and reconciles it against c.
// A malformed payload is returned as an error; callers fall back to NewState.
func DecodeSnapshot(data []byte, c Catalog, now time.Time) (GameState, error) {
	var saved SavedState
	if err := json.Unmarshal(data, &saved); err != nil {
		return GameState{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return Reconcile(saved, c, now), nil
}

// EncodeSnapshot serializes st in the persisted payload format.
func EncodeSnapshot(st GameState) ([]byte, error) {
	return json.Marshal(st)
}

// clampState keeps a loaded state inside the invariants even when the
// payload was edited by hand.
func clampState(st *GameState) {
	if st.Money < 0 {
		st.Money = 0
	}
	if st.TotalMoneyEarned < 0 {
		st.TotalMoneyEarned = 0
	}
	if st.Clicks < 0 {
		st.Clicks = 0
	}
	for i := range st.Businesses {
		if st.Businesses[i].Owned < 0 {
			st.Businesses[i].Owned = 0
		}
	}
	for i := range st.Upgrades {
		if st.Upgrades[i].Cost < 0 {
			st.Upgrades[i].Cost = 0
		}
	}
}
