/*
Package game
File: models.go
Description:
    Defines all data structures used by the economy engine.
    This file serves as the "schema" for the application, mapping directly to
    the YAML catalog file and to the JSON save payloads stored by the
    persistence gateway.

    No logic is performed here; this file is strictly for type definitions.
*/

package game

import "time"

// UpgradeKind tags what an Upgrade does once purchased.
type UpgradeKind string

const (
	KindIncomeMultiplier UpgradeKind = "income_multiplier" // Scales one business's income
	KindCostReduction    UpgradeKind = "cost_reduction"    // Reserved; carries no formula effect
	KindGlobalMultiplier UpgradeKind = "global_multiplier" // Scales all income and the click value
	KindManager          UpgradeKind = "manager"           // Hires the manager of one business
	KindClickMultiplier  UpgradeKind = "click_multiplier"  // Scales the click value
)

// Valid reports whether k is one of the known upgrade kinds.
func (k UpgradeKind) Valid() bool {
	switch k {
	case KindIncomeMultiplier, KindCostReduction, KindGlobalMultiplier, KindManager, KindClickMultiplier:
		return true
	}
	return false
}

// Business is an income source the player can buy many times.
type Business struct {
	ID              string  `yaml:"id" json:"id"`                             // Unique ID (e.g., "lemonade_stand")
	Name            string  `yaml:"name" json:"name"`                         // Display name
	BaseCost        float64 `yaml:"base_cost" json:"baseCost"`                // Price of the first unit
	BaseIncome      float64 `yaml:"base_income" json:"baseIncome"`            // Income per cycle, per unit owned
	IncomePerSecond float64 `yaml:"income_per_second" json:"incomePerSecond"` // Passive income per second, per unit owned
	Level           int     `yaml:"level" json:"level"`                       // Level counter
	Owned           int     `yaml:"-" json:"owned"`                           // Units owned (never decreases except on reset)
	ManagerHired    bool    `yaml:"-" json:"managerHired"`                    // One-way flag, set by a manager upgrade
}

// Upgrade is a one-time purchase that modifies rates or unlocks a manager.
type Upgrade struct {
	ID          string      `yaml:"id" json:"id"`                                      // Unique ID (e.g., "lemonade_x2")
	Name        string      `yaml:"name" json:"name"`                                  // Display name
	Description string      `yaml:"description" json:"description"`                    // Flavor text
	Cost        float64     `yaml:"cost" json:"cost"`                                  // Purchase price
	Purchased   bool        `yaml:"-" json:"purchased"`                                // One-way flag
	BusinessID  string      `yaml:"business_id,omitempty" json:"businessId,omitempty"` // Target business, if any
	Kind        UpgradeKind `yaml:"type" json:"type"`                                  // What the upgrade does
	Multiplier  float64     `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`  // Factor; zero means absent (acts as 1)
}

// GameState is the aggregate root: one player's complete progress.
type GameState struct {
	Money            float64    `json:"money"`            // Current balance, never negative
	TotalMoneyEarned float64    `json:"totalMoneyEarned"` // Lifetime income, never decreases
	Businesses       []Business `json:"businesses"`
	Upgrades         []Upgrade  `json:"upgrades"`
	LastSaveTime     int64      `json:"lastSaveTime"` // Unix milliseconds
	Clicks           int64      `json:"clicks"`       // Lifetime clicks, never decreases
}

// Catalog is the fixed list of purchasable items, mapping to 'catalog.yaml'.
type Catalog struct {
	Businesses []Business `yaml:"businesses"`
	Upgrades   []Upgrade  `yaml:"upgrades"`
}

// SavedBusiness is the persisted, possibly partial shape of a Business.
// Only the mutable fields are read back from it.
type SavedBusiness struct {
	ID           string `json:"id"`
	Owned        int    `json:"owned"`
	ManagerHired bool   `json:"managerHired"`
	Level        int    `json:"level"`
}

// SavedUpgrade is the persisted, possibly partial shape of an Upgrade.
type SavedUpgrade struct {
	ID        string   `json:"id"`
	Purchased bool     `json:"purchased"`
	Cost      *float64 `json:"cost"` // nil when the save predates per-player costs
}

// SavedState is a persisted snapshot as it comes off disk or the network.
// Every field is optional; Reconcile fills the gaps from the catalog.
type SavedState struct {
	Money            float64         `json:"money"`
	TotalMoneyEarned float64         `json:"totalMoneyEarned"`
	Businesses       []SavedBusiness `json:"businesses"`
	Upgrades         []SavedUpgrade  `json:"upgrades"`
	LastSaveTime     int64           `json:"lastSaveTime"`
	Clicks           int64           `json:"clicks"`
}

// BusinessView is a Business plus the figures the client renders next to it.
type BusinessView struct {
	Business
	Cost            float64 `json:"cost"`
	IncomePerCycle  float64 `json:"incomePerCycle"`
	IncomePerSecond float64 `json:"currentIncomePerSecond"`
	Affordable      bool    `json:"affordable"`
}

// UpgradeView is an Upgrade plus its affordability.
type UpgradeView struct {
	Upgrade
	Affordable bool `json:"affordable"`
}

// View is the read-only presentation of a GameState.
// It is derived on every request and never stored.
type View struct {
	Money                float64        `json:"money"`
	TotalMoneyEarned     float64        `json:"totalMoneyEarned"`
	Clicks               int64          `json:"clicks"`
	LastSaveTime         int64          `json:"lastSaveTime"`
	Businesses           []BusinessView `json:"businesses"`
	Upgrades             []UpgradeView  `json:"upgrades"`
	TotalIncomePerSecond float64        `json:"totalIncomePerSecond"`
	ClickValue           float64        `json:"clickValue"`
}

// Outcome reports what a transition did. Rejections are outcomes, not errors.
type Outcome string

const (
	Applied           Outcome = "applied"
	UnknownID         Outcome = "unknown_id"
	InsufficientFunds Outcome = "insufficient_funds"
	AlreadyPurchased  Outcome = "already_purchased"
)

// Millis converts t to the unix-millisecond form used by LastSaveTime.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
