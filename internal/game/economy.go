/*
Package game
File: economy.go
Description:
    Handles the economic formulas of the game.
    This includes:
    1. Business cost scaling (exponential 1.15 curve).
    2. Income per cycle and per second, with upgrade multipliers.
    3. Click value.
    4. The derived read-only View shown to the client.

    Every function here is pure: it reads a snapshot and never mutates it.
*/

package game

import "math"

const (
	// CostGrowth is the per-unit price multiplier for businesses.
	CostGrowth = 1.15

	// CycleSeconds is the length of one income cycle. IncomePerCycle divided
	// by this is the fallback per-second rate.
	CycleSeconds = 10
)

// RateFunc computes a per-second income figure for one business.
type RateFunc func(b Business, upgrades []Upgrade) float64

// Cost returns the price of the next unit of b.
// Formula: floor(BaseCost * 1.15^Owned)
func Cost(b Business) float64 {
	return math.Floor(b.BaseCost * math.Pow(CostGrowth, float64(b.Owned)))
}

// IncomePerCycle returns what b earns per cycle with upgrades applied.
func IncomePerCycle(b Business, upgrades []Upgrade) float64 {
	return applyIncomeMultipliers(b.BaseIncome*float64(b.Owned), b.ID, upgrades)
}

// IncomePerSecond returns what b earns per second with upgrades applied.
// This is the authoritative rate used by Tick.
func IncomePerSecond(b Business, upgrades []Upgrade) float64 {
	return applyIncomeMultipliers(b.IncomePerSecond*float64(b.Owned), b.ID, upgrades)
}

// ClickValue returns the money earned by one click.
func ClickValue(upgrades []Upgrade) float64 {
	value := 1.0

	// 1. Click-specific upgrades
	for _, u := range upgrades {
		if u.Purchased && u.Kind == KindClickMultiplier {
			value *= u.factor()
		}
	}

	// 2. Global upgrades affect everything
	for _, u := range upgrades {
		if u.Purchased && u.Kind == KindGlobalMultiplier {
			value *= u.factor()
		}
	}
	return value
}

// TotalIncomePerSecond sums IncomePerSecond over every owned business.
func TotalIncomePerSecond(st GameState) float64 {
	total := 0.0
	for _, b := range st.Businesses {
		if b.Owned > 0 {
			total += IncomePerSecond(b, st.Upgrades)
		}
	}
	return total
}

// Rates returns the per-second calculator a caller should use.
// When perSecond is nil, the rate falls back to IncomePerCycle / CycleSeconds.
func Rates(perSecond RateFunc) RateFunc {
	if perSecond != nil {
		return perSecond
	}
	return func(b Business, upgrades []Upgrade) float64 {
		return IncomePerCycle(b, upgrades) / CycleSeconds
	}
}

// Describe builds the client View of st. rates is normally IncomePerSecond;
// nil selects the per-cycle fallback.
func Describe(st GameState, rates RateFunc) View {
	rate := Rates(rates)

	v := View{
		Money:            st.Money,
		TotalMoneyEarned: st.TotalMoneyEarned,
		Clicks:           st.Clicks,
		LastSaveTime:     st.LastSaveTime,
		Businesses:       make([]BusinessView, 0, len(st.Businesses)),
		Upgrades:         make([]UpgradeView, 0, len(st.Upgrades)),
		ClickValue:       ClickValue(st.Upgrades),
	}

	for _, b := range st.Businesses {
		cost := Cost(b)
		perSecond := rate(b, st.Upgrades)
		v.Businesses = append(v.Businesses, BusinessView{
			Business:        b,
			Cost:            cost,
			IncomePerCycle:  IncomePerCycle(b, st.Upgrades),
			IncomePerSecond: perSecond,
			Affordable:      st.Money >= cost,
		})
		if b.Owned > 0 {
			v.TotalIncomePerSecond += perSecond
		}
	}

	for _, u := range st.Upgrades {
		v.Upgrades = append(v.Upgrades, UpgradeView{
			Upgrade:    u,
			Affordable: !u.Purchased && st.Money >= u.Cost,
		})
	}
	return v
}

// applyIncomeMultipliers runs the business-specific then global pipeline.
func applyIncomeMultipliers(income float64, businessID string, upgrades []Upgrade) float64 {
	for _, u := range upgrades {
		if u.Purchased && u.Kind == KindIncomeMultiplier && u.BusinessID == businessID {
			income *= u.factor()
		}
	}
	for _, u := range upgrades {
		if u.Purchased && u.Kind == KindGlobalMultiplier {
			income *= u.factor()
		}
	}
	return income
}

// factor returns the multiplier, treating an absent value as 1.
func (u Upgrade) factor() float64 {
	if u.Multiplier == 0 {
		return 1
	}
	return u.Multiplier
}
