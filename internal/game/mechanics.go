/*
Package game
File: mechanics.go
Description:
    Contains the state transitions of the economy: click, buy business,
    buy upgrade, passive tick and reset.
    It serves as the rules engine for how money moves.

    Each transition takes a snapshot and returns a new one. The input is never
    mutated and the output shares no slices with it. Rejected purchases return
    the input unchanged together with an Outcome; they are not errors.
*/

package game

import "time"

const (
	// TickInterval is the period of the passive income ticker.
	TickInterval = 100 * time.Millisecond

	// TicksPerSecond is how many ticks make up one modeled second.
	TicksPerSecond = int(time.Second / TickInterval)
)

// FindBusiness returns the index of the business with the given id, or -1.
func FindBusiness(st GameState, id string) int {
	for i, b := range st.Businesses {
		if b.ID == id {
			return i
		}
	}
	return -1
}

// FindUpgrade returns the index of the upgrade with the given id, or -1.
func FindUpgrade(st GameState, id string) int {
	for i, u := range st.Upgrades {
		if u.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of st.
func (st GameState) Clone() GameState {
	out := st
	out.Businesses = append([]Business(nil), st.Businesses...)
	out.Upgrades = append([]Upgrade(nil), st.Upgrades...)
	return out
}

// Click credits one click.
func Click(st GameState) GameState {
	value := ClickValue(st.Upgrades)

	next := st.Clone()
	next.Money += value
	next.TotalMoneyEarned += value
	next.Clicks++
	return next
}

// BuyBusiness purchases one unit of the business with the given id.
func BuyBusiness(st GameState, id string) (GameState, Outcome) {
	// 1. Find the business
	idx := FindBusiness(st, id)
	if idx == -1 {
		return st, UnknownID
	}

	// 2. Check funds
	cost := Cost(st.Businesses[idx])
	if st.Money < cost {
		return st, InsufficientFunds
	}

	// 3. Apply purchase
	next := st.Clone()
	next.Money -= cost
	next.Businesses[idx].Owned++
	return next, Applied
}

// BuyUpgrade purchases the upgrade with the given id.
// A manager upgrade also hires the manager of its business in the same
// transition; if that business does not exist only the purchase commits.
func BuyUpgrade(st GameState, id string) (GameState, Outcome) {
	// 1. Find the upgrade
	idx := FindUpgrade(st, id)
	if idx == -1 {
		return st, UnknownID
	}
	upgrade := st.Upgrades[idx]

	// 2. Validate
	if upgrade.Purchased {
		return st, AlreadyPurchased
	}
	if st.Money < upgrade.Cost {
		return st, InsufficientFunds
	}

	// 3. Apply purchase
	next := st.Clone()
	next.Money -= upgrade.Cost
	next.Upgrades[idx].Purchased = true

	// 4. Hire the manager
	if upgrade.Kind == KindManager && upgrade.BusinessID != "" {
		if b := FindBusiness(next, upgrade.BusinessID); b != -1 {
			next.Businesses[b].ManagerHired = true
		}
	}
	return next, Applied
}

// TickIncome returns the passive income one tick adds to st.
func TickIncome(st GameState) float64 {
	total := 0.0
	for _, b := range st.Businesses {
		if b.Owned > 0 {
			total += IncomePerSecond(b, st.Upgrades) / float64(TicksPerSecond)
		}
	}
	return total
}

// Tick accrues one tick of passive income. Managers do not gate income:
// every owned business earns. When nothing is earned st is returned as is.
func Tick(st GameState) GameState {
	income := TickIncome(st)
	if income == 0 {
		return st
	}

	next := st.Clone()
	next.Money += income
	next.TotalMoneyEarned += income
	return next
}

// Reset discards all progress and returns a fresh state for the catalog.
func Reset(c Catalog, now time.Time) GameState {
	return NewState(c, now)
}
