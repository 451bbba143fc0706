package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func testCatalog() Catalog {
	return Catalog{
		Businesses: []Business{
			{ID: "stand", Name: "Stand", BaseCost: 10, BaseIncome: 1, IncomePerSecond: 1, Level: 1},
			{ID: "route", Name: "Route", BaseCost: 100, BaseIncome: 10, IncomePerSecond: 8, Level: 1},
		},
		Upgrades: []Upgrade{
			{ID: "click_x2", Name: "Click", Cost: 50, Kind: KindClickMultiplier, Multiplier: 2},
			{ID: "manager_stand", Name: "Manager", Cost: 1000, Kind: KindManager, BusinessID: "stand"},
		},
	}
}

func TestDefaultCatalogIsValid(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)
	assert.NotEmpty(t, c.Businesses)
	assert.NotEmpty(t, c.Upgrades)
	assert.Empty(t, c.DanglingManagers())
}

func TestParseCatalogRejectsDuplicates(t *testing.T) {
	_, err := ParseCatalog([]byte(`
businesses:
  - id: stand
    base_cost: 10
  - id: stand
    base_cost: 20
`))
	assert.ErrorContains(t, err, "duplicate business id")
}

func TestParseCatalogRejectsUnknownKind(t *testing.T) {
	_, err := ParseCatalog([]byte(`
upgrades:
  - id: weird
    type: teleporter
`))
	assert.ErrorContains(t, err, "unknown type")
}

func TestParseCatalogRejectsBadIncomeTarget(t *testing.T) {
	_, err := ParseCatalog([]byte(`
upgrades:
  - id: lonely_x2
    type: income_multiplier
    business_id: nowhere
    multiplier: 2
`))
	assert.ErrorContains(t, err, "unknown business")
}

func TestDanglingManagers(t *testing.T) {
	c := testCatalog()
	c.Upgrades = append(c.Upgrades, Upgrade{ID: "manager_ghost", Kind: KindManager, BusinessID: "ghost"})
	require.NoError(t, c.Validate())
	assert.Equal(t, []string{"manager_ghost"}, c.DanglingManagers())
}

func TestNewState(t *testing.T) {
	c := testCatalog()
	st := NewState(c, testNow)

	assert.Zero(t, st.Money)
	assert.Zero(t, st.TotalMoneyEarned)
	assert.Zero(t, st.Clicks)
	assert.Equal(t, testNow.UnixMilli(), st.LastSaveTime)
	assert.Equal(t, c.Businesses, st.Businesses)

	st.Businesses[0].Owned = 3
	assert.Zero(t, c.Businesses[0].Owned, "state must not alias the catalog")
}

func TestReconcileAddsMissingCatalogItems(t *testing.T) {
	saved := SavedState{
		Money:      42,
		Businesses: []SavedBusiness{{ID: "stand", Owned: 5, ManagerHired: true}},
		Upgrades:   []SavedUpgrade{{ID: "click_x2", Purchased: true}},
	}

	st := Reconcile(saved, testCatalog(), testNow)

	require.Len(t, st.Businesses, 2)
	assert.Equal(t, 5, st.Businesses[0].Owned)
	assert.True(t, st.Businesses[0].ManagerHired)
	assert.Equal(t, 1, st.Businesses[0].Level, "absent level falls back to the catalog")

	route := st.Businesses[1]
	assert.Equal(t, testCatalog().Businesses[1], route)

	require.Len(t, st.Upgrades, 2)
	assert.True(t, st.Upgrades[0].Purchased)
	assert.Equal(t, 50.0, st.Upgrades[0].Cost, "absent cost falls back to the catalog")
	assert.False(t, st.Upgrades[1].Purchased)

	assert.Equal(t, 42.0, st.Money)
	assert.Equal(t, testNow.UnixMilli(), st.LastSaveTime, "absent save time falls back to now")
}

func TestReconcileOverlaysOnlyMutableFields(t *testing.T) {
	cost := 75.0
	saved := SavedState{
		LastSaveTime: 1234,
		Clicks:       9,
		Businesses:   []SavedBusiness{{ID: "route", Owned: 2, Level: 4}},
		Upgrades:     []SavedUpgrade{{ID: "manager_stand", Purchased: true, Cost: &cost}},
	}

	st := Reconcile(saved, testCatalog(), testNow)

	assert.Equal(t, 2, st.Businesses[1].Owned)
	assert.Equal(t, 4, st.Businesses[1].Level)
	assert.Equal(t, 100.0, st.Businesses[1].BaseCost)
	assert.Equal(t, 75.0, st.Upgrades[1].Cost, "saved cost is preferred")
	assert.Equal(t, int64(1234), st.LastSaveTime)
	assert.Equal(t, int64(9), st.Clicks)
}

func TestReconcileDropsRetiredItems(t *testing.T) {
	saved := SavedState{
		Businesses: []SavedBusiness{{ID: "retired", Owned: 7}},
		Upgrades:   []SavedUpgrade{{ID: "retired_x2", Purchased: true}},
	}
	st := Reconcile(saved, testCatalog(), testNow)

	assert.Equal(t, -1, FindBusiness(st, "retired"))
	assert.Equal(t, -1, FindUpgrade(st, "retired_x2"))
}

func TestReconcileClampsNegatives(t *testing.T) {
	cost := -1000000.0
	saved := SavedState{
		Money:      -5,
		Businesses: []SavedBusiness{{ID: "stand", Owned: -2}},
		Upgrades:   []SavedUpgrade{{ID: "click_x2", Cost: &cost}},
	}
	st := Reconcile(saved, testCatalog(), testNow)

	assert.Zero(t, st.Money)
	assert.Zero(t, st.Businesses[0].Owned)
	assert.Equal(t, testCatalog().Upgrades[0].Cost, st.Upgrades[0].Cost)
}

func TestNegativeSavedUpgradeCostCannotMintMoney(t *testing.T) {
	payload := []byte(`{"money":0,"upgrades":[{"id":"click_x2","purchased":false,"cost":-1000000}]}`)
	st, err := DecodeSnapshot(payload, testCatalog(), testNow)
	require.NoError(t, err)

	next, outcome := BuyUpgrade(st, "click_x2")
	assert.Equal(t, InsufficientFunds, outcome)
	assert.Zero(t, next.Money)
	assert.Zero(t, next.TotalMoneyEarned)
}

func TestDecodeSnapshotRoundTrip(t *testing.T) {
	st := NewState(testCatalog(), testNow)
	st.Money = 12.5
	st.TotalMoneyEarned = 99.25
	st.Clicks = 17
	st.Businesses[0].Owned = 3
	st.Businesses[0].ManagerHired = true
	st.Upgrades[0].Purchased = true

	data, err := EncodeSnapshot(st)
	require.NoError(t, err)

	got, err := DecodeSnapshot(data, testCatalog(), testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, st, got)
}

func TestDecodeSnapshotMalformed(t *testing.T) {
	_, err := DecodeSnapshot([]byte("{not json"), testCatalog(), testNow)
	assert.Error(t, err)
}

func TestSavedProjection(t *testing.T) {
	st := NewState(testCatalog(), testNow)
	st.Businesses[1].Owned = 4

	got := Reconcile(st.Saved(), testCatalog(), testNow.Add(time.Minute))
	assert.Equal(t, st, got)
}
