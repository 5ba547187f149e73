package market

import (
	"testing"

	"github.com/fairwaymarkets/fairway/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestPrices(t *testing.T) {
	tests := []struct {
		name      string
		yesPool   float64
		noPool    float64
		expectYes float64
	}{
		{name: "Balanced", yesPool: 100, noPool: 100, expectYes: 0.5},
		{name: "YesHeavy", yesPool: 150, noPool: 100, expectYes: 0.6},
		{name: "NoHeavy", yesPool: 25, noPool: 75, expectYes: 0.25},
		{name: "TinyPools", yesPool: 0.01, noPool: 0.03, expectYes: 0.25},
		{name: "LargePools", yesPool: 1e9, noPool: 3e9, expectYes: 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yes, no := Prices(tt.yesPool, tt.noPool)
			assert.InDelta(t, tt.expectYes, yes, 1e-9)
			assert.InDelta(t, 1.0, yes+no, 1e-9, "prices must sum to 1")
			assert.Greater(t, yes, 0.0)
			assert.Less(t, yes, 1.0)
			assert.Greater(t, no, 0.0)
			assert.Less(t, no, 1.0)
		})
	}
}

func TestPrices_Monotonic(t *testing.T) {
	prev, _ := Prices(10, 100)
	for yesPool := 20.0; yesPool <= 200; yesPool += 10 {
		yes, _ := Prices(yesPool, 100)
		assert.Greater(t, yes, prev, "growing the yes pool must raise the yes price")
		prev = yes
	}
}

func TestPriceFor(t *testing.T) {
	assert.InDelta(t, 0.6, PriceFor(models.SideYes, 150, 100), 1e-9)
	assert.InDelta(t, 0.4, PriceFor(models.SideNo, 150, 100), 1e-9)
}

func TestSharesFor(t *testing.T) {
	// $50 at an even 0.50 price mints 100 shares.
	assert.InDelta(t, 100.0, SharesFor(50, 0.5), 1e-9)
	assert.InDelta(t, 125.0, SharesFor(50, 0.4), 1e-9)
}

func TestMerge_WeightedAverage(t *testing.T) {
	// First buy: $50 at 0.50 -> 100 shares.
	shares, avg := SharesFor(50, 0.5), 0.5

	// Second buy: $60 at 0.60 -> 100 more shares.
	minted := SharesFor(60, 0.6)
	shares, avg = Merge(shares, avg, minted, 60)

	assert.InDelta(t, 200.0, shares, 1e-9)
	// avg_price must equal total cash spent over total shares held.
	assert.InDelta(t, (50.0+60.0)/200.0, avg, 1e-9)
}

func TestMerge_SamePriceKeepsAverage(t *testing.T) {
	shares, avg := Merge(100, 0.5, 100, 50)
	assert.InDelta(t, 200.0, shares, 1e-9)
	assert.InDelta(t, 0.5, avg, 1e-9)
}

func TestHolding_Value(t *testing.T) {
	open := Holding{Side: models.SideYes, Shares: 100, Status: models.StatusOpen, YesPool: 150, NoPool: 100}
	assert.InDelta(t, 60.0, open.Value(), 1e-9)

	closed := open
	closed.Status = models.StatusClosed
	assert.InDelta(t, 60.0, closed.Value(), 1e-9, "closed markets still mark to pool price")

	resolved := open
	resolved.Status = models.StatusResolved
	assert.Zero(t, resolved.Value(), "resolved positions are already realized into the balance")
}

func TestLeaderboard(t *testing.T) {
	profiles := []models.Profile{
		{ID: "a", Name: "Ana", Balance: 900},
		{ID: "b", Name: "Ben", Balance: 1000},
		{ID: "c", Name: "Cal", Balance: 960},
	}
	holdings := map[string][]Holding{
		// 900 cash + 100 yes shares at 0.6 = 960 total.
		"a": {{Side: models.SideYes, Shares: 100, Status: models.StatusOpen, YesPool: 150, NoPool: 100}},
	}

	entries := Leaderboard(profiles, holdings, 1000)

	assert.Len(t, entries, 3)
	assert.Equal(t, "b", entries[0].Profile.ID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.InDelta(t, 0.0, entries[0].PnL, 1e-9)

	// Ana and Cal tie at 960: the stable sort keeps listing order.
	assert.Equal(t, "a", entries[1].Profile.ID)
	assert.InDelta(t, 960.0, entries[1].TotalValue, 1e-9)
	assert.InDelta(t, 60.0, entries[1].PositionValue, 1e-9)
	assert.InDelta(t, -40.0, entries[1].PnL, 1e-9)
	assert.Equal(t, "c", entries[2].Profile.ID)
	assert.Equal(t, 3, entries[2].Rank)
}

func TestLeaderboard_Empty(t *testing.T) {
	entries := Leaderboard(nil, nil, 1000)
	assert.Empty(t, entries)
}
