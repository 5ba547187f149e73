package market

import (
	"sort"

	"github.com/fairwaymarkets/fairway/internal/models"
)

// Prices derives the implied probabilities from the two pool reserves.
// Both pools must be positive. The rule is pool-share pricing: a side's price
// is its pool's fraction of total liquidity, so yes + no is always 1 and each
// price stays strictly inside (0, 1).
func Prices(yesPool, noPool float64) (yes, no float64) {
	total := yesPool + noPool
	yes = yesPool / total
	return yes, 1 - yes
}

// PriceFor returns the current price of the given side.
func PriceFor(side models.Side, yesPool, noPool float64) float64 {
	yes, no := Prices(yesPool, noPool)
	if side == models.SideYes {
		return yes
	}
	return no
}

// SharesFor returns the number of shares minted for spending cash at price.
func SharesFor(cash, price float64) float64 {
	return cash / price
}

// Merge folds a new fill into an existing position. The resulting average
// price is total cash spent divided by total shares held, so repeated buys
// keep avg_price equal to the volume-weighted entry price.
func Merge(oldShares, oldAvgPrice, minted, cash float64) (shares, avgPrice float64) {
	shares = oldShares + minted
	avgPrice = (oldShares*oldAvgPrice + cash) / shares
	return shares, avgPrice
}

// Holding is the slice of a position needed for mark-to-market valuation:
// the side held and the state of the backing market.
type Holding struct {
	Side    models.Side
	Shares  float64
	Status  models.MarketStatus
	YesPool float64
	NoPool  float64
}

// Value marks a holding to the current pool price. Resolved markets are worth
// zero here: winning shares were already paid into the balance and losing
// shares pay nothing, so counting either would double-count.
func (h Holding) Value() float64 {
	if h.Status == models.StatusResolved {
		return 0
	}
	return h.Shares * PriceFor(h.Side, h.YesPool, h.NoPool)
}

// PositionValue sums the mark-to-market value of a set of holdings.
func PositionValue(holdings []Holding) float64 {
	var total float64
	for _, h := range holdings {
		total += h.Value()
	}
	return total
}

// Entry is one row of the leaderboard.
type Entry struct {
	Profile       models.Profile `json:"profile"`
	PositionValue float64        `json:"position_value"`
	TotalValue    float64        `json:"total_value"`
	PnL           float64        `json:"pnl"`
	Rank          int            `json:"rank"`
}

// Leaderboard ranks profiles by cash plus current position value, descending.
// The sort is stable so ties keep the listing order of profiles. Ranks are
// assigned 1..n. endowment is the starting balance every account was granted,
// used for PnL.
func Leaderboard(profiles []models.Profile, holdings map[string][]Holding, endowment float64) []Entry {
	entries := make([]Entry, 0, len(profiles))
	for _, p := range profiles {
		posValue := PositionValue(holdings[p.ID])
		total := p.Balance + posValue
		entries = append(entries, Entry{
			Profile:       p,
			PositionValue: posValue,
			TotalValue:    total,
			PnL:           total - endowment,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalValue > entries[j].TotalValue
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
