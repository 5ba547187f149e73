package models

import "time"

// Side identifies one of the two outcomes of a binary market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether s is one of the two tradable sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// MarketStatus is the lifecycle state of a market.
type MarketStatus string

const (
	StatusOpen     MarketStatus = "open"
	StatusClosed   MarketStatus = "closed"
	StatusResolved MarketStatus = "resolved"
)

// Profile represents a registered account. Balance starts at the configured
// endowment and is only ever changed by trades and resolution payouts.
type Profile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Balance      float64   `json:"balance"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// Market represents a binary question backed by a yes pool and a no pool.
// Resolution is empty until Status is StatusResolved, then immutable.
type Market struct {
	ID          string       `json:"id"`
	Question    string       `json:"question"`
	Description string       `json:"description,omitempty"`
	CreatedBy   string       `json:"created_by"`
	CloseDate   time.Time    `json:"close_date"`
	Status      MarketStatus `json:"status"`
	Resolution  Side         `json:"resolution,omitempty"`
	YesPool     float64      `json:"yes_pool"`
	NoPool      float64      `json:"no_pool"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Position is a user's aggregated holding on one side of one market.
// At most one row exists per (user, market, side).
type Position struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	MarketID  string    `json:"market_id"`
	Side      Side      `json:"side"`
	Shares    float64   `json:"shares"`
	AvgPrice  float64   `json:"avg_price"` // volume-weighted entry price, in (0,1]
	CreatedAt time.Time `json:"created_at"`
}

// Transaction is an append-only audit record of a single buy.
type Transaction struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	MarketID      string    `json:"market_id"`
	Side          Side      `json:"side"`
	Shares        float64   `json:"shares"`
	PricePerShare float64   `json:"price_per_share"`
	TotalCost     float64   `json:"total_cost"`
	BalanceAfter  float64   `json:"balance_after"`
	CreatedAt     time.Time `json:"created_at"`
}

// PricePoint is one sample of a market's yes price, taken at creation and
// after every trade. Observational only; pricing never reads it back.
type PricePoint struct {
	ID         string    `json:"id"`
	MarketID   string    `json:"market_id"`
	YesPrice   float64   `json:"yes_price"`
	RecordedAt time.Time `json:"recorded_at"`
}
