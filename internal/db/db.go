package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fairwaymarkets/fairway/internal/market"
	"github.com/fairwaymarkets/fairway/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Validation and state errors surfaced to callers. Handlers map these to
// HTTP status codes; anything else is a persistence failure.
var (
	ErrProfileNotFound     = errors.New("profile not found")
	ErrMarketNotFound      = errors.New("market not found")
	ErrMarketNotOpen       = errors.New("market not open")
	ErrAlreadyResolved     = errors.New("market already resolved")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidSide         = errors.New("side must be 'yes' or 'no'")
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// CreateProfile inserts a new account with the given starting balance.
func (db *DB) CreateProfile(ctx context.Context, name, email, passwordHash string, balance float64) (*models.Profile, error) {
	p := &models.Profile{}
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO profiles (id, name, email, password_hash, balance)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, name, email, password_hash, balance, is_admin, created_at`,
		uuid.NewString(), name, email, passwordHash, balance).Scan(
		&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.Balance, &p.IsAdmin, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return p, nil
}

// GetProfile retrieves a profile by id
func (db *DB) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	p := &models.Profile{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, name, email, password_hash, balance, is_admin, created_at FROM profiles WHERE id = $1",
		id).Scan(&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.Balance, &p.IsAdmin, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// GetProfileByEmail retrieves a profile by email
func (db *DB) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	p := &models.Profile{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, name, email, password_hash, balance, is_admin, created_at FROM profiles WHERE email = $1",
		email).Scan(&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.Balance, &p.IsAdmin, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// ListProfiles retrieves all profiles, highest cash balance first.
func (db *DB) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, name, email, password_hash, balance, is_admin, created_at FROM profiles ORDER BY balance DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.Balance, &p.IsAdmin, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// CreateMarket inserts a new open market seeded with the given liquidity on
// both sides and records the initial price point. Both writes commit together.
func (db *DB) CreateMarket(ctx context.Context, question, description, createdBy string, closeDate time.Time, liquidity float64) (*models.Market, error) {
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}
	if liquidity <= 0 {
		return nil, fmt.Errorf("initial liquidity must be positive")
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	m := &models.Market{}
	err = tx.QueryRow(ctx,
		`INSERT INTO markets (id, question, description, created_by, close_date, status, yes_pool, no_pool)
		 VALUES ($1, $2, $3, $4, $5, 'open', $6, $6)
		 RETURNING id, question, description, created_by, close_date, status, resolution, yes_pool, no_pool, created_at`,
		uuid.NewString(), question, description, createdBy, closeDate, liquidity).Scan(
		&m.ID, &m.Question, &m.Description, &m.CreatedBy, &m.CloseDate,
		&m.Status, &m.Resolution, &m.YesPool, &m.NoPool, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create market: %w", err)
	}

	yesPrice, _ := market.Prices(m.YesPool, m.NoPool)
	_, err = tx.Exec(ctx,
		"INSERT INTO price_history (id, market_id, yes_price) VALUES ($1, $2, $3)",
		uuid.NewString(), m.ID, yesPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to record initial price: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return m, nil
}

// GetMarket retrieves a market by id
func (db *DB) GetMarket(ctx context.Context, id string) (*models.Market, error) {
	m := &models.Market{}
	err := db.Pool.QueryRow(ctx,
		`SELECT id, question, description, created_by, close_date, status, resolution, yes_pool, no_pool, created_at
		 FROM markets WHERE id = $1`,
		id).Scan(&m.ID, &m.Question, &m.Description, &m.CreatedBy, &m.CloseDate,
		&m.Status, &m.Resolution, &m.YesPool, &m.NoPool, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMarketNotFound
		}
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	return m, nil
}

// ListMarkets retrieves all markets, newest first
func (db *DB) ListMarkets(ctx context.Context) ([]models.Market, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, question, description, created_by, close_date, status, resolution, yes_pool, no_pool, created_at
		 FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}
	defer rows.Close()

	var markets []models.Market
	for rows.Next() {
		var m models.Market
		if err := rows.Scan(&m.ID, &m.Question, &m.Description, &m.CreatedBy, &m.CloseDate,
			&m.Status, &m.Resolution, &m.YesPool, &m.NoPool, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// CloseMarket stops trading on an open market. Resolution may follow later.
func (db *DB) CloseMarket(ctx context.Context, id string) error {
	tag, err := db.Pool.Exec(ctx,
		"UPDATE markets SET status = 'closed' WHERE id = $1 AND status = 'open'", id)
	if err != nil {
		return fmt.Errorf("failed to close market: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := db.Pool.QueryRow(ctx, "SELECT status FROM markets WHERE id = $1", id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMarketNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get market: %w", err)
		}
		return ErrMarketNotOpen
	}
	return nil
}

// CloseExpiredMarkets closes every open market whose close date has passed.
// Returns the number of markets closed.
func (db *DB) CloseExpiredMarkets(ctx context.Context, now time.Time) (int, error) {
	tag, err := db.Pool.Exec(ctx,
		"UPDATE markets SET status = 'closed' WHERE status = 'open' AND close_date <= $1", now)
	if err != nil {
		return 0, fmt.Errorf("failed to close expired markets: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// TradeReceipt summarizes a committed buy.
type TradeReceipt struct {
	MarketID     string      `json:"market_id"`
	Side         models.Side `json:"side"`
	Shares       float64     `json:"shares"`
	Price        float64     `json:"price"`
	TotalCost    float64     `json:"total_cost"`
	BalanceAfter float64     `json:"balance_after"`
	YesPrice     float64     `json:"yes_price"`
	NoPrice      float64     `json:"no_price"`
}

// ExecuteBuy spends amount of the user's cash on shares of the given side.
// The whole operation runs in one transaction with the market and profile
// rows locked, so concurrent buys on the same market serialize and a failure
// at any step rolls back every write: pool update, balance debit, price
// point, position merge, and the audit transaction row commit together.
func (db *DB) ExecuteBuy(ctx context.Context, userID, marketID string, side models.Side, amount float64) (*TradeReceipt, error) {
	if !side.Valid() {
		return nil, ErrInvalidSide
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var yesPool, noPool float64
	var status models.MarketStatus
	err = tx.QueryRow(ctx,
		"SELECT yes_pool, no_pool, status FROM markets WHERE id = $1 FOR UPDATE",
		marketID).Scan(&yesPool, &noPool, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMarketNotFound
		}
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	if status != models.StatusOpen {
		return nil, ErrMarketNotOpen
	}

	var balance float64
	err = tx.QueryRow(ctx,
		"SELECT balance FROM profiles WHERE id = $1 FOR UPDATE", userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	if amount > balance {
		return nil, ErrInsufficientBalance
	}

	price := market.PriceFor(side, yesPool, noPool)
	shares := market.SharesFor(amount, price)

	// The full cash amount lands in the purchased pool; the other side is untouched.
	if side == models.SideYes {
		yesPool += amount
	} else {
		noPool += amount
	}
	if _, err := tx.Exec(ctx,
		"UPDATE markets SET yes_pool = $1, no_pool = $2 WHERE id = $3",
		yesPool, noPool, marketID); err != nil {
		return nil, fmt.Errorf("failed to update pools: %w", err)
	}

	newBalance := balance - amount
	if _, err := tx.Exec(ctx,
		"UPDATE profiles SET balance = $1 WHERE id = $2", newBalance, userID); err != nil {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}

	yesPrice, noPrice := market.Prices(yesPool, noPool)
	if _, err := tx.Exec(ctx,
		"INSERT INTO price_history (id, market_id, yes_price) VALUES ($1, $2, $3)",
		uuid.NewString(), marketID, yesPrice); err != nil {
		return nil, fmt.Errorf("failed to record price: %w", err)
	}

	var posID string
	var oldShares, oldAvg float64
	err = tx.QueryRow(ctx,
		"SELECT id, shares, avg_price FROM positions WHERE user_id = $1 AND market_id = $2 AND side = $3 FOR UPDATE",
		userID, marketID, side).Scan(&posID, &oldShares, &oldAvg)
	switch {
	case err == nil:
		newShares, newAvg := market.Merge(oldShares, oldAvg, shares, amount)
		if _, err := tx.Exec(ctx,
			"UPDATE positions SET shares = $1, avg_price = $2 WHERE id = $3",
			newShares, newAvg, posID); err != nil {
			return nil, fmt.Errorf("failed to merge position: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := tx.Exec(ctx,
			"INSERT INTO positions (id, user_id, market_id, side, shares, avg_price) VALUES ($1, $2, $3, $4, $5, $6)",
			uuid.NewString(), userID, marketID, side, shares, price); err != nil {
			return nil, fmt.Errorf("failed to create position: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to get position: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, market_id, side, shares, price_per_share, total_cost, balance_after)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), userID, marketID, side, shares, price, amount, newBalance); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &TradeReceipt{
		MarketID:     marketID,
		Side:         side,
		Shares:       shares,
		Price:        price,
		TotalCost:    amount,
		BalanceAfter: newBalance,
		YesPrice:     yesPrice,
		NoPrice:      noPrice,
	}, nil
}

// Settlement summarizes a committed resolution.
type Settlement struct {
	MarketID    string      `json:"market_id"`
	Outcome     models.Side `json:"outcome"`
	Winners     int         `json:"winners"`
	TotalPayout float64     `json:"total_payout"`
}

// ResolveMarket declares the outcome and pays every holder of the winning
// side $1 per share in a single transaction. The status flip is conditional
// on the market not already being resolved, so a second resolution (or a
// concurrent one) is rejected and can never double-pay. Losing positions are
// left untouched as history. A market with no winners settles with zero payout.
func (db *DB) ResolveMarket(ctx context.Context, marketID string, outcome models.Side) (*Settlement, error) {
	if !outcome.Valid() {
		return nil, ErrInvalidSide
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		"UPDATE markets SET status = 'resolved', resolution = $2 WHERE id = $1 AND status <> 'resolved'",
		marketID, outcome)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve market: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := tx.QueryRow(ctx, "SELECT status FROM markets WHERE id = $1", marketID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMarketNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get market: %w", err)
		}
		return nil, ErrAlreadyResolved
	}

	rows, err := tx.Query(ctx,
		"SELECT user_id, shares FROM positions WHERE market_id = $1 AND side = $2",
		marketID, outcome)
	if err != nil {
		return nil, fmt.Errorf("failed to get winning positions: %w", err)
	}

	type payout struct {
		userID string
		shares float64
	}
	var payouts []payout
	for rows.Next() {
		var p payout
		if err := rows.Scan(&p.userID, &p.shares); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		payouts = append(payouts, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	settlement := &Settlement{MarketID: marketID, Outcome: outcome}
	for _, p := range payouts {
		if _, err := tx.Exec(ctx,
			"UPDATE profiles SET balance = balance + $1 WHERE id = $2",
			p.shares, p.userID); err != nil {
			return nil, fmt.Errorf("failed to credit payout: %w", err)
		}
		settlement.Winners++
		settlement.TotalPayout += p.shares
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return settlement, nil
}

// GetPositions retrieves a user's positions in one market, at most one per side.
func (db *DB) GetPositions(ctx context.Context, userID, marketID string) ([]models.Position, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, market_id, side, shares, avg_price, created_at
		 FROM positions WHERE user_id = $1 AND market_id = $2`,
		userID, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.ID, &p.UserID, &p.MarketID, &p.Side, &p.Shares, &p.AvgPrice, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// UserPosition is a position joined with the state of its market, enough to
// mark it to the current pool price.
type UserPosition struct {
	models.Position
	Question   string              `json:"question"`
	Status     models.MarketStatus `json:"market_status"`
	Resolution models.Side         `json:"market_resolution,omitempty"`
	YesPool    float64             `json:"-"`
	NoPool     float64             `json:"-"`
}

// Holding converts the joined row into the valuation core's input.
func (up UserPosition) Holding() market.Holding {
	return market.Holding{
		Side:    up.Side,
		Shares:  up.Shares,
		Status:  up.Status,
		YesPool: up.YesPool,
		NoPool:  up.NoPool,
	}
}

// GetUserPositions retrieves all of a user's positions with market state,
// newest first.
func (db *DB) GetUserPositions(ctx context.Context, userID string) ([]UserPosition, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT p.id, p.user_id, p.market_id, p.side, p.shares, p.avg_price, p.created_at,
		        m.question, m.status, m.resolution, m.yes_pool, m.no_pool
		 FROM positions p JOIN markets m ON p.market_id = m.id
		 WHERE p.user_id = $1
		 ORDER BY p.created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user positions: %w", err)
	}
	defer rows.Close()

	var positions []UserPosition
	for rows.Next() {
		var up UserPosition
		if err := rows.Scan(&up.ID, &up.UserID, &up.MarketID, &up.Side, &up.Shares, &up.AvgPrice, &up.CreatedAt,
			&up.Question, &up.Status, &up.Resolution, &up.YesPool, &up.NoPool); err != nil {
			return nil, fmt.Errorf("failed to scan user position: %w", err)
		}
		positions = append(positions, up)
	}
	return positions, rows.Err()
}

// GetAllHoldings retrieves every position joined with its market, grouped by
// user, for leaderboard valuation.
func (db *DB) GetAllHoldings(ctx context.Context) (map[string][]market.Holding, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT p.user_id, p.side, p.shares, m.status, m.yes_pool, m.no_pool
		 FROM positions p JOIN markets m ON p.market_id = m.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get holdings: %w", err)
	}
	defer rows.Close()

	holdings := make(map[string][]market.Holding)
	for rows.Next() {
		var userID string
		var h market.Holding
		if err := rows.Scan(&userID, &h.Side, &h.Shares, &h.Status, &h.YesPool, &h.NoPool); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings[userID] = append(holdings[userID], h)
	}
	return holdings, rows.Err()
}

// GetUserTransactions retrieves a user's trade history, most recent first.
func (db *DB) GetUserTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, market_id, side, shares, price_per_share, total_cost, balance_after, created_at
		 FROM transactions WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.MarketID, &t.Side, &t.Shares,
			&t.PricePerShare, &t.TotalCost, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// GetPriceHistory retrieves a market's price series, oldest first.
func (db *DB) GetPriceHistory(ctx context.Context, marketID string) ([]models.PricePoint, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, market_id, yes_price, recorded_at
		 FROM price_history WHERE market_id = $1
		 ORDER BY recorded_at ASC`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	defer rows.Close()

	var points []models.PricePoint
	for rows.Next() {
		var pp models.PricePoint
		if err := rows.Scan(&pp.ID, &pp.MarketID, &pp.YesPrice, &pp.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		points = append(points, pp)
	}
	return points, rows.Err()
}
