package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fairwaymarkets/fairway/internal/auth"
	"github.com/fairwaymarkets/fairway/internal/config"
	"github.com/fairwaymarkets/fairway/internal/db"
	"github.com/fairwaymarkets/fairway/internal/market"
	"github.com/fairwaymarkets/fairway/internal/models"

	"github.com/olekukonko/tablewriter"
)

// Seed the database with demo accounts, markets and trades, then print the
// resulting leaderboard. Trades go through the real executor so pools,
// positions, history and balances stay consistent.
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	database, err := db.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(ctx)

	// First check if we already have markets
	markets, err := database.ListMarkets(ctx)
	if err != nil {
		log.Fatalf("Failed to check markets: %v", err)
	}
	if len(markets) > 0 {
		fmt.Printf("Database already has %d markets. No need to seed.\n", len(markets))
		os.Exit(0)
	}

	authService := auth.NewAuthService(database, cfg.Auth.JWTSecret, cfg.TokenTTL(), cfg.Market.StartingBalance)

	admin, err := authService.Register(ctx, "Admin", "admin@fairway.local", "changeme")
	if err != nil {
		log.Fatalf("Failed to create admin: %v", err)
	}
	if _, err := database.Pool.Exec(ctx, "UPDATE profiles SET is_admin = TRUE WHERE id = $1", admin.ID); err != nil {
		log.Fatalf("Failed to promote admin: %v", err)
	}

	alice, err := authService.Register(ctx, "Alice", "alice@fairway.local", "changeme")
	if err != nil {
		log.Fatalf("Failed to create alice: %v", err)
	}
	bob, err := authService.Register(ctx, "Bob", "bob@fairway.local", "changeme")
	if err != nil {
		log.Fatalf("Failed to create bob: %v", err)
	}

	m1, err := database.CreateMarket(ctx,
		"Will we ship the Q4 release on schedule?",
		"Resolves yes if the release is tagged before the cutoff date.",
		admin.ID, time.Now().Add(30*24*time.Hour), cfg.Market.InitialLiquidity)
	if err != nil {
		log.Fatalf("Failed to create market 1: %v", err)
	}

	m2, err := database.CreateMarket(ctx,
		"Will monthly active users pass 10k this quarter?",
		"",
		admin.ID, time.Now().Add(60*24*time.Hour), cfg.Market.InitialLiquidity)
	if err != nil {
		log.Fatalf("Failed to create market 2: %v", err)
	}

	trades := []struct {
		userID   string
		marketID string
		side     models.Side
		amount   float64
	}{
		{alice.ID, m1.ID, models.SideYes, 50},
		{bob.ID, m1.ID, models.SideNo, 30},
		{alice.ID, m1.ID, models.SideYes, 25},
		{bob.ID, m2.ID, models.SideYes, 100},
		{alice.ID, m2.ID, models.SideNo, 40},
	}
	for _, tr := range trades {
		if _, err := database.ExecuteBuy(ctx, tr.userID, tr.marketID, tr.side, tr.amount); err != nil {
			log.Fatalf("Failed to execute seed trade: %v", err)
		}
	}

	// Settle one market so the seed data covers a payout too.
	settlement, err := database.ResolveMarket(ctx, m1.ID, models.SideYes)
	if err != nil {
		log.Fatalf("Failed to resolve market 1: %v", err)
	}
	fmt.Printf("Resolved %q as yes: %d winner(s), $%.2f paid out\n\n",
		m1.Question, settlement.Winners, settlement.TotalPayout)

	profiles, err := database.ListProfiles(ctx)
	if err != nil {
		log.Fatalf("Failed to list profiles: %v", err)
	}
	holdings, err := database.GetAllHoldings(ctx)
	if err != nil {
		log.Fatalf("Failed to load holdings: %v", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Rank", "Name", "Cash", "Positions", "Total", "PnL")
	for _, e := range market.Leaderboard(profiles, holdings, cfg.Market.StartingBalance) {
		table.Append(
			fmt.Sprintf("%d", e.Rank),
			e.Profile.Name,
			fmt.Sprintf("$%.2f", e.Profile.Balance),
			fmt.Sprintf("$%.2f", e.PositionValue),
			fmt.Sprintf("$%.2f", e.TotalValue),
			fmt.Sprintf("%+.2f", e.PnL),
		)
	}
	table.Render()

	fmt.Println("\nSuccessfully seeded the database!")
}
