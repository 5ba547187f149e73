package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/fairwaymarkets/fairway/internal/api"
	"github.com/fairwaymarkets/fairway/internal/auth"
	"github.com/fairwaymarkets/fairway/internal/config"
	"github.com/fairwaymarkets/fairway/internal/db"
	"github.com/fairwaymarkets/fairway/internal/market"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type WSClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

var (
	clients   = make(map[*WSClient]bool)
	clientsMu sync.RWMutex
)

// marketTick is the price summary pushed to websocket clients.
type marketTick struct {
	ID       string  `json:"id"`
	Question string  `json:"question"`
	Status   string  `json:"status"`
	YesPrice float64 `json:"yes_price"`
	NoPrice  float64 `json:"no_price"`
}

func broadcastPrices(database *db.DB) {
	markets, err := database.ListMarkets(context.Background())
	if err != nil {
		log.Printf("Failed to load markets for broadcast: %v", err)
		return
	}

	ticks := make([]marketTick, 0, len(markets))
	for _, m := range markets {
		yes, no := market.Prices(m.YesPool, m.NoPool)
		ticks = append(ticks, marketTick{
			ID:       m.ID,
			Question: m.Question,
			Status:   string(m.Status),
			YesPrice: yes,
			NoPrice:  no,
		})
	}

	data, err := json.Marshal(map[string]interface{}{"markets": ticks})
	if err != nil {
		log.Printf("Failed to marshal price feed: %v", err)
		return
	}

	clientsMu.RLock()
	var dead []*WSClient
	for client := range clients {
		client.mu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			dead = append(dead, client)
		}
	}
	clientsMu.RUnlock()

	if len(dead) > 0 {
		clientsMu.Lock()
		for _, client := range dead {
			delete(clients, client)
		}
		clientsMu.Unlock()
	}
}

func handleWebSocket(database *db.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Failed to upgrade connection: %v", err)
			return
		}

		client := &WSClient{conn: conn}
		clientsMu.Lock()
		clients[client] = true
		clientsMu.Unlock()

		// Send initial prices
		broadcastPrices(database)

		// Keep connection alive and handle disconnection
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				clientsMu.Lock()
				delete(clients, client)
				clientsMu.Unlock()
				break
			}
		}
	}
}

// Main entry point: sets up configuration, database, and HTTP server
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

	authService := auth.NewAuthService(database, cfg.Auth.JWTSecret, cfg.TokenTTL(), cfg.Market.StartingBalance)

	handler := api.NewHandler(database, authService, cfg.Market.StartingBalance, cfg.Market.InitialLiquidity)
	handler.Notify = func() { broadcastPrices(database) }

	r := chi.NewRouter()

	// Enable CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WebSocket price feed
	r.Get("/ws", handleWebSocket(database))

	// Public endpoints
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)
	r.Get("/markets", handler.ListMarkets)
	r.Get("/markets/{id}", handler.GetMarket)
	r.Get("/markets/{id}/history", handler.GetPriceHistory)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(handler.JWTAuthMiddleware)
		r.Get("/portfolio", handler.Portfolio)
		r.Get("/leaderboard", handler.Leaderboard)

		r.Group(func(r chi.Router) {
			r.Use(api.RateLimit(cfg.Server.RatePerSecond, cfg.Server.RateBurst))
			r.Post("/markets", handler.CreateMarket)
			r.Post("/markets/{id}/buy", handler.Buy)
		})

		// Admin endpoints
		r.Group(func(r chi.Router) {
			r.Use(handler.AdminMiddleware)
			r.Post("/markets/{id}/close", handler.CloseMarket)
			r.Post("/markets/{id}/resolve", handler.Resolve)
		})
	})

	// Close markets whose close date has passed
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval())
		for range ticker.C {
			n, err := database.CloseExpiredMarkets(context.Background(), time.Now())
			if err != nil {
				log.Printf("Failed to close expired markets: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Closed %d expired market(s)", n)
				broadcastPrices(database)
			}
		}
	}()

	// Start periodic price broadcast
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		for range ticker.C {
			broadcastPrices(database)
		}
	}()

	log.Printf("Starting server on %s", cfg.Server.Addr)
	if err := http.ListenAndServe(cfg.Server.Addr, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
