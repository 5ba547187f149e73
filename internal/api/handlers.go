package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairwaymarkets/fairway/internal/auth"
	"github.com/fairwaymarkets/fairway/internal/db"
	"github.com/fairwaymarkets/fairway/internal/market"
	"github.com/fairwaymarkets/fairway/internal/models"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	DB          *db.DB
	AuthService *auth.AuthService

	// Economic constants from configuration.
	Endowment        float64
	InitialLiquidity float64

	// Notify, when set, is called after a trade or resolution commits so the
	// server can push fresh prices to websocket clients.
	Notify func()
}

// NewHandler creates a new handler
func NewHandler(database *db.DB, authService *auth.AuthService, endowment, initialLiquidity float64) *Handler {
	return &Handler{
		DB:               database,
		AuthService:      authService,
		Endowment:        endowment,
		InitialLiquidity: initialLiquidity,
	}
}

func (h *Handler) notify() {
	if h.Notify != nil {
		h.Notify()
	}
}

// marketResponse is a market decorated with its current implied prices.
type marketResponse struct {
	models.Market
	YesPrice float64 `json:"yes_price"`
	NoPrice  float64 `json:"no_price"`
}

func toMarketResponse(m models.Market) marketResponse {
	yes, no := market.Prices(m.YesPool, m.NoPool)
	return marketResponse{Market: m, YesPrice: yes, NoPrice: no}
}

// Register handles account registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		http.Error(w, `{"error": "Name, email and password required"}`, http.StatusBadRequest)
		return
	}

	profile, err := h.AuthService.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		http.Error(w, `{"error": "Failed to register"}`, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      profile.ID,
		"name":    profile.Name,
		"email":   profile.Email,
		"balance": profile.Balance,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		http.Error(w, `{"error": "Invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, `{"error": "Authorization header required"}`, http.StatusUnauthorized)
			return
		}

		// Remove "Bearer " prefix if present
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		userID, err := h.AuthService.GetUserFromToken(tokenString)
		if err != nil {
			http.Error(w, `{"error": "Invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "user_id", userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminMiddleware rejects requests from non-admin accounts. Must run after
// JWTAuthMiddleware.
func (h *Handler) AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := r.Context().Value("user_id").(string)
		if !ok {
			http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
			return
		}

		profile, err := h.DB.GetProfile(r.Context(), userID)
		if err != nil {
			http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if !profile.IsAdmin {
			http.Error(w, `{"error": "Admin access required"}`, http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ListMarkets returns all markets with current prices, newest first
func (h *Handler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.DB.ListMarkets(r.Context())
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve markets"}`, http.StatusInternalServerError)
		return
	}

	resp := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		resp = append(resp, toMarketResponse(m))
	}
	json.NewEncoder(w).Encode(resp)
}

// CreateMarket opens a new market seeded with the configured liquidity
func (h *Handler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Question    string    `json:"question"`
		Description string    `json:"description"`
		CloseDate   time.Time `json:"close_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Question == "" {
		http.Error(w, `{"error": "Question required"}`, http.StatusBadRequest)
		return
	}
	if !req.CloseDate.After(time.Now()) {
		http.Error(w, `{"error": "Close date must be in the future"}`, http.StatusBadRequest)
		return
	}

	m, err := h.DB.CreateMarket(r.Context(), req.Question, req.Description, userID, req.CloseDate, h.InitialLiquidity)
	if err != nil {
		http.Error(w, `{"error": "Failed to create market"}`, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toMarketResponse(*m))
}

// GetMarket returns a single market with current prices
func (h *Handler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.DB.GetMarket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, db.ErrMarketNotFound) {
			http.Error(w, `{"error": "Market not found"}`, http.StatusNotFound)
			return
		}
		http.Error(w, `{"error": "Failed to retrieve market"}`, http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(toMarketResponse(*m))
}

// GetPriceHistory returns a market's yes-price series, oldest first
func (h *Handler) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "id")
	if _, err := h.DB.GetMarket(r.Context(), marketID); err != nil {
		if errors.Is(err, db.ErrMarketNotFound) {
			http.Error(w, `{"error": "Market not found"}`, http.StatusNotFound)
			return
		}
		http.Error(w, `{"error": "Failed to retrieve market"}`, http.StatusInternalServerError)
		return
	}

	points, err := h.DB.GetPriceHistory(r.Context(), marketID)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve price history"}`, http.StatusInternalServerError)
		return
	}
	if points == nil {
		points = []models.PricePoint{}
	}
	json.NewEncoder(w).Encode(points)
}

// Buy executes a cash buy of yes or no shares on a market
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Side   models.Side `json:"side"`
		Amount float64     `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	receipt, err := h.DB.ExecuteBuy(r.Context(), userID, chi.URLParam(r, "id"), req.Side, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrMarketNotFound):
			http.Error(w, `{"error": "Market not found"}`, http.StatusNotFound)
		case errors.Is(err, db.ErrInvalidSide),
			errors.Is(err, db.ErrInvalidAmount),
			errors.Is(err, db.ErrInsufficientBalance),
			errors.Is(err, db.ErrMarketNotOpen):
			http.Error(w, `{"error": "`+err.Error()+`"}`, http.StatusBadRequest)
		default:
			http.Error(w, `{"error": "Failed to execute trade"}`, http.StatusInternalServerError)
		}
		return
	}

	h.notify()

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(receipt)
}

// Resolve declares a market's outcome and pays winners. Admin only.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome models.Side `json:"outcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	settlement, err := h.DB.ResolveMarket(r.Context(), chi.URLParam(r, "id"), req.Outcome)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrMarketNotFound):
			http.Error(w, `{"error": "Market not found"}`, http.StatusNotFound)
		case errors.Is(err, db.ErrAlreadyResolved):
			http.Error(w, `{"error": "Market already resolved"}`, http.StatusConflict)
		case errors.Is(err, db.ErrInvalidSide):
			http.Error(w, `{"error": "Outcome must be 'yes' or 'no'"}`, http.StatusBadRequest)
		default:
			http.Error(w, `{"error": "Failed to resolve market"}`, http.StatusInternalServerError)
		}
		return
	}

	h.notify()

	json.NewEncoder(w).Encode(settlement)
}

// CloseMarket stops trading on an open market. Admin only.
func (h *Handler) CloseMarket(w http.ResponseWriter, r *http.Request) {
	err := h.DB.CloseMarket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, db.ErrMarketNotFound):
			http.Error(w, `{"error": "Market not found"}`, http.StatusNotFound)
		case errors.Is(err, db.ErrMarketNotOpen):
			http.Error(w, `{"error": "Market not open"}`, http.StatusBadRequest)
		default:
			http.Error(w, `{"error": "Failed to close market"}`, http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Market closed"})
}

// positionResponse is a user position marked to the current pool price.
type positionResponse struct {
	db.UserPosition
	CurrentValue float64 `json:"current_value"`
}

// Portfolio returns the caller's cash, positions, valuation and trade history
func (h *Handler) Portfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	profile, err := h.DB.GetProfile(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve profile"}`, http.StatusInternalServerError)
		return
	}

	positions, err := h.DB.GetUserPositions(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve positions"}`, http.StatusInternalServerError)
		return
	}

	txns, err := h.DB.GetUserTransactions(r.Context(), userID, 50)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve transactions"}`, http.StatusInternalServerError)
		return
	}
	if txns == nil {
		txns = []models.Transaction{}
	}

	var positionValue float64
	resp := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		value := p.Holding().Value()
		positionValue += value
		resp = append(resp, positionResponse{UserPosition: p, CurrentValue: value})
	}
	totalValue := profile.Balance + positionValue

	json.NewEncoder(w).Encode(map[string]interface{}{
		"balance":        profile.Balance,
		"position_value": positionValue,
		"total_value":    totalValue,
		"pnl":            totalValue - h.Endowment,
		"positions":      resp,
		"transactions":   txns,
	})
}

// Leaderboard ranks all accounts by cash plus current position value.
// Read-only; it never touches market, position or profile state.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.DB.ListProfiles(r.Context())
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve profiles"}`, http.StatusInternalServerError)
		return
	}

	holdings, err := h.DB.GetAllHoldings(r.Context())
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve positions"}`, http.StatusInternalServerError)
		return
	}

	entries := market.Leaderboard(profiles, holdings, h.Endowment)
	if entries == nil {
		entries = []market.Entry{}
	}
	json.NewEncoder(w).Encode(entries)
}
