package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fairwaymarkets/fairway/internal/db"
	"github.com/fairwaymarkets/fairway/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles account registration and authentication.
type AuthService struct {
	DB        *db.DB
	secret    []byte
	tokenTTL  time.Duration
	endowment float64
}

// NewAuthService creates a new auth service. endowment is the cash balance
// granted to every new account.
func NewAuthService(database *db.DB, secret string, tokenTTL time.Duration, endowment float64) *AuthService {
	return &AuthService{
		DB:        database,
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		endowment: endowment,
	}
}

// Register creates a new profile with a hashed password and the starting endowment.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*models.Profile, error) {
	// Validate input
	if name == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("valid email required")
	}
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	if len(name) > 100 {
		return nil, fmt.Errorf("name too long (max 100 characters)")
	}
	if len(password) > 72 {
		return nil, fmt.Errorf("password too long (max 72 characters)")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	profile, err := s.DB.CreateProfile(ctx, name, email, string(hashedPassword), s.endowment)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return profile, nil
}

// Login verifies credentials and generates a JWT
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	profile, err := s.DB.GetProfileByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": profile.ID,
		"email":   profile.Email,
		"exp":     time.Now().Add(s.tokenTTL).Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// GetUserFromToken extracts the profile id from a JWT
func (s *AuthService) GetUserFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		userID, ok := claims["user_id"].(string)
		if !ok {
			return "", fmt.Errorf("invalid token claims")
		}
		return userID, nil
	}
	return "", fmt.Errorf("invalid token")
}
