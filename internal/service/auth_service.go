package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"rhythmhub/internal/model"
	"rhythmhub/internal/repository"
)

var (
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// AuthService issues and validates session tokens. The token's jti claim
// is the client-instance token id: every hub connection opened by the
// same client carries the same jti, and a fresh sign-in mints a new one.
type AuthService struct {
	accounts  repository.AccountRepo
	jwtSecret []byte
}

// NewAuthService creates a new auth service
func NewAuthService(accounts repository.AccountRepo, secret string) *AuthService {
	return &AuthService{accounts: accounts, jwtSecret: []byte(secret)}
}

// Login validates credentials and returns a session token
func (s *AuthService) Login(ctx context.Context, username, password string) (*model.LoginResponse, error) {
	account, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.IssueToken(account.ID)
}

// IssueToken creates a session token for the given user with a fresh
// client-instance id.
func (s *AuthService) IssueToken(userID int64) (*model.LoginResponse, error) {
	claims := &model.SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &model.LoginResponse{Token: tokenString, UserID: userID}, nil
}

// ValidateToken validates a session JWT and returns its claims.
func (s *AuthService) ValidateToken(tokenString string) (*model.SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.SessionClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
