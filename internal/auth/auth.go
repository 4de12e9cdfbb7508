// Package auth registers users, checks passwords and issues opaque session
// tokens.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"visionchat/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrMissingFields      = errors.New("username and password are required")
)

// DefaultTokenTTL applies when the service is built with a zero TTL.
const DefaultTokenTTL = 24 * time.Hour

// UserStore is the persistence the service needs.
type UserStore interface {
	Create(ctx context.Context, username, passwordHash string) (*store.User, error)
	FindByUsername(ctx context.Context, username string) (*store.User, error)
}

// Service implements register, login and token checks.
type Service struct {
	users  UserStore
	tokens TokenStore
	cost   int
	ttl    time.Duration
}

// NewService builds a Service. A cost outside bcrypt's range uses bcrypt.DefaultCost.
func NewService(users UserStore, tokens TokenStore, cost int, ttl time.Duration) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{users: users, tokens: tokens, cost: cost, ttl: ttl}
}

// maxBcryptInput is the longest input bcrypt hashes without truncation.
const maxBcryptInput = 72

// bcryptInput returns password unchanged when bcrypt can take it whole and
// the base64 SHA-256 digest otherwise.
func bcryptInput(password string) []byte {
	if len(password) <= maxBcryptInput {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// Hash returns the bcrypt hash of password. Passwords longer than bcrypt's
// input limit are digested first.
func (s *Service) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword(bcryptInput(password), s.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Register creates a user. Duplicates return store.ErrUsernameTaken.
func (s *Service) Register(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrMissingFields
	}
	h, err := s.Hash(password)
	if err != nil {
		return err
	}
	_, err = s.users.Create(ctx, username, h)
	return err
}

// Login checks the password and returns a new session token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", ErrInvalidCredentials
	}
	u, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), bcryptInput(password)) != nil {
		return "", ErrInvalidCredentials
	}
	token := uuid.NewString()
	if err := s.tokens.Put(ctx, token, u.Username, s.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Authenticate maps a token to its username.
func (s *Service) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthorized
	}
	return s.tokens.Get(ctx, token)
}

// Logout revokes a token. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Delete(ctx, strings.TrimSpace(token))
}
