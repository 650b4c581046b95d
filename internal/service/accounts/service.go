package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/zhouzirui/voice-interview/client/internal/model/account"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("authentication failed")
	ErrPhoneTaken         = errors.New("phone number already registered")
)

// Service authenticates candidates against a Repository and keeps issued
// tokens in memory.
type Service struct {
	repo Repository

	mu      sync.RWMutex
	access  map[string]string // access token -> email
	refresh map[string]string // refresh token -> access token
}

// NewService uses an in-memory repository.
func NewService() *Service {
	return NewServiceWithRepository(NewMemoryRepository())
}

// NewServiceWithRepository uses repo for account storage.
func NewServiceWithRepository(repo Repository) *Service {
	return &Service{
		repo:    repo,
		access:  make(map[string]string),
		refresh: make(map[string]string),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register adds or replaces a candidate account. The password is stored as a bcrypt hash.
func (s *Service) Register(ctx context.Context, email, password, name string) (account.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return account.Account{}, fmt.Errorf("hash password: %w", err)
	}
	return s.repo.Save(ctx, account.Account{
		ID:        uuid.NewString(),
		Email:     normalizeEmail(email),
		Name:      name,
		Password:  string(hash),
		CreatedAt: time.Now().UTC(),
	})
}

// Login verifies credentials and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, email, password string) (account.Tokens, error) {
	email = normalizeEmail(email)
	acct, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		return account.Tokens{}, ErrInvalidCredentials
	}
	if err != nil {
		return account.Tokens{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.Password), []byte(password)) != nil {
		return account.Tokens{}, ErrInvalidCredentials
	}

	tokens := account.Tokens{AccessToken: uuid.NewString(), RefreshToken: uuid.NewString()}
	s.mu.Lock()
	s.access[tokens.AccessToken] = email
	s.refresh[tokens.RefreshToken] = tokens.AccessToken
	s.mu.Unlock()
	return tokens, nil
}

// Authenticate resolves an access token to its account.
func (s *Service) Authenticate(ctx context.Context, token string) (account.Account, error) {
	s.mu.RLock()
	email, ok := s.access[strings.TrimSpace(token)]
	s.mu.RUnlock()
	if !ok {
		return account.Account{}, ErrInvalidToken
	}

	acct, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		return account.Account{}, ErrInvalidToken
	}
	return acct, err
}

// Logout revokes the refresh token and the access token issued with it.
func (s *Service) Logout(_ context.Context, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if accessToken, ok := s.refresh[refreshToken]; ok {
		delete(s.access, accessToken)
		delete(s.refresh, refreshToken)
	}
}

// Revoke invalidates an access token, used to simulate expiry.
func (s *Service) Revoke(_ context.Context, accessToken string) {
	s.mu.Lock()
	delete(s.access, accessToken)
	s.mu.Unlock()
}

// SavePhone records the candidate's mobile number.
func (s *Service) SavePhone(ctx context.Context, email, phone string) error {
	err := s.repo.SetPhone(ctx, normalizeEmail(email), phone)
	if errors.Is(err, ErrAccountNotFound) {
		return ErrInvalidToken
	}
	return err
}
