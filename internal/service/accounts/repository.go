package accounts

import (
	"context"
	"errors"
	"sync"

	"github.com/zhouzirui/voice-interview/client/internal/model/account"
)

// ErrAccountNotFound is returned by repositories for unknown emails.
var ErrAccountNotFound = errors.New("account not found")

// Repository persists candidate accounts. Emails are stored lower-cased.
type Repository interface {
	// Save inserts the account or replaces the one with the same email.
	Save(ctx context.Context, acct account.Account) (account.Account, error)
	FindByEmail(ctx context.Context, email string) (account.Account, error)
	// SetPhone returns ErrPhoneTaken when another account owns phone.
	SetPhone(ctx context.Context, email, phone string) error
}

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]account.Account // keyed by email
	phones   map[string]string          // phone -> email
}

// NewMemoryRepository keeps accounts in process memory.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		accounts: make(map[string]account.Account),
		phones:   make(map[string]string),
	}
}

func (r *memoryRepository) Save(_ context.Context, acct account.Account) (account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.accounts[acct.Email]; ok {
		acct.ID = prev.ID
		acct.CreatedAt = prev.CreatedAt
		if acct.Phone == "" {
			acct.Phone = prev.Phone
		}
	}
	r.accounts[acct.Email] = acct
	return acct, nil
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) (account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acct, ok := r.accounts[email]
	if !ok {
		return account.Account{}, ErrAccountNotFound
	}
	return acct, nil
}

func (r *memoryRepository) SetPhone(_ context.Context, email, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.phones[phone]; ok && owner != email {
		return ErrPhoneTaken
	}
	acct, ok := r.accounts[email]
	if !ok {
		return ErrAccountNotFound
	}
	if acct.Phone != "" && acct.Phone != phone {
		delete(r.phones, acct.Phone)
	}
	acct.Phone = phone
	r.accounts[email] = acct
	r.phones[phone] = email
	return nil
}
