package auth

import (
	"context"
	"log"
	"sync"
)

// Navigator moves the user interface back to the application root.
type Navigator interface {
	NavigateRoot()
}

// LogoutNotifier informs the server that a refresh token was abandoned.
type LogoutNotifier interface {
	NotifyLogout(ctx context.Context, refreshToken string) error
}

// ForcedLogout ends the local session after the server rejects the credential.
// It runs at most once.
type ForcedLogout struct {
	store    Store
	notifier LogoutNotifier
	nav      Navigator
	once     sync.Once
}

// NewForcedLogout wires the logout steps.
func NewForcedLogout(store Store, notifier LogoutNotifier, nav Navigator) *ForcedLogout {
	return &ForcedLogout{store: store, notifier: notifier, nav: nav}
}

// HandleAuthFailure notifies the server (best-effort), clears credentials and navigates to root.
func (f *ForcedLogout) HandleAuthFailure(ctx context.Context) {
	f.once.Do(func() {
		if refresh, ok := f.store.Get(KeyRefresh); ok && refresh != "" && f.notifier != nil {
			if err := f.notifier.NotifyLogout(ctx, refresh); err != nil {
				log.Printf("[auth] logout notification failed: %v", err)
			}
		}
		if err := f.store.Delete(SessionKeys...); err != nil {
			log.Printf("[auth] clearing credentials failed: %v", err)
		}
		log.Printf("[auth] session expired, returning to root")
		if f.nav != nil {
			f.nav.NavigateRoot()
		}
	})
}
