package accounts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/zhouzirui/voice-interview/client/internal/service/accounts"
)

func TestLoginIssuesUsableTokens(t *testing.T) {
	svc := accounts.NewService()
	ctx := context.Background()
	svc.Register(ctx, "Asha@Example.com", "secret", "Asha")

	tokens, err := svc.Login(ctx, "asha@example.com", "secret")
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}
	acct, err := svc.Authenticate(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate err: %v", err)
	}
	if acct.Name != "Asha" {
		t.Fatalf("unexpected account name: %s", acct.Name)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc := accounts.NewService()
	ctx := context.Background()
	svc.Register(ctx, "asha@example.com", "secret", "Asha")

	if _, err := svc.Login(ctx, "asha@example.com", "nope"); !errors.Is(err, accounts.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	svc := accounts.NewService()
	ctx := context.Background()
	svc.Register(ctx, "asha@example.com", "secret", "Asha")
	tokens, _ := svc.Login(ctx, "asha@example.com", "secret")

	svc.Logout(ctx, tokens.RefreshToken)
	if _, err := svc.Authenticate(ctx, tokens.AccessToken); !errors.Is(err, accounts.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after logout, got %v", err)
	}
}

func TestSavePhoneRejectsDuplicates(t *testing.T) {
	svc := accounts.NewService()
	ctx := context.Background()
	svc.Register(ctx, "a@example.com", "x", "A")
	svc.Register(ctx, "b@example.com", "y", "B")

	if err := svc.SavePhone(ctx, "a@example.com", "9876543210"); err != nil {
		t.Fatalf("SavePhone err: %v", err)
	}
	if err := svc.SavePhone(ctx, "a@example.com", "9876543210"); err != nil {
		t.Fatalf("saving the same number twice should succeed, got %v", err)
	}
	if err := svc.SavePhone(ctx, "b@example.com", "9876543210"); !errors.Is(err, accounts.ErrPhoneTaken) {
		t.Fatalf("expected ErrPhoneTaken, got %v", err)
	}
}

func TestRegisterStoresPasswordHash(t *testing.T) {
	svc := accounts.NewService()
	acct, err := svc.Register(context.Background(), "asha@example.com", "secret", "Asha")
	if err != nil {
		t.Fatalf("Register err: %v", err)
	}
	if acct.Password == "" || acct.Password == "secret" {
		t.Fatalf("expected hashed password, got %q", acct.Password)
	}
}

func TestReRegisterKeepsPhone(t *testing.T) {
	svc := accounts.NewService()
	ctx := context.Background()
	svc.Register(ctx, "asha@example.com", "secret", "Asha")
	if err := svc.SavePhone(ctx, "asha@example.com", "9876543210"); err != nil {
		t.Fatalf("SavePhone err: %v", err)
	}

	svc.Register(ctx, "asha@example.com", "changed", "Asha K")
	tokens, err := svc.Login(ctx, "asha@example.com", "changed")
	if err != nil {
		t.Fatalf("Login with new password err: %v", err)
	}
	acct, _ := svc.Authenticate(ctx, tokens.AccessToken)
	if acct.Phone != "9876543210" || acct.Name != "Asha K" {
		t.Fatalf("unexpected account after re-register: %+v", acct)
	}
}
