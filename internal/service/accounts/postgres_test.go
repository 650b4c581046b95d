package accounts_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/zhouzirui/voice-interview/client/internal/service/accounts"
)

func openTestRepository(t *testing.T) *accounts.PostgresRepository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	repo, err := accounts.OpenPostgres(context.Background(), url)
	if err != nil {
		t.Fatalf("OpenPostgres err: %v", err)
	}
	t.Cleanup(repo.Close)
	return repo
}

func TestPostgresRepositoryRoundTrip(t *testing.T) {
	repo := openTestRepository(t)
	svc := accounts.NewServiceWithRepository(repo)
	ctx := context.Background()

	a := uuid.NewString() + "@example.com"
	b := uuid.NewString() + "@example.com"
	svc.Register(ctx, a, "secret", "A")
	svc.Register(ctx, b, "secret", "B")

	tokens, err := svc.Login(ctx, a, "secret")
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}
	phone := "9" + uuid.NewString()[:9]
	if err := svc.SavePhone(ctx, a, phone); err != nil {
		t.Fatalf("SavePhone err: %v", err)
	}
	if err := svc.SavePhone(ctx, b, phone); !errors.Is(err, accounts.ErrPhoneTaken) {
		t.Fatalf("expected ErrPhoneTaken, got %v", err)
	}

	acct, err := svc.Authenticate(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate err: %v", err)
	}
	if acct.Phone != phone {
		t.Fatalf("expected phone %s, got %s", phone, acct.Phone)
	}
}

func TestPostgresRepositoryUnknownEmail(t *testing.T) {
	repo := openTestRepository(t)
	if _, err := repo.FindByEmail(context.Background(), "missing-"+uuid.NewString()); !errors.Is(err, accounts.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
