package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type fakeBackend struct {
	logoutBodies []map[string]string
	phoneBodies  []map[string]string
	authHeaders  []string
	phoneStatus  int
}

func (f *fakeBackend) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/users/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			json.NewEncoder(w).Encode(map[string]any{"status_code": 401, "message": "Invalid email or password"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status_code": 200, "access_token": "jwt-1", "refresh_token": "refresh-1"})
	})
	r.Get("/users/getuser", func(w http.ResponseWriter, r *http.Request) {
		f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"status_code": 200, "name": "Asha"})
	})
	r.Post("/users/logout", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.logoutBodies = append(f.logoutBodies, body)
		json.NewEncoder(w).Encode(map[string]any{"status_code": 200})
	})
	r.Post("/users/phone", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.phoneBodies = append(f.phoneBodies, body)
		json.NewEncoder(w).Encode(map[string]any{"status_code": f.phoneStatus})
	})
	return r
}

func newClient(t *testing.T, backend *fakeBackend) (*Client, *MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(backend.router())
	t.Cleanup(srv.Close)
	store := NewMemoryStore()
	return NewClient(srv.URL, store, time.Second), store
}

func TestLoginPersistsTokensAndProfile(t *testing.T) {
	backend := &fakeBackend{}
	client, store := newClient(t, backend)

	user, err := client.Login(context.Background(), "asha@example.com", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user["name"] != "Asha" {
		t.Fatalf("unexpected user %v", user)
	}
	if jwt, _ := store.Get(KeyJWT); jwt != "jwt-1" {
		t.Fatalf("expected jwt-1, got %q", jwt)
	}
	if refresh, _ := store.Get(KeyRefresh); refresh != "refresh-1" {
		t.Fatalf("expected refresh-1, got %q", refresh)
	}
	if _, ok := store.Get(KeyUserInfo); !ok {
		t.Fatal("expected user info to be stored")
	}
	if len(backend.authHeaders) != 1 || backend.authHeaders[0] != "Bearer jwt-1" {
		t.Fatalf("expected bearer header on getuser, got %v", backend.authHeaders)
	}
}

func TestLoginRejected(t *testing.T) {
	client, store := newClient(t, &fakeBackend{})

	_, err := client.Login(context.Background(), "asha@example.com", "wrong")
	if !errors.Is(err, ErrLoginRejected) {
		t.Fatalf("expected ErrLoginRejected, got %v", err)
	}
	if _, ok := store.Get(KeyJWT); ok {
		t.Fatal("expected no token after rejected login")
	}
}

func TestLogoutSendsRefreshAndClears(t *testing.T) {
	backend := &fakeBackend{}
	client, store := newClient(t, backend)
	store.Set(KeyJWT, "jwt-1")
	store.Set(KeyRefresh, "refresh-1")
	store.Set(KeyUserInfo, "{}")

	if err := client.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(backend.logoutBodies) != 1 || backend.logoutBodies[0]["refresh_token"] != "refresh-1" {
		t.Fatalf("unexpected logout bodies %v", backend.logoutBodies)
	}
	for _, key := range SessionKeys {
		if _, ok := store.Get(key); ok {
			t.Fatalf("expected %s cleared", key)
		}
	}
}

func TestValidatePhone(t *testing.T) {
	cases := map[string]error{
		"9876543210":  nil,
		"6000000000":  nil,
		"5876543210":  ErrInvalidPhone,
		"98765":       ErrInvalidPhone,
		"98765432101": ErrInvalidPhone,
		"":            ErrPhoneRequired,
	}
	for phone, want := range cases {
		if err := ValidatePhone(phone); !errors.Is(err, want) {
			t.Fatalf("phone %q: expected %v, got %v", phone, want, err)
		}
	}
}

func TestSubmitPhone(t *testing.T) {
	backend := &fakeBackend{phoneStatus: 201}
	client, _ := newClient(t, backend)

	accepted, err := client.SubmitPhone(context.Background(), "9876543210")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !accepted {
		t.Fatal("expected 201 to be accepted")
	}

	backend.phoneStatus = 409
	accepted, err = client.SubmitPhone(context.Background(), "9876543210")
	if err != nil {
		t.Fatalf("submit duplicate: %v", err)
	}
	if accepted {
		t.Fatal("expected duplicate number to be reported")
	}

	if _, err := client.SubmitPhone(context.Background(), "12345"); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
	if len(backend.phoneBodies) != 2 || backend.phoneBodies[0]["phone_number"] != "9876543210" {
		t.Fatalf("unexpected phone bodies %v", backend.phoneBodies)
	}
}

func TestNonSuccessHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"boom"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, NewMemoryStore(), time.Second)
	if _, err := client.GetUser(context.Background()); !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
}
