package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

var (
	// ErrRequestFailed wraps non-2xx HTTP responses.
	ErrRequestFailed = errors.New("auth: request failed")
	// ErrLoginRejected is returned when the server answers login with a non-200 status_code.
	ErrLoginRejected = errors.New("auth: login rejected")
	// ErrInvalidPhone is returned for numbers outside the accepted format.
	ErrInvalidPhone = errors.New("auth: enter a valid 10-digit mobile number")
	// ErrPhoneRequired is returned for an empty number.
	ErrPhoneRequired = errors.New("auth: mobile number is required")
)

var phonePattern = regexp.MustCompile(`^[6-9]\d{9}$`)

// StatusResponse carries the status_code field every collaborator endpoint returns.
type StatusResponse struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message,omitempty"`
}

// Succeeded reports whether status_code signals success.
func (r StatusResponse) Succeeded() bool {
	return r.StatusCode == http.StatusOK || r.StatusCode == http.StatusCreated
}

// LoginResponse is returned by users/login.
type LoginResponse struct {
	StatusResponse
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Client calls the REST collaborator endpoints, attaching the stored JWT.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      Store
}

// NewClient creates a client rooted at baseURL, for example "http://host/".
func NewClient(baseURL string, store Store, timeout time.Duration) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		store:      store,
	}
}

// Login authenticates and persists the access and refresh tokens plus the user profile.
func (c *Client) Login(ctx context.Context, email, password string) (map[string]any, error) {
	var resp LoginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "users/login", body, &resp); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Message
		if msg == "" {
			msg = "invalid email or password"
		}
		return nil, fmt.Errorf("%s: %w", msg, ErrLoginRejected)
	}

	if err := c.store.Set(KeyJWT, resp.AccessToken); err != nil {
		return nil, err
	}
	if err := c.store.Set(KeyRefresh, resp.RefreshToken); err != nil {
		return nil, err
	}

	user, err := c.GetUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("load user profile: %w", err)
	}
	encoded, err := sonic.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("encode user profile: %w", err)
	}
	if err := c.store.Set(KeyUserInfo, string(encoded)); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser fetches the profile of the authenticated candidate.
func (c *Client) GetUser(ctx context.Context) (map[string]any, error) {
	var user map[string]any
	if err := c.do(ctx, http.MethodGet, "users/getuser", nil, &user); err != nil {
		return nil, err
	}
	return user, nil
}

// NotifyLogout tells the server the refresh token is no longer in use.
func (c *Client) NotifyLogout(ctx context.Context, refreshToken string) error {
	var resp StatusResponse
	return c.do(ctx, http.MethodPost, "users/logout", map[string]string{"refresh_token": refreshToken}, &resp)
}

// Logout notifies the server when a refresh token exists and always clears local credentials.
func (c *Client) Logout(ctx context.Context) error {
	var notifyErr error
	if refresh, ok := c.store.Get(KeyRefresh); ok && refresh != "" {
		notifyErr = c.NotifyLogout(ctx, refresh)
	}
	if err := c.store.Delete(SessionKeys...); err != nil {
		return err
	}
	return notifyErr
}

// ValidatePhone checks a candidate mobile number.
func ValidatePhone(phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ErrPhoneRequired
	}
	if !phonePattern.MatchString(phone) {
		return ErrInvalidPhone
	}
	return nil
}

// SubmitPhone stores the candidate mobile number. It returns false when the
// server reports the number as already registered.
func (c *Client) SubmitPhone(ctx context.Context, phone string) (bool, error) {
	phone = strings.TrimSpace(phone)
	if err := ValidatePhone(phone); err != nil {
		return false, err
	}

	var resp StatusResponse
	if err := c.do(ctx, http.MethodPost, "users/phone", map[string]string{"phone_number": phone}, &resp); err != nil {
		return false, err
	}
	return resp.Succeeded(), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token, ok := c.store.Get(KeyJWT); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure StatusResponse
		_ = sonic.Unmarshal(data, &failure)
		msg := failure.Message
		if msg == "" {
			msg = fmt.Sprintf("%s returned HTTP %d", endpoint, resp.StatusCode)
		}
		log.Printf("[auth] %s %s failed: %s", method, endpoint, msg)
		return fmt.Errorf("%s: %w", msg, ErrRequestFailed)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
