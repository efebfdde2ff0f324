package tokenstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultAPITimeout bounds each request to the remote token service.
const DefaultAPITimeout = 2 * time.Second

// CurrentTokenResponse is returned by GET /current_token.
type CurrentTokenResponse struct {
	Success bool          `json:"success"`
	Token   *TokenPayload `json:"token,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// TokenPayload describes a token held by the remote service.
type TokenPayload struct {
	Value     string    `json:"value"`
	Name      string    `json:"name,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// UpdateTokenRequest is the body of POST /update_token.
type UpdateTokenRequest struct {
	Token      string    `json:"token"`
	CookieName string    `json:"cookie_name"`
	Domain     string    `json:"domain"`
	Timestamp  time.Time `json:"timestamp"`
}

// UpdateTokenResponse is returned by POST /update_token.
type UpdateTokenResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// APIStoreOption configures an APIStore.
type APIStoreOption func(*APIStore)

// WithHTTPClient sets the HTTP client used for requests to the token service.
func WithHTTPClient(client *http.Client) APIStoreOption {
	return func(a *APIStore) {
		a.client = client
	}
}

// APIStore reads and writes tokens through a remote token service.
type APIStore struct {
	baseURL string
	client  *http.Client
}

// Compile-time check to ensure APIStore implements TokenStore
var _ TokenStore = (*APIStore)(nil)

// NewAPIStore creates an APIStore for the token service at baseURL.
func NewAPIStore(baseURL string, opts ...APIStoreOption) (*APIStore, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid token service URL: %w", err)
	}

	a := &APIStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultAPITimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name implements TokenStore.
func (a *APIStore) Name() string { return "api" }

// Read fetches the current token for name from the service.
func (a *APIStore) Read(ctx context.Context, name string) (string, error) {
	endpoint := a.baseURL + "/current_token?" + url.Values{"token_name": {name}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token service not available: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrTokenNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token service returned status %d", resp.StatusCode)
	}

	var body CurrentTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding token service response: %w", err)
	}

	if !body.Success || body.Token == nil || body.Token.Value == "" {
		return "", ErrTokenNotFound
	}

	slog.InfoContext(ctx, "found token via API", "token_name", name)
	return body.Token.Value, nil
}

// Write pushes the token to the service.
func (a *APIStore) Write(ctx context.Context, token Token) error {
	timestamp := token.UpdatedAt
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(UpdateTokenRequest{
		Token:      token.Value,
		CookieName: token.Name,
		Domain:     token.Domain,
		Timestamp:  timestamp,
	})
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/update_token", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("token service not available: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("reading token service response: %w", err)
	}

	var body UpdateTokenResponse
	if resp.StatusCode != http.StatusOK || json.Unmarshal(raw, &body) != nil || !body.Success {
		return fmt.Errorf("token service returned error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	slog.InfoContext(ctx, "saved token via API", "token_name", token.Name)
	return nil
}
