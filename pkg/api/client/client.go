package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides typed access to the identity API for gateway processes
// and tooling.
type Client struct {
	baseURL      string
	gatewayToken string
	httpClient   *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithGatewayToken attaches the shared gateway secret to trusted-caller
// requests.
func WithGatewayToken(token string) Option {
	return func(c *Client) {
		c.gatewayToken = strings.TrimSpace(token)
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4600"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, trusted bool, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if trusted && c.gatewayToken != "" {
		req.Header.Set("X-Gateway-Token", c.gatewayToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Message)
}

// Account reflects API account payloads. Secret is only populated on
// responses to creation and registration calls.
type Account struct {
	Username    string `json:"username"`
	Secret      string `json:"secret,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Linked      string `json:"linked,omitempty"`
	DisplayName string `json:"displayName"`
}

// AccountResponse wraps a single-account API body.
type AccountResponse struct {
	Account Account `json:"account"`
	Success bool    `json:"success"`
}

// CreateAnonymous provisions an ephemeral identity.
func (c *Client) CreateAnonymous(ctx context.Context, name string) (AccountResponse, error) {
	body := map[string]string{"name": name}
	var resp AccountResponse
	if err := c.do(ctx, http.MethodPost, "/v1/accounts/anonymous", body, false, &resp); err != nil {
		return AccountResponse{}, err
	}
	return resp, nil
}

// RegisterRequest carries a named registration.
type RegisterRequest struct {
	Username      string `json:"username"`
	Name          string `json:"name"`
	Temporary     bool   `json:"temporary"`
	Linked        string `json:"linked,omitempty"`
	LinkedSecret  string `json:"linkedSecret,omitempty"`
	ControlSecret string `json:"controlSecret,omitempty"`
}

// Register creates a named account, honoring linkage and takeover rules.
func (c *Client) Register(ctx context.Context, reg RegisterRequest) (AccountResponse, error) {
	var resp AccountResponse
	if err := c.do(ctx, http.MethodPost, "/v1/accounts/register", reg, false, &resp); err != nil {
		return AccountResponse{}, err
	}
	return resp, nil
}

// UpdateRequest mutates an owned account; NewUsername triggers a rename.
type UpdateRequest struct {
	Username    string `json:"username"`
	Secret      string `json:"secret"`
	Name        string `json:"name,omitempty"`
	NewUsername string `json:"newUsername,omitempty"`
}

// Update edits or renames an account.
func (c *Client) Update(ctx context.Context, upd UpdateRequest) (AccountResponse, error) {
	var resp AccountResponse
	if err := c.do(ctx, http.MethodPost, "/v1/accounts/update", upd, false, &resp); err != nil {
		return AccountResponse{}, err
	}
	return resp, nil
}

// BatchResponse carries public projections; Partial marks omitted keys.
type BatchResponse struct {
	Data    []Account `json:"data"`
	Partial bool      `json:"partial"`
	Success bool      `json:"success"`
}

// BatchPublic reads public projections for up to 20 usernames.
func (c *Client) BatchPublic(ctx context.Context, usernames []string) (BatchResponse, error) {
	body := map[string][]string{"users": usernames}
	var resp BatchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/accounts/batch", body, false, &resp); err != nil {
		return BatchResponse{}, err
	}
	return resp, nil
}

// LoginResponse captures the gateway login payload.
type LoginResponse struct {
	Username   string         `json:"username"`
	ClientData map[string]any `json:"clientData"`
	ServerData map[string]any `json:"serverData"`
}

// Login performs the trusted-caller credential check on behalf of the
// gateway. Requires WithGatewayToken.
func (c *Client) Login(ctx context.Context, username, secret string) (LoginResponse, error) {
	body := map[string]any{"authData": map[string]string{"username": username, "secret": secret}}
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/login", body, true, &resp); err != nil {
		return LoginResponse{}, err
	}
	return resp, nil
}
