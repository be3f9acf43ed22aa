// Package client is a Go client for the shopauth API. It holds the session
// cookies and transparently recovers from access token expiry: a 401 with
// code TOKEN_EXPIRED triggers one refresh attempt followed by one replay of
// the original request. Any other failure, or a second 401, surfaces as
// ErrSessionExpired so callers can send the user back to signin.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// tokenExpiredCode is the 401 code that marks a recoverable failure.
const tokenExpiredCode = "TOKEN_EXPIRED"

// ErrSessionExpired is returned when the session cannot be recovered and
// the user must sign in again.
var ErrSessionExpired = errors.New("session expired, please sign in again")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client is a session-holding client for the shopauth API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	mu          sync.Mutex
	accessToken string
}

// Option modifies a Client instance.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. A cookie jar is attached
// when the given client has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the API at baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  zap.NewNop(),
	}
	for _, opt := range options {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		c.http.Jar = jar
	}

	return c, nil
}

// User is the account representation returned by the API.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Shop is a tenant owned by the authenticated user.
type Shop struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerID     string    `json:"ownerId"`
	Description string    `json:"description"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ShopView is the sanitized tenant view returned by the access check.
type ShopView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
}

// Profile is the authenticated user together with their shops.
type Profile struct {
	User  *User  `json:"user"`
	Shops []Shop `json:"shops"`
}

type authResponse struct {
	User        *User  `json:"user"`
	AccessToken string `json:"accessToken"`
}

// ShopVerification is the access check result: the sanitized shop view
// together with the authenticated user.
type ShopVerification struct {
	Shop *ShopView `json:"shop"`
	User *User     `json:"user"`
}

// AccessToken returns the access token from the most recent signup, signin
// or refresh response. The session cookies already carry it; the raw value
// is for callers that send their own Authorization headers.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *Client) setAccessToken(token string) {
	if token == "" {
		return
	}
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// Signup registers an account with its shops and opens a session.
func (c *Client) Signup(ctx context.Context, username, password string, shopNames []string) (*User, error) {
	body := map[string]interface{}{
		"username":  username,
		"password":  password,
		"shopNames": shopNames,
	}
	var out authResponse
	if err := c.post(ctx, "/auth/signup", body, &out); err != nil {
		return nil, err
	}
	c.setAccessToken(out.AccessToken)
	return out.User, nil
}

// Signin authenticates and opens a session.
func (c *Client) Signin(ctx context.Context, username, password string, rememberMe bool) (*User, error) {
	body := map[string]interface{}{
		"username":   username,
		"password":   password,
		"rememberMe": rememberMe,
	}
	var out authResponse
	if err := c.post(ctx, "/auth/signin", body, &out); err != nil {
		return nil, err
	}
	c.setAccessToken(out.AccessToken)
	return out.User, nil
}

// Logout closes the session. Calling it without a session is not an error.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/auth/logout", nil, nil)
}

// Profile returns the authenticated user with their shops.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var out Profile
	if err := c.get(ctx, "/user/profile", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Shops returns all shops owned by the authenticated user.
func (c *Client) Shops(ctx context.Context) ([]Shop, error) {
	var out []Shop
	if err := c.get(ctx, "/user/shops", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Shop returns one of the authenticated user's shops by name.
func (c *Client) Shop(ctx context.Context, name string) (*Shop, error) {
	var out Shop
	if err := c.get(ctx, "/user/shop/"+name, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyShop checks administrative access to the named shop and returns the
// sanitized view with the authenticated user.
func (c *Client) VerifyShop(ctx context.Context, name string) (*ShopVerification, error) {
	var out ShopVerification
	if err := c.get(ctx, "/user/verify-shop/"+name, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// do performs a request with the one-shot recovery flow. Each request gets
// at most one refresh and one replay; a request that fails again after a
// successful refresh is not retried further.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	apiErr, err := c.doOnce(ctx, method, path, body, out)
	if err != nil {
		return err
	}
	if apiErr == nil {
		return nil
	}

	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Code != tokenExpiredCode {
		return apiErr
	}

	c.logger.Debug("access token expired, attempting refresh",
		zap.String("path", path))

	if err := c.refresh(ctx); err != nil {
		return err
	}

	replayErr, err := c.doOnce(ctx, method, path, body, out)
	if err != nil {
		return err
	}
	if replayErr != nil {
		if replayErr.StatusCode == http.StatusUnauthorized {
			return ErrSessionExpired
		}
		return replayErr
	}
	return nil
}

// refresh rotates the session tokens. Any failure terminates the session.
func (c *Client) refresh(ctx context.Context) error {
	var out authResponse
	apiErr, err := c.doOnce(ctx, http.MethodPost, "/auth/refresh", nil, &out)
	if err != nil {
		return err
	}
	if apiErr != nil {
		c.logger.Debug("refresh rejected", zap.Int("status", apiErr.StatusCode))
		return ErrSessionExpired
	}
	c.setAccessToken(out.AccessToken)
	return nil
}

// doOnce performs a single request. API-level failures are returned as the
// first value so the caller can decide about recovery; transport failures
// are returned as the error.
func (c *Client) doOnce(ctx context.Context, method, path string, body, out interface{}) (*APIError, error) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp), nil
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return nil, fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil, nil
}

// decodeAPIError builds an APIError from an error response body.
func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Error   string `json:"error"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
