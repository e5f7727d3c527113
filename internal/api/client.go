// Package api is the HTTP client for the HostelHub REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kimhsiao/hostelhub/client/internal/errors"
	"github.com/kimhsiao/hostelhub/client/internal/logging"
	"github.com/kimhsiao/hostelhub/client/internal/models"
)

// HeaderRequestID carries a per-request id for correlating client and server logs.
const HeaderRequestID = "X-Request-ID"

// Client talks to the remote API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu             sync.RWMutex
	token          string
	onUnauthorized func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a Client for the API rooted at baseURL, e.g. http://localhost:3000/api.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken installs the bearer token sent with every request. An empty token removes it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// OnUnauthorized registers fn to run whenever an authenticated request is answered with 401.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// envelope is the shape of every JSON body the API returns.
type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Token     string          `json:"token"`
	User      *models.User    `json:"user"`
	Data      json.RawMessage `json:"data"`
	UserCount int             `json:"userCount"`
}

// AuthResult is returned by Login and Register.
type AuthResult struct {
	Token string
	User  *models.User
}

// HostelList is the body of GET /hostels.
type HostelList struct {
	Hostels   []models.Hostel
	UserCount int
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, creds models.Credentials) (*AuthResult, error) {
	return c.authenticate(ctx, "/auth/login", creds)
}

// Register creates an account and returns its session token.
func (c *Client) Register(ctx context.Context, reg models.Registration) (*AuthResult, error) {
	return c.authenticate(ctx, "/auth/register", reg)
}

func (c *Client) authenticate(ctx context.Context, path string, body interface{}) (*AuthResult, error) {
	env, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if !env.Success || env.Token == "" {
		return nil, &apperrors.AppError{Code: apperrors.ErrAuthFailed, Message: env.Message}
	}
	return &AuthResult{Token: env.Token, User: env.User}, nil
}

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := c.data(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListHostels fetches every hostel plus the total user count.
func (c *Client) ListHostels(ctx context.Context) (*HostelList, error) {
	env, err := c.do(ctx, http.MethodGet, "/hostels", nil)
	if err != nil {
		return nil, err
	}
	list := &HostelList{UserCount: env.UserCount}
	if err := decodeData(env, &list.Hostels); err != nil {
		return nil, err
	}
	if list.Hostels == nil {
		list.Hostels = []models.Hostel{}
	}
	return list, nil
}

// GetHostel fetches one hostel.
func (c *Client) GetHostel(ctx context.Context, id models.ID) (*models.Hostel, error) {
	var h models.Hostel
	if err := c.data(ctx, http.MethodGet, hostelPath(id), nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// CreateHostel creates a hostel and returns the server's record.
func (c *Client) CreateHostel(ctx context.Context, in models.HostelInput) (*models.Hostel, error) {
	var h models.Hostel
	if err := c.data(ctx, http.MethodPost, "/hostels", in, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// UpdateHostel replaces the writable fields of a hostel.
func (c *Client) UpdateHostel(ctx context.Context, id models.ID, in models.HostelInput) (*models.Hostel, error) {
	var h models.Hostel
	if err := c.data(ctx, http.MethodPut, hostelPath(id), in, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// DeleteHostel deletes a hostel.
func (c *Client) DeleteHostel(ctx context.Context, id models.ID) error {
	_, err := c.do(ctx, http.MethodDelete, hostelPath(id), nil)
	return err
}

// ListUsers fetches every account. Admin only.
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.data(ctx, http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// UpdateUserRole changes the role of an account. Admin only.
func (c *Client) UpdateUserRole(ctx context.Context, id models.ID, role models.Role) error {
	_, err := c.do(ctx, http.MethodPut, userPath(id), map[string]models.Role{"role": role})
	return err
}

// DeleteUser deletes an account. Admin only.
func (c *Client) DeleteUser(ctx context.Context, id models.ID) error {
	_, err := c.do(ctx, http.MethodDelete, userPath(id), nil)
	return err
}

// Subscribe registers a push subscription for the current user.
func (c *Client) Subscribe(ctx context.Context, sub models.PushSubscription) error {
	_, err := c.do(ctx, http.MethodPost, "/subscriptions/subscribe",
		map[string]models.PushSubscription{"subscription": sub})
	return err
}

// Unsubscribe removes the push subscription with the given endpoint.
func (c *Client) Unsubscribe(ctx context.Context, endpoint string) error {
	_, err := c.do(ctx, http.MethodPost, "/subscriptions/unsubscribe",
		map[string]string{"endpoint": endpoint})
	return err
}

// Reachable issues a HEAD against the API root. Any HTTP answer means the
// server can be reached; only transport failures return an error.
func (c *Client) Reachable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNetwork, "api unreachable", err)
	}
	resp.Body.Close()
	return nil
}

func hostelPath(id models.ID) string {
	return "/hostels/" + url.PathEscape(id.String())
}

func userPath(id models.ID) string {
	return "/users/" + url.PathEscape(id.String())
}

// data performs a request and decodes the envelope's data field into out.
func (c *Client) data(ctx context.Context, method, path string, body, out interface{}) error {
	env, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	return decodeData(env, out)
}

func decodeData(env *envelope, out interface{}) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperrors.Wrap(apperrors.ErrServer, "", fmt.Errorf("unexpected response data: %w", err))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode request", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := c.Token()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Debug("API request failed", map[string]interface{}{
			"method": method, "path": path, "request_id": requestID, "error": err.Error(),
		})
		return nil, apperrors.Wrap(apperrors.ErrNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	logging.Debug("API request", map[string]interface{}{
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"request_id":  requestID,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrNetwork, "failed to read response", err)
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if jerr := json.Unmarshal(raw, &env); jerr != nil && resp.StatusCode < 300 {
			return nil, apperrors.Wrap(apperrors.ErrServer, "", fmt.Errorf("invalid response body: %w", jerr))
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &env, nil
	}

	appErr := &apperrors.AppError{Message: env.Message, Status: resp.StatusCode}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		appErr.Code = apperrors.ErrAuthFailed
		if token != "" {
			c.mu.RLock()
			hook := c.onUnauthorized
			c.mu.RUnlock()
			if hook != nil {
				hook()
			}
		}
	case http.StatusForbidden:
		appErr.Code = apperrors.ErrPermission
	case http.StatusNotFound:
		appErr.Code = apperrors.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		appErr.Code = apperrors.ErrValidation
	default:
		appErr.Code = apperrors.ErrServer
	}
	return nil, appErr
}
