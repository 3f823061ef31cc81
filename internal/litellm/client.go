// Package litellm is the client for the upstream key-management backend.
// All user and key records live there; the portal only calls its REST
// surface with an admin bearer credential and normalizes the loosely-typed
// responses it gets back.
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/chatapi/portal/internal/model"
)

var (
	// ErrUserNotFound is returned when the backend has no record for the
	// requested user id or email.
	ErrUserNotFound = errors.New("user not found in backend")
)

// Config holds the upstream connection settings and the issuance defaults
// sent with user and key creation.
type Config struct {
	Endpoint string
	AdminKey string

	UserRole            string
	MaxParallelRequests int
	TeamExtended        string
	TeamPermissionless  string
}

// Client talks to the key-management backend. Every call carries the admin
// bearer token and a bounded timeout; a backend that does not answer within
// the client timeout is treated as failed, never waited on indefinitely.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	now func() time.Time
}

// NewClient creates a backend client with a 10 second request timeout.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.TeamExtended == "" {
		cfg.TeamExtended = "chatapi-auth0"
	}
	if cfg.TeamPermissionless == "" {
		cfg.TeamPermissionless = "chatapi-pless"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

// Team returns the backend team for an authentication class.
func (c *Client) Team(class model.AuthClass) string {
	if class == model.AuthExtended {
		return c.cfg.TeamExtended
	}
	return c.cfg.TeamPermissionless
}

// GetUserByID fetches a user and their keys by backend user id.
func (c *Client) GetUserByID(ctx context.Context, userID string) (*UserRecord, []model.APIKey, error) {
	return c.getUserInfo(ctx, "user_id", userID)
}

// GetUserByEmail fetches a user and their keys by email address.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*UserRecord, []model.APIKey, error) {
	return c.getUserInfo(ctx, "user_email", email)
}

func (c *Client) getUserInfo(ctx context.Context, param, value string) (*UserRecord, []model.APIKey, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, "/user/info?"+param+"="+url.QueryEscape(value), nil, &raw)
	if err != nil {
		return nil, nil, err
	}
	user, keys, err := NormalizeUserPayload(raw, c.now())
	if err != nil {
		return nil, nil, fmt.Errorf("normalize user payload: %w", err)
	}
	if user.UserID == "" {
		return nil, nil, ErrUserNotFound
	}
	return user, keys, nil
}

// NewUserRequest is the payload for user creation. Metadata travels as-is;
// callers assemble the consent flags and timestamps before the call.
type NewUserRequest struct {
	UserID              string         `json:"user_id,omitempty"`
	Email               string         `json:"user_email"`
	KeyAlias            string         `json:"key_alias"`
	UserRole            string         `json:"user_role,omitempty"`
	MaxParallelRequests int            `json:"max_parallel_requests,omitempty"`
	TeamID              string         `json:"team_id"`
	Teams               []string       `json:"teams"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	AutoCreateKey       bool           `json:"auto_create_key"`
	Duration            string         `json:"duration,omitempty"`
}

// CreatedUser is the creation result: the backend user id and, when
// auto_create_key was requested, the raw key.
type CreatedUser struct {
	UserID string `json:"user_id"`
	Key    string `json:"key"`
}

// CreateUser provisions a new backend user.
func (c *Client) CreateUser(ctx context.Context, req NewUserRequest) (*CreatedUser, error) {
	if req.UserRole == "" {
		req.UserRole = c.cfg.UserRole
	}
	if req.MaxParallelRequests == 0 {
		req.MaxParallelRequests = c.cfg.MaxParallelRequests
	}
	var out CreatedUser
	if err := c.do(ctx, http.MethodPost, "/user/new", req, &out); err != nil {
		return nil, err
	}
	c.logger.Info("backend user created", "user_id", out.UserID, "has_key", out.Key != "")
	return &out, nil
}

// UpdateUser replaces the user's metadata (the backend merges at the
// metadata-blob level, so callers must send the full merged map) and
// optionally the email.
func (c *Client) UpdateUser(ctx context.Context, userID, email string, metadata map[string]any) error {
	body := map[string]any{"user_id": userID}
	if email != "" {
		body["user_email"] = email
	}
	if metadata != nil {
		body["metadata"] = metadata
	}
	return c.do(ctx, http.MethodPost, "/user/update", body, nil)
}

// GenerateKeyRequest is the payload for key issuance.
type GenerateKeyRequest struct {
	UserID              string         `json:"user_id"`
	KeyAlias            string         `json:"key_alias"`
	KeyName             string         `json:"key_name"`
	UserRole            string         `json:"user_role,omitempty"`
	MaxParallelRequests int            `json:"max_parallel_requests,omitempty"`
	TeamID              string         `json:"team_id"`
	Teams               []string       `json:"teams,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	Duration            string         `json:"duration,omitempty"`
}

// GeneratedKey carries the raw key returned once at issuance.
type GeneratedKey struct {
	Key   string `json:"key"`
	KeyID string `json:"key_id"`
}

// GenerateKey issues a new key for an existing user.
func (c *Client) GenerateKey(ctx context.Context, req GenerateKeyRequest) (*GeneratedKey, error) {
	var out GeneratedKey
	if err := c.do(ctx, http.MethodPost, "/key/generate", req, &out); err != nil {
		return nil, err
	}
	if out.KeyID == "" {
		out.KeyID = out.Key
	}
	return &out, nil
}

// DeactivateKeys deletes the named keys upstream. Deletion is how the
// backend models deactivation; there is no reactivation.
func (c *Client) DeactivateKeys(ctx context.Context, keyIDs []string) error {
	body := map[string]any{"keys": keyIDs}
	return c.do(ctx, http.MethodPost, "/key/delete", body, nil)
}

// UpdateKeyName renames an existing key.
func (c *Client) UpdateKeyName(ctx context.Context, keyID, name string) error {
	body := map[string]any{"key": keyID, "key_name": name}
	return c.do(ctx, http.MethodPost, "/key/update", body, nil)
}

// ListModels proxies the gateway's model list verbatim.
func (c *Client) ListModels(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/models", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Health probes the backend's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// do executes one backend call: JSON in, JSON out, admin bearer auth.
// A 404 maps to ErrUserNotFound; any other non-2xx status is an upstream
// failure carrying the status and a trimmed body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Endpoint+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AdminKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend %s %s: status %d: %s", method, path, resp.StatusCode, string(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode backend response: %w", err)
	}
	return nil
}
