// Package apiclient is the outbound HTTP layer shared by the platform
// adapters and the sync runner. It carries bearer credentials from a
// PlatformConnection, refreshes expired tokens before authenticated calls,
// and rate-limits requests per client.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Mohd-umair/repmeup-backend/pkg/db/models"
)

// AuthError indicates an expired or invalid token. The sync runner refreshes
// once on this error; a second failure marks the connection token_expired.
type AuthError struct {
	Platform models.Platform
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s auth error: %v", e.Platform, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TokenStore persists refreshed credentials back onto the connection
type TokenStore interface {
	SaveTokens(ctx context.Context, connID, accessToken, refreshToken string, expiry time.Time) error
}

// tokenRefreshWindow is how close to expiry a token is refreshed proactively
const tokenRefreshWindow = 60 * time.Second

type Client struct {
	http    *resty.Client
	config  *Config
	tokens  TokenStore
	limiter *rate.Limiter
	logger  *logrus.Logger
}

func NewClient(config *Config, tokens TokenStore) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	http := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:    http,
		config:  config,
		tokens:  tokens,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		logger:  config.Logger,
	}, nil
}

// EnsureToken refreshes the connection's access token when it is missing or
// about to expire. The refreshed credentials are persisted before returning.
func (c *Client) EnsureToken(ctx context.Context, conn *models.PlatformConnection) error {
	if conn.AccessToken != "" && !conn.TokenExpiresWithin(tokenRefreshWindow) {
		return nil
	}
	return c.Refresh(ctx, conn)
}

// Refresh unconditionally exchanges the refresh token for new credentials.
// The sync runner calls it once when a platform rejects an unexpired token.
func (c *Client) Refresh(ctx context.Context, conn *models.PlatformConnection) error {
	if conn.RefreshToken == "" {
		return &AuthError{Platform: conn.Platform, Err: fmt.Errorf("no refresh token available")}
	}

	log := c.logger.WithFields(logrus.Fields{
		"method":        "Refresh",
		"platform":      conn.Platform,
		"connection_id": conn.ID,
	})
	log.Debug("Refreshing access token")

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": conn.RefreshToken,
			"client_id":     c.config.ClientID,
			"client_secret": c.config.ClientSecret,
		}).
		SetResult(&result).
		Post(c.config.TokenURL)
	if err != nil {
		return &AuthError{Platform: conn.Platform, Err: fmt.Errorf("token refresh request failed: %w", err)}
	}
	if resp.IsError() {
		return &AuthError{Platform: conn.Platform, Err: fmt.Errorf("token refresh rejected: status %s", resp.Status())}
	}
	if result.AccessToken == "" {
		return &AuthError{Platform: conn.Platform, Err: fmt.Errorf("token refresh returned no access token")}
	}

	expiry := time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	if err := c.tokens.SaveTokens(ctx, conn.ID, result.AccessToken, result.RefreshToken, expiry); err != nil {
		return fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	conn.AccessToken = result.AccessToken
	if result.RefreshToken != "" {
		conn.RefreshToken = result.RefreshToken
	}
	conn.TokenExpiry = expiry

	log.Info("Access token refreshed")
	return nil
}

// Fetch performs an authenticated GET against a platform resource path and
// returns the raw response body for the adapter to normalize.
func (c *Client) Fetch(ctx context.Context, conn *models.PlatformConnection, path string, query map[string]string) (json.RawMessage, error) {
	if err := c.EnsureToken(ctx, conn); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(conn.AccessToken).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("platform fetch failed: %w", err)
	}

	switch {
	case resp.StatusCode() == 401 || resp.StatusCode() == 403:
		return nil, &AuthError{Platform: conn.Platform, Err: fmt.Errorf("fetch rejected: status %s", resp.Status())}
	case resp.IsError():
		return nil, fmt.Errorf("platform fetch error: status %s, body: %s", resp.Status(), resp.String())
	}

	return json.RawMessage(resp.Body()), nil
}

// PostReply publishes a reply to a platform resource. It is the hook the
// external reply dispatcher uses; routing itself never calls it.
func (c *Client) PostReply(ctx context.Context, conn *models.PlatformConnection, path string, body interface{}) error {
	if err := c.EnsureToken(ctx, conn); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(conn.AccessToken).
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("platform reply failed: %w", err)
	}
	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		return &AuthError{Platform: conn.Platform, Err: fmt.Errorf("reply rejected: status %s", resp.Status())}
	}
	if resp.IsError() {
		return fmt.Errorf("platform reply error: status %s, body: %s", resp.Status(), resp.String())
	}

	c.logger.WithFields(logrus.Fields{
		"method":   "PostReply",
		"platform": conn.Platform,
		"path":     path,
	}).Info("Reply posted to platform")

	return nil
}
