// Client for a SpamWatch-compatible reputation service, which mirrors the local ban list to a shared public one.
package reputation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kantek-org/kantek/pkg/robusthttp"

	"golang.org/x/time/rate"
)

type Permission string

const (
	PermissionRoot  Permission = "Root"
	PermissionAdmin Permission = "Admin"
	PermissionUser  Permission = "User"
)

var (
	ErrUnauthorized = errors.New("reputation service rejected token")
	ErrRateLimited  = errors.New("reputation service rate limit")
	ErrNotFound     = errors.New("not found on reputation service")
)

type Token struct {
	ID         int64      `json:"id"`
	Permission Permission `json:"permission"`
	Retired    bool       `json:"retired"`
	UserID     int64      `json:"userid"`
}

type Ban struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
	// Only set on responses
	Admin int64 `json:"admin,omitempty"`
	Date  int64 `json:"date,omitempty"`
	// Optional message that caused the ban
	Message string `json:"message,omitempty"`
}

type apiError struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
	Until int64  `json:"until"`
}

// Error returned for any non-success response.
type APIError struct {
	StatusCode int
	Message    string
	// For rate-limit responses, when the next request may be sent.
	Until time.Time
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reputation service: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

type Client struct {
	Host   string
	Token  string
	Client *http.Client
	// Paces outgoing requests. Optional.
	Limiter *rate.Limiter
	Logger  *slog.Logger

	permission atomic.Pointer[Permission]
}

type Config struct {
	Host  string
	Token string
	// Requests per second; zero uses a default of 5/s.
	RateLimit float64
	Logger    *slog.Logger
	Options   []robusthttp.Option
}

func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("system", "reputation")
	limit := cfg.RateLimit
	if limit == 0 {
		limit = 5
	}
	opts := append([]robusthttp.Option{
		robusthttp.WithLogger(logger),
		robusthttp.WithUserAgent("kantek"),
	}, cfg.Options...)
	return &Client{
		Host:    strings.TrimSuffix(cfg.Host, "/"),
		Token:   cfg.Token,
		Client:  robusthttp.NewClient(opts...),
		Limiter: rate.NewLimiter(rate.Limit(limit), 1),
		Logger:  logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Host+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var ae apiError
		if err := json.NewDecoder(resp.Body).Decode(&ae); err == nil {
			if ae.Error != "" {
				apiErr.Message = ae.Error
			}
			if ae.Until != 0 {
				apiErr.Until = time.Unix(ae.Until, 0)
			}
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// Fetches the calling token's metadata.
func (c *Client) Self(ctx context.Context) (*Token, error) {
	var tok Token
	if err := c.do(ctx, http.MethodGet, "/tokens/self", nil, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// Resolves and remembers the token's permission level. Called once at startup; a failure leaves the client without write permission.
func (c *Client) Resolve(ctx context.Context) (Permission, error) {
	tok, err := c.Self(ctx)
	if err != nil {
		c.permission.Store(nil)
		return "", fmt.Errorf("resolving reputation token permission: %w", err)
	}
	perm := tok.Permission
	if tok.Retired {
		perm = PermissionUser
	}
	c.permission.Store(&perm)
	c.Logger.Info("reputation service connected", "host", c.Host, "permission", perm)
	return perm, nil
}

// The resolved permission, or empty if Resolve has not succeeded.
func (c *Client) Permission() Permission {
	p := c.permission.Load()
	if p == nil {
		return ""
	}
	return *p
}

// Whether the token may add and remove bans.
func (c *Client) CanWrite() bool {
	if c == nil {
		return false
	}
	switch c.Permission() {
	case PermissionAdmin, PermissionRoot:
		return true
	}
	return false
}

func (c *Client) AddBans(ctx context.Context, bans []Ban) error {
	if len(bans) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/banlist", bans, nil)
}

func (c *Client) AddBan(ctx context.Context, id int64, reason string) error {
	return c.AddBans(ctx, []Ban{{ID: id, Reason: reason}})
}

// Removing an identity which is not banned on the service is not an error.
func (c *Client) DeleteBan(ctx context.Context, id int64) error {
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/banlist/%d", id), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Returns nil (and no error) when the identity is not banned on the service.
func (c *Client) GetBan(ctx context.Context, id int64) (*Ban, error) {
	var ban Ban
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/banlist/%d", id), nil, &ban)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ban, nil
}
