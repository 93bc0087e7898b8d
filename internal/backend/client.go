// Package backend is the HTTP client for the transit backend that owns accounts,
// saved destinations, live line positions and route computation.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/provider/resilience"
)

const (
	// UpstreamName identifies the backend in the resilience registry and logs.
	UpstreamName = "transit-backend"

	// DefaultTimeout is the default per-attempt timeout.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 8 << 20
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the backend client.
type ClientConfig struct {
	// BaseURL is the backend root, e.g. http://localhost:3000 (required).
	BaseURL string

	// HTTPClient overrides the transport (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the per-attempt timeout (optional, defaults to 10s).
	Timeout time.Duration

	// MaxRetries for 5xx and network failures (optional, defaults to 3).
	MaxRetries uint64

	// Registry receives health reports (optional).
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Client calls the transit backend.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new backend client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(UpstreamName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		if cfg.MaxRetries > 0 {
			clientCfg.MaxRetries = cfg.MaxRetries
		}
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("component", "backend").Logger(),
	}
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}

	var out LoginResult
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", nil, "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return c.do(ctx, "register", http.MethodPost, "/auth/register", nil, "", req, nil)
}

// Me returns the user that owns token. The backend wraps it as {"user": {...}};
// a bare user object is accepted as well.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "me", http.MethodGet, "/auth/me", nil, token, nil, &raw); err != nil {
		return nil, err
	}

	var wrapped struct {
		User *User `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && !wrapped.User.IsZero() {
		return wrapped.User, nil
	}

	var bare User
	if err := json.Unmarshal(raw, &bare); err == nil && !bare.IsZero() {
		return &bare, nil
	}

	return nil, &Error{Op: "me", Message: "no user in response", Err: ErrNotFound}
}

// Preferences returns the saved home and work destinations of userID.
func (c *Client) Preferences(ctx context.Context, token, userID string) (*Preferences, error) {
	q := url.Values{"userId": {userID}}

	var out Preferences
	if err := c.do(ctx, "preferences", http.MethodGet, "/directions/preferences", q, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetDestination saves the home or work destination of req.UserID.
func (c *Client) SetDestination(ctx context.Context, token string, kind DestinationKind, req SetDestinationRequest) (*DestinationResult, error) {
	if !kind.Valid() {
		return nil, &Error{Op: "set-destination", Message: fmt.Sprintf("unknown destination kind %q", kind), Err: ErrInvalidRequest}
	}

	path := "/directions/setHome"
	if kind == KindWork {
		path = "/directions/setWork"
	}

	var out DestinationResult
	if err := c.do(ctx, "set-"+string(kind), http.MethodPost, path, nil, token, req.body(kind), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LinePositions returns the live vehicle positions of every tracked line.
func (c *Client) LinePositions(ctx context.Context, token string) (*PositionsResponse, error) {
	var out PositionsResponse
	if err := c.do(ctx, "line-positions", http.MethodGet, "/lines/positions", nil, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Route asks the backend for candidate routes between two "lat,lng" points.
func (c *Client) Route(ctx context.Context, token, from, to string) (*RouteResponse, error) {
	q := url.Values{"point1": {from}, "point2": {to}}

	var out RouteResponse
	if err := c.do(ctx, "route", http.MethodGet, "/stations/route", q, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one backend call. in is JSON-encoded when non-nil; out is decoded from a
// 2xx body when non-nil. Non-2xx responses become *Error.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, token string, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader = http.NoBody
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("op", op).
			Dur("elapsed", time.Since(start)).
			Msg("backend request failed")

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		msg := "transit backend is unreachable"
		if errors.Is(err, resilience.ErrCircuitOpen) {
			msg = "transit backend is temporarily unavailable"
		}
		return &Error{Op: op, Message: msg, Err: ErrUnavailable}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: "reading response body", Err: ErrUnavailable}
	}

	c.logger.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("backend responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    messageFromBody(respBody),
			Err:        classify(resp.StatusCode),
		}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: "malformed response: " + err.Error(), Err: ErrUnavailable}
	}
	return nil
}
