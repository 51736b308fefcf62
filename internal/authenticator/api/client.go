// Package api implements the client side of the backend HTTP contract:
// authentication, MFA challenge polling and resolution, and device
// registration. All responses are mapped to typed results; callers never
// inspect raw JSON.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/keyfob/internal/authenticator/domain"
	"github.com/aussiebroadwan/keyfob/pkg/httpx"
	"golang.org/x/time/rate"
)

const defaultTimeout = 15 * time.Second

// Outbound rate limit. The requester-role status poll is deliberately
// aggressive, so the limiter sits above the fastest configured cadence and
// only guards against a bug spinning the client into a tight loop.
const (
	outboundRequestsPerSecond = 20
	outboundBurst             = 20
)

// TokenSource supplies the current bearer token, or "" when anonymous. The
// session manager implements it; passing it in explicitly keeps the token
// out of any package-level state.
type TokenSource interface {
	Token() string
}

// Client speaks the backend JSON contract.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  TokenSource
	Logger  *slog.Logger

	limiter *rate.Limiter
}

func NewClient(baseURL string, tokens TokenSource, logger *slog.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: defaultTimeout},
		Tokens:  tokens,
		Logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(outboundRequestsPerSecond), outboundBurst),
	}
}

// Register creates a new user account.
func (c *Client) Register(ctx context.Context, email, password, displayName string) (*AuthResult, error) {
	body := map[string]any{
		"email":       email,
		"password":    password,
		"displayName": displayName,
	}

	var resp authPayload
	if err := c.post(ctx, "/api/auth/register", body, &resp); err != nil {
		return nil, err
	}
	return resp.result(), nil
}

// Login attempts a password login. The outcome is either a completed
// session or a challenge id the requester role must poll.
func (c *Client) Login(ctx context.Context, email, password, deviceID string) (LoginOutcome, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"deviceId": deviceID,
	}

	var resp loginResponse
	if err := c.post(ctx, "/api/auth/login", body, &resp); err != nil {
		return LoginOutcome{}, err
	}

	if resp.RequiresMFA {
		return LoginOutcome{ChallengeID: resp.ChallengeID}, nil
	}
	return LoginOutcome{Auth: resp.result()}, nil
}

// LoginStatus polls the state of an outstanding challenge.
func (c *Client) LoginStatus(ctx context.Context, challengeID, deviceID string) (StatusResult, error) {
	query := url.Values{}
	query.Set("challengeId", challengeID)
	query.Set("deviceId", deviceID)

	var resp statusResponse
	if err := c.get(ctx, "/api/auth/login-status?"+query.Encode(), &resp); err != nil {
		return StatusResult{}, err
	}

	result := StatusResult{Status: domain.ChallengeStatus(resp.Status)}
	if result.Status == domain.StatusApproved {
		result.Auth = resp.result()
	}
	return result, nil
}

// LoginWithOTP resolves an awaiting-approval login with a 6-digit backup
// code, for when the approving device is offline.
func (c *Client) LoginWithOTP(ctx context.Context, challengeID, deviceID, code string) (*AuthResult, error) {
	body := map[string]any{
		"challengeId": challengeID,
		"deviceId":    deviceID,
		"code":        code,
	}

	var resp authPayload
	if err := c.post(ctx, "/api/auth/login-with-otp", body, &resp); err != nil {
		return nil, err
	}
	return resp.result(), nil
}

// PendingChallenge asks whether a challenge is addressed to this device.
// It returns nil when the backend reports none.
func (c *Client) PendingChallenge(ctx context.Context, deviceID string) (*domain.PendingChallenge, error) {
	query := url.Values{}
	query.Set("deviceId", deviceID)

	var resp pendingResponse
	if err := c.get(ctx, "/api/mfa/pending?"+query.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Challenge == nil {
		return nil, nil
	}
	return &domain.PendingChallenge{
		ID:      resp.Challenge.ChallengeID,
		Context: resp.Challenge.Context,
	}, nil
}

// ResolveChallenge submits a signed approve/deny decision.
func (c *Client) ResolveChallenge(ctx context.Context, resolution Resolution) error {
	return c.post(ctx, "/api/mfa/resolve", resolution, nil)
}

// RegisterDevice registers this device's public keys and push token.
func (c *Client) RegisterDevice(ctx context.Context, registration DeviceRegistration) error {
	return c.post(ctx, "/api/devices/register", registration, nil)
}

// LoginHistory returns the read-only login audit trail.
func (c *Client) LoginHistory(ctx context.Context) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := c.get(ctx, "/api/auth/login-history", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// MFAHistory returns the read-only MFA audit trail.
func (c *Client) MFAHistory(ctx context.Context) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := c.get(ctx, "/api/mfa/history", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}

	var reader io.Reader
	if body != nil {
		encoded, err := httpx.EncodeJSON(body)
		if err != nil {
			return fmt.Errorf("api: failed to encode request body: %w", err)
		}
		reader = encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: failed to build request: %w", err)
	}
	httpx.SetJSONHeaders(req)
	if c.Tokens != nil {
		httpx.SetBearer(req, c.Tokens.Token())
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.mapErrorStatus(resp)
	}

	if out != nil {
		if err := httpx.DecodeJSON(resp.Body, out); err != nil {
			return &TransportError{Op: method + " " + path, Err: err}
		}
	}
	return nil
}

// mapErrorStatus turns an error response into the package's error taxonomy.
// A 401 clears the session locally; a 401 whose body mentions a revocation
// is surfaced separately so the user learns their device was signed out
// elsewhere.
func (c *Client) mapErrorStatus(resp *http.Response) error {
	message := httpx.ErrorMessage(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		if strings.Contains(strings.ToLower(message), "revoked") {
			return ErrDeviceRevoked
		}
		return ErrUnauthorized
	}

	return &ProtocolError{StatusCode: resp.StatusCode, Message: message}
}
