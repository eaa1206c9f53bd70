package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/field-health-service/internal/observability"
	"github.com/sony/gobreaker"
)

// ErrAuthFailed is returned for every login or signup failure. The cause is
// logged but never surfaced to callers.
var ErrAuthFailed = errors.New("authentication failed")

const (
	breakerFailures = 5
	breakerOpen     = 30 * time.Second
	breakerInterval = time.Minute
)

// User is the account record returned by the identity provider.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Session is the outcome of a successful login or signup.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Client talks to the external identity provider.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an identity client for baseURL.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    newBreaker(logger),
		metrics:    metrics,
		logger:     logger,
	}
}

func newBreaker(logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "identity",
		Interval: breakerInterval,
		Timeout:  breakerOpen,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerFailures
		},
		// Rejected credentials are a normal answer, not an outage.
		IsSuccessful: func(err error) bool {
			var rejected *rejectedError
			return err == nil || errors.As(err, &rejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	return c.call(ctx, "login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Signup creates an account and returns its first session.
func (c *Client) Signup(ctx context.Context, name, email, password string) (Session, error) {
	return c.call(ctx, "signup", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

func (c *Client) call(ctx context.Context, op string, body any) (Session, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		return c.doRequest(ctx, op, body)
	})
	if err != nil {
		c.metrics.IdentityRequests.WithLabelValues(op, outcome(err)).Inc()
		c.logger.Warn("identity request failed", "op", op, "error", err)
		return Session{}, ErrAuthFailed
	}
	c.metrics.IdentityRequests.WithLabelValues(op, "success").Inc()
	return res.(Session), nil
}

// rejectedError is a 4xx answer from the provider.
type rejectedError struct {
	status int
	body   string
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("identity provider rejected request: status %d: %s", e.status, e.body)
}

func (c *Client) doRequest(ctx context.Context, op string, body any) (Session, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Session{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+op, bytes.NewReader(payload))
	if err != nil {
		return Session{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Session{}, &rejectedError{status: resp.StatusCode, body: string(msg)}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Session{}, fmt.Errorf("identity provider error: status %d", resp.StatusCode)
	}

	var s Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return Session{}, fmt.Errorf("decode response: %w", err)
	}
	if s.Token == "" {
		return Session{}, errors.New("identity provider returned no token")
	}
	return s, nil
}

func outcome(err error) string {
	var rejected *rejectedError
	switch {
	case errors.As(err, &rejected):
		return "rejected"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	default:
		return "error"
	}
}
