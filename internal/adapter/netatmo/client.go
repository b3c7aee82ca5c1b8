// Package netatmo discovers public Netatmo weather stations and fetches their
// measurement series.
package netatmo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
	"github.com/couchcryptid/geosensor-ingest/internal/observability"
	"github.com/couchcryptid/geosensor-ingest/internal/ratelimit"
)

// Defaults for the public weather map endpoints.
const (
	DefaultAPIURL  = "https://app.netatmo.net"
	DefaultAuthURL = "https://auth.netatmo.com/weathermap/token"

	// DefaultPageCap is the number of rows getmeasure returns at most per
	// request. A page of exactly this size is taken to mean more data follows.
	DefaultPageCap = 1024
)

var (
	errRetryableStatus = errors.New("retryable status")
	errEmptyToken      = errors.New("token endpoint returned an empty token")
)

// StatusError is returned for non-2xx responses that are not retried.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("netatmo %s: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Config holds the client settings.
type Config struct {
	APIURL     string
	AuthURL    string
	Token      string // optional; fetched from AuthURL when empty or rejected
	Timeout    time.Duration
	RetryCount int
	PageCap    int
}

// Client implements the remote source contract for Netatmo.
type Client struct {
	http    *resty.Client
	authURL string
	breaker *gobreaker.CircuitBreaker
	limiter *ratelimit.Limiter
	gate    *ratelimit.Gate
	metrics *observability.Metrics
	logger  *slog.Logger
	pageCap int

	mu    sync.Mutex
	token string
}

// NewClient creates a Netatmo client. limiter paces discovery requests; gate
// bounds concurrent requests and is usually shared with other workers.
func NewClient(cfg Config, limiter *ratelimit.Limiter, gate *ratelimit.Gate, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.PageCap <= 0 {
		cfg.PageCap = DefaultPageCap
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.APIURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, _ error) bool {
			return r != nil && (r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500)
		})

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "netatmo",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		http:    httpClient,
		authURL: cfg.AuthURL,
		breaker: breaker,
		limiter: limiter,
		gate:    gate,
		metrics: metrics,
		logger:  logger.With("source", string(domain.SourceNetatmo)),
		pageCap: cfg.PageCap,
		token:   cfg.Token,
	}
}

// Name identifies the source.
func (c *Client) Name() domain.Source {
	return domain.SourceNetatmo
}

type requestFunc func(req *resty.Request, token string) (*resty.Response, error)

// do runs one API call under the concurrency gate and circuit breaker. A 401
// or 403 invalidates the token and the call is repeated once with a fresh one.
func (c *Client) do(ctx context.Context, op string, fn requestFunc) (*resty.Response, error) {
	release, err := c.gate.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	for attempt := 0; ; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			c.metrics.APIRequests.WithLabelValues(string(domain.SourceNetatmo), op, "error").Inc()
			return nil, err
		}

		start := time.Now()
		out, err := c.breaker.Execute(func() (interface{}, error) {
			resp, err := fn(c.http.R().SetContext(ctx), token)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500 {
				return nil, fmt.Errorf("%w: %d", errRetryableStatus, resp.StatusCode())
			}
			return resp, nil
		})
		c.metrics.APIDuration.WithLabelValues(string(domain.SourceNetatmo), op).Observe(time.Since(start).Seconds())

		if err != nil {
			outcome := "error"
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				outcome = "rejected"
			}
			c.metrics.APIRequests.WithLabelValues(string(domain.SourceNetatmo), op, outcome).Inc()
			return nil, fmt.Errorf("netatmo %s: %w", op, err)
		}

		resp := out.(*resty.Response)
		if (resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden) && attempt == 0 {
			c.logger.Info("token rejected, fetching a new one", "operation", op, "status", resp.StatusCode())
			c.invalidateToken(token)
			continue
		}
		if !resp.IsSuccess() {
			c.metrics.APIRequests.WithLabelValues(string(domain.SourceNetatmo), op, "error").Inc()
			return nil, &StatusError{Operation: op, StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 256)}
		}

		c.metrics.APIRequests.WithLabelValues(string(domain.SourceNetatmo), op, "success").Inc()
		return resp, nil
	}
}

// accessToken returns the cached token or fetches one from the public
// weather map token endpoint.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}

	resp, err := c.http.R().SetContext(ctx).Get(c.authURL)
	if err != nil {
		return "", fmt.Errorf("fetch netatmo token: %w", err)
	}
	if !resp.IsSuccess() {
		return "", &StatusError{Operation: "token", StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 256)}
	}

	var payload tokenResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return "", fmt.Errorf("decode netatmo token: %w", err)
	}
	if payload.Body == "" {
		return "", errEmptyToken
	}
	c.token = payload.Body
	return c.token, nil
}

// invalidateToken drops the cached token unless another worker has already
// replaced it.
func (c *Client) invalidateToken(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == stale {
		c.token = ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Netatmo API response types.

type tokenResponse struct {
	Body string `json:"body"`
}
