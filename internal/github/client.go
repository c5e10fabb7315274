// Package github is the release API client: it creates the release for a tag
// and uploads the per-target binaries as release assets.
//
// Outbound requests pass through: Circuit Breaker -> Rate Limiter -> Retry ->
// HTTP. The token is injected by an oauth2 transport and never logged.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"crosspub/internal/config"
)

// Client is the hardened GitHub API client.
type Client struct {
	httpClient    *http.Client
	apiBaseURL    string
	uploadBaseURL string
	breaker       *gobreaker.CircuitBreaker[struct{}]
	limiter       *rate.Limiter // nil when rate limiting is disabled
	retryCfg      config.Retry
	logger        *slog.Logger
}

// New creates a Client from the github config section and a token.
//
// The token is wrapped in an oauth2 static token source so every request
// carries the Authorization header without any call site touching the secret.
func New(cfg config.GitHub, token string, logger *slog.Logger) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = cfg.Timeout

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "github",
		MaxRequests: toUint32(cfg.Breaker.HalfOpenLimit),
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= cfg.Breaker.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		httpClient:    httpClient,
		apiBaseURL:    cfg.APIBaseURL,
		uploadBaseURL: cfg.UploadBaseURL,
		breaker:       cb,
		limiter:       limiter,
		retryCfg:      cfg.Retry,
		logger:        logger,
	}
}

// do executes a request through the breaker, limiter and retry pipeline.
//
// When the request succeeds (non-retryable status), resp is non-nil with an
// open body the caller must close. When all retries are exhausted for a
// retryable status, both resp (with open body) and err are non-nil. When the
// breaker rejects or a network error occurs, resp is nil.
func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	_, err := c.breaker.Execute(func() (struct{}, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, c.doWithRetry(ctx, req, &resp)
	})
	return resp, err
}

func toUint32(v int) uint32 {
	if v <= 0 {
		return 0
	}
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

// APIError is a non-2xx response from the release API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("github: HTTP %d: %s", e.StatusCode, e.Message)
}
