// Package imageapi is the HTTP client of the gallery API.
// It lists feed pages and creates records, with retry, circuit breaking,
// rate limiting and tracing around every call.
package imageapi

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
	"strconv"
	"strings"
	"time"

	"gallery-feed/internal/domain/entity"
	"gallery-feed/internal/observability/logging"
	"gallery-feed/internal/observability/metrics"
	"gallery-feed/internal/observability/requestid"
	"gallery-feed/internal/observability/tracing"
	"gallery-feed/internal/resilience/circuitbreaker"
	"gallery-feed/internal/resilience/ratelimit"
	"gallery-feed/internal/resilience/retry"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	imagesPath = "/api/images"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 4 << 20

	operationList   = "list_images"
	operationCreate = "create_image"
)

// ErrBadBaseURL indicates that the configured base URL cannot be used.
var ErrBadBaseURL = errors.New("invalid gallery api base url")

// Config contains configuration for the gallery API client.
type Config struct {
	// BaseURL is the scheme and host of the gallery API, e.g. https://gallery.example.com
	BaseURL string

	// Timeout is the per-request HTTP timeout
	Timeout time.Duration

	// RateLimitRPS caps outgoing requests per second; 0 disables limiting
	RateLimitRPS float64

	// RateLimitBurst is the burst allowed above RateLimitRPS
	RateLimitBurst int
}

// Client talks to the gallery API.
// It implements feed.PageFetcher and upload.RecordSubmitter.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	breaker     *circuitbreaker.CircuitBreaker
	limiter     *ratelimit.Limiter
	listRetry   retry.Config
	createRetry retry.Config
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithListRetry sets the retry policy of page fetches.
func WithListRetry(cfg retry.Config) Option {
	return func(c *Client) {
		c.listRetry = cfg
	}
}

// WithCircuitBreaker replaces the circuit breaker.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *Client) {
		if cb != nil {
			c.breaker = cb
		}
	}
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client for cfg.
//
// Page fetches are retried per retry.FeedPageConfig. Record creation makes
// exactly one attempt, since the endpoint is not idempotent.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadBaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadBaseURL, cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:     base,
		httpClient:  &http.Client{Timeout: timeout},
		breaker:     circuitbreaker.New(circuitbreaker.GalleryAPIConfig()),
		limiter:     ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst),
		listRetry:   retry.FeedPageConfig(),
		createRetry: retry.NoRetry(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchPage fetches the page after cursor. A nil cursor fetches the first page.
func (c *Client) FetchPage(ctx context.Context, cursor entity.Cursor) (entity.FeedPage, error) {
	ctx, _ = requestid.Ensure(ctx)
	u := c.endpoint()
	if cursor != nil {
		q := u.Query()
		q.Set("after", strconv.FormatInt(*cursor, 10))
		u.RawQuery = q.Encode()
	}

	var page entity.FeedPage
	err := retry.WithBackoff(ctx, c.listRetry, func() error {
		body, err := c.do(ctx, operationList, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		var dto pageDTO
		if err := json.Unmarshal(body, &dto); err != nil {
			return fmt.Errorf("decode images page: %w", err)
		}
		page = dto.toEntity()
		return nil
	})
	if err != nil {
		return entity.FeedPage{}, fmt.Errorf("list images after %s: %w", entity.CursorKey(cursor), err)
	}
	return page, nil
}

// SubmitRecord creates a record. It is attempted once.
func (c *Client) SubmitRecord(ctx context.Context, rec entity.NewRecord) error {
	ctx, _ = requestid.Ensure(ctx)
	payload, err := json.Marshal(newCreateDTO(rec))
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	err = retry.WithBackoff(ctx, c.createRetry, func() error {
		_, err := c.do(ctx, operationCreate, http.MethodPost, c.endpoint().String(), payload)
		return err
	})
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	return nil
}

func (c *Client) endpoint() *url.URL {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + imagesPath
	return &u
}

// do performs one request through the rate limiter and circuit breaker and
// returns the body of a 2xx response. Other statuses yield *retry.HTTPError.
func (c *Client) do(ctx context.Context, operation, method, target string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	ctx, reqID := requestid.Ensure(ctx)
	ctx, span := tracing.StartClientSpan(ctx, "imageapi."+operation,
		semconv.HTTPRequestMethodKey.String(method),
		semconv.URLFull(target),
		attribute.String("request.id", reqID))

	logger := logging.WithRequestID(ctx, c.loggerFor(ctx))
	start := time.Now()
	status := 0

	var body []byte
	err := c.breaker.Do(func() error {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
		if err != nil {
			return fmt.Errorf("create http request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", reqID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		tracing.InjectHeaders(ctx, req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("execute http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()
		status = resp.StatusCode

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &retry.HTTPError{
				StatusCode: resp.StatusCode,
				Message:    truncate(string(body), 200),
			}
		}
		return nil
	})

	elapsed := time.Since(start)
	metrics.RecordAPIRequest(operation, status, elapsed)
	if status != 0 {
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
	}
	tracing.EndSpan(span, err)

	if err != nil {
		logger.Warn("gallery api request failed",
			slog.String("operation", operation),
			slog.Int("status", status),
			slog.Duration("duration", elapsed),
			slog.Any("error", err))
		return nil, err
	}
	logger.Debug("gallery api request",
		slog.String("operation", operation),
		slog.Int("status", status),
		slog.Duration("duration", elapsed))
	return body, nil
}

func (c *Client) loggerFor(ctx context.Context) *slog.Logger {
	if l := logging.FromContext(ctx); l != slog.Default() {
		return l
	}
	return c.logger
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Breaker returns the circuit breaker guarding the gallery API.
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}
