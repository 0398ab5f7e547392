package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"audiothek/internal/logging"
	"audiothek/internal/respcache"
	"audiothek/internal/services"
)

// PageSize is the number of items requested per listing page.
const PageSize = 24

const (
	defaultEndpoint       = "https://api.ardaudiothek.de/graphql"
	defaultRetries        = 3
	defaultBackoff        = 500 * time.Millisecond
	defaultMaxBackoff     = 8 * time.Second
	defaultRateLimit      = 8
	defaultRateLimitBurst = 16
	defaultUserAgent      = "audiothek-downloader"
	maxResponseBytes      = 32 << 20
)

// Options configures the catalog client.
type Options struct {
	Endpoint       string
	HTTPClient     *http.Client
	Cache          *respcache.Cache
	Logger         *slog.Logger
	MaxRetries     int
	Backoff        time.Duration
	MaxBackoff     time.Duration
	RateLimit      rate.Limit
	RateLimitBurst int
	UserAgent      string
}

// Client issues GraphQL queries against the catalog endpoint.
type Client struct {
	endpoint   string
	http       *http.Client
	cache      *respcache.Cache
	logger     *slog.Logger
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	userAgent  string
}

// NewClient creates a catalog client.
func NewClient(opts Options) *Client {
	nopts := normalizeOptions(opts)
	return &Client{
		endpoint:   nopts.Endpoint,
		http:       nopts.HTTPClient,
		cache:      nopts.Cache,
		logger:     logging.NewComponentLogger(nopts.Logger, "catalog"),
		limiter:    rate.NewLimiter(nopts.RateLimit, nopts.RateLimitBurst),
		maxRetries: nopts.MaxRetries,
		backoff:    nopts.Backoff,
		maxBackoff: nopts.MaxBackoff,
		userAgent:  nopts.UserAgent,
	}
}

func normalizeOptions(opts Options) Options {
	if strings.TrimSpace(opts.Endpoint) == "" {
		opts.Endpoint = defaultEndpoint
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = services.NewHTTPClient(nil, 30*time.Second)
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	return opts
}

type graphQLRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

type graphQLResponse struct {
	Data *struct {
		Result json.RawMessage `json:"result"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// execute returns the "result" member of a query response, reading through
// the cache. A null result is reported as ErrNotFound.
func (c *Client) execute(ctx context.Context, q query, variables map[string]any) (json.RawMessage, error) {
	cacheReq := respcache.Request{
		Endpoint:  c.endpoint,
		QueryName: q.name,
		Query:     q.document,
		Variables: variables,
	}
	if payload, ok := c.cache.Get(ctx, cacheReq); ok {
		result, err := c.decodeResult(q, variables, payload)
		if err == nil {
			c.logger.Debug("catalog cache hit", logging.String("query", q.name), logging.Any("variables", variables))
			return result, nil
		}
		c.logger.Debug("discarding unreadable cache entry", logging.String("query", q.name), logging.Error(err))
	}

	payload, err := c.post(ctx, q, variables)
	if err != nil {
		return nil, err
	}
	result, err := c.decodeResult(q, variables, payload)
	if err != nil {
		return nil, err
	}
	c.cache.Put(ctx, cacheReq, payload)
	return result, nil
}

func (c *Client) decodeResult(q query, variables map[string]any, payload []byte) (json.RawMessage, error) {
	var resp graphQLResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, services.Wrap(services.ErrUpstream, "catalog", q.name, "decode response", err)
	}
	var result json.RawMessage
	if resp.Data != nil {
		result = bytes.TrimSpace(resp.Data.Result)
	}
	empty := len(result) == 0 || bytes.Equal(result, []byte("null"))
	if len(resp.Errors) > 0 {
		messages := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			messages = append(messages, e.Message)
		}
		if empty {
			return nil, services.Wrap(services.ErrUpstream, "catalog", q.name, strings.Join(messages, "; "), nil)
		}
		logging.WarnWithContext(c.logger, "catalog returned partial errors", "graphql_partial",
			logging.String("query", q.name),
			logging.String("errors", strings.Join(messages, "; ")),
		)
	}
	if resp.Data == nil {
		return nil, services.Wrap(services.ErrUpstream, "catalog", q.name, "response has no data", nil)
	}
	if empty {
		return nil, services.Wrap(services.ErrNotFound, "catalog", q.name, fmt.Sprintf("no result for %v", variables["id"]), nil)
	}
	return result, nil
}

// post sends the query, retrying transient failures with capped exponential
// backoff. Each attempt waits on the shared rate limiter.
func (c *Client) post(ctx context.Context, q query, variables map[string]any) ([]byte, error) {
	body, err := json.Marshal(graphQLRequest{Query: q.document, Variables: variables, OperationName: q.name})
	if err != nil {
		return nil, services.Wrap(services.ErrUpstream, "catalog", q.name, "encode request", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoffFor(attempt)
			c.logger.Debug("retrying catalog request",
				logging.String("query", q.name),
				logging.Int("attempt", attempt),
				logging.Duration("wait", wait),
				logging.Error(lastErr),
			)
			if err := services.SleepWithContext(ctx, wait); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		payload, err := c.postOnce(ctx, body)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if ctx.Err() != nil || !services.IsRetriable(err) {
			break
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, services.Wrap(services.ErrUpstream, "catalog", q.name, "request failed", lastErr)
}

func (c *Client) postOnce(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &services.HTTPStatusError{StatusCode: resp.StatusCode, URL: c.endpoint}
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) backoffFor(attempt int) time.Duration {
	wait := services.Backoff(attempt, c.backoff, c.maxBackoff)
	return wait + rand.N(wait/5+1)
}

// IsNotFound reports whether err means the catalog has no such resource.
func IsNotFound(err error) bool {
	return errors.Is(err, services.ErrNotFound)
}
