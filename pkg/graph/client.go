package graph

import (
	"context"
	"crypto/sha1" //nolint:gosec // cache key fingerprinting, not cryptography
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/entraops/azuregraph/internal/cache"
	"github.com/entraops/azuregraph/internal/logger"
	"github.com/entraops/azuregraph/pkg/httpclient"
	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
)

const (
	defaultTimeout    = 20 * time.Second
	defaultRetryCount = 2
)

// Client issues authenticated requests against the Microsoft Graph API.
// GET responses are served from the configured cache store until they expire.
type Client struct {
	http    *resty.Client
	baseURL string
	tokens  oauth2.TokenSource
	store   cache.Store
	limiter *rateLimiter
	log     logger.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithCache installs a response cache for GET requests.
func WithCache(store cache.Store) Option {
	return func(c *Client) {
		if store != nil {
			c.store = store
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithTimeout overrides the default 20s request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.SetTimeout(timeout)
		}
	}
}

// WithRateLimit overrides the default request pacing.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *Client) {
		c.limiter = newRateLimiter(requestsPerSecond, burst)
	}
}

// WithBaseURL points the client at a different API root, e.g. the beta endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// NewClient builds a Graph client around the token source.
func NewClient(tokens oauth2.TokenSource, opts ...Option) *Client {
	restyClient := httpclient.New(defaultTimeout)
	restyClient.SetRetryCount(defaultRetryCount)
	restyClient.SetRetryWaitTime(time.Second)
	restyClient.SetRetryMaxWaitTime(10 * time.Second)
	restyClient.AddRetryCondition(func(r *resty.Response, err error) bool {
		return r != nil && isRetryableStatus(r.StatusCode())
	})

	c := &Client{
		http:    restyClient,
		baseURL: DefaultBaseURL,
		tokens:  tokens,
		store:   nil,
		limiter: newRateLimiter(defaultRequestsPerSecond, defaultBurstSize),
		log:     &logger.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// requestURL resolves a path (or absolute URL, e.g. an @odata.nextLink)
// against the client's base URL, appending the encoded query if present.
func (c *Client) requestURL(path string, query url.Values) string {
	u := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		u = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + query.Encode()
	}
	return u
}

// cacheKey fingerprints a request for the response cache.
func cacheKey(method, fullURL string) string {
	sum := sha1.Sum([]byte(method + " " + fullURL)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Get issues a GET request and returns the response body. Successful
// responses are cached; subsequent calls are replayed until TTL expiry.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.requestURL(path, query)
	key := cacheKey(http.MethodGet, fullURL)

	if c.store != nil {
		body, found, err := c.store.Get(key)
		if err != nil {
			c.log.WarnObj("response cache read failed", "cache_error", map[string]any{
				"url":   fullURL,
				"error": err.Error(),
			})
		} else if found {
			c.log.DebugObj("response cache hit", "cache_hit", map[string]any{"url": fullURL})
			return body, nil
		}
	}

	resp, err := c.do(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}

	body := resp.Body()
	if c.store != nil {
		if err := c.store.Set(key, body); err != nil {
			c.log.WarnObj("response cache write failed", "cache_error", map[string]any{
				"url":   fullURL,
				"error": err.Error(),
			})
		}
	}
	return body, nil
}

// GetJSON issues a GET request and unmarshals the response body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}

// Post issues a POST request with a JSON body. When out is non-nil the
// response body is unmarshalled into it.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	resp, err := c.do(ctx, http.MethodPost, c.requestURL(path, nil), body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}

// Patch issues a PATCH request with a JSON body. Graph answers 204 No Content.
func (c *Client) Patch(ctx context.Context, path string, body any) error {
	_, err := c.do(ctx, http.MethodPatch, c.requestURL(path, nil), body)
	return err
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, c.requestURL(path, nil), nil)
	return err
}

// do executes a single request with pacing, bearer auth and error mapping.
func (c *Client) do(ctx context.Context, method, fullURL string, body any) (*resty.Response, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return nil, err
	}

	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("acquire bearer token: %w", translateAuthError(err))
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+tok.AccessToken)
	if body != nil {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(body)
	}

	resp, err := req.Execute(method, fullURL)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, fullURL, err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		c.limiter.recordThrottle(retryAfterSeconds(resp))
	}

	if resp.IsError() {
		apiErr := newAPIError(resp.StatusCode(), resp.Body())
		c.log.WarnObj("graph request failed", "graph_error", map[string]any{
			"method": method,
			"url":    fullURL,
			"status": resp.StatusCode(),
			"code":   apiErr.Code,
		})
		return nil, apiErr
	}

	return resp, nil
}

// retryAfterSeconds parses the Retry-After header from a throttled response.
func retryAfterSeconds(resp *resty.Response) int {
	v := strings.TrimSpace(resp.Header().Get("Retry-After"))
	if v == "" {
		return 0
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return seconds
}
