// Package appdb is a client for the coaching app's identity service, the
// authoritative source of athlete ids shared across tools.
package appdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/fullcount-labs/athlete-cli/internal/resilience"
)

// Client talks to the app database identity API.
type Client struct {
	baseURL string
	key     string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.Policy
}

// Option configures a Client.
type Option func(*Client)

// WithKey sets the API bearer token.
func WithKey(key string) Option {
	return func(c *Client) { c.key = key }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *Client) { c.retry = p }
}

// New creates a Client for the identity API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		retry:   resilience.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type identityResponse struct {
	ID string `json:"id"`
}

// LookupByName asks the app database for the athlete id bound to a display
// name. Returns "" when the app has no record of the person. Satisfies the
// resolver's Authority interface.
func (c *Client) LookupByName(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", nil
	}

	endpoint := fmt.Sprintf("%s/api/identities?name=%s", c.baseURL, url.QueryEscape(name))
	return resilience.DoVal(ctx, "appdb.lookup", c.retry, func(ctx context.Context) (string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "appdb: rate limit wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return "", eris.Wrap(err, "appdb: build request")
		}
		if c.key != "" {
			req.Header.Set("Authorization", "Bearer "+c.key)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return "", eris.Wrap(err, "appdb: lookup identity")
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return "", nil
		case resilience.RetryableStatus(resp.StatusCode):
			return "", resilience.MarkTransient(
				eris.Errorf("appdb: lookup returned %d", resp.StatusCode), resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return "", eris.Errorf("appdb: lookup returned %d: %s", resp.StatusCode, body)
		}

		var out identityResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", eris.Wrap(err, "appdb: decode identity response")
		}
		if out.ID == "" {
			return "", eris.New("appdb: identity response missing id")
		}
		return out.ID, nil
	})
}

// Health pings the identity API.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return eris.Wrap(err, "appdb: build health request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "appdb: health check")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("appdb: health returned %d", resp.StatusCode)
	}
	return nil
}
