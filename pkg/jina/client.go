// Package jina is a small client for the Jina reader (r.jina.ai) and search
// (s.jina.ai) endpoints used to pull public job and company pages.
package jina

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

	"github.com/huntred/circle/internal/resilience"
)

// Client reads pages and searches the web through Jina.
type Client interface {
	// Read fetches targetURL and returns its markdown rendering.
	Read(ctx context.Context, targetURL string) (*ReadResponse, error)
	// Search runs a web search. A query with no hits returns an empty response.
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

type ReadData struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage is the token count Jina bills for a call.
type Usage struct {
	Tokens int `json:"tokens"`
}

type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

// Tokens sums the usage of every result.
func (r *SearchResponse) Tokens() int {
	n := 0
	for _, d := range r.Data {
		n += d.Usage.Tokens
	}
	return n
}

type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Description string `json:"description"`
	Usage       Usage  `json:"usage"`
}

// SearchOption configures a search request.
type SearchOption func(url.Values)

// WithSite restricts results to one domain.
func WithSite(domain string) SearchOption {
	return func(q url.Values) {
		if domain != "" {
			q.Set("site", domain)
		}
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the reader endpoint.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithSearchBaseURL overrides the search endpoint.
func WithSearchBaseURL(u string) Option {
	return func(c *httpClient) { c.searchBaseURL = u }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithGuard routes every request through g.
func WithGuard(g *resilience.Guard) Option {
	return func(c *httpClient) { c.guard = g }
}

// WithRateLimit caps requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	apiKey        string
	baseURL       string
	searchBaseURL string
	http          *http.Client
	guard         *resilience.Guard
	limiter       *rate.Limiter
}

// NewClient creates a Jina client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:        apiKey,
		baseURL:       "https://r.jina.ai",
		searchBaseURL: "https://s.jina.ai",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type result struct {
	status int
	body   []byte
}

// get performs one guarded GET. Statuses in okStatus are returned to the
// caller; every other status becomes a *resilience.StatusError.
func (c *httpClient) get(ctx context.Context, op, reqURL string, headers map[string]string, okStatus ...int) (result, error) {
	return resilience.Do(ctx, c.guard, op, func(ctx context.Context) (result, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return result{}, eris.Wrap(err, "jina: rate limit wait")
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return result{}, eris.Wrap(err, "jina: create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return result{}, eris.Wrapf(err, "jina: %s", op)
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return result{}, resilience.Transient(eris.Wrap(err, "jina: read body"))
		}
		for _, s := range okStatus {
			if resp.StatusCode == s {
				return result{status: resp.StatusCode, body: body}, nil
			}
		}
		return result{}, &resilience.StatusError{Service: "jina", StatusCode: resp.StatusCode, Body: string(body)}
	})
}

func (c *httpClient) Read(ctx context.Context, targetURL string) (*ReadResponse, error) {
	res, err := c.get(ctx, "read", fmt.Sprintf("%s/%s", c.baseURL, targetURL),
		map[string]string{"X-Return-Format": "markdown"}, http.StatusOK)
	if err != nil {
		return nil, eris.Wrapf(err, "jina: read %s", targetURL)
	}

	var out ReadResponse
	if err := json.Unmarshal(res.body, &out); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal read response")
	}
	return &out, nil
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	q := url.Values{}
	for _, opt := range opts {
		opt(q)
	}
	reqURL := fmt.Sprintf("%s/%s", c.searchBaseURL, url.PathEscape(query))
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	res, err := c.get(ctx, "search", reqURL, nil, http.StatusOK, http.StatusUnprocessableEntity)
	if err != nil {
		return nil, eris.Wrapf(err, "jina: search %q", query)
	}
	// 422 means no results for the query.
	if res.status == http.StatusUnprocessableEntity {
		return &SearchResponse{Code: res.status}, nil
	}

	var out SearchResponse
	if err := json.Unmarshal(res.body, &out); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal search response")
	}
	return &out, nil
}
