// Package xclient talks to the X web API with a logged-in browser session
// (auth_token and ct0 cookies) and converts its payloads into models.
package xclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/pauljones0/x-parser/internal/util"
)

// webBearerToken is the public token the X web client sends with every
// request; the session cookies carry the actual identity.
const webBearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

const (
	DefaultBaseURL   = "https://x.com"
	MaxTimelineCount = 200
	userAgent        = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	maxBodyBytes     = 16 << 20
)

var (
	// ErrNoCredentials is returned when a request is attempted without session cookies.
	ErrNoCredentials = errors.New("missing session credentials")
	// ErrUnauthorized is returned on 401/403 responses.
	ErrUnauthorized = errors.New("session rejected")
	// ErrTweetUnavailable is returned when the payload holds no usable tweet.
	ErrTweetUnavailable = errors.New("tweet unavailable")
)

// Credentials are the two session cookies copied from a logged-in browser.
type Credentials struct {
	AuthToken string `json:"auth_token"`
	CSRFToken string `json:"ct0"`
}

// Valid reports whether both cookies are present.
func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.AuthToken) != "" && strings.TrimSpace(c.CSRFToken) != ""
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("x api status %d: %s", e.Code, body)
}

// Endpoints are API paths relative to the base URL. The GraphQL query ids
// rotate with web client releases, so they are configuration.
type Endpoints struct {
	TweetDetail  string
	TweetByID    string
	HomeTimeline string
}

var DefaultEndpoints = Endpoints{
	TweetDetail:  "/i/api/graphql/nBS-WpgA6ZG0CyNHD517JQ/TweetDetail",
	TweetByID:    "/i/api/graphql/0hWvDhmW8YQ-S_ib3azIrw/TweetResultByRestId",
	HomeTimeline: "/i/api/2/timeline/home.json",
}

type Options struct {
	BaseURL        string
	Endpoints      Endpoints
	Timeout        time.Duration
	MaxRetries     int
	RateLimitDelay time.Duration
}

type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	endpoints   Endpoints
	rateLimiter *rate.Limiter
	maxRetries  int
	retryBase   time.Duration
}

func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Endpoints == (Endpoints{}) {
		opts.Endpoints = DefaultEndpoints
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", opts.BaseURL, err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookiejar.New: %w", err)
	}

	limit := rate.Inf
	if opts.RateLimitDelay > 0 {
		limit = rate.Every(opts.RateLimitDelay)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Jar:     jar,
		},
		baseURL:     base,
		endpoints:   opts.Endpoints,
		rateLimiter: rate.NewLimiter(limit, 1),
		maxRetries:  opts.MaxRetries,
		retryBase:   util.DefaultBackoffBase,
	}, nil
}

func (c *Client) endpointURL(path string, params url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = params.Encode()
	return u.String()
}

// getJSON performs an authenticated GET and decodes the JSON body into out.
// 5xx and 429 responses are retried; other 4xx responses are not.
func (c *Client) getJSON(ctx context.Context, creds Credentials, path string, params url.Values, out any) error {
	body, err := c.get(ctx, creds, c.endpointURL(path, params), "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, creds Credentials, rawURL, accept string) ([]byte, error) {
	if !creds.Valid() {
		return nil, ErrNoCredentials
	}

	var body []byte
	err := util.RetryWithBackoffBase(ctx, c.maxRetries, c.retryBase, func(attempt int) error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return util.Permanent(err)
		}
		setSessionHeaders(req, creds, accept)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			slog.Warn("X API request failed", "url", rawURL, "attempt", attempt+1, "error", err)
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			body = data
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			delay := parseRetryAfter(resp.Header)
			slog.Warn("X API rate limited", "attempt", attempt+1, "retry_after", delay)
			return util.RetryAfter(&StatusError{Code: resp.StatusCode, Body: string(data)}, delay)
		case resp.StatusCode >= 500:
			slog.Warn("X API server error", "status", resp.StatusCode, "attempt", attempt+1)
			return &StatusError{Code: resp.StatusCode, Body: string(data)}
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return util.Permanent(fmt.Errorf("%w: %w", ErrUnauthorized, &StatusError{Code: resp.StatusCode, Body: string(data)}))
		default:
			return util.Permanent(&StatusError{Code: resp.StatusCode, Body: string(data)})
		}
	})
	return body, err
}

func setSessionHeaders(req *http.Request, creds Credentials, accept string) {
	req.Header.Set("Authorization", "Bearer "+webBearerToken)
	req.Header.Set("X-Csrf-Token", creds.CSRFToken)
	req.Header.Set("X-Twitter-Auth-Type", "OAuth2Session")
	req.Header.Set("X-Twitter-Active-User", "yes")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: creds.AuthToken})
	req.AddCookie(&http.Cookie{Name: "ct0", Value: creds.CSRFToken})
}

// parseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
// Unknown values yield 0, which keeps the normal backoff.
func parseRetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		if reset := h.Get("X-Rate-Limit-Reset"); reset != "" {
			if ts, err := strconv.ParseInt(reset, 10, 64); err == nil {
				if d := time.Until(time.Unix(ts, 0)); d > 0 {
					return d
				}
			}
		}
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
