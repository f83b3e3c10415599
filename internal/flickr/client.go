// Package flickr builds Flickr request URLs, performs the HTTP GETs and turns
// the responses into storage.ParsedPhoto records.
package flickr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pders01/photorama/internal/config"
	"github.com/pders01/photorama/internal/debuglog"
	"github.com/pders01/photorama/internal/ratelimit"
	"github.com/pders01/photorama/internal/storage"
	"github.com/pders01/photorama/internal/validation"
)

const (
	defaultTimeout = 30 * time.Second
	defaultMaxBody = 10 * 1024 * 1024
)

type Client struct {
	http      *http.Client
	limiter   *ratelimit.KeyedRateLimiter
	urls      *validation.URLValidator
	baseURL   string
	feedURL   string
	apiKey    string
	userAgent string
	perPage   int
	maxBody   int64
}

func NewClient(cfg *config.Config) *Client {
	timeout := cfg.API.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBody := cfg.API.MaxImageBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}

	urls := validation.NewURLValidator()
	if cfg.API.AllowPrivateHosts {
		urls = validation.NewPermissiveURLValidator()
	}

	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter:   ratelimit.New(cfg.API.RateLimit, cfg.API.RateBurst),
		urls:      urls,
		baseURL:   cfg.API.BaseURL,
		feedURL:   cfg.API.FeedURL,
		apiKey:    cfg.API.Key,
		userAgent: cfg.API.UserAgent,
		perPage:   cfg.API.PerPage,
		maxBody:   maxBody,
	}
}

// Get performs a single GET and returns the body. Every failure before a
// complete 2xx body is read comes back as a *TransportError.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &TransportError{URL: "(invalid url)", Err: scrub(err, "(invalid url)")}
	}
	safe := redact(u)

	if err := c.limiter.Wait(ctx, u.Host); err != nil {
		return nil, &TransportError{URL: safe, Err: fmt.Errorf("rate limit: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &TransportError{URL: safe, Err: fmt.Errorf("creating request: %w", scrub(err, safe))}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		err = scrub(err, safe)
		debuglog.Warnf("GET %s failed: %v", safe, err)
		return nil, &TransportError{URL: safe, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		debuglog.Warnf("GET %s returned %d", safe, resp.StatusCode)
		return nil, &TransportError{
			URL:        safe,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, &TransportError{URL: safe, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}
	if int64(len(body)) > c.maxBody {
		return nil, &TransportError{URL: safe, StatusCode: resp.StatusCode, Err: ErrTooLarge}
	}

	debuglog.WithFields(map[string]any{
		"url":      safe,
		"status":   resp.StatusCode,
		"bytes":    len(body),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debugf("GET complete")

	return body, nil
}

// ImageURL returns the download location for a photo, or false when the
// photo carries no remote reference.
func ImageURL(photo *storage.Photo) (string, bool) {
	if photo == nil || !photo.HasRemoteURL() {
		return "", false
	}
	return photo.RemoteURL, true
}

// scrub replaces the URL that net/http embeds in its errors, which still
// carries the api key.
func scrub(err error, safe string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = safe
	}
	return err
}

// redact drops the api key from URLs before they reach the log.
func redact(u *url.URL) string {
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		c := *u
		c.RawQuery = q.Encode()
		return c.String()
	}
	return u.String()
}
