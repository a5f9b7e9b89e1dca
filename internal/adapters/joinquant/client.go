// Package joinquant implements ports.LogSource against the JoinQuant live log endpoint.
package joinquant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"logMirrorBot/internal/domain"
	"logMirrorBot/internal/ports"
)

const (
	DefaultBaseURL   = "https://www.joinquant.com"
	logPath          = "/algorithm/live/log"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	maxBodySize      = 32 << 20
)

// Config holds configuration for the JoinQuant client.
type Config struct {
	BaseURL   string
	Cookies   string // "name=value; name2=value2"
	Timeout   time.Duration
	UserAgent string
	Logger    ports.Logger

	// SessionQueryID is fetched by CheckSession. The session is healthy when
	// an authenticated fetch of it succeeds.
	SessionQueryID string

	HTTPClient *http.Client // optional; the cookie jar is installed on it
}

// Client fetches raw log payloads over HTTP using session cookies.
type Client struct {
	baseURL        *url.URL
	http           *http.Client
	userAgent      string
	sessionQueryID string
	logger         ports.Logger
	now            func() time.Time
}

// New creates a JoinQuant client.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for JoinQuant client")
	}
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid base URL %q", ports.ErrConfigurationError, raw)
	}

	cookies := ParseCookies(cfg.Cookies)
	if len(cookies) == 0 {
		return nil, fmt.Errorf("%w: no session cookies configured", ports.ErrConfigurationError)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	jar.SetCookies(base, cookies)

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}
	hc.Jar = jar
	// An expired session is answered with a redirect to the login page.
	// Stop there so it can be reported as an authentication failure.
	hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &Client{
		baseURL:        base,
		http:           hc,
		userAgent:      ua,
		sessionQueryID: cfg.SessionQueryID,
		logger:         cfg.Logger,
		now:            time.Now,
	}, nil
}

// ParseCookies splits a browser style cookie header into cookies.
// Items without '=' or with an empty name are skipped.
func ParseCookies(raw string) []*http.Cookie {
	var out []*http.Cookie
	for _, item := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(item), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		out = append(out, &http.Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return out
}

// Fetch retrieves the full log for queryID.
func (c *Client) Fetch(ctx context.Context, queryID string) (*domain.RawLogPayload, error) {
	op := "Fetch"
	if queryID == "" {
		return nil, fmt.Errorf("%s: %w: empty query id", op, ports.ErrConfigurationError)
	}

	u := *c.baseURL
	u.Path += logPath
	q := url.Values{}
	q.Set("backtestId", queryID)
	q.Set("offset", "-1")
	q.Set("ajax", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w: %v", op, ports.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		c.logger.Warn(ctx, op+": Log source refused request", map[string]interface{}{
			"queryID": queryID,
			"status":  resp.StatusCode,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: reading body: %v", op, ports.ErrSourceUnavailable, err)
	}

	c.logger.Debug(ctx, op+": Log payload fetched", map[string]interface{}{
		"queryID":  queryID,
		"bytes":    len(body),
		"duration": c.now().Sub(start).String(),
	})
	return &domain.RawLogPayload{QueryID: queryID, Body: body, FetchedAt: c.now()}, nil
}

// CheckSession reports whether the configured cookies still authenticate.
func (c *Client) CheckSession(ctx context.Context) error {
	if c.sessionQueryID == "" {
		return fmt.Errorf("CheckSession: %w: no session query id", ports.ErrConfigurationError)
	}
	_, err := c.Fetch(ctx, c.sessionQueryID)
	return err
}

func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ports.ErrAuthenticationFailed, resp.StatusCode)
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		loc := resp.Header.Get("Location")
		if isLoginRedirect(loc) {
			return fmt.Errorf("%w: redirected to %s", ports.ErrAuthenticationFailed, loc)
		}
		return fmt.Errorf("%w: unexpected redirect (%d) to %s", ports.ErrSourceUnavailable, resp.StatusCode, loc)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: status %d", ports.ErrSourceUnavailable, resp.StatusCode)
	}
	return nil
}

func isLoginRedirect(location string) bool {
	l := strings.ToLower(location)
	return strings.Contains(l, "login") || strings.Contains(l, "signin")
}

// IsAuthError reports whether err means the session cookies are no longer valid.
func IsAuthError(err error) bool {
	return errors.Is(err, ports.ErrAuthenticationFailed)
}
