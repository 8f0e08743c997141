// Package classroom talks to the Transparent Classroom web portal:
// session login, the paginated posts feed, and photo downloads.
package classroom

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"tcgrabber/pkg/errors"
	"tcgrabber/pkg/logger"
	"tcgrabber/pkg/ratelimit"
)

const (
	// BaseURL is the production portal address. Overridable for tests.
	BaseURL = "https://www.transparentclassroom.com"

	signInPath = "/souls/sign_in"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Credentials are the portal login details.
type Credentials struct {
	Email    string
	Password string
}

// Client holds an authenticated portal session. It is safe for
// concurrent use; the downloader workers all share one client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      Credentials
	limiter    ratelimit.Limiter
	logger     logger.Logger

	// authMu serializes logins. loginGen counts successful logins so
	// a worker that hit a stale session can tell whether another
	// worker already re-authenticated while it waited for the lock.
	authMu        sync.Mutex
	authenticated bool
	loginGen      uint64
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different portal address, used
// by tests against local mock servers.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithRateLimiter paces portal requests.
func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient creates an unauthenticated portal client. Every request
// carries a bounded timeout; an unresponsive portal must never stall
// the scheduler indefinitely.
func NewClient(creds Credentials, timeout time.Duration, log logger.Logger, opts ...Option) (*Client, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		baseURL: BaseURL,
		creds:   creds,
		logger:  log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login authenticates against the portal sign-in form. The form is
// CSRF protected, so the flow is fetch page, extract token, post
// credentials.
func (c *Client) Login(ctx context.Context) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.login(ctx)
}

// login performs the sign-in flow. Callers hold authMu.
func (c *Client) login(ctx context.Context) error {
	c.authenticated = false

	signInURL := c.baseURL + signInPath

	page, err := c.get(ctx, signInURL)
	if err != nil {
		return err
	}

	doc, err := html.Parse(strings.NewReader(string(page)))
	if err != nil {
		return errors.Newf(errors.ErrorTypeParsing, "failed to parse sign-in page: %v", err)
	}
	token := findCSRFToken(doc)
	if token == "" {
		return errors.New(errors.ErrorTypeParsing, "could not find CSRF token on sign-in page")
	}

	form := url.Values{
		"authenticity_token": {token},
		"soul[login]":        {c.creds.Email},
		"soul[password]":     {c.creds.Password},
		"soul[remember_me]":  {"0"},
		"commit":             {"Sign in"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signInURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Newf(errors.ErrorTypeUnknown, "failed to create login request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Newf(errors.ErrorTypeNetwork, "login request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Newf(errors.ErrorTypeNetwork, "failed to read login response: %v", err)
	}

	if resp.StatusCode >= 400 {
		return &errors.Error{
			Type:    errors.ErrorTypeAuth,
			Message: "sign-in rejected",
			Code:    resp.StatusCode,
		}
	}
	if strings.Contains(string(body), "You need to sign in") {
		return errors.New(errors.ErrorTypeAuth, "invalid credentials")
	}

	c.authenticated = true
	c.loginGen++
	c.logger.Info("portal login successful")
	return nil
}

// IsAuthenticated reports whether the last login attempt succeeded.
func (c *Client) IsAuthenticated() bool {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.authenticated
}

// session returns the current login generation and whether the
// session is live.
func (c *Client) session() (uint64, bool) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.loginGen, c.authenticated
}

// ensureLogin re-authenticates unless another caller already did so
// after the generation this caller last saw. Concurrent workers all
// hitting the same stale session produce exactly one re-login; the
// rest wait on the lock and reuse the fresh session.
func (c *Client) ensureLogin(ctx context.Context, seenGen uint64) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.authenticated && c.loginGen != seenGen {
		return nil
	}
	return c.login(ctx)
}

// authenticatedGet fetches a URL within the session, re-authenticating
// exactly once when the portal signals a stale session. A second
// consecutive auth failure surfaces as a fatal auth error.
func (c *Client) authenticatedGet(ctx context.Context, rawURL string) ([]byte, error) {
	gen, live := c.session()
	if !live {
		if err := c.ensureLogin(ctx, gen); err != nil {
			return nil, err
		}
		gen, _ = c.session()
	}

	body, err := c.get(ctx, rawURL)
	if !isAuthError(err) {
		return body, err
	}

	c.logger.Warn("session rejected, re-authenticating")
	if loginErr := c.ensureLogin(ctx, gen); loginErr != nil {
		return nil, loginErr
	}
	return c.get(ctx, rawURL)
}

// get performs one rate-limited GET and classifies failures.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Newf(errors.ErrorTypeNetwork, "rate limit wait cancelled: %v", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Newf(errors.ErrorTypeUnknown, "failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Newf(errors.ErrorTypeNetwork, "request failed: %v", err)
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("portal request completed", map[string]interface{}{
		"url":      rawURL,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	})

	// The portal answers stale sessions with a redirect to the
	// sign-in page rather than a 401. Requests addressed to the
	// sign-in page itself are exempt.
	redirectedToSignIn := strings.Contains(resp.Request.URL.Path, signInPath) &&
		!strings.Contains(req.URL.Path, signInPath)
	if resp.StatusCode == http.StatusUnauthorized || redirectedToSignIn {
		return nil, &errors.Error{
			Type:    errors.ErrorTypeAuth,
			Message: "session not authenticated",
			Code:    resp.StatusCode,
		}
	}

	if resp.StatusCode >= 400 {
		errType := errors.ErrorTypeServerError
		if resp.StatusCode == http.StatusNotFound {
			errType = errors.ErrorTypeNotFound
		}
		return nil, &errors.Error{
			Type:    errType,
			Message: fmt.Sprintf("portal returned status %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Newf(errors.ErrorTypeNetwork, "failed to read response body: %v", err)
	}
	return body, nil
}

// FetchPhoto downloads the photo bytes at the given URL within the
// authenticated session.
func (c *Client) FetchPhoto(ctx context.Context, rawURL string) ([]byte, error) {
	return c.authenticatedGet(ctx, rawURL)
}

func isAuthError(err error) bool {
	return errors.IsType(err, errors.ErrorTypeAuth)
}
